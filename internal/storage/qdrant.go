// Package storage is the remote vector index backend, holding the same
// entries as the local index in a Qdrant collection.
package storage

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/bull/civic-assistant/internal/config"
	"github.com/bull/civic-assistant/internal/index"
)

const (
	vectorName = "content"
	batchSize  = 100
	tieSlack   = 8

	typeChunk    = "chunk"
	typeManifest = "manifest"
)

// QdrantStore wraps the Qdrant client with connection management and health checks.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	logger     *slog.Logger
}

// NewQdrantStore connects to Qdrant and fails fast if the server does not
// become healthy within the retry window.
func NewQdrantStore(ctx context.Context, cfg config.QdrantConfig, logger *slog.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	s := &QdrantStore{
		client:     client,
		collection: cfg.Collection,
		logger:     logger,
	}

	if err := s.healthCheckWithRetry(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}
	return s, nil
}

func newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return b
}

func (s *QdrantStore) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, backoff.WithContext(newBackoff(), ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStore) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// Close closes the Qdrant client connection.
func (s *QdrantStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Exists reports whether the collection has been built.
func (s *QdrantStore) Exists(ctx context.Context) (bool, error) {
	target, err := s.aliasTarget(ctx)
	if err != nil {
		return false, err
	}
	if target != "" {
		return true, nil
	}
	ok, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return false, fmt.Errorf("failed to check collection: %w", err)
	}
	return ok, nil
}

// aliasTarget returns the physical collection behind the alias, or "" if
// the alias does not exist.
func (s *QdrantStore) aliasTarget(ctx context.Context) (string, error) {
	aliases, err := s.client.ListAliases(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list aliases: %w", err)
	}
	for _, a := range aliases {
		if a.GetAliasName() == s.collection {
			return a.GetCollectionName(), nil
		}
	}
	return "", nil
}

// Replace rebuilds the index into a new versioned collection and then
// atomically repoints the alias at it. Readers keep querying the previous
// build until the switch; if any step fails the new collection is dropped
// and the previous build stays live.
func (s *QdrantStore) Replace(ctx context.Context, entries []index.Entry, provider string) error {
	// Build validates that all vectors share one dimension.
	idx, err := index.Build(entries)
	if err != nil {
		return err
	}
	dim := idx.Dimension()
	if dim == 0 {
		return fmt.Errorf("%w: cannot create a qdrant collection without vectors", config.ErrConfig)
	}

	target := versionedName(s.collection, time.Now())
	if err := s.createCollection(ctx, target, dim); err != nil {
		return err
	}

	err = s.upsertAll(ctx, target, entries, index.Manifest{
		Provider:  provider,
		Dimension: dim,
		Entries:   len(entries),
		BuiltAt:   time.Now().UTC(),
	})
	if err == nil {
		err = s.switchAlias(ctx, target)
	}
	if err != nil {
		s.dropCollection(context.WithoutCancel(ctx), target)
		return err
	}

	s.logger.Info("qdrant collection rebuilt", "alias", s.collection, "collection", target,
		"entries", len(entries), "dimension", dim)
	return nil
}

// switchAlias points the alias at target in one UpdateAliases call and then
// drops the collection it used to point at.
func (s *QdrantStore) switchAlias(ctx context.Context, target string) error {
	previous, err := s.aliasTarget(ctx)
	if err != nil {
		return err
	}

	if previous == "" {
		// A plain collection under the alias name predates aliasing and
		// blocks alias creation.
		legacy, err := s.client.CollectionExists(ctx, s.collection)
		if err != nil {
			return fmt.Errorf("failed to check collection: %w", err)
		}
		if legacy {
			s.logger.Warn("dropping unaliased collection", "collection", s.collection)
			if err := s.client.DeleteCollection(ctx, s.collection); err != nil {
				return fmt.Errorf("failed to delete collection: %w", err)
			}
		}
	}

	ops := make([]*qdrant.AliasOperations, 0, 2)
	if previous != "" {
		ops = append(ops, qdrant.NewAliasDelete(s.collection))
	}
	ops = append(ops, qdrant.NewAliasCreate(s.collection, target))
	if err := s.client.UpdateAliases(ctx, ops); err != nil {
		return fmt.Errorf("failed to switch alias: %w", err)
	}

	if previous != "" && previous != target {
		s.dropCollection(ctx, previous)
	}
	return nil
}

// Drop removes the alias and the collection behind it.
func (s *QdrantStore) Drop(ctx context.Context) error {
	target, err := s.aliasTarget(ctx)
	if err != nil {
		return err
	}
	if target == "" {
		return s.client.DeleteCollection(ctx, s.collection)
	}
	if err := s.client.DeleteAlias(ctx, s.collection); err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	return s.client.DeleteCollection(ctx, target)
}

func (s *QdrantStore) dropCollection(ctx context.Context, name string) {
	if err := s.client.DeleteCollection(ctx, name); err != nil {
		s.logger.Error("failed to drop collection", "collection", name, "error", err)
	}
}

// versionedName is the physical collection for one build.
func versionedName(alias string, t time.Time) string {
	return fmt.Sprintf("%s_%d", alias, t.UnixNano())
}

func (s *QdrantStore) createCollection(ctx context.Context, name string, dim int) error {
	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			vectorName: {
				Size:     uint64(dim),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	fields := map[string]qdrant.FieldType{
		"type":     qdrant.FieldType_FieldTypeKeyword,
		"position": qdrant.FieldType_FieldTypeInteger,
	}
	for field, fieldType := range fields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      fieldType.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

func (s *QdrantStore) upsertAll(ctx context.Context, collection string, entries []index.Entry, m index.Manifest) error {
	for i := 0; i < len(entries); i += batchSize {
		end := min(i+batchSize, len(entries))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			points = append(points, s.chunkPoint(j, entries[j]))
		}
		if err := s.upsertWithRetry(ctx, collection, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d: %w", i, end, err)
		}
	}

	// The manifest goes last: its presence marks a complete build.
	return s.upsertWithRetry(ctx, collection, []*qdrant.PointStruct{s.manifestPoint(m)})
}

func (s *QdrantStore) upsertWithRetry(ctx context.Context, collection string, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         points,
		})
		return err
	}
	return backoff.Retry(operation, backoff.WithContext(newBackoff(), ctx))
}

// Manifest returns the build summary stored with the collection.
func (s *QdrantStore) Manifest(ctx context.Context) (index.Manifest, error) {
	exists, err := s.Exists(ctx)
	if err != nil {
		return index.Manifest{}, err
	}
	if !exists {
		return index.Manifest{}, fmt.Errorf("%w: qdrant collection %s", index.ErrIndexNotFound, s.collection)
	}

	points, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(s.manifestID())},
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return index.Manifest{}, fmt.Errorf("failed to get manifest: %w", err)
	}
	if len(points) == 0 {
		return index.Manifest{}, fmt.Errorf("%w: qdrant collection %s has no manifest", index.ErrIndexNotFound, s.collection)
	}
	return manifestFromPayload(points[0].Payload), nil
}

// Search returns the k chunks most similar to query, best first, with
// equal scores ordered by insertion position.
func (s *QdrantStore) Search(ctx context.Context, query []float32, k int) ([]index.Result, error) {
	if k < 1 {
		return nil, fmt.Errorf("%w: k must be >= 1, got %d", config.ErrConfig, k)
	}

	m, err := s.Manifest(ctx)
	if err != nil {
		return nil, err
	}
	if m.Entries == 0 {
		return []index.Result{}, nil
	}
	if len(query) != m.Dimension {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d",
			index.ErrDimensionMismatch, len(query), m.Dimension)
	}

	// Qdrant picks arbitrarily among points tied at the limit, so fetch
	// past k until the tie at the cut-off is fully inside the page.
	limit := min(k+tieSlack, m.Entries)
	for {
		results, err := s.query(ctx, query, limit)
		if err != nil {
			return nil, err
		}
		if len(results) < limit || limit >= m.Entries || !tiedAtCutoff(results, k) {
			return rankResults(results, k), nil
		}
		limit = min(limit*2, m.Entries)
	}
}

func (s *QdrantStore) query(ctx context.Context, query []float32, limit int) ([]index.Result, error) {
	using := vectorName
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collection,
		Query:          qdrant.NewQuery(query...),
		Using:          &using,
		Filter: &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("type", typeChunk)},
		},
		Limit:       qdrant.PtrOf(uint64(limit)),
		WithPayload: qdrant.NewWithPayload(true),
		WithVectors: qdrant.NewWithVectors(false),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}

	results := make([]index.Result, 0, len(points))
	for _, p := range points {
		results = append(results, resultFromPayload(p.Payload, float64(p.Score)))
	}
	return results, nil
}

// tiedAtCutoff reports whether the k-th best score equals the lowest score
// in the page, meaning unseen points may share it.
func tiedAtCutoff(results []index.Result, k int) bool {
	if len(results) <= k {
		return false
	}
	lowest := results[0].Score
	for _, r := range results {
		lowest = min(lowest, r.Score)
	}
	ranked := rankResults(slices.Clone(results), k)
	return ranked[k-1].Score == lowest
}

// rankResults sorts by score and position and keeps the best k.
func rankResults(results []index.Result, k int) []index.Result {
	sortResults(results)
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// sortResults orders by descending score, then ascending position.
func sortResults(results []index.Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Position < results[j].Position
	})
}

func (s *QdrantStore) chunkPoint(position int, e index.Entry) *qdrant.PointStruct {
	return &qdrant.PointStruct{
		Id: qdrant.NewIDUUID(s.pointID(position)),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
			vectorName: qdrant.NewVector(e.Vector...),
		}),
		Payload: qdrant.NewValueMap(chunkPayload(position, e)),
	}
}

func (s *QdrantStore) manifestPoint(m index.Manifest) *qdrant.PointStruct {
	// Manifest points carry no vector.
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(s.manifestID()),
		Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{}),
		Payload: qdrant.NewValueMap(map[string]any{
			"type":      typeManifest,
			"provider":  m.Provider,
			"dimension": m.Dimension,
			"entries":   m.Entries,
			"built_at":  m.BuiltAt.Format(time.RFC3339Nano),
		}),
	}
}

// pointID is deterministic so a rebuild of the same document yields the
// same IDs.
func (s *QdrantStore) pointID(position int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s/chunk/%d", s.collection, position)).String()
}

func (s *QdrantStore) manifestID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(s.collection+"/manifest")).String()
}

func chunkPayload(position int, e index.Entry) map[string]any {
	return map[string]any{
		"type":     typeChunk,
		"position": position,
		"content":  e.Text,
		"source":   e.Metadata.Source,
		"page":     e.Metadata.Page,
		"section":  e.Metadata.Section,
	}
}

func resultFromPayload(payload map[string]*qdrant.Value, score float64) index.Result {
	return index.Result{
		Position: int(payload["position"].GetIntegerValue()),
		Text:     payload["content"].GetStringValue(),
		Score:    score,
		Metadata: index.Metadata{
			Source:  payload["source"].GetStringValue(),
			Page:    int(payload["page"].GetIntegerValue()),
			Section: payload["section"].GetStringValue(),
		},
	}
}

func manifestFromPayload(payload map[string]*qdrant.Value) index.Manifest {
	builtAt, err := time.Parse(time.RFC3339Nano, payload["built_at"].GetStringValue())
	if err != nil {
		builtAt = time.Time{}
	}
	return index.Manifest{
		Provider:  payload["provider"].GetStringValue(),
		Dimension: int(payload["dimension"].GetIntegerValue()),
		Entries:   int(payload["entries"].GetIntegerValue()),
		BuiltAt:   builtAt,
	}
}
