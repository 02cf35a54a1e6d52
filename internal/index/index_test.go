package index

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/civic-assistant/internal/config"
)

func sampleEntries() []Entry {
	return []Entry{
		{Text: "right to equality", Metadata: Metadata{Source: "doc", Page: 1}, Vector: []float32{1, 0, 0}},
		{Text: "right to life", Metadata: Metadata{Source: "doc", Page: 2}, Vector: []float32{0, 1, 0}},
		{Text: "right to life, again", Metadata: Metadata{Source: "doc", Page: 3}, Vector: []float32{0, 2, 0}},
		{Text: "directive principles", Metadata: Metadata{Source: "doc", Page: 4}, Vector: []float32{0.5, 0.5, 0.7}},
	}
}

func texts(results []Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Text
	}
	return out
}

func TestBuild(t *testing.T) {
	idx, err := Build(sampleEntries())
	require.NoError(t, err)
	assert.Equal(t, 4, idx.Len())
	assert.Equal(t, 3, idx.Dimension())

	empty, err := Build(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Len())
	assert.Equal(t, 0, empty.Dimension())
}

func TestBuild_DimensionMismatch(t *testing.T) {
	entries := sampleEntries()
	entries[2].Vector = []float32{1, 2}

	_, err := Build(entries)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = Build([]Entry{{Text: "no vector"}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSearch_OrderAndTies(t *testing.T) {
	idx, err := Build(sampleEntries())
	require.NoError(t, err)

	results, err := idx.Search([]float32{0, 1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Entries 1 and 2 point the same way; insertion order breaks the tie.
	assert.Equal(t, []string{"right to life", "right to life, again", "directive principles"}, texts(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.InDelta(t, 1.0, results[1].Score, 1e-9)
	assert.Equal(t, 1, results[0].Position)
	assert.Equal(t, 2, results[0].Metadata.Page)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	idx, err := Build(sampleEntries())
	require.NoError(t, err)

	q := []float32{0.3, 0.3, 0.3}
	first, err := idx.Search(q, 4)
	require.NoError(t, err)
	for range 10 {
		again, err := idx.Search(q, 4)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSearch_KBound(t *testing.T) {
	idx, err := Build(sampleEntries())
	require.NoError(t, err)

	results, err := idx.Search([]float32{1, 1, 1}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 4)

	_, err = idx.Search([]float32{1, 1, 1}, 0)
	assert.ErrorIs(t, err, config.ErrConfig)
}

func TestSearch_Errors(t *testing.T) {
	idx, err := Build(sampleEntries())
	require.NoError(t, err)

	_, err = idx.Search([]float32{1, 1}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	empty, err := Build(nil)
	require.NoError(t, err)
	results, err := empty.Search([]float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "faiss_index")
	idx, err := Build(sampleEntries())
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "hashing/3"))

	assert.True(t, Exists(dir))
	loaded, err := Load(dir)
	require.NoError(t, err)

	m := loaded.Manifest()
	assert.Equal(t, "hashing/3", m.Provider)
	assert.Equal(t, 3, m.Dimension)
	assert.Equal(t, 4, m.Entries)
	assert.False(t, m.BuiltAt.IsZero())

	for _, q := range [][]float32{{1, 0, 0}, {0.2, 0.9, 0.1}, {-1, 0.5, 0.5}} {
		want, err := idx.Search(q, 4)
		require.NoError(t, err)
		got, err := loaded.Search(q, 4)
		require.NoError(t, err)

		require.Equal(t, texts(want), texts(got))
		for i := range want {
			assert.InDelta(t, want[i].Score, got[i].Score, 1e-9)
			assert.Equal(t, want[i].Metadata, got[i].Metadata)
		}
	}
}

func TestSave_ReplacesExisting(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "faiss_index")

	first, err := Build(sampleEntries())
	require.NoError(t, err)
	require.NoError(t, first.Save(dir, "p"))

	second, err := Build(sampleEntries()[:1])
	require.NoError(t, err)
	require.NoError(t, second.Save(dir, "p"))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())

	// No temp or backup directories are left behind.
	siblings, err := os.ReadDir(filepath.Dir(dir))
	require.NoError(t, err)
	assert.Len(t, siblings, 1)
}

func TestSaveLoad_Empty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	empty, err := Build(nil)
	require.NoError(t, err)
	require.NoError(t, empty.Save(dir, "p"))

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Len())
}

func TestLoad_NotFound(t *testing.T) {
	root := t.TempDir()

	_, err := Load(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, ErrIndexNotFound)

	// Manifest without data.
	partial := filepath.Join(root, "partial")
	require.NoError(t, os.MkdirAll(partial, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(partial, manifestFile), []byte(`{"format":1}`), 0o644))
	_, err = Load(partial)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	// Corrupt data.
	require.NoError(t, os.WriteFile(filepath.Join(partial, dataFile), []byte("garbage"), 0o644))
	_, err = Load(partial)
	assert.ErrorIs(t, err, ErrIndexNotFound)

	// Corrupt manifest.
	require.NoError(t, os.WriteFile(filepath.Join(partial, manifestFile), []byte("{"), 0o644))
	_, err = Load(partial)
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

type fakeProvider struct{ dim int }

func (f fakeProvider) Dimension() int { return f.dim }
func (f fakeProvider) Name() string   { return "fake" }

func TestLoadFor_DimensionCheck(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	idx, err := Build(sampleEntries())
	require.NoError(t, err)
	require.NoError(t, idx.Save(dir, "fake"))

	_, err = LoadFor(dir, fakeProvider{dim: 3})
	assert.NoError(t, err)

	_, err = LoadFor(dir, fakeProvider{dim: 0})
	assert.NoError(t, err, "unknown provider dimension is not checked")

	_, err = LoadFor(dir, fakeProvider{dim: 768})
	assert.ErrorIs(t, err, config.ErrConfig)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
