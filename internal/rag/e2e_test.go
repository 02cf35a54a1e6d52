package rag_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bull/civic-assistant/internal/embedding"
	"github.com/bull/civic-assistant/internal/indexer"
	"github.com/bull/civic-assistant/internal/loader"
	"github.com/bull/civic-assistant/internal/rag"
)

var (
	pageOneTopics = []string{
		"speech", "assembly", "association", "movement", "residence",
		"profession", "trade", "worship", "education", "culture",
	}
	pageTwoTopics = []string{
		"railway", "tariff", "postal", "telegraph", "shipping",
		"aircraft", "currency", "banking", "insurance", "census",
	}
)

const opening = "We the people solemnly resolve to secure justice, equality and fraternity to all citizens."

// page builds a page of varied sentences longer than one chunk.
func page(kind string, topics []string) string {
	var b strings.Builder
	for i := 0; b.Len() < 1500; i++ {
		fmt.Fprintf(&b, "%s clause %d concerns the %s of every %s holder. ",
			kind, i, topics[i%len(topics)], topics[(i+3)%len(topics)])
	}
	return b.String()
}

type contextEcho struct{ chunks []string }

func (c *contextEcho) Generate(_ context.Context, _ string, chunks []string) (string, error) {
	c.chunks = chunks
	return strings.Join(chunks, "\n\n"), nil
}

func (c *contextEcho) Name() string { return "echo" }

func TestIngestThenAnswer(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	first := opening + " " + page("Rights", pageOneTopics)
	second := page("Union", pageTwoTopics)
	doc := filepath.Join(root, "constitution.txt")
	require.NoError(t, os.WriteFile(doc, []byte(first+"\f"+second), 0o644))

	provider := embedding.NewHashing(512)
	dir := filepath.Join(root, "faiss_index")

	pipeline := indexer.NewPipeline(loader.New(nil, nil), provider, indexer.LocalSink{Dir: dir},
		indexer.Options{ChunkSize: 1000, ChunkOverlap: 200, Workers: 4}, nil)
	result, err := pipeline.Run(ctx, doc)
	require.NoError(t, err)
	require.Greater(t, result.TotalChunks, 2)

	gen := &contextEcho{}
	o := rag.NewOrchestrator(rag.NewLocalSource(dir, provider, nil), provider, gen, rag.Options{})

	query := opening
	results, err := o.Search(ctx, query, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)

	top := results[0]
	assert.Contains(t, top.Text, query)
	assert.Equal(t, 1, top.Metadata.Page)
	for _, word := range pageTwoTopics {
		assert.NotContains(t, top.Text, word)
	}

	reply := o.Answer(ctx, query)
	assert.False(t, strings.HasPrefix(reply, "Error:"), reply)
	require.Len(t, gen.chunks, 3)
	assert.Equal(t, top.Text, gen.chunks[0])
}

func TestIngestThenAnswer_PDF(t *testing.T) {
	ctx := context.Background()
	doc := filepath.Join("..", "loader", "testdata", "two_pages.pdf")

	provider := embedding.NewHashing(512)
	dir := filepath.Join(t.TempDir(), "faiss_index")

	pipeline := indexer.NewPipeline(loader.New(nil, nil), provider, indexer.LocalSink{Dir: dir},
		indexer.Options{ChunkSize: 100, ChunkOverlap: 20, Workers: 2}, nil)
	result, err := pipeline.Run(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Segments)
	require.Greater(t, result.TotalChunks, 2)

	gen := &contextEcho{}
	o := rag.NewOrchestrator(rag.NewLocalSource(dir, provider, nil), provider, gen, rag.Options{})

	query := "Union List. Railways, posts and telegraphs, currency, coinage and legal tender, " +
		"banking, insurance and the census are matters on which Parliament alone may make laws " +
		"for the whole territory."
	results, err := o.Search(ctx, query, 3)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, 2, results[0].Metadata.Page)
	assert.Equal(t, doc, results[0].Metadata.Source)

	reply := o.Answer(ctx, query)
	assert.False(t, strings.HasPrefix(reply, "Error:"), reply)
	assert.Len(t, gen.chunks, 3)
}
