// Package chunking cuts loaded segments into overlapping fixed-size windows.
package chunking

import (
	"strings"

	"github.com/bull/civic-assistant/internal/config"
	"github.com/bull/civic-assistant/internal/loader"
)

// SegmentSeparator joins consecutive segments before windowing so that the
// last word of one page never runs into the first word of the next.
const SegmentSeparator = "\n\n"

// Chunk is one retrieval unit. Sizes and offsets are measured in runes.
type Chunk struct {
	Index     int
	Text      string
	Start     int // rune offset into the joined document
	Source    string
	Page      int
	Section   string
	Embedding []float32
}

// span records where a segment sits in the joined text.
type span struct {
	start, end int
	seg        *loader.Segment
}

// Split joins segments and emits windows of size runes, each starting
// size-overlap runes after the previous one. Windowing stops after the
// first window that reaches the end of the text, so the final chunk may be
// shorter. Each chunk takes the metadata of the segment its first rune
// falls in.
func Split(segments []loader.Segment, size, overlap int) ([]Chunk, error) {
	if err := config.ValidateChunking(size, overlap); err != nil {
		return nil, err
	}

	text, spans := join(segments)
	if len(text) == 0 {
		return nil, nil
	}

	step := size - overlap
	chunks := make([]Chunk, 0, len(text)/step+1)
	for start := 0; ; start += step {
		end := min(start+size, len(text))
		c := Chunk{
			Index: len(chunks),
			Text:  string(text[start:end]),
			Start: start,
		}
		if seg := segmentAt(spans, start); seg != nil {
			c.Source = seg.Source
			c.Page = seg.Page
			c.Section = seg.Section
		}
		chunks = append(chunks, c)

		if end == len(text) {
			break
		}
	}
	return chunks, nil
}

// Count returns the number of chunks Split produces for a text of n runes.
func Count(n, size, overlap int) int {
	if n <= 0 {
		return 0
	}
	if n <= size {
		return 1
	}
	step := size - overlap
	return (n-overlap+step-1)/step
}

func join(segments []loader.Segment) ([]rune, []span) {
	var b strings.Builder
	spans := make([]span, 0, len(segments))
	offset := 0

	for i := range segments {
		r := []rune(segments[i].Text)
		if len(r) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(SegmentSeparator)
			// The separator belongs to the preceding segment.
			spans[len(spans)-1].end += len([]rune(SegmentSeparator))
			offset += len([]rune(SegmentSeparator))
		}
		b.WriteString(segments[i].Text)
		spans = append(spans, span{start: offset, end: offset + len(r), seg: &segments[i]})
		offset += len(r)
	}
	return []rune(b.String()), spans
}

func segmentAt(spans []span, offset int) *loader.Segment {
	for _, s := range spans {
		if offset >= s.start && offset < s.end {
			return s.seg
		}
	}
	return nil
}
