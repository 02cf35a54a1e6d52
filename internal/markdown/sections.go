// Package markdown splits markdown documents into header-delimited sections
// so the loader can treat each H1/H2 section as one logical unit.
package markdown

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/toc"
)

// Section is the text under one H1 or H2 heading.
type Section struct {
	Index      int    // Position in document (0, 1, 2...)
	HeaderPath string // Hierarchy: "# Part III > ## Article 21"
	Text       string // Section body including its own heading line
}

// Splitter splits markdown at H1 and H2 boundaries.
type Splitter struct {
	md goldmark.Markdown
}

// NewSplitter creates a splitter backed by a goldmark parser with
// auto-generated heading IDs, which the TOC walk relies on.
func NewSplitter() *Splitter {
	return &Splitter{
		md: goldmark.New(goldmark.WithParserOptions(parser.WithAutoHeadingID())),
	}
}

// Split returns the sections of source in document order. A document
// without headings yields a single section with an empty header path.
// Text before the first heading is kept as its own leading section.
func (s *Splitter) Split(source []byte) ([]Section, error) {
	doc := s.md.Parser().Parse(text.NewReader(source))

	tree, err := toc.Inspect(doc, source,
		toc.MinDepth(1),
		toc.MaxDepth(2),
		toc.Compact(true),
	)
	if err != nil {
		return nil, fmt.Errorf("inspect TOC: %w", err)
	}

	if len(tree.Items) == 0 {
		body := strings.TrimSpace(string(source))
		if body == "" {
			return nil, nil
		}
		return []Section{{Index: 0, Text: body}}, nil
	}

	var sections []Section

	// Preamble before the first heading.
	if first := findHeadingByID(doc, string(tree.Items[0].ID)); first != nil {
		if pre := strings.TrimSpace(string(source[:lineStart(source, first.Lines().At(0).Start)])); pre != "" {
			sections = append(sections, Section{Index: 0, Text: pre})
		}
	}

	s.walk(doc, source, tree.Items, nil, &sections)
	return sections, nil
}

// walk visits TOC items depth-first, emitting one section per heading.
func (s *Splitter) walk(doc ast.Node, source []byte, items toc.Items, ancestors []string, out *[]Section) {
	for i, item := range items {
		path := make([]string, len(ancestors), len(ancestors)+1)
		copy(path, ancestors)
		path = append(path, string(item.Title))

		heading := findHeadingByID(doc, string(item.ID))
		if heading == nil {
			continue
		}

		start := heading.Lines().At(0)
		var end text.Segment
		if len(item.Items) > 0 {
			// Parent text stops where its first child starts.
			if child := findHeadingByID(doc, string(item.Items[0].ID)); child != nil {
				end = child.Lines().At(0)
			}
		} else if i+1 < len(items) {
			if next := findHeadingByID(doc, string(items[i+1].ID)); next != nil {
				end = next.Lines().At(0)
			}
		} else {
			end = nextBoundary(doc, heading, heading.(*ast.Heading).Level)
		}

		*out = append(*out, Section{
			Index:      len(*out),
			HeaderPath: formatHeaderPath(path),
			Text:       extract(source, start, end),
		})

		if len(item.Items) > 0 {
			s.walk(doc, source, item.Items, path, out)
		}
	}
}

// formatHeaderPath renders ["Part III", "Article 21"] as
// "# Part III > ## Article 21".
func formatHeaderPath(path []string) string {
	parts := make([]string, len(path))
	for i, title := range path {
		parts[i] = strings.Repeat("#", i+1) + " " + title
	}
	return strings.Join(parts, " > ")
}

func findHeadingByID(root ast.Node, id string) ast.Node {
	var found ast.Node
	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if v, ok := n.AttributeString("id"); ok {
			if b, ok := v.([]byte); ok && string(b) == id {
				found = n
				return ast.WalkStop, nil
			}
		}
		return ast.WalkContinue, nil
	})
	return found
}

// nextBoundary finds the first heading after current at the same or a
// higher level. A zero segment means "until end of document".
func nextBoundary(root, current ast.Node, level int) text.Segment {
	var next ast.Node
	seen := false

	ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || n.Kind() != ast.KindHeading {
			return ast.WalkContinue, nil
		}
		if !seen {
			seen = n == current
			return ast.WalkContinue, nil
		}
		if n.(*ast.Heading).Level <= level {
			next = n
			return ast.WalkStop, nil
		}
		return ast.WalkContinue, nil
	})

	if next != nil {
		return next.Lines().At(0)
	}
	return text.Segment{}
}

// extract returns the text from the line holding start up to the line
// holding end. Heading segments point at the title, after the "#" markers,
// so both bounds are widened to the beginning of their line.
func extract(source []byte, start, end text.Segment) string {
	from := lineStart(source, start.Start)
	if end.Start == 0 && end.Stop == 0 {
		return strings.TrimSpace(string(source[from:]))
	}
	return strings.TrimSpace(string(source[from:lineStart(source, end.Start)]))
}

func lineStart(source []byte, pos int) int {
	for pos > 0 && source[pos-1] != '\n' {
		pos--
	}
	return pos
}
