// Package loader turns a source document into ordered, page- or
// section-level segments for the chunker.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/bull/civic-assistant/internal/github"
	"github.com/bull/civic-assistant/internal/markdown"
)

// GitHubScheme prefixes remote documents: github://owner/repo/path[@ref].
const GitHubScheme = "github://"

// ErrDocumentNotFound is returned when the source document does not exist.
// It wraps fs.ErrNotExist.
var ErrDocumentNotFound = fmt.Errorf("document not found: %w", fs.ErrNotExist)

// Segment is one logical unit of a document: a PDF page, a form-feed
// separated text page, or a markdown H1/H2 section.
type Segment struct {
	Text    string
	Source  string
	Page    int    // 1-based
	Section string // markdown header path, empty for other formats
}

// RemoteFetcher downloads a single file from a GitHub repository.
type RemoteFetcher interface {
	FetchFile(ctx context.Context, loc github.Location) (*github.FetchedFile, error)
}

// Loader reads local files and, when a RemoteFetcher is configured,
// github:// documents.
type Loader struct {
	remote   RemoteFetcher
	splitter *markdown.Splitter
	logger   *slog.Logger
}

// New creates a Loader. remote may be nil, in which case github:// URIs
// are rejected.
func New(remote RemoteFetcher, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		remote:   remote,
		splitter: markdown.NewSplitter(),
		logger:   logger,
	}
}

// Load reads the document at uri and returns its segments in document order.
func (l *Loader) Load(ctx context.Context, uri string) ([]Segment, error) {
	var (
		data []byte
		name string
		err  error
	)

	if rest, ok := strings.CutPrefix(uri, GitHubScheme); ok {
		data, name, err = l.fetchRemote(ctx, rest)
	} else {
		data, err = os.ReadFile(uri)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
		}
		name = uri
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", uri, err)
	}

	segments, err := l.parse(data, name, uri)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", uri, err)
	}

	l.logger.Info("document loaded", "source", uri, "segments", len(segments), "bytes", len(data))
	return segments, nil
}

func (l *Loader) fetchRemote(ctx context.Context, location string) ([]byte, string, error) {
	if l.remote == nil {
		return nil, "", fmt.Errorf("github sources are not configured")
	}
	loc, err := github.ParseLocation(location)
	if err != nil {
		return nil, "", err
	}
	file, err := l.remote.FetchFile(ctx, loc)
	if errors.Is(err, github.ErrNotFound) {
		return nil, "", fmt.Errorf("%w: %s%s", ErrDocumentNotFound, GitHubScheme, location)
	}
	if err != nil {
		return nil, "", err
	}
	return file.Content, loc.Path, nil
}

// parse dispatches on the file extension of name.
func (l *Loader) parse(data []byte, name, source string) ([]Segment, error) {
	switch strings.ToLower(path.Ext(name)) {
	case ".pdf":
		return parsePDF(data, source)
	case ".md", ".markdown":
		return l.parseMarkdown(data, source)
	default:
		return parseText(data, source), nil
	}
}

// parseText splits plain text into pages on form feeds.
func parseText(data []byte, source string) []Segment {
	pages := strings.Split(string(data), "\f")
	segments := make([]Segment, 0, len(pages))
	for i, page := range pages {
		segments = append(segments, Segment{Text: page, Source: source, Page: i + 1})
	}
	return segments
}

// parsePDF returns one segment per page. The pdf package panics on some
// malformed object structures; those become ordinary errors.
func parsePDF(data []byte, source string) (segments []Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			segments, err = nil, fmt.Errorf("open pdf: malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := r.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("open pdf: no pages")
	}
	segments = make([]Segment, 0, n)
	for i := 1; i <= n; i++ {
		p := r.Page(i)
		var text string
		if !p.V.IsNull() {
			text, err = p.GetPlainText(nil)
			if err != nil {
				return nil, fmt.Errorf("page %d: %w", i, err)
			}
		}
		segments = append(segments, Segment{Text: text, Source: source, Page: i})
	}
	return segments, nil
}

func (l *Loader) parseMarkdown(data []byte, source string) ([]Segment, error) {
	sections, err := l.splitter.Split(data)
	if err != nil {
		return nil, err
	}
	segments := make([]Segment, 0, len(sections))
	for _, s := range sections {
		segments = append(segments, Segment{
			Text:    s.Text,
			Source:  source,
			Page:    s.Index + 1,
			Section: s.HeaderPath,
		})
	}
	return segments, nil
}
