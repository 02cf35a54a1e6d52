package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v81/github"
)

// ErrNotFound is returned when the repository, ref or file does not exist.
var ErrNotFound = errors.New("github file not found")

// Location identifies one file in a repository.
type Location struct {
	Owner string
	Repo  string
	Path  string
	Ref   string // branch, tag or SHA; empty means the default branch
}

// ParseLocation parses "owner/repo/path/to/file[@ref]". The scheme prefix
// ("github://") must already be stripped.
func ParseLocation(s string) (Location, error) {
	var loc Location
	if at := strings.LastIndex(s, "@"); at >= 0 {
		loc.Ref = s[at+1:]
		s = s[:at]
	}

	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Location{}, fmt.Errorf("invalid github location %q: want owner/repo/path", s)
	}
	loc.Owner, loc.Repo, loc.Path = parts[0], parts[1], parts[2]
	return loc, nil
}

// String renders the location back in "owner/repo/path[@ref]" form.
func (l Location) String() string {
	s := l.Owner + "/" + l.Repo + "/" + l.Path
	if l.Ref != "" {
		s += "@" + l.Ref
	}
	return s
}

// FetchedFile is a file downloaded from GitHub
type FetchedFile struct {
	Location Location
	Content  []byte
	SHA      string // File's Git blob SHA
}

// Fetcher downloads single files through the contents API.
type Fetcher struct {
	client *Client
}

// NewFetcher creates a new file fetcher
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// FetchFile downloads the file at loc. Missing files wrap ErrNotFound.
func (f *Fetcher) FetchFile(ctx context.Context, loc Location) (*FetchedFile, error) {
	var opts *github.RepositoryContentGetOptions
	if loc.Ref != "" {
		opts = &github.RepositoryContentGetOptions{Ref: loc.Ref}
	}

	fileContent, dirContents, resp, err := f.client.Repositories.GetContents(
		ctx,
		loc.Owner,
		loc.Repo,
		loc.Path,
		opts,
	)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%s: %w", loc, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get content of %s: %w", loc, err)
	}

	if fileContent == nil {
		if dirContents != nil {
			return nil, fmt.Errorf("%s is a directory, not a file", loc)
		}
		return nil, fmt.Errorf("no file content returned for %s", loc)
	}

	// GetContent decodes the base64 payload.
	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", loc, err)
	}

	return &FetchedFile{
		Location: loc,
		Content:  []byte(content),
		SHA:      fileContent.GetSHA(),
	}, nil
}
