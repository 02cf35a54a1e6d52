package index

import (
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/bull/civic-assistant/internal/config"
)

const (
	dataFile     = "index.gob"
	manifestFile = "manifest.json"

	formatVersion = 1
)

// Manifest is the human-readable summary stored next to the vectors.
type Manifest struct {
	Format    int       `json:"format"`
	Provider  string    `json:"provider"`
	Dimension int       `json:"dimension"`
	Entries   int       `json:"entries"`
	BuiltAt   time.Time `json:"built_at"`
}

// Equal reports whether m and o describe the same build.
func (m Manifest) Equal(o Manifest) bool {
	return m.Format == o.Format && m.Provider == o.Provider && m.Dimension == o.Dimension &&
		m.Entries == o.Entries && m.BuiltAt.Equal(o.BuiltAt)
}

// snapshot is the gob payload.
type snapshot struct {
	Format    int
	Dimension int
	Entries   []Entry
}

// DimensionReporter is satisfied by embedding providers.
type DimensionReporter interface {
	Dimension() int
	Name() string
}

// Save writes the index to dir, recording provider in the manifest. Files
// are written to a temporary sibling directory which then replaces dir, so
// a failed save never leaves a partial index behind.
func (idx *Index) Save(dir, provider string) error {
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", parent, err)
	}

	tmp, err := os.MkdirTemp(parent, "."+filepath.Base(dir)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmp)

	manifest := Manifest{
		Format:    formatVersion,
		Provider:  provider,
		Dimension: idx.dim,
		Entries:   len(idx.entries),
		BuiltAt:   time.Now().UTC(),
	}

	if err := writeGob(filepath.Join(tmp, dataFile), snapshot{
		Format:    formatVersion,
		Dimension: idx.dim,
		Entries:   idx.entries,
	}); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(tmp, manifestFile), manifest); err != nil {
		return err
	}

	if err := swapDir(tmp, dir); err != nil {
		return err
	}
	idx.manifest = manifest
	return nil
}

// swapDir moves src into place at dst, replacing any existing directory.
func swapDir(src, dst string) error {
	var old string
	if _, err := os.Stat(dst); err == nil {
		old = dst + ".old-" + filepath.Base(src)
		if err := os.Rename(dst, old); err != nil {
			return fmt.Errorf("move aside %s: %w", dst, err)
		}
	}
	if err := os.Rename(src, dst); err != nil {
		if old != "" {
			os.Rename(old, dst)
		}
		return fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

func writeGob(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := gob.NewEncoder(f).Encode(v); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return f.Close()
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Exists reports whether dir holds a manifest.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, manifestFile))
	return err == nil
}

// ReadManifest reads only the manifest of the index in dir.
func ReadManifest(dir string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if errors.Is(err, fs.ErrNotExist) {
		return m, fmt.Errorf("%w: %s", ErrIndexNotFound, dir)
	}
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %s: bad manifest: %v", ErrIndexNotFound, dir, err)
	}
	return m, nil
}

// Load reads the index saved in dir. A missing, incomplete or undecodable
// directory yields ErrIndexNotFound.
func Load(dir string) (*Index, error) {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, dataFile))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: missing %s", ErrIndexNotFound, dir, dataFile)
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, fmt.Errorf("%w: %s: decode: %v", ErrIndexNotFound, dir, err)
	}
	if snap.Format != formatVersion || len(snap.Entries) != manifest.Entries || snap.Dimension != manifest.Dimension {
		return nil, fmt.Errorf("%w: %s: manifest does not match data", ErrIndexNotFound, dir)
	}

	idx, err := Build(snap.Entries)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIndexNotFound, dir, err)
	}
	idx.manifest = manifest
	return idx, nil
}

// LoadFor loads the index in dir and checks that its vectors match the
// dimension of the provider that will embed queries against it.
func LoadFor(dir string, provider DimensionReporter) (*Index, error) {
	idx, err := Load(dir)
	if err != nil {
		return nil, err
	}
	if err := CheckDimension(idx.Dimension(), provider); err != nil {
		return nil, err
	}
	return idx, nil
}

// CheckDimension compares a stored dimension against the provider's. Empty
// indexes and providers of unknown dimension always pass.
func CheckDimension(stored int, provider DimensionReporter) error {
	want := provider.Dimension()
	if stored == 0 || want == 0 || stored == want {
		return nil
	}
	return fmt.Errorf("%w: %w: index has %d dimensions, provider %s produces %d",
		config.ErrConfig, ErrDimensionMismatch, stored, provider.Name(), want)
}
