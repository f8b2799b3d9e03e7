// Package staging keeps decoded files on disk between decoding and
// persistence. Each artifact is one JSON file in the processed directory,
// named after its source file's path below the raw directory.
package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/JonMunkholm/txtingest/internal/core"
)

const (
	ext = ".json"

	// sep replaces path separators in artifact names.
	sep = "__"
)

// ErrConflict is returned when an artifact name is already taken by the
// artifact of a different source file.
var ErrConflict = errors.New("artifact name taken by another source")

// Dir is a staging directory.
type Dir struct {
	path string
	mu   sync.Mutex
}

// New returns the staging directory at path, creating it if needed.
func New(path string) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

// PathFor returns where the artifact for name is stored. name is the source
// file's slash-separated path relative to the raw directory, so files with
// the same base name in different folders get different artifacts.
func (d *Dir) PathFor(name string) string {
	return filepath.Join(d.path, artifactName(name)+ext)
}

func artifactName(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(filepath.Clean(name)), "./")
	return strings.ReplaceAll(name, "/", sep)
}

// Write stores the artifact under name (see PathFor). Rewriting the artifact
// of the same source replaces it; an artifact of another source is never
// overwritten. The file appears under its final name only once it is
// complete, so a crash never leaves a truncated artifact behind.
func (d *Dir) Write(name string, art *core.StagedArtifact) (string, error) {
	final := d.PathFor(name)

	tmp, err := os.CreateTemp(d.path, "."+artifactName(name)+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpPath := tmp.Name()

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(art); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("encode artifact %s: %w", art.Source, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("sync artifact %s: %w", art.Source, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("close artifact %s: %w", art.Source, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if prev, err := Read(final); err == nil && prev.SourcePath != art.SourcePath {
		os.Remove(tmpPath)
		return "", fmt.Errorf("stage %s: %w (%s)", name, ErrConflict, prev.SourcePath)
	}
	if err := os.Rename(tmpPath, final); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("publish artifact %s: %w", art.Source, err)
	}
	return final, nil
}

// Read loads an artifact file.
func Read(path string) (*core.StagedArtifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	var art core.StagedArtifact
	if err := json.NewDecoder(f).Decode(&art); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", filepath.Base(path), err)
	}
	return &art, nil
}

// List returns the complete artifacts in the directory, sorted by name.
// Temporary files of interrupted writes are ignored.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		return nil, fmt.Errorf("list staging dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ext) {
			continue
		}
		paths = append(paths, filepath.Join(d.path, name))
	}
	sort.Strings(paths)
	return paths, nil
}

// Remove deletes an artifact. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// Quarantine renames an artifact that cannot be read so later runs skip it
// while an operator can still inspect it. It returns the new path.
func Quarantine(path string) (string, error) {
	bad := path + ".bad"
	if err := os.Rename(path, bad); err != nil {
		return "", fmt.Errorf("quarantine artifact: %w", err)
	}
	return bad, nil
}

// CleanTemp removes leftovers of interrupted writes.
func (d *Dir) CleanTemp() (int, error) {
	matches, err := filepath.Glob(filepath.Join(d.path, ".*.tmp"))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			n++
		}
	}
	return n, nil
}
