// Package archive expands delivered archives into local raw storage.
//
// Members are first written to a hidden directory next to the destination
// and moved into place only when the whole archive expanded cleanly, so a
// half-extracted archive never feeds the decoder.
package archive

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/JonMunkholm/txtingest/internal/core"
)

// TempPrefix starts the name of in-progress extraction directories.
const TempPrefix = ".tmp-"

// Extractor expands one archive into destDir and returns the paths of the
// extracted files.
type Extractor interface {
	Expand(ctx context.Context, archive, destDir string) ([]string, error)
}

// expander writes every member of archive under dir.
type expander interface {
	expandInto(ctx context.Context, archive, dir string) error
}

// Multi picks the format by file suffix.
type Multi struct {
	formats map[string]expander
	order   []string
}

// New returns an extractor for RAR, ZIP and gzip-compressed tar archives.
func New() *Multi {
	m := &Multi{formats: make(map[string]expander)}
	m.register(".rar", rarExpander{})
	m.register(".zip", newZipExpander())
	// Longest suffix first so ".tar.gz" wins over a plain ".gz".
	m.register(".tar.gz", newTarGzExpander())
	m.register(".tgz", newTarGzExpander())
	return m
}

func (m *Multi) register(suffix string, e expander) {
	m.formats[suffix] = e
	m.order = append(m.order, suffix)
	sort.SliceStable(m.order, func(i, j int) bool { return len(m.order[i]) > len(m.order[j]) })
}

func (m *Multi) lookup(name string) (string, expander, bool) {
	lower := strings.ToLower(name)
	for _, suffix := range m.order {
		if strings.HasSuffix(lower, suffix) {
			return suffix, m.formats[suffix], true
		}
	}
	return "", nil, false
}

// Supports reports whether name has an archive suffix.
func (m *Multi) Supports(name string) bool {
	_, _, ok := m.lookup(name)
	return ok
}

// Suffixes lists the handled suffixes.
func (m *Multi) Suffixes() []string {
	return append([]string(nil), m.order...)
}

// DestDir returns the directory an archive expands into: its own path
// without the archive suffix.
func (m *Multi) DestDir(archive string) string {
	suffix, _, ok := m.lookup(archive)
	if !ok {
		return archive + ".d"
	}
	return archive[:len(archive)-len(suffix)]
}

// Expand extracts archive into destDir. On failure no member of this
// attempt is left in destDir and the error is an extraction error naming
// the archive.
func (m *Multi) Expand(ctx context.Context, archive, destDir string) ([]string, error) {
	name := filepath.Base(archive)
	_, e, ok := m.lookup(archive)
	if !ok {
		return nil, core.NewError(core.KindExtraction, name, fmt.Errorf("unsupported archive type"))
	}

	tmp := filepath.Join(filepath.Dir(destDir), TempPrefix+filepath.Base(destDir))
	if err := os.RemoveAll(tmp); err != nil {
		return nil, core.NewError(core.KindExtraction, name, err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, core.NewError(core.KindExtraction, name, err)
	}
	defer os.RemoveAll(tmp)

	if err := e.expandInto(ctx, archive, tmp); err != nil {
		return nil, core.NewError(core.KindExtraction, name, err)
	}

	members, err := moveTree(tmp, destDir)
	if err != nil {
		return nil, core.NewError(core.KindExtraction, name, err)
	}
	return members, nil
}

// moveTree moves every regular file under src to the same relative path
// under dst, replacing files left by an earlier interrupted run. If a move
// fails, the files already moved are removed from dst again.
func moveTree(src, dst string) ([]string, error) {
	var moved []string
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		if err := os.Rename(p, target); err != nil {
			return err
		}
		moved = append(moved, target)
		return nil
	})
	if err != nil {
		for _, m := range moved {
			os.Remove(m)
		}
		return nil, err
	}
	sort.Strings(moved)
	return moved, nil
}

// safeJoin joins a member name onto dir, rejecting names that escape it.
func safeJoin(dir, member string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(strings.ReplaceAll(member, `\`, "/")))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("member %q escapes the destination", member)
	}
	return filepath.Join(dir, clean), nil
}
