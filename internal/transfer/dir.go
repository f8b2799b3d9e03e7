package transfer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/JonMunkholm/txtingest/internal/core"
)

// DirClient treats a local directory as the remote store. It is used for
// development, for drops mounted from a network share, and in tests.
type DirClient struct {
	Root         string
	FetchTimeout time.Duration
}

// NewDirClient returns a client rooted at root.
func NewDirClient(root string, fetchTimeout time.Duration) *DirClient {
	return &DirClient{Root: root, FetchTimeout: fetchTimeout}
}

// Connect fails with a connection error when the root is not a directory.
func (c *DirClient) Connect(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, core.NewError(core.KindConnection, "", err)
	}
	fi, err := os.Stat(c.Root)
	if err != nil {
		return nil, core.NewError(core.KindConnection, "", err)
	}
	if !fi.IsDir() {
		return nil, core.NewError(core.KindConnection, "", fmt.Errorf("%s is not a directory", c.Root))
	}
	return &dirSession{root: c.Root, fetchTimeout: c.FetchTimeout}, nil
}

type dirSession struct {
	root         string
	fetchTimeout time.Duration
}

// resolve maps a remote path onto the root. Remote paths are relative to
// the root; "." is the root itself.
func (s *dirSession) resolve(remote string) string {
	return filepath.Join(s.root, filepath.FromSlash(remote))
}

func (s *dirSession) List(ctx context.Context, dir string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	des, err := os.ReadDir(s.resolve(dir))
	if err != nil {
		return nil, core.NewError(core.KindTransfer, dir, fmt.Errorf("list: %w", err))
	}

	var entries []Entry
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		fi, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.ToSlash(filepath.Join(dir, de.Name())),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *dirSession) Fetch(ctx context.Context, remote, local string) error {
	ctx, cancel := withTimeout(ctx, s.fetchTimeout)
	defer cancel()

	src, err := os.Open(s.resolve(remote))
	if err != nil {
		return core.NewError(core.KindTransfer, filepath.Base(remote), fmt.Errorf("open remote: %w", err))
	}
	return copyFile(ctx, src, filepath.Base(remote), local)
}

func (s *dirSession) Delete(ctx context.Context, remote string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(s.resolve(remote)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return core.NewError(core.KindTransfer, filepath.Base(remote), fmt.Errorf("delete remote: %w", err))
	}
	return nil
}

func (s *dirSession) Close() error { return nil }
