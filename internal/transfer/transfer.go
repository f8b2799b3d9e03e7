// Package transfer moves files from the remote drop box to local raw storage.
//
// A Client opens a Session; every Session must be closed, which WithSession
// guarantees. Fetch writes to "<local>.part" and renames on success, so a
// file under its final local name is always complete.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/JonMunkholm/txtingest/internal/core"
)

// PartSuffix marks local files that are still being written.
const PartSuffix = ".part"

// Entry is one remote file.
type Entry struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Session is an open connection to the remote store.
type Session interface {
	// List returns the regular files directly under dir.
	List(ctx context.Context, dir string) ([]Entry, error)
	// Fetch copies remote to local. local exists only if the copy succeeded.
	Fetch(ctx context.Context, remote, local string) error
	Delete(ctx context.Context, remote string) error
	Close() error
}

// Client opens sessions.
type Client interface {
	Connect(ctx context.Context) (Session, error)
}

// WithSession connects, runs fn and closes the session on every path.
// A close failure is reported only when fn succeeded.
func WithSession(ctx context.Context, c Client, fn func(Session) error) (err error) {
	s, err := c.Connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close session: %w", cerr)
		}
	}()
	return fn(s)
}

// FilterSuffix keeps entries whose name ends in one of suffixes,
// case-insensitively. No suffixes keeps everything.
func FilterSuffix(entries []Entry, suffixes []string) []Entry {
	if len(suffixes) == 0 {
		return entries
	}
	var out []Entry
	for _, e := range entries {
		name := strings.ToLower(e.Name)
		for _, s := range suffixes {
			if strings.HasSuffix(name, strings.ToLower(s)) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// copyFile streams src into local through a .part file. The copy runs in
// its own goroutine so an expired ctx returns promptly even when the
// underlying read blocks.
func copyFile(ctx context.Context, src io.ReadCloser, name, local string) error {
	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		src.Close()
		return core.NewError(core.KindTransfer, name, err)
	}

	part := local + PartSuffix
	dst, err := os.Create(part)
	if err != nil {
		src.Close()
		return core.NewError(core.KindTransfer, name, err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := io.Copy(dst, src)
		if err == nil {
			err = dst.Sync()
		}
		done <- err
	}()

	select {
	case err = <-done:
		src.Close()
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
	case <-ctx.Done():
		// Closing both ends makes the copy goroutine fail and exit.
		src.Close()
		dst.Close()
		err = ctx.Err()
	}

	if err != nil {
		os.Remove(part)
		if errors.Is(err, context.DeadlineExceeded) {
			return core.NewError(core.KindTransferTimeout, name, err)
		}
		return core.NewError(core.KindTransfer, name, err)
	}

	if err := os.Rename(part, local); err != nil {
		os.Remove(part)
		return core.NewError(core.KindTransfer, name, err)
	}
	return nil
}

// bounded runs call in its own goroutine and returns once it finishes or
// ctx ends, whichever comes first. An exceeded deadline becomes an error of
// kind. pkg/sftp requests take no context; a call abandoned here is released
// when its session closes.
func bounded[T any](ctx context.Context, kind core.ErrorKind, name string, call func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := call()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return zero, core.NewError(kind, name, err)
		}
		return zero, err
	}
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
