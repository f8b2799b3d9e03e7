package transfer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/txtingest/internal/core"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDirClient_ListFetchDelete(t *testing.T) {
	remote := t.TempDir()
	local := t.TempDir()
	writeFile(t, filepath.Join(remote, "inbox", "b.rar"), "bbb")
	writeFile(t, filepath.Join(remote, "inbox", "a.rar"), "a")
	writeFile(t, filepath.Join(remote, "inbox", "notes.md"), "x")
	require.NoError(t, os.Mkdir(filepath.Join(remote, "inbox", "sub.rar"), 0o755))

	c := NewDirClient(remote, time.Minute)
	err := WithSession(context.Background(), c, func(s Session) error {
		entries, err := s.List(context.Background(), "inbox")
		require.NoError(t, err)
		entries = FilterSuffix(entries, []string{".RAR"})
		require.Len(t, entries, 2)
		assert.Equal(t, "a.rar", entries[0].Name)
		assert.Equal(t, "inbox/a.rar", entries[0].Path)
		assert.Equal(t, int64(3), entries[1].Size)

		dst := filepath.Join(local, "a.rar")
		require.NoError(t, s.Fetch(context.Background(), entries[0].Path, dst))
		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "a", string(data))
		assert.NoFileExists(t, dst+PartSuffix)

		require.NoError(t, s.Delete(context.Background(), entries[0].Path))
		assert.NoFileExists(t, filepath.Join(remote, "inbox", "a.rar"))
		return s.Delete(context.Background(), entries[0].Path)
	})
	require.NoError(t, err)
}

func TestDirClient_ConnectFailure(t *testing.T) {
	c := NewDirClient(filepath.Join(t.TempDir(), "missing"), 0)
	_, err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, core.ErrConnection), "got %v", err)
}

func TestDirClient_FetchMissingLeavesNothing(t *testing.T) {
	remote := t.TempDir()
	local := filepath.Join(t.TempDir(), "out.rar")

	s, err := NewDirClient(remote, 0).Connect(context.Background())
	require.NoError(t, err)
	defer s.Close()

	err = s.Fetch(context.Background(), "nope.rar", local)
	assert.True(t, errors.Is(err, core.ErrTransfer), "got %v", err)
	assert.NoFileExists(t, local)
	assert.NoFileExists(t, local+PartSuffix)
}

// blockingReader never returns until closed.
type blockingReader struct {
	closed chan struct{}
}

func (r *blockingReader) Read(p []byte) (int, error) {
	<-r.closed
	return 0, io.ErrClosedPipe
}

func (r *blockingReader) Close() error {
	select {
	case <-r.closed:
	default:
		close(r.closed)
	}
	return nil
}

func TestCopyFile_Timeout(t *testing.T) {
	local := filepath.Join(t.TempDir(), "slow.rar")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := copyFile(ctx, &blockingReader{closed: make(chan struct{})}, "slow.rar", local)
	assert.True(t, errors.Is(err, core.ErrTransferTimeout), "got %v", err)
	assert.NoFileExists(t, local)
	assert.NoFileExists(t, local+PartSuffix)
}

type fakeClient struct {
	session    *fakeSession
	connectErr error
}

func (c *fakeClient) Connect(context.Context) (Session, error) {
	if c.connectErr != nil {
		return nil, c.connectErr
	}
	return c.session, nil
}

type fakeSession struct {
	Session
	closed   int
	closeErr error
}

func (s *fakeSession) Close() error {
	s.closed++
	return s.closeErr
}

func TestWithSession_ClosesOnEveryPath(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		s := &fakeSession{}
		err := WithSession(context.Background(), &fakeClient{session: s}, func(Session) error { return nil })
		require.NoError(t, err)
		assert.Equal(t, 1, s.closed)
	})

	t.Run("callback error wins over close error", func(t *testing.T) {
		s := &fakeSession{closeErr: errors.New("close")}
		boom := errors.New("boom")
		err := WithSession(context.Background(), &fakeClient{session: s}, func(Session) error { return boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, s.closed)
	})

	t.Run("close error surfaces", func(t *testing.T) {
		s := &fakeSession{closeErr: errors.New("close")}
		err := WithSession(context.Background(), &fakeClient{session: s}, func(Session) error { return nil })
		assert.ErrorContains(t, err, "close session")
	})

	t.Run("panic still closes", func(t *testing.T) {
		s := &fakeSession{}
		assert.Panics(t, func() {
			_ = WithSession(context.Background(), &fakeClient{session: s}, func(Session) error { panic("x") })
		})
		assert.Equal(t, 1, s.closed)
	})

	t.Run("connect failure", func(t *testing.T) {
		called := false
		c := &fakeClient{connectErr: core.NewError(core.KindConnection, "", errors.New("refused"))}
		err := WithSession(context.Background(), c, func(Session) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, core.ErrConnection)
		assert.False(t, called)
	})
}

func TestFilterSuffix(t *testing.T) {
	entries := []Entry{{Name: "a.RAR"}, {Name: "b.zip"}, {Name: "c.txt"}}
	assert.Len(t, FilterSuffix(entries, nil), 3)
	got := FilterSuffix(entries, []string{".rar", ".zip"})
	require.Len(t, got, 2)
	assert.Equal(t, "b.zip", got[1].Name)
}

func TestSFTPClient_ConnectRefused(t *testing.T) {
	c := &SFTPClient{
		Addr:        "127.0.0.1:1",
		User:        "u",
		DialTimeout: time.Second,
		Logger:      discardLogger(),
	}
	_, err := c.Connect(context.Background())
	assert.True(t, errors.Is(err, core.ErrConnection), "got %v", err)
}

func TestBounded(t *testing.T) {
	t.Run("returns the result", func(t *testing.T) {
		v, err := bounded(context.Background(), core.KindTransferTimeout, "x", func() (int, error) {
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
	})

	t.Run("deadline", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := bounded(ctx, core.KindTransferTimeout, "x", func() (int, error) {
			<-release
			return 0, nil
		})
		assert.True(t, errors.Is(err, core.ErrTransferTimeout), "got %v", err)
	})

	t.Run("cancelled", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := bounded(ctx, core.KindTransferTimeout, "x", func() (int, error) {
			<-release
			return 0, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, core.KindOf(err))
	})
}

// stalledSFTP returns a client whose server completes the version
// handshake and then never answers another request.
func stalledSFTP(t *testing.T) *sftp.Client {
	t.Helper()
	clientR, serverW := io.Pipe()
	serverR, clientW := io.Pipe()

	go func() {
		var hdr [4]byte
		if _, err := io.ReadFull(serverR, hdr[:]); err != nil {
			return
		}
		if _, err := io.CopyN(io.Discard, serverR, int64(binary.BigEndian.Uint32(hdr[:]))); err != nil {
			return
		}
		// SSH_FXP_VERSION, protocol version 3.
		if _, err := serverW.Write([]byte{0, 0, 0, 5, 2, 0, 0, 0, 3}); err != nil {
			return
		}
		_, _ = io.Copy(io.Discard, serverR)
	}()

	c, err := sftp.NewClientPipe(clientR, clientW)
	require.NoError(t, err)
	t.Cleanup(func() {
		serverW.Close()
		c.Close()
	})
	return c
}

func TestSFTPSession_StalledServerTimesOut(t *testing.T) {
	s := &sftpSession{
		sftp:           stalledSFTP(t),
		fetchTimeout:   50 * time.Millisecond,
		requestTimeout: 50 * time.Millisecond,
	}
	ctx := context.Background()

	start := time.Now()
	_, err := s.List(ctx, "/drop")
	assert.True(t, errors.Is(err, core.ErrConnection), "list: got %v", err)

	local := filepath.Join(t.TempDir(), "ventas_01.txt")
	err = s.Fetch(ctx, "/drop/ventas_01.txt", local)
	assert.True(t, errors.Is(err, core.ErrTransferTimeout), "fetch: got %v", err)
	assert.NoFileExists(t, local)

	err = s.Delete(ctx, "/drop/ventas_01.txt")
	assert.True(t, errors.Is(err, core.ErrTransferTimeout), "delete: got %v", err)

	assert.Less(t, time.Since(start), 5*time.Second)
}
