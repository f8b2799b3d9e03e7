package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path"
	"sort"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/JonMunkholm/txtingest/internal/config"
	"github.com/JonMunkholm/txtingest/internal/core"
)

// SFTPClient connects to the remote drop box over SSH.
type SFTPClient struct {
	Addr       string
	User       string
	Password   string
	KnownHosts string

	// DialTimeout bounds the TCP connect and SSH handshake.
	DialTimeout time.Duration
	// FetchTimeout bounds each Fetch.
	FetchTimeout time.Duration
	// RequestTimeout bounds listing and deleting. Defaults to DialTimeout.
	RequestTimeout time.Duration

	Logger *slog.Logger
}

// NewSFTPClient builds a client from the transfer configuration.
func NewSFTPClient(cfg config.TransferConfig, logger *slog.Logger) *SFTPClient {
	return &SFTPClient{
		Addr:         cfg.Addr(),
		User:         cfg.User,
		Password:     cfg.Password,
		KnownHosts:   cfg.KnownHosts,
		DialTimeout:  cfg.ConnectTimeout,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       logger,
	}
}

func (c *SFTPClient) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if c.KnownHosts != "" {
		return knownhosts.New(c.KnownHosts)
	}
	c.Logger.Warn("host key verification disabled, set SFTP_KNOWN_HOSTS", "addr", c.Addr)
	return ssh.InsecureIgnoreHostKey(), nil
}

// Connect dials the server. Any failure, including an exceeded dial
// timeout, is a connection error.
func (c *SFTPClient) Connect(ctx context.Context) (Session, error) {
	hostKey, err := c.hostKeyCallback()
	if err != nil {
		return nil, core.NewError(core.KindConnection, "", fmt.Errorf("load known hosts: %w", err))
	}

	ctx, cancel := withTimeout(ctx, c.DialTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return nil, core.NewError(core.KindConnection, "", fmt.Errorf("dial %s: %w", c.Addr, err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	sshConf := &ssh.ClientConfig{
		User:            c.User,
		Auth:            []ssh.AuthMethod{ssh.Password(c.Password)},
		HostKeyCallback: hostKey,
		Timeout:         c.DialTimeout,
	}
	sc, chans, reqs, err := ssh.NewClientConn(conn, c.Addr, sshConf)
	if err != nil {
		conn.Close()
		return nil, core.NewError(core.KindConnection, "", fmt.Errorf("ssh handshake: %w", err))
	}
	// Handshake done; later calls are bounded by their own contexts.
	_ = conn.SetDeadline(time.Time{})

	sshClient := ssh.NewClient(sc, chans, reqs)
	client, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, core.NewError(core.KindConnection, "", fmt.Errorf("start sftp: %w", err))
	}

	c.Logger.Debug("sftp connected", "addr", c.Addr, "user", c.User)
	requestTimeout := c.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = c.DialTimeout
	}
	return &sftpSession{
		ssh:            sshClient,
		sftp:           client,
		fetchTimeout:   c.FetchTimeout,
		requestTimeout: requestTimeout,
	}, nil
}

type sftpSession struct {
	ssh            *ssh.Client
	sftp           *sftp.Client
	fetchTimeout   time.Duration
	requestTimeout time.Duration
}

// List fails with a connection error when the server stops answering.
func (s *sftpSession) List(ctx context.Context, dir string) ([]Entry, error) {
	ctx, cancel := withTimeout(ctx, s.requestTimeout)
	defer cancel()

	infos, err := bounded(ctx, core.KindConnection, dir, func() ([]os.FileInfo, error) {
		return s.sftp.ReadDir(dir)
	})
	if err != nil {
		if core.KindOf(err) != "" || ctx.Err() != nil {
			return nil, err
		}
		return nil, core.NewError(core.KindTransfer, dir, fmt.Errorf("list: %w", err))
	}

	var entries []Entry
	for _, fi := range infos {
		if !fi.Mode().IsRegular() {
			continue
		}
		entries = append(entries, Entry{
			Name:    fi.Name(),
			Path:    path.Join(dir, fi.Name()),
			Size:    fi.Size(),
			ModTime: fi.ModTime(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (s *sftpSession) Fetch(ctx context.Context, remote, local string) error {
	ctx, cancel := withTimeout(ctx, s.fetchTimeout)
	defer cancel()

	name := path.Base(remote)
	src, err := bounded(ctx, core.KindTransferTimeout, name, func() (*sftp.File, error) {
		return s.sftp.Open(remote)
	})
	if err != nil {
		if core.KindOf(err) != "" || ctx.Err() != nil {
			return err
		}
		return core.NewError(core.KindTransfer, name, fmt.Errorf("open remote: %w", err))
	}
	return copyFile(ctx, src, name, local)
}

func (s *sftpSession) Delete(ctx context.Context, remote string) error {
	ctx, cancel := withTimeout(ctx, s.requestTimeout)
	defer cancel()

	name := path.Base(remote)
	_, err := bounded(ctx, core.KindTransferTimeout, name, func() (struct{}, error) {
		return struct{}{}, s.sftp.Remove(remote)
	})
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if core.KindOf(err) != "" || ctx.Err() != nil {
		return err
	}
	return core.NewError(core.KindTransfer, name, fmt.Errorf("delete remote: %w", err))
}

func (s *sftpSession) Close() error {
	return errors.Join(s.sftp.Close(), s.ssh.Close())
}
