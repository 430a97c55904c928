// Package ftp publishes files to a web server over FTP, for CDNs that pull
// from an FTP-fed origin or accept FTP pushes directly.
package ftp

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jlaffaye/ftp"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

const engine = "ftp"

// Config holds configuration for the FTP engine.
type Config struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`

	// Path is the remote directory remote paths are relative to.
	Path string `mapstructure:"path" yaml:"path"`

	// ExplicitTLS upgrades the control connection with AUTH TLS.
	ExplicitTLS bool `mapstructure:"explicit_tls" yaml:"explicit_tls"`

	// DisableEPSV forces PASV for servers that mishandle EPSV.
	DisableEPSV bool `mapstructure:"disable_epsv" yaml:"disable_epsv"`

	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	Domains []string `mapstructure:"domains" yaml:"domains"`
	SSL     bool     `mapstructure:"ssl" yaml:"ssl"`
}

// Validate checks the fields required before dialing.
func (c Config) Validate() error {
	switch {
	case c.Host == "":
		return cdn.NewValidationError(engine, "host", "empty host")
	case c.Username == "":
		return cdn.NewValidationError(engine, "username", "empty username")
	}
	return nil
}

// Backend is the FTP engine. Every batch uses its own connection.
type Backend struct {
	cdn.Base
	cfg Config
}

var _ cdn.Backend = (*Backend)(nil)

// New creates the engine.
func New(cfg Config) *Backend {
	if cfg.Port == 0 {
		cfg.Port = 21
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Backend{Base: cdn.Base{Hosts: cfg.Domains, SSL: cfg.SSL}, cfg: cfg}
}

// Engine implements cdn.Named
func (b *Backend) Engine() string { return engine }

type session struct {
	conn *ftp.ServerConn
	root string
}

// Close ends the FTP session.
func (s *session) Close() error {
	return s.conn.Quit()
}

func (b *Backend) open(ctx context.Context) (*session, error) {
	if err := b.cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []ftp.DialOption{
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(b.cfg.Timeout),
		ftp.DialWithDisabledEPSV(b.cfg.DisableEPSV),
	}
	if b.cfg.ExplicitTLS {
		opts = append(opts, ftp.DialWithExplicitTLS(&tls.Config{ServerName: b.cfg.Host}))
	}

	addr := net.JoinHostPort(b.cfg.Host, strconv.Itoa(b.cfg.Port))
	conn, err := ftp.Dial(addr, opts...)
	if err != nil {
		return nil, cdn.NewHaltError(engine, fmt.Errorf("unable to connect to %s (%v)", addr, err))
	}
	if err := conn.Login(b.cfg.Username, b.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, cdn.NewHaltError(engine, fmt.Errorf("incorrect login or password (%v)", err))
	}

	root := "/" + strings.Trim(b.cfg.Path, "/")
	if b.cfg.Path != "" {
		if err := conn.ChangeDir(root); err != nil {
			_ = conn.Quit()
			return nil, cdn.NewHaltError(engine, fmt.Errorf("unable to change directory to %s (%v)", root, err))
		}
	}
	return &session{conn: conn, root: root}, nil
}

func (s *session) remotePath(remote string) string {
	return path.Join(s.root, strings.TrimLeft(remote, "/"))
}

// mkdirAll creates every missing directory of dir. Errors from existing
// directories are expected and ignored; the following STOR reports any
// real failure.
func (s *session) mkdirAll(dir string) {
	cur := ""
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		cur += "/" + part
		_ = s.conn.MakeDir(cur)
	}
}

func isNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

// Upload implements cdn.Backend. FTP servers expose no content hash, so a
// remote file of the same size is treated as already published.
func (b *Backend) Upload(ctx context.Context, files []cdn.File, force bool) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(_ context.Context, s *session, f cdn.File) error {
		if err := cdn.CheckSource(f.Local); err != nil {
			return err
		}
		target := s.remotePath(f.Remote)

		if !force {
			info, err := os.Stat(f.Local)
			if err != nil {
				return cdn.NewItemError("get object info", f.Remote, err)
			}
			if size, err := s.conn.FileSize(target); err == nil && size == info.Size() {
				return cdn.ErrAlreadyExists
			}
		}

		file, err := os.Open(f.Local)
		if err != nil {
			return cdn.NewItemError("put object", f.Remote, err)
		}
		defer func() { _ = file.Close() }()

		s.mkdirAll(path.Dir(target))
		if err := s.conn.Stor(target, file); err != nil {
			return cdn.NewItemError("put object", f.Remote, err)
		}
		return nil
	})
}

// Delete implements cdn.Backend
func (b *Backend) Delete(ctx context.Context, files []cdn.File) (int, []cdn.Result) {
	return cdn.RunBatch(ctx, files, b.open, func(_ context.Context, s *session, f cdn.File) error {
		if err := s.conn.Delete(s.remotePath(f.Remote)); err != nil {
			if isNotFound(err) {
				return cdn.NewItemError("delete object", f.Remote, cdn.ErrNotFound)
			}
			return cdn.NewItemError("delete object", f.Remote, err)
		}
		return nil
	})
}

// Test implements cdn.Backend
func (b *Backend) Test(ctx context.Context) error {
	s, err := b.open(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	name := "test_ftp_" + uuid.NewString()
	target := s.remotePath(name)
	payload := []byte(name)

	if err := s.conn.Stor(target, bytes.NewReader(payload)); err != nil {
		return fmt.Errorf("unable to upload file (%v)", err)
	}

	resp, err := s.conn.Retr(target)
	if err != nil {
		return fmt.Errorf("unable to download file (%v)", err)
	}
	data, err := io.ReadAll(resp)
	_ = resp.Close()
	if err != nil {
		return fmt.Errorf("unable to download file (%v)", err)
	}

	if err := s.conn.Delete(target); err != nil {
		return fmt.Errorf("unable to delete file (%v)", err)
	}
	if !bytes.Equal(data, payload) {
		return cdn.ErrProbeMismatch
	}
	return nil
}

// Via implements cdn.Backend
func (b *Backend) Via() string {
	return fmt.Sprintf("Self-hosted / file transfer protocol upload: %s", b.Base.Via())
}
