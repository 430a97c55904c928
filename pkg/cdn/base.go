package cdn

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/marmos91/dittocdn/internal/bufpool"
)

// Base carries the domain and scheme settings shared by every engine.
// Engines embed it and override Domains when they derive their domain from
// account identifiers.
type Base struct {
	Hosts []string
	SSL   bool
}

// Domains returns the configured hosts, skipping empty entries.
func (b Base) Domains() []string {
	out := make([]string, 0, len(b.Hosts))
	for _, h := range b.Hosts {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// FormatURL formats path against the configured hosts
func (b Base) FormatURL(path string) (string, bool) {
	return FormatURL(b.Domains(), b.SSL, path)
}

// Via returns the first domain, or "N/A".
func (b Base) Via() string {
	return ViaDomains(b.Domains())
}

// ViaDomains is the base Via label for a domain list.
func ViaDomains(domains []string) string {
	if len(domains) == 0 {
		return "N/A"
	}
	return domains[0]
}

// FormatURL builds scheme://domain/path. A path always maps to the same
// domain when several are configured. ok is false without domains.
func FormatURL(domains []string, ssl bool, path string) (string, bool) {
	domain, ok := DomainFor(domains, path)
	if !ok {
		return "", false
	}
	scheme := "http"
	if ssl {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, domain, strings.TrimLeft(path, "/")), true
}

// DomainFor picks the domain serving path.
func DomainFor(domains []string, path string) (string, bool) {
	switch len(domains) {
	case 0:
		return "", false
	case 1:
		return domains[0], true
	}
	idx := crc32.ChecksumIEEE([]byte(path)) % uint32(len(domains))
	return domains[idx], true
}

// RunBatch opens one session for the whole batch and applies each to every
// file. If open fails, every file halts with its error and each is never
// called.
func RunBatch[S any](ctx context.Context, files []File, open func(context.Context) (S, error), each func(context.Context, S, File) error) (int, []Result) {
	session, err := open(ctx)
	if err != nil {
		return HaltAll(files, err)
	}
	if c, ok := any(session).(io.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	results := make([]Result, 0, len(files))
	count := 0
	for _, f := range files {
		r := ForError(f, each(ctx, session, f))
		if r.Outcome == OutcomeOK {
			count++
		}
		results = append(results, r)
	}
	return count, results
}

// CheckSource returns ErrSourceNotFound if path is not a readable regular file.
func CheckSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrSourceNotFound
		}
		return fmt.Errorf("%w: %v", ErrSourceNotFound, err)
	}
	if info.IsDir() {
		return ErrSourceNotFound
	}
	return nil
}

// LocalMD5 returns the hex MD5 of the file at path.
func LocalMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	h := md5.New()
	if _, err := bufpool.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SameContent reports whether etag identifies the same bytes as the local
// file. Multipart etags ("<hash>-<parts>") never match.
func SameContent(localPath, etag string) (bool, error) {
	etag = strings.ToLower(strings.Trim(etag, `"`))
	if etag == "" || strings.Contains(etag, "-") {
		return false, nil
	}
	sum, err := LocalMD5(localPath)
	if err != nil {
		return false, err
	}
	return sum == etag, nil
}

