// Package site describes the web site whose assets are offloaded: where
// its files live on disk, how they map to remote object keys and URLs, and
// the catalog of attachments and posts the bulk jobs walk.
package site

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/marmos91/dittocdn/pkg/cdn"
)

// Layout maps site-relative files to local paths, remote keys and URLs.
// Site-relative paths use forward slashes and no leading slash, for
// example "wp-content/uploads/2024/05/logo.png".
type Layout struct {
	// Root is the document root on disk.
	Root string `mapstructure:"root" yaml:"root" validate:"required"`

	// URL is the public site URL, e.g. https://example.com/blog.
	URL string `mapstructure:"url" yaml:"url" validate:"required,url"`

	UploadsDir  string `mapstructure:"uploads_dir" yaml:"uploads_dir"`
	IncludesDir string `mapstructure:"includes_dir" yaml:"includes_dir"`
	ThemeDir    string `mapstructure:"theme_dir" yaml:"theme_dir"`
	MinifyDir   string `mapstructure:"minify_dir" yaml:"minify_dir"`

	// AdminPath is the URI prefix of the admin area.
	AdminPath string `mapstructure:"admin_path" yaml:"admin_path"`
}

// ApplyDefaults fills in the conventional directory names.
func (l *Layout) ApplyDefaults() {
	if l.UploadsDir == "" {
		l.UploadsDir = "wp-content/uploads"
	}
	if l.IncludesDir == "" {
		l.IncludesDir = "wp-includes"
	}
	if l.ThemeDir == "" {
		l.ThemeDir = "wp-content/themes/default"
	}
	if l.MinifyDir == "" {
		l.MinifyDir = "wp-content/cache/minify"
	}
	if l.AdminPath == "" {
		l.AdminPath = "/wp-admin"
	}
	l.UploadsDir = strings.Trim(l.UploadsDir, "/")
	l.IncludesDir = strings.Trim(l.IncludesDir, "/")
	l.ThemeDir = strings.Trim(l.ThemeDir, "/")
	l.MinifyDir = strings.Trim(l.MinifyDir, "/")
	l.URL = strings.TrimRight(l.URL, "/")
}

func (l *Layout) parsed() *url.URL {
	u, err := url.Parse(l.URL)
	if err != nil {
		return &url.URL{}
	}
	return u
}

// Host returns the site host without a leading "www.".
func (l *Layout) Host() string {
	host := strings.ToLower(l.parsed().Host)
	return strings.TrimPrefix(host, "www.")
}

// SitePath returns the site's URL path with a trailing slash, or "" for a
// site served from the domain root.
func (l *Layout) SitePath() string {
	p := strings.Trim(l.parsed().Path, "/")
	if p == "" {
		return ""
	}
	return p + "/"
}

// LocalPath returns the absolute path of a site-relative file.
func (l *Layout) LocalPath(rel string) string {
	return filepath.Join(l.Root, filepath.FromSlash(strings.TrimLeft(rel, "/")))
}

// RemotePath returns the object key of a site-relative file.
func (l *Layout) RemotePath(rel string) string {
	return l.SitePath() + strings.TrimLeft(rel, "/")
}

// Relative converts an absolute local path back to a site-relative file.
func (l *Layout) Relative(local string) (string, bool) {
	rel, err := filepath.Rel(l.Root, local)
	if err != nil || rel == "." || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// FileURL returns the origin URL of a site-relative file.
func (l *Layout) FileURL(rel string) string {
	return l.URL + "/" + strings.TrimLeft(rel, "/")
}

// UploadsRoot returns the absolute uploads directory.
func (l *Layout) UploadsRoot() string {
	return l.LocalPath(l.UploadsDir)
}

// SiteURLPattern returns a regexp source, without capturing groups,
// matching the site URL with an optional "www." and either scheme.
func (l *Layout) SiteURLPattern() string {
	u := l.parsed()
	pattern := `https?://(?:www\.)?` + regexp.QuoteMeta(strings.TrimPrefix(strings.ToLower(u.Host), "www."))
	if p := strings.Trim(u.Path, "/"); p != "" {
		pattern += "/" + regexp.QuoteMeta(p)
	}
	return pattern
}

// ReferencePattern extends SiteURLPattern with the root-relative site path,
// so "/blog/wp-content/x.css" is recognised on a site served under /blog.
func (l *Layout) ReferencePattern() string {
	if sp := strings.TrimSuffix(l.SitePath(), "/"); sp != "" {
		return "(?:" + l.SiteURLPattern() + "|/" + regexp.QuoteMeta(sp) + ")"
	}
	return "(?:" + l.SiteURLPattern() + ")"
}

// StripSiteURL removes every occurrence of the site URL from s, case
// insensitively, and trims leading slashes.
func (l *Layout) StripSiteURL(s string) string {
	re := regexp.MustCompile("(?i)" + l.SiteURLPattern())
	return strings.TrimLeft(re.ReplaceAllString(s, ""), `/\`)
}

var attachmentFileRe = regexp.MustCompile(`(\d{4}/\d{2}/)?[^/]+$`)

// NormalizeAttachmentFile reduces a stored attachment path to its
// uploads-relative form ("2024/05/logo.png"), dropping absolute prefixes
// left by moved installations.
func (l *Layout) NormalizeAttachmentFile(file string) string {
	file = filepath.ToSlash(file)
	file = strings.Replace(file, filepath.ToSlash(l.UploadsRoot()), "", 1)
	file = strings.TrimLeft(file, `/\`)
	if m := attachmentFileRe.FindString(file); m != "" {
		return m
	}
	return file
}

// Upload returns the site-relative path of an uploads-relative file.
func (l *Layout) Upload(file string) string {
	return l.UploadsDir + "/" + strings.TrimLeft(file, "/")
}

// String implements fmt.Stringer
func (l *Layout) String() string {
	return fmt.Sprintf("%s (%s)", l.URL, l.Root)
}

// File returns the transfer request of a site-relative file.
func (l *Layout) File(rel string) cdn.File {
	return cdn.File{Local: l.LocalPath(rel), Remote: l.RemotePath(rel)}
}

// Files maps site-relative files to transfer requests.
func (l *Layout) Files(rels []string) []cdn.File {
	files := make([]cdn.File, len(rels))
	for i, rel := range rels {
		files[i] = l.File(rel)
	}
	return files
}
