// Package rewrite redirects asset references in rendered markup to their
// CDN URLs. Detection is pattern based: each group is one regexp over
// quoted attribute values, and the rewriter never parses the document.
package rewrite

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/metrics"
	"github.com/marmos91/dittocdn/pkg/queue"
	"github.com/marmos91/dittocdn/pkg/site"
	"go.opentelemetry.io/otel/attribute"
)

// Default masks
const (
	DefaultIncludesMask = "*.css;*.js;*.gif;*.png;*.jpg"
	DefaultThemeMask    = "*.css;*.js;*.gif;*.png;*.jpg;*.ico"
)

// Group names, in rewrite order.
const (
	GroupUploads  = "uploads"
	GroupIncludes = "includes"
	GroupTheme    = "theme"
	GroupMinify   = "minify"
	GroupCustom   = "custom"
)

// Groups lists the group names in rewrite order.
func Groups() []string {
	return []string{GroupUploads, GroupIncludes, GroupTheme, GroupMinify, GroupCustom}
}

var markupRe = regexp.MustCompile(`(?i)<\?xml|<!doctype|<html`)

// refEnd requires a reference to stop at a delimiter, so "*.js" does not
// match the head of "data.json".
const refEnd = `(?:[\s"'>?#]|$)`

// IsMarkup reports whether buf looks like an HTML or XML document.
func IsMarkup(buf string) bool {
	return markupRe.MatchString(buf)
}

// Config selects the rewritten groups.
type Config struct {
	Uploads      bool     `mapstructure:"uploads" yaml:"uploads"`
	Includes     bool     `mapstructure:"includes" yaml:"includes"`
	IncludesMask string   `mapstructure:"includes_mask" yaml:"includes_mask"`
	Theme        bool     `mapstructure:"theme" yaml:"theme"`
	ThemeMask    string   `mapstructure:"theme_mask" yaml:"theme_mask"`
	Minify       bool     `mapstructure:"minify" yaml:"minify"`
	Custom       bool     `mapstructure:"custom" yaml:"custom"`
	CustomMasks  []string `mapstructure:"custom_masks" yaml:"custom_masks"`

	// Debug appends a comment listing the rewritten URLs.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// ApplyDefaults fills in the default masks.
func (c *Config) ApplyDefaults() {
	if c.IncludesMask == "" {
		c.IncludesMask = DefaultIncludesMask
	}
	if c.ThemeMask == "" {
		c.ThemeMask = DefaultThemeMask
	}
}

// Match is one rewritten reference.
type Match struct {
	Original    string `json:"original"`
	Replacement string `json:"replacement"`
}

// Output is the result of one render.
type Output struct {
	Body    string  `json:"body"`
	Matches []Match `json:"matches"`
}

type group struct {
	name string
	re   *regexp.Regexp
}

// Rewriter rewrites asset references to backend URLs.
type Rewriter struct {
	layout  *site.Layout
	backend cdn.Backend
	repo    queue.Repository
	groups  []group
	debug   bool
	metrics metrics.RewriteMetrics
}

// New builds the group regexps for layout. repo may be nil, in which case
// no reference is held back as undelivered. m may be nil.
func New(cfg Config, layout *site.Layout, backend cdn.Backend, repo queue.Repository, m metrics.RewriteMetrics) (*Rewriter, error) {
	cfg.ApplyDefaults()
	rw := &Rewriter{layout: layout, backend: backend, repo: repo, debug: cfg.Debug, metrics: m}

	add := func(name, path string) error {
		re, err := Compile(`(["'])((` + layout.ReferencePattern() + `)?/?(` + path + `))` + refEnd)
		if err != nil {
			return fmt.Errorf("%s group: %w", name, err)
		}
		rw.groups = append(rw.groups, group{name: name, re: re})
		return nil
	}

	if cfg.Uploads {
		if err := add(GroupUploads, regexp.QuoteMeta(layout.UploadsDir)+`[^"'>]+`); err != nil {
			return nil, err
		}
	}
	if cfg.Includes {
		if err := add(GroupIncludes, regexp.QuoteMeta(layout.IncludesDir)+`/(`+MaskToRegexp(cfg.IncludesMask)+`)`); err != nil {
			return nil, err
		}
	}
	if cfg.Theme {
		if err := add(GroupTheme, regexp.QuoteMeta(layout.ThemeDir)+`/(`+MaskToRegexp(cfg.ThemeMask)+`)`); err != nil {
			return nil, err
		}
	}
	if cfg.Minify {
		if err := add(GroupMinify, regexp.QuoteMeta(layout.MinifyDir)+`/[a-z0-9-_]+\.include(-footer)?(-nb)?\.(css|js)`); err != nil {
			return nil, err
		}
	}
	if cfg.Custom {
		var masks []string
		for _, mask := range cfg.CustomMasks {
			if mask = layout.StripSiteURL(strings.TrimSpace(mask)); mask != "" {
				masks = append(masks, MaskToRegexp(mask))
			}
		}
		if len(masks) > 0 {
			if err := add(GroupCustom, strings.Join(masks, "|")); err != nil {
				return nil, err
			}
		}
	}
	return rw, nil
}

// render is the state of one pass.
type render struct {
	ctx      context.Context
	rw       *Rewriter
	queued   map[string]struct{}
	loaded   bool
	err      error
	replaced map[string]string
	matches  []Match
}

// Rewrite returns buf with every eligible reference pointing at the
// backend. Non-markup input is returned unchanged. Repeats of a reference
// already rewritten in this pass are left as they are, so with debug off a
// second pass over the output changes nothing unless the input repeated a
// reference.
func (rw *Rewriter) Rewrite(ctx context.Context, buf string) (*Output, error) {
	if !IsMarkup(buf) {
		return &Output{Body: buf}, nil
	}

	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, telemetry.SpanRewrite, attribute.Int(telemetry.AttrRewriteBytes, len(buf)))
	defer span.End()

	r := &render{ctx: ctx, rw: rw, replaced: make(map[string]string)}
	for _, g := range rw.groups {
		buf = r.apply(g.re, buf)
		if r.err != nil {
			telemetry.RecordError(ctx, r.err)
			return nil, r.err
		}
	}

	if rw.debug {
		buf += "\r\n\r\n" + rw.debugInfo(r.matches)
	}

	telemetry.SetAttributes(ctx, attribute.Int(telemetry.AttrRewriteReplaced, len(r.matches)))
	metrics.ObserveRender(rw.metrics, time.Since(start), len(r.matches))
	logger.DebugCtx(ctx, "Rewrote references", logger.KeyCount, len(r.matches))

	return &Output{Body: buf, Matches: r.matches}, nil
}

// apply substitutes every eligible reference matched by re. Only the
// reference itself is replaced; the delimiter after it is kept.
func (r *render) apply(re *regexp.Regexp, buf string) string {
	locs := re.FindAllStringSubmatchIndex(buf, -1)
	if len(locs) == 0 {
		return buf
	}

	var b strings.Builder
	b.Grow(len(buf))
	last := 0
	for _, loc := range locs {
		quote := buf[loc[2]:loc[3]]
		ref := buf[loc[4]:loc[5]]
		path := buf[loc[8]:loc[9]]

		url, ok := r.replace(ref, path)
		if r.err != nil {
			return buf
		}
		if !ok {
			continue
		}
		b.WriteString(buf[last:loc[0]])
		b.WriteString(quote)
		b.WriteString(url)
		last = loc[5]
	}
	b.WriteString(buf[last:])
	return b.String()
}

// replace returns the CDN URL of ref, or false to leave it alone. Only the
// first occurrence of a reference in a pass is rewritten.
func (r *render) replace(ref, path string) (string, bool) {
	if _, ok := r.replaced[ref]; ok {
		return "", false
	}

	remote := r.rw.layout.RemotePath(path)
	if r.isQueued(remote) {
		return "", false
	}
	url, ok := r.rw.backend.FormatURL(remote)
	if !ok {
		return "", false
	}

	r.replaced[ref] = url
	r.matches = append(r.matches, Match{Original: ref, Replacement: url})
	return url, true
}

// isQueued loads the queued remote paths on first use.
func (r *render) isQueued(remote string) bool {
	if r.rw.repo == nil {
		return false
	}
	if !r.loaded {
		r.loaded = true
		r.queued, r.err = queue.RemotePaths(r.ctx, r.rw.repo)
		if r.err != nil {
			r.err = fmt.Errorf("failed to load queued paths: %w", r.err)
			return true
		}
	}
	_, ok := r.queued[remote]
	return ok
}

var commentEscaper = strings.NewReplacer("--", "- -")

func (rw *Rewriter) debugInfo(matches []Match) string {
	var b strings.Builder
	b.WriteString("<!-- dittocdn: CDN debug info:\r\n")
	fmt.Fprintf(&b, "%-20s%s\r\n", "Engine:", cdn.EngineName(rw.backend))
	fmt.Fprintf(&b, "%-20s%s\r\n", "Via:", commentEscaper.Replace(rw.backend.Via()))
	if len(matches) > 0 {
		b.WriteString("Replaced URLs:\r\n")
		for _, m := range matches {
			fmt.Fprintf(&b, "%s => %s\r\n", commentEscaper.Replace(m.Original), commentEscaper.Replace(m.Replacement))
		}
	}
	b.WriteString("-->")
	return b.String()
}
