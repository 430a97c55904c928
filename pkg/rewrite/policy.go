package rewrite

import (
	"regexp"
	"strings"

	"github.com/marmos91/dittocdn/pkg/metrics"
)

// Reject reasons
const (
	ReasonDisabled  = "CDN is disabled"
	ReasonAdmin     = "admin area"
	ReasonUserAgent = "user agent is rejected"
	ReasonURI       = "request URI is rejected"
)

// autoRejectURIs are never rewritten.
var autoRejectURIs = []string{"wp-login", "wp-register"}

// RequestInfo is what the policy needs from the request being rendered.
type RequestInfo struct {
	URI       string
	UserAgent string
}

// PolicyConfig configures which requests get rewritten.
type PolicyConfig struct {
	// Enabled mirrors cdn.enabled and AdminPath mirrors site.admin_path.
	Enabled   bool   `mapstructure:"-" yaml:"-" json:"-"`
	AdminPath string `mapstructure:"-" yaml:"-" json:"-"`

	// UserAgents are case-insensitive substrings of rejected User-Agents.
	UserAgents []string `mapstructure:"user_agents" yaml:"user_agents"`

	// URIs are case-insensitive regexps of rejected request URIs.
	URIs []string `mapstructure:"uris" yaml:"uris"`
}

// Policy decides whether a response may be rewritten.
type Policy struct {
	enabled    bool
	adminPath  string
	userAgents []string
	uris       []*regexp.Regexp
	metrics    metrics.RewriteMetrics
}

// NewPolicy compiles cfg. m may be nil.
func NewPolicy(cfg PolicyConfig, m metrics.RewriteMetrics) (*Policy, error) {
	p := &Policy{
		enabled:   cfg.Enabled,
		adminPath: strings.TrimRight(cfg.AdminPath, "/"),
		metrics:   m,
	}
	for _, ua := range cfg.UserAgents {
		if ua = strings.TrimSpace(ua); ua != "" {
			p.userAgents = append(p.userAgents, strings.ToLower(ua))
		}
	}
	for _, expr := range cfg.URIs {
		if expr = strings.TrimSpace(expr); expr == "" {
			continue
		}
		re, err := Compile("(?i)" + expr)
		if err != nil {
			return nil, err
		}
		p.uris = append(p.uris, re)
	}
	return p, nil
}

// Allow returns the reject reason, and false, when req must be served
// unchanged.
func (p *Policy) Allow(req RequestInfo) (string, bool) {
	reason := p.reject(req)
	if reason != "" {
		metrics.RecordRejected(p.metrics, reason)
		return reason, false
	}
	return "", true
}

func (p *Policy) reject(req RequestInfo) string {
	if !p.enabled {
		return ReasonDisabled
	}
	if p.adminPath != "" && strings.HasPrefix(req.URI, p.adminPath) {
		return ReasonAdmin
	}
	ua := strings.ToLower(req.UserAgent)
	for _, s := range p.userAgents {
		if strings.Contains(ua, s) {
			return ReasonUserAgent
		}
	}
	for _, s := range autoRejectURIs {
		if strings.Contains(req.URI, s) {
			return ReasonURI
		}
	}
	for _, re := range p.uris {
		if re.MatchString(req.URI) {
			return ReasonURI
		}
	}
	return ""
}
