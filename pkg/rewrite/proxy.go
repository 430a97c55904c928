package rewrite

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strconv"
	"strings"

	"github.com/marmos91/dittocdn/internal/bytesize"
	"github.com/marmos91/dittocdn/internal/logger"
)

// DefaultMaxBody bounds the responses the proxy buffers for rewriting.
const DefaultMaxBody = 16 * bytesize.MiB

// ProxyConfig configures the rewriting reverse proxy.
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Origin  string `mapstructure:"origin" yaml:"origin" validate:"required_if=Enabled true,omitempty,url"`

	// MaxBody is the largest response rewritten; bigger ones pass through.
	MaxBody bytesize.ByteSize `mapstructure:"max_body" yaml:"max_body"`
}

// NewProxy fronts origin, rewriting HTML and XML responses the policy
// allows.
func NewProxy(origin *url.URL, rw *Rewriter, policy *Policy, maxBody int64) *httputil.ReverseProxy {
	if maxBody <= 0 {
		maxBody = DefaultMaxBody.Int64()
	}
	proxy := httputil.NewSingleHostReverseProxy(origin)

	director := proxy.Director
	proxy.Director = func(req *http.Request) {
		director(req)
		// Compressed bodies cannot be matched.
		req.Header.Set("Accept-Encoding", "identity")
	}

	proxy.ModifyResponse = func(resp *http.Response) error {
		if !rewritable(resp, maxBody) {
			return nil
		}
		req := resp.Request
		if reason, ok := policy.Allow(RequestInfo{URI: req.URL.RequestURI(), UserAgent: req.UserAgent()}); !ok {
			logger.DebugCtx(req.Context(), "Response not rewritten", logger.KeyReason, reason, logger.KeyURL, req.URL.RequestURI())
			return nil
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody+1))
		if err != nil {
			_ = resp.Body.Close()
			return err
		}
		if int64(len(body)) > maxBody {
			resp.Body = struct {
				io.Reader
				io.Closer
			}{io.MultiReader(bytes.NewReader(body), resp.Body), resp.Body}
			return nil
		}
		_ = resp.Body.Close()

		out, err := rw.Rewrite(req.Context(), string(body))
		if err != nil {
			logger.WarnCtx(req.Context(), "Rewrite failed, serving origin body", logger.Err(err))
			setBody(resp, body)
			return nil
		}
		setBody(resp, []byte(out.Body))
		return nil
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorCtx(r.Context(), "Origin request failed", logger.Err(err), logger.KeyURL, r.URL.RequestURI())
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy
}

func rewritable(resp *http.Response, maxBody int64) bool {
	if resp.Request == nil || resp.Request.Method == http.MethodHead {
		return false
	}
	if resp.Header.Get("Content-Encoding") != "" {
		return false
	}
	if resp.ContentLength > maxBody {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml" ||
		strings.HasSuffix(mediaType, "/xml") || strings.HasSuffix(mediaType, "+xml")
}

func setBody(resp *http.Response, body []byte) {
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Set("Content-Length", strconv.Itoa(len(body)))
}
