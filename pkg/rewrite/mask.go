package rewrite

import (
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const maskCacheSize = 256

// compiled holds regexps by source; masks are reused across renders and
// discovery walks.
var compiled *lru.Cache[string, *regexp.Regexp]

func init() {
	c, err := lru.New[string, *regexp.Regexp](maskCacheSize)
	if err != nil {
		panic(err)
	}
	compiled = c
}

// MaskToRegexp translates a file mask to a regexp fragment. "*" matches one
// or more characters that cannot end a quoted attribute, "?" exactly one,
// "[...]" classes are kept as written and ";" separates alternatives.
// Everything else is matched literally.
func MaskToRegexp(mask string) string {
	var b strings.Builder
	for i := 0; i < len(mask); i++ {
		c := mask[i]
		switch c {
		case '*':
			b.WriteString(`[^\s"'>]+`)
		case '?':
			b.WriteString(`[^\s"'>]`)
		case ';':
			b.WriteByte('|')
		case '[':
			if end := strings.IndexByte(mask[i+1:], ']'); end > 0 {
				b.WriteString(mask[i : i+end+2])
				i += end + 1
				continue
			}
			b.WriteString(`\[`)
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// Compile returns the compiled regexp for pattern, from cache when possible.
func Compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := compiled.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	compiled.Add(pattern, re)
	return re, nil
}

// CompileMask returns a case-insensitive regexp matching a whole name
// against mask.
func CompileMask(mask string) (*regexp.Regexp, error) {
	return Compile("(?i)^(?:" + MaskToRegexp(mask) + ")$")
}
