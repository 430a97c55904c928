package jobs

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/marmos91/dittocdn/pkg/rewrite"
)

var minifyFileRe = regexp.MustCompile(`^[a-z0-9-_]+\.include(-footer)?(-nb)?\.(css|js)$`)

// Discover lists the site-relative files of a static group: includes,
// theme, minify or custom.
func (r *Runner) Discover(ctx context.Context, group string) ([]string, error) {
	groups := r.cfg.Groups
	switch group {
	case rewrite.GroupIncludes:
		return r.searchMask(ctx, r.layout.IncludesDir, groups.IncludesMask)
	case rewrite.GroupTheme:
		return r.searchMask(ctx, r.layout.ThemeDir, groups.ThemeMask)
	case rewrite.GroupMinify:
		return r.search(ctx, r.layout.MinifyDir, minifyFileRe)
	case rewrite.GroupCustom:
		var files []string
		for _, mask := range groups.CustomMasks {
			mask = r.layout.StripSiteURL(strings.TrimSpace(mask))
			if mask == "" {
				continue
			}
			dir := path.Dir(mask)
			if dir == "." {
				dir = ""
			}
			found, err := r.searchMask(ctx, dir, path.Base(mask))
			if err != nil {
				return nil, err
			}
			files = append(files, found...)
		}
		return files, nil
	default:
		return nil, fmt.Errorf("unknown file group %q (valid: includes, theme, minify, custom)", group)
	}
}

func (r *Runner) searchMask(ctx context.Context, dir, mask string) ([]string, error) {
	re, err := rewrite.CompileMask(mask)
	if err != nil {
		return nil, err
	}
	return r.search(ctx, dir, re)
}

// search walks dir recursively and returns the files whose name matches re.
// A missing directory yields no files.
func (r *Runner) search(ctx context.Context, dir string, re *regexp.Regexp) ([]string, error) {
	root := r.layout.LocalPath(dir)
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !re.MatchString(d.Name()) {
			return nil
		}
		if rel, ok := r.layout.Relative(p); ok {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
