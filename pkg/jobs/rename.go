package jobs

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/cdn"
)

var wwwRe = regexp.MustCompile(`(?i)www\.`)

// Rename points upload references to any of the old domain names at the
// current site URL, for the next page of posts.
func (r *Runner) Rename(ctx context.Context, names []string, page Page) (*Report, error) {
	ctx, span := telemetry.StartJobSpan(ctx, telemetry.SpanJobRename, page.Limit, page.Offset)
	defer span.End()

	re, err := r.renamePattern(names)
	if err != nil {
		return nil, err
	}

	total, err := r.host.CountPosts(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := r.host.ListPosts(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	prefix := r.layout.FileURL(r.layout.UploadsDir)
	report := &Report{Count: len(posts), Total: total, Results: []Item{}}
	for _, post := range posts {
		content := post.Content
		seen := make(map[string]bool)
		for _, m := range re.FindAllStringSubmatch(post.Content, -1) {
			old := m[2]
			if seen[old] {
				continue
			}
			seen[old] = true

			renamed := prefix + m[5]
			content = strings.ReplaceAll(content, old, renamed)
			report.Results = append(report.Results, Item{
				Path:    old,
				Target:  renamed,
				Outcome: cdn.OutcomeOK,
				Message: cdn.MessageOK,
			})
		}
		if content != post.Content {
			if err := r.host.UpdatePostContent(ctx, post.ID, content); err != nil {
				return nil, err
			}
		}
	}
	return report, nil
}

func (r *Runner) renamePattern(names []string) (*regexp.Regexp, error) {
	var quoted []string
	for _, name := range names {
		name = strings.Trim(wwwRe.ReplaceAllString(strings.TrimSpace(name), ""), "/")
		if name != "" {
			quoted = append(quoted, regexp.QuoteMeta(name))
		}
	}
	if len(quoted) == 0 {
		return nil, fmt.Errorf("no domain names given")
	}
	return regexp.Compile(`(?i)(href|src)=['"]?(https?://(www\.)?(` + strings.Join(quoted, "|") + `)/` +
		regexp.QuoteMeta(r.layout.UploadsDir) + `([^'"<>\s]+))['"]`)
}
