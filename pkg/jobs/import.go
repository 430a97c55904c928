package jobs

import (
	"context"
	"errors"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/marmos91/dittocdn/internal/bufpool"
	"github.com/marmos91/dittocdn/internal/logger"
	"github.com/marmos91/dittocdn/internal/telemetry"
	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/site"
)

// Import messages
const (
	MsgExternalDisabled  = "external file import is disabled"
	MsgSourceExists      = "source file already exists"
	MsgDestinationExists = "destination file already exists"
	MsgDownloadFailed    = "unable to download file"
	MsgInsertFailed      = "unable to insert attachment"
	MsgOutsideRoot       = "source file is outside the document root"
)

var (
	referenceRe = regexp.MustCompile(`(href|src)=['"]?([^'"<>\s]+)['"]?`)
	schemeRe    = regexp.MustCompile(`(?i)^[a-z][a-z0-9+.-]*://`)
)

// Import copies the files referenced by the next page of posts into the
// uploads directory, registers them as attachments and points the
// references at the new copies.
func (r *Runner) Import(ctx context.Context, page Page) (*Report, error) {
	ctx, span := telemetry.StartJobSpan(ctx, telemetry.SpanJobImport, page.Limit, page.Offset)
	defer span.End()

	total, err := r.host.CountPosts(ctx)
	if err != nil {
		return nil, err
	}
	posts, err := r.host.ListPosts(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, err
	}

	report := &Report{Count: len(posts), Total: total, Results: []Item{}}
	for _, post := range posts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content := post.Content
		seen := make(map[string]bool)
		for _, m := range referenceRe.FindAllStringSubmatch(post.Content, -1) {
			ref := m[2]
			if seen[ref] {
				continue
			}
			seen[ref] = true

			src := r.layout.StripSiteURL(ref)
			if !r.importRe(src) {
				continue
			}
			item, url := r.importOne(ctx, post, src)
			if item.Outcome == cdn.OutcomeOK {
				content = strings.ReplaceAll(content, ref, url)
			}
			report.Results = append(report.Results, item)
		}

		if content != post.Content {
			if err := r.host.UpdatePostContent(ctx, post.ID, content); err != nil {
				return nil, err
			}
		}
	}
	return report, nil
}

// importOne brings src into the uploads month of post and returns the new
// URL on success.
func (r *Runner) importOne(ctx context.Context, post *site.Post, src string) (Item, string) {
	base := path.Base(stripQuery(src))
	month := post.Date.Format("2006/01")
	file := month + "/" + base
	dst := r.layout.Upload(file)
	dstPath := r.layout.LocalPath(dst)
	item := Item{Path: src, Target: dst, Outcome: cdn.OutcomeError}

	if _, err := os.Stat(dstPath); err == nil {
		item.Message = MsgDestinationExists
		return item, ""
	}

	var err error
	switch {
	case schemeRe.MatchString(src):
		if !r.cfg.Import.External {
			item.Message = MsgExternalDisabled
			return item, ""
		}
		err = r.downloader.Download(ctx, src, dstPath)
	case !strings.HasPrefix(src, r.layout.UploadsDir+"/"):
		rel, ok := localSource(src)
		if !ok {
			item.Message = MsgOutsideRoot
			return item, ""
		}
		err = copyFile(r.layout.LocalPath(rel), dstPath)
	default:
		item.Message = MsgSourceExists
		return item, ""
	}
	if err != nil {
		logger.WarnCtx(ctx, "Import failed", logger.KeyPath, src, logger.Err(err))
		item.Message = MsgDownloadFailed
		return item, ""
	}

	attachment := &site.Attachment{
		File:     file,
		Metadata: &site.AttachmentMetadata{File: file},
		Title:    base,
		MimeType: mime.TypeByExtension(path.Ext(base)),
		GUID:     r.layout.FileURL(r.layout.UploadsDir) + "/" + base,
	}
	if err := r.host.InsertAttachment(ctx, attachment); err != nil {
		logger.WarnCtx(ctx, "Import failed", logger.KeyPath, src, logger.Err(err))
		item.Message = MsgInsertFailed
		return item, ""
	}

	item.Outcome = cdn.OutcomeOK
	item.Message = cdn.MessageOK
	return item, r.layout.FileURL(dst)
}

func stripQuery(s string) string {
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		return s[:i]
	}
	return s
}

// localSource returns the site-relative path of a local reference, or false
// when it resolves outside the document root.
func localSource(src string) (string, bool) {
	rel := filepath.Clean(filepath.FromSlash(strings.TrimLeft(stripQuery(src), "/")))
	if !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	if info.IsDir() {
		return &fs.PathError{Op: "copy", Path: src, Err: errors.New("is a directory")}
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := bufpool.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
