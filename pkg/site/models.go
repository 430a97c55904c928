package site

import (
	"path"
	"sort"
	"time"
)

// Post statuses and types
const (
	StatusPublish = "publish"
	TypePost      = "post"
)

// Attachment is a media library item.
type Attachment struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// File is the stored path of the original upload, usually relative to
	// the uploads directory.
	File string `gorm:"size:500" json:"file"`

	// Metadata is filled by the host when it generates size variants.
	Metadata *AttachmentMetadata `gorm:"serializer:json" json:"metadata,omitempty"`

	Title     string    `gorm:"size:255" json:"title"`
	MimeType  string    `gorm:"size:100" json:"mime_type"`
	GUID      string    `gorm:"size:500" json:"guid"`
	CreatedAt time.Time `json:"created_at"`
}

// AttachmentMetadata lists the primary file and its size variants.
type AttachmentMetadata struct {
	File  string            `json:"file"`
	Sizes map[string]string `json:"sizes,omitempty"` // size name -> file name in the same directory
}

// TableName sets the table name.
func (Attachment) TableName() string { return "site_attachments" }

// Post is a published piece of content whose body may reference assets.
type Post struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	Title   string    `gorm:"size:255" json:"title"`
	Content string    `gorm:"type:text" json:"content"`
	Status  string    `gorm:"size:20;index" json:"status"`
	Type    string    `gorm:"size:20;index" json:"type"`
	Date    time.Time `json:"date"`
}

// TableName sets the table name.
func (Post) TableName() string { return "site_posts" }

// Models returns the catalog models to auto-migrate.
func Models() []any {
	return []any{&Attachment{}, &Post{}}
}

// AttachmentFiles returns the site-relative files of an attachment: the
// primary file plus its size variants when metadata is present, else the
// normalized stored file.
func (l *Layout) AttachmentFiles(a *Attachment) []string {
	if a.Metadata != nil && a.Metadata.File != "" {
		file := l.NormalizeAttachmentFile(a.Metadata.File)
		files := []string{l.Upload(file)}
		dir := path.Dir(file)
		for _, size := range sortedSizes(a.Metadata.Sizes) {
			if dir == "." {
				files = append(files, l.Upload(size))
			} else {
				files = append(files, l.Upload(dir+"/"+size))
			}
		}
		return dedupe(files)
	}
	if a.File == "" {
		return nil
	}
	return []string{l.Upload(l.NormalizeAttachmentFile(a.File))}
}

func sortedSizes(sizes map[string]string) []string {
	names := make([]string, 0, len(sizes))
	for _, f := range sizes {
		if f != "" {
			names = append(names, f)
		}
	}
	sort.Strings(names)
	return names
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
