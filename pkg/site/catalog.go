package site

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrNotFound is returned for unknown attachment or post ids.
var ErrNotFound = errors.New("not found")

// Catalog reads and updates attachments and posts through GORM.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog wraps db, creating the catalog tables if needed.
func NewCatalog(db *gorm.DB) (*Catalog, error) {
	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, fmt.Errorf("failed to migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

func (c *Catalog) attachments(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).Model(&Attachment{}).
		Where("file <> '' OR metadata IS NOT NULL")
}

// referencingPosts selects published posts whose body has src= or href=.
func (c *Catalog) referencingPosts(ctx context.Context) *gorm.DB {
	return c.db.WithContext(ctx).Model(&Post{}).
		Where("status = ? AND type = ?", StatusPublish, TypePost).
		Where("content LIKE ? OR content LIKE ?", "%src=%", "%href=%")
}

// CountAttachments returns the number of attachments with a stored file.
func (c *Catalog) CountAttachments(ctx context.Context) (int, error) {
	var n int64
	if err := c.attachments(ctx).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count attachments: %w", err)
	}
	return int(n), nil
}

// ListAttachments returns a page of attachments ordered by id.
func (c *Catalog) ListAttachments(ctx context.Context, limit, offset int) ([]*Attachment, error) {
	var out []*Attachment
	q := c.attachments(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	return out, nil
}

// GetAttachment returns one attachment.
func (c *Catalog) GetAttachment(ctx context.Context, id uint) (*Attachment, error) {
	var a Attachment
	err := c.db.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get attachment %d: %w", id, err)
	}
	return &a, nil
}

// InsertAttachment stores a new attachment and sets its id.
func (c *Catalog) InsertAttachment(ctx context.Context, a *Attachment) error {
	if err := c.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// DeleteAttachment removes an attachment record.
func (c *Catalog) DeleteAttachment(ctx context.Context, id uint) error {
	res := c.db.WithContext(ctx).Delete(&Attachment{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete attachment %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CountPosts returns the number of published posts referencing assets.
func (c *Catalog) CountPosts(ctx context.Context) (int, error) {
	var n int64
	if err := c.referencingPosts(ctx).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return int(n), nil
}

// ListPosts returns a page of published posts referencing assets, ordered by id.
func (c *Catalog) ListPosts(ctx context.Context, limit, offset int) ([]*Post, error) {
	var out []*Post
	q := c.referencingPosts(ctx).Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	return out, nil
}

// UpdatePostContent replaces a post body.
func (c *Catalog) UpdatePostContent(ctx context.Context, id uint, content string) error {
	res := c.db.WithContext(ctx).Model(&Post{}).Where("id = ?", id).Update("content", content)
	if res.Error != nil {
		return fmt.Errorf("failed to update post %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertPost stores a post. Used by seeding tools and tests.
func (c *Catalog) InsertPost(ctx context.Context, p *Post) error {
	if err := c.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}
