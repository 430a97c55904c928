// Package queue defines the durable transfer queue: pending uploads and
// deletes that could not be completed in the foreground and are retried
// by the processor.
//
// A repository holds at most one entry per (local path, remote path) pair.
// Adding the opposite command for a queued pair cancels the entry instead
// of inserting, so an upload followed by a delete before either was
// delivered leaves nothing to do. Adding the same command again replaces
// the entry, refreshing its error and timestamp.
package queue

import (
	"context"
	"sort"
	"time"

	"github.com/marmos91/dittocdn/pkg/cdn"
	"github.com/marmos91/dittocdn/pkg/metrics"
)

// Entry is one pending transfer.
type Entry struct {
	ID         int64       `json:"id"`
	LocalPath  string      `json:"local_path"`
	RemotePath string      `json:"remote_path"`
	Command    cdn.Command `json:"command"`
	LastError  string      `json:"last_error"`
	Date       time.Time   `json:"date"`
}

// File returns the transfer request of e.
func (e *Entry) File() cdn.File {
	return cdn.File{Local: e.LocalPath, Remote: e.RemotePath}
}

// Groups is a page of entries keyed by command. Each group keeps the age
// order of the page.
type Groups map[cdn.Command][]*Entry

// GroupEntries groups ordered entries by command.
func GroupEntries(entries []*Entry) Groups {
	groups := make(Groups)
	for _, e := range entries {
		groups[e.Command] = append(groups[e.Command], e)
	}
	return groups
}

// Len returns the number of entries across groups.
func (g Groups) Len() int {
	n := 0
	for _, entries := range g {
		n += len(entries)
	}
	return n
}

// All returns every entry ordered by date then id.
func (g Groups) All() []*Entry {
	all := make([]*Entry, 0, g.Len())
	for _, entries := range g {
		all = append(all, entries...)
	}
	SortEntries(all)
	return all
}

// SortEntries orders entries by ascending date, ties broken by id.
func SortEntries(entries []*Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].ID < entries[j].ID
	})
}

// Repository is the queue contract every store implements.
type Repository interface {
	// Add enqueues command for the pair, or cancels a queued opposite command.
	Add(ctx context.Context, localPath, remotePath string, command cdn.Command, lastError string) error

	// Update records lastError and refreshes the entry's timestamp, moving
	// it behind younger entries. A missing id is a no-op.
	Update(ctx context.Context, id int64, lastError string) error

	// Get returns the oldest entries, at most limit when limit > 0,
	// grouped by command.
	Get(ctx context.Context, limit int) (Groups, error)

	// Delete removes an entry. A missing id is a no-op.
	Delete(ctx context.Context, id int64) error

	// Empty removes every entry of command and returns how many were removed.
	Empty(ctx context.Context, command cdn.Command) (int, error)
}

// RemotePaths returns the set of queued remote paths. The rewriter loads it
// once per render to skip assets that are not on the CDN yet.
func RemotePaths(ctx context.Context, repo Repository) (map[string]struct{}, error) {
	groups, err := repo.Get(ctx, 0)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]struct{}, groups.Len())
	for _, entries := range groups {
		for _, e := range entries {
			paths[e.RemotePath] = struct{}{}
		}
	}
	return paths, nil
}

// ReportDepth publishes the number of queued entries per command. m may be nil.
func ReportDepth(ctx context.Context, repo Repository, m metrics.QueueMetrics) error {
	if m == nil {
		return nil
	}
	groups, err := repo.Get(ctx, 0)
	if err != nil {
		return err
	}
	for _, cmd := range cdn.Commands() {
		m.SetDepth(cmd.String(), len(groups[cmd]))
	}
	return nil
}
