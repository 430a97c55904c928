// Package cdn defines the Backend contract every CDN engine implements and
// the transfer vocabulary shared by the queue, the processor and the jobs.
//
// A Backend moves files described as local→remote pairs. It never returns a
// Go error from Upload or Delete: every requested file gets a Result whose
// Outcome says whether it succeeded (OutcomeOK), failed on its own
// (OutcomeError) or was never attempted because the session could not be
// established (OutcomeHalt).
package cdn

import (
	"context"
	"sort"
)

// File is one transfer request: a local filesystem path and the remote
// object key it maps to.
type File struct {
	Local  string `json:"local_path"`
	Remote string `json:"remote_path"`
}

// Backend is the capability set of a CDN engine.
type Backend interface {
	// Upload transmits files. Unless force is set, files whose remote copy
	// already has the same content hash are reported as ErrAlreadyExists
	// without transmission. Returns the number of OutcomeOK results.
	Upload(ctx context.Context, files []File, force bool) (int, []Result)

	// Delete removes the remote objects of files.
	Delete(ctx context.Context, files []File) (int, []Result)

	// Test writes, reads back and deletes a probe object.
	Test(ctx context.Context) error

	// Domains lists the domains content is served from.
	Domains() []string

	// FormatURL maps a site-relative path to an absolute CDN URL. ok is false
	// when the backend does not serve the path.
	FormatURL(path string) (url string, ok bool)

	// Via is a human-readable label of the backend.
	Via() string
}

// ContainerCreator is implemented by backends that can provision their
// bucket or container.
type ContainerCreator interface {
	CreateContainer(ctx context.Context) error
}

// Named is implemented by backends reporting their engine name.
type Named interface {
	Engine() string
}

// EngineName returns b's engine name, or "unknown".
func EngineName(b Backend) string {
	if n, ok := b.(Named); ok {
		return n.Engine()
	}
	return "unknown"
}

// FileMap converts a local→remote map into a slice ordered by local path,
// so batches are processed deterministically.
func FileMap(m map[string]string) []File {
	files := make([]File, 0, len(m))
	for local, remote := range m {
		files = append(files, File{Local: local, Remote: remote})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Local < files[j].Local })
	return files
}
