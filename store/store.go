package store

import (
	"context"
	"time"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpbridge", "store")

// DefaultTTL is the lifetime of a cached model validation.
const DefaultTTL = 60 * time.Second

// Entry is the outcome of a model validation against a host.
type Entry struct {
	Model  string `json:"model"`
	Exists bool   `json:"exists"`
	// Available is the host model list at the time of the check,
	// kept for entries of missing models.
	Available []string  `json:"available,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// ModelStore caches model validations per model host.
// Implementations tolerate concurrent use and lost updates.
type ModelStore interface {
	// Name returns the backend name, used as a metrics tag.
	Name() string
	// Get returns the entry, or nil when it is missing or expired.
	Get(ctx context.Context, host, model string) (*Entry, error)
	// Put stores the entries for the ttl.
	Put(ctx context.Context, host string, ttl time.Duration, entries ...*Entry) error
	// Reset drops all entries of the host.
	Reset(ctx context.Context, host string) error
}
