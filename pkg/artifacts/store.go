package artifacts

import (
	"context"
	"errors"
	"fmt"
)

// Driver identifies a concrete artifact storage backend
type Driver string

const (
	DriverFilesystem Driver = "fs"     // local filesystem (default)
	DriverMemory     Driver = "memory" // in-memory (tests)
	DriverMinio      Driver = "minio"  // S3-compatible object storage
)

// Location describes a stored artifact
type Location struct {
	Category    string `json:"category"`
	ID          string `json:"id"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size_bytes"`
	// Ref is a driver-specific reference: a file path for the filesystem
	// driver, an object key otherwise
	Ref string `json:"ref"`
}

// Store persists rendered artifacts (chart images, tile files).
// A stored artifact is atomically visible: readers never observe a
// partially written object under its final key.
type Store interface {
	Put(ctx context.Context, category, id, contentType string, data []byte) (Location, error)
	Get(ctx context.Context, category, id string) ([]byte, error)
	// Delete removes an artifact. Returns (false, nil) if not found.
	Delete(ctx context.Context, category, id string) (bool, error)
	// List returns the IDs stored under a category, sorted ascending
	List(ctx context.Context, category string) ([]string, error)
	Driver() Driver
}

// ErrNotFound is returned when an artifact does not exist
var ErrNotFound = errors.New("artifacts: not found")

// Config selects and configures a storage driver
type Config struct {
	Driver Driver

	// Filesystem driver
	Root string

	// Minio driver
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New constructs a Store for the configured driver
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFilesystemStore(cfg.Root)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverMinio:
		return NewMinioStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown artifact store driver %q", cfg.Driver)
	}
}

// objectKey builds the canonical storage key for an artifact
func objectKey(category, id string) string {
	return fmt.Sprintf("%s/%s", category, id)
}
