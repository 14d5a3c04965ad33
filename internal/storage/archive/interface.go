// internal/storage/archive/interface.go
package archive

import (
	"context"
	"fmt"
	"strings"

	"github.com/newthinker/macross/internal/core"
)

// Storage is a flat object store for backtest artifacts. Paths use forward
// slashes regardless of backend.
type Storage interface {
	// Write stores data at the given path, replacing any existing object
	Write(ctx context.Context, path string, data []byte) error

	// Read retrieves data from the given path. A missing object yields
	// core.ErrObjectNotFound.
	Read(ctx context.Context, path string) ([]byte, error)

	// List returns all paths under the prefix in lexical order
	List(ctx context.Context, prefix string) ([]string, error)

	// Delete removes the data at the given path
	Delete(ctx context.Context, path string) error

	// Exists checks if data exists at the given path
	Exists(ctx context.Context, path string) (bool, error)
}

// Backend types accepted by Open
const (
	TypeLocalFS = "localfs"
	TypeS3      = "s3"
)

// Options selects and configures a backend
type Options struct {
	Type string
	Path string // localfs root
	S3   S3Config
}

// Open creates the backend named by opts.Type
func Open(opts Options) (Storage, error) {
	switch strings.ToLower(opts.Type) {
	case "", TypeLocalFS:
		if opts.Path == "" {
			return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("archive path is required for localfs"))
		}
		return NewLocalFS(opts.Path)
	case TypeS3:
		return NewS3(opts.S3)
	default:
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("unknown archive type %q", opts.Type))
	}
}

func notFound(path string) error {
	return core.WrapError(core.ErrObjectNotFound, fmt.Errorf("%s", path))
}
