package report

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/newthinker/macross/internal/core"
	"github.com/newthinker/macross/internal/storage/archive"
	"go.uber.org/zap"
)

const reportsRoot = "reports"

// Archiver persists reports as JSON under reports/<SYMBOL>/<id>.json
type Archiver struct {
	storage archive.Storage
	logger  *zap.Logger
}

// NewArchiver creates an Archiver over storage
func NewArchiver(storage archive.Storage, logger *zap.Logger) *Archiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{storage: storage, logger: logger}
}

// Path returns the archive path of a report
func Path(symbol, id string) string {
	return path.Join(reportsRoot, strings.ToUpper(symbol), id+".json")
}

// Save writes r and returns its archive path
func (a *Archiver) Save(ctx context.Context, r *Report) (string, error) {
	data, err := r.Encode(FormatJSON)
	if err != nil {
		return "", fmt.Errorf("encoding report %s: %w", r.ID, err)
	}

	p := Path(r.Symbol, r.ID)
	if err := a.storage.Write(ctx, p, data); err != nil {
		return "", err
	}

	a.logger.Info("report archived",
		zap.String("id", r.ID),
		zap.String("path", p),
		zap.Int("bytes", len(data)),
	)
	return p, nil
}

// Load reads a report back
func (a *Archiver) Load(ctx context.Context, symbol, id string) (*Report, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return nil, core.WrapError(core.ErrInvalidParameter, fmt.Errorf("invalid report id %q", id))
	}
	data, err := a.storage.Read(ctx, Path(symbol, id))
	if err != nil {
		return nil, err
	}
	return Decode(data, FormatJSON)
}

// List returns the IDs of archived reports for symbol, oldest first
func (a *Archiver) List(ctx context.Context, symbol string) ([]string, error) {
	paths, err := a.storage.List(ctx, path.Join(reportsRoot, strings.ToUpper(symbol)))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(paths))
	for _, p := range paths {
		if path.Ext(p) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(path.Base(p), ".json"))
	}
	return ids, nil
}
