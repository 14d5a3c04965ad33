// internal/storage/history/interface.go
package history

import (
	"context"
	"time"

	"github.com/newthinker/macross/internal/backtest"
)

// Run is the summary row kept for every completed backtest
type Run struct {
	ID             string            `json:"id"`
	CreatedAt      time.Time         `json:"created_at"`
	Symbol         string            `json:"symbol"`
	Strategy       string            `json:"strategy"`
	Params         map[string]any    `json:"params,omitempty"`
	Start          time.Time         `json:"start"`
	End            time.Time         `json:"end"`
	Bars           int               `json:"bars"`
	InitialCapital float64           `json:"initial_capital"`
	Metrics        *backtest.Metrics `json:"metrics,omitempty"` // nil when the run made no trades
	ReportPath     string            `json:"report_path,omitempty"`
}

// Store defines the interface for run history persistence.
type Store interface {
	// Save persists a run. Saving an existing ID replaces it.
	Save(ctx context.Context, run Run) error

	// Get retrieves a run by its ID.
	Get(ctx context.Context, id string) (*Run, error)

	// List retrieves runs matching the filter, newest first.
	List(ctx context.Context, filter ListFilter) ([]Run, error)

	// Count returns the number of runs matching the filter.
	Count(ctx context.Context, filter ListFilter) (int, error)

	// Close releases the store's resources.
	Close() error
}

// ListFilter defines criteria for listing runs.
type ListFilter struct {
	Symbol   string
	Strategy string
	From     time.Time // CreatedAt lower bound
	To       time.Time // CreatedAt upper bound
	Limit    int
	Offset   int
}

// Open returns a SQLite store for dsn, or an in-memory store holding the
// most recent runs when dsn is empty.
func Open(ctx context.Context, dsn string) (Store, error) {
	if dsn == "" {
		return NewMemoryStore(defaultMemorySize), nil
	}
	return OpenSQLite(ctx, dsn)
}
