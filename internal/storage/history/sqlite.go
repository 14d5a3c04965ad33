// internal/storage/history/sqlite.go
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/newthinker/macross/internal/backtest"
	"github.com/newthinker/macross/internal/core"
)

// Compile-time interface checks.
var _ Store = (*SQLiteStore)(nil)
var _ Store = (*MemoryStore)(nil)

// migrations are applied in order; PRAGMA user_version records how many ran.
var migrations = []string{
	`CREATE TABLE runs (
		id              TEXT PRIMARY KEY,
		created_at      INTEGER NOT NULL,
		symbol          TEXT NOT NULL,
		strategy        TEXT NOT NULL,
		params          TEXT NOT NULL DEFAULT '{}',
		start_at        INTEGER NOT NULL,
		end_at          INTEGER NOT NULL,
		bars            INTEGER NOT NULL,
		initial_capital REAL NOT NULL,
		final_value     REAL,
		sharpe_ratio    REAL,
		max_drawdown    REAL,
		win_rate        REAL,
		total_trades    INTEGER,
		total_return    REAL,
		report_path     TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX idx_runs_symbol_created ON runs (symbol, created_at DESC)`,
	`CREATE INDEX idx_runs_created ON runs (created_at DESC)`,
}

const runColumns = `id, created_at, symbol, strategy, params, start_at, end_at, bars,
	initial_capital, final_value, sharpe_ratio, max_drawdown, win_rate,
	total_trades, total_return, report_path`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dsn and brings its schema
// up to date.
func OpenSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	// One connection: SQLite serializes writers and ":memory:" databases
	// exist per connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("opening %s: %w", dsn, err))
	}
	s := &SQLiteStore{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("reading schema version: %w", err))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return core.WrapError(core.ErrStorageFailed, err)
		}
		if _, err := tx.ExecContext(ctx, migrations[i]); err != nil {
			tx.Rollback()
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("migration %d: %w", i+1, err))
		}
		// PRAGMA does not accept bound parameters
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			tx.Rollback()
			return core.WrapError(core.ErrStorageFailed, err)
		}
		if err := tx.Commit(); err != nil {
			return core.WrapError(core.ErrStorageFailed, err)
		}
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Save inserts or replaces a run.
func (s *SQLiteStore) Save(ctx context.Context, run Run) error {
	if run.ID == "" {
		return core.WrapError(core.ErrInvalidParameter, fmt.Errorf("run id is required"))
	}

	params, err := json.Marshal(run.Params)
	if err != nil {
		return core.WrapError(core.ErrInvalidParameter, fmt.Errorf("encoding params: %w", err))
	}
	if run.Params == nil {
		params = []byte("{}")
	}

	var finalValue, sharpe, drawdown, winRate, totalReturn sql.NullFloat64
	var totalTrades sql.NullInt64
	if m := run.Metrics; m != nil {
		finalValue = sql.NullFloat64{Float64: m.FinalValue, Valid: true}
		sharpe = sql.NullFloat64{Float64: m.SharpeRatio, Valid: true}
		drawdown = sql.NullFloat64{Float64: m.MaxDrawdown, Valid: true}
		winRate = sql.NullFloat64{Float64: m.WinRate, Valid: true}
		totalTrades = sql.NullInt64{Int64: int64(m.TotalTrades), Valid: true}
		totalReturn = sql.NullFloat64{Float64: m.TotalReturn, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.CreatedAt.UnixMilli(), run.Symbol, run.Strategy, string(params),
		run.Start.UnixMilli(), run.End.UnixMilli(), run.Bars, run.InitialCapital,
		finalValue, sharpe, drawdown, winRate, totalTrades, totalReturn, run.ReportPath,
	)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("saving run %s: %w", run.ID, err))
	}
	return nil
}

// Get retrieves a run by its ID.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.WrapError(core.ErrRunNotFound, fmt.Errorf("%q", id))
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs matching the filter, newest first.
func (s *SQLiteStore) List(ctx context.Context, filter ListFilter) ([]Run, error) {
	where, args := filter.where()
	query := `SELECT ` + runColumns + ` FROM runs` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	runs := make([]Run, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return runs, nil
}

// Count returns the number of runs matching the filter.
func (s *SQLiteStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := filter.where()
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`+where, args...).Scan(&n); err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	return n, nil
}

func (f ListFilter) where() (string, []any) {
	var conds []string
	var args []any
	if f.Symbol != "" {
		conds = append(conds, "symbol = ?")
		args = append(args, f.Symbol)
	}
	if f.Strategy != "" {
		conds = append(conds, "strategy = ?")
		args = append(args, f.Strategy)
	}
	if !f.From.IsZero() {
		conds = append(conds, "created_at >= ?")
		args = append(args, f.From.UnixMilli())
	}
	if !f.To.IsZero() {
		conds = append(conds, "created_at <= ?")
		args = append(args, f.To.UnixMilli())
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                                             Run
		createdAt, startAt, endAt                       int64
		params                                          string
		finalValue, sharpe, drawdown, winRate, totalRet sql.NullFloat64
		totalTrades                                     sql.NullInt64
	)
	err := row.Scan(&run.ID, &createdAt, &run.Symbol, &run.Strategy, &params,
		&startAt, &endAt, &run.Bars, &run.InitialCapital,
		&finalValue, &sharpe, &drawdown, &winRate, &totalTrades, &totalRet, &run.ReportPath)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}

	run.CreatedAt = time.UnixMilli(createdAt).UTC()
	run.Start = time.UnixMilli(startAt).UTC()
	run.End = time.UnixMilli(endAt).UTC()
	if err := json.Unmarshal([]byte(params), &run.Params); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("decoding params of run %s: %w", run.ID, err))
	}
	if len(run.Params) == 0 {
		run.Params = nil
	}
	if finalValue.Valid {
		run.Metrics = &backtest.Metrics{
			FinalValue:  finalValue.Float64,
			SharpeRatio: sharpe.Float64,
			MaxDrawdown: drawdown.Float64,
			WinRate:     winRate.Float64,
			TotalTrades: int(totalTrades.Int64),
			TotalReturn: totalRet.Float64,
		}
	}
	return &run, nil
}
