package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/newthinker/macross/internal/core"
)

// BarRecord is the Parquet schema for daily bar data.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// ParquetStore keeps one Parquet file of daily bars per symbol:
//
//	<Dir>/<SYMBOL>.parquet
type ParquetStore struct {
	Dir string
}

// NewParquetStore creates a ParquetStore rooted at dir
func NewParquetStore(dir string) *ParquetStore {
	return &ParquetStore{Dir: dir}
}

func (s *ParquetStore) path(symbol string) string {
	return filepath.Join(s.Dir, strings.ToUpper(symbol)+".parquet")
}

// WriteBars merges bars into the symbol's file, replacing bars with the same
// timestamp.
func (s *ParquetStore) WriteBars(_ context.Context, symbol string, bars []core.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol:    symbol,
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	path := s.path(symbol)
	existing, err := readParquetFile[BarRecord](path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading existing bars for %s: %w", symbol, err)
	}

	if err := writeParquetFile(path, mergeBarRecords(existing, records)); err != nil {
		return fmt.Errorf("writing bars for %s: %w", symbol, err)
	}
	return nil
}

// ReadBars returns the validated bars for symbol within [start, end]
func (s *ParquetStore) ReadBars(_ context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	records, err := readParquetFile[BarRecord](s.path(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no parquet data for %s", symbol))
		}
		return nil, fmt.Errorf("reading bars for %s: %w", symbol, err)
	}

	bars := recordsToBars(records, symbol)
	bars = Between(bars, start, end)
	if err := Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func recordsToBars(records []BarRecord, symbol string) []core.Bar {
	bars := make([]core.Bar, len(records))
	for i, r := range records {
		bars[i] = core.Bar{
			Symbol: symbol,
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		}
	}
	return bars
}

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	return parquet.ReadFile[T](path)
}

// mergeBarRecords deduplicates by timestamp, preferring incoming records.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	seen := make(map[int64]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[r.Timestamp] = r
	}
	for _, r := range incoming {
		seen[r.Timestamp] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
