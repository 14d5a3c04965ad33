package marketdata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/core"
)

// FileProvider serves bars from a directory holding <SYMBOL>.csv or
// <SYMBOL>.parquet files. CSV wins when both exist.
type FileProvider struct {
	dir     string
	parquet *ParquetStore
}

// NewFileProvider creates a provider over dir
func NewFileProvider(dir string) *FileProvider {
	return &FileProvider{
		dir:     dir,
		parquet: NewParquetStore(dir),
	}
}

// FetchHistory returns the bars for symbol within [start, end]
func (p *FileProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	csvPath := filepath.Join(p.dir, strings.ToUpper(symbol)+".csv")
	if _, err := os.Stat(csvPath); err == nil {
		bars, err := LoadCSV(csvPath, symbol)
		if err != nil {
			return nil, err
		}
		bars = Between(bars, start, end)
		if len(bars) == 0 {
			return nil, core.WrapError(core.ErrNoData,
				fmt.Errorf("no bars for %s between %s and %s", symbol, start.Format(DateLayout), end.Format(DateLayout)))
		}
		return bars, nil
	}

	return p.parquet.ReadBars(ctx, symbol, start, end)
}

// LoadFile reads bars from a single CSV or Parquet file, chosen by extension
func LoadFile(path, symbol string) ([]core.Bar, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return LoadCSV(path, symbol)
	case ".parquet":
		records, err := readParquetFile[BarRecord](path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, core.WrapError(core.ErrNoData, fmt.Errorf("price data file not found: %s", path))
			}
			return nil, fmt.Errorf("reading %s: %w", path, err)
		}
		bars := recordsToBars(records, symbol)
		if err := Validate(bars); err != nil {
			return nil, err
		}
		return bars, nil
	default:
		return nil, core.WrapError(core.ErrInvalidParameter,
			fmt.Errorf("unsupported data file %q (want .csv or .parquet)", path))
	}
}

// StaticProvider serves bars already in memory, such as a single file
// loaded with LoadFile. The symbol argument of FetchHistory is ignored.
type StaticProvider struct {
	bars []core.Bar
}

// NewStaticProvider creates a provider over bars
func NewStaticProvider(bars []core.Bar) *StaticProvider {
	return &StaticProvider{bars: bars}
}

// FetchHistory returns the held bars within [start, end]
func (p *StaticProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time) ([]core.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bars := Between(p.bars, start, end)
	if len(bars) == 0 {
		return nil, core.WrapError(core.ErrNoData,
			fmt.Errorf("no bars for %s between %s and %s", symbol, start.Format(DateLayout), end.Format(DateLayout)))
	}
	return bars, nil
}
