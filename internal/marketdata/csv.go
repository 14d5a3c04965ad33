package marketdata

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/newthinker/macross/internal/core"
)

// RequiredColumns are the CSV header fields every price file must carry
var RequiredColumns = []string{"date", "open", "high", "low", "close", "volume"}

// LoadCSV reads and validates a daily bar file
func LoadCSV(path, symbol string) ([]core.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.WrapError(core.ErrNoData, fmt.Errorf("price data file not found: %s", path))
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	bars, err := ReadCSV(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return bars, nil
}

// ReadCSV parses bars from r. Columns may appear in any order; extra columns
// are ignored.
func ReadCSV(r io.Reader, symbol string) ([]core.Bar, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("file is empty"))
	}
	if err != nil {
		return nil, core.WrapError(core.ErrInvalidData, err)
	}

	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, core.WrapError(core.ErrInvalidData,
			fmt.Errorf("missing required columns: %s", strings.Join(missing, ", ")))
	}

	var bars []core.Bar
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidData, err)
		}

		bar, err := parseRecord(rec, idx, symbol)
		if err != nil {
			return nil, core.WrapError(core.ErrInvalidData, fmt.Errorf("line %d: %w", line, err))
		}
		bars = append(bars, bar)
	}

	if err := Validate(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

func parseRecord(rec []string, idx map[string]int, symbol string) (core.Bar, error) {
	field := func(name string) (string, error) {
		v := strings.TrimSpace(rec[idx[name]])
		if v == "" {
			return "", fmt.Errorf("missing value for %s", name)
		}
		return v, nil
	}
	number := func(name string) (float64, error) {
		v, err := field(name)
		if err != nil {
			return 0, err
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("column %s has non-numeric value %q", name, v)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("column %s has non-finite value %q", name, v)
		}
		return f, nil
	}

	dateStr, err := field("date")
	if err != nil {
		return core.Bar{}, err
	}
	date, err := parseDate(dateStr)
	if err != nil {
		return core.Bar{}, err
	}

	bar := core.Bar{Symbol: symbol, Time: date}
	if bar.Open, err = number("open"); err != nil {
		return core.Bar{}, err
	}
	if bar.High, err = number("high"); err != nil {
		return core.Bar{}, err
	}
	if bar.Low, err = number("low"); err != nil {
		return core.Bar{}, err
	}
	if bar.Close, err = number("close"); err != nil {
		return core.Bar{}, err
	}
	vol, err := number("volume")
	if err != nil {
		return core.Bar{}, err
	}
	bar.Volume = int64(vol)

	return bar, nil
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{DateLayout, time.RFC3339, "2006-01-02 15:04:05", "2006/01/02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
