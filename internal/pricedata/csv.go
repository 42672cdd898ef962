package pricedata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/wonny/backlab/internal/series"
	"github.com/wonny/backlab/pkg/logger"
)

// csvRow is one line of a price file: a date column and a close column.
type csvRow struct {
	Date  string  `csv:"date"`
	Close float64 `csv:"close"`
}

// CSVProvider resolves file ids against a directory of CSV price files.
// Parsed series are cached in memory keyed by file modification time;
// Refresh evicts entries whose files changed or disappeared.
type CSVProvider struct {
	dir    string
	logger *logger.Logger

	mu    sync.RWMutex
	cache map[string]csvEntry
}

type csvEntry struct {
	series  *series.Series
	modTime time.Time
}

// NewCSVProvider creates a provider over the given data directory.
func NewCSVProvider(dir string, log *logger.Logger) *CSVProvider {
	return &CSVProvider{
		dir:    dir,
		logger: log,
		cache:  make(map[string]csvEntry),
	}
}

// Resolve loads (or returns the cached) series for a file id. The id is
// the bare file name inside the data directory; path elements are
// stripped so ids cannot escape it.
func (p *CSVProvider) Resolve(ctx context.Context, fileID string) (*series.Series, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := filepath.Base(fileID)
	if name == "." || name == string(filepath.Separator) || !strings.HasSuffix(name, ".csv") {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, fileID)
	}

	path := filepath.Join(p.dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, fileID)
	}

	p.mu.RLock()
	entry, ok := p.cache[name]
	p.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.series, nil
	}

	ser, err := p.load(path)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[name] = csvEntry{series: ser, modTime: info.ModTime()}
	p.mu.Unlock()

	p.logger.WithFields(map[string]interface{}{
		"file": name,
		"rows": ser.Len(),
	}).Debug("Loaded price file")

	return ser, nil
}

func (p *CSVProvider) load(path string) (*series.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open price file: %w", err)
	}
	defer f.Close()

	var rows []csvRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("parse price file %s: %w", filepath.Base(path), err)
	}

	points := make([]series.Point, 0, len(rows))
	for _, row := range rows {
		date, err := time.Parse("2006-01-02", strings.TrimSpace(row.Date))
		if err != nil {
			return nil, fmt.Errorf("parse date %q in %s: %w", row.Date, filepath.Base(path), err)
		}
		points = append(points, series.Point{Date: date, Close: row.Close})
	}

	ser, err := series.New(points)
	if err != nil {
		return nil, fmt.Errorf("build series from %s: %w", filepath.Base(path), err)
	}

	return ser, nil
}

// Refresh drops cache entries whose backing files changed or were
// removed. The scheduler runs this periodically while the API serves.
func (p *CSVProvider) Refresh(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	evicted := 0
	for name, entry := range p.cache {
		info, err := os.Stat(filepath.Join(p.dir, name))
		if err != nil || !entry.modTime.Equal(info.ModTime()) {
			delete(p.cache, name)
			evicted++
		}
	}

	if evicted > 0 {
		p.logger.WithField("evicted", evicted).Info("Price cache refreshed")
	}

	return nil
}
