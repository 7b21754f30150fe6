// Package store persists road model records and the aggregate summary as
// JSON files.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
)

const recordExt = ".json"

// FileStore keeps one file per road under dir and the aggregate at
// aggregatePath. Records are replaced wholesale, never modified in place.
type FileStore struct {
	dir           string
	aggregatePath string
	logger        *slog.Logger
	metrics       *observability.Metrics
}

// NewFileStore creates a store rooted at dir. The directory is created on the
// first write.
func NewFileStore(dir, aggregatePath string, logger *slog.Logger, metrics *observability.Metrics) *FileStore {
	return &FileStore{
		dir:           dir,
		aggregatePath: aggregatePath,
		logger:        logger,
		metrics:       metrics,
	}
}

// Dir returns the record directory.
func (s *FileStore) Dir() string { return s.dir }

// RecordPath returns the file holding road's record.
func (s *FileStore) RecordPath(road string) string {
	return filepath.Join(s.dir, fileName(road))
}

func fileName(road string) string {
	return url.PathEscape(domain.NormalizeRoad(road)) + recordExt
}

// roadFromFileName reverses fileName. ok is false for files the store did not write.
func roadFromFileName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
		return "", false
	}
	road, err := url.PathUnescape(strings.TrimSuffix(name, recordExt))
	if err != nil || road == "" {
		return "", false
	}
	return road, true
}

// SaveRecord atomically replaces the record of rec.Road. Any failure wraps
// domain.ErrStoreWrite and leaves the previous file, if any, untouched.
func (s *FileStore) SaveRecord(_ context.Context, rec domain.RoadModelRecord) error {
	road := domain.NormalizeRoad(rec.Road)
	if road == "" {
		return fmt.Errorf("%w: record has no road", domain.ErrStoreWrite)
	}
	rec.Road = road

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", domain.ErrStoreWrite, road, err)
	}
	if err := writeFileAtomic(s.RecordPath(road), data); err != nil {
		return fmt.Errorf("%w: %s: %w", domain.ErrStoreWrite, road, err)
	}
	return nil
}

// LoadRecord returns the record for road. A missing or unparsable file yields
// an empty record and no error; only I/O failures are returned.
func (s *FileStore) LoadRecord(_ context.Context, road string) (domain.RoadModelRecord, error) {
	road = domain.NormalizeRoad(road)
	path := s.RecordPath(road)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.RoadModelRecord{Road: road}, nil
	}
	if err != nil {
		return domain.RoadModelRecord{}, fmt.Errorf("read record %s: %w", road, err)
	}

	var rec domain.RoadModelRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("corrupt road record treated as unmodeled", "road", road, "path", path, "error", err)
		s.metrics.StoreCorruptRecords.Inc()
		return domain.RoadModelRecord{Road: road}, nil
	}
	if rec.Road == "" {
		rec.Road = road
	}
	return rec, nil
}

// ListRoads returns every road with a record file, sorted. A missing
// directory means no roads.
func (s *FileStore) ListRoads(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	roads := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if road, ok := roadFromFileName(e.Name()); ok {
			roads = append(roads, road)
		}
	}
	sort.Strings(roads)
	return roads, nil
}

// SaveAggregate atomically replaces the aggregate summary.
func (s *FileStore) SaveAggregate(_ context.Context, stats domain.AggregateStats) error {
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode aggregate: %w", domain.ErrStoreWrite, err)
	}
	if err := writeFileAtomic(s.aggregatePath, data); err != nil {
		return fmt.Errorf("%w: aggregate: %w", domain.ErrStoreWrite, err)
	}
	return nil
}

// LoadAggregate reads the aggregate summary. Unlike road records, a missing
// or corrupt aggregate is an error: it is always recomputable.
func (s *FileStore) LoadAggregate(_ context.Context) (domain.AggregateStats, error) {
	data, err := os.ReadFile(s.aggregatePath)
	if err != nil {
		return domain.AggregateStats{}, fmt.Errorf("read aggregate: %w", err)
	}
	var stats domain.AggregateStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return domain.AggregateStats{}, fmt.Errorf("decode aggregate: %w", err)
	}
	return stats, nil
}

// CheckReadiness reports whether the record directory is readable.
func (s *FileStore) CheckReadiness(_ context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return fmt.Errorf("model directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("model directory %s is not a directory", s.dir)
	}
	return nil
}

// writeFileAtomic writes data to a hidden temp file in the target directory,
// syncs it, and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
