package store

import (
	"context"
	"testing"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mock for cache tests ---

type countingReader struct {
	loads   map[string]int
	records map[string]domain.RoadModelRecord
}

func newCountingReader(records ...domain.RoadModelRecord) *countingReader {
	r := &countingReader{loads: map[string]int{}, records: map[string]domain.RoadModelRecord{}}
	for _, rec := range records {
		r.records[rec.Road] = rec
	}
	return r
}

func (m *countingReader) LoadRecord(_ context.Context, road string) (domain.RoadModelRecord, error) {
	m.loads[road]++
	if rec, ok := m.records[road]; ok {
		return rec, nil
	}
	return domain.RoadModelRecord{Road: road}, nil
}

func (m *countingReader) ListRoads(_ context.Context) ([]string, error) {
	out := make([]string, 0, len(m.records))
	for r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

// --- CachedStore tests ---

func TestCachedStore_Hit(t *testing.T) {
	inner := newCountingReader(sampleRecord("M25"))
	metrics := observability.NewMetricsForTesting()
	cached := NewCachedStore(inner, 10, metrics)

	r1, err := cached.LoadRecord(context.Background(), "m25")
	require.NoError(t, err)
	r2, err := cached.LoadRecord(context.Background(), " M25")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, inner.loads["M25"], "should only call inner once")
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RecordCache.WithLabelValues("hit")), 0)
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.RecordCache.WithLabelValues("miss")), 0)
}

func TestCachedStore_EmptyRecordsNotCached(t *testing.T) {
	inner := newCountingReader()
	cached := NewCachedStore(inner, 10, observability.NewMetricsForTesting())

	_, _ = cached.LoadRecord(context.Background(), "A1")
	_, _ = cached.LoadRecord(context.Background(), "A1")

	assert.Equal(t, 2, inner.loads["A1"])
}

func TestCachedStore_ListRoadsPassesThrough(t *testing.T) {
	inner := newCountingReader(sampleRecord("M25"))
	cached := NewCachedStore(inner, 10, observability.NewMetricsForTesting())

	roads, err := cached.ListRoads(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"M25"}, roads)
}

// --- LRU cache unit tests ---

func rec(road string) domain.RoadModelRecord {
	return domain.RoadModelRecord{Road: road}
}

func TestLRUCache_BasicGetPut(t *testing.T) {
	c := newLRUCache(3)

	c.put("a", rec("A"))
	c.put("b", rec("B"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A", result.Road)

	_, ok = c.get("missing")
	assert.False(t, ok)
}

func TestLRUCache_Eviction(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", rec("A"))
	c.put("b", rec("B"))
	c.put("c", rec("C")) // evicts "a"

	_, ok := c.get("a")
	assert.False(t, ok, "a should have been evicted")
	assert.Equal(t, 2, c.size())

	result, ok := c.get("c")
	assert.True(t, ok)
	assert.Equal(t, "C", result.Road)
}

func TestLRUCache_AccessPromotesEntry(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", rec("A"))
	c.put("b", rec("B"))
	c.get("a")
	c.put("c", rec("C"))

	_, ok := c.get("a")
	assert.True(t, ok, "a was accessed recently, should not be evicted")

	_, ok = c.get("b")
	assert.False(t, ok, "b should have been evicted")
}

func TestLRUCache_UpdateExisting(t *testing.T) {
	c := newLRUCache(2)

	c.put("a", rec("A1"))
	c.put("a", rec("A2"))

	result, ok := c.get("a")
	assert.True(t, ok)
	assert.Equal(t, "A2", result.Road)
	assert.Equal(t, 1, c.size())
}
