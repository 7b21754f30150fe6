package store

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/road-rainfall-speed/internal/domain"
	"github.com/couchcryptid/road-rainfall-speed/internal/observability"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*FileStore, *observability.Metrics) {
	t.Helper()
	dir := t.TempDir()
	metrics := observability.NewMetricsForTesting()
	return NewFileStore(filepath.Join(dir, "roads"), filepath.Join(dir, "aggregate.json"), slog.Default(), metrics), metrics
}

func sampleRecord(road string) domain.RoadModelRecord {
	rec := domain.NewRoadModelRecord(road, 3)
	rec.Put(domain.NatureSingleCarriageway, domain.Fitted(domain.FittedModel{
		Candidate:  1,
		Parameters: []float64{1, 2, 3, 4, 5, 6, 7, 8},
		MSE:        2.5,
		MAE:        1.25,
	}))
	rec.Put(domain.NatureRoundabout, domain.Fallback(17.5))
	return rec
}

func TestFileStore_SaveLoadRecord(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	want := sampleRecord("High Street")
	require.NoError(t, s.SaveRecord(ctx, want))

	got, err := s.LoadRecord(ctx, "high street")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_FileNameIsUppercaseRoad(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SaveRecord(context.Background(), sampleRecord("a40/westway")))

	_, err := os.Stat(filepath.Join(s.Dir(), "A40%2FWESTWAY.json"))
	require.NoError(t, err)
}

func TestFileStore_LoadMissingIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)

	rec, err := s.LoadRecord(context.Background(), "nowhere")
	require.NoError(t, err)
	assert.True(t, rec.IsEmpty())
	assert.Equal(t, "NOWHERE", rec.Road)
}

func TestFileStore_LoadCorruptIsEmpty(t *testing.T) {
	s, metrics := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
	require.NoError(t, os.WriteFile(s.RecordPath("M25"), []byte(`{"nature_results": {`), 0o644))

	rec, err := s.LoadRecord(context.Background(), "m25")
	require.NoError(t, err)
	assert.True(t, rec.IsEmpty())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.StoreCorruptRecords), 0)
}

func TestFileStore_LoadRejectsBothResultKinds(t *testing.T) {
	s, metrics := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.Dir(), 0o755))
	body := `{"candidate_tally":[1],"nature_results":{"Slip Road":{"best_function":0,"parameters":[1],"mse":0,"mae":0,"avg_speed":3}}}`
	require.NoError(t, os.WriteFile(s.RecordPath("A1"), []byte(body), 0o644))

	rec, err := s.LoadRecord(context.Background(), "A1")
	require.NoError(t, err)
	assert.True(t, rec.IsEmpty())
	assert.InDelta(t, 1.0, testutil.ToFloat64(metrics.StoreCorruptRecords), 0)
}

func TestFileStore_SaveOverwritesWholesale(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRecord(ctx, sampleRecord("M25")))

	replacement := domain.NewRoadModelRecord("M25", 3)
	replacement.Put(domain.NatureSlipRoad, domain.Fallback(40))
	require.NoError(t, s.SaveRecord(ctx, replacement))

	got, err := s.LoadRecord(ctx, "M25")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.NatureSlipRoad}, got.Natures())
}

func TestFileStore_SaveLeavesNoTempFiles(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.SaveRecord(context.Background(), sampleRecord("M25")))

	entries, err := os.ReadDir(s.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "M25.json", entries[0].Name())
}

func TestFileStore_SaveWithoutRoadFails(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.SaveRecord(context.Background(), domain.RoadModelRecord{})
	require.ErrorIs(t, err, domain.ErrStoreWrite)
}

func TestFileStore_SaveIntoUnwritableLocationFails(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// The record directory path runs through a regular file.
	s := NewFileStore(filepath.Join(blocker, "roads"), filepath.Join(dir, "agg.json"), slog.Default(), observability.NewMetricsForTesting())
	err := s.SaveRecord(context.Background(), sampleRecord("M25"))
	require.ErrorIs(t, err, domain.ErrStoreWrite)
}

func TestFileStore_ListRoads(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	roads, err := s.ListRoads(ctx)
	require.NoError(t, err)
	assert.Empty(t, roads)

	for _, r := range []string{"m25", "High Street", "a40/westway"} {
		require.NoError(t, s.SaveRecord(ctx, sampleRecord(r)))
	}
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ".tmp-123"), []byte("{}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("hi"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(s.Dir(), "sub.json"), 0o755))

	roads, err = s.ListRoads(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A40/WESTWAY", "HIGH STREET", "M25"}, roads)
}

func TestFileStore_Aggregate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.LoadAggregate(ctx)
	require.Error(t, err)

	want := domain.Aggregate([]domain.RoadModelRecord{sampleRecord("M25"), sampleRecord("A1")}, 3)
	require.NoError(t, s.SaveAggregate(ctx, want))

	got, err := s.LoadAggregate(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_CheckReadiness(t *testing.T) {
	s, _ := newTestStore(t)
	require.Error(t, s.CheckReadiness(context.Background()))

	require.NoError(t, s.SaveRecord(context.Background(), sampleRecord("M25")))
	require.NoError(t, s.CheckReadiness(context.Background()))
}
