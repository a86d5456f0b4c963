package cachehierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb"
)

var errNotFoundForTest = errors.New("cachehierarchy: object not found")

type fakeLoader struct {
	calls int
	meta  ParquetMeta
}

func (f *fakeLoader) Load(_ context.Context, _ SSTMetaKey) (ParquetMeta, error) {
	f.calls++
	return f.meta, nil
}

type memObjectStore struct {
	objects map[string][]byte
}

func newMemObjectStore() *memObjectStore { return &memObjectStore{objects: make(map[string][]byte)} }

func (m *memObjectStore) Upload(_ context.Context, _, key string, data []byte) error {
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memObjectStore) Download(_ context.Context, _, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errNotFoundForTest
	}
	return data, nil
}

func TestHierarchyCacheDisableRoundTrip(t *testing.T) {
	h := New(Budgets{}, nil, nil, nil)
	key := SSTMetaKey{RegionID: stratadb.NewRegionID(1, 1), FileID: uuid.New()}
	h.PutParquetMeta(key, ParquetMeta{SizeBytes: 10})
	if _, ok, _ := h.GetParquetMeta(context.Background(), key); ok {
		t.Fatalf("with all budgets at 0, get after put must return absence")
	}
}

func TestHierarchyGetParquetMetaFallsThroughToLoader(t *testing.T) {
	loader := &fakeLoader{meta: ParquetMeta{SchemaHash: "abc", SizeBytes: 5}}
	h := New(Budgets{SSTMeta: 1 << 20}, loader, nil, NewMetrics(nil))
	key := SSTMetaKey{RegionID: stratadb.NewRegionID(1, 1), FileID: uuid.New()}

	meta, ok, err := h.GetParquetMeta(context.Background(), key)
	if err != nil || !ok || meta.SchemaHash != "abc" {
		t.Fatalf("GetParquetMeta = (%+v, %v, %v), want (SchemaHash=abc, true, nil)", meta, ok, err)
	}
	if loader.calls != 1 {
		t.Fatalf("loader.calls = %d, want 1", loader.calls)
	}

	// Second call should hit the meta cache, not call the loader again.
	if _, _, err := h.GetParquetMeta(context.Background(), key); err != nil {
		t.Fatalf("second GetParquetMeta: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("loader.calls = %d after cache hit, want still 1", loader.calls)
	}
}

func TestHierarchyRoundTripWithinBudget(t *testing.T) {
	h := New(Budgets{Vector: 1 << 20}, nil, nil, NewMetrics(nil))
	h.PutRepeatedVector(int64(7), []any{int64(7), int64(7), int64(7)})
	v, ok := h.GetRepeatedVector(int64(7))
	if !ok || len(v) != 3 {
		t.Fatalf("GetRepeatedVector = (%v, %v), want 3-element vector", v, ok)
	}
}

func TestFileCacheWriteThroughAndInvalidate(t *testing.T) {
	store := newMemObjectStore()
	fc := NewFileCache(1<<20, store, NewMetrics(nil))
	region := stratadb.NewRegionID(1, 1)
	key := FileKey{RegionID: region, FileID: uuid.New(), FileType: FileTypeSST}

	if err := fc.Put(context.Background(), key, []byte("sst-bytes")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	data, ok := fc.Get(context.Background(), key)
	if !ok || string(data) != "sst-bytes" {
		t.Fatalf("Get = (%q, %v), want (sst-bytes, true)", data, ok)
	}

	fc.RemoveRegion(context.Background(), region)
	// After region removal the LRU no longer has the local copy, but the
	// object store still does — Get should repopulate the LRU from there.
	data, ok = fc.Get(context.Background(), key)
	if !ok || string(data) != "sst-bytes" {
		t.Fatalf("Get after RemoveRegion = (%q, %v), want a re-download hit", data, ok)
	}
}

func TestHierarchyInvalidateRegionSweepsMetaAndPageTiers(t *testing.T) {
	h := New(Budgets{SSTMeta: 1 << 20, Page: 1 << 20}, nil, nil, NewMetrics(nil))
	region := stratadb.NewRegionID(1, 1)
	otherRegion := stratadb.NewRegionID(1, 2)

	metaKey := SSTMetaKey{RegionID: region, FileID: uuid.New()}
	otherMetaKey := SSTMetaKey{RegionID: otherRegion, FileID: uuid.New()}
	h.PutParquetMeta(metaKey, ParquetMeta{SizeBytes: 10})
	h.PutParquetMeta(otherMetaKey, ParquetMeta{SizeBytes: 10})

	pageKey := PageKey{RegionID: region, FileID: uuid.New(), RowGroup: 0, Column: 0}
	otherPageKey := PageKey{RegionID: otherRegion, FileID: uuid.New(), RowGroup: 0, Column: 0}
	h.PutPages(pageKey, ColumnPages{Rows: 1, SizeBytes: 10})
	h.PutPages(otherPageKey, ColumnPages{Rows: 1, SizeBytes: 10})

	h.InvalidateRegion(context.Background(), region)

	if _, ok, _ := h.GetParquetMeta(context.Background(), metaKey); ok {
		t.Fatalf("meta entry for the invalidated region should be gone")
	}
	if _, ok, _ := h.GetParquetMeta(context.Background(), otherMetaKey); !ok {
		t.Fatalf("meta entry for a different region should survive invalidation")
	}
	if _, ok := h.GetPages(pageKey); ok {
		t.Fatalf("page entry for the invalidated region should be gone")
	}
	if _, ok := h.GetPages(otherPageKey); !ok {
		t.Fatalf("page entry for a different region should survive invalidation")
	}
}
