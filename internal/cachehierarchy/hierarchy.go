package cachehierarchy

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stratadb/stratadb"
)

// SSTMetaKey identifies a decoded Parquet file footer (spec.md §3).
type SSTMetaKey struct {
	RegionID stratadb.RegionID
	FileID   uuid.UUID
}

// PageKey identifies a decoded column page within a row group (spec.md §3).
type PageKey struct {
	RegionID stratadb.RegionID
	FileID   uuid.UUID
	RowGroup int
	Column   int
}

// ParquetMeta is the decoded footer cached under an SSTMetaKey. Fields beyond
// the byte size are opaque to the cache hierarchy itself; only SizeBytes
// drives the weigher.
type ParquetMeta struct {
	SchemaHash string
	RowGroups  int
	SizeBytes  int64
}

// ColumnPages is the decoded page batch cached under a PageKey.
type ColumnPages struct {
	Rows      int
	SizeBytes int64
}

// Loader fetches and decodes a ParquetMeta on a meta-cache miss (spec.md §4.1
// get_parquet_meta). It receives only the key, not any bytes the file tier
// holds.
type Loader interface {
	Load(ctx context.Context, key SSTMetaKey) (ParquetMeta, error)
}

// Budgets configures the byte budget of each of the four independent tiers.
// A budget of 0 disables that tier entirely (spec.md §4.1/§6).
type Budgets struct {
	SSTMeta int64
	Vector  int64
	Page    int64
	File    int64
}

// Hierarchy is the façade unifying the four independent caches (spec.md
// §4.1). Each tier is constructed only if its byte budget is non-zero;
// absent tiers behave as always-miss/ignored-put.
type Hierarchy struct {
	metrics *Metrics

	meta   *WeightedLRU[SSTMetaKey, ParquetMeta]
	vector *WeightedLRU[any, []any]
	page   *WeightedLRU[PageKey, ColumnPages]
	file   *FileCache

	loader Loader

	// metaRegions/pageRegions index the live meta/page cache keys by region so
	// InvalidateRegion can sweep them without the WeightedLRU itself knowing
	// about regions, mirroring FileCache.regions below.
	regionKeysMu sync.Mutex
	metaRegions  map[stratadb.RegionID]map[SSTMetaKey]struct{}
	pageRegions  map[stratadb.RegionID]map[PageKey]struct{}
}

// New constructs a Hierarchy with the given per-tier budgets. loader backs
// get_parquet_meta misses; fileStore backs the write-through file tier (may
// be nil if Budgets.File is 0).
func New(budgets Budgets, loader Loader, fileStore ObjectStore, metrics *Metrics) *Hierarchy {
	h := &Hierarchy{
		metrics:     metrics,
		loader:      loader,
		metaRegions: make(map[stratadb.RegionID]map[SSTMetaKey]struct{}),
		pageRegions: make(map[stratadb.RegionID]map[PageKey]struct{}),
	}

	if budgets.SSTMeta > 0 {
		h.meta = NewWeightedLRU[SSTMetaKey, ParquetMeta](budgets.SSTMeta, func(_ SSTMetaKey, v ParquetMeta) int64 {
			return v.SizeBytes
		}, h.metaEvicted)
	}
	if budgets.Vector > 0 {
		h.vector = NewWeightedLRU[any, []any](budgets.Vector, func(_ any, v []any) int64 {
			return int64(len(v)) * 16
		}, h.vectorEvicted)
	}
	if budgets.Page > 0 {
		h.page = NewWeightedLRU[PageKey, ColumnPages](budgets.Page, func(_ PageKey, v ColumnPages) int64 {
			return v.SizeBytes
		}, h.pageEvicted)
	}
	if budgets.File > 0 && fileStore != nil {
		h.file = NewFileCache(budgets.File, fileStore, metrics)
	}
	return h
}

func (h *Hierarchy) metaEvicted(_ SSTMetaKey, _ ParquetMeta, weight int64) {
	h.metrics.setBytes("sst_meta", h.meta.Bytes())
	_ = weight
}
func (h *Hierarchy) vectorEvicted(_ any, _ []any, weight int64) {
	h.metrics.setBytes("vector", h.vector.Bytes())
	_ = weight
}
func (h *Hierarchy) pageEvicted(_ PageKey, _ ColumnPages, weight int64) {
	h.metrics.setBytes("page", h.page.Bytes())
	_ = weight
}

// GetParquetMeta probes the meta cache; on a miss it probes the file tier
// (which counts its own hit/miss and, on a local miss, downloads from the
// object store) and then calls loader, inserting loader's result into the
// meta cache. The file tier's bytes are not decoded here or handed to
// loader: a file-tier hit alone does not produce a ParquetMeta. Returns
// (meta, false, nil) on a meta-cache miss when no loader is configured, and
// loader's error if it fails.
func (h *Hierarchy) GetParquetMeta(ctx context.Context, key SSTMetaKey) (ParquetMeta, bool, error) {
	if h.meta != nil {
		if v, ok := h.meta.Get(key); ok {
			h.metrics.hit("sst_meta")
			return v, true, nil
		}
	}
	h.metrics.miss("sst_meta")

	if h.file != nil {
		h.file.Get(ctx, FileKey{RegionID: key.RegionID, FileID: key.FileID, FileType: FileTypeSST})
	}

	if h.loader == nil {
		return ParquetMeta{}, false, nil
	}
	meta, err := h.loader.Load(ctx, key)
	if err != nil {
		return ParquetMeta{}, false, err
	}
	h.PutParquetMeta(key, meta)
	return meta, true, nil
}

// PutParquetMeta inserts into the meta cache only; the file cache is managed
// by the write path (spec.md §4.1).
func (h *Hierarchy) PutParquetMeta(key SSTMetaKey, meta ParquetMeta) {
	if h.meta != nil {
		h.meta.Put(key, meta)
		h.metrics.setBytes("sst_meta", h.meta.Bytes())
		h.trackMetaKey(key)
	}
}

// RemoveParquetMeta evicts key from the meta cache only.
func (h *Hierarchy) RemoveParquetMeta(key SSTMetaKey) {
	if h.meta != nil {
		h.meta.Remove(key)
		h.metrics.setBytes("sst_meta", h.meta.Bytes())
		h.untrackMetaKey(key)
	}
}

func (h *Hierarchy) trackMetaKey(key SSTMetaKey) {
	h.regionKeysMu.Lock()
	defer h.regionKeysMu.Unlock()
	set, ok := h.metaRegions[key.RegionID]
	if !ok {
		set = make(map[SSTMetaKey]struct{})
		h.metaRegions[key.RegionID] = set
	}
	set[key] = struct{}{}
}

func (h *Hierarchy) untrackMetaKey(key SSTMetaKey) {
	h.regionKeysMu.Lock()
	defer h.regionKeysMu.Unlock()
	set, ok := h.metaRegions[key.RegionID]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(h.metaRegions, key.RegionID)
	}
}

// GetRepeatedVector memoizes "vector of N copies of scalar" for projection
// rewriting (spec.md §4.1). scalar must be comparable; callers normalize the
// scalar type before calling (e.g. int64, float64, string).
func (h *Hierarchy) GetRepeatedVector(scalar any) ([]any, bool) {
	if h.vector == nil {
		return nil, false
	}
	v, ok := h.vector.Get(scalar)
	if ok {
		h.metrics.hit("vector")
	} else {
		h.metrics.miss("vector")
	}
	return v, ok
}

// PutRepeatedVector inserts a memoized repeated-value vector.
func (h *Hierarchy) PutRepeatedVector(scalar any, vec []any) {
	if h.vector != nil {
		h.vector.Put(scalar, vec)
		h.metrics.setBytes("vector", h.vector.Bytes())
	}
}

// GetPages returns decoded column pages for a row group (spec.md §4.1).
func (h *Hierarchy) GetPages(key PageKey) (ColumnPages, bool) {
	if h.page == nil {
		return ColumnPages{}, false
	}
	v, ok := h.page.Get(key)
	if ok {
		h.metrics.hit("page")
	} else {
		h.metrics.miss("page")
	}
	return v, ok
}

// PutPages inserts decoded column pages for a row group.
func (h *Hierarchy) PutPages(key PageKey, pages ColumnPages) {
	if h.page != nil {
		h.page.Put(key, pages)
		h.metrics.setBytes("page", h.page.Bytes())
		h.trackPageKey(key)
	}
}

// RemovePages evicts key from the page cache only, the page-tier counterpart
// to RemoveParquetMeta.
func (h *Hierarchy) RemovePages(key PageKey) {
	if h.page != nil {
		h.page.Remove(key)
		h.metrics.setBytes("page", h.page.Bytes())
		h.untrackPageKey(key)
	}
}

func (h *Hierarchy) trackPageKey(key PageKey) {
	h.regionKeysMu.Lock()
	defer h.regionKeysMu.Unlock()
	set, ok := h.pageRegions[key.RegionID]
	if !ok {
		set = make(map[PageKey]struct{})
		h.pageRegions[key.RegionID] = set
	}
	set[key] = struct{}{}
}

func (h *Hierarchy) untrackPageKey(key PageKey) {
	h.regionKeysMu.Lock()
	defer h.regionKeysMu.Unlock()
	set, ok := h.pageRegions[key.RegionID]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(h.pageRegions, key.RegionID)
	}
}

// InvalidateRegion drops every cached entry this datanode holds for regionID
// across the three region-scoped tiers (meta, page, file) — called when the
// region's ownership leaves this datanode (spec.md §3 CacheEntry lifecycle;
// §4.4 InvalidateCaches). The repeated-value vector tier is keyed by scalar
// value, not region, so it has nothing region-specific to drop.
func (h *Hierarchy) InvalidateRegion(ctx context.Context, regionID stratadb.RegionID) {
	if h.meta != nil {
		h.regionKeysMu.Lock()
		metaKeys := h.metaRegions[regionID]
		delete(h.metaRegions, regionID)
		h.regionKeysMu.Unlock()
		for k := range metaKeys {
			h.meta.Remove(k)
		}
		h.metrics.setBytes("sst_meta", h.meta.Bytes())
	}
	if h.page != nil {
		h.regionKeysMu.Lock()
		pageKeys := h.pageRegions[regionID]
		delete(h.pageRegions, regionID)
		h.regionKeysMu.Unlock()
		for k := range pageKeys {
			h.page.Remove(k)
		}
		h.metrics.setBytes("page", h.page.Bytes())
	}
	if h.file != nil {
		h.file.RemoveRegion(ctx, regionID)
	}
}
