package cachehierarchy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/klauspost/reedsolomon"

	"github.com/stratadb/stratadb"
)

// FileType distinguishes the object-store file kinds the write-through cache
// keeps a local copy of (spec.md §3 CacheEntry key shape).
type FileType int

const (
	// FileTypeSST is a flushed Parquet SST file.
	FileTypeSST FileType = iota
	// FileTypeManifest is a region manifest snapshot.
	FileTypeManifest
)

// FileKey identifies a local copy of an object-store file (spec.md §3).
type FileKey struct {
	RegionID stratadb.RegionID
	FileID   uuid.UUID
	FileType FileType
}

// ObjectStore is the backing object-store surface the write-through file
// cache uploads through and downloads from on a miss, grounded on the
// teacher's aws_s3 S3Bucket (red_s3/s3/bucket_as_store.go).
type ObjectStore interface {
	Upload(ctx context.Context, bucket, key string, data []byte) error
	Download(ctx context.Context, bucket, key string) ([]byte, error)
}

// S3ObjectStore is an ObjectStore backed by AWS S3, grounded on the teacher's
// red_s3/s3/bucket_as_store.go NewBucketAsStore. Uploads go through
// aws-sdk-go-v2's s3/manager uploader; downloads are a single GetObject call.
type S3ObjectStore struct {
	client   *s3.Client
	uploader *manager.Uploader
}

// NewS3ObjectStore wraps an already-configured S3 client.
func NewS3ObjectStore(client *s3.Client) *S3ObjectStore {
	return &S3ObjectStore{client: client, uploader: manager.NewUploader(client)}
}

func (s *S3ObjectStore) Upload(ctx context.Context, bucket, key string, data []byte) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	return err
}

func (s *S3ObjectStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

// ErasureShardStore wraps an ObjectStore, optionally splitting every payload
// into data+parity shards with Reed-Solomon erasure coding before upload,
// grounded on the teacher's fs/erasurecodingconfig.go + fs/erasure/encoder.go.
// A zero parityShards makes it a pass-through.
type ErasureShardStore struct {
	inner        ObjectStore
	dataShards   int
	parityShards int
	encoder      reedsolomon.Encoder
}

// NewErasureShardStore wraps inner with (dataShards, parityShards) Reed-Solomon
// coding. parityShards == 0 disables coding entirely.
func NewErasureShardStore(inner ObjectStore, dataShards, parityShards int) (*ErasureShardStore, error) {
	s := &ErasureShardStore{inner: inner, dataShards: dataShards, parityShards: parityShards}
	if parityShards > 0 {
		enc, err := reedsolomon.New(dataShards, parityShards)
		if err != nil {
			return nil, fmt.Errorf("cachehierarchy: construct erasure encoder: %w", err)
		}
		s.encoder = enc
	}
	return s, nil
}

func (s *ErasureShardStore) Upload(ctx context.Context, bucket, key string, data []byte) error {
	if s.parityShards == 0 {
		return s.inner.Upload(ctx, bucket, key, data)
	}
	shards, err := s.encoder.Split(data)
	if err != nil {
		return fmt.Errorf("cachehierarchy: split shards: %w", err)
	}
	if err := s.encoder.Encode(shards); err != nil {
		return fmt.Errorf("cachehierarchy: encode parity shards: %w", err)
	}
	for i, shard := range shards {
		if err := s.inner.Upload(ctx, bucket, fmt.Sprintf("%s.shard%d", key, i), shard); err != nil {
			return err
		}
	}
	return nil
}

func (s *ErasureShardStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	if s.parityShards == 0 {
		return s.inner.Download(ctx, bucket, key)
	}
	total := s.dataShards + s.parityShards
	shards := make([][]byte, total)
	present := 0
	for i := 0; i < total; i++ {
		shard, err := s.inner.Download(ctx, bucket, fmt.Sprintf("%s.shard%d", key, i))
		if err == nil {
			shards[i] = shard
			present++
		}
	}
	if present < s.dataShards {
		return nil, fmt.Errorf("cachehierarchy: only %d/%d shards available, need %d", present, total, s.dataShards)
	}
	if err := s.encoder.Reconstruct(shards); err != nil {
		return nil, fmt.Errorf("cachehierarchy: reconstruct shards: %w", err)
	}
	var buf bytes.Buffer
	for i := 0; i < s.dataShards; i++ {
		buf.Write(shards[i])
	}
	return buf.Bytes(), nil
}

type fileCacheEntry struct {
	data   []byte
	weight int64
}

// FileCache is the write-through local-copy cache for object-store files
// (spec.md §4.1, §3). A hit serves out of the in-memory LRU; a miss falls
// through to ObjectStore and populates the LRU.
type FileCache struct {
	lru     *WeightedLRU[string, fileCacheEntry]
	store   ObjectStore
	metrics *Metrics

	mu      sync.Mutex
	regions map[stratadb.RegionID]map[string]struct{}
}

// NewFileCache constructs a FileCache with the given byte budget, backed by
// store.
func NewFileCache(capacityBytes int64, store ObjectStore, metrics *Metrics) *FileCache {
	fc := &FileCache{store: store, metrics: metrics, regions: make(map[stratadb.RegionID]map[string]struct{})}
	fc.lru = NewWeightedLRU[string, fileCacheEntry](capacityBytes, func(_ string, v fileCacheEntry) int64 {
		return v.weight
	}, func(key string, _ fileCacheEntry, _ int64) {
		metrics.setBytes("file", fc.lru.Bytes())
		_ = key
	})
	return fc
}

func fileObjectKey(key FileKey) string {
	return fmt.Sprintf("region/%s/file/%s/type/%d", key.RegionID, key.FileID.String(), key.FileType)
}

// Get probes the local LRU; on miss it downloads from ObjectStore and
// populates the LRU.
func (fc *FileCache) Get(ctx context.Context, key FileKey) ([]byte, bool) {
	objKey := fileObjectKey(key)
	if v, ok := fc.lru.Get(objKey); ok {
		fc.metrics.hit("file")
		return v.data, true
	}
	fc.metrics.miss("file")
	data, err := fc.store.Download(ctx, "stratadb-regions", objKey)
	if err != nil {
		return nil, false
	}
	fc.put(key, data)
	return data, true
}

// Put uploads data through to ObjectStore and populates the local LRU
// (write-through).
func (fc *FileCache) Put(ctx context.Context, key FileKey, data []byte) error {
	if err := fc.store.Upload(ctx, "stratadb-regions", fileObjectKey(key), data); err != nil {
		return err
	}
	fc.put(key, data)
	return nil
}

func (fc *FileCache) put(key FileKey, data []byte) {
	fc.lru.Put(fileObjectKey(key), fileCacheEntry{data: data, weight: int64(len(data))})
	fc.metrics.setBytes("file", fc.lru.Bytes())

	fc.mu.Lock()
	defer fc.mu.Unlock()
	set, ok := fc.regions[key.RegionID]
	if !ok {
		set = make(map[string]struct{})
		fc.regions[key.RegionID] = set
	}
	set[fileObjectKey(key)] = struct{}{}
}

// RemoveRegion drops every locally cached file belonging to regionID —
// called when the region's ownership leaves this datanode.
func (fc *FileCache) RemoveRegion(_ context.Context, regionID stratadb.RegionID) {
	fc.mu.Lock()
	keys := fc.regions[regionID]
	delete(fc.regions, regionID)
	fc.mu.Unlock()

	for k := range keys {
		fc.lru.Remove(k)
	}
	fc.metrics.setBytes("file", fc.lru.Bytes())
}
