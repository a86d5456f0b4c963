// Package metastore implements the Kv Metastore Client (C1): linearizable
// key/value reads, writes, and CAS, plus region routes. It is the cluster's
// single source of truth for region ownership. It holds no write leases: the
// region write lease is a Redis key managed by internal/heartbeat's
// LeaseManager.
package metastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/stratadb/stratadb"
)

// ErrVersionMismatch is returned by CAS when the expected version does not
// match the stored version — the metastore equivalent of a failed
// compare-and-swap on a register.
var ErrVersionMismatch = errors.New("metastore: version mismatch")

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New("metastore: key not found")

// Entry is a versioned value as stored in the metastore. Version is the CAS
// fencing token: every successful write increments it by exactly one.
type Entry struct {
	Key     string
	Value   []byte
	Version uint64
}

// Client is the linearizable key/value surface every other component is
// built on. All contended updates go through CompareAndSwap.
type Client interface {
	// Get fetches the current value and version for key.
	Get(ctx context.Context, key string) (Entry, error)
	// Put unconditionally writes value, bumping the version by one (creating
	// the key at version 1 if absent). Used for non-contended initial writes.
	Put(ctx context.Context, key string, value []byte) (Entry, error)
	// CompareAndSwap writes newValue iff the stored version equals
	// expectedVersion (0 means "key must not exist yet"). Returns
	// ErrVersionMismatch on a losing race.
	CompareAndSwap(ctx context.Context, key string, expectedVersion uint64, newValue []byte) (Entry, error)
	// Delete removes key unconditionally.
	Delete(ctx context.Context, key string) error
	// List returns every entry whose key has the given prefix, for route/
	// distribution scans.
	List(ctx context.Context, keyPrefix string) ([]Entry, error)
}

// RouteKey returns the deterministic metastore key for a region's route. Keys
// are prefixed by table ID so TableRoutePrefix can List() every region route
// belonging to one table (used to compute RegionDistribution, spec.md §3).
func RouteKey(regionID stratadb.RegionID) string {
	return fmt.Sprintf("region-route/%010d/%010d", regionID.TableID(), regionID.RegionNumber())
}

// TableRoutePrefix returns the key prefix under which every region route of a
// table is stored.
func TableRoutePrefix(tableID uint32) string {
	return fmt.Sprintf("region-route/%010d/", tableID)
}

// ProcedureKey returns the deterministic metastore key for a procedure record.
func ProcedureKey(procedureID string) string {
	return "procedure/" + procedureID
}
