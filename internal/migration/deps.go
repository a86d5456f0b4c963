package migration

import (
	"context"
	"time"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/datanode"
	"github.com/stratadb/stratadb/internal/heartbeat"
	"github.com/stratadb/stratadb/internal/metastore"
)

// Dialer resolves a Datanode Facade for peer. Production wiring dials
// datanode.NewHTTPClient(peer, timeout); tests hand back one
// datanode.FakeClient per peer.
type Dialer func(peer stratadb.Peer) datanode.Facade

// PeerLister returns every peer that should receive an InvalidateCaches
// broadcast for regionID — ordinarily the region's current leader and
// followers, derived from the route table.
type PeerLister func(ctx context.Context, regionID stratadb.RegionID) ([]stratadb.Peer, error)

// Deps bundles every capability a migration Step needs, grounded on
// spec.md §9's "construction-time context" note: steps receive capabilities
// explicitly rather than reaching for package-level singletons. Construct
// with NewDeps; fields are unexported so callers outside this package cannot
// partially initialize one.
type Deps struct {
	dial          Dialer
	routes        *metastore.Routes
	leases        heartbeat.Leaser
	peersForRoute PeerLister

	lagThreshold uint64
	leaseTTL     time.Duration
	freezeGrace  time.Duration
	fanoutLimit  int
}

// NewDeps builds the capability bundle a Manager hands to every procedure it
// submits. lagThreshold bounds ReplicateCatchUp's acceptable lag (bytes of
// WAL offset); leaseTTL/freezeGrace parameterize FreezeSourceWrites;
// fanoutLimit bounds InvalidateCaches' concurrent broadcast.
func NewDeps(dial Dialer, routes *metastore.Routes, leases heartbeat.Leaser, peersForRoute PeerLister, lagThreshold uint64, leaseTTL, freezeGrace time.Duration, fanoutLimit int) *Deps {
	return &Deps{
		dial:          dial,
		routes:        routes,
		leases:        leases,
		peersForRoute: peersForRoute,
		lagThreshold:  lagThreshold,
		leaseTTL:      leaseTTL,
		freezeGrace:   freezeGrace,
		fanoutLimit:   fanoutLimit,
	}
}

// RoutesPeerLister derives a PeerLister from routes: every migration
// broadcasts invalidation to the region's current leader and followers.
func RoutesPeerLister(routes *metastore.Routes) PeerLister {
	return func(ctx context.Context, regionID stratadb.RegionID) ([]stratadb.Peer, error) {
		route, err := routes.Get(ctx, regionID)
		if err != nil {
			return nil, err
		}
		peers := append([]stratadb.Peer{route.Leader}, route.Followers...)
		return peers, nil
	}
}
