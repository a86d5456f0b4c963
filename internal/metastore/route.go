package metastore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/stratadb/stratadb"
)

// RegionRoute maps a RegionID to exactly one leader Peer plus zero or more
// follower Peers. Version is the metastore CAS fencing token: any write must
// present the version it last observed, so concurrent CommitRouteChange
// attempts from stale procedure instances fail with ErrVersionMismatch rather
// than silently clobbering each other (spec.md §3 Invariant — exactly one
// leader at any commit index).
type RegionRoute struct {
	RegionID  stratadb.RegionID
	Leader    stratadb.Peer
	Followers []stratadb.Peer
	Version   uint64
}

// Routes provides region-route specific operations layered on top of a plain
// Client.
type Routes struct {
	store Client
}

// NewRoutes wraps store with region-route semantics.
func NewRoutes(store Client) *Routes {
	return &Routes{store: store}
}

// Get fetches the current route for regionID.
func (r *Routes) Get(ctx context.Context, regionID stratadb.RegionID) (RegionRoute, error) {
	e, err := r.store.Get(ctx, RouteKey(regionID))
	if err != nil {
		return RegionRoute{}, err
	}
	var rt RegionRoute
	if err := json.Unmarshal(e.Value, &rt); err != nil {
		return RegionRoute{}, fmt.Errorf("decode region route: %w", err)
	}
	rt.Version = e.Version
	return rt, nil
}

// Put unconditionally writes a region's initial route (e.g. at table creation).
func (r *Routes) Put(ctx context.Context, route RegionRoute) (RegionRoute, error) {
	b, err := json.Marshal(route)
	if err != nil {
		return RegionRoute{}, err
	}
	e, err := r.store.Put(ctx, RouteKey(route.RegionID), b)
	if err != nil {
		return RegionRoute{}, err
	}
	route.Version = e.Version
	return route, nil
}

// CommitLeaderChange performs the single linearizable CAS described in
// spec.md §4.4's CommitRouteChange step: the route's leader moves from
// fromPeer to toPeer iff the route is still at expectedVersion and its
// current leader is still fromPeer. On a losing race it returns
// ErrVersionMismatch (the procedure maps this to stratadb.RouteChanged).
func (r *Routes) CommitLeaderChange(ctx context.Context, regionID stratadb.RegionID, expectedVersion uint64, fromPeer, toPeer stratadb.Peer) (RegionRoute, error) {
	current, err := r.Get(ctx, regionID)
	if err != nil {
		return RegionRoute{}, err
	}
	if current.Version != expectedVersion || !current.Leader.Equal(fromPeer) {
		return RegionRoute{}, ErrVersionMismatch
	}
	next := current
	next.Leader = toPeer
	b, err := json.Marshal(next)
	if err != nil {
		return RegionRoute{}, err
	}
	e, err := r.store.CompareAndSwap(ctx, RouteKey(regionID), expectedVersion, b)
	if err != nil {
		return RegionRoute{}, err
	}
	next.Version = e.Version
	return next, nil
}

// Distribution computes RegionDistribution for a table: the inverse mapping
// from peer ID to the sorted list of region numbers it leads (spec.md §3).
func (r *Routes) Distribution(ctx context.Context, tableID uint32) (map[uint64][]uint32, error) {
	entries, err := r.store.List(ctx, TableRoutePrefix(tableID))
	if err != nil {
		return nil, err
	}
	dist := make(map[uint64][]uint32)
	for _, e := range entries {
		var rt RegionRoute
		if err := json.Unmarshal(e.Value, &rt); err != nil {
			return nil, fmt.Errorf("decode region route: %w", err)
		}
		dist[rt.Leader.ID] = append(dist[rt.Leader.ID], rt.RegionID.RegionNumber())
	}
	for _, nums := range dist {
		sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	}
	return dist, nil
}
