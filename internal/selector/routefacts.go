package selector

import (
	"context"
	"strconv"
	"time"

	"github.com/stratadb/stratadb"
	"github.com/stratadb/stratadb/internal/heartbeat"
	"github.com/stratadb/stratadb/internal/metastore"
)

// RouteFactsProvider is a FactsProvider over a fixed datanode roster,
// enriching each peer with its current liveness (via the Heartbeat Bus, C3)
// and region count for the table named by ns (via the route table's
// Distribution, C1) — the two signals a PolicySelector expression commonly
// filters on ("reachable && region_count < N").
type RouteFactsProvider struct {
	peers          []stratadb.Peer
	liveness       heartbeat.LivenessChecker
	routes         *metastore.Routes
	livenessWindow time.Duration
}

// NewRouteFactsProvider returns a RouteFactsProvider over peers, checking
// liveness within livenessWindow and region counts through routes.
func NewRouteFactsProvider(peers []stratadb.Peer, liveness heartbeat.LivenessChecker, routes *metastore.Routes, livenessWindow time.Duration) *RouteFactsProvider {
	return &RouteFactsProvider{
		peers:          append([]stratadb.Peer(nil), peers...),
		liveness:       liveness,
		routes:         routes,
		livenessWindow: livenessWindow,
	}
}

// Facts implements FactsProvider. ns is parsed as a table ID; a namespace
// that doesn't parse as a uint32 yields RegionCount 0 for every peer rather
// than failing outright, since not every caller scopes selection to a table.
func (p *RouteFactsProvider) Facts(ctx context.Context, ns Namespace) ([]PeerFacts, error) {
	var dist map[uint64][]uint32
	if tableID, err := strconv.ParseUint(string(ns), 10, 32); err == nil {
		dist, _ = p.routes.Distribution(ctx, uint32(tableID))
	}

	out := make([]PeerFacts, 0, len(p.peers))
	for _, peer := range p.peers {
		reachable, err := p.liveness.IsReachable(ctx, peer.ID, p.livenessWindow)
		if err != nil {
			reachable = false
		}
		out = append(out, PeerFacts{
			Peer:        peer,
			Reachable:   reachable,
			RegionCount: len(dist[peer.ID]),
		})
	}
	return out, nil
}
