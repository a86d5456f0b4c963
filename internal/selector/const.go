package selector

import (
	"context"

	"github.com/stratadb/stratadb"
)

// ConstNodeSelector returns a fixed peer list regardless of namespace or
// options, grounded on the integration harness's deterministic test selector
// (region_migration.rs's ConstNodeSelector), which also ignores namespace and
// options and simply returns a clone of its configured peer list. cmd/metasrv
// uses it when no selection policy is configured. The scenario tests in
// internal/migration use no selector; they seed routes directly.
type ConstNodeSelector struct {
	peers []stratadb.Peer
}

// NewConstNodeSelector returns a ConstNodeSelector that always yields peers.
func NewConstNodeSelector(peers ...stratadb.Peer) *ConstNodeSelector {
	return &ConstNodeSelector{peers: append([]stratadb.Peer(nil), peers...)}
}

func (s *ConstNodeSelector) Select(_ context.Context, _ Namespace, _ Options) ([]stratadb.Peer, error) {
	return append([]stratadb.Peer(nil), s.peers...), nil
}
