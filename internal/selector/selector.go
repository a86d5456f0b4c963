// Package selector implements the Selector (C8): pluggable choice of
// candidate target datanodes when a migration caller does not specify one
// (spec.md §4.5). A Selector is a pure function of the context it receives.
package selector

import (
	"context"

	"github.com/stratadb/stratadb"
)

// Namespace scopes a selection request (e.g. a table or cluster namespace).
type Namespace string

// Options narrows the candidate set a Selector considers.
type Options struct {
	// ExcludePeers are peer IDs that must never be returned (e.g. the
	// migration's own from_peer).
	ExcludePeers []uint64
	// MinCount, when non-zero, fails the selection if fewer candidates survive
	// filtering than requested.
	MinCount int
}

// excludes reports whether id appears in excludePeers.
func excludes(excludePeers []uint64, id uint64) bool {
	for _, x := range excludePeers {
		if x == id {
			return true
		}
	}
	return false
}

// Selector chooses an ordered list of candidate Peers for ns given opts.
type Selector interface {
	Select(ctx context.Context, ns Namespace, opts Options) ([]stratadb.Peer, error)
}
