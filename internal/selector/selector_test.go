package selector

import (
	"context"
	"testing"

	"github.com/stratadb/stratadb"
)

func TestConstNodeSelectorIgnoresOptions(t *testing.T) {
	peers := []stratadb.Peer{{ID: 1, Addr: "a"}, {ID: 2, Addr: "b"}, {ID: 3, Addr: "c"}}
	s := NewConstNodeSelector(peers...)

	got, err := s.Select(context.Background(), Namespace("test"), Options{ExcludePeers: []uint64{2}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Select() = %v, want all 3 peers returned verbatim regardless of ExcludePeers", got)
	}
}

type fakeFactsProvider struct {
	facts []PeerFacts
}

func (f fakeFactsProvider) Facts(context.Context, Namespace) ([]PeerFacts, error) {
	return f.facts, nil
}

func TestPolicySelectorFiltersByExpression(t *testing.T) {
	facts := fakeFactsProvider{facts: []PeerFacts{
		{Peer: stratadb.Peer{ID: 1}, Reachable: true, RegionCount: 5},
		{Peer: stratadb.Peer{ID: 2}, Reachable: false, RegionCount: 1},
		{Peer: stratadb.Peer{ID: 3}, Reachable: true, RegionCount: 200},
	}}
	s, err := NewPolicySelector(facts, "mapX.reachable && mapX.region_count < 100 ? 1 : 0")
	if err != nil {
		t.Fatalf("NewPolicySelector: %v", err)
	}

	got, err := s.Select(context.Background(), Namespace("test"), Options{})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("Select() = %v, want only peer 1 (reachable, low region count)", got)
	}
}

func TestPolicySelectorMinCountFails(t *testing.T) {
	facts := fakeFactsProvider{facts: []PeerFacts{
		{Peer: stratadb.Peer{ID: 1}, Reachable: false},
	}}
	s, err := NewPolicySelector(facts, "mapX.reachable ? 1 : 0")
	if err != nil {
		t.Fatalf("NewPolicySelector: %v", err)
	}

	if _, err := s.Select(context.Background(), Namespace("test"), Options{MinCount: 1}); err == nil {
		t.Fatalf("Select should fail when fewer than MinCount candidates survive filtering")
	}
}

func TestPolicySelectorExcludesPeers(t *testing.T) {
	facts := fakeFactsProvider{facts: []PeerFacts{
		{Peer: stratadb.Peer{ID: 1}, Reachable: true},
		{Peer: stratadb.Peer{ID: 2}, Reachable: true},
	}}
	s, err := NewPolicySelector(facts, "mapX.reachable ? 1 : 0")
	if err != nil {
		t.Fatalf("NewPolicySelector: %v", err)
	}

	got, err := s.Select(context.Background(), Namespace("test"), Options{ExcludePeers: []uint64{1}})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if len(got) != 1 || got[0].ID != 2 {
		t.Fatalf("Select() = %v, want only peer 2", got)
	}
}
