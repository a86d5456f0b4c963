package selector

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"

	"github.com/stratadb/stratadb"
)

// PeerFacts is one candidate peer's observed state, as reported by the
// Heartbeat Bus (C3) and the region distribution, fed into a PolicySelector's
// CEL expression as mapX.
type PeerFacts struct {
	Peer        stratadb.Peer
	Reachable   bool
	RegionCount int
	Rack        string
}

// FactsProvider supplies the candidate peers for a namespace along with their
// current facts.
type FactsProvider interface {
	Facts(ctx context.Context, ns Namespace) ([]PeerFacts, error)
}

// PolicySelector filters FactsProvider's candidates through a caller-supplied
// CEL expression rather than hardcoded Go logic. The expression receives one
// candidate's facts as mapX and must evaluate to a non-zero int when that
// peer should be selected, e.g.
// `mapX.reachable && mapX.region_count < 100 ? 1 : 0`. Unlike a general
// CEL comparator, a peer filter only ever judges one candidate at a time, so
// the compiled environment declares mapX alone.
type PolicySelector struct {
	facts   FactsProvider
	program cel.Program
}

// NewPolicySelector compiles expression once against a single mapX variable
// and returns a PolicySelector that evaluates it against every candidate
// facts provides.
func NewPolicySelector(facts FactsProvider, expression string) (*PolicySelector, error) {
	if expression == "" {
		return nil, fmt.Errorf("selector: policy expression cannot be empty")
	}
	env, err := cel.NewEnv(cel.Variable("mapX", cel.MapType(cel.StringType, cel.AnyType)))
	if err != nil {
		return nil, fmt.Errorf("selector: create CEL environment: %w", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("selector: compile policy expression: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("selector: build CEL program: %w", err)
	}
	return &PolicySelector{facts: facts, program: program}, nil
}

func (s *PolicySelector) Select(ctx context.Context, ns Namespace, opts Options) ([]stratadb.Peer, error) {
	candidates, err := s.facts.Facts(ctx, ns)
	if err != nil {
		return nil, stratadb.NewError(stratadb.Transient, err)
	}

	var out []stratadb.Peer
	for _, f := range candidates {
		if excludes(opts.ExcludePeers, f.Peer.ID) {
			continue
		}
		selected, err := s.evaluate(f)
		if err != nil {
			return nil, fmt.Errorf("selector: evaluate policy for peer %s: %w", f.Peer, err)
		}
		if selected {
			out = append(out, f.Peer)
		}
	}

	if opts.MinCount > 0 && len(out) < opts.MinCount {
		return nil, stratadb.NewError(stratadb.RegionRouteNotFound, fmt.Errorf("selector: policy yielded %d candidate(s), want at least %d", len(out), opts.MinCount))
	}
	return out, nil
}

// evaluate runs the compiled policy expression against one candidate's facts
// and reports whether it selected it (a non-zero int result).
func (s *PolicySelector) evaluate(f PeerFacts) (bool, error) {
	out, _, err := s.program.Eval(map[string]any{
		"mapX": map[string]any{
			"id":           int64(f.Peer.ID),
			"reachable":    f.Reachable,
			"region_count": int64(f.RegionCount),
			"rack":         f.Rack,
		},
	})
	if err != nil {
		return false, fmt.Errorf("error evaluating CEL expression: %w", err)
	}
	nv, err := out.ConvertToNative(reflect.TypeOf(int(0)))
	if err != nil {
		return false, fmt.Errorf("policy expression must evaluate to an int: %w", err)
	}
	verdict, ok := nv.(int)
	if !ok {
		return false, fmt.Errorf("policy expression must evaluate to an int, got %T", nv)
	}
	return verdict != 0, nil
}
