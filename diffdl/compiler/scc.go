package compiler

import (
	"fmt"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

// sccIterationLimit bounds the fixpoint loop so a program whose recursion
// genuinely never converges (a bug in the rules, not in this engine)
// fails loudly instead of hanging a worker.
const sccIterationLimit = 10000

// evalSCC runs scc's member relations to a fixpoint inside a single nested
// iterative scope (spec.md §3, §4.1): every member starts at the empty
// collection, each iteration re-evaluates every member's rules against the
// current iterate of every other member (collections + arrangements stay
// visible across members within the scope), and the loop stops once no
// member's collection changed.
//
// Arrangements built by nodes *before* this SCC in program order are
// passed down as foreign; arrangements the SCC's own members build are
// local to the scope and all of them are exported to the parent's
// arrangement map once the fixpoint is reached.
func (cp *CompiledProgram) evalSCC(scc *program.SCC, collections map[diffdl.RelId]*Collection, arrangements map[diffdl.ArrId]*Trace) error {
	members := scc.Members
	for i := range members {
		collections[members[i].Id] = NewCollection(cp.mode)
	}

	foreign := arrangements
	local := map[diffdl.ArrId]*Trace{}
	// A recursive member's rule can source an arrangement that member
	// itself builds (buildArrangements only runs at the end of
	// evalRelationNode, after rules evaluate) — e.g. reach's own
	// "arranged by destination" trace feeding reach's self-join. Seed
	// every member arrangement as empty up front so iteration 0 resolves
	// that lookup to the empty trace, matching "every member starts at
	// the empty collection" (doc comment above); evalRelationNode
	// overwrites these with the real trace at the end of every
	// iteration from here on, so later iterations see genuine progress.
	for i := range members {
		for _, a := range members[i].Arrangements {
			switch a.Kind {
			case program.ArrangementMap:
				local[a.Id] = NewMapTrace(cp.mode)
			case program.ArrangementSet:
				local[a.Id] = NewSetTrace(cp.mode)
			}
		}
	}

	for iter := 0; ; iter++ {
		if iter >= sccIterationLimit {
			return fmt.Errorf("scc did not converge after %d iterations", sccIterationLimit)
		}
		changed := false
		for i := range members {
			rel := &members[i]
			before := collections[rel.Id]
			if err := cp.evalRelationNode(rel, collections, local, foreign, false); err != nil {
				return fmt.Errorf("scc member %q: %w", rel.Name, err)
			}
			if !before.Equal(collections[rel.Id]) {
				changed = true
			}
		}
		if !changed {
			break
		}
	}

	for id, t := range local {
		arrangements[id] = t
	}
	return nil
}
