package compiler

import (
	"fmt"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

// CompiledProgram is a validated program.Program paired with the
// long-lived evaluation state (delay/accumulator slots) that must persist
// across Evaluate calls (spec.md §4.2, §4.5: one compiled dataflow graph
// per worker, run once per epoch).
type CompiledProgram struct {
	prog  *program.Program
	mode  diffdl.OverflowMode
	delay *delayState
}

// CompileProgram validates prog and returns a CompiledProgram ready to
// Evaluate. Validation failures (bad arrangement flavors, SCC-input
// relations, dangling references) are program-construction errors and are
// returned as-is (spec.md §7, class 2).
func CompileProgram(prog *program.Program, mode diffdl.OverflowMode) (*CompiledProgram, error) {
	if err := prog.Validate(); err != nil {
		return nil, err
	}
	return &CompiledProgram{prog: prog, mode: mode, delay: newDelayState()}, nil
}

// Result is one epoch's output: the final collection for every relation,
// plus the traces built for every queryable/consumed arrangement.
type Result struct {
	Collections map[diffdl.RelId]*Collection
	Arrangements map[diffdl.ArrId]*Trace
}

// Evaluate recomputes the entire dataflow graph from the given input
// collections (one per input relation), producing every relation's current
// collection and every arrangement's current trace. It is the worker's
// per-epoch recompute step (design note, collection.go): there is no
// persistent operator graph between calls beyond the delay/accumulator
// state threaded through cp.delay. inputs is cloned rather than aliased:
// Evaluate must not mutate the caller's collections, since callers (see
// worker.Worker) reuse the same instance across every epoch. The program's
// InitData (spec.md §3) is not seeded here — engine.Run folds it into the
// driver's instances once at startup, the same path config.InitialData
// takes, so GetInputRelationData and every epoch's recompute agree on one
// seeded state instead of InitData reappearing fresh every epoch on top of
// whatever the driver already holds.
func (cp *CompiledProgram) Evaluate(inputs map[diffdl.RelId]*Collection) (*Result, error) {
	collections := map[diffdl.RelId]*Collection{}
	for id, c := range inputs {
		collections[id] = c.Clone()
	}
	for _, rel := range cp.prog.InputRelations() {
		if _, ok := collections[rel.Id]; !ok {
			collections[rel.Id] = NewCollection(cp.mode)
		}
	}

	arrangements := map[diffdl.ArrId]*Trace{}

	for i := range cp.prog.Nodes {
		node := &cp.prog.Nodes[i]
		switch node.Kind {
		case program.NodeRelation:
			if err := cp.evalRelationNode(node.Relation, collections, arrangements, nil, true); err != nil {
				return nil, fmt.Errorf("relation %q: %w", node.Relation.Name, err)
			}

		case program.NodeTransformer:
			boxed := map[diffdl.RelId]any{}
			for id, c := range collections {
				boxed[id] = c
			}
			node.Transformer.Apply(boxed)
			for id, v := range boxed {
				if c, ok := v.(*Collection); ok {
					collections[id] = c
				}
			}

		case program.NodeSCC:
			if err := cp.evalSCC(node.SCC, collections, arrangements); err != nil {
				return nil, err
			}
		}
	}

	for _, dr := range cp.prog.DelayedRels {
		collections[dr.Id] = cp.delayedSnapshot(dr, collections[dr.Base])
	}

	for _, rel := range cp.prog.Relations() {
		if rel.OnChange == nil {
			continue
		}
		cur := collections[rel.Id]
		changeKey := fmt.Sprintf("change/%d", rel.Id)
		prev := cp.delay.getPrev(changeKey, cp.mode)
		Diff(prev, cur, cp.mode).Range(func(v diffdl.Value, w diffdl.Weight) {
			rel.OnChange(v, diffdl.NestedTS{}, w)
		})
		cp.delay.setPrev(changeKey, cur.Clone())
	}

	return &Result{Collections: collections, Arrangements: arrangements}, nil
}

// evalRelationNode computes rel's collection from its rules (unioning
// every rule's contribution), registers its arrangements, and applies
// rel.Distinct. foreign supplies arrangements visible from an enclosing
// SCC scope (nil at top level). streamful is false for SCC members
// (spec.md §4.2: recursive bodies compile in streamless mode, where
// StreamXForm/Differentiate are rejected rather than silently run).
func (cp *CompiledProgram) evalRelationNode(rel *program.Relation, collections map[diffdl.RelId]*Collection, arrangements map[diffdl.ArrId]*Trace, foreign map[diffdl.ArrId]*Trace, streamful bool) error {
	if rel.Input {
		if rel.Distinct {
			collections[rel.Id] = Distinct(collections[rel.Id])
		}
		cp.buildArrangements(rel, collections[rel.Id], arrangements)
		return nil
	}

	out := NewCollection(cp.mode)
	for ri, rule := range rel.Rules {
		path := fmt.Sprintf("rel%d/rule%d", rel.Id, ri)
		contrib, err := cp.evalRule(rule, collections, arrangements, foreign, path, streamful)
		if err != nil {
			return err
		}
		out = Concat(out, contrib, cp.mode)
	}
	if rel.Distinct {
		out = Distinct(out)
	}
	collections[rel.Id] = out
	cp.buildArrangements(rel, out, arrangements)
	return nil
}

func (cp *CompiledProgram) evalRule(rule program.Rule, collections map[diffdl.RelId]*Collection, arrangements map[diffdl.ArrId]*Trace, foreign map[diffdl.ArrId]*Trace, path string, streamful bool) (*Collection, error) {
	ctx := &evalContext{
		collections: collections,
		local:       arrangements,
		foreign:     foreign,
		mode:        cp.mode,
		streamful:   streamful,
		delay:       cp.delay,
	}
	switch rule.Kind {
	case program.RuleCollection:
		src, ok := collections[rule.SourceRel]
		if !ok {
			return nil, fmt.Errorf("%w: %d", diffdl.ErrUnknownRelation, rule.SourceRel)
		}
		return evalCollectionChain(ctx, src, rule.Transform, path)

	case program.RuleArrangement:
		trace, _, err := ctx.lookupArrangement(rule.SourceArr)
		if err != nil {
			return nil, err
		}
		return evalArrangementChain(ctx, trace, rule.ArrTransform, path)

	default:
		return nil, fmt.Errorf("unknown rule kind %d", rule.Kind)
	}
}

// buildArrangements materializes every arrangement rel declares over its
// own current collection.
func (cp *CompiledProgram) buildArrangements(rel *program.Relation, c *Collection, arrangements map[diffdl.ArrId]*Trace) {
	for _, a := range rel.Arrangements {
		switch a.Kind {
		case program.ArrangementMap:
			t := NewMapTrace(cp.mode)
			c.Range(func(v diffdl.Value, w diffdl.Weight) {
				if key, val, ok := a.ArrangeFn(v); ok {
					t.AddMap(key, val, w)
				}
			})
			arrangements[a.Id] = t

		case program.ArrangementSet:
			src := c
			if a.DistinctBeforeArr {
				src = Distinct(src)
			}
			t := NewSetTrace(cp.mode)
			src.Range(func(v diffdl.Value, w diffdl.Weight) {
				if key, ok := a.FilterMap(v); ok {
					t.AddSet(key, w)
				}
			})
			arrangements[a.Id] = t
		}
	}
}

// delayedSnapshot returns the value of base delayed by dr.Delay epochs.
// Absent a persistent epoch counter in the full-recompute model, this
// engine keeps a ring of the last Delay snapshots per delayed relation,
// keyed by the relation's own id.
func (cp *CompiledProgram) delayedSnapshot(dr program.DelayedRelation, base *Collection) *Collection {
	key := fmt.Sprintf("delayed/%d", dr.Id)
	hist := cp.delayHistory(key, dr.Delay)
	return hist.push(base.Clone())
}

type delayRing struct {
	buf   []*Collection
	depth uint32
	mode  diffdl.OverflowMode
}

func (r *delayRing) push(cur *Collection) *Collection {
	r.buf = append(r.buf, cur)
	if uint32(len(r.buf)) <= r.depth {
		return NewCollection(r.mode)
	}
	out := r.buf[0]
	r.buf = r.buf[1:]
	return out
}

func (cp *CompiledProgram) delayHistory(key string, depth uint32) *delayRing {
	if cp.delay.rings == nil {
		cp.delay.rings = map[string]*delayRing{}
	}
	r, ok := cp.delay.rings[key]
	if !ok {
		r = &delayRing{depth: depth, mode: cp.mode}
		cp.delay.rings[key] = r
	}
	return r
}

