package compiler

import (
	"fmt"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

// delayState carries the per-operator persistent state that a true
// incremental dataflow would keep pinned to its operator instance across
// epochs: Differentiate's previous snapshot, and StreamXForm's running
// accumulation. Keyed by the path string evalCollectionChain builds for
// each operator position (design note: see collection.go's package doc).
type delayState struct {
	prev  map[string]*Collection
	accum map[string]*Collection
	// rings holds DelayedRelation history buffers, keyed by relation id;
	// see compiler.go's delayHistory/delayedSnapshot.
	rings map[string]*delayRing
}

func newDelayState() *delayState {
	return &delayState{prev: map[string]*Collection{}, accum: map[string]*Collection{}}
}

func (d *delayState) getPrev(key string, mode diffdl.OverflowMode) *Collection {
	if c, ok := d.prev[key]; ok {
		return c
	}
	return NewCollection(mode)
}

func (d *delayState) setPrev(key string, c *Collection) { d.prev[key] = c }

func (d *delayState) getAccum(key string, mode diffdl.OverflowMode) *Collection {
	if c, ok := d.accum[key]; ok {
		return c
	}
	return NewCollection(mode)
}

func (d *delayState) setAccum(key string, c *Collection) { d.accum[key] = c }

// evalContext is the environment an operator chain evaluates against: the
// already-compiled collections for every relation earlier in program
// order, the arrangements built so far in this scope (Local) versus
// imported from an enclosing SCC (Foreign), and the overflow/streamful
// mode governing this position in the chain.
type evalContext struct {
	collections map[diffdl.RelId]*Collection
	local       map[diffdl.ArrId]*Trace
	foreign     map[diffdl.ArrId]*Trace
	mode        diffdl.OverflowMode
	streamful   bool
	delay       *delayState
}

// lookupArrangement resolves id against local scope first, then foreign,
// matching spec.md's "local or foreign" language for operators that
// accept both.
func (ctx *evalContext) lookupArrangement(id diffdl.ArrId) (*Trace, bool, error) {
	if t, ok := ctx.local[id]; ok {
		return t, true, nil
	}
	if t, ok := ctx.foreign[id]; ok {
		return t, false, nil
	}
	return nil, false, fmt.Errorf("%w: %s", diffdl.ErrUnknownArrangement, id)
}

// lookupLocalArrangement resolves id against local scope only, for
// operators the spec restricts to in-scope arrangements (StreamJoin,
// StreamSemijoin). An id that resolves in the foreign scope instead is a
// distinct, more specific error than "not found at all".
func (ctx *evalContext) lookupLocalArrangement(id diffdl.ArrId) (*Trace, error) {
	if t, ok := ctx.local[id]; ok {
		return t, nil
	}
	if _, ok := ctx.foreign[id]; ok {
		return nil, fmt.Errorf("%w: %s", diffdl.ErrForeignStreamJoin, id)
	}
	return nil, fmt.Errorf("%w: %s", diffdl.ErrUnknownArrangement, id)
}

// evalCollectionChain runs a collection-rooted operator chain over input,
// returning the resulting collection. path uniquely identifies this
// chain's position in the program so Differentiate and StreamXForm can
// persist state across calls (i.e. across epochs).
func evalCollectionChain(ctx *evalContext, input *Collection, chain *program.Chain, path string) (*Collection, error) {
	if chain.IsEmpty() {
		return input, nil
	}
	cur := input
	for i := chain.Head; i >= 0; {
		op := chain.At(i)
		opPath := fmt.Sprintf("%s/%d", path, i)
		next, err := evalOneCollectionOp(ctx, cur, op, opPath)
		if err != nil {
			return nil, err
		}
		cur = next
		i = op.Next
	}
	return cur, nil
}

func evalOneCollectionOp(ctx *evalContext, cur *Collection, op program.Op, opPath string) (*Collection, error) {
	switch op.Kind {
	case program.OpMap:
		return mapCollection(cur, op.Map), nil

	case program.OpFlatMap:
		return flatMapCollection(cur, op.FlatMap), nil

	case program.OpFilter:
		return filterCollection(cur, op.Filter), nil

	case program.OpFilterMap:
		return filterMapCollection(cur, op.FilterMap), nil

	case program.OpInspect:
		prev := ctx.delay.getPrev(opPath, ctx.mode)
		delta := Diff(prev, cur, ctx.mode)
		delta.Range(func(v diffdl.Value, w diffdl.Weight) {
			op.Inspect(v, diffdl.NestedTS{}, w)
		})
		ctx.delay.setPrev(opPath, cur.Clone())
		return cur, nil

	case program.OpDifferentiate:
		if !ctx.streamful {
			return nil, diffdl.ErrDifferentiateNested
		}
		delayed := ctx.delay.getPrev(opPath, ctx.mode)
		out := Concat(cur, Negate(delayed), ctx.mode)
		ctx.delay.setPrev(opPath, cur.Clone())
		return out, nil

	case program.OpArrange:
		trace := NewMapTrace(ctx.mode)
		cur.Range(func(v diffdl.Value, w diffdl.Weight) {
			if key, val, ok := op.Arrange(v); ok {
				trace.AddMap(key, val, w)
			}
		})
		if op.ArrId != (diffdl.ArrId{}) {
			ctx.local[op.ArrId] = trace
		}
		if op.XForm == nil || op.XForm.IsEmpty() {
			return nil, fmt.Errorf("arrange operator %s: %w", op.ArrId, errMissingXForm)
		}
		return evalArrangementChain(ctx, trace, op.XForm, opPath+"/arr")

	case program.OpStreamJoin:
		target, err := ctx.lookupLocalArrangement(op.ArrId)
		if err != nil {
			return nil, err
		}
		if target.Kind != ArrMap {
			return nil, fmt.Errorf("%w: stream-join target %s", diffdl.ErrArrangementFlavor, op.ArrId)
		}
		out := NewCollection(ctx.mode)
		cur.Range(func(v diffdl.Value, w diffdl.Weight) {
			key, v2, ok := op.Arrange(v)
			if !ok {
				return
			}
			for _, wv := range target.Lookup(key) {
				if val, ok := op.Join(key, wv.Value, v2); ok {
					out.Add(val, wv.Weight.Mul(w))
				}
			}
		})
		return out, nil

	case program.OpStreamSemijoin:
		target, err := ctx.lookupLocalArrangement(op.ArrId)
		if err != nil {
			return nil, err
		}
		if target.Kind != ArrSet {
			return nil, fmt.Errorf("%w: stream-semijoin target %s", diffdl.ErrArrangementFlavor, op.ArrId)
		}
		out := NewCollection(ctx.mode)
		cur.Range(func(v diffdl.Value, w diffdl.Weight) {
			key, _, ok := op.Arrange(v)
			if !ok || !target.Contains(key) {
				return
			}
			if val, ok := op.StreamSemijoin(v); ok {
				out.Add(val, w.Mul(target.weightOf(key)))
			}
		})
		return out, nil

	case program.OpStreamXForm:
		if !ctx.streamful {
			return nil, diffdl.ErrStreamXFormNested
		}
		prevSnapshot := ctx.delay.getPrev(opPath+"/snap", ctx.mode)
		delta := Diff(prevSnapshot, cur, ctx.mode)
		ctx.delay.setPrev(opPath+"/snap", cur.Clone())

		nested := &evalContext{
			collections: ctx.collections,
			local:       map[diffdl.ArrId]*Trace{},
			foreign:     map[diffdl.ArrId]*Trace{},
			mode:        ctx.mode,
			streamful:   false,
			delay:       ctx.delay,
		}
		xformed, err := evalCollectionChain(nested, delta, op.XForm, opPath+"/xform")
		if err != nil {
			return nil, err
		}
		accum := Concat(ctx.delay.getAccum(opPath+"/accum", ctx.mode), xformed, ctx.mode)
		ctx.delay.setAccum(opPath+"/accum", accum)
		return accum.Clone(), nil

	default:
		return nil, fmt.Errorf("operator kind %d is not valid at the head of a collection chain", op.Kind)
	}
}

var errMissingXForm = fmt.Errorf("arrangement transformation is mandatory")

// evalArrangementChain runs the mandatory arrangement-rooted head operator
// of chain against trace, then continues evaluating the remainder of the
// same flat Ops slice (op.Next onward) as an ordinary collection chain —
// "arrangement transformations always appear at the head and descend into
// collection chains" (spec.md §4.2).
func evalArrangementChain(ctx *evalContext, trace *Trace, chain *program.Chain, path string) (*Collection, error) {
	if chain.IsEmpty() {
		return nil, errMissingXForm
	}
	head := chain.At(chain.Head)
	out, err := evalArrangementHead(ctx, trace, head, path)
	if err != nil {
		return nil, err
	}
	if head.Next < 0 {
		return out, nil
	}
	rest := &program.Chain{Ops: chain.Ops, Head: head.Next}
	return evalCollectionChain(ctx, out, rest, path+"/cont")
}

func evalArrangementHead(ctx *evalContext, trace *Trace, op program.Op, path string) (*Collection, error) {
	switch op.Kind {
	case program.OpArrFlatMap:
		out := NewCollection(ctx.mode)
		for _, key := range trace.Keys() {
			for _, wv := range trace.Lookup(key) {
				for _, v := range op.FlatMap(wv.Value) {
					out.Add(v, wv.Weight)
				}
			}
		}
		return out, nil

	case program.OpArrFilterMap:
		out := NewCollection(ctx.mode)
		for _, key := range trace.Keys() {
			for _, wv := range trace.Lookup(key) {
				if v, ok := op.FilterMap(wv.Value); ok {
					out.Add(v, wv.Weight)
				}
			}
		}
		return out, nil

	case program.OpAggregate:
		out := NewCollection(ctx.mode)
		for _, key := range trace.Keys() {
			group := applyPreFilter(trace.Lookup(key), op.PreFilter)
			if len(group) == 0 {
				continue
			}
			if v, ok := op.Aggregate(key, group); ok {
				out.Add(v, diffdl.WeightOne(ctx.mode))
			}
		}
		return out, nil

	case program.OpJoin:
		target, _, err := ctx.lookupArrangement(op.ArrId)
		if err != nil {
			return nil, err
		}
		if target.Kind != ArrMap {
			return nil, fmt.Errorf("%w: join target %s", diffdl.ErrArrangementFlavor, op.ArrId)
		}
		out := NewCollection(ctx.mode)
		for _, key := range trace.Keys() {
			self := applyPreFilter(trace.Lookup(key), op.PreFilter)
			other := target.Lookup(key)
			for _, wv1 := range self {
				for _, wv2 := range other {
					if v, ok := op.Join(key, wv1.Value, wv2.Value); ok {
						out.Add(v, wv1.Weight.Mul(wv2.Weight))
					}
				}
			}
		}
		return out, nil

	case program.OpValJoin:
		target, _, err := ctx.lookupArrangement(op.ArrId)
		if err != nil {
			return nil, err
		}
		if target.Kind != ArrMap {
			return nil, fmt.Errorf("%w: join target %s", diffdl.ErrArrangementFlavor, op.ArrId)
		}
		out := NewCollection(ctx.mode)
		for _, key := range trace.Keys() {
			self := applyPreFilter(trace.Lookup(key), op.PreFilter)
			other := target.Lookup(key)
			for _, wv1 := range self {
				for _, wv2 := range other {
					if v, ok := op.ValJoin(wv1.Value, wv2.Value); ok {
						out.Add(v, wv1.Weight.Mul(wv2.Weight))
					}
				}
			}
		}
		return out, nil

	case program.OpSemijoin:
		target, _, err := ctx.lookupArrangement(op.ArrId)
		if err != nil {
			return nil, err
		}
		if target.Kind != ArrSet {
			return nil, fmt.Errorf("%w: semijoin target %s", diffdl.ErrArrangementFlavor, op.ArrId)
		}
		out := NewCollection(ctx.mode)
		for _, key := range trace.Keys() {
			if !target.Contains(key) {
				continue
			}
			memberWeight := target.weightOf(key)
			for _, wv := range applyPreFilter(trace.Lookup(key), op.PreFilter) {
				if v, ok := op.Semijoin(key, wv.Value); ok {
					out.Add(v, wv.Weight.Mul(memberWeight))
				}
			}
		}
		return out, nil

	case program.OpAntijoin:
		target, _, err := ctx.lookupArrangement(op.ArrId)
		if err != nil {
			return nil, err
		}
		if target.Kind != ArrSet {
			return nil, fmt.Errorf("%w: antijoin target %s", diffdl.ErrArrangementFlavor, op.ArrId)
		}
		out := NewCollection(ctx.mode)
		for _, key := range trace.Keys() {
			if target.Contains(key) {
				continue
			}
			for _, wv := range applyPreFilter(trace.Lookup(key), op.PreFilter) {
				out.Add(wv.Value, wv.Weight)
			}
		}
		return out, nil

	case program.OpArrStreamJoin:
		other, ok := ctx.collections[op.CollectionRel]
		if !ok {
			return nil, fmt.Errorf("%w: %d", diffdl.ErrUnknownRelation, op.CollectionRel)
		}
		out := NewCollection(ctx.mode)
		other.Range(func(v diffdl.Value, w diffdl.Weight) {
			key, v2, ok := op.Arrange(v)
			if !ok {
				return
			}
			for _, wv := range trace.Lookup(key) {
				if val, ok := op.Join(key, wv.Value, v2); ok {
					out.Add(val, wv.Weight.Mul(w))
				}
			}
		})
		return out, nil

	case program.OpArrStreamSemijoin:
		other, ok := ctx.collections[op.CollectionRel]
		if !ok {
			return nil, fmt.Errorf("%w: %d", diffdl.ErrUnknownRelation, op.CollectionRel)
		}
		out := NewCollection(ctx.mode)
		other.Range(func(v diffdl.Value, w diffdl.Weight) {
			key, _, ok := op.Arrange(v)
			if !ok || !trace.Contains(key) {
				return
			}
			if val, ok := op.StreamSemijoin(v); ok {
				out.Add(val, w.Mul(trace.weightOf(key)))
			}
		})
		return out, nil

	default:
		return nil, fmt.Errorf("operator kind %d is not valid at the head of an arrangement chain", op.Kind)
	}
}

func applyPreFilter(group []program.WeightedValue, pre program.FilterFn) []program.WeightedValue {
	if pre == nil {
		return group
	}
	out := group[:0:0]
	for _, wv := range group {
		if pre(wv.Value) {
			out = append(out, wv)
		}
	}
	return out
}

func mapCollection(c *Collection, fn program.MapFn) *Collection {
	out := NewCollection(c.mode)
	c.Range(func(v diffdl.Value, w diffdl.Weight) { out.Add(fn(v), w) })
	return out
}

func flatMapCollection(c *Collection, fn program.FlatMapFn) *Collection {
	out := NewCollection(c.mode)
	c.Range(func(v diffdl.Value, w diffdl.Weight) {
		for _, v2 := range fn(v) {
			out.Add(v2, w)
		}
	})
	return out
}

func filterCollection(c *Collection, fn program.FilterFn) *Collection {
	out := NewCollection(c.mode)
	c.Range(func(v diffdl.Value, w diffdl.Weight) {
		if fn(v) {
			out.Add(v, w)
		}
	})
	return out
}

func filterMapCollection(c *Collection, fn program.FilterMapFn) *Collection {
	out := NewCollection(c.mode)
	c.Range(func(v diffdl.Value, w diffdl.Weight) {
		if v2, ok := fn(v); ok {
			out.Add(v2, w)
		}
	})
	return out
}
