// Package program describes an immutable Datalog program: relations,
// rules built from a fixed algebra of dataflow operators, arrangements,
// recursive components, and dependency analysis over that tree.
package program

import "github.com/wbrown/janus-diffdl/diffdl"

// Operator function pointer signatures (spec.md §6). All are stateless and
// safe to share across worker goroutines.
type (
	MapFn            func(diffdl.Value) diffdl.Value
	FlatMapFn        func(diffdl.Value) []diffdl.Value
	FilterFn         func(diffdl.Value) bool
	FilterMapFn      func(diffdl.Value) (diffdl.Value, bool)
	InspectFn        func(v diffdl.Value, ts diffdl.NestedTS, w diffdl.Weight)
	ArrangeFn        func(diffdl.Value) (key, val diffdl.Value, ok bool)
	KeyFn            func(diffdl.Value) (diffdl.Value, bool)
	JoinFn           func(key, v1, v2 diffdl.Value) (diffdl.Value, bool)
	SemijoinFn       func(key, v diffdl.Value) (diffdl.Value, bool)
	ValJoinFn        func(v1, v2 diffdl.Value) (diffdl.Value, bool)
	StreamSemijoinFn func(diffdl.Value) (diffdl.Value, bool)
	AggregateFn      func(key diffdl.Value, group []WeightedValue) (diffdl.Value, bool)
)

// WeightedValue pairs a value with its weight, as seen by Aggregate.
type WeightedValue struct {
	Value  diffdl.Value
	Weight diffdl.Weight
}

// OpKind tags each operator variant realized by the dataflow compiler
// (spec.md §4.2).
type OpKind int

const (
	OpMap OpKind = iota
	OpFlatMap
	OpFilter
	OpFilterMap
	OpInspect
	OpDifferentiate
	OpArrange
	OpStreamJoin
	OpStreamSemijoin
	OpStreamXForm

	// Arrangement-rooted operators (heads of arrangement chains).
	OpArrFlatMap
	OpArrFilterMap
	OpAggregate
	OpJoin
	OpValJoin
	OpSemijoin
	OpAntijoin
	OpArrStreamJoin
	OpArrStreamSemijoin
)

// Op is one link in an operator chain, encoded as a flat, tagged struct
// rather than a linked enum so the compiler can walk chains iteratively
// instead of recursing through Option<Box<...>> links (design note 9.1).
// Next indexes the following Op in the owning Chain, or is -1 to terminate
// the chain (the "None" continuation in spec.md's collection rule).
type Op struct {
	Kind OpKind
	Next int

	Map            MapFn
	FlatMap        FlatMapFn
	Filter         FilterFn
	FilterMap      FilterMapFn
	Inspect        InspectFn
	Arrange        ArrangeFn
	Queryable      bool
	ArrId          diffdl.ArrId
	Join           JoinFn
	Semijoin       SemijoinFn
	ValJoin        ValJoinFn
	StreamSemijoin StreamSemijoinFn
	PreFilter      FilterFn
	Aggregate      AggregateFn
	// XForm is the nested chain for OpArrange (the arrangement-rooted
	// continuation) and OpStreamXForm (the AltNeu-scope sub-chain).
	XForm *Chain
	// CollectionRel names the collection-side relation for the
	// arrangement-rooted stream-join/stream-semijoin variants, where the
	// roles of "arranged" and "collection" are swapped relative to the
	// collection-rooted StreamJoin/StreamSemijoin (spec.md §4.2).
	CollectionRel diffdl.RelId
}

// Chain is a flat vector of operators with an explicit head index, the
// re-encoding of the source AST's linked operator chains (design note
// 9.1). A nil or empty Chain with Head == -1 represents "no transform".
type Chain struct {
	Ops  []Op
	Head int
}

// EmptyChain returns a Chain with no operators: "CollectionRule with no
// transform is simply the source collection" (spec.md §4.2).
func EmptyChain() *Chain { return &Chain{Head: -1} }

// IsEmpty reports whether the chain has no head operator.
func (c *Chain) IsEmpty() bool { return c == nil || c.Head < 0 || len(c.Ops) == 0 }

// At returns the operator at index i.
func (c *Chain) At(i int) Op { return c.Ops[i] }

// ChainBuilder appends operators to a Chain, threading Next indices so
// callers don't have to compute them by hand.
type ChainBuilder struct {
	chain Chain
	last  int
}

// NewChainBuilder starts building a new operator chain.
func NewChainBuilder() *ChainBuilder {
	return &ChainBuilder{chain: Chain{Head: -1}, last: -1}
}

// Append adds op to the end of the chain under construction and returns
// the builder for chaining.
func (b *ChainBuilder) Append(op Op) *ChainBuilder {
	op.Next = -1
	idx := len(b.chain.Ops)
	b.chain.Ops = append(b.chain.Ops, op)
	if b.chain.Head < 0 {
		b.chain.Head = idx
	} else {
		b.chain.Ops[b.last].Next = idx
	}
	b.last = idx
	return b
}

// Build returns the completed chain.
func (b *ChainBuilder) Build() *Chain {
	c := b.chain
	return &c
}
