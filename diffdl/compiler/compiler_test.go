package compiler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/compiler"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

// node and edge are this package's minimal diffdl.Value implementations,
// modeling a directed graph: edge(x,y) facts, with reach computed as
// their transitive closure.
type node int

func (n node) Equal(other diffdl.Value) bool { o, ok := other.(node); return ok && o == n }
func (n node) Hash() uint64                  { return uint64(n) }
func (n node) Compare(other diffdl.Value) int {
	o := other.(node)
	switch {
	case n < o:
		return -1
	case n > o:
		return 1
	default:
		return 0
	}
}
func (n node) Clone() diffdl.Value { return n }

type edge struct{ From, To node }

func (e edge) Equal(other diffdl.Value) bool { o, ok := other.(edge); return ok && o == e }
func (e edge) Hash() uint64                  { return e.From.Hash()*31 + e.To.Hash() }
func (e edge) Compare(other diffdl.Value) int {
	o := other.(edge)
	if c := e.From.Compare(o.From); c != 0 {
		return c
	}
	return e.To.Compare(o.To)
}
func (e edge) Clone() diffdl.Value { return e }

const (
	relEdge  diffdl.RelId = 0
	relReach diffdl.RelId = 1
)

var (
	arrEdgeByFrom = diffdl.ArrId{RelId: relEdge, Index: 0}
	arrReachByTo  = diffdl.ArrId{RelId: relReach, Index: 0}
)

func reachabilityProgram() *program.Program {
	edgeRel := program.Relation{
		Name: "edge", Id: relEdge, Input: true, Distinct: true, Caching: program.CachingSet,
		Arrangements: []program.Arrangement{
			{Id: arrEdgeByFrom, Kind: program.ArrangementMap, ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
				e := v.(edge)
				return e.From, e.To, true
			}},
		},
	}
	join := program.NewChainBuilder().Append(program.Op{
		Kind: program.OpJoin, ArrId: arrEdgeByFrom,
		Join: func(key, v1, v2 diffdl.Value) (diffdl.Value, bool) {
			return edge{From: v1.(node), To: v2.(node)}, true
		},
	}).Build()
	reachRel := program.Relation{
		Name: "reach", Id: relReach, Distinct: true,
		Rules: []program.Rule{
			program.CollectionRule(relEdge, nil),
			program.ArrangementRule(arrReachByTo, join),
		},
		Arrangements: []program.Arrangement{
			{Id: arrReachByTo, Kind: program.ArrangementMap, ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
				e := v.(edge)
				return e.To, e.From, true
			}},
		},
	}
	return &program.Program{Nodes: []program.Node{
		program.RelationNode(edgeRel),
		program.SCCNode(reachRel),
	}}
}

func collectionOf(mode diffdl.OverflowMode, values ...diffdl.Value) *compiler.Collection {
	c := compiler.NewCollection(mode)
	for _, v := range values {
		c.Add(v, diffdl.WeightOne(mode))
	}
	return c
}

func TestSCCFixpointComputesTransitiveClosure(t *testing.T) {
	cp, err := compiler.CompileProgram(reachabilityProgram(), diffdl.OverflowWrapping)
	require.NoError(t, err)

	// A chain 0->1->2->3 plus a back edge 3->0, so reach must close the
	// loop back to every node, including self-reachability via the cycle.
	edges := collectionOf(diffdl.OverflowWrapping,
		edge{0, 1}, edge{1, 2}, edge{2, 3}, edge{3, 0},
	)
	result, err := cp.Evaluate(map[diffdl.RelId]*compiler.Collection{relEdge: edges})
	require.NoError(t, err)

	reach := result.Collections[relReach]
	for from := node(0); from <= 3; from++ {
		for to := node(0); to <= 3; to++ {
			assert.True(t, reach.Get(edge{from, to}).Int32() > 0,
				"expected reach(%d,%d) in a fully-connected cycle", from, to)
		}
	}
}

func TestSCCFixpointStopsAtNonRecursiveLeaf(t *testing.T) {
	cp, err := compiler.CompileProgram(reachabilityProgram(), diffdl.OverflowWrapping)
	require.NoError(t, err)

	edges := collectionOf(diffdl.OverflowWrapping, edge{0, 1})
	result, err := cp.Evaluate(map[diffdl.RelId]*compiler.Collection{relEdge: edges})
	require.NoError(t, err)

	reach := result.Collections[relReach]
	assert.Equal(t, int32(1), reach.Get(edge{0, 1}).Int32())
	assert.True(t, reach.Get(edge{1, 0}).IsZero())
}

func TestEvaluateIsIdempotentAcrossRepeatedEpochs(t *testing.T) {
	cp, err := compiler.CompileProgram(reachabilityProgram(), diffdl.OverflowWrapping)
	require.NoError(t, err)

	edges := collectionOf(diffdl.OverflowWrapping, edge{0, 1}, edge{1, 2})
	r1, err := cp.Evaluate(map[diffdl.RelId]*compiler.Collection{relEdge: edges})
	require.NoError(t, err)
	r2, err := cp.Evaluate(map[diffdl.RelId]*compiler.Collection{relEdge: edges})
	require.NoError(t, err)

	assert.True(t, r1.Collections[relReach].Equal(r2.Collections[relReach]),
		"re-evaluating the same input epoch must recompute the same output")
}

func TestArrangementQueryableAfterEvaluate(t *testing.T) {
	cp, err := compiler.CompileProgram(reachabilityProgram(), diffdl.OverflowWrapping)
	require.NoError(t, err)

	edges := collectionOf(diffdl.OverflowWrapping, edge{0, 1}, edge{1, 2})
	result, err := cp.Evaluate(map[diffdl.RelId]*compiler.Collection{relEdge: edges})
	require.NoError(t, err)

	trace, ok := result.Arrangements[arrEdgeByFrom]
	require.True(t, ok)
	got := trace.Lookup(node(0))
	require.Len(t, got, 1)
	assert.Equal(t, node(1), got[0].Value)
}

func TestStreamJoinRequiresMapArrangement(t *testing.T) {
	setArr := diffdl.ArrId{RelId: relEdge, Index: 1}
	edgeRel := program.Relation{
		Name: "edge", Id: relEdge, Input: true, Caching: program.CachingSet,
		Arrangements: []program.Arrangement{
			{Id: setArr, Kind: program.ArrangementSet, DistinctBeforeArr: true, FilterMap: func(v diffdl.Value) (diffdl.Value, bool) {
				return v.(edge).From, true
			}},
		},
	}
	streamJoinChain := program.NewChainBuilder().Append(program.Op{
		Kind: program.OpStreamJoin, ArrId: setArr,
		Arrange: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) { return v, v, true },
		Join:    func(key, v1, v2 diffdl.Value) (diffdl.Value, bool) { return v1, true },
	}).Build()
	derived := program.Relation{
		Name: "derived", Id: relReach,
		Rules: []program.Rule{program.CollectionRule(relEdge, streamJoinChain)},
	}
	prog := &program.Program{Nodes: []program.Node{
		program.RelationNode(edgeRel),
		program.RelationNode(derived),
	}}

	err := prog.Validate()
	require.Error(t, err, "a stream-join against a declared Set arrangement is rejected at build time")
	assert.ErrorIs(t, err, diffdl.ErrArrangementFlavor)
}
