package diffdl_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

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
	arrEdgeByFrom  = diffdl.ArrId{RelId: relEdge, Index: 0}
	arrReachByFrom = diffdl.ArrId{RelId: relReach, Index: 0}
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
	arrReachByTo := diffdl.ArrId{RelId: relReach, Index: 1}
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
			{Id: arrReachByFrom, Kind: program.ArrangementMap, Queryable: true, ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
				e := v.(edge)
				return e.From, e.To, true
			}},
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

func insertEdge(from, to int) diffdl.Update {
	return diffdl.Update{Kind: diffdl.UpdateInsert, RelId: relEdge, Value: edge{node(from), node(to)}}
}

func TestRunSeedsInitialDataBeforeReady(t *testing.T) {
	config := diffdl.NewConfig()
	config.InitialData = []diffdl.Update{insertEdge(0, 1), insertEdge(1, 2)}

	rp, err := diffdl.Run(config, reachabilityProgram())
	require.NoError(t, err)
	defer rp.Close()

	edges, err := rp.GetInputRelationData(relEdge)
	require.NoError(t, err)
	assert.Len(t, edges, 2)

	set, err := rp.QueryArrangement(arrReachByFrom, node(0))
	require.NoError(t, err)
	require.Equal(t, 2, set.Len())
	assert.Contains(t, set.Values(), node(1))
	assert.Contains(t, set.Values(), node(2))
}

func TestTransactionInsertCommitQuery(t *testing.T) {
	rp, err := diffdl.Run(diffdl.NewConfig(), reachabilityProgram())
	require.NoError(t, err)
	defer rp.Close()

	require.NoError(t, rp.TransactionStart())
	require.NoError(t, rp.Insert(relEdge, edge{0, 1}))
	require.NoError(t, rp.Insert(relEdge, edge{1, 2}))
	require.NoError(t, rp.TransactionCommit())

	set, err := rp.QueryArrangement(arrReachByFrom, node(0))
	require.NoError(t, err)
	assert.ElementsMatch(t, []diffdl.Value{node(1), node(2)}, set.Values())
}

func TestTransactionRollbackLeavesNoTrace(t *testing.T) {
	rp, err := diffdl.Run(diffdl.NewConfig(), reachabilityProgram())
	require.NoError(t, err)
	defer rp.Close()

	require.NoError(t, rp.TransactionStart())
	require.NoError(t, rp.Insert(relEdge, edge{0, 1}))
	require.NoError(t, rp.TransactionCommit())

	require.NoError(t, rp.TransactionStart())
	require.NoError(t, rp.Insert(relEdge, edge{1, 2}))
	require.NoError(t, rp.TransactionRollback())

	edges, err := rp.GetInputRelationData(relEdge)
	require.NoError(t, err)
	assert.Equal(t, []diffdl.Value{edge{0, 1}}, edges)

	set, err := rp.QueryArrangement(arrReachByFrom, node(0))
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

func TestMultiWorkerQueryMergesAcrossPartitions(t *testing.T) {
	config := diffdl.NewConfig()
	config.NumWorkers = 3
	rp, err := diffdl.Run(config, reachabilityProgram())
	require.NoError(t, err)
	defer rp.Close()

	require.NoError(t, rp.TransactionStart())
	for i := 0; i < 12; i++ {
		require.NoError(t, rp.Insert(relEdge, edge{node(0), node(i + 1)}))
	}
	require.NoError(t, rp.TransactionCommit())

	set, err := rp.QueryArrangement(arrReachByFrom, node(0))
	require.NoError(t, err)
	assert.Equal(t, 12, set.Len())
}

func TestQueryUnknownArrangementReturnsError(t *testing.T) {
	rp, err := diffdl.Run(diffdl.NewConfig(), reachabilityProgram())
	require.NoError(t, err)
	defer rp.Close()

	_, err = rp.QueryArrangement(diffdl.ArrId{RelId: 99, Index: 7}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrUnknownArrangement)
}

func TestGetInputRelationDataUnknownRelation(t *testing.T) {
	rp, err := diffdl.Run(diffdl.NewConfig(), reachabilityProgram())
	require.NoError(t, err)
	defer rp.Close()

	_, err = rp.GetInputRelationData(diffdl.RelId(42))
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrUnknownRelation)
}

func TestStopIsIdempotent(t *testing.T) {
	rp, err := diffdl.Run(diffdl.NewConfig(), reachabilityProgram())
	require.NoError(t, err)

	err1 := rp.Stop()
	err2 := rp.Stop()
	assert.NoError(t, err1)
	assert.Equal(t, err1, err2)
}

func TestRunRejectsZeroWorkers(t *testing.T) {
	config := diffdl.NewConfig()
	config.NumWorkers = 0
	_, err := diffdl.Run(config, reachabilityProgram())
	require.Error(t, err)
}

// counter is a mutable, pointer-identity Value used to exercise the
// indexed-relation Modify path end to end through the engine.
type counter struct {
	Key   int
	Count int
}

func (c *counter) Equal(other diffdl.Value) bool {
	o, ok := other.(*counter)
	return ok && *o == *c
}
func (c *counter) Hash() uint64 { return uint64(c.Key) }
func (c *counter) Compare(other diffdl.Value) int {
	o := other.(*counter)
	switch {
	case c.Key < o.Key:
		return -1
	case c.Key > o.Key:
		return 1
	default:
		return 0
	}
}
func (c *counter) Clone() diffdl.Value { cp := *c; return &cp }

const relCounters diffdl.RelId = 0

func countersProgram() *program.Program {
	rel := program.Relation{
		Name: "counters", Id: relCounters, Input: true,
		KeyFunc: func(v diffdl.Value) (diffdl.Value, bool) {
			return node(v.(*counter).Key), true
		},
	}
	return &program.Program{Nodes: []program.Node{program.RelationNode(rel)}}
}

func TestIndexedModifyKeyThroughEngine(t *testing.T) {
	rp, err := diffdl.Run(diffdl.NewConfig(), countersProgram())
	require.NoError(t, err)
	defer rp.Close()

	require.NoError(t, rp.TransactionStart())
	require.NoError(t, rp.Insert(relCounters, &counter{Key: 1, Count: 0}))
	require.NoError(t, rp.TransactionCommit())

	require.NoError(t, rp.TransactionStart())
	err = rp.ModifyKey(relCounters, node(1), diffdl.MutatorFunc(func(v diffdl.Value) error {
		v.(*counter).Count++
		return nil
	}))
	require.NoError(t, err)
	require.NoError(t, rp.TransactionCommit())

	values, err := rp.GetInputRelationIndex(relCounters)
	require.NoError(t, err)
	require.Len(t, values, 1)
	assert.Equal(t, 1, values[0].(*counter).Count)
}
