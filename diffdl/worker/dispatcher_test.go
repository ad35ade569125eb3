package worker_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
	"github.com/wbrown/janus-diffdl/diffdl/worker"
)

type intVal int

func (v intVal) Equal(other diffdl.Value) bool { o, ok := other.(intVal); return ok && o == v }
func (v intVal) Hash() uint64                  { return uint64(v) }
func (v intVal) Compare(other diffdl.Value) int {
	o := other.(intVal)
	switch {
	case v < o:
		return -1
	case v > o:
		return 1
	default:
		return 0
	}
}
func (v intVal) Clone() diffdl.Value { return v }

const relNums diffdl.RelId = 0

var arrNums = diffdl.ArrId{RelId: relNums, Index: 0}

func numsProgram() *program.Program {
	nums := program.Relation{
		Name: "nums", Id: relNums, Input: true, Caching: program.CachingSet,
		Arrangements: []program.Arrangement{
			{Id: arrNums, Kind: program.ArrangementMap, Queryable: true, ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
				return v, v, true
			}},
		},
	}
	return &program.Program{Nodes: []program.Node{program.RelationNode(nums)}}
}

func newPool(t *testing.T, n int) *worker.Dispatcher {
	t.Helper()
	workers := make([]*worker.Worker, n)
	for i := range workers {
		w, err := worker.NewWorker(i, n, numsProgram(), diffdl.OverflowWrapping)
		require.NoError(t, err)
		workers[i] = w
	}
	return worker.NewDispatcher(workers)
}

// TestQueryMergeRecoversUnshardedResult exercises spec.md §8's testable
// property 6: a dump_arrangement/query_arrangement against a pool of
// workers, each holding a disjoint partition of the input and a shard of
// the arrangement, must merge back to the same set a single worker would
// report over the whole input.
func TestQueryMergeRecoversUnshardedResult(t *testing.T) {
	const n = 4
	d := newPool(t, n)
	defer func() { require.NoError(t, d.Stop(0)) }()

	for i := 0; i < 20; i++ {
		d.Send([]diffdl.Update{{Kind: diffdl.UpdateInsert, RelId: relNums, Value: intVal(i)}})
	}
	require.NoError(t, d.FlushBarrier(1))

	set, err := d.Query(arrNums, nil)
	require.NoError(t, err)
	require.Equal(t, 20, set.Len())
	for i := 0; i < 20; i++ {
		assert.Contains(t, set.Values(), intVal(i))
	}
}

func TestQuerySingleKeyMatchesDump(t *testing.T) {
	const n = 3
	d := newPool(t, n)
	defer func() { require.NoError(t, d.Stop(0)) }()

	for i := 0; i < 9; i++ {
		d.Send([]diffdl.Update{{Kind: diffdl.UpdateInsert, RelId: relNums, Value: intVal(i)}})
	}
	require.NoError(t, d.FlushBarrier(1))

	set, err := d.Query(arrNums, intVal(5))
	require.NoError(t, err)
	require.Equal(t, 1, set.Len())
	assert.Equal(t, intVal(5), set.Values()[0])

	absent, err := d.Query(arrNums, intVal(999))
	require.NoError(t, err)
	assert.Equal(t, 0, absent.Len())
}

func TestQueryUnknownArrangementAfterFullDrain(t *testing.T) {
	const n = 3
	d := newPool(t, n)
	defer func() { require.NoError(t, d.Stop(0)) }()

	require.NoError(t, d.FlushBarrier(1))

	_, err := d.Query(diffdl.ArrId{RelId: 99, Index: 0}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrUnknownArrangement)
}

func TestFlushBarrierBlocksUntilEveryWorkerAcks(t *testing.T) {
	const n = 5
	d := newPool(t, n)
	defer func() { require.NoError(t, d.Stop(0)) }()

	assert.NoError(t, d.FlushBarrier(1))
	assert.NoError(t, d.FlushBarrier(2))
}

func TestStopJoinsWorkersCleanly(t *testing.T) {
	d := newPool(t, 2)
	require.NoError(t, d.Stop(0))
}
