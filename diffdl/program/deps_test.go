package program_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
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

var identityArr = diffdl.ArrId{RelId: 1, Index: 0}

func joinChain() *program.Chain {
	return program.NewChainBuilder().Append(program.Op{
		Kind:  program.OpJoin,
		ArrId: identityArr,
		Join: func(key, v1, v2 diffdl.Value) (diffdl.Value, bool) {
			return v1, true
		},
	}).Build()
}

func TestRuleDependenciesCollection(t *testing.T) {
	chain := program.NewChainBuilder().Append(program.Op{
		Kind: program.OpFilter,
		Filter: func(v diffdl.Value) bool {
			return true
		},
	}).Build()
	rule := program.CollectionRule(2, chain)

	deps := rule.RelationDependencies()
	require.Len(t, deps, 1)
	assert.Equal(t, diffdl.RelId(2), deps[0])
	assert.Empty(t, rule.ArrangementDependencies())
}

func TestRuleDependenciesArrangement(t *testing.T) {
	rule := program.ArrangementRule(identityArr, joinChain())

	arrDeps := rule.ArrangementDependencies()
	// One dependency from the rule's own source arrangement, one from the
	// Join op's target arrangement (the same id here, but tracked
	// independently per chainDeps/Dependencies).
	require.Len(t, arrDeps, 2)
	assert.Equal(t, identityArr, arrDeps[0])
	assert.Equal(t, identityArr, arrDeps[1])
}

func TestArrangementConsumers(t *testing.T) {
	edge := program.Relation{
		Name:    "edge",
		Id:      1,
		Input:   true,
		Caching: program.CachingSet,
		Arrangements: []program.Arrangement{
			{Id: identityArr, Kind: program.ArrangementMap, ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
				return v, v, true
			}},
		},
	}
	reach := program.Relation{
		Name: "reach",
		Id:   2,
		Rules: []program.Rule{
			program.ArrangementRule(identityArr, joinChain()),
		},
	}

	prog := &program.Program{Nodes: []program.Node{
		program.RelationNode(edge),
		program.SCCNode(reach),
	}}

	consumers := prog.ArrangementConsumers(identityArr)
	require.Len(t, consumers, 1)
	assert.Equal(t, diffdl.RelId(2), consumers[0])
}

func TestValidateRejectsInputInSCC(t *testing.T) {
	bad := program.Relation{Id: 1, Input: true}
	prog := &program.Program{Nodes: []program.Node{program.SCCNode(bad)}}

	err := prog.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrInputInSCC)
}

func TestValidateRejectsAntijoinOnNonDistinctSet(t *testing.T) {
	mapArr := diffdl.ArrId{RelId: 1, Index: 0}
	setArr := diffdl.ArrId{RelId: 1, Index: 1}
	src := program.Relation{
		Id:      1,
		Input:   true,
		Caching: program.CachingSet,
		Arrangements: []program.Arrangement{
			{Id: mapArr, Kind: program.ArrangementMap, ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
				return v, v, true
			}},
			{
				Id:   setArr,
				Kind: program.ArrangementSet,
				FilterMap: func(v diffdl.Value) (diffdl.Value, bool) {
					return v, true
				},
				DistinctBeforeArr: false,
			},
		},
	}
	antijoinChain := program.NewChainBuilder().Append(program.Op{
		Kind:  program.OpAntijoin,
		ArrId: setArr,
	}).Build()
	derived := program.Relation{
		Id: 2,
		Rules: []program.Rule{
			program.ArrangementRule(mapArr, antijoinChain),
		},
	}

	prog := &program.Program{Nodes: []program.Node{
		program.RelationNode(src),
		program.RelationNode(derived),
	}}

	err := prog.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, diffdl.ErrAntijoinNotDistinct)
}

func TestValidateAcceptsWellFormedProgram(t *testing.T) {
	src := program.Relation{
		Id:      1,
		Input:   true,
		Caching: program.CachingSet,
		Arrangements: []program.Arrangement{
			{Id: identityArr, Kind: program.ArrangementMap, ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
				return v, v, true
			}},
		},
	}
	derived := program.Relation{
		Id: 2,
		Rules: []program.Rule{
			program.CollectionRule(1, nil),
		},
	}

	prog := &program.Program{Nodes: []program.Node{
		program.RelationNode(src),
		program.RelationNode(derived),
	}}

	assert.NoError(t, prog.Validate())
}
