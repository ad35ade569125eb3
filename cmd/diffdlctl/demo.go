package main

import (
	"github.com/wbrown/janus-diffdl/diffdl"
	"github.com/wbrown/janus-diffdl/diffdl/program"
)

// Relation and arrangement ids for the built-in reachability demo.
const (
	relEdge  diffdl.RelId = 0
	relReach diffdl.RelId = 1
)

var (
	arrEdgeByFrom  = diffdl.ArrId{RelId: relEdge, Index: 0}
	arrReachByTo   = diffdl.ArrId{RelId: relReach, Index: 0}
	arrReachByFrom = diffdl.ArrId{RelId: relReach, Index: 1}
)

// buildReachabilityProgram returns a tiny but genuinely recursive
// Datalog program:
//
//	reach(x, y) :- edge(x, y).
//	reach(x, z) :- reach(x, y), edge(y, z).
//
// edge is the sole input relation; reach is computed inside a
// single-member SCC, joining its own "arranged by destination" trace
// against edge's "arranged by source" trace on every fixpoint
// iteration (diffdl/compiler/scc.go).
func buildReachabilityProgram() *program.Program {
	edgeRel := program.Relation{
		Name:     "edge",
		Id:       relEdge,
		Input:    true,
		Distinct: true,
		Caching:  program.CachingSet,
		Arrangements: []program.Arrangement{
			{
				Id:   arrEdgeByFrom,
				Kind: program.ArrangementMap,
				ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
					e := v.(edge)
					return e.From, e.To, true
				},
			},
		},
	}

	join := program.NewChainBuilder().Append(program.Op{
		Kind:  program.OpJoin,
		ArrId: arrEdgeByFrom,
		Join: func(key, v1, v2 diffdl.Value) (diffdl.Value, bool) {
			return edge{From: v1.(node), To: v2.(node)}, true
		},
	}).Build()

	reachRel := program.Relation{
		Name:     "reach",
		Id:       relReach,
		Distinct: true,
		Rules: []program.Rule{
			program.CollectionRule(relEdge, nil),
			program.ArrangementRule(arrReachByTo, join),
		},
		Arrangements: []program.Arrangement{
			{
				Id:   arrReachByTo,
				Kind: program.ArrangementMap,
				ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
					e := v.(edge)
					return e.To, e.From, true
				},
			},
			{
				Id:        arrReachByFrom,
				Kind:      program.ArrangementMap,
				Queryable: true,
				ArrangeFn: func(v diffdl.Value) (diffdl.Value, diffdl.Value, bool) {
					e := v.(edge)
					return e.From, e.To, true
				},
			},
		},
	}

	return &program.Program{
		Nodes: []program.Node{
			program.RelationNode(edgeRel),
			program.SCCNode(reachRel),
		},
	}
}
