package program

import "github.com/wbrown/janus-diffdl/diffdl"

// DepKind distinguishes a relation dependency from an arrangement
// dependency (spec.md §4.1).
type DepKind int

const (
	DepRelation DepKind = iota
	DepArrangement
)

// Dep is one dependency induced by an operator chain: either Rel(id) for
// a collection consulted by name, or Arr(id) for an arrangement probed by
// a join/semijoin/antijoin/stream-join.
type Dep struct {
	Kind DepKind
	Rel  diffdl.RelId
	Arr  diffdl.ArrId
}

// chainDeps walks a flat operator chain from head, collecting the
// arrangement dependencies every operator induces. StreamXForm's nested
// chain is walked too — spec.md notes the operator discards arrangements
// built *inside* it, but the arrangements it *references* from the
// enclosing scope are still real dependencies of the rule.
func chainDeps(c *Chain, out *[]Dep) {
	if c.IsEmpty() {
		return
	}
	for i := c.Head; i >= 0; {
		op := c.Ops[i]
		switch op.Kind {
		case OpStreamJoin, OpStreamSemijoin, OpJoin, OpSemijoin, OpAntijoin,
			OpArrStreamJoin, OpArrStreamSemijoin:
			*out = append(*out, Dep{Kind: DepArrangement, Arr: op.ArrId})
		case OpStreamXForm:
			chainDeps(op.XForm, out)
		}
		i = op.Next
	}
}

// Dependencies returns the transitive union of Rel/Arr dependencies
// induced by r's operator chain, plus the rule's own source
// (spec.md §4.1).
func (r *Rule) Dependencies() []Dep {
	var out []Dep
	switch r.Kind {
	case RuleCollection:
		out = append(out, Dep{Kind: DepRelation, Rel: r.SourceRel})
		chainDeps(r.Transform, &out)
	case RuleArrangement:
		out = append(out, Dep{Kind: DepArrangement, Arr: r.SourceArr})
		chainDeps(r.ArrTransform, &out)
	}
	return out
}

// RelationDependencies filters Dependencies to just the relation ids.
func (r *Rule) RelationDependencies() []diffdl.RelId {
	var out []diffdl.RelId
	for _, d := range r.Dependencies() {
		if d.Kind == DepRelation {
			out = append(out, d.Rel)
		}
	}
	return out
}

// ArrangementDependencies filters Dependencies to just the arrangement ids.
func (r *Rule) ArrangementDependencies() []diffdl.ArrId {
	var out []diffdl.ArrId
	for _, d := range r.Dependencies() {
		if d.Kind == DepArrangement {
			out = append(out, d.Arr)
		}
	}
	return out
}

// RelationDependencies returns the union of relation dependencies across
// every rule of rel.
func (rel *Relation) RelationDependencies() []diffdl.RelId {
	seen := make(map[diffdl.RelId]bool)
	var out []diffdl.RelId
	for i := range rel.Rules {
		for _, id := range rel.Rules[i].RelationDependencies() {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// ArrangementDependencies returns the union of arrangement dependencies
// across every rule of rel.
func (rel *Relation) ArrangementDependencies() []diffdl.ArrId {
	seen := make(map[diffdl.ArrId]bool)
	var out []diffdl.ArrId
	for i := range rel.Rules {
		for _, id := range rel.Rules[i].ArrangementDependencies() {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

// ArrangementConsumers reports the ids of the relations (top-level or SCC
// members) whose rules reference arrId. The compiler does not consult it:
// evalSCC exports every arrangement its members build.
func (p *Program) ArrangementConsumers(arrId diffdl.ArrId) []diffdl.RelId {
	var out []diffdl.RelId
	for _, rel := range p.Relations() {
		for _, a := range rel.ArrangementDependencies() {
			if a == arrId {
				out = append(out, rel.Id)
				break
			}
		}
	}
	return out
}

// queryableChainArrangements walks a flat operator chain (recursing into
// StreamXForm's nested chain, same traversal chainDeps uses) collecting
// the ArrId of every OpArrange op whose Queryable flag is set: an inline
// arrangement built mid-chain, rather than declared on a Relation.
func queryableChainArrangements(c *Chain, out map[diffdl.ArrId]bool) {
	if c.IsEmpty() {
		return
	}
	for i := c.Head; i >= 0; {
		op := c.Ops[i]
		switch op.Kind {
		case OpArrange:
			if op.Queryable && op.ArrId != (diffdl.ArrId{}) {
				out[op.ArrId] = true
			}
			queryableChainArrangements(op.XForm, out)
		case OpStreamXForm:
			queryableChainArrangements(op.XForm, out)
		}
		i = op.Next
	}
}

// QueryableArrangements returns the set of arrangement ids externally
// visible to query_arrangement/dump_arrangement (spec.md §6): every
// Relation-declared Arrangement with Queryable set, plus every inline
// OpArrange with Queryable set. An arrangement a rule merely consumes as a
// join/semijoin/antijoin target (internal scope only) is not included
// unless it is also marked Queryable.
func (p *Program) QueryableArrangements() map[diffdl.ArrId]bool {
	out := map[diffdl.ArrId]bool{}
	for _, rel := range p.Relations() {
		for _, a := range rel.Arrangements {
			if a.Queryable {
				out[a.Id] = true
			}
		}
		for i := range rel.Rules {
			rule := &rel.Rules[i]
			if rule.Kind == RuleCollection {
				queryableChainArrangements(rule.Transform, out)
			} else {
				queryableChainArrangements(rule.ArrTransform, out)
			}
		}
	}
	return out
}

// NodeOf returns the index of the top-level node that defines relId, or
// -1 if relId is not defined by any node (e.g. an unknown id).
func (p *Program) NodeOf(relId diffdl.RelId) int {
	for i := range p.Nodes {
		n := &p.Nodes[i]
		switch n.Kind {
		case NodeRelation:
			if n.Relation.Id == relId {
				return i
			}
		case NodeSCC:
			for j := range n.SCC.Members {
				if n.SCC.Members[j].Id == relId {
					return i
				}
			}
		}
	}
	return -1
}
