package program

import "github.com/wbrown/janus-diffdl/diffdl"

// CachingMode selects how an input relation's runtime state is kept
// (spec.md §3). It only matters for input relations.
type CachingMode int

const (
	CachingStream CachingMode = iota
	CachingSet
	CachingMultiset
)

// ChangeCallback is invoked by workers when a relation's output changes.
// It must be thread-safe and must not call back into the engine
// (spec.md §4.5, §7).
type ChangeCallback func(v diffdl.Value, ts diffdl.NestedTS, w diffdl.Weight)

// ArrangementKind distinguishes the two arrangement flavors (spec.md §3).
type ArrangementKind int

const (
	ArrangementMap ArrangementKind = iota
	ArrangementSet
)

// Arrangement is a pre-built, shared index over a relation's contents.
type Arrangement struct {
	Id   diffdl.ArrId
	Kind ArrangementKind

	// Map arrangement fields.
	ArrangeFn ArrangeFn
	Queryable bool

	// Set arrangement fields.
	FilterMap        FilterMapFn
	DistinctBeforeArr bool
}

// RuleKind distinguishes collection rules from arrangement rules.
type RuleKind int

const (
	RuleCollection RuleKind = iota
	RuleArrangement
)

// Rule is either a CollectionRule (a source relation plus an optional
// chain of collection transforms) or an ArrangementRule (a source
// arrangement plus a mandatory arrangement transform) (spec.md §3).
type Rule struct {
	Kind RuleKind

	// CollectionRule fields.
	SourceRel diffdl.RelId
	Transform *Chain // nil/empty => no transform, source collection as-is

	// ArrangementRule fields.
	SourceArr diffdl.ArrId
	ArrTransform *Chain // mandatory, head must be an arrangement-rooted op
}

// CollectionRule builds a Rule whose source is a relation, with an
// optional collection transform chain.
func CollectionRule(src diffdl.RelId, transform *Chain) Rule {
	if transform == nil {
		transform = EmptyChain()
	}
	return Rule{Kind: RuleCollection, SourceRel: src, Transform: transform}
}

// ArrangementRule builds a Rule whose source is an arrangement, with a
// mandatory arrangement transform chain.
func ArrangementRule(src diffdl.ArrId, transform *Chain) Rule {
	return Rule{Kind: RuleArrangement, SourceArr: src, ArrTransform: transform}
}

// Relation is the AST description of one relation (spec.md §3). Input
// relations have an empty Rules list; only input relations' Caching mode
// is meaningful; a non-nil KeyFunc gives an input relation the update
// semantics of relation.Indexed, whatever its Caching value.
type Relation struct {
	Name     string
	Pos      string // source position, for diagnostics
	Id       diffdl.RelId
	Input    bool
	Distinct bool
	Caching  CachingMode
	KeyFunc  KeyFn // non-nil selects indexed storage for an input relation

	Rules        []Rule
	Arrangements []Arrangement

	OnChange ChangeCallback
}

// DelayedRelation exposes the contents of Base as of epoch now-Delay
// (spec.md §3). Delay must be > 0.
type DelayedRelation struct {
	Id    diffdl.RelId
	Base  diffdl.RelId
	Delay uint32
}

// Transformer is an opaque dataflow fragment injected by name, consulting
// and extending the in-scope collection map at the top scope only
// (spec.md §4.2, §6).
type Transformer struct {
	Name string
	// Apply receives the top-scope collection map (by RelId) and may add
	// entries to it in place.
	Apply func(collections map[diffdl.RelId]any)
}

// SCC is a non-empty set of mutually recursive relations, each compiled
// inside a single nested iterative scope (spec.md §3, §4.2).
type SCC struct {
	Members []Relation
}

// NodeKind distinguishes the three kinds of top-level program nodes.
type NodeKind int

const (
	NodeRelation NodeKind = iota
	NodeTransformer
	NodeSCC
)

// Node is one ordered entry in a Program: a plain relation, a
// transformer, or a strongly-connected component (spec.md §3).
type Node struct {
	Kind        NodeKind
	Relation    *Relation
	Transformer *Transformer
	SCC         *SCC
}

// RelationNode wraps a plain (non-recursive) relation as a Node.
func RelationNode(r Relation) Node { return Node{Kind: NodeRelation, Relation: &r} }

// TransformerNode wraps a Transformer as a Node.
func TransformerNode(t Transformer) Node { return Node{Kind: NodeTransformer, Transformer: &t} }

// SCCNode wraps a non-empty set of mutually recursive relations as a Node.
func SCCNode(members ...Relation) Node {
	return Node{Kind: NodeSCC, SCC: &SCC{Members: members}}
}

// Program is the ordered, immutable description of an entire Datalog
// program: any rule references only relations introduced in earlier
// nodes or within the same SCC (spec.md §3).
type Program struct {
	Nodes       []Node
	DelayedRels []DelayedRelation
	InitData    []diffdl.Update
}

// Relations returns every Relation in the program, flattening SCC
// membership, in program order.
func (p *Program) Relations() []*Relation {
	var out []*Relation
	for i := range p.Nodes {
		n := &p.Nodes[i]
		switch n.Kind {
		case NodeRelation:
			out = append(out, n.Relation)
		case NodeSCC:
			for j := range n.SCC.Members {
				out = append(out, &n.SCC.Members[j])
			}
		}
	}
	return out
}

// RelationById looks up a relation anywhere in the program by id.
func (p *Program) RelationById(id diffdl.RelId) (*Relation, bool) {
	for _, r := range p.Relations() {
		if r.Id == id {
			return r, true
		}
	}
	return nil, false
}

// InputRelations returns the relations flagged Input, scanning only
// top-level Relation nodes: SCCs may not contain input relations
// (spec.md §4.1); that structural invariant is checked separately by
// Validate.
func (p *Program) InputRelations() []*Relation {
	var out []*Relation
	for i := range p.Nodes {
		n := &p.Nodes[i]
		if n.Kind == NodeRelation && n.Relation.Input {
			out = append(out, n.Relation)
		}
	}
	return out
}
