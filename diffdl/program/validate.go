package program

import (
	"fmt"

	"github.com/wbrown/janus-diffdl/diffdl"
)

// Validate checks the program's structural invariants at build time
// (spec.md §4.1, §4.2, §7 class 2): SCCs contain no input relations,
// antijoins only target Set arrangements with DistinctBeforeArr set,
// arrangement rules never source a Set arrangement, and every rule
// references only relations introduced in an earlier node or the same
// SCC (a referenced id that no node defines, such as a collection a
// transformer produces, is not checked). Errors returned here are
// program-construction errors, reported
// before any dataflow is compiled.
func (p *Program) Validate() error {
	arrKindOf := arrangementIndex(p)
	relNodeIndex := make(map[diffdl.RelId]int, len(p.Nodes))

	for i := range p.Nodes {
		n := &p.Nodes[i]
		switch n.Kind {
		case NodeRelation:
			relNodeIndex[n.Relation.Id] = i
		case NodeSCC:
			for j := range n.SCC.Members {
				m := &n.SCC.Members[j]
				if m.Input {
					return fmt.Errorf("%w: relation %q (id %d)", diffdl.ErrInputInSCC, m.Name, m.Id)
				}
				relNodeIndex[m.Id] = i
			}
		}
	}

	for i := range p.Nodes {
		n := &p.Nodes[i]
		var members []*Relation
		switch n.Kind {
		case NodeRelation:
			members = []*Relation{n.Relation}
		case NodeSCC:
			for j := range n.SCC.Members {
				members = append(members, &n.SCC.Members[j])
			}
		default:
			continue
		}

		for _, rel := range members {
			for ri := range rel.Rules {
				rule := &rel.Rules[ri]
				if err := validateRule(rule, arrKindOf, relNodeIndex, i); err != nil {
					return fmt.Errorf("relation %q: %w", rel.Name, err)
				}
			}
		}
	}
	return nil
}

func validateRule(rule *Rule, arrKindOf map[diffdl.ArrId]*Arrangement, relNodeIndex map[diffdl.RelId]int, ownerNode int) error {
	if rule.Kind == RuleArrangement {
		arr, ok := arrKindOf[rule.SourceArr]
		if !ok {
			return fmt.Errorf("%w: %v", diffdl.ErrUnknownArrangement, rule.SourceArr)
		}
		if arr.Kind == ArrangementSet {
			return fmt.Errorf("%w: %v", diffdl.ErrArrangementRuleOnSet, rule.SourceArr)
		}
	}

	var chain *Chain
	if rule.Kind == RuleCollection {
		if idx, ok := relNodeIndex[rule.SourceRel]; ok && idx > ownerNode {
			return fmt.Errorf("rule references relation %d introduced later in program order", rule.SourceRel)
		}
		chain = rule.Transform
	} else {
		chain = rule.ArrTransform
	}
	return validateChain(chain, arrKindOf)
}

func validateChain(c *Chain, arrKindOf map[diffdl.ArrId]*Arrangement) error {
	if c.IsEmpty() {
		return nil
	}
	for i := c.Head; i >= 0; {
		op := c.Ops[i]
		switch op.Kind {
		case OpJoin, OpValJoin, OpArrStreamJoin, OpStreamJoin:
			arr, ok := arrKindOf[op.ArrId]
			if !ok {
				return fmt.Errorf("%w: %v", diffdl.ErrUnknownArrangement, op.ArrId)
			}
			if arr.Kind != ArrangementMap {
				return fmt.Errorf("%w: join/stream-join requires a Map arrangement, got Set at %v", diffdl.ErrArrangementFlavor, op.ArrId)
			}
		case OpSemijoin, OpArrStreamSemijoin, OpStreamSemijoin:
			arr, ok := arrKindOf[op.ArrId]
			if !ok {
				return fmt.Errorf("%w: %v", diffdl.ErrUnknownArrangement, op.ArrId)
			}
			if arr.Kind != ArrangementSet {
				return fmt.Errorf("%w: semijoin requires a Set arrangement, got Map at %v", diffdl.ErrArrangementFlavor, op.ArrId)
			}
		case OpAntijoin:
			arr, ok := arrKindOf[op.ArrId]
			if !ok {
				return fmt.Errorf("%w: %v", diffdl.ErrUnknownArrangement, op.ArrId)
			}
			if arr.Kind != ArrangementSet {
				return fmt.Errorf("%w: antijoin requires a Set arrangement, got Map at %v", diffdl.ErrArrangementFlavor, op.ArrId)
			}
			if !arr.DistinctBeforeArr {
				return fmt.Errorf("%w: %v", diffdl.ErrAntijoinNotDistinct, op.ArrId)
			}
		case OpStreamXForm:
			if err := validateChain(op.XForm, arrKindOf); err != nil {
				return err
			}
		}
		i = op.Next
	}
	return nil
}

func arrangementIndex(p *Program) map[diffdl.ArrId]*Arrangement {
	idx := make(map[diffdl.ArrId]*Arrangement)
	for _, rel := range p.Relations() {
		for i := range rel.Arrangements {
			a := &rel.Arrangements[i]
			idx[a.Id] = a
		}
	}
	return idx
}
