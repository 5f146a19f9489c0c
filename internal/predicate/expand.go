package predicate

import (
	"regexp"

	"github.com/hearthci/buildpulse/internal/types"
)

// Leaf is one fully concrete, generator-free test: either "some finding's
// tag name matches Pattern" or "some finding has this Severity". Negated
// inverts the test after generator expansion and De Morgan pushdown have
// both already run, so a Leaf is always a positive-or-negated atom, never
// a compound expression.
type Leaf struct {
	Tag      bool // true: Pattern is a tag-name regex. false: Severity atom.
	Pattern  string
	Severity string
	Negated  bool
}

// Row is one conjunctive clause: every Leaf in it must hold for the row to
// match. EvalRows returns rows whose union (logical OR across rows) is
// equivalent to the original expression.
type Row []Leaf

// EvalRows expands every generator against catalog, pushes negation to the
// leaves via De Morgan's laws, and converts the result to disjunctive
// normal form: a list of conjunctive rows whose union matches exactly what
// the original expression matches.
//
// Two logically equivalent expressions (related by De Morgan's laws) always
// produce the same rows in the same order, since expansion and negation
// pushdown are applied identically regardless of which side of the
// equivalence the caller started from.
func EvalRows(n Node, catalog []types.Tag) ([]Row, error) {
	expanded, err := expandGenerators(n, catalog)
	if err != nil {
		return nil, err
	}
	nnf := pushNegation(expanded, false)
	return toDNF(nnf), nil
}

// expandGenerators replaces every GenTag/GenSeverity node with an explicit
// Or-tree of TagAtom leaves (one per matching catalog tag, in catalog
// declaration order). A generator matching zero tags becomes falseNode,
// the always-unsatisfiable sentinel.
func expandGenerators(n Node, catalog []types.Tag) (Node, error) {
	switch v := n.(type) {
	case And:
		l, err := expandGenerators(v.L, catalog)
		if err != nil {
			return nil, err
		}
		r, err := expandGenerators(v.R, catalog)
		if err != nil {
			return nil, err
		}
		return And{L: l, R: r}, nil
	case Or:
		l, err := expandGenerators(v.L, catalog)
		if err != nil {
			return nil, err
		}
		r, err := expandGenerators(v.R, catalog)
		if err != nil {
			return nil, err
		}
		return Or{L: l, R: r}, nil
	case Not:
		x, err := expandGenerators(v.X, catalog)
		if err != nil {
			return nil, err
		}
		return Not{X: x}, nil
	case TagAtom, SeverityAtom:
		return n, nil
	case GenTag:
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return nil, err
		}
		var members []Node
		for _, t := range catalog {
			if re.MatchString(t.Name) {
				members = append(members, TagAtom{Pattern: exactMatch(t.Name)})
			}
		}
		return orAll(members), nil
	case GenSeverity:
		var members []Node
		for _, t := range catalog {
			if string(t.Severity) == v.Severity {
				members = append(members, TagAtom{Pattern: exactMatch(t.Name)})
			}
		}
		return orAll(members), nil
	default:
		panic("predicate: unknown node type in expandGenerators")
	}
}

// exactMatch anchors a literal tag name into a regex that matches only that
// name, so a generator-produced TagAtom compiles through the same REGEXP
// path as a hand-written t"..." leaf.
func exactMatch(name string) string {
	return "^" + regexp.QuoteMeta(name) + "$"
}

// falseNode is the zero-member-generator sentinel: unsatisfiable, and an
// identity element for Or (contributes no rows when unioned).
type falseNode struct{}

func (falseNode) node() {}

func orAll(members []Node) Node {
	if len(members) == 0 {
		return falseNode{}
	}
	n := members[0]
	for _, m := range members[1:] {
		n = Or{L: n, R: m}
	}
	return n
}

// pushNegation rewrites n into negation normal form: Not is pushed down via
// De Morgan's laws until it only ever sits directly on a leaf. negated
// tracks whether an odd number of Not ancestors have already been absorbed
// on the path down to n.
func pushNegation(n Node, negated bool) Node {
	switch v := n.(type) {
	case And:
		if negated {
			return Or{L: pushNegation(v.L, true), R: pushNegation(v.R, true)}
		}
		return And{L: pushNegation(v.L, false), R: pushNegation(v.R, false)}
	case Or:
		if negated {
			return And{L: pushNegation(v.L, true), R: pushNegation(v.R, true)}
		}
		return Or{L: pushNegation(v.L, false), R: pushNegation(v.R, false)}
	case Not:
		return pushNegation(v.X, !negated)
	case TagAtom:
		return leafNode{Leaf{Tag: true, Pattern: v.Pattern, Negated: negated}}
	case SeverityAtom:
		return leafNode{Leaf{Tag: false, Severity: v.Severity, Negated: negated}}
	case falseNode:
		if negated {
			return trueNode{}
		}
		return falseNode{}
	case trueNode:
		if negated {
			return falseNode{}
		}
		return trueNode{}
	default:
		panic("predicate: unknown node type in pushNegation")
	}
}

// leafNode wraps a concrete Leaf as a Node so pushNegation's output tree
// stays uniform (And/Or/leafNode/falseNode/trueNode only — no more Not,
// TagAtom, or SeverityAtom past this point).
type leafNode struct{ Leaf Leaf }

func (leafNode) node() {}

// trueNode is the negation of falseNode: always satisfied, and an identity
// element for And.
type trueNode struct{}

func (trueNode) node() {}

// toDNF converts a negation-normal-form tree into disjunctive normal form:
// a list of conjunctive Rows whose union equals the tree's truth value.
func toDNF(n Node) []Row {
	switch v := n.(type) {
	case leafNode:
		return []Row{{v.Leaf}}
	case falseNode:
		return nil
	case trueNode:
		return []Row{{}}
	case And:
		left := toDNF(v.L)
		right := toDNF(v.R)
		var out []Row
		for _, l := range left {
			for _, r := range right {
				clause := make(Row, 0, len(l)+len(r))
				clause = append(clause, l...)
				clause = append(clause, r...)
				out = append(out, clause)
			}
		}
		return out
	case Or:
		left := toDNF(v.L)
		right := toDNF(v.R)
		out := make([]Row, 0, len(left)+len(right))
		out = append(out, left...)
		out = append(out, right...)
		return out
	default:
		panic("predicate: unknown node type in toDNF")
	}
}
