package predicate

// Node is one node of a parsed view expression.
type Node interface{ node() }

// And is a left-associative conjunction.
type And struct{ L, R Node }

// Or is a left-associative disjunction.
type Or struct{ L, R Node }

// Not negates its operand.
type Not struct{ X Node }

// TagAtom is a literal tag-name regex leaf ('t' or an expanded 'T').
type TagAtom struct{ Pattern string }

// SeverityAtom is a literal severity leaf ('s').
type SeverityAtom struct{ Severity string }

// GenTag is a 'T' generator: expands to the OR of t"name" for every
// catalog tag whose name matches Pattern.
type GenTag struct{ Pattern string }

// GenSeverity is an 'S' generator: expands to the OR of t"name" for every
// catalog tag whose severity equals Severity.
type GenSeverity struct{ Severity string }

func (And) node()          {}
func (Or) node()           {}
func (Not) node()          {}
func (TagAtom) node()      {}
func (SeverityAtom) node() {}
func (GenTag) node()       {}
func (GenSeverity) node()  {}
