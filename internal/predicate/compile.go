package predicate

import "strings"

// CompileRows builds the SQL WHERE-clause fragment and positional
// arguments matching any run for which at least one row holds — i.e. the
// OR of the rows' individually-ANDed leaf tests. The fragment references
// runs.id and is meant to be embedded in:
//
//	SELECT DISTINCT runs.id FROM runs WHERE <fragment>
//
// An empty rows list (every generator in the expression matched nothing,
// or the expression itself reduced to an unsatisfiable constant) compiles
// to "0" — matches nothing, never all runs.
func CompileRows(rows []Row) (string, []any) {
	if len(rows) == 0 {
		return "0", nil
	}
	var clauses []string
	var args []any
	for _, row := range rows {
		clause, rowArgs := compileRow(row)
		clauses = append(clauses, clause)
		args = append(args, rowArgs...)
	}
	return strings.Join(clauses, " OR "), args
}

// compileRow ANDs together every leaf's EXISTS/NOT EXISTS subquery. An
// empty row (the trueNode case from toDNF) compiles to "1", matching every
// run — this arises from a negated generator that matched no catalog tag.
func compileRow(row Row) (string, []any) {
	if len(row) == 0 {
		return "1", nil
	}
	var clauses []string
	var args []any
	for _, leaf := range row {
		clause, leafArgs := compileLeaf(leaf)
		clauses = append(clauses, clause)
		args = append(args, leafArgs...)
	}
	return "(" + strings.Join(clauses, " AND ") + ")", args
}

func compileLeaf(l Leaf) (string, []any) {
	var cond, arg string
	if l.Tag {
		cond = "tags.name REGEXP ?"
		arg = l.Pattern
	} else {
		cond = "tags.severity = ?"
		arg = l.Severity
	}
	sub := "SELECT 1 FROM issues JOIN tags ON issues.tag_id = tags.id WHERE issues.run_id = runs.id AND " + cond
	if l.Negated {
		return "NOT EXISTS (" + sub + ")", []any{arg}
	}
	return "EXISTS (" + sub + ")", []any{arg}
}
