package predicate

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthci/buildpulse/internal/types"
)

func mustParse(t *testing.T, expr string) Node {
	t.Helper()
	n, err := Parse(expr)
	require.NoError(t, err)
	return n
}

func TestParse_Precedence(t *testing.T) {
	// !t"a" && t"b" || t"c"  parses as  ((!t"a") && t"b") || t"c"
	n := mustParse(t, `!t"a" && t"b" || t"c"`)
	or, ok := n.(Or)
	require.True(t, ok)
	and, ok := or.L.(And)
	require.True(t, ok)
	_, ok = and.L.(Not)
	assert.True(t, ok)
	assert.Equal(t, TagAtom{Pattern: "c"}, or.R)
}

func TestParse_Parens(t *testing.T) {
	n := mustParse(t, `!(t"a" || t"b")`)
	not, ok := n.(Not)
	require.True(t, ok)
	_, ok = not.X.(Or)
	assert.True(t, ok)
}

func TestParse_TrailingTokenIsAnError(t *testing.T) {
	_, err := Parse(`t"a" t"b"`)
	assert.Error(t, err)
}

func TestParse_UnterminatedString(t *testing.T) {
	_, err := Parse(`t"a`)
	assert.Error(t, err)
}

var testCatalog = []types.Tag{
	{Name: "oom", Severity: types.SeverityError},
	{Name: "oom-retry", Severity: types.SeverityWarning},
	{Name: "flake", Severity: types.SeverityWarning},
	{Name: "build-info", Severity: types.SeverityMetadata},
}

func rowSet(rows []Row) map[string]bool {
	out := make(map[string]bool, len(rows))
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for _, l := range row {
			if l.Tag {
				keys = append(keys, "t:"+l.Pattern+boolStr(l.Negated))
			} else {
				keys = append(keys, "s:"+l.Severity+boolStr(l.Negated))
			}
		}
		sort.Strings(keys)
		out[sortedJoin(keys)] = true
	}
	return out
}

func boolStr(b bool) string {
	if b {
		return "!"
	}
	return ""
}

func sortedJoin(keys []string) string {
	out := ""
	for i, k := range keys {
		if i > 0 {
			out += "|"
		}
		out += k
	}
	return out
}

func TestEvalRows_GenTagExpandsToOneRowPerMatchingTag(t *testing.T) {
	n := mustParse(t, `T"^oom"`)
	rows, err := EvalRows(n, testCatalog)
	require.NoError(t, err)
	require.Len(t, rows, 2) // oom, oom-retry
	for _, row := range rows {
		require.Len(t, row, 1)
		assert.True(t, row[0].Tag)
		assert.False(t, row[0].Negated)
	}
}

func TestEvalRows_GenSeverityExpandsToMatchingTags(t *testing.T) {
	n := mustParse(t, `S"warning"`)
	rows, err := EvalRows(n, testCatalog)
	require.NoError(t, err)
	assert.Len(t, rows, 2) // oom-retry, flake
}

func TestEvalRows_NoMatchingGeneratorMemberIsUnsatisfiable(t *testing.T) {
	n := mustParse(t, `T"^nonexistent-prefix"`)
	rows, err := EvalRows(n, testCatalog)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEvalRows_LiteralAtomsPassThroughUnexpanded(t *testing.T) {
	n := mustParse(t, `t"oom" && s"warning"`)
	rows, err := EvalRows(n, testCatalog)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 2)
}

// TestEvalRows_DeMorgan is the law the expansion algorithm is built to
// preserve: negating a conjunction and distributing the negation over a
// disjunction of negated operands must produce the same set of atomic
// rows, regardless of whether generators are involved.
func TestEvalRows_DeMorgan(t *testing.T) {
	left := mustParse(t, `!(T"^oom" && s"error")`)
	right := mustParse(t, `(!T"^oom") || (!s"error")`)

	leftRows, err := EvalRows(left, testCatalog)
	require.NoError(t, err)
	rightRows, err := EvalRows(right, testCatalog)
	require.NoError(t, err)

	assert.Equal(t, rowSet(leftRows), rowSet(rightRows))
}

func TestEvalRows_DeMorgan_OrNegation(t *testing.T) {
	left := mustParse(t, `!(t"a" || t"b")`)
	right := mustParse(t, `(!t"a") && (!t"b")`)

	leftRows, err := EvalRows(left, testCatalog)
	require.NoError(t, err)
	rightRows, err := EvalRows(right, testCatalog)
	require.NoError(t, err)

	assert.Equal(t, rowSet(leftRows), rowSet(rightRows))
}

func TestCompileRows_EmptyIsUnsatisfiable(t *testing.T) {
	sql, args := CompileRows(nil)
	assert.Equal(t, "0", sql)
	assert.Empty(t, args)
}

func TestCompileRows_OneRowProducesAndedExists(t *testing.T) {
	n := mustParse(t, `t"oom" && s"error"`)
	rows, err := EvalRows(n, testCatalog)
	require.NoError(t, err)
	sql, args := CompileRows(rows)
	assert.Contains(t, sql, "EXISTS")
	assert.Contains(t, sql, "AND")
	require.Len(t, args, 2)
	assert.Equal(t, "oom", args[0])
	assert.Equal(t, "error", args[1])
}

func TestCompileRows_NegatedLeafUsesNotExists(t *testing.T) {
	n := mustParse(t, `!t"oom"`)
	rows, err := EvalRows(n, testCatalog)
	require.NoError(t, err)
	sql, _ := CompileRows(rows)
	assert.Contains(t, sql, "NOT EXISTS")
}
