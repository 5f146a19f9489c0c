package similarity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevenshteinDistance(t *testing.T) {
	assert.Equal(t, 0, levenshteinDistance([]byte("abc"), []byte("abc")))
	assert.Equal(t, 3, levenshteinDistance([]byte(""), []byte("abc")))
	assert.Equal(t, 1, levenshteinDistance([]byte("kitten"), []byte("kitteh")))
	assert.Equal(t, 3, levenshteinDistance([]byte("kitten"), []byte("sitting")))
}

func TestNormalizedDistance_EqualStrings(t *testing.T) {
	assert.Equal(t, 1.0, NormalizedDistance("segmentation fault", "segmentation fault"))
}

func TestNormalizedDistance_NearMiss(t *testing.T) {
	a, b := "error at line 100", "error at line 101"
	d := levenshteinDistance([]byte(a), []byte(b))
	require.Equal(t, 1, d)

	m := len(a)
	want := math.Exp(-float64(d) / float64(m-d))
	got := NormalizedDistance(a, b)
	assert.InDelta(t, want, got, 1e-9)
	assert.Greater(t, got, 0.9)
}

func TestCluster_DiscardsSingletons(t *testing.T) {
	out := Cluster([]Candidate{{FindingID: 1, Snippet: "completely unrelated text"}}, 0.9)
	assert.Empty(t, out)
}

func TestCluster_GroupsNearDuplicates(t *testing.T) {
	candidates := []Candidate{
		{FindingID: 1, Snippet: "error at line 100"},
		{FindingID: 2, Snippet: "error at line 101"},
		{FindingID: 3, Snippet: "a wholly different failure message entirely"},
	}
	out := Cluster(candidates, 0.9)
	require.Len(t, out, 2)
	assert.Equal(t, out[1], out[2])
	assert.NotContains(t, out, int64(3))
}

func TestCluster_ThresholdExcludesAboveIt(t *testing.T) {
	candidates := []Candidate{
		{FindingID: 1, Snippet: "error at line 100"},
		{FindingID: 2, Snippet: "error at line 101"},
	}
	out := Cluster(candidates, 0.95)
	assert.Empty(t, out)
}

func TestCluster_GroupIdentityStableRegardlessOfOrder(t *testing.T) {
	forward := []Candidate{
		{FindingID: 5, Snippet: "error at line 100"},
		{FindingID: 7, Snippet: "error at line 101"},
	}
	backward := []Candidate{
		{FindingID: 7, Snippet: "error at line 101"},
		{FindingID: 5, Snippet: "error at line 100"},
	}
	a := Cluster(forward, 0.9)
	b := Cluster(backward, 0.9)
	assert.Equal(t, a[5], b[5])
	assert.Equal(t, a[7], b[7])
}
