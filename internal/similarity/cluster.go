// Package similarity implements single-link clustering of findings:
// findings whose snippet pairs all exceed a normalized edit-distance
// threshold are grouped; singleton groups are discarded; each surviving
// group's hash is the combined hash of its sorted finding ids.
package similarity

import (
	"encoding/binary"
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Candidate is one non-metadata finding's clustering input: its id and the
// exact snippet text it matched, resolved from the run/artifact field by the
// caller. The clustering engine always works on resolved strings regardless
// of how the Finding's snippet range is stored.
type Candidate struct {
	FindingID int64
	Snippet   string
}

type group struct {
	members []Candidate
}

// Cluster runs single-link clustering over candidates in the order given
// (which must be the stable emission order the parser produces) and returns
// the assigned hash for every finding that ends up in a non-singleton
// group. Findings absent from the result are singletons and must not get a
// Similarity row: singleton clusters carry no signal and are never stored.
func Cluster(candidates []Candidate, threshold float64) map[int64]uint64 {
	var groups []*group
	for _, c := range candidates {
		placed := false
		for _, g := range groups {
			if allExceed(g, c, threshold) {
				g.members = append(g.members, c)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, &group{members: []Candidate{c}})
		}
	}

	out := make(map[int64]uint64)
	for _, g := range groups {
		if len(g.members) < 2 {
			continue
		}
		ids := make([]int64, len(g.members))
		for i, m := range g.members {
			ids[i] = m.FindingID
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		hash := hashIDs(ids)
		for _, id := range ids {
			out[id] = hash
		}
	}
	return out
}

// allExceed reports whether c's normalized edit distance to every existing
// member of g is strictly greater than threshold — the all-pairs
// acceptance rule, not merely "similar to the group's first member."
func allExceed(g *group, c Candidate, threshold float64) bool {
	for _, m := range g.members {
		if NormalizedDistance(c.Snippet, m.Snippet) <= threshold {
			return false
		}
	}
	return true
}

// hashIDs combines a sorted id list into one 64-bit group identity. Sorting
// first (done by the caller) makes the hash independent of discovery
// order, so group identity is stable across invocations regardless of the
// order candidates arrived in.
func hashIDs(sortedIDs []int64) uint64 {
	h := xxhash.New()
	buf := make([]byte, 8)
	for _, id := range sortedIDs {
		binary.LittleEndian.PutUint64(buf, uint64(id))
		_, _ = h.Write(buf)
	}
	return h.Sum64()
}
