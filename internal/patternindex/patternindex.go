// Package patternindex implements a composite multi-pattern matcher: given
// N (name, regex) pairs, it answers "which subset of items match this text"
// and "at what byte ranges" without the caller iterating all N regexes
// individually for the membership question.
//
// Go's regexp package (RE2) has no native regex-set primitive, so this
// approximates one by concatenating patterns with named-group alternation.
// All N patterns are joined
// into one composite `(?P<g0>pat0)|(?P<g1>pat1)|...` regex; one
// FindAllStringSubmatchIndex pass over the text reports which named groups
// fired, i.e. the matching subset, in close to one linear scan. Because RE2
// alternation is leftmost-first and the scan's matches do not overlap, an
// item loses to another alternative when its matches only start at a
// position an earlier alternative also matches at, or inside a span the
// scan has already consumed. Such an item is missing from Matches, and the
// Tag Catalog produces no Finding for it. Exact match
// spans for Finding extraction are always
// taken from a matching item's own individually compiled regex (see
// tagcatalog), never from the composite's submatch indices.
package patternindex

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Item is one (name, pattern) pair the index is built from.
type Item struct {
	Name    string
	Pattern string
}

// Index is immutable after construction; it is safe to share across
// goroutines without synchronization.
type Index struct {
	items     []Item
	compiled  []*regexp.Regexp
	composite *regexp.Regexp
	groupItem map[string]int // composite submatch group name -> item index
	fingerprint uint64
}

// Build compiles each item's regex individually and assembles the
// composite matcher. Items with invalid patterns are rejected at
// construction: a bad regex is a fatal configuration error, not something
// to defer to first use.
func Build(items []Item) (*Index, error) {
	idx := &Index{
		items:     items,
		compiled:  make([]*regexp.Regexp, len(items)),
		groupItem: make(map[string]int, len(items)),
	}

	alts := make([]string, len(items))
	for i, it := range items {
		re, err := regexp.Compile(it.Pattern)
		if err != nil {
			return nil, fmt.Errorf("patternindex: compiling %q: %w", it.Name, err)
		}
		idx.compiled[i] = re

		group := fmt.Sprintf("g%d", i)
		idx.groupItem[group] = i
		alts[i] = fmt.Sprintf("(?P<%s>%s)", group, it.Pattern)
	}

	if len(items) > 0 {
		composite, err := regexp.Compile(strings.Join(alts, "|"))
		if err != nil {
			return nil, fmt.Errorf("patternindex: compiling composite matcher: %w", err)
		}
		idx.composite = composite
	}

	idx.fingerprint = fingerprint(items)
	return idx, nil
}

// fingerprint folds in each item's name and regex source text (never the
// compiled automaton) in declaration order. xxhash gives a stable, fast
// 64-bit digest; whitespace-only config edits that leave the pattern text
// unchanged do not perturb it, so an unrelated formatting change never
// triggers a reparse of every cached run.
func fingerprint(items []Item) uint64 {
	h := xxhash.New()
	for _, it := range items {
		_, _ = h.WriteString(it.Name)
		_, _ = h.Write([]byte{0})
		_, _ = h.WriteString(it.Pattern)
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}

// Fingerprint is the 64-bit content hash identifying this catalog revision.
func (idx *Index) Fingerprint() uint64 { return idx.fingerprint }

// Len returns the number of items in the index.
func (idx *Index) Len() int { return len(idx.items) }

// Item returns the i'th item.
func (idx *Index) Item(i int) Item { return idx.items[i] }

// Regexp returns the i'th item's individually compiled regex, used to
// iterate exact match spans once an item is known to be a candidate.
func (idx *Index) Regexp(i int) *regexp.Regexp { return idx.compiled[i] }

// Matches returns the indices of every item whose regex matches text, in
// declaration order, computed via the composite scan described above.
func (idx *Index) Matches(text string) []int {
	if idx.composite == nil {
		return nil
	}
	all := idx.composite.FindAllStringSubmatchIndex(text, -1)
	seen := make(map[int]bool, len(idx.items))
	var out []int
	names := idx.composite.SubexpNames()
	for _, m := range all {
		for gi, name := range names {
			if name == "" || gi*2 >= len(m) {
				continue
			}
			if m[gi*2] < 0 {
				continue // this group did not participate in this match
			}
			itemIdx, ok := idx.groupItem[name]
			if !ok || seen[itemIdx] {
				continue
			}
			seen[itemIdx] = true
			out = append(out, itemIdx)
		}
	}
	sort.Ints(out)
	return out
}
