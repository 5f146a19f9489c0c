// Package tagcatalog is a domain-specific pattern index: its items carry
// name, description, target field, and severity, producing Findings with
// provenance back into the originating text region.
package tagcatalog

import (
	"fmt"

	"github.com/hearthci/buildpulse/internal/patternindex"
	"github.com/hearthci/buildpulse/internal/types"
)

// Catalog wraps a patternindex.Index with the Tag metadata patternindex
// itself doesn't know about (description, target field, severity).
type Catalog struct {
	index *patternindex.Index
	tags  []types.Tag
}

// Build compiles every tag's pattern and assembles the composite matcher.
// Duplicate tag names are rejected — Tag.Name is the catalog's unique key.
func Build(tags []types.Tag) (*Catalog, error) {
	seen := make(map[string]bool, len(tags))
	items := make([]patternindex.Item, len(tags))
	for i, t := range tags {
		if !t.From.Valid() {
			return nil, fmt.Errorf("tagcatalog: tag %q: invalid from %q", t.Name, t.From)
		}
		if !t.Severity.Valid() {
			return nil, fmt.Errorf("tagcatalog: tag %q: invalid severity %q", t.Name, t.Severity)
		}
		if seen[t.Name] {
			return nil, fmt.Errorf("tagcatalog: duplicate tag name %q", t.Name)
		}
		seen[t.Name] = true
		items[i] = patternindex.Item{Name: t.Name, Pattern: t.Pattern}
	}
	idx, err := patternindex.Build(items)
	if err != nil {
		return nil, err
	}
	return &Catalog{index: idx, tags: tags}, nil
}

// Fingerprint is the catalog's schema fingerprint; stored as Run.TagSchema
// and compared to decide whether a run needs reparsing.
func (c *Catalog) Fingerprint() uint64 { return c.index.Fingerprint() }

// Tags returns the catalog's tags in declaration order.
func (c *Catalog) Tags() []types.Tag { return c.tags }

// RawFinding is a Finding not yet attached to a run/artifact/tag row id —
// the Parser resolves TagName to a tag id and attaches run/artifact ids
// after calling Classify.
type RawFinding struct {
	TagName      string
	SnippetStart int64
	SnippetEnd   int64
	Duplicates   int64
}

// Classify applies every tag whose From matches from against text, in
// three steps:
//  1. compute the matching-item subset via the composite matcher;
//  2. for each matching tag, iterate its own regex's match spans over
//     text, grouping byte-identical substrings within this one call into
//     one Finding with duplicates = count-1;
//  3. the snippet is the byte range in text (provenance — which field,
//     which artifact — is the caller's responsibility, since Classify only
//     sees one field at a time).
func (c *Catalog) Classify(from types.From, text string) []RawFinding {
	var out []RawFinding
	for _, i := range c.index.Matches(text) {
		tag := c.tags[i]
		if tag.From != from {
			continue
		}
		out = append(out, classifyOne(c.index, i, tag, text)...)
	}
	return out
}

func classifyOne(idx *patternindex.Index, i int, tag types.Tag, text string) []RawFinding {
	re := idx.Regexp(i)
	locs := re.FindAllStringIndex(text, -1)
	if locs == nil {
		return nil
	}

	type group struct {
		start, end int64
		count      int64
	}
	byValue := make(map[string]*group, len(locs))
	var order []string
	for _, loc := range locs {
		val := text[loc[0]:loc[1]]
		g, ok := byValue[val]
		if !ok {
			g = &group{start: int64(loc[0]), end: int64(loc[1])}
			byValue[val] = g
			order = append(order, val)
		}
		g.count++
	}

	out := make([]RawFinding, 0, len(order))
	for _, val := range order {
		g := byValue[val]
		out = append(out, RawFinding{
			TagName:      tag.Name,
			SnippetStart: g.start,
			SnippetEnd:   g.end,
			Duplicates:   g.count - 1,
		})
	}
	return out
}
