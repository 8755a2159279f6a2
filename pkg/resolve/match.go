package resolve

import (
	"sort"

	"github.com/agentstation/ecomap/pkg/entity"
)

// matchKind orders match evidence from strongest to weakest.
type matchKind int

const (
	matchWebsite matchKind = iota
	matchExactName
	matchFuzzy
)

func (k matchKind) String() string {
	switch k {
	case matchWebsite:
		return "website"
	case matchExactName:
		return "exact_name"
	default:
		return "fuzzy_name"
	}
}

// pair is a matched pair of records.
type pair struct {
	a, b       string
	kind       matchKind
	similarity float64
}

// match decides whether two records describe the same entity. Records with
// different websites never match; records that both lack a website match on
// exact name; otherwise the names must overlap by at least threshold and
// countries must agree when both are known.
func match(a, b *entity.NormalizedRecord, threshold float64) (pair, bool) {
	p := pair{a: a.SourceID, b: b.SourceID}
	if p.b < p.a {
		p.a, p.b = p.b, p.a
	}

	da, db := Domain(a.Website), Domain(b.Website)
	if da != "" && db != "" {
		if da != db {
			return p, false
		}
		p.kind, p.similarity = matchWebsite, 1
		return p, true
	}

	if da == "" && db == "" {
		if ea := ExactName(a.Name); ea != "" && ea == ExactName(b.Name) {
			p.kind, p.similarity = matchExactName, 1
			return p, true
		}
	}

	if a.Country != "" && b.Country != "" && a.Country != b.Country {
		return p, false
	}
	sim := Similarity(a.Name, b.Name)
	if sim < threshold {
		return p, false
	}
	p.kind, p.similarity = matchFuzzy, sim
	return p, true
}

// sortPairs orders pairs so the strongest evidence is applied first; ties are
// broken by source ID so the union order never depends on input order.
func sortPairs(pairs []pair) {
	sort.Slice(pairs, func(i, j int) bool {
		a, b := pairs[i], pairs[j]
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		if a.similarity != b.similarity {
			return a.similarity > b.similarity
		}
		if a.a != b.a {
			return a.a < b.a
		}
		return a.b < b.b
	})
}
