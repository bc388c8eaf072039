// Package stats summarizes a dataset for reporting.
package stats

import (
	"sort"
	"time"

	"github.com/mts-studios/targetview/pkg/query"
	"github.com/mts-studios/targetview/pkg/table"
)

// Count is one labelled tally.
type Count struct {
	Label string
	N     int
}

// Summary of a table at a point in time.
type Summary struct {
	Rows    int
	Live    int
	Expired int
	NotLive int
	// URLs counts distinct normalized URLs; Unparsed counts URLs without a
	// recognizable registrable domain.
	URLs     int
	Unparsed int

	Domains []Count
	Facets  map[query.Facet][]Count
}

// Summarize tallies status, facet values and root domains of t.
func Summarize(t *table.Table, now time.Time) Summary {
	s := Summary{Rows: t.Len(), Facets: make(map[query.Facet][]Count)}

	seen := make(map[string]bool)
	domains := make(map[string]int)
	for _, rec := range t.Rows() {
		switch rec.Status(now) {
		case "expired":
			s.Expired++
		case "live":
			s.Live++
		default:
			s.NotLive++
		}

		for _, u := range rec.URLs {
			norm := NormalizeURL(u)
			if norm == "" || seen[norm] {
				continue
			}
			seen[norm] = true
			if d, ok := RootDomain(norm); ok {
				domains[d]++
			} else {
				s.Unparsed++
			}
		}
	}
	s.URLs = len(seen)
	s.Domains = sorted(domains)

	for _, f := range query.Facets {
		s.Facets[f] = sorted(query.FacetCounts(t, f))
	}
	return s
}

// sorted orders counts by descending N, then label.
func sorted(m map[string]int) []Count {
	out := make([]Count, 0, len(m))
	for label, n := range m {
		out = append(out, Count{Label: label, N: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Label < out[j].Label
	})
	return out
}
