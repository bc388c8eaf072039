// Package query computes the visible subset of a table from a free-text term
// and a set of exact-match facet selections.
package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mts-studios/targetview/pkg/table"
)

// Facet is a discrete-valued column used for exact-match filtering.
type Facet string

const (
	FacetActivityType Facet = "activity_type"
	FacetLive         Facet = "live"
	FacetBusinessUnit Facet = "business_unit"
)

// Facets lists every supported facet in display order.
var Facets = []Facet{FacetActivityType, FacetLive, FacetBusinessUnit}

// ParseFacet resolves a facet name, accepting a few short forms.
func ParseFacet(name string) (Facet, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "activity_type", "activity", "type":
		return FacetActivityType, nil
	case "live":
		return FacetLive, nil
	case "business_unit", "bu", "unit":
		return FacetBusinessUnit, nil
	}
	return "", fmt.Errorf("unknown facet %q (available: activity_type, live, business_unit)", name)
}

// FilterState is the current search term plus facet selections. An empty
// facet value places no constraint on that facet.
type FilterState struct {
	Term   string
	Facets map[Facet]string
}

// IsEmpty reports whether the filter keeps every row.
func (f FilterState) IsEmpty() bool {
	if f.Term != "" {
		return false
	}
	for _, v := range f.Facets {
		if v != "" {
			return false
		}
	}
	return true
}

// With returns a copy of f with facet set to value. The receiver is not
// modified.
func (f FilterState) With(facet Facet, value string) FilterState {
	out := FilterState{Term: f.Term, Facets: make(map[Facet]string, len(f.Facets)+1)}
	for k, v := range f.Facets {
		out.Facets[k] = v
	}
	out.Facets[facet] = value
	return out
}

// Row is a surviving record together with its index in the table.
type Row struct {
	Index  int
	Record table.Record
}

// ComputeVisible returns the rows of t that pass f, in table order.
//
// A row passes the term when the lower-cased term is a substring of any of
// title, activity type, geo_target text or the joined url field. It passes
// the facets when every non-empty facet equals the row's field. When both are
// set a row must pass both: the term is an OR across fields, the facets are an
// AND across facets.
func ComputeVisible(t *table.Table, f FilterState) []Row {
	term := strings.ToLower(f.Term)
	rows := t.Rows()
	out := make([]Row, 0, len(rows))
	for i, rec := range rows {
		if term != "" && !matchesTerm(rec, term) {
			continue
		}
		if !matchesFacets(rec, f.Facets) {
			continue
		}
		out = append(out, Row{Index: i, Record: rec})
	}
	return out
}

func matchesTerm(rec table.Record, term string) bool {
	fields := []string{
		rec.Title,
		string(rec.ActivityType),
		table.FormatBool(rec.GeoTarget),
		table.JoinURLs(rec.URLs),
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), term) {
			return true
		}
	}
	return false
}

func matchesFacets(rec table.Record, facets map[Facet]string) bool {
	for facet, want := range facets {
		if want == "" {
			continue
		}
		if !facetEquals(facet, FacetValue(rec, facet), want) {
			return false
		}
	}
	return true
}

func facetEquals(facet Facet, got, want string) bool {
	if facet == FacetLive {
		return strings.EqualFold(got, strings.TrimSpace(want))
	}
	return got == want
}

// FacetValue renders the field of rec that facet filters on.
func FacetValue(rec table.Record, facet Facet) string {
	switch facet {
	case FacetActivityType:
		return string(rec.ActivityType)
	case FacetLive:
		return table.FormatBool(rec.Live)
	case FacetBusinessUnit:
		return string(rec.BusinessUnit)
	}
	return ""
}

// FacetValues returns the sorted distinct non-empty values of facet in t, for
// populating selectors.
func FacetValues(t *table.Table, facet Facet) []string {
	seen := make(map[string]struct{})
	for _, rec := range t.Rows() {
		if v := FacetValue(rec, facet); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// FacetCounts counts rows per value of facet. Empty values are counted under
// the empty string.
func FacetCounts(t *table.Table, facet Facet) map[string]int {
	counts := make(map[string]int)
	for _, rec := range t.Rows() {
		counts[FacetValue(rec, facet)]++
	}
	return counts
}
