package table

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout   = "2006-01-02"
	dateSentinel = "NAN"
	urlSeparator = ";"
)

var dateLayouts = []string{dateLayout, "2006/01/02", "2006-01-02 15:04:05"}

// ErrBadDate is returned by ParseDate for text that is neither a sentinel nor
// a recognized layout.
var ErrBadDate = errors.New("unrecognized date")

// column binds one wire column to a Record field. The schema is the only
// place that knows the column layout; everything else uses named fields.
type column struct {
	name    string
	aliases []string
	get     func(Record) string
	set     func(*Record, string) error
}

// schema is the canonical column order used by Serialize. Columns were added
// over time (geo_target, business_unit, environment); a payload missing any of
// them leaves the field at its zero value, which is the defined default.
var schema = []column{
	{
		name:    "title",
		aliases: []string{"title"},
		get:     func(r Record) string { return r.Title },
		set:     func(r *Record, v string) error { r.Title = v; return nil },
	},
	{
		name:    "activity",
		aliases: []string{"activity", "activitytype"},
		get:     func(r Record) string { return string(r.ActivityType) },
		set:     func(r *Record, v string) error { r.ActivityType = ActivityType(v); return nil },
	},
	{
		name:    "geo_target",
		aliases: []string{"geotarget"},
		get:     func(r Record) string { return FormatBool(r.GeoTarget) },
		set:     func(r *Record, v string) error { r.GeoTarget = ParseBool(v); return nil },
	},
	{
		name:    "url",
		aliases: []string{"url", "urls"},
		get:     func(r Record) string { return JoinURLs(r.URLs) },
		set:     func(r *Record, v string) error { r.URLs = SplitURLs(v); return nil },
	},
	{
		name:    "live",
		aliases: []string{"live"},
		get:     func(r Record) string { return FormatBool(r.Live) },
		set:     func(r *Record, v string) error { r.Live = ParseBool(v); return nil },
	},
	{
		name:    "end date",
		aliases: []string{"enddate"},
		get:     func(r Record) string { return r.EndDate.String() },
		set: func(r *Record, v string) error {
			d, err := ParseDate(v)
			r.EndDate = d
			return err
		},
	},
	{
		name:    "business_unit",
		aliases: []string{"businessunit", "bu"},
		get:     func(r Record) string { return string(r.BusinessUnit) },
		set:     func(r *Record, v string) error { r.BusinessUnit = BusinessUnit(v); return nil },
	},
	{
		name:    "environment",
		aliases: []string{"environment", "env"},
		get:     func(r Record) string { return string(r.Environment) },
		set:     func(r *Record, v string) error { r.Environment = Environment(v); return nil },
	},
}

// Columns returns the canonical header, in serialization order.
func Columns() []string {
	out := make([]string, len(schema))
	for i, c := range schema {
		out[i] = c.name
	}
	return out
}

// ChangedColumns names the columns whose wire form differs between a and b.
func ChangedColumns(a, b Record) []string {
	var out []string
	for _, c := range schema {
		if c.get(a) != c.get(b) {
			out = append(out, c.name)
		}
	}
	return out
}

// normalizeHeader folds case, whitespace, underscores and dashes so that
// "End Date", "end_date" and "enddate" resolve to the same column.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(h)
}

// resolveHeader maps each header cell to a schema column index, or -1 when the
// column is unknown. The first occurrence of a column wins.
func resolveHeader(header []string) (mapping []int, known int) {
	byAlias := make(map[string]int)
	for i, c := range schema {
		for _, a := range c.aliases {
			byAlias[a] = i
		}
	}

	seen := make(map[int]bool)
	mapping = make([]int, len(header))
	for i, h := range header {
		mapping[i] = -1
		idx, ok := byAlias[normalizeHeader(h)]
		if !ok || seen[idx] {
			continue
		}
		seen[idx] = true
		mapping[i] = idx
		known++
	}
	return mapping, known
}

// ParseBool accepts "true" in any case; every other value is false.
func ParseBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// FormatBool writes booleans the way the dataset has always stored them.
func FormatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// SplitURLs splits the semicolon-joined url field, preserving order and
// duplicates. An empty field yields no URLs.
func SplitURLs(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, urlSeparator)
}

// JoinURLs is the inverse of SplitURLs.
func JoinURLs(urls []string) string {
	return strings.Join(urls, urlSeparator)
}

// IsDateSentinel reports whether s marks an absent date.
func IsDateSentinel(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NAN", "N/A", "NAT", "NONE":
		return true
	}
	return false
}

// ParseDate reads an end date. Sentinels yield an absent date and no error.
// Unrecognized text yields an absent date and ErrBadDate.
func ParseDate(s string) (Date, error) {
	if IsDateSentinel(s) {
		return Date{}, nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return DateOf(t), nil
		}
	}
	return Date{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// ParseActivityType matches s case-insensitively against the known activity
// types. Unknown text falls back to ActivityTypeActivity.
func ParseActivityType(s string) (ActivityType, bool) {
	for _, a := range ActivityTypes {
		if strings.EqualFold(strings.TrimSpace(s), string(a)) {
			return a, true
		}
	}
	return ActivityTypeActivity, false
}

// ParseBusinessUnit matches s case-insensitively. Unknown text falls back to
// BusinessUnitNone.
func ParseBusinessUnit(s string) (BusinessUnit, bool) {
	for _, b := range BusinessUnits {
		if strings.EqualFold(strings.TrimSpace(s), string(b)) {
			return b, true
		}
	}
	return BusinessUnitNone, false
}

// ParseEnvironment matches s case-insensitively. Unknown text falls back to
// EnvironmentNone.
func ParseEnvironment(s string) (Environment, bool) {
	for _, e := range Environments {
		if strings.EqualFold(strings.TrimSpace(s), string(e)) {
			return e, true
		}
	}
	return EnvironmentNone, false
}
