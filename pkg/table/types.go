package table

import (
	"slices"
	"time"
)

// ActivityType is the kind of targeting activity a record describes.
type ActivityType string

const (
	ActivityTypeActivity ActivityType = "activity"
	ActivityTypeAB       ActivityType = "A/B"
)

// BusinessUnit owning the activity. Older payloads do not carry it.
type BusinessUnit string

const (
	BusinessUnitNone         BusinessUnit = ""
	BusinessUnitCorp         BusinessUnit = "Corp"
	BusinessUnitSchool       BusinessUnit = "School"
	BusinessUnitHigherEd     BusinessUnit = "HigherEd"
	BusinessUnitSharpen      BusinessUnit = "Sharpen"
	BusinessUnitProfessional BusinessUnit = "Professional"
)

// Environment the activity runs in. Older payloads do not carry it.
type Environment string

const (
	EnvironmentNone Environment = ""
	EnvironmentQALV Environment = "QALV"
	EnvironmentPROD Environment = "PROD"
)

// ActivityTypes, BusinessUnits and Environments list the recognized values in
// display order.
var (
	ActivityTypes = []ActivityType{ActivityTypeActivity, ActivityTypeAB}
	BusinessUnits = []BusinessUnit{BusinessUnitCorp, BusinessUnitSchool, BusinessUnitHigherEd, BusinessUnitSharpen, BusinessUnitProfessional}
	Environments  = []Environment{EnvironmentQALV, EnvironmentPROD}
)

// Record is one row of the dataset.
type Record struct {
	Title        string
	ActivityType ActivityType
	GeoTarget    bool
	BusinessUnit BusinessUnit
	Environment  Environment
	URLs         []string
	Live         bool
	EndDate      Date
}

// IsExpired reports whether a live record is past its end date. It is derived
// on every call and never stored.
func (r Record) IsExpired(now time.Time) bool {
	if !r.Live || !r.EndDate.Valid {
		return false
	}
	y, m, d := now.Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return r.EndDate.Time.Before(today)
}

// Status is the display state used by list renderers: expired, live or not_live.
func (r Record) Status(now time.Time) string {
	switch {
	case r.IsExpired(now):
		return "expired"
	case r.Live:
		return "live"
	default:
		return "not_live"
	}
}

// Equal compares two records field by field.
func (r Record) Equal(o Record) bool {
	return r.Title == o.Title &&
		r.ActivityType == o.ActivityType &&
		r.GeoTarget == o.GeoTarget &&
		r.BusinessUnit == o.BusinessUnit &&
		r.Environment == o.Environment &&
		slices.Equal(r.URLs, o.URLs) &&
		r.Live == o.Live &&
		r.EndDate.Equal(o.EndDate)
}

// clone copies r in the shape it will have after a serialize/load cycle: URLs
// are re-split on the separator (a lone empty URL is no URL) and the end date
// is truncated to its calendar day.
func (r Record) clone() Record {
	r.URLs = SplitURLs(JoinURLs(r.URLs))
	if r.EndDate.Valid {
		r.EndDate = DateOf(r.EndDate.Time)
	}
	return r
}

// Date is an optional calendar date.
type Date struct {
	Time  time.Time
	Valid bool
}

// NewDate returns a present date at UTC midnight.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC), Valid: true}
}

// DateOf truncates t to its calendar date.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Equal reports whether both dates are absent or name the same day.
func (d Date) Equal(o Date) bool {
	if !d.Valid || !o.Valid {
		return d.Valid == o.Valid
	}
	return d.Time.Equal(o.Time)
}

// String renders the wire form: YYYY-MM-DD, or the NAN sentinel when absent.
func (d Date) String() string {
	if !d.Valid {
		return dateSentinel
	}
	return d.Time.Format(dateLayout)
}
