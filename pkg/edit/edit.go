// Package edit drafts new or modified records from text input and commits them
// into a table store.
package edit

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mts-studios/targetview/pkg/table"
)

var (
	// ErrStaleDraft is returned when the table was replaced by a refresh after
	// the draft was opened, so its row index no longer names the same row.
	ErrStaleDraft = errors.New("table was refreshed since the draft was opened")

	// ErrInvalidDate is returned when an end date is enabled but unreadable.
	ErrInvalidDate = errors.New("invalid end date")
)

// Draft holds the text of every field as delivered by input collaborators.
// URLs is newline-separated. EndDate is ignored unless HasEndDate is set.
type Draft struct {
	Title        string
	ActivityType string
	GeoTarget    string
	BusinessUnit string
	Environment  string
	URLs         string
	Live         string
	HasEndDate   bool
	EndDate      string

	// set by BeginEdit
	editing    bool
	index      int
	generation uint64
}

// Index returns the row a draft from BeginEdit was opened on, or -1.
func (d Draft) Index() int {
	if !d.editing {
		return -1
	}
	return d.index
}

// Record coerces the draft into a record. Unrecognized enum text falls back to
// its default (activity, empty business unit/environment) and unrecognized
// boolean text to false. Only an enabled, unreadable end date is an error.
func (d Draft) Record() (table.Record, error) {
	activity, _ := table.ParseActivityType(d.ActivityType)
	bu, _ := table.ParseBusinessUnit(d.BusinessUnit)
	env, _ := table.ParseEnvironment(d.Environment)

	rec := table.Record{
		Title:        d.Title,
		ActivityType: activity,
		GeoTarget:    table.ParseBool(d.GeoTarget),
		BusinessUnit: bu,
		Environment:  env,
		URLs:         splitLines(d.URLs),
		Live:         table.ParseBool(d.Live),
	}

	if d.HasEndDate {
		date, err := table.ParseDate(d.EndDate)
		if err != nil {
			return table.Record{}, fmt.Errorf("%w: %q", ErrInvalidDate, d.EndDate)
		}
		rec.EndDate = date
	}
	return rec, nil
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// FromRecord renders rec as a draft.
func FromRecord(rec table.Record) Draft {
	d := Draft{
		Title:        rec.Title,
		ActivityType: string(rec.ActivityType),
		GeoTarget:    table.FormatBool(rec.GeoTarget),
		BusinessUnit: string(rec.BusinessUnit),
		Environment:  string(rec.Environment),
		URLs:         strings.Join(rec.URLs, "\n"),
		Live:         table.FormatBool(rec.Live),
		HasEndDate:   rec.EndDate.Valid,
	}
	if rec.EndDate.Valid {
		d.EndDate = rec.EndDate.String()
	}
	return d
}

// Session opens and commits drafts against a store.
type Session struct {
	store *table.Store
}

func NewSession(store *table.Store) *Session {
	return &Session{store: store}
}

// BeginAdd returns an empty draft with the default selections.
func (s *Session) BeginAdd() Draft {
	return Draft{
		ActivityType: string(table.ActivityTypeActivity),
		GeoTarget:    table.FormatBool(false),
		Live:         table.FormatBool(true),
	}
}

// BeginEdit returns a draft prefilled from row i.
func (s *Session) BeginEdit(i int) (Draft, error) {
	rec, gen, err := s.store.RowAt(i)
	if err != nil {
		return Draft{}, err
	}
	d := FromRecord(rec)
	d.editing = true
	d.index = i
	d.generation = gen
	return d, nil
}

// CommitAdd appends the draft and returns the new row index.
func (s *Session) CommitAdd(d Draft) (int, error) {
	rec, err := d.Record()
	if err != nil {
		return -1, err
	}
	return s.store.Append(rec), nil
}

// CommitEdit replaces row i with the draft. A draft opened with BeginEdit is
// rejected with ErrStaleDraft if the table has been replaced since.
func (s *Session) CommitEdit(d Draft, i int) error {
	rec, err := d.Record()
	if err != nil {
		return err
	}
	if !d.editing {
		return s.store.Update(i, rec)
	}
	ok, err := s.store.UpdateIf(d.generation, i, rec)
	if err != nil {
		return err
	}
	if !ok {
		return ErrStaleDraft
	}
	return nil
}
