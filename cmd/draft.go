package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mts-studios/targetview/pkg/edit"
	"github.com/mts-studios/targetview/pkg/table"
)

// draftFields maps the field names accepted by add/edit flags and the shell's
// "set" command to the draft text they replace.
var draftFields = map[string]func(d *edit.Draft, v string){
	"title":         func(d *edit.Draft, v string) { d.Title = v },
	"activity":      func(d *edit.Draft, v string) { d.ActivityType = v },
	"geo_target":    func(d *edit.Draft, v string) { d.GeoTarget = v },
	"business_unit": func(d *edit.Draft, v string) { d.BusinessUnit = v },
	"environment":   func(d *edit.Draft, v string) { d.Environment = v },
	"live":          func(d *edit.Draft, v string) { d.Live = v },
	"url": func(d *edit.Draft, v string) {
		d.URLs = strings.Join(table.SplitURLs(v), "\n")
	},
	"end_date": func(d *edit.Draft, v string) {
		v = strings.TrimSpace(v)
		if table.IsDateSentinel(v) {
			d.HasEndDate, d.EndDate = false, ""
			return
		}
		d.HasEndDate, d.EndDate = true, v
	},
}

func draftFieldNames() []string {
	names := make([]string, 0, len(draftFields))
	for name := range draftFields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// setDraftField sets one field by name. Accepts the wire column names too
// ("end date", "geo target").
func setDraftField(d *edit.Draft, field, value string) error {
	key := strings.ToLower(strings.TrimSpace(field))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	set, ok := draftFields[key]
	if !ok {
		return fmt.Errorf("unknown field %q (available: %s)", field, strings.Join(draftFieldNames(), ", "))
	}
	set(d, value)
	return nil
}

// addDraftFlags registers one flag per draft field.
func addDraftFlags(cmd *cobra.Command) {
	cmd.Flags().String("title", "", "Record title")
	cmd.Flags().String("activity", "", "Activity type: activity or A/B")
	cmd.Flags().String("geo_target", "", "Geo targeted: True or False")
	cmd.Flags().String("business_unit", "", "Business unit: "+joinValues(table.BusinessUnits))
	cmd.Flags().String("environment", "", "Environment: "+joinValues(table.Environments))
	cmd.Flags().String("url", "", "Target URLs separated by ';'")
	cmd.Flags().String("live", "", "Live: True or False")
	cmd.Flags().String("end_date", "", "End date (YYYY-MM-DD), or NAN for none")
}

// applyDraftFlags copies every flag the user actually set onto d.
func applyDraftFlags(cmd *cobra.Command, d *edit.Draft) (changed int, err error) {
	for _, name := range draftFieldNames() {
		if !cmd.Flags().Changed(name) {
			continue
		}
		v, _ := cmd.Flags().GetString(name)
		if err := setDraftField(d, name, v); err != nil {
			return changed, err
		}
		changed++
	}
	return changed, nil
}

func joinValues[T ~string](values []T) string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return strings.Join(out, ", ")
}
