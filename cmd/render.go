package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mts-studios/targetview/pkg/query"
	"github.com/mts-studios/targetview/pkg/table"
)

// recordView is the yaml rendering of one row.
type recordView struct {
	Row          int      `yaml:"row"`
	Title        string   `yaml:"title"`
	Activity     string   `yaml:"activity"`
	GeoTarget    bool     `yaml:"geo_target"`
	BusinessUnit string   `yaml:"business_unit,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
	URLs         []string `yaml:"urls,omitempty"`
	Live         bool     `yaml:"live"`
	EndDate      string   `yaml:"end_date,omitempty"`
	Status       string   `yaml:"status"`
}

func viewOf(r query.Row, now time.Time) recordView {
	v := recordView{
		Row:          r.Index,
		Title:        r.Record.Title,
		Activity:     string(r.Record.ActivityType),
		GeoTarget:    r.Record.GeoTarget,
		BusinessUnit: string(r.Record.BusinessUnit),
		Environment:  string(r.Record.Environment),
		URLs:         r.Record.URLs,
		Live:         r.Record.Live,
		Status:       r.Record.Status(now),
	}
	if r.Record.EndDate.Valid {
		v.EndDate = r.Record.EndDate.String()
	}
	return v
}

// writeRows renders rows in the requested format: table, yaml or csv. The csv
// form is the wire format, so its output can be loaded again.
func writeRows(out io.Writer, format string, rows []query.Row, now time.Time) error {
	switch strings.ToLower(format) {
	case "", "table":
		printRows(out, rows, now)
		return nil
	case "yaml", "yml":
		views := make([]recordView, len(rows))
		for i, r := range rows {
			views[i] = viewOf(r, now)
		}
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(views); err != nil {
			return err
		}
		return enc.Close()
	case "csv":
		recs := make([]table.Record, len(rows))
		for i, r := range rows {
			recs[i] = r.Record
		}
		data, err := table.New(recs...).Serialize()
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	}
	return fmt.Errorf("unknown output format %q (table, yaml, csv)", format)
}

// printRows writes the visible rows as an aligned table. Row numbers are
// source indices so they can be passed to show and edit.
func printRows(out io.Writer, rows []query.Row, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tTITLE\tACTIVITY\tGEO\tLIVE\tEND DATE\tSTATUS\tURLS\t")
	for _, r := range rows {
		rec := r.Record
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
			r.Index,
			rec.Title,
			rec.ActivityType,
			table.FormatBool(rec.GeoTarget),
			table.FormatBool(rec.Live),
			rec.EndDate,
			rec.Status(now),
			summarizeURLs(rec.URLs),
		)
	}
	w.Flush()
}

func summarizeURLs(urls []string) string {
	switch len(urls) {
	case 0:
		return "-"
	case 1:
		return urls[0]
	default:
		return fmt.Sprintf("%s (+%d)", urls[0], len(urls)-1)
	}
}

// printRecord writes every field of rec, one per line.
func printRecord(out io.Writer, index int, rec table.Record, now time.Time) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "row\t%d\n", index)
	fmt.Fprintf(w, "title\t%s\n", rec.Title)
	fmt.Fprintf(w, "activity\t%s\n", rec.ActivityType)
	fmt.Fprintf(w, "geo_target\t%s\n", table.FormatBool(rec.GeoTarget))
	fmt.Fprintf(w, "business_unit\t%s\n", orDash(string(rec.BusinessUnit)))
	fmt.Fprintf(w, "environment\t%s\n", orDash(string(rec.Environment)))
	fmt.Fprintf(w, "live\t%s\n", table.FormatBool(rec.Live))
	fmt.Fprintf(w, "end date\t%s\n", rec.EndDate)
	fmt.Fprintf(w, "status\t%s\n", rec.Status(now))
	if len(rec.URLs) == 0 {
		fmt.Fprintf(w, "urls\t-\n")
	}
	for i, u := range rec.URLs {
		label := ""
		if i == 0 {
			label = "urls"
		}
		fmt.Fprintf(w, "%s\t%s\n", label, u)
	}
	w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// parseFacetArgs reads "facet=value" pairs into a filter.
func parseFacetArgs(f query.FilterState, pairs []string) (query.FilterState, error) {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok {
			return f, fmt.Errorf("invalid filter %q, want facet=value", pair)
		}
		facet, err := query.ParseFacet(name)
		if err != nil {
			return f, err
		}
		f = f.With(facet, value)
	}
	return f, nil
}
