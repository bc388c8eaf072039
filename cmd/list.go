package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mts-studios/targetview/pkg/query"
)

var listCmd = &cobra.Command{
	Use:   "list [facet=value ...]",
	Short: "List the table, optionally filtered",
	Long: `List the table. --search keeps rows whose title, activity, geo target or URLs
contain the term (case-insensitive). Each facet=value argument additionally keeps
only rows with that exact value. Facets: activity_type, live, business_unit.

Example: targetview list --search spring live=True business_unit=Corp`,
	RunE: func(cmd *cobra.Command, args []string) error {
		term, _ := cmd.Flags().GetString("search")
		format, _ := cmd.Flags().GetString("output")
		filter, err := parseFacetArgs(query.FilterState{Term: term}, args)
		if err != nil {
			return err
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		store, err := loadStore(cmd.Context(), client)
		if err != nil {
			return err
		}

		rows := query.ComputeVisible(store.Snapshot(), filter)
		if format != "" && format != "table" {
			return writeRows(os.Stdout, format, rows, time.Now())
		}
		if len(rows) == 0 {
			fmt.Println("No matching rows.")
			return nil
		}
		printRows(os.Stdout, rows, time.Now())
		if !filter.IsEmpty() {
			fmt.Printf("\n%d of %d rows\n", len(rows), store.Len())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringP("search", "s", "", "Free-text search term")
	listCmd.Flags().StringP("output", "o", "table", "Output format: table, yaml or csv")
}
