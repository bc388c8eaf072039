package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mts-studios/targetview/pkg/query"
	"github.com/mts-studios/targetview/pkg/stats"
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Prints statistics about the records in the table.",
	Long:  "Prints row counts by status and facet, and target URLs grouped by root domain.",
	RunE: func(cmd *cobra.Command, args []string) error {
		top, _ := cmd.Flags().GetInt("top")

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		store, err := loadStore(cmd.Context(), client)
		if err != nil {
			return err
		}
		if store.Len() == 0 {
			fmt.Println("The table is empty.")
			return nil
		}

		s := stats.Summarize(store.Snapshot(), time.Now())

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "STATUS\tROWS\t")
		fmt.Fprintf(w, "live\t%d\t\n", s.Live)
		fmt.Fprintf(w, "expired\t%d\t\n", s.Expired)
		fmt.Fprintf(w, "not live\t%d\t\n", s.NotLive)
		fmt.Fprintln(w, " \t \t")
		fmt.Fprintf(w, "TOTAL\t%d\t\n", s.Rows)
		w.Flush()

		for _, f := range query.Facets {
			fmt.Println()
			w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
			fmt.Fprintf(w, "%s\tROWS\t\n", f)
			for _, c := range s.Facets[f] {
				fmt.Fprintf(w, "%s\t%d\t\n", orDash(c.Label), c.N)
			}
			w.Flush()
		}

		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "ROOT DOMAIN\tURLS\t")
		for i, c := range s.Domains {
			if top > 0 && i == top {
				fmt.Fprintf(w, "(%d more)\t \t\n", len(s.Domains)-top)
				break
			}
			fmt.Fprintf(w, "%s\t%d\t\n", c.Label, c.N)
		}
		if s.Unparsed > 0 {
			fmt.Fprintf(w, "unparsed\t%d\t\n", s.Unparsed)
		}
		fmt.Fprintln(w, " \t \t")
		fmt.Fprintf(w, "DISTINCT URLS\t%d\t\n", s.URLs)
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().Int("top", 15, "Number of root domains to print (0 for all)")
}
