package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/mts-studios/targetview/pkg/query"
)

var showCmd = &cobra.Command{
	Use:   "show <row>",
	Short: "Show every field of one row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		store, err := loadStore(cmd.Context(), client)
		if err != nil {
			return err
		}
		i, err := parseIndex(args[0], store)
		if err != nil {
			return err
		}
		rec, err := store.Row(i)
		if err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("output")
		if format != "" && format != "table" {
			return writeRows(os.Stdout, format, []query.Row{{Index: i, Record: rec}}, time.Now())
		}
		printRecord(os.Stdout, i, rec, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.Flags().StringP("output", "o", "table", "Output format: table, yaml or csv")
}
