package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mts-studios/targetview/pkg/storage"
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Show recent record changes from the file host journal (default 50)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		dbPath, _ := cmd.Flags().GetString("dbpath")
		limit, _ := cmd.Flags().GetInt("limit")
		title, _ := cmd.Flags().GetString("title")
		since, _ := cmd.Flags().GetString("since")
		changeType, _ := cmd.Flags().GetString("type")
		uploads, _ := cmd.Flags().GetBool("uploads")
		if dbPath == "" {
			dbPath = viper.GetString("serve.db")
		}
		if _, err := os.Stat(dbPath); err != nil {
			return fmt.Errorf("database not found: %s", dbPath)
		}
		db, err := storage.Open(dbPath)
		if err != nil {
			return err
		}
		defer db.Close()

		ctx := cmd.Context()
		if uploads {
			list, err := db.ListUploads(ctx, limit)
			if err != nil {
				return err
			}
			for _, u := range list {
				ts := u.ReceivedAt.Format("2006-01-02 15:04:05")
				fmt.Printf("%s  #%-4d  rows=%-4d  +%d ~%d -%d  %s  %s\n", ts, u.ID, u.Rows, u.Added, u.Updated, u.Removed, orDash(u.Client), orDash(u.Backup))
			}
			return nil
		}

		q := storage.ChangeQuery{Title: title, ChangeType: changeType, Limit: limit}
		if since != "" {
			t, err := time.Parse(time.RFC3339, since)
			if err != nil {
				return fmt.Errorf("invalid --since, want RFC3339: %w", err)
			}
			q.Since = t
		}
		changes, err := db.ListChanges(ctx, q)
		if err != nil {
			return err
		}
		for _, c := range changes {
			ts := c.OccurredAt.Format("2006-01-02 15:04:05")
			fmt.Printf("%s  %-7s  row=%-4d  %s", ts, c.ChangeType, c.RowIndex, c.Title)
			if len(c.Columns) > 0 {
				fmt.Printf("  [%s]", strings.Join(c.Columns, ", "))
			}
			fmt.Println()
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(changesCmd)
	changesCmd.Flags().String("dbpath", "", "Path to SQLite DB file (default: serve.db from the config)")
	changesCmd.Flags().Int("limit", 50, "Number of recent changes to show")
	changesCmd.Flags().String("title", "", "Only changes to records whose title contains this text")
	changesCmd.Flags().String("type", "", "Only changes of this type: added, updated or removed")
	changesCmd.Flags().String("since", "", "Only changes since this RFC3339 timestamp")
	changesCmd.Flags().Bool("uploads", false, "List uploads instead of individual changes")
}
