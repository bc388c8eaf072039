package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mts-studios/targetview/internal/utils"
	"github.com/mts-studios/targetview/pkg/edit"
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Append a record and upload the table",
	Long: `Append a record and upload the table. Unset fields take the defaults:
activity, not geo targeted, live, no end date.

Example: targetview add --title "Spring Promo" --url "https://a.example.com;https://b.example.com" --end_date 2024-05-01`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("title") {
			return errors.New("--title is required")
		}

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		store, err := loadStore(cmd.Context(), client)
		if err != nil {
			return err
		}

		session := edit.NewSession(store)
		draft := session.BeginAdd()
		if _, err := applyDraftFlags(cmd, &draft); err != nil {
			return err
		}
		i, err := session.CommitAdd(draft)
		if err != nil {
			return err
		}

		if err := pushAndWait(cmd.Context(), client, store); err != nil {
			return err
		}
		utils.Log.Infof("Added row %d", i)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(addCmd)
	addDraftFlags(addCmd)
}
