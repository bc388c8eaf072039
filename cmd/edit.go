package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mts-studios/targetview/internal/utils"
	"github.com/mts-studios/targetview/pkg/edit"
)

var editCmd = &cobra.Command{
	Use:   "edit <row>",
	Short: "Change fields of one row and upload the table",
	Long: `Change fields of one row and upload the table. Only the fields given as
flags change; the rest keep their current values.

Example: targetview edit 3 --live False --end_date NAN`,
	Args: cobra.ExactArgs(1),
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

		session := edit.NewSession(store)
		draft, err := session.BeginEdit(i)
		if err != nil {
			return err
		}
		changed, err := applyDraftFlags(cmd, &draft)
		if err != nil {
			return err
		}
		if changed == 0 {
			return errors.New("nothing to change, pass at least one field flag")
		}
		if err := session.CommitEdit(draft, i); err != nil {
			return err
		}

		if err := pushAndWait(cmd.Context(), client, store); err != nil {
			return err
		}
		utils.Log.Infof("Updated row %d", i)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(editCmd)
	addDraftFlags(editCmd)
}
