package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mts-studios/targetview/internal/utils"
	"github.com/mts-studios/targetview/pkg/remote"
	"github.com/mts-studios/targetview/pkg/selfupdate"
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for a newer release and optionally install it",
	Long: `Check the release host for a newer version. With --yes (or update.auto_apply in
the config) the release is downloaded, verified and installed: targetview exits,
a helper replaces the executable and runs "targetview version" from the new
binary. --check only reports, regardless of update.auto_apply.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		checkOnly, _ := cmd.Flags().GetBool("check")
		yes, _ := cmd.Flags().GetBool("yes")
		apply := (yes || viper.GetBool("update.auto_apply")) && !checkOnly

		client, err := newClient(cmd)
		if err != nil {
			return err
		}
		mgr, err := newUpdateManager(client, os.Exit)
		if err != nil {
			return err
		}

		res, err := mgr.Run(cmd.Context(), apply)
		if err != nil {
			return err
		}
		switch {
		case !res.UpdateAvailable && res.LatestVersion == "":
			fmt.Printf("targetview %s (could not reach the release host)\n", Version)
		case !res.UpdateAvailable:
			fmt.Printf("targetview %s is up to date\n", Version)
		case !apply:
			fmt.Printf("targetview %s is available (running %s). Run 'targetview update --yes' to install it.\n", res.LatestVersion, Version)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(updateCmd)
	updateCmd.Flags().Bool("check", false, "Only check, never install")
	updateCmd.Flags().BoolP("yes", "y", false, "Download and install an available update")
}

// newUpdateManager wires the release client into a manager for the running
// executable. After a successful install the new binary prints its version.
// exit ends the process once the helper has been launched.
func newUpdateManager(client *remote.Client, exit func(code int)) (*selfupdate.Manager, error) {
	return selfupdate.NewManager(client, selfupdate.Options{
		CurrentVersion: Version,
		Args:           []string{"version"},
		Helper:         selfupdate.ScriptHelper{Stdout: os.Stdout, Stderr: os.Stderr},
		Exit:           exit,
		Log:            utils.Log,
	})
}
