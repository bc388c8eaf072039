package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the running version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("targetview " + Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
