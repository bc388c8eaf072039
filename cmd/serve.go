package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mts-studios/targetview/internal/server"
	"github.com/mts-studios/targetview/internal/utils"
	"github.com/mts-studios/targetview/pkg/remote"
	"github.com/mts-studios/targetview/pkg/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the file host that stores target.csv",
	Long: `Run the file host clients download the table from and upload it to.
Every accepted upload rotates the previous file into backups/ (the five newest
are kept) and is recorded, with its per-row changes, in a SQLite journal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		listenAddr, _ := cmd.Flags().GetString("listen")
		if !cmd.Flags().Changed("listen") {
			listenAddr = viper.GetString("serve.listen")
		}
		dir, _ := cmd.Flags().GetString("dir")
		if !cmd.Flags().Changed("dir") {
			dir = viper.GetString("serve.dir")
		}
		dbPath, _ := cmd.Flags().GetString("dbpath")
		if !cmd.Flags().Changed("dbpath") {
			dbPath = viper.GetString("serve.db")
		}

		cfg := server.Config{
			Dir:   dir,
			Token: viper.GetString("serve.token"),
			Release: remote.VersionInfo{
				Version:     viper.GetString("serve.version"),
				DownloadURL: viper.GetString("serve.download_url"),
				SHA256:      viper.GetString("serve.sha256"),
			},
			ClientHeader: viper.GetString("serve.client_header"),
			Log:          utils.Log,
		}
		if cfg.Token == "" {
			utils.Log.Warn("serve.token is empty, the host accepts unauthenticated requests")
		}

		if dbPath != "" {
			db, err := storage.Open(dbPath)
			if err != nil {
				return err
			}
			defer db.Close()
			cfg.DB = db
		}

		srv, err := server.New(cfg)
		if err != nil {
			return err
		}
		return srv.Start(listenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("listen", ":3000", "HTTP listen address")
	serveCmd.Flags().String("dir", ".", "Directory holding target.csv and backups/")
	serveCmd.Flags().String("dbpath", "", "Path to the SQLite change journal (default: serve.db, empty disables)")
}
