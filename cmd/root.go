package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mts-studios/targetview/internal/utils"
	"github.com/mts-studios/targetview/pkg/remote"
	"github.com/mts-studios/targetview/pkg/table"
	"github.com/mts-studios/targetview/pkg/upload"
)

// Version is the running release. Overridden at build time with
// -ldflags "-X github.com/mts-studios/targetview/cmd.Version=1.0.5".
var Version = "1.0.4"

var cfgFile string

const (
	LOGO = `  _                       _         _
 | |_ __ _ _ _ __ _ ___ _| |___ __(_)_____ __ __
 |  _/ _' | '_/ _' / -_)  _\ V / | / -_) V  V /
  \__\__,_|_| \__, \___|\__|\_/|_| \___|\_/\_/
              |___/
`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "targetview",
	Short: "View and edit the shared activity targeting table.",
	Long: LOGO + `
targetview keeps the team's activity/target table in sync with the file host:
list and filter records, add or edit them, and push every change back.`,
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		levelString, _ := cmd.Flags().GetString("loglevel")
		return utils.SetLogLevel(levelString)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		utils.Log.Error(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.targetview.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("proxy", "", "", "HTTP Proxy (Useful for debugging. Example: http://127.0.0.1:8080)")
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
}

func setDefaults() {
	viper.SetDefault("remote.data_url", remote.DefaultDataURL)
	viper.SetDefault("remote.upload_url", remote.DefaultUploadURL)
	viper.SetDefault("remote.version_url", remote.DefaultVersionURL)
	viper.SetDefault("remote.token", "")
	viper.SetDefault("remote.client_header", remote.DefaultClientHeader)
	viper.SetDefault("remote.retries", remote.DefaultRetries)
	viper.SetDefault("remote.timeout", remote.DefaultTimeout.String())

	viper.SetDefault("update.interval", time.Hour.String())
	viper.SetDefault("update.auto_apply", false)

	viper.SetDefault("shell.auto_upload", false)

	viper.SetDefault("serve.listen", ":3000")
	viper.SetDefault("serve.dir", ".")
	viper.SetDefault("serve.token", "")
	viper.SetDefault("serve.client_header", remote.DefaultClientHeader)
	viper.SetDefault("serve.db", "targetview-host.sqlite")
	viper.SetDefault("serve.version", "")
	viper.SetDefault("serve.download_url", "")
	viper.SetDefault("serve.sha256", "")
}

// initConfig reads in .env, the config file and ENV variables if set.
func initConfig() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".targetview")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TARGETVIEW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := filepath.Join(home, ".targetview.yaml")
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				utils.Log.Debugf("Could not create config file: %v", err)
			}
		} else {
			utils.Log.Warnf("Could not read config file: %v", err)
		}
	}
}

// remoteConfig freezes the resolved settings into the value every component
// receives.
func remoteConfig(cmd *cobra.Command) remote.Config {
	proxy, _ := cmd.Flags().GetString("proxy")
	return remote.Config{
		DataURL:        viper.GetString("remote.data_url"),
		UploadURL:      viper.GetString("remote.upload_url"),
		VersionURL:     viper.GetString("remote.version_url"),
		Token:          viper.GetString("remote.token"),
		ClientHeader:   viper.GetString("remote.client_header"),
		CurrentVersion: Version,
		Proxy:          proxy,
		Retries:        viper.GetInt("remote.retries"),
		Timeout:        viper.GetDuration("remote.timeout"),
	}.WithDefaults()
}

func newClient(cmd *cobra.Command) (*remote.Client, error) {
	return remote.NewClient(remoteConfig(cmd), utils.Log)
}

// loadStore fetches the dataset into a fresh store.
func loadStore(ctx context.Context, client *remote.Client) (*table.Store, error) {
	store := table.NewStore(table.New(), table.Loader{Log: utils.Log})
	if err := store.Refresh(ctx, client); err != nil {
		return nil, fmt.Errorf("could not load the table: %w", err)
	}
	utils.Log.Debugf("Loaded %d rows", store.Len())
	return store, nil
}

// pushAndWait uploads the current table and waits for the result.
func pushAndWait(ctx context.Context, client *remote.Client, store *table.Store) error {
	p := upload.New(client, utils.Log)
	defer p.Close()

	select {
	case res := <-p.Submit(store.Snapshot()):
		if res.Err != nil {
			return fmt.Errorf("upload failed, local change not saved remotely: %w", res.Err)
		}
		return nil
	case <-ctx.Done():
		p.Abort()
		return ctx.Err()
	}
}

func parseIndex(arg string, store *table.Store) (int, error) {
	i, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return 0, fmt.Errorf("invalid row index %q", arg)
	}
	if i < 0 || i >= store.Len() {
		return 0, fmt.Errorf("row %d does not exist (table has %d rows)", i, store.Len())
	}
	return i, nil
}
