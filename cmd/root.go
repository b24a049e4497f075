package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/ecosort/ecoscan/internal/utils"
	"github.com/ecosort/ecoscan/pkg/stats"
	"github.com/ecosort/ecoscan/pkg/storage"
)

var cfgFile string

const (
	LOGO = `
	 ___  ___ ___  ___  ___ __ _ _ __
	/ _ \/ __/ _ \/ __|/ __/ _' | '_ \
	| __/ (_| (_) |\__ \ (_| (_| | | | |
	\___|\___\___/ |___/\___\__,_|_| |_|

`
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ecoscan",
	Short: "Analyze waste photos and videos, right from your command line.",
	Long: LOGO + `ecoscan sends your waste photos (or a video) to an EcoSort inference
server one at a time, tells you how to sort each item, and keeps your score,
streak, and leaderboard position in sync.`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ecoscan.yaml)")

	// Global flags
	rootCmd.PersistentFlags().StringP("loglevel", "l", "info", "Set log level. Available: debug, info, warn, error, fatal")
	rootCmd.PersistentFlags().String("dbpath", "", "Path to the local stats database (default: ~/.config/ecoscan/ecoscan.sqlite)")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := homedir.Dir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.SetConfigName(".ecoscan")
		viper.SetConfigType("yaml")
	}

	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; create it with defaults.
			home, _ := homedir.Dir()
			configPath := home + "/.ecoscan.yaml"
			if err := viper.SafeWriteConfigAs(configPath); err != nil {
				fmt.Printf("Error creating config file: %s", err)
			}
		}
	}

	// Set default empty values for all keys
	viper.SetDefault("api.base_url", "http://localhost:8000")
	viper.SetDefault("api.timeout_seconds", 120)
	viper.SetDefault("db.path", "")
	viper.SetDefault("analyze.rate_limit_rps", 0.0)

	// Init log library
	levelString, _ := rootCmd.PersistentFlags().GetString("loglevel")
	utils.SetLogLevel(levelString)
}

func apiBaseURL() string {
	return viper.GetString("api.base_url")
}

func apiTimeout() time.Duration {
	secs := viper.GetInt("api.timeout_seconds")
	if secs <= 0 {
		secs = 120
	}
	return time.Duration(secs) * time.Second
}

// openState opens the local database, takes the cross-process lock, and
// rehydrates the stats store from the durable record. The returned cleanup
// releases both.
func openState(cmd *cobra.Command) (*storage.DB, *stats.Store, func(), error) {
	dbPath, _ := cmd.Flags().GetString("dbpath")
	if dbPath == "" {
		dbPath = viper.GetString("db.path")
	}
	absPath, err := utils.GetAbsDBPath(dbPath)
	if err != nil {
		return nil, nil, nil, err
	}

	lock, err := utils.NewDBLock(absPath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := lock.Lock(); err != nil {
		return nil, nil, nil, err
	}

	db, err := storage.Open(absPath)
	if err != nil {
		_ = lock.Unlock()
		return nil, nil, nil, err
	}

	store := stats.NewStore(db, utils.Log)
	snap, err := db.LoadSnapshot()
	if err != nil {
		// Corrupt durable record: start from the default snapshot.
		utils.Log.Warnf("Could not rehydrate local stats, starting fresh: %v", err)
	}
	store.Rehydrate(snap)

	cleanup := func() {
		_ = db.Close()
		_ = lock.Unlock()
	}
	return db, store, cleanup, nil
}
