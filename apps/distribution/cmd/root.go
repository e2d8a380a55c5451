package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/quatton/expodist/apps/distribution/config"
	"github.com/quatton/expodist/pkg/dlog"
)

var (
	configFile string
	logLevel   string
	logFormat  string

	cfg    *config.EnvConfig
	logger *dlog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "expodist",
	Short: "Exposure notification distribution",
	Long: `expodist assembles signed diagnosis key and event warning packages,
publishes them to an object store and removes expired data.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			loaded.LogLevel = logLevel
		}
		if cmd.Flags().Changed("log-format") {
			loaded.LogFormat = logFormat
		}

		level, err := dlog.ParseLevel(loaded.LogLevel)
		if err != nil {
			return err
		}
		cfg = loaded
		logger = dlog.New(dlog.Options{Level: level, Format: loaded.LogFormat})
		cmd.SetContext(dlog.WithContext(cmd.Context(), logger))
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML file overriding the environment")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", dlog.FormatText, "Log format (text, json)")
}
