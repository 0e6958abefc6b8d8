package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	logLevel     string
	logFormat    string
	outputFormat string
	noColor      bool
	quiet        bool

	// Version info - set via SetVersion()
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "elastask",
	Short: "Dispatch Kibana task manager tasks across Kibana nodes",
	Long: `elastask polls the Kibana task manager index, claims the tasks that are
due to run or retry, and asks a Kibana node with free capacity to run each of
them immediately. Tasks that ran out of attempts are marked failed.

Start with 'elastask init' to write a configuration file, check connectivity
with 'elastask doctor', then run the dispatcher with 'elastask run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion injects build information.
func SetVersion(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// GetVersion returns the application version string.
func GetVersion() string {
	return appVersion
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ./elastask.yaml, then ~/.config/elastask/elastask.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "auto",
		"log format (auto, text, json)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto",
		"output format of command results (auto, plain, json)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false,
		"disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"only log warnings and errors")

	// Bind flags to viper (errors are nil when flag exists)
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}
