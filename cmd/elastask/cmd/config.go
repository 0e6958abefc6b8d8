package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/hugo-lorenzo-mato/elastask/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
	Long: `Print the merged configuration (defaults, file, environment and flags)
with passwords masked. Same as 'elastask config show'.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the merged configuration with passwords masked",
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and report every problem",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, _, err := readConfig(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		return validateConfig(cmd.OutOrStdout(), cfg)
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cfg, _, err := readConfig(viper.GetViper(), cfgFile)
	if err != nil {
		return err
	}
	return showConfig(cmd.OutOrStdout(), cfg)
}

func showConfig(out io.Writer, cfg *config.Config) error {
	masked := cfg.Masked()

	p := newPrinter(out)
	if p.JSON() {
		return p.Encode(masked)
	}

	data, err := yaml.Marshal(masked)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if cfg.Source != "" {
		p.Line("# source: %s", cfg.Source)
	} else {
		p.Line("# source: defaults and environment only")
	}
	for _, w := range cfg.Warnings {
		p.Line("# warning: %s", w)
	}
	_, err = out.Write(data)
	return err
}

func validateConfig(out io.Writer, cfg *config.Config) error {
	p := newPrinter(out)
	for _, w := range cfg.Warnings {
		p.Line("%s %s", p.Warn("○"), w)
	}
	if err := config.ValidateConfig(cfg); err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			for _, e := range verrs {
				p.Line("%s %s", p.Error("✗"), e.Error())
			}
			return fmt.Errorf("%d invalid setting(s)", len(verrs))
		}
		return err
	}
	p.Line("%s Configuration is valid", p.Success("✓"))
	return nil
}
