package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/elastask/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long: `Write a commented configuration file with every setting at its default.
The file is written to ./elastask.yaml unless a path is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "overwrite an existing file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	path := config.FileName
	if len(args) > 0 {
		path = args[0]
	}

	if err := config.WriteDefaultConfig(path, initForce); err != nil {
		if errors.Is(err, config.ErrConfigExists) {
			return fmt.Errorf("%w (use --force to overwrite)", err)
		}
		return err
	}

	p := newPrinter(cmd.OutOrStdout())
	p.Line("%s Wrote %s", p.Success("✓"), path)
	if !quiet {
		p.Muted("Set the elasticsearch and kibana credentials, then run 'elastask doctor'.")
	}
	return nil
}
