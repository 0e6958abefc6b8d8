package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/elastask/internal/dispatcher"
)

var onceCmd = &cobra.Command{
	Use:   "once",
	Short: "Run a single polling cycle and exit",
	Long: `Fetch the task store once, claim and dispatch what is due, wait for every
claim started by the cycle to finish, then print the cycle report.`,
	RunE: runOnceCmd,
}

func init() {
	rootCmd.AddCommand(onceCmd)
}

func runOnceCmd(cmd *cobra.Command, _ []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	deps, err := buildDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("closing task store", "error", err)
		}
	}()

	d, err := deps.newDispatcher()
	if err != nil {
		return err
	}
	return runOnce(cmd.Context(), d, cmd.OutOrStdout())
}

// onceResult is the JSON form of a single cycle.
type onceResult struct {
	Report dispatcher.CycleReport   `json:"report"`
	Stats  dispatcher.StatsSnapshot `json:"stats"`
}

func runOnce(ctx context.Context, d *dispatcher.Dispatcher, out io.Writer) error {
	report, err := d.RunCycle(ctx)
	d.Wait()
	if err != nil {
		return err
	}

	stats := d.Stats()
	p := newPrinter(out)
	if p.JSON() {
		return p.Encode(onceResult{Report: report, Stats: stats})
	}

	p.Title(fmt.Sprintf("Cycle %d", report.Cycle))
	p.Table([]string{"RESULT", "COUNT"}, [][]string{
		{"fetched", strconv.Itoa(report.Fetched)},
		{"unparsed", strconv.Itoa(report.Unparsed)},
		{"claims", strconv.Itoa(report.Claims)},
		{"fail-outs", strconv.Itoa(report.FailOuts)},
		{"no capacity", strconv.Itoa(report.NoCapacity)},
		{"idle", strconv.Itoa(report.Idle)},
	})

	p.Line("")
	p.Title("Outcome")
	p.Table([]string{"STEP", "OK", "FAILED"}, [][]string{
		{"claim", strconv.FormatInt(stats.Claimed, 10), strconv.FormatInt(stats.ClaimFailures+stats.ClaimConflicts, 10)},
		{"run now", strconv.FormatInt(stats.Dispatched, 10), strconv.FormatInt(stats.DispatchErrors, 10)},
		{"mark running", strconv.FormatInt(stats.MarkedRunning, 10), strconv.FormatInt(stats.RunFailures, 10)},
		{"mark failed", strconv.FormatInt(stats.FailedOut, 10), strconv.FormatInt(stats.FailFailures, 10)},
	})
	if stats.ClaimConflicts > 0 {
		p.Muted("%d claim(s) lost to a concurrent update", stats.ClaimConflicts)
	}
	return nil
}
