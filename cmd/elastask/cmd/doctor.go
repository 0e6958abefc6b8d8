package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/elastask/internal/config"
	"github.com/hugo-lorenzo-mato/elastask/internal/diagnostics"
)

var doctorTimeout time.Duration

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check connectivity to the task store and the Kibana nodes",
	Long: `Verify that the task store answers with the configured credentials and
that every Kibana node answers its status endpoint. Also reports host
resource usage. Exits non-zero when a check fails.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().DurationVar(&doctorTimeout, "timeout", 10*time.Second,
		"time allowed for each check")
	rootCmd.AddCommand(doctorCmd)
}

// doctorResult is the JSON form of the doctor report.
type doctorResult struct {
	Checks   []diagnostics.Check       `json:"checks"`
	System   diagnostics.SystemMetrics `json:"system"`
	Warnings []diagnostics.Warning     `json:"warnings,omitempty"`
	Healthy  bool                      `json:"healthy"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
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

	checker := diagnostics.NewChecker(deps.store, deps.storeTarget, deps.client, deps.registry.Nodes(), doctorTimeout)
	result := doctorResult{Checks: checker.Run(cmd.Context())}

	diskPath := ""
	if cfg.Store.Backend == config.BackendSQLite {
		diskPath = cfg.Store.SQLitePath
	}
	result.System = diagnostics.NewSystemMetricsCollector(diskPath).Collect()
	result.Warnings = result.System.Warnings(diagnostics.DefaultThresholds())
	result.Healthy = diagnostics.Healthy(result.Checks)

	if err := printDoctor(cmd.OutOrStdout(), result); err != nil {
		return err
	}
	if !result.Healthy {
		return fmt.Errorf("%d check(s) failed", countFailed(result.Checks))
	}
	return nil
}

func printDoctor(out io.Writer, result doctorResult) error {
	p := newPrinter(out)
	if p.JSON() {
		return p.Encode(result)
	}

	p.Title("Connectivity")
	rows := make([][]string, 0, len(result.Checks))
	for _, c := range result.Checks {
		rows = append(rows, []string{
			statusIcon(p, c.Status) + " " + c.Name,
			c.Target,
			c.Latency.Round(time.Millisecond).String(),
			c.Detail,
		})
	}
	p.Table([]string{"CHECK", "TARGET", "LATENCY", "DETAIL"}, rows)

	s := result.System
	p.Line("")
	p.Title("Host")
	p.Table([]string{"RESOURCE", "USAGE"}, [][]string{
		{"cpu", fmt.Sprintf("%.0f%% of %d threads (%s)", s.CPUPercent, s.CPUThreads, s.CPUModel)},
		{"memory", fmt.Sprintf("%.0f / %.0f MB (%.0f%%)", s.MemUsedMB, s.MemTotalMB, s.MemPercent)},
		{"disk", fmt.Sprintf("%.1f / %.1f GB (%.0f%%) at %s", s.DiskUsedGB, s.DiskTotalGB, s.DiskPercent, s.DiskPath)},
		{"load", fmt.Sprintf("%.2f %.2f %.2f", s.LoadAvg1, s.LoadAvg5, s.LoadAvg15)},
	})
	for _, w := range result.Warnings {
		p.Line("%s %s", p.Warn("!"), w.Message)
	}

	p.Line("")
	if result.Healthy {
		p.Line("%s All checks passed", p.Success("✓"))
	} else {
		p.Line("%s Some checks failed", p.Error("✗"))
	}
	return nil
}

func statusIcon(p *printer, s diagnostics.CheckStatus) string {
	switch s {
	case diagnostics.CheckOK:
		return p.Success("✓")
	case diagnostics.CheckWarn:
		return p.Warn("○")
	default:
		return p.Error("✗")
	}
}

func countFailed(checks []diagnostics.Check) int {
	n := 0
	for _, c := range checks {
		if c.Status == diagnostics.CheckFail {
			n++
		}
	}
	return n
}
