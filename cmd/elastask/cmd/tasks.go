package cmd

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/elastask/internal/core"
	"github.com/hugo-lorenzo-mato/elastask/internal/dispatcher"
)

var tasksLimit int

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Show the fetched tasks and what the next cycle would do with them",
	Long: `Fetch one page of task documents and classify them the way a polling
cycle does, without claiming anything. Each task is listed with the node it
would be sent to, or why it would be left alone.`,
	RunE: runTasks,
}

func init() {
	tasksCmd.Flags().IntVarP(&tasksLimit, "limit", "n", 0,
		"number of documents to fetch (default: elasticsearch.page_size)")
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, _ []string) error {
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

	size := cfg.Elasticsearch.PageSize
	if tasksLimit > 0 {
		size = tasksLimit
	}
	docs, err := deps.store.Search(cmd.Context(), size)
	if err != nil {
		return fmt.Errorf("fetching tasks: %w", err)
	}

	plan := dispatcher.Plan(docs, deps.registry.Nodes(), cfg.KibanaCapacity, cfg.Scheduler.MaxAttempts, time.Now().UTC())
	return printPlan(cmd.OutOrStdout(), plan, deps.registry)
}

// taskRow is one listed task.
type taskRow struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Attempts int    `json:"attempts"`
	Owner    string `json:"owner,omitempty"`
	Due      string `json:"due,omitempty"`
	Decision string `json:"decision"`
	Node     string `json:"node,omitempty"`
	Error    string `json:"error,omitempty"`
}

// planRows flattens a plan into display rows, parsed tasks first in fetch
// order, then the documents that could not be read.
func planRows(plan *dispatcher.CyclePlan, registry *core.Registry) []taskRow {
	rows := make([]taskRow, 0, len(plan.Entries)+len(plan.Unparsed))
	for _, e := range plan.Entries {
		t := e.Task
		row := taskRow{
			ID:       t.ID,
			Type:     t.TaskType,
			Status:   string(t.Status),
			Attempts: e.Attempts,
			Decision: decision(e),
		}
		if owner, ok := t.Owner(); ok && owner != "" {
			row.Owner = owner
			if n, ok := registry.Lookup(owner); ok {
				row.Owner = n.Address
			}
		}
		if due := dueAt(t); due != nil {
			row.Due = due.UTC().Format(time.RFC3339)
		}
		if e.Node != nil {
			row.Node = e.Node.Address
		}
		rows = append(rows, row)
	}
	for _, u := range plan.Unparsed {
		rows = append(rows, taskRow{ID: u.ID, Decision: "skip", Error: u.Err.Error()})
	}
	return rows
}

func decision(e dispatcher.Entry) string {
	switch {
	case e.Node != nil:
		return e.Operation.String()
	case e.Operation == core.OpFail:
		return "fail"
	case e.NoCapacity():
		return e.Operation.String() + " (no capacity)"
	default:
		return "wait"
	}
}

// dueAt is the timestamp readiness is judged on for the task's status.
func dueAt(t *core.Task) *time.Time {
	if t.Status == core.TaskStatusIdle {
		return t.RunAt
	}
	return t.RetryAt
}

func printPlan(out io.Writer, plan *dispatcher.CyclePlan, registry *core.Registry) error {
	rows := planRows(plan, registry)
	claims, failOuts, noCapacity, idle := plan.Counts()

	p := newPrinter(out)
	if p.JSON() {
		return p.Encode(rows)
	}

	if len(rows) == 0 {
		p.Muted("No task documents found.")
		return nil
	}

	cells := make([][]string, 0, len(rows))
	for _, r := range rows {
		target := r.Node
		if r.Error != "" {
			target = r.Error
		}
		cells = append(cells, []string{
			r.ID, r.Type, r.Status, strconv.Itoa(r.Attempts), r.Owner, r.Due, r.Decision, target,
		})
	}
	p.Table([]string{"ID", "TYPE", "STATUS", "ATTEMPTS", "OWNER", "DUE", "NEXT", "NODE"}, cells)
	p.Line("")
	p.Line("%d to claim, %d to fail out, %d without capacity, %d waiting, %d unreadable",
		claims, failOuts, noCapacity, idle, len(plan.Unparsed))
	return nil
}
