package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/elastask/internal/web"
)

var statusAddr string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the state of a running dispatcher",
	Long: `Query the status API of a running 'elastask run' and print its settings,
counters, last cycle and per-node ownership. The address defaults to
server.host and server.port from the configuration.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusAddr, "addr", "",
		"status API host:port (default: from config)")
	rootCmd.AddCommand(statusCmd)
}

// statusResult is the JSON form of the status report.
type statusResult struct {
	Status web.StatusResponse `json:"status"`
	Nodes  []web.NodeView     `json:"nodes"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	addr := statusAddr
	if addr == "" {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}
		addr = cfg.ServerAddr()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	result, err := fetchStatus(ctx, http.DefaultClient, "http://"+addr)
	if err != nil {
		return err
	}
	return printStatus(cmd.OutOrStdout(), result)
}

func fetchStatus(ctx context.Context, hc *http.Client, base string) (statusResult, error) {
	var result statusResult
	if err := getJSON(ctx, hc, base+"/api/v1/status", &result.Status); err != nil {
		return result, err
	}
	if err := getJSON(ctx, hc, base+"/api/v1/nodes", &result.Nodes); err != nil {
		return result, err
	}
	return result, nil
}

func getJSON(ctx context.Context, hc *http.Client, target string, v interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("contacting dispatcher (is 'elastask run' serving with server.enabled?): %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: %s", target, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", target, err)
	}
	return nil
}

func printStatus(out io.Writer, r statusResult) error {
	p := newPrinter(out)
	if p.JSON() {
		return p.Encode(r)
	}

	s := r.Status
	p.Title("Dispatcher")
	p.Line("up %s, capacity %d per node, polling every %s, max attempts %d",
		s.Uptime, s.Config.Capacity, s.Config.PollingInterval, s.Config.MaxAttempts)
	if c := s.LastCycle; c != nil {
		line := fmt.Sprintf("last cycle %d at %s: %d fetched, %d claims, %d fail-outs, %d without capacity",
			c.Cycle, c.StartedAt.Format(time.RFC3339), c.Fetched, c.Claims, c.FailOuts, c.NoCapacity)
		if c.Error != "" {
			line += ", error: " + c.Error
		}
		p.Line("%s", line)
	} else {
		p.Muted("no cycle completed yet")
	}

	p.Line("")
	p.Title("Nodes")
	rows := make([][]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		rows = append(rows, []string{shortID(n.ID), n.Address, strconv.Itoa(n.Owned), strconv.Itoa(n.Remaining)})
	}
	p.Table([]string{"ID", "ADDRESS", "OWNED", "FREE"}, rows)

	st := s.Stats
	p.Line("")
	p.Title("Totals")
	p.Table([]string{"CYCLES", "CLAIMED", "DISPATCHED", "FAILED OUT", "ERRORS"}, [][]string{{
		strconv.FormatUint(st.Cycles, 10),
		strconv.FormatInt(st.Claimed, 10),
		strconv.FormatInt(st.Dispatched, 10),
		strconv.FormatInt(st.FailedOut, 10),
		strconv.FormatInt(st.CycleErrors+st.ClaimFailures+st.DispatchErrors+st.RunFailures+st.FailFailures, 10),
	}})
	return nil
}
