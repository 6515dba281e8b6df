package commands

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nmsu-cs/bbfs/internal/cliout"
)

var statusCmd = &cobra.Command{
	Use:   "status <host1:port1> [host2:port2 ...]",
	Short: "Check reachability of storage node endpoints",
	Long: `status dials each given storage node endpoint with a short timeout
and reports whether it is reachable, without mounting anything. It does
not exercise the wire protocol beyond a bare TCP connect.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runStatus,
}

type endpointRow struct {
	index   int
	addr    string
	reached bool
	elapsed time.Duration
	err     error
}

func (endpointRow) Headers() []string { return []string{"NODE", "ENDPOINT", "STATUS", "LATENCY"} }

func statusRows(rows []endpointRow) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		status := "reachable"
		if !r.reached {
			status = fmt.Sprintf("unreachable (%v)", r.err)
		}
		out = append(out, []string{
			fmt.Sprintf("%d", r.index),
			r.addr,
			status,
			r.elapsed.Round(time.Millisecond).String(),
		})
	}
	return out
}

type rowSet []endpointRow

func (s rowSet) Headers() []string { return endpointRow{}.Headers() }
func (s rowSet) Rows() [][]string  { return statusRows(s) }

func runStatus(cmd *cobra.Command, args []string) error {
	rows := make(rowSet, 0, len(args))
	unreachable := 0
	for i, addr := range args {
		start := time.Now()
		conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
		row := endpointRow{index: i, addr: addr, elapsed: time.Since(start)}
		if err != nil {
			row.err = err
			unreachable++
		} else {
			row.reached = true
			conn.Close()
		}
		rows = append(rows, row)
	}

	cliout.Print(os.Stdout, rows)

	if unreachable > 0 {
		return fmt.Errorf("bbfs: %d of %d endpoints unreachable", unreachable, len(args))
	}
	return nil
}
