package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/oai-testbed/testbed-monitor/pkg/lib/metrics"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/packets"
)

func printStatusTable(w io.Writer, st statusResponse) {
	pid := ""
	if st.Pid != 0 {
		pid = strconv.Itoa(st.Pid)
	}
	state := st.State
	if st.ExitCode != nil {
		state = fmt.Sprintf("%s (%d)", state, *st.ExitCode)
	}
	cmd := strings.TrimSpace(strings.Join(st.Command, " "))

	pidW := maxInt(7, len(pid))
	stateW := maxInt(7, len(state))
	cmdW := maxInt(7, len(cmd))

	sep := fmt.Sprintf("+-%s-+-%s-+-%s-+\n", strings.Repeat("-", pidW), strings.Repeat("-", stateW), strings.Repeat("-", cmdW))
	fmt.Fprint(w, sep)
	fmt.Fprintf(w, "| %s | %s | %s |\n", pad("PID", pidW), pad("STATE", stateW), pad("COMMAND", cmdW))
	fmt.Fprint(w, sep)
	fmt.Fprintf(w, "| %s | %s | %s |\n", pad(pid, pidW), pad(state, stateW), pad(cmd, cmdW))
	fmt.Fprint(w, sep)
}

func formatPacket(rec packets.Record) string {
	if rec.Error != "" {
		return "error: " + rec.Error
	}
	ts := ""
	if rec.Timestamp != nil {
		ts = rec.Timestamp.Format(time.RFC3339Nano) + " "
	}
	return ts + rec.Summary
}

// metricFrame is a metrics stream frame: a point or an error payload.
type metricFrame struct {
	metrics.Message
	Error string `json:"error"`
}

func formatMetric(f metricFrame) string {
	if f.Error != "" {
		return "error: " + f.Error
	}
	return fmt.Sprintf("%s %s %s=%g", f.Timestamp.Format(time.RFC3339Nano), f.UEID, f.Metric, f.Value)
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
