package main

import (
	"context"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type statusResponse struct {
	Running   bool       `json:"running"`
	State     string     `json:"state"`
	Pid       int        `json:"pid,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Command   []string   `json:"command"`
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show gNB status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var resp statusResponse
			if err := c.do(ctx, http.MethodGet, "/gnb/status", nil, &resp); err != nil {
				return err
			}
			printStatusTable(cmd.OutOrStdout(), resp)
			return nil
		},
	}
	return cmd
}
