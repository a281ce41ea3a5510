package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

type actionResponse struct {
	Message string `json:"message"`
	Pid     int    `json:"pid,omitempty"`
}

func newStartCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the gNB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var resp actionResponse
			if err := c.do(ctx, http.MethodPost, "/gnb/start", nil, &resp); err != nil {
				if isStatus(err, http.StatusConflict) {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "gNB is already running.")
					return nil
				}
				return err
			}
			// Print only the pid so scripts can capture it
			fmt.Fprintln(cmd.OutOrStdout(), resp.Pid)
			return nil
		},
	}
	return cmd
}
