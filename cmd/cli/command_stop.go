package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

func newStopCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the gNB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var resp actionResponse
			if err := c.do(ctx, http.MethodPost, "/gnb/stop", nil, &resp); err != nil {
				if isStatus(err, http.StatusConflict) {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "gNB is not running.")
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (pid %d)\n", resp.Message, resp.Pid)
			return nil
		},
	}
	return cmd
}
