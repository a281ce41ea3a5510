package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oai-testbed/testbed-monitor/pkg/lib/capture"
	"github.com/spf13/cobra"
)

type captureResponse struct {
	Message   string `json:"message"`
	Interface string `json:"interface,omitempty"`
	File      string `json:"file"`
}

func newCaptureCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record traffic to a pcap file on the monitor host",
	}
	cmd.AddCommand(newCaptureStartCmd(opts), newCaptureStopCmd(opts), newCaptureStatusCmd(opts))
	return cmd
}

func newCaptureStartCmd(opts *rootOptions) *cobra.Command {
	var iface string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			query := url.Values{}
			if iface != "" {
				query.Set("interface", iface)
			}
			var resp captureResponse
			if err := c.do(ctx, http.MethodPost, "/capture/start", query, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s on %s: %s\n", resp.Message, resp.Interface, resp.File)
			return nil
		},
	}
	cmd.Flags().StringVarP(&iface, "interface", "i", "", "interface to capture on (server default when empty)")
	return cmd
}

func newCaptureStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the active capture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var resp captureResponse
			if err := c.do(ctx, http.MethodPost, "/capture/stop", nil, &resp); err != nil {
				if isStatus(err, http.StatusConflict) {
					_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "No capture is running.")
					return nil
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Message, resp.File)
			return nil
		},
	}
}

func newCaptureStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show capture status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var st capture.Status
			if err := c.do(ctx, http.MethodGet, "/capture/status", nil, &st); err != nil {
				return err
			}
			if !st.Capturing {
				fmt.Fprintln(cmd.OutOrStdout(), "idle")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "capturing on %s: %s\n", st.Interface, st.File)
			return nil
		},
	}
}
