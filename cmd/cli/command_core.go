package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/oai-testbed/testbed-monitor/pkg/lib/compose"
	"github.com/spf13/cobra"
)

func newCoreCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "core",
		Short: "Manage the 5G core network",
	}
	cmd.AddCommand(
		newCoreActionCmd(opts, "start", "Bring the core network up"),
		newCoreActionCmd(opts, "stop", "Tear the core network down"),
		newCoreActionCmd(opts, "restart", "Restart the core network"),
		newCoreServicesCmd(opts),
		newCoreStatusCmd(opts),
	)
	return cmd
}

func newCoreActionCmd(opts *rootOptions, action, short string) *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var resp compose.Result
			if err := c.do(ctx, http.MethodPost, "/core/"+action, nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, resp.Message)
			if verbose {
				fmt.Fprint(out, resp.Stdout)
				fmt.Fprint(cmd.ErrOrStderr(), resp.Stderr)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print compose output")
	return cmd
}

func newCoreServicesCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "services",
		Short: "List monitored core services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var resp struct {
				Services []string `json:"services"`
			}
			if err := c.do(ctx, http.MethodGet, "/core/services", nil, &resp); err != nil {
				return err
			}
			for _, s := range resp.Services {
				fmt.Fprintln(cmd.OutOrStdout(), s)
			}
			return nil
		},
	}
}

func newCoreStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <service>",
		Short: "Show a core service's container status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			var resp struct {
				Status string `json:"status"`
			}
			if err := c.do(ctx, http.MethodGet, "/core/"+url.PathEscape(args[0])+"/status", nil, &resp); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], resp.Status)
			return nil
		},
	}
}
