package main

import (
	"fmt"
	"net/url"

	"github.com/coder/websocket/wsjson"
	"github.com/oai-testbed/testbed-monitor/pkg/lib/packets"
	"github.com/spf13/cobra"
)

func newPacketsCmd(opts *rootOptions) *cobra.Command {
	var iface, filter string
	cmd := &cobra.Command{
		Use:   "packets",
		Short: "Watch decoded packets live",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			query := url.Values{}
			if iface != "" {
				query.Set("interface", iface)
			}
			if filter != "" {
				query.Set("filter", filter)
			}
			conn, err := c.dialStream(ctx, "/ws/packets", query)
			if err != nil {
				return err
			}
			defer conn.CloseNow()

			out := cmd.OutOrStdout()
			for {
				var rec packets.Record
				if err := wsjson.Read(ctx, conn, &rec); err != nil {
					return streamEnd(err)
				}
				fmt.Fprintln(out, formatPacket(rec))
			}
		},
	}
	cmd.Flags().StringVarP(&iface, "interface", "i", "", "interface to watch (server default when empty)")
	cmd.Flags().StringVarP(&filter, "filter", "f", "", "BPF capture filter")
	return cmd
}

func newMetricsCmd(opts *rootOptions) *cobra.Command {
	var ueID, metric string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Watch new samples of one UE metric",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}

			query := url.Values{}
			query.Set("ue_id", ueID)
			query.Set("metric_name", metric)
			conn, err := c.dialStream(ctx, "/ws/metrics", query)
			if err != nil {
				return err
			}
			defer conn.CloseNow()

			out := cmd.OutOrStdout()
			for {
				var f metricFrame
				if err := wsjson.Read(ctx, conn, &f); err != nil {
					return streamEnd(err)
				}
				fmt.Fprintln(out, formatMetric(f))
			}
		},
	}
	cmd.Flags().StringVar(&ueID, "ue-id", "", "UE identifier")
	cmd.Flags().StringVar(&metric, "metric", "", "metric name")
	_ = cmd.MarkFlagRequired("ue-id")
	_ = cmd.MarkFlagRequired("metric")
	return cmd
}
