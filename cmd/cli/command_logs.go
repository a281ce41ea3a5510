package main

import (
	"fmt"

	"github.com/coder/websocket"
	"github.com/spf13/cobra"
)

func newLogsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Follow gNB output until it exits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			c, err := newClient(opts.address)
			if err != nil {
				return err
			}
			conn, err := c.dialStream(ctx, "/ws/gnb/logs", nil)
			if err != nil {
				return err
			}
			defer conn.CloseNow()

			out := cmd.OutOrStdout()
			for {
				_, data, err := conn.Read(ctx)
				if err != nil {
					return streamEnd(err)
				}
				if _, err := fmt.Fprintln(out, string(data)); err != nil {
					return err
				}
			}
		},
	}
	return cmd
}

// streamEnd turns the read error that ends a stream into the command result.
func streamEnd(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure:
		return nil
	case -1:
		return err
	default:
		return fmt.Errorf("stream closed by server: %w", err)
	}
}
