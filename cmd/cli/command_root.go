package main

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const (
	defaultAddress = "http://localhost:8001"
	addressEnv     = "TBCTL_ADDRESS"
)

type rootOptions struct {
	address string
	timeout time.Duration
}

func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "tbctl",
		Short:         "Testbed monitor CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	address := os.Getenv(addressEnv)
	if strings.TrimSpace(address) == "" {
		address = defaultAddress
	}
	root.PersistentFlags().StringVar(&opts.address, "address", address, "testbed monitor base URL (env "+addressEnv+")")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "timeout for request/response commands")

	root.AddCommand(newStartCmd(opts))
	root.AddCommand(newStatusCmd(opts))
	root.AddCommand(newStopCmd(opts))
	root.AddCommand(newLogsCmd(opts))
	root.AddCommand(newCaptureCmd(opts))
	root.AddCommand(newPacketsCmd(opts))
	root.AddCommand(newMetricsCmd(opts))
	root.AddCommand(newCoreCmd(opts))
	root.AddCommand(newHealthCmd())

	return root
}
