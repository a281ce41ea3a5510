package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func newHealthCmd() *cobra.Command {
	var addr, service string
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Query the gRPC health endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := dialHealth(addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultHealthTimeout)
			defer cancel()

			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			if err != nil {
				switch status.Code(err) {
				case codes.NotFound:
					return fmt.Errorf("unknown health service %q", service)
				case codes.PermissionDenied:
					return fmt.Errorf("permission denied: %s", status.Convert(err).Message())
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "grpc-address", "", "health endpoint address (env "+healthAddressEnv+", default "+defaultHealthAddress+")")
	cmd.Flags().StringVarP(&service, "service", "s", "", "service to check: gnb, capture or empty for overall")
	return cmd
}
