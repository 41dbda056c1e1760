package cli

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/healthcheck"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func newHealthCmd(opts *options) *cobra.Command {
	var (
		addr    string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the gRPC health service of a running server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = net.JoinHostPort("localhost", opts.cfg.GRPCPort)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := healthcheck.Check(ctx, addr, healthcheck.ServiceName)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", addr, status)
			if status != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("server is %s", status)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "gRPC address (default localhost:$GRPC_PORT)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Probe timeout")
	return cmd
}
