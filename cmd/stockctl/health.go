package main

import (
	"errors"
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var healthFlags = map[string]cobraflags.Flag{
	tenantFlag: &cobraflags.StringFlag{
		Name:  tenantFlag,
		Value: "",
		Usage: "Ping this tenant's database pool",
	},
	addrFlag: &cobraflags.StringFlag{
		Name:  addrFlag,
		Value: "",
		Usage: "Query the gRPC health service of a running instance",
	},
}

func newHealthCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check a tenant database or a running service",
		RunE:  healthCommand,
	}
	cobraflags.RegisterMap(cmd, healthFlags)
	return cmd
}

func healthCommand(cmd *cobra.Command, _ []string) error {
	tenantID := healthFlags[tenantFlag].GetString()
	addr := healthFlags[addrFlag].GetString()
	if tenantID == "" && addr == "" {
		return errors.New("one of --tenant or --addr is required")
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if addr != "" {
		conn, err := dialService(addr)
		if err != nil {
			return err
		}
		defer conn.Close()

		res, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		if err != nil {
			return fmt.Errorf("health %s: %w", addr, err)
		}
		fmt.Fprintf(out, "service %s: %s\n", addr, res.GetStatus())
	}

	if tenantID != "" {
		rt, err := openRuntime(ctx)
		if err != nil {
			return err
		}
		defer rt.Close()

		if _, err := rt.router.HealthCheck(ctx, tenantID); err != nil {
			if st, ok, _ := rt.router.Progress(ctx, tenantID); ok {
				fmt.Fprintf(out, "tenant %s: %s after %d attempts: %s\n", tenantID, st.Phase, st.Attempts, st.Error)
			}
			return fmt.Errorf("tenant %s: %w", tenantID, err)
		}
		fmt.Fprintf(out, "tenant %s: healthy\n", tenantID)
	}
	return nil
}
