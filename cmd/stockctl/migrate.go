package main

import (
	"fmt"

	"github.com/fekuna/omnipos-stock-service/internal/database"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

var migrateFlags = map[string]cobraflags.Flag{
	tenantFlag: &cobraflags.StringFlag{
		Name:  tenantFlag,
		Value: "",
		Usage: "Tenant whose database receives the schema",
	},
}

var printSchema bool

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the stock schema to a tenant database",
		Long: `Apply the embedded stock schema to one tenant database. Every statement
is idempotent, so re-running against a migrated tenant is safe.`,
		RunE: migrateCommand,
	}
	cobraflags.RegisterMap(cmd, migrateFlags)
	cmd.Flags().BoolVar(&printSchema, "print", false, "Print the schema instead of applying it")
	return cmd
}

func migrateCommand(cmd *cobra.Command, _ []string) error {
	if printSchema {
		fmt.Fprint(cmd.OutOrStdout(), database.TenantSchema())
		return nil
	}

	tenantID := migrateFlags[tenantFlag].GetString()
	if tenantID == "" {
		return fmt.Errorf("--%s is required", tenantFlag)
	}
	ctx := cmd.Context()

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	db, err := rt.router.Resolve(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("resolve tenant %s: %w", tenantID, err)
	}
	if err := database.MigrateTenant(ctx, db); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "tenant %s: schema applied\n", tenantID)
	return nil
}
