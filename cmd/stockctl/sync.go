package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	invH "github.com/fekuna/omnipos-stock-service/internal/inventory/handler"
	invUCPkg "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/structrpc"
	"github.com/fekuna/omnipos-stock-service/internal/storage/postgres"
	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"
)

const (
	tenantFlag = "tenant"
	storeFlag  = "store"
	addrFlag   = "addr"
)

var syncFlags = map[string]cobraflags.Flag{
	tenantFlag: &cobraflags.StringFlag{
		Name:  tenantFlag,
		Value: "",
		Usage: "Tenant id (required)",
	},
	storeFlag: &cobraflags.StringFlag{
		Name:  storeFlag,
		Value: "",
		Usage: "Store to reconcile (required)",
	},
	addrFlag: &cobraflags.StringFlag{
		Name:  addrFlag,
		Value: "",
		Usage: "Ask a running service at this address instead of opening the tenant database",
	},
}

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile a store's ledger against its stock counters",
		Long: `Reconcile every product of a store so that its ledger rows, in base
units, match the primary stock counter. Running it twice changes nothing the
second time.`,
		RunE: syncCommand,
	}
	cobraflags.RegisterMap(cmd, syncFlags)
	return cmd
}

func syncCommand(cmd *cobra.Command, _ []string) error {
	tenantID := syncFlags[tenantFlag].GetString()
	storeID := syncFlags[storeFlag].GetString()
	if tenantID == "" || storeID == "" {
		return errors.New("--tenant and --store are required")
	}
	ctx := cmd.Context()

	if addr := syncFlags[addrFlag].GetString(); addr != "" {
		return remoteSync(ctx, cmd.OutOrStdout(), addr, tenantID, storeID)
	}

	rt, err := openRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	ledger := invUCPkg.NewLedger(postgres.NewProvider(rt.router, rt.cfg.Stock.TxTimeout()), rt.logger)
	report, err := ledger.Sync(ctx, tenantID, storeID)
	if err != nil {
		return fmt.Errorf("sync %s/%s: %w", tenantID, storeID, err)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func remoteSync(ctx context.Context, out io.Writer, addr, tenantID, storeID string) error {
	conn, err := dialService(addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	res, err := structrpc.Invoke(tenantContext(ctx, tenantID, storeID), conn, invH.ServiceName, "SyncStore",
		map[string]interface{}{"store_id": storeID})
	if err != nil {
		return fmt.Errorf("sync %s/%s: %w", tenantID, storeID, err)
	}

	report, err := invH.SyncReportFromStruct(res)
	if err != nil {
		return fmt.Errorf("decode sync report: %w", err)
	}
	printReport(out, report)
	return nil
}

func printReport(out io.Writer, r *inventory.SyncReport) {
	fmt.Fprintf(out, "store %s: checked %d, adjusted %d\n", r.StoreID, r.Checked, len(r.Adjusted))
	for _, a := range r.Adjusted {
		fmt.Fprintf(out, "  %s: %s -> %s (%s)\n", a.ProductID, a.LedgerBefore, a.Counter, a.Delta)
	}
	for _, id := range r.Skipped {
		fmt.Fprintf(out, "  %s: skipped\n", id)
	}
}
