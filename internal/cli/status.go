package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/cryptomart/indexer/internal/control"
	"github.com/cryptomart/indexer/internal/core/config"
	"github.com/cryptomart/indexer/internal/indexing/health"
	"github.com/cryptomart/indexer/internal/indexing/scan"
	"github.com/cryptomart/indexer/internal/infra/chain/evm"
	"github.com/cryptomart/indexer/internal/infra/rpc"
	"github.com/cryptomart/indexer/internal/infra/storage"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show indexing progress and health",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// headSource reports the chain head. Satisfied by *evm.Source.
type headSource interface {
	LatestHeight(ctx context.Context) (uint64, error)
}

type statusReport struct {
	health    health.Health
	purchases int
	events    int

	// headKnown is false when the RPC node is unreachable; the chain-derived
	// fields below are only valid when it is true.
	headKnown bool
	chainHead uint64
	confirmed uint64
	nextFrom  uint64
}

func collectStatus(
	ctx context.Context,
	store storage.Store,
	src headSource,
	cfg *config.AppConfig,
) (statusReport, error) {
	var r statusReport

	monitor := health.NewMonitor(store.EventLogs(), cfg.Health.StalenessThreshold)
	h, err := monitor.Check(ctx)
	if err != nil {
		return r, fmt.Errorf("health check failed: %w", err)
	}
	r.health = h

	if r.purchases, err = store.Purchases().Count(ctx); err != nil {
		return r, fmt.Errorf("failed to count purchases: %w", err)
	}
	if r.events, err = store.EventLogs().Count(ctx); err != nil {
		return r, fmt.Errorf("failed to count event logs: %w", err)
	}

	head, err := src.LatestHeight(ctx)
	if err != nil {
		slog.Warn("chain head unavailable", "error", err)
		return r, nil
	}
	r.headKnown = true
	r.chainHead = head
	r.confirmed = scan.ConfirmedHeight(head, cfg.Chain.Confirmations)

	from, err := scan.ResolveFromBlock(ctx, store.EventLogs(), r.confirmed, cfg.Chain.StartWindow)
	if err != nil {
		return r, fmt.Errorf("failed to resolve cursor: %w", err)
	}
	r.nextFrom = from

	return r, nil
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx := context.Background()
	store, db, err := control.OpenStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	client := rpc.NewClient("primary", cfg.Chain.RPCURL, cfg.Chain.RPCTimeout, rpc.RetryConfig{
		MaxAttempts: cfg.Chain.RetryAttempts,
		BaseDelay:   cfg.Chain.RetryBaseDelay,
	})
	source := evm.NewSource(client, cfg.Chain.ContractAddress, cfg.Chain.EventSignature)

	r, err := collectStatus(ctx, store, source, cfg)
	if err != nil {
		slog.Error("Status failed", "error", err)
		os.Exit(1)
	}
	printStatus(r)
}

func printStatus(r statusReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

	if r.headKnown {
		fmt.Fprintf(w, "Chain head:\t%d\n", r.chainHead)
		fmt.Fprintf(w, "Confirmed head:\t%d\n", r.confirmed)
		fmt.Fprintf(w, "Next scan from:\t%d\n", r.nextFrom)
	} else {
		fmt.Fprintf(w, "Chain head:\t- (rpc unreachable)\n")
	}
	fmt.Fprintf(w, "Last processed block:\t%d\n", r.health.LastProcessedBlock)
	if !r.health.LastEventAt.IsZero() {
		fmt.Fprintf(w, "Last event at:\t%s\n", r.health.LastEventAt.Format("2006-01-02 15:04:05"))
	} else {
		fmt.Fprintf(w, "Last event at:\t-\n")
	}
	fmt.Fprintf(w, "Stale:\t%v\n", r.health.Stale)
	fmt.Fprintf(w, "Purchases:\t%d\n", r.purchases)
	fmt.Fprintf(w, "Event log rows:\t%d\n", r.events)
	_ = w.Flush()
}
