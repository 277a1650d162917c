package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryptomart/indexer/internal/core/domain"
	"github.com/cryptomart/indexer/internal/indexing/metrics"
	"github.com/cryptomart/indexer/internal/infra/chain"
	"github.com/cryptomart/indexer/internal/infra/storage"
)

// EventProcessor handles one raw log. Satisfied by processor.Processor.
type EventProcessor interface {
	Process(ctx context.Context, raw domain.RawLog) (domain.ProcessResult, error)
	RecordFailure(ctx context.Context, raw domain.RawLog, procErr error)
}

// Config holds poller settings.
type Config struct {
	Interval      time.Duration // tick interval between cycles
	Confirmations uint64        // blocks treated as not yet final
	MaxBlockRange uint64        // RPC provider range limit per eth_getLogs
	StartWindow   uint64        // cold-start backstop behind the confirmed head
}

// Poller owns the scheduling loop for live indexing. At most one cycle runs
// at a time; a tick that fires mid-cycle is dropped, not queued.
type Poller struct {
	cfg       Config
	source    chain.LogSource
	ledger    storage.EventLogRepository
	processor EventProcessor
	log       *slog.Logger

	running  atomic.Bool
	polling  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once
}

// NewPoller creates a poller.
func NewPoller(
	cfg Config,
	source chain.LogSource,
	ledger storage.EventLogRepository,
	proc EventProcessor,
) *Poller {
	return &Poller{
		cfg:       cfg,
		source:    source,
		ledger:    ledger,
		processor: proc,
		log:       slog.Default(),
		stop:      make(chan struct{}),
	}
}

// Start runs the polling loop until Stop is called or ctx is cancelled.
// Cycle errors are logged and the loop keeps going; the ledger-derived cursor
// re-observes the failure point on the next tick.
func (p *Poller) Start(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return fmt.Errorf("poller already running")
	}
	defer p.running.Store(false)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.stop:
			return nil
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.log.Error("poll cycle failed", "error", err)
			}
		}
	}
}

// Stop cancels the recurring schedule. An in-flight cycle finishes. Safe to
// call more than once and from multiple goroutines.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// Poll executes one polling cycle. Returns nil without scanning when a cycle
// is already in flight or there is nothing new below the confirmed head.
func (p *Poller) Poll(ctx context.Context) error {
	if !p.polling.CompareAndSwap(false, true) {
		return nil
	}
	defer p.polling.Store(false)

	start := time.Now()
	err := p.cycle(ctx)
	metrics.PollCycleDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollCycles.WithLabelValues("error").Inc()
		return err
	}
	metrics.PollCycles.WithLabelValues("ok").Inc()
	return nil
}

func (p *Poller) cycle(ctx context.Context) error {
	latest, err := p.source.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch latest height: %w", err)
	}
	metrics.ChainLatestBlock.Set(float64(latest))

	confirmed := ConfirmedHeight(latest, p.cfg.Confirmations)

	fromBlock, err := ResolveFromBlock(ctx, p.ledger, confirmed, p.cfg.StartWindow)
	if err != nil {
		return err
	}
	if fromBlock > confirmed {
		// Nothing new below the confirmation depth; not an error.
		return nil
	}

	chunks, err := Chunks(fromBlock, confirmed, p.cfg.MaxBlockRange)
	if err != nil {
		return err
	}

	for _, chunk := range chunks {
		logs, err := p.source.FetchLogs(ctx, chunk.From, chunk.To)
		if err != nil {
			return fmt.Errorf("failed to fetch logs [%d, %d]: %w", chunk.From, chunk.To, err)
		}

		// Strictly sequential, fail-fast: the ledger-derived cursor only
		// works if a failure stops the batch at the point of failure.
		for _, raw := range logs {
			if _, err := p.processor.Process(ctx, raw); err != nil {
				// A store outage is not an event failure: leave no ledger
				// row so the next cycle re-observes the log.
				if !errors.Is(err, domain.ErrStore) {
					p.processor.RecordFailure(ctx, raw, err)
				}
				return fmt.Errorf("failed to process log %s: %w", raw.TxHash, err)
			}
		}
	}

	if highest, found, err := p.ledger.HighestBlock(ctx); err == nil && found {
		metrics.IndexerLatestBlock.Set(float64(highest))
	}
	return nil
}
