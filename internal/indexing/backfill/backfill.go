// Package backfill re-indexes arbitrary historical block ranges. It shares
// the chunker and the event processor with the live poller, but unlike the
// poller it continues past individual event failures: a backfill is an
// operator-driven repair tool, so recovering as much information as possible
// beats cursor consistency.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cryptomart/indexer/internal/core/domain"
	"github.com/cryptomart/indexer/internal/indexing/metrics"
	"github.com/cryptomart/indexer/internal/indexing/scan"
	"github.com/cryptomart/indexer/internal/infra/chain"
	"github.com/cryptomart/indexer/internal/infra/storage"
)

// Status classifies the outcome for one event in a report.
type Status string

const (
	StatusCreated Status = "created"
	StatusSkipped Status = "skipped"
	StatusError   Status = "error"
)

// Detail records the outcome for a single event.
type Detail struct {
	TxHash      string
	LogIndex    uint32
	BlockNumber uint64
	Status      Status
	Error       string
}

// Report summarizes a backfill run.
type Report struct {
	FromBlock     uint64
	ToBlock       uint64
	DryRun        bool
	BlocksScanned uint64
	EventsFound   int
	Created       int
	Skipped       int
	Failed        int
	Details       []Detail
}

// Runner executes backfills over explicit block ranges.
type Runner struct {
	source    chain.LogSource
	ledger    storage.EventLogRepository
	processor scan.EventProcessor
	maxRange  uint64
	log       *slog.Logger
}

// NewRunner creates a backfill runner. maxRange is the provider's log query
// range limit, the same one the poller uses.
func NewRunner(
	source chain.LogSource,
	ledger storage.EventLogRepository,
	proc scan.EventProcessor,
	maxRange uint64,
) *Runner {
	return &Runner{
		source:    source,
		ledger:    ledger,
		processor: proc,
		maxRange:  maxRange,
		log:       slog.Default(),
	}
}

// Run scans [fromBlock, toBlock] and processes every log found. In dry-run
// mode nothing is written; each event is classified by whether its ledger row
// already exists.
func (r *Runner) Run(ctx context.Context, fromBlock, toBlock uint64, dryRun bool) (*Report, error) {
	chunks, err := scan.Chunks(fromBlock, toBlock, r.maxRange)
	if err != nil {
		return nil, err
	}

	report := &Report{
		FromBlock:     fromBlock,
		ToBlock:       toBlock,
		DryRun:        dryRun,
		BlocksScanned: toBlock - fromBlock + 1,
	}

	for _, chunk := range chunks {
		logs, err := r.source.FetchLogs(ctx, chunk.From, chunk.To)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch logs [%d, %d]: %w", chunk.From, chunk.To, err)
		}
		report.EventsFound += len(logs)

		for _, raw := range logs {
			if dryRun {
				r.classify(ctx, raw, report)
				continue
			}
			r.process(ctx, raw, report)
		}
	}

	r.log.Info("backfill finished",
		"from", fromBlock, "to", toBlock, "dryRun", dryRun,
		"found", report.EventsFound, "created", report.Created,
		"skipped", report.Skipped, "failed", report.Failed)
	return report, nil
}

func (r *Runner) process(ctx context.Context, raw domain.RawLog, report *Report) {
	detail := newDetail(raw)

	result, err := r.processor.Process(ctx, raw)
	switch {
	case err != nil:
		// Unlike the poller, keep going: record the failure and move on.
		// Store outages are the exception: no ledger row, so a later run
		// can still index the event.
		if !errors.Is(err, domain.ErrStore) {
			r.processor.RecordFailure(ctx, raw, err)
		}
		report.Failed++
		detail.Status = StatusError
		detail.Error = err.Error()
	case result == domain.ResultCreated:
		report.Created++
		detail.Status = StatusCreated
	default: // duplicate or malformed
		report.Skipped++
		detail.Status = StatusSkipped
	}

	metrics.BackfillEvents.WithLabelValues(string(detail.Status)).Inc()
	report.Details = append(report.Details, detail)
}

// classify is the dry-run path: a ledger existence check and nothing else.
func (r *Runner) classify(ctx context.Context, raw domain.RawLog, report *Report) {
	detail := newDetail(raw)

	if !raw.HasKeys() {
		report.Skipped++
		detail.Status = StatusSkipped
		report.Details = append(report.Details, detail)
		return
	}

	exists, err := r.ledger.Exists(ctx, raw.TxHash, *raw.LogIndex)
	switch {
	case err != nil:
		report.Failed++
		detail.Status = StatusError
		detail.Error = err.Error()
	case exists:
		report.Skipped++
		detail.Status = StatusSkipped
	default:
		report.Created++
		detail.Status = StatusCreated
	}
	report.Details = append(report.Details, detail)
}

func newDetail(raw domain.RawLog) Detail {
	d := Detail{TxHash: raw.TxHash}
	if raw.LogIndex != nil {
		d.LogIndex = *raw.LogIndex
	}
	if raw.BlockNumber != nil {
		d.BlockNumber = *raw.BlockNumber
	}
	return d
}
