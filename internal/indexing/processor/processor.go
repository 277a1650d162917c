// Package processor turns raw contract logs into durable purchase records.
package processor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cryptomart/indexer/internal/core/domain"
	"github.com/cryptomart/indexer/internal/indexing/metrics"
	"github.com/cryptomart/indexer/internal/infra/storage"
)

// Decoder decodes a raw log into a typed event. Satisfied by chain.LogSource.
type Decoder interface {
	Decode(log domain.RawLog) (domain.DecodedEvent, error)
}

// Notifier delivers best-effort sale notifications to the seller side.
type Notifier interface {
	Notify(ctx context.Context, sellerAddress, purchaseID string) error
}

// Processor performs one atomic, idempotent write per observed event. It is
// shared by the live poller and the backfill runner so catch-up and backfill
// are behaviorally identical.
type Processor struct {
	decoder  Decoder
	store    storage.Store
	notifier Notifier
	log      *slog.Logger
}

// New creates an event processor. notifier may be nil.
func New(decoder Decoder, store storage.Store, notifier Notifier) *Processor {
	return &Processor{
		decoder:  decoder,
		store:    store,
		notifier: notifier,
		log:      slog.Default(),
	}
}

// Process handles a single raw log.
//
// Malformed logs (missing block number, tx hash or log index) are skipped
// with a warning. Already-ledgered (txHash, logIndex) pairs are no-ops.
// Decode failures and unknown listings are hard errors: they propagate so the
// caller can stop the batch and record the failure. A failed ledger read
// propagates wrapped in ErrStore instead; callers must not record it, or a
// momentary outage would permanently mask the event as a duplicate. On
// success the purchase
// upsert and the ledger insert commit in one transaction, then the seller is
// notified outside of it.
func (p *Processor) Process(ctx context.Context, raw domain.RawLog) (domain.ProcessResult, error) {
	if !raw.HasKeys() {
		p.log.Warn("skipping malformed log",
			"txHash", raw.TxHash,
			"hasBlockNumber", raw.BlockNumber != nil,
			"hasLogIndex", raw.LogIndex != nil)
		metrics.EventsProcessed.WithLabelValues(string(domain.ResultMalformed)).Inc()
		return domain.ResultMalformed, nil
	}

	exists, err := p.store.EventLogs().Exists(ctx, raw.TxHash, *raw.LogIndex)
	if err != nil {
		return "", fmt.Errorf("%w: failed to check ledger: %v", domain.ErrStore, err)
	}
	if exists {
		metrics.EventsProcessed.WithLabelValues(string(domain.ResultDuplicate)).Inc()
		return domain.ResultDuplicate, nil
	}

	decoded, err := p.decoder.Decode(raw)
	if err != nil {
		return "", err
	}
	if decoded.Kind != domain.EventPurchaseCompleted || decoded.PurchaseCompleted == nil {
		return "", fmt.Errorf("%w: unsupported event kind %q", domain.ErrDecode, decoded.Kind)
	}
	event := decoded.PurchaseCompleted

	var sellerAddress, purchaseID string
	err = p.store.WithTx(ctx, func(r storage.Repos) error {
		listing, err := r.Listings().GetByOnchainID(ctx, event.ListingOnchainID)
		if err != nil {
			return fmt.Errorf("failed to look up listing: %w", err)
		}
		if listing == nil {
			return fmt.Errorf("%w: onchain id %d", domain.ErrListingNotFound, event.ListingOnchainID)
		}
		sellerAddress = listing.SellerAddress

		purchase := &domain.Purchase{
			ID:           uuid.NewString(),
			ListingID:    listing.ID,
			BuyerAddress: event.BuyerAddress,
			TxHash:       raw.TxHash,
			Amount:       event.Amount,
			Verified:     true,
			BlockNumber:  *raw.BlockNumber,
			CreatedAt:    time.Now(),
			UpdatedAt:    time.Now(),
		}
		purchaseID = purchase.ID
		if err := r.Purchases().Upsert(ctx, purchase); err != nil {
			return err
		}

		return r.EventLogs().Insert(ctx, &domain.EventLog{
			ID:          uuid.NewString(),
			TxHash:      raw.TxHash,
			LogIndex:    *raw.LogIndex,
			BlockNumber: *raw.BlockNumber,
			EventType:   string(domain.EventPurchaseCompleted),
			Processed:   true,
			CreatedAt:   time.Now(),
		})
	})
	if err != nil {
		return "", err
	}

	metrics.EventsProcessed.WithLabelValues(string(domain.ResultCreated)).Inc()

	// Fire-and-forget: a failed notification never rolls back the purchase
	// and is not retried here.
	if p.notifier != nil {
		if err := p.notifier.Notify(ctx, sellerAddress, purchaseID); err != nil {
			p.log.Warn("seller notification failed",
				"purchaseID", purchaseID, "error", err)
		}
	}

	return domain.ResultCreated, nil
}

// RecordFailure writes a processed=false ledger row for a log that failed
// processing, outside of the transaction that failed. The row blocks
// automatic retries and surfaces the error to operators; repair goes through
// the backfill command.
func (p *Processor) RecordFailure(ctx context.Context, raw domain.RawLog, procErr error) {
	if !raw.HasKeys() {
		return
	}
	entry := &domain.EventLog{
		ID:          uuid.NewString(),
		TxHash:      raw.TxHash,
		LogIndex:    *raw.LogIndex,
		BlockNumber: *raw.BlockNumber,
		EventType:   string(domain.EventPurchaseCompleted),
		Processed:   false,
		Error:       procErr.Error(),
		CreatedAt:   time.Now(),
	}
	if err := p.store.EventLogs().Insert(ctx, entry); err != nil {
		p.log.Error("failed to record event failure",
			"txHash", raw.TxHash, "logIndex", *raw.LogIndex, "error", err)
	}
	metrics.EventsProcessed.WithLabelValues("failed").Inc()
}
