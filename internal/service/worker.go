package service

import (
	"context"
	"errors"
	"time"

	"github.com/kaiwen/pricewatch/internal/domain"
	"github.com/kaiwen/pricewatch/internal/keepa"
	"github.com/kaiwen/pricewatch/internal/logger"
)

// processBatch runs one batch to a terminal state. Exactly one worker ever
// runs a given batch, so item and batch rows have a single writer. ctx is
// the cancellation signal for StopBatch; persistence uses a detached context
// so final status writes survive cancellation.
func (s *JobService) processBatch(ctx context.Context, batchID string) {
	persist := context.WithoutCancel(ctx)
	ctx = logger.SetBatchID(ctx, batchID)

	batch, err := s.batchRepo.GetByID(persist, batchID)
	if err != nil {
		logger.CtxError(ctx, "Failed to load batch %s: %v", batchID, err)
		return
	}

	// A stop request may have landed before this worker started. The
	// conditional transition below refuses already-terminal rows, so the
	// cancellation sticks; aggregates still need recomputing.
	started, err := s.batchRepo.MarkProcessing(persist, batchID)
	if err != nil {
		logger.CtxError(ctx, "Failed to mark batch %s processing: %v", batchID, err)
		return
	}
	if !started {
		logger.CtxInfo(ctx, "Batch %s no longer pending, skipping", batchID)
		s.recomputeJobAggregates(persist, batch.BatchJobID)
		return
	}

	items, err := s.batchRepo.ListItems(persist, batchID)
	if err != nil {
		logger.CtxError(ctx, "Failed to load items for batch %s: %v", batchID, err)
		s.RecordBatchProgress(persist, batchID, 0, domain.BatchStatusFailed)
		return
	}
	if len(items) == 0 {
		logger.CtxError(ctx, "No items found for batch %s", batchID)
		s.finishBatch(persist, batch, 0, domain.BatchStatusFailed, "no batch items found to process")
		return
	}

	// Fatal-abort path: when Keepa is wholly unreachable there is no point
	// burning per-item calls. A cancellation racing the availability check
	// surfaces as a wrapped context error here and must not be mistaken for
	// an outage.
	if err := s.lookup.Ping(ctx); err != nil {
		if ctx.Err() != nil {
			logger.CtxInfo(ctx, "Batch %s cancelled before item processing", batchID)
			s.finishBatch(persist, batch, 0, domain.BatchStatusCancelled, "cancelled by user")
			return
		}
		logger.CtxError(ctx, "Keepa unavailable, failing batch %s: %v", batchID, err)
		s.finishBatch(persist, batch, 0, domain.BatchStatusFailed, err.Error())
		return
	}

	logger.CtxInfo(ctx, "Processing %d UPCs in batch %d", len(items), batch.BatchNumber)

	processed := 0
	for _, item := range items {
		if item.Status != domain.ItemStatusPending {
			continue
		}

		// Cancellation is honored at item boundaries only; untouched items
		// stay pending.
		select {
		case <-ctx.Done():
			logger.CtxInfo(ctx, "Batch %s cancelled after %d items", batchID, processed)
			s.finishBatch(persist, batch, processed, domain.BatchStatusCancelled, "cancelled by user")
			return
		default:
		}

		fatal := s.processItem(ctx, persist, batch, &item)
		processed++
		if fatal != nil {
			s.finishBatch(persist, batch, processed, domain.BatchStatusFailed, fatal.Error())
			return
		}
		if err := s.RecordBatchProgress(persist, batchID, processed, domain.BatchStatusProcessing); err != nil {
			logger.CtxWarn(ctx, "Failed to update progress for batch %s: %v", batchID, err)
		}
	}

	s.finishBatch(persist, batch, processed, domain.BatchStatusCompleted, "")
}

// processItem attempts one UPC lookup. A non-nil return is the fatal
// batch-abort condition; every other failure is absorbed into the item row.
func (s *JobService) processItem(ctx, persist context.Context, batch *domain.UPCBatch, item *domain.UPCBatchItem) error {
	ctx = logger.WithField(ctx, logger.FieldUPC, item.UPC)

	if err := s.batchRepo.MarkItemProcessing(persist, item.ID); err != nil {
		logger.CtxError(ctx, "Failed to mark item processing: %v", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	result, err := s.lookup.Lookup(callCtx, item.UPC)
	cancel()

	if err != nil {
		if errors.Is(err, keepa.ErrServiceUnavailable) && ctx.Err() == nil {
			if ferr := s.batchRepo.FailItem(persist, item.ID, err.Error()); ferr != nil {
				logger.CtxError(ctx, "Failed to persist item failure: %v", ferr)
			}
			return err
		}
		// Timeouts, rate-limit exhaustion, decode errors: record and move on.
		logger.CtxWarn(ctx, "Lookup failed for UPC %s: %v", item.UPC, err)
		if ferr := s.batchRepo.FailItem(persist, item.ID, err.Error()); ferr != nil {
			logger.CtxError(ctx, "Failed to persist item failure: %v", ferr)
		}
		return nil
	}

	if result == nil || result.Product == nil {
		logger.CtxWarn(ctx, "No Keepa data for UPC %s", item.UPC)
		if err := s.batchRepo.CompleteItem(persist, item.ID, nil, "no data found in Keepa"); err != nil {
			logger.CtxError(ctx, "Failed to persist item result: %v", err)
		}
		return nil
	}

	for _, seller := range s.analyzer.Analyze(result.Product) {
		alert := &domain.PriceAlert{
			ID:                 newID(),
			BatchJobID:         batch.BatchJobID,
			UPC:                item.UPC,
			SellerName:         seller.SellerName,
			CurrentPrice:       seller.CurrentPrice,
			HistoricalPrice:    seller.HistoricalPrice,
			PriceChangePercent: seller.PriceChangePercent,
			KeepaData:          result.Raw,
			DetectedAt:         time.Now().UTC(),
		}
		if err := s.alertRepo.Create(persist, alert); err != nil {
			logger.CtxError(ctx, "Failed to store price alert for UPC %s: %v", item.UPC, err)
		} else {
			logger.CtxInfo(ctx, "Price alert: %s at %.2f vs %.2f avg (%.1f%%)",
				seller.SellerName, seller.CurrentPrice, seller.HistoricalPrice, seller.PriceChangePercent)
		}
	}

	if err := s.batchRepo.CompleteItem(persist, item.ID, result.Raw, ""); err != nil {
		logger.CtxError(ctx, "Failed to persist item result: %v", err)
	}
	return nil
}

// finishBatch records the terminal batch status and folds it into the job
// aggregates.
func (s *JobService) finishBatch(ctx context.Context, batch *domain.UPCBatch, processed int, status domain.BatchStatus, errMsg string) {
	if _, err := s.batchRepo.Finish(ctx, batch.ID, status, processed, errMsg); err != nil {
		logger.CtxError(ctx, "Failed to finish batch %s: %v", batch.ID, err)
		return
	}
	logger.CtxInfo(ctx, "Batch %d finished: status=%s processed=%d", batch.BatchNumber, status, processed)
	s.recomputeJobAggregates(ctx, batch.BatchJobID)
}
