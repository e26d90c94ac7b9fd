package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/baharkarakas/offline-sync/internal/auth"
	"github.com/baharkarakas/offline-sync/internal/events"
	"github.com/baharkarakas/offline-sync/internal/metrics"
	"github.com/baharkarakas/offline-sync/internal/models"
	repo "github.com/baharkarakas/offline-sync/internal/repository"
	"github.com/baharkarakas/offline-sync/internal/worker"
)

const DefaultStallAfter = 10 * time.Minute

type SyncDeps struct {
	Batches   repo.SyncBatches
	Outcomes  repo.Outcomes
	Claims    repo.Claims
	Ledger    repo.Ledger
	AuditLogs repo.AuditLogs
	Signer    *auth.Signer
	Publisher events.Publisher
	Pool      *worker.Pool
	Logger    *slog.Logger

	MaxBatchAge time.Duration
	StallAfter  time.Duration
	Now         func() time.Time
}

// SyncService ingests offline batches and answers queries about them.
type SyncService struct {
	batches    repo.SyncBatches
	outcomes   repo.Outcomes
	audit      repo.AuditLogs
	signer     *auth.Signer
	guard      *Guard
	dispatcher *Dispatcher
	reconciler *Reconciler
	publisher  events.Publisher
	wp         *worker.Pool
	log        *slog.Logger
	now        func() time.Time
	stallAfter time.Duration
}

func NewSyncService(d SyncDeps) *SyncService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.StallAfter <= 0 {
		d.StallAfter = DefaultStallAfter
	}
	return &SyncService{
		batches:    d.Batches,
		outcomes:   d.Outcomes,
		audit:      d.AuditLogs,
		signer:     d.Signer,
		guard:      NewGuard(d.Batches, d.Claims, d.Ledger, d.MaxBatchAge, d.StallAfter, d.Now),
		dispatcher: NewDispatcher(d.Ledger),
		reconciler: NewReconciler(d.Ledger),
		publisher:  d.Publisher,
		wp:         d.Pool,
		log:        d.Logger,
		now:        d.Now,
		stallAfter: d.StallAfter,
	}
}

type SubmitBatchInput struct {
	DeviceID     string
	FestivalID   string
	Transactions []models.OfflineTransaction
}

// Validate rejects submissions that must never reach the item loop.
func (in SubmitBatchInput) Validate() error {
	var problems []string
	if strings.TrimSpace(in.DeviceID) == "" {
		problems = append(problems, "deviceId is required")
	}
	if strings.TrimSpace(in.FestivalID) == "" {
		problems = append(problems, "festivalId is required")
	}
	if len(in.Transactions) == 0 {
		problems = append(problems, "transactions must not be empty")
	}
	for i, tx := range in.Transactions {
		if tx.LocalID == "" {
			problems = append(problems, fmt.Sprintf("transactions[%d].localId is required", i))
		}
		if tx.WalletID == "" {
			problems = append(problems, fmt.Sprintf("transactions[%d].walletId is required", i))
		}
		if tx.Signature == "" {
			problems = append(problems, fmt.Sprintf("transactions[%d].signature is required", i))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", models.ErrInvalidBatch, strings.Join(problems, "; "))
	}
	return nil
}

type itemKind string

const (
	itemApplied   itemKind = "applied"
	itemDuplicate itemKind = "duplicate"
	itemConflict  itemKind = "conflict"
)

type itemResult struct {
	kind       itemKind
	serverTxID string
	conflict   *models.Conflict
	claimed    bool
	cause      error
}

func conflictResult(localID string, cause error, reason, resolution string, claimed bool) itemResult {
	return itemResult{
		kind:     itemConflict,
		conflict: &models.Conflict{LocalID: localID, Reason: reason, Resolution: resolution},
		claimed:  claimed,
		cause:    cause,
	}
}

// Submit persists the batch and processes every item in order. Per-item
// failures end up in the result; a returned error means the batch itself
// could not be processed and may be left PROCESSING.
func (s *SyncService) Submit(ctx context.Context, in SubmitBatchInput) (models.SyncBatch, error) {
	if err := in.Validate(); err != nil {
		return models.SyncBatch{}, err
	}
	started := s.now()

	txs := make([]models.OfflineTransaction, len(in.Transactions))
	for i, tx := range in.Transactions {
		tx.Processed, tx.ServerTxID, tx.Error = false, nil, nil
		txs[i] = tx
	}

	b, err := s.batches.Create(ctx, models.SyncBatch{
		ID:           uuid.NewString(),
		DeviceID:     in.DeviceID,
		FestivalID:   in.FestivalID,
		Transactions: txs,
		Status:       models.SyncPending,
		CreatedAt:    started.UTC(),
	})
	if err != nil {
		return models.SyncBatch{}, fmt.Errorf("create batch: %w", err)
	}
	if err := s.batches.UpdateStatus(ctx, b.ID, models.SyncProcessing); err != nil {
		return models.SyncBatch{}, fmt.Errorf("start batch %s: %w", b.ID, err)
	}
	b.Status = models.SyncProcessing

	log := s.log.With("batch_id", b.ID, "device_id", b.DeviceID)
	log.Info("sync batch started", "items", len(txs))

	meta := TxMeta{BatchID: b.ID, DeviceID: b.DeviceID, FestivalID: b.FestivalID}
	result := models.SyncResult{
		Total:     len(txs),
		Conflicts: []models.Conflict{},
		Successes: []models.SyncSuccess{},
	}

	for i := range txs {
		if err := ctx.Err(); err != nil {
			log.Warn("sync batch interrupted", "position", i, "err", err)
			return b, fmt.Errorf("batch %s interrupted at item %d: %w", b.ID, i, err)
		}

		res, err := s.processItem(ctx, meta, txs[i])
		if err != nil {
			log.Error("sync item failed", "position", i, "local_id", txs[i].LocalID, "err", err)
			return b, err
		}

		out := models.TxOutcome{
			BatchID:    b.ID,
			Position:   i,
			LocalID:    txs[i].LocalID,
			RecordedAt: s.now().UTC(),
		}
		txs[i].Processed = true
		if res.conflict != nil {
			reason := res.conflict.Reason
			out.Error = &reason
			out.Resolution = res.conflict.Resolution
			txs[i].Error = &reason
			result.Failed++
			result.Conflicts = append(result.Conflicts, *res.conflict)
			metrics.SyncConflictsTotal.WithLabelValues(res.conflict.Resolution).Inc()
		} else {
			id := res.serverTxID
			out.ServerTxID = &id
			txs[i].ServerTxID = &id
			result.Success++
			result.Successes = append(result.Successes, models.SyncSuccess{LocalID: txs[i].LocalID, ServerTxID: id})
		}
		metrics.SyncItemsTotal.WithLabelValues(string(res.kind)).Inc()

		if err := s.outcomes.Append(ctx, out); err != nil {
			if res.claimed {
				// the claim still records what happened to the ledger
				if rerr := s.guard.Release(ctx, meta.DeviceID, txs[i].LocalID, b.ID, res.serverTxID, res.cause); rerr != nil {
					log.Error("release claim", "local_id", txs[i].LocalID, "err", rerr)
				}
			}
			return b, fmt.Errorf("record outcome %d of batch %s: %w", i, b.ID, err)
		}
		if res.claimed {
			if err := s.guard.Release(ctx, meta.DeviceID, txs[i].LocalID, b.ID, res.serverTxID, res.cause); err != nil {
				return b, err
			}
		}
	}

	status := result.Status()
	processedAt := s.now().UTC()
	if err := s.batches.Finalize(ctx, b.ID, status, result, txs, processedAt); err != nil {
		return b, fmt.Errorf("finalize batch %s: %w", b.ID, err)
	}
	b.Status = status
	b.Result = &result
	b.Transactions = txs
	b.ProcessedAt = &processedAt
	b.UpdatedAt = processedAt

	metrics.SyncBatchesTotal.WithLabelValues(string(status)).Inc()
	metrics.SyncBatchDuration.Observe(s.now().Sub(started).Seconds())
	log.Info("sync batch finalized",
		"status", status,
		"total", result.Total,
		"success", result.Success,
		"failed", result.Failed,
	)
	s.afterFinalize(b)
	return b, nil
}

// processItem runs signature, duplicate, staleness and dispatch checks for
// one transaction. Returned errors are store failures.
func (s *SyncService) processItem(ctx context.Context, meta TxMeta, tx models.OfflineTransaction) (itemResult, error) {
	if err := s.signer.VerifyTransaction(meta.FestivalID, tx); err != nil {
		return conflictResult(tx.LocalID, err, models.ErrInvalidSignature.Error(), models.ResolutionRejected, false), nil
	}

	acq, err := s.guard.Acquire(ctx, meta.DeviceID, tx.LocalID, meta.BatchID)
	if err != nil {
		return itemResult{}, err
	}
	switch {
	case acq.Duplicate:
		s.log.Debug("duplicate offline transaction", "local_id", tx.LocalID, "server_tx_id", acq.ServerTxID)
		return itemResult{kind: itemDuplicate, serverTxID: acq.ServerTxID}, nil
	case acq.Rejected:
		return conflictResult(tx.LocalID, models.ErrLedgerPartial, acq.Reason, models.ResolutionRejected, false), nil
	case acq.InFlight:
		return conflictResult(tx.LocalID, models.ErrDuplicateInFlight, models.ErrDuplicateInFlight.Error(), models.ResolutionRetryLater, false), nil
	}

	if s.guard.IsStale(tx.Timestamp) {
		return conflictResult(tx.LocalID, models.ErrTransactionTooOld, models.ErrTransactionTooOld.Error(), models.ResolutionRejected, true), nil
	}

	id, err := s.dispatcher.Apply(ctx, tx, meta)
	if err == nil {
		return itemResult{kind: itemApplied, serverTxID: id, claimed: true}, nil
	}
	if !errors.Is(err, models.ErrInsufficientBalance) || tx.Type != models.OfflinePurchase {
		return conflictResult(tx.LocalID, err, err.Error(), models.ResolutionRejected, true), nil
	}

	ok, rerr := s.reconciler.Reconcile(ctx, tx)
	if ok {
		id, err = s.dispatcher.Apply(ctx, tx, meta)
	} else if rerr != nil {
		err = rerr
	}
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("unresolved").Inc()
		return conflictResult(tx.LocalID, err, err.Error(), models.ResolutionInsufficientBalanceUnresolved, true), nil
	}
	metrics.ReconciliationsTotal.WithLabelValues("retried").Inc()
	s.log.Info("purchase reconciled", "local_id", tx.LocalID, "wallet_id", tx.WalletID)
	return itemResult{kind: itemApplied, serverTxID: id, claimed: true}, nil
}

// afterFinalize hands the audit trail and batch event to the worker pool.
// Neither can change the batch result.
func (s *SyncService) afterFinalize(b models.SyncBatch) {
	job := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.writeAudit(ctx, b)
		if err := s.publisher.PublishBatch(ctx, events.FromBatch(b)); err != nil {
			metrics.EventsPublishFailed.Inc()
			s.log.Warn("publish batch event", "batch_id", b.ID, "err", err)
		}
	}
	if s.wp == nil || !s.wp.Submit(job) {
		job()
	}
}

func (s *SyncService) writeAudit(ctx context.Context, b models.SyncBatch) {
	if s.audit == nil || b.Result == nil {
		return
	}
	id := b.ID
	entries := []models.AuditLog{{
		EntityType: "sync_batch",
		EntityID:   &id,
		Action:     "finalized",
		Details: map[string]any{
			"device_id":   b.DeviceID,
			"festival_id": b.FestivalID,
			"status":      string(b.Status),
			"total":       b.Result.Total,
			"success":     b.Result.Success,
			"failed":      b.Result.Failed,
		},
	}}
	for _, c := range b.Result.Conflicts {
		entries = append(entries, models.AuditLog{
			EntityType: "sync_batch",
			EntityID:   &id,
			Action:     "conflict",
			Details: map[string]any{
				"local_id":   c.LocalID,
				"reason":     c.Reason,
				"resolution": c.Resolution,
			},
		})
	}
	for _, e := range entries {
		if err := s.audit.Create(ctx, e); err != nil {
			s.log.Warn("write audit log", "batch_id", b.ID, "action", e.Action, "err", err)
		}
	}
}

// GetBatch returns the batch with per-item outcomes taken from the outcome
// log, so a batch still PROCESSING shows what has happened so far. Result is
// only present once the batch is terminal.
func (s *SyncService) GetBatch(ctx context.Context, id string) (models.SyncBatch, error) {
	b, err := s.batches.Get(ctx, id)
	if err != nil {
		return models.SyncBatch{}, err
	}
	outs, err := s.outcomes.ListByBatch(ctx, id)
	if err != nil {
		return models.SyncBatch{}, fmt.Errorf("outcomes of batch %s: %w", id, err)
	}
	for _, o := range outs {
		if o.Position < 0 || o.Position >= len(b.Transactions) {
			continue
		}
		tx := &b.Transactions[o.Position]
		tx.Processed = true
		tx.ServerTxID = o.ServerTxID
		tx.Error = o.Error
	}
	if !b.Status.Terminal() {
		b.Result = nil
	}
	return b, nil
}

// PendingBatch is a non-terminal batch. Stalled marks one that has been
// PROCESSING long enough that its worker is presumed gone.
type PendingBatch struct {
	models.SyncBatch
	Stalled bool `json:"stalled"`
}

// PendingBatches lists the device's PENDING and PROCESSING batches, oldest
// first.
func (s *SyncService) PendingBatches(ctx context.Context, deviceID string) ([]PendingBatch, error) {
	bs, err := s.batches.ListByDevice(ctx, deviceID, models.SyncPending, models.SyncProcessing)
	if err != nil {
		return nil, fmt.Errorf("pending batches of %s: %w", deviceID, err)
	}
	now := s.now()
	out := make([]PendingBatch, 0, len(bs))
	for _, b := range bs {
		out = append(out, PendingBatch{
			SyncBatch: b,
			Stalled:   b.Status == models.SyncProcessing && now.Sub(b.UpdatedAt) > s.stallAfter,
		})
	}
	return out, nil
}

type SignRequest struct {
	LocalID   string
	WalletID  string
	Amount    int64
	Type      string
	Timestamp time.Time
}

// SignedTemplate is what a device stores while online so it can emit the
// transaction later without holding the festival key.
type SignedTemplate struct {
	LocalID   string               `json:"localId"`
	WalletID  string               `json:"walletId"`
	Amount    int64                `json:"amount"`
	Type      models.OfflineTxType `json:"type"`
	Timestamp time.Time            `json:"timestamp"`
	Message   string               `json:"message"`
	Signature string               `json:"signature"`
}

func (s *SyncService) SignTemplate(festivalID string, r SignRequest) (SignedTemplate, error) {
	typ, ok := models.ParseOfflineTxType(r.Type)
	if !ok {
		return SignedTemplate{}, fmt.Errorf("%w: %q", models.ErrUnknownTransactionType, r.Type)
	}
	if r.Amount <= 0 {
		return SignedTemplate{}, fmt.Errorf("%w: %d", models.ErrInvalidAmount, r.Amount)
	}
	if r.LocalID == "" || r.WalletID == "" {
		return SignedTemplate{}, fmt.Errorf("%w: localId and walletId are required", models.ErrInvalidBatch)
	}
	ts := r.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.UTC().Truncate(time.Second)
	sig, err := s.signer.SignFields(festivalID, r.LocalID, r.WalletID, r.Amount, typ, ts)
	if err != nil {
		return SignedTemplate{}, err
	}
	return SignedTemplate{
		LocalID:   r.LocalID,
		WalletID:  r.WalletID,
		Amount:    r.Amount,
		Type:      typ,
		Timestamp: ts,
		Message:   auth.CanonicalMessage(r.LocalID, r.WalletID, r.Amount, typ, ts),
		Signature: sig,
	}, nil
}
