package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/baharkarakas/offline-sync/internal/models"
	repo "github.com/baharkarakas/offline-sync/internal/repository"
)

const DefaultMaxBatchAge = 24 * time.Hour

// Guard decides whether an offline transaction was already applied and
// whether it is too old to apply.
type Guard struct {
	batches  repo.SyncBatches
	claims   repo.Claims
	ledger   repo.Ledger
	maxAge   time.Duration
	claimTTL time.Duration
	now      func() time.Time
}

// NewGuard builds a guard. An IN_PROGRESS claim older than claimTTL is
// considered abandoned by its batch.
func NewGuard(batches repo.SyncBatches, claims repo.Claims, ledger repo.Ledger, maxAge, claimTTL time.Duration, now func() time.Time) *Guard {
	if maxAge <= 0 {
		maxAge = DefaultMaxBatchAge
	}
	if claimTTL <= 0 {
		claimTTL = DefaultStallAfter
	}
	if now == nil {
		now = time.Now
	}
	return &Guard{batches: batches, claims: claims, ledger: ledger, maxAge: maxAge, claimTTL: claimTTL, now: now}
}

// Acquisition is the result of claiming a (device, localId) pair.
type Acquisition struct {
	// Claimed means this batch now owns the pair and must resolve it.
	Claimed bool
	// Duplicate means the transaction already succeeded as ServerTxID.
	Duplicate  bool
	ServerTxID string
	// InFlight means another batch holds an unresolved claim.
	InFlight bool
	// Rejected means an earlier attempt left the ledger half-written; Reason
	// repeats that attempt's error.
	Rejected bool
	Reason   string
}

// CheckDuplicate scans the device's batch history for a successful outcome
// with the same localId.
func (g *Guard) CheckDuplicate(ctx context.Context, localID, deviceID string) (bool, string, error) {
	id, found, err := g.batches.FindSucceeded(ctx, deviceID, localID)
	if err != nil {
		return false, "", fmt.Errorf("scan history for %s/%s: %w", deviceID, localID, err)
	}
	return found, id, nil
}

// Acquire claims (deviceID, localID) for batchID. Errors are store failures.
func (g *Guard) Acquire(ctx context.Context, deviceID, localID, batchID string) (Acquisition, error) {
	existing, inserted, err := g.claims.Claim(ctx, models.TxClaim{
		DeviceID: deviceID,
		LocalID:  localID,
		BatchID:  batchID,
		State:    models.ClaimInProgress,
	})
	if err != nil {
		return Acquisition{}, fmt.Errorf("claim %s/%s: %w", deviceID, localID, err)
	}

	if inserted {
		// History predating the claim table still counts.
		dup, id, err := g.CheckDuplicate(ctx, localID, deviceID)
		if err != nil {
			g.abandon(ctx, deviceID, localID, batchID, err)
			return Acquisition{}, err
		}
		if dup {
			if err := g.claims.Resolve(ctx, deviceID, localID, batchID, models.ClaimSucceeded, &id, nil); err != nil {
				return Acquisition{}, fmt.Errorf("resolve claim %s/%s: %w", deviceID, localID, err)
			}
			return Acquisition{Duplicate: true, ServerTxID: id}, nil
		}
		return Acquisition{Claimed: true}, nil
	}

	switch existing.State {
	case models.ClaimSucceeded:
		if existing.ServerTxID != nil {
			return Acquisition{Duplicate: true, ServerTxID: *existing.ServerTxID}, nil
		}
	case models.ClaimPartial:
		reason := models.ErrLedgerPartial.Error()
		if existing.Error != nil {
			reason = *existing.Error
		}
		return Acquisition{Rejected: true, Reason: reason}, nil
	case models.ClaimFailed:
		return g.takeOver(ctx, existing, batchID)
	}

	// In progress elsewhere. The owner may have applied the item and died
	// before resolving its claim, so the outcome log gets the last word.
	dup, id, err := g.CheckDuplicate(ctx, localID, deviceID)
	if err != nil {
		return Acquisition{}, err
	}
	if dup {
		return Acquisition{Duplicate: true, ServerTxID: id}, nil
	}

	gone, err := g.abandoned(ctx, existing)
	if err != nil {
		return Acquisition{}, err
	}
	if !gone {
		return Acquisition{InFlight: true}, nil
	}

	// Whatever the dead owner applied is in the ledger.
	e, found, err := g.ledger.FindDeviceEntry(ctx, deviceID, localID)
	if err != nil {
		return Acquisition{}, fmt.Errorf("ledger lookup %s/%s: %w", deviceID, localID, err)
	}
	if found {
		if err := g.claims.Resolve(ctx, deviceID, localID, existing.BatchID, models.ClaimSucceeded, &e.ID, nil); err != nil {
			return Acquisition{}, fmt.Errorf("resolve claim %s/%s: %w", deviceID, localID, err)
		}
		return Acquisition{Duplicate: true, ServerTxID: e.ID}, nil
	}
	return g.takeOver(ctx, existing, batchID)
}

func (g *Guard) takeOver(ctx context.Context, prev models.TxClaim, batchID string) (Acquisition, error) {
	ok, err := g.claims.TakeOver(ctx, prev, batchID)
	if err != nil {
		return Acquisition{}, fmt.Errorf("take over claim %s/%s: %w", prev.DeviceID, prev.LocalID, err)
	}
	if !ok {
		// another batch moved the claim first
		return Acquisition{InFlight: true}, nil
	}
	return Acquisition{Claimed: true}, nil
}

// abandoned reports whether an IN_PROGRESS claim's batch can no longer
// resolve it: the claim outlived claimTTL or the batch already finished.
func (g *Guard) abandoned(ctx context.Context, c models.TxClaim) (bool, error) {
	if g.now().Sub(c.UpdatedAt) > g.claimTTL {
		return true, nil
	}
	b, err := g.batches.Get(ctx, c.BatchID)
	if errors.Is(err, models.ErrBatchNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load claim owner %s: %w", c.BatchID, err)
	}
	return b.Status.Terminal(), nil
}

// abandon gives up a claim nothing was applied under. Best effort: a claim
// left IN_PROGRESS is recovered once it outlives claimTTL.
func (g *Guard) abandon(ctx context.Context, deviceID, localID, batchID string, cause error) {
	msg := cause.Error()
	_ = g.claims.Resolve(context.WithoutCancel(ctx), deviceID, localID, batchID, models.ClaimFailed, nil, &msg)
}

// Release records how a claimed item ended. It runs detached from ctx's
// cancellation: once the ledger moved, the claim must say so.
func (g *Guard) Release(ctx context.Context, deviceID, localID, batchID, serverTxID string, failure error) error {
	ctx = context.WithoutCancel(ctx)
	var err error
	switch {
	case failure == nil:
		err = g.claims.Resolve(ctx, deviceID, localID, batchID, models.ClaimSucceeded, &serverTxID, nil)
	case errors.Is(failure, models.ErrLedgerPartial):
		msg := failure.Error()
		err = g.claims.Resolve(ctx, deviceID, localID, batchID, models.ClaimPartial, nil, &msg)
	default:
		msg := failure.Error()
		err = g.claims.Resolve(ctx, deviceID, localID, batchID, models.ClaimFailed, nil, &msg)
	}
	if err != nil {
		return fmt.Errorf("resolve claim %s/%s: %w", deviceID, localID, err)
	}
	return nil
}

// IsStale reports whether ts is older than the staleness window. A
// transaction exactly maxAge old is still accepted.
func (g *Guard) IsStale(ts time.Time) bool {
	return g.now().Sub(ts) > g.maxAge
}

func (g *Guard) MaxAge() time.Duration { return g.maxAge }
