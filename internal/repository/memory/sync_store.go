package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/baharkarakas/offline-sync/internal/models"
)

// SyncStore keeps batches, the outcome log and claims behind one lock. It
// implements repository.SyncBatches, repository.Outcomes and repository.Claims.
type SyncStore struct {
	mu       sync.RWMutex
	batches  map[string]models.SyncBatch
	outcomes map[string][]models.TxOutcome
	claims   map[claimKey]models.TxClaim
}

type claimKey struct {
	DeviceID string
	LocalID  string
}

func NewSyncStore() *SyncStore {
	return &SyncStore{
		batches:  make(map[string]models.SyncBatch),
		outcomes: make(map[string][]models.TxOutcome),
		claims:   make(map[claimKey]models.TxClaim),
	}
}

func cloneBatch(b models.SyncBatch) models.SyncBatch {
	txs := make([]models.OfflineTransaction, len(b.Transactions))
	copy(txs, b.Transactions)
	b.Transactions = txs
	if b.Result != nil {
		res := *b.Result
		b.Result = &res
	}
	return b
}

func (s *SyncStore) Create(_ context.Context, b models.SyncBatch) (models.SyncBatch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[b.ID]; ok {
		return models.SyncBatch{}, fmt.Errorf("batch %s already exists", b.ID)
	}
	now := time.Now().UTC()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.UpdatedAt = now
	s.batches[b.ID] = cloneBatch(b)
	return cloneBatch(b), nil
}

func (s *SyncStore) Get(_ context.Context, id string) (models.SyncBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return models.SyncBatch{}, models.ErrBatchNotFound
	}
	return cloneBatch(b), nil
}

func (s *SyncStore) UpdateStatus(_ context.Context, id string, status models.SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return models.ErrBatchNotFound
	}
	if b.Status.Terminal() {
		return models.ErrBatchFinalized
	}
	b.Status = status
	b.UpdatedAt = time.Now().UTC()
	s.batches[id] = b
	return nil
}

func (s *SyncStore) Finalize(_ context.Context, id string, status models.SyncStatus, result models.SyncResult, txs []models.OfflineTransaction, processedAt time.Time) error {
	if !status.Terminal() {
		return fmt.Errorf("finalize batch %s: status %s is not terminal", id, status)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return models.ErrBatchNotFound
	}
	if b.Status.Terminal() {
		return models.ErrBatchFinalized
	}
	b.Status = status
	b.Result = &result
	b.Transactions = append([]models.OfflineTransaction(nil), txs...)
	b.ProcessedAt = &processedAt
	b.UpdatedAt = time.Now().UTC()
	s.batches[id] = b
	return nil
}

func (s *SyncStore) ListByDevice(_ context.Context, deviceID string, statuses ...models.SyncStatus) ([]models.SyncBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := make(map[models.SyncStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []models.SyncBatch
	for _, b := range s.batches {
		if b.DeviceID != deviceID {
			continue
		}
		if len(want) > 0 && !want[b.Status] {
			continue
		}
		out = append(out, cloneBatch(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *SyncStore) FindSucceeded(_ context.Context, deviceID, localID string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		best  models.TxOutcome
		found bool
	)
	for batchID, outs := range s.outcomes {
		if s.batches[batchID].DeviceID != deviceID {
			continue
		}
		for _, o := range outs {
			if o.LocalID != localID || o.Error != nil || o.ServerTxID == nil {
				continue
			}
			if !found || o.RecordedAt.Before(best.RecordedAt) {
				best, found = o, true
			}
		}
	}
	if !found {
		return "", false, nil
	}
	return *best.ServerTxID, true, nil
}

func (s *SyncStore) Append(_ context.Context, o models.TxOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[o.BatchID]; !ok {
		return models.ErrBatchNotFound
	}
	for _, existing := range s.outcomes[o.BatchID] {
		if existing.Position == o.Position {
			return fmt.Errorf("outcome for batch %s position %d already recorded", o.BatchID, o.Position)
		}
	}
	s.outcomes[o.BatchID] = append(s.outcomes[o.BatchID], o)
	return nil
}

func (s *SyncStore) ListByBatch(_ context.Context, batchID string) ([]models.TxOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]models.TxOutcome(nil), s.outcomes[batchID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (s *SyncStore) Claim(_ context.Context, c models.TxClaim) (models.TxClaim, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{DeviceID: c.DeviceID, LocalID: c.LocalID}
	if existing, ok := s.claims[k]; ok {
		return existing, false, nil
	}
	c.State = models.ClaimInProgress
	c.UpdatedAt = time.Now().UTC()
	s.claims[k] = c
	return c, true, nil
}

func (s *SyncStore) TakeOver(_ context.Context, prev models.TxClaim, batchID string) (bool, error) {
	if prev.State != models.ClaimFailed && prev.State != models.ClaimInProgress {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{DeviceID: prev.DeviceID, LocalID: prev.LocalID}
	c, ok := s.claims[k]
	if !ok || c.State != prev.State || c.BatchID != prev.BatchID {
		return false, nil
	}
	s.claims[k] = models.TxClaim{
		DeviceID:  prev.DeviceID,
		LocalID:   prev.LocalID,
		BatchID:   batchID,
		State:     models.ClaimInProgress,
		UpdatedAt: time.Now().UTC(),
	}
	return true, nil
}

func (s *SyncStore) Resolve(_ context.Context, deviceID, localID, batchID string, state models.ClaimState, serverTxID, errMsg *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := claimKey{DeviceID: deviceID, LocalID: localID}
	c, ok := s.claims[k]
	if !ok || c.BatchID != batchID {
		return nil
	}
	c.State = state
	c.ServerTxID = serverTxID
	c.Error = errMsg
	c.UpdatedAt = time.Now().UTC()
	s.claims[k] = c
	return nil
}
