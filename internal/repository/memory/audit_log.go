package memory

import (
	"context"
	"sync"
	"time"

	"github.com/baharkarakas/offline-sync/internal/models"
	"github.com/google/uuid"
)

type AuditLog struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func NewAuditLog() *AuditLog { return &AuditLog{} }

func (a *AuditLog) Create(_ context.Context, l models.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	a.entries = append(a.entries, l)
	return nil
}

// Entries returns a copy of everything logged so far.
func (a *AuditLog) Entries() []models.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.AuditLog(nil), a.entries...)
}
