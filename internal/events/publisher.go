package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/baharkarakas/offline-sync/internal/models"
)

const (
	StreamName      = "SYNC"
	StreamSubjects  = "sync.batch.*"
	StreamRetention = 14 * 24 * time.Hour
)

// BatchEvent is published once a batch reaches a terminal status.
type BatchEvent struct {
	BatchID     string            `json:"batchId"`
	DeviceID    string            `json:"deviceId"`
	FestivalID  string            `json:"festivalId"`
	Status      models.SyncStatus `json:"status"`
	Total       int               `json:"total"`
	Success     int               `json:"success"`
	Failed      int               `json:"failed"`
	Conflicts   []models.Conflict `json:"conflicts,omitempty"`
	ProcessedAt time.Time         `json:"processedAt"`
	PublishedAt time.Time         `json:"publishedAt"`
}

func FromBatch(b models.SyncBatch) *BatchEvent {
	e := &BatchEvent{
		BatchID:     b.ID,
		DeviceID:    b.DeviceID,
		FestivalID:  b.FestivalID,
		Status:      b.Status,
		PublishedAt: time.Now().UTC(),
	}
	if b.ProcessedAt != nil {
		e.ProcessedAt = *b.ProcessedAt
	}
	if b.Result != nil {
		e.Total = b.Result.Total
		e.Success = b.Result.Success
		e.Failed = b.Result.Failed
		e.Conflicts = b.Result.Conflicts
	}
	return e
}

// Subject is sync.batch.<festival>, with characters NATS treats as
// separators or wildcards replaced.
func Subject(festivalID string) string {
	r := strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")
	return "sync.batch." + r.Replace(festivalID)
}

type Publisher interface {
	PublishBatch(ctx context.Context, e *BatchEvent) error
	Close() error
}

type JetStreamPublisher struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	logger *slog.Logger
}

// NewPublisher connects to NATS and makes sure the SYNC stream exists.
func NewPublisher(ctx context.Context, natsURL string, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("offline-sync"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}
	p := &JetStreamPublisher{nc: nc, js: js, logger: logger}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	logger.Info("NATS publisher initialized", "url", natsURL, "stream", StreamName)
	return p, nil
}

func (p *JetStreamPublisher) ensureStream(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}
	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Offline sync batch results",
		Subjects:    []string{StreamSubjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	p.logger.Info("JetStream stream created", "stream", StreamName)
	return nil
}

func (p *JetStreamPublisher) PublishBatch(ctx context.Context, e *BatchEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal batch event: %w", err)
	}
	subject := Subject(e.FestivalID)
	// Msg ID lets JetStream drop a republished event for the same batch.
	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(e.BatchID)); err != nil {
		return fmt.Errorf("publish batch event: %w", err)
	}
	p.logger.Debug("published batch event", "subject", subject, "batch_id", e.BatchID)
	return nil
}

func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
	}
	return nil
}

// Nop discards events; used when NATS_URL is not configured.
type Nop struct{}

func (Nop) PublishBatch(context.Context, *BatchEvent) error { return nil }
func (Nop) Close() error                                    { return nil }
