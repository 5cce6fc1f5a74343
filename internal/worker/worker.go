// Package worker drives incremental consolidation from certificate
// lifecycle events on the event bus.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-fisheries/gannet/internal/consolidate"
	"github.com/opensource-fisheries/gannet/internal/domain"
)

// Worker subscribes to certificate events and replays consolidation for the
// affected landings.
type Worker struct {
	bus    domain.EventBus
	engine *consolidate.Engine

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewWorker creates a new event-driven worker.
func NewWorker(bus domain.EventBus, engine *consolidate.Engine) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		engine: engine,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start subscribes to the certificate lifecycle topics.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicCertificateSubmitted, w.handleSubmitted)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	sub, err = w.bus.Subscribe(w.ctx, domain.TopicCertificateVoided, w.handleVoided)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topics", []string{domain.TopicCertificateSubmitted, domain.TopicCertificateVoided},
	)

	return nil
}

// CertificateMessage is the payload for certificate lifecycle events.
type CertificateMessage struct {
	DocumentNumber string `json:"documentNumber"`
	TraceID        string `json:"traceId,omitempty"`
}

func (w *Worker) handleSubmitted(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	certMsg, err := parseCertificateMessage(msg)
	if err != nil {
		return err
	}

	slog.Debug("processing certificate submission",
		"document_number", certMsg.DocumentNumber,
		"message_id", msg.ID,
	)

	summary, err := w.engine.OnCertificateSubmitted(ctx, certMsg.DocumentNumber)
	if err != nil {
		slog.Error("certificate submission processing failed",
			"document_number", certMsg.DocumentNumber,
			"error", err,
		)
		return err
	}

	slog.Info("certificate submission processed",
		"document_number", certMsg.DocumentNumber,
		"landings", summary.LandingsFetched,
		"upserted", summary.Upserted,
		"deleted", summary.Deleted,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func (w *Worker) handleVoided(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	certMsg, err := parseCertificateMessage(msg)
	if err != nil {
		return err
	}

	slog.Debug("processing certificate void",
		"document_number", certMsg.DocumentNumber,
		"message_id", msg.ID,
	)

	if err := w.engine.OnCertificateVoided(ctx, certMsg.DocumentNumber); err != nil {
		slog.Error("certificate void processing failed",
			"document_number", certMsg.DocumentNumber,
			"error", err,
		)
		return err
	}

	slog.Info("certificate void processed",
		"document_number", certMsg.DocumentNumber,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

func parseCertificateMessage(msg *domain.Message) (*CertificateMessage, error) {
	var certMsg CertificateMessage
	if err := json.Unmarshal(msg.Payload, &certMsg); err != nil {
		slog.Error("failed to parse certificate message",
			"message_id", msg.ID,
			"error", err,
		)
		return nil, err
	}
	return &certMsg, nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
