// Package notify delivers operational alerts to an outbound webhook. Delivery
// is fire-and-forget: Notify never blocks the caller and failures are only
// logged.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"canvas-relay/internal/queue"

	"go.uber.org/zap"
)

const (
	ColorGreen  = 0x2ecc71
	ColorOrange = 0xe67e22
	ColorRed    = 0xe74c3c
)

type Notification struct {
	Title       string
	Description string
	Color       int
}

type Notifier interface {
	Notify(n Notification)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) Notify(Notification) {}

type embed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

type Webhook struct {
	url    string
	client *http.Client
	queue  *queue.RequestQueueManager
	now    func() time.Time
}

func NewWebhook(url string, q *queue.RequestQueueManager) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		queue:  q,
		now:    time.Now,
	}
}

func (w *Webhook) Notify(n Notification) {
	queued := w.queue.TryEnqueueJob(queue.Job{Fn: func() error {
		if err := w.post(n); err != nil {
			zap.L().Warn("webhook delivery failed", zap.String("title", n.Title), zap.Error(err))
		}
		return nil
	}})
	if !queued {
		zap.L().Warn("webhook notification dropped", zap.String("title", n.Title))
	}
}

func (w *Webhook) post(n Notification) error {
	body, err := json.Marshal(payload{Embeds: []embed{{
		Title:       n.Title,
		Description: n.Description,
		Color:       n.Color,
		Timestamp:   w.now().UTC().Format(time.RFC3339),
	}}})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode >= 300 {
		return fmt.Errorf("webhook responded %d", res.StatusCode)
	}
	return nil
}

func RoomCreated(roomID string) Notification {
	return Notification{
		Title:       "Room created",
		Description: fmt.Sprintf("Room `%s` was created.", roomID),
		Color:       ColorGreen,
	}
}

func RoomClosed(roomID string, clients int) Notification {
	return Notification{
		Title:       "Room closed by host",
		Description: fmt.Sprintf("Room `%s` was closed by its host (%d participants).", roomID, clients),
		Color:       ColorOrange,
	}
}

func ShuttingDown(signal string, rooms int) Notification {
	return Notification{
		Title:       "Relay shutting down",
		Description: fmt.Sprintf("Received %s, closing %d rooms.", signal, rooms),
		Color:       ColorRed,
	}
}
