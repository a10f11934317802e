// Package notify delivers consolidated update results to a webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	updateagent "github.com/scriptward/UpdateAgent"
)

type message struct {
	Title     string  `json:"title"`
	Body      string  `json:"body"`
	ScriptIDs []int64 `json:"script_ids,omitempty"`
}

// Webhook posts bulk check results to a configured URL through a buffered
// queue, so a slow endpoint never stalls a check run. Progress events are
// forwarded to an inner notifier (typically the log notifier).
type Webhook struct {
	url   string
	queue chan message
	inner updateagent.Notifier
}

const defaultQueueSize = 100

// NewWebhook builds a Webhook notifier holding up to queueSize pending
// messages (the default size when queueSize <= 0). An empty url disables
// posting and every call falls through to inner.
func NewWebhook(url string, queueSize int, inner updateagent.Notifier) *Webhook {
	if inner == nil {
		inner = updateagent.LogNotifier{}
	}
	w := &Webhook{url: strings.TrimSpace(url), inner: inner}
	if w.url == "" {
		return w
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	w.queue = make(chan message, queueSize)
	go w.worker()
	return w
}

func (w *Webhook) AnnounceProgress(ctx context.Context, ev updateagent.ProgressEvent) {
	w.inner.AnnounceProgress(ctx, ev)
}

func (w *Webhook) NotifyBulkResult(ctx context.Context, title, body string, scriptIDs []int64) {
	w.inner.NotifyBulkResult(ctx, title, body, scriptIDs)
	if w.queue == nil {
		return
	}
	select {
	case w.queue <- message{Title: title, Body: body, ScriptIDs: scriptIDs}:
	default:
		log.Warn().Str("url", w.url).Msg("webhook queue full, dropping notification")
	}
}

func (w *Webhook) worker() {
	client := &http.Client{Timeout: 10 * time.Second}
	for msg := range w.queue {
		w.send(client, msg)
	}
}

func (w *Webhook) send(client *http.Client, msg message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("encode webhook payload failed")
		return
	}
	resp, err := client.Post(w.url, "application/json", bytes.NewReader(payload))
	if err != nil {
		log.Error().Err(err).Str("url", w.url).Msg("webhook post failed")
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		log.Error().Int("status", resp.StatusCode).Str("url", w.url).Msg("webhook rejected notification")
	}
}
