// Package alert sends webhook notifications when the overall health status
// changes.
package alert

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hazz-dev/healthgate/internal/healthcheck"
	"github.com/hazz-dev/healthgate/internal/task"
)

// Alerter posts a webhook on overall status transitions, at most once per
// cooldown window.
type Alerter struct {
	webhookURL string
	cooldown   time.Duration
	client     *http.Client
	logger     *slog.Logger

	mu        sync.Mutex
	lastAlert time.Time
}

// New creates a new Alerter. Pass nil logger to use the default logger.
func New(webhookURL string, cooldown time.Duration, logger *slog.Logger) *Alerter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Alerter{
		webhookURL: webhookURL,
		cooldown:   cooldown,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type webhookPayload struct {
	Status         string   `json:"status"`
	PreviousStatus string   `json:"previous_status"`
	FailedChecks   []string `json:"failed_checks,omitempty"`
	Error          string   `json:"error,omitempty"`
	OccurredAt     string   `json:"occurred_at"`
}

// Notify fires the webhook for a status transition. Intended to be wired as
// the orchestrator's OnTransition hook; it returns immediately and posts in
// the background.
func (a *Alerter) Notify(prev, next healthcheck.Snapshot) {
	a.mu.Lock()
	if a.cooldown > 0 && time.Since(a.lastAlert) < a.cooldown {
		a.mu.Unlock()
		a.logger.Debug("alert suppressed by cooldown",
			"from", prev.Status, "to", next.Status)
		return
	}
	a.lastAlert = time.Now()
	a.mu.Unlock()

	var failed []string
	for _, c := range next.Checks {
		if c.Result == task.ResultFail {
			failed = append(failed, c.Name)
		}
	}

	payload := webhookPayload{
		Status:         string(next.Status),
		PreviousStatus: string(prev.Status),
		FailedChecks:   failed,
		Error:          next.Error,
		OccurredAt:     time.Now().UTC().Format(time.RFC3339),
	}

	go a.send(payload)
}

func (a *Alerter) send(payload webhookPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("marshaling alert payload", "error", err)
		return
	}

	resp, err := a.client.Post(a.webhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		a.logger.Error("sending alert webhook", "error", err)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		a.logger.Warn("alert webhook returned non-success status",
			"status", resp.StatusCode)
		return
	}
	a.logger.Info("alert sent",
		"status", payload.Status, "previous", payload.PreviousStatus)
}
