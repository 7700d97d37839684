// Package notify delivers terminal job-state notifications. Delivery is best
// effort: a notifier failure is logged and never changes the job outcome.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"news-collector/internal/news_collector/model"
)

// Notifier receives one call per job reaching a terminal state. Report jobs
// carry the generated brief alongside the run.
type Notifier interface {
	JobFinished(ctx context.Context, outcome model.JobOutcome)
}

// LogNotifier writes job outcomes to the structured log. It is the default
// sink when no webhook is configured.
type LogNotifier struct {
	Log *zap.Logger
}

func (n *LogNotifier) JobFinished(_ context.Context, outcome model.JobOutcome) {
	run := outcome.Job
	fields := []zap.Field{
		zap.String("job_id", outcome.Job.JobID),
		zap.String("tenant", run.TenantID),
		zap.String("kind", string(run.Kind)),
		zap.String("status", string(run.Status)),
		zap.Int("items_processed", run.ItemsProcessed),
		zap.Duration("elapsed", run.FinishedAt.Sub(run.StartedAt)),
	}
	if len(run.SourceErrors) > 0 {
		fields = append(fields, zap.Int("source_errors", len(run.SourceErrors)))
	}
	if outcome.Brief != nil {
		fields = append(fields, zap.Int("brief_news_count", outcome.Brief.NewsCount))
	}
	switch run.Status {
	case model.JobSucceeded:
		n.Log.Info("job finished", fields...)
	default:
		fields = append(fields, zap.String("error", run.Error))
		n.Log.Warn("job finished", fields...)
	}
}

// WebhookNotifier POSTs the job outcome as JSON to a fixed URL.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
	Log    *zap.Logger
}

func NewWebhook(url string, log *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: 10 * time.Second},
		Log:    log,
	}
}

func (n *WebhookNotifier) JobFinished(ctx context.Context, outcome model.JobOutcome) {
	payload, err := json.Marshal(outcome)
	if err != nil {
		n.Log.Warn("webhook payload marshal failed", zap.Error(err))
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		n.Log.Warn("webhook request build failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		n.Log.Warn("webhook delivery failed",
			zap.String("job_id", outcome.Job.JobID),
			zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		n.Log.Warn("webhook delivery rejected",
			zap.String("job_id", outcome.Job.JobID),
			zap.Error(fmt.Errorf("status %d", resp.StatusCode)))
	}
}

// Multi fans one notification out to several sinks.
type Multi []Notifier

func (m Multi) JobFinished(ctx context.Context, outcome model.JobOutcome) {
	for _, n := range m {
		n.JobFinished(ctx, outcome)
	}
}
