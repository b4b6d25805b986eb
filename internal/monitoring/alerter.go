package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/contract-validator/internal/config"
	"github.com/sells-group/contract-validator/internal/resilience"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertDocumentFailureRate AlertType = "document_failure_rate"
	AlertDLQBacklog          AlertType = "dlq_backlog"
	AlertApprovalBacklog     AlertType = "approval_backlog"
)

// minFinishedDocuments is the sample size below which the failure rate is
// too noisy to alert on.
const minFinishedDocuments = 5

// Alert is one breached threshold.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// rule inspects a snapshot and returns an alert when its threshold is
// breached.
type rule func(snap *MetricsSnapshot, cfg config.MonitoringConfig) *Alert

var rules = []rule{failureRateRule, dlqRule, approvalRule}

// Alerter turns snapshots into alerts and posts them to a webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
	retry  resilience.RetryConfig
	now    func() time.Time
}

// NewAlerter creates an Alerter for the given thresholds.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		retry: resilience.RetryConfig{
			MaxAttempts:    2,
			InitialBackoff: 250 * time.Millisecond,
			MaxBackoff:     time.Second,
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate returns the alerts the snapshot triggers, in rule order. A zero
// threshold disables its rule.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	for _, r := range rules {
		if alert := r(snap, a.cfg); alert != nil {
			alert.Timestamp = a.now()
			alerts = append(alerts, *alert)
		}
	}
	return alerts
}

func failureRateRule(snap *MetricsSnapshot, cfg config.MonitoringConfig) *Alert {
	finished := snap.DocumentsCompleted + snap.DocumentsFailed
	if cfg.FailureRateThreshold <= 0 || finished < minFinishedDocuments || snap.DocumentFailRate <= cfg.FailureRateThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertDocumentFailureRate,
		Severity: "high",
		Message: fmt.Sprintf("%.1f%% of documents failed in the last %dh (%d of %d, threshold %.1f%%)",
			snap.DocumentFailRate*100, snap.LookbackHours, snap.DocumentsFailed, finished,
			cfg.FailureRateThreshold*100),
		Details: map[string]any{
			"failure_rate": snap.DocumentFailRate,
			"threshold":    cfg.FailureRateThreshold,
			"failed":       snap.DocumentsFailed,
			"finished":     finished,
			"by_category":  snap.FailuresByCategory,
		},
	}
}

func dlqRule(snap *MetricsSnapshot, cfg config.MonitoringConfig) *Alert {
	if cfg.DLQThreshold <= 0 || snap.DLQDepth < cfg.DLQThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertDLQBacklog,
		Severity: "high",
		Message:  fmt.Sprintf("%d document(s) parked in the dead letter queue (threshold %d)", snap.DLQDepth, cfg.DLQThreshold),
		Details:  map[string]any{"dlq_depth": snap.DLQDepth, "threshold": cfg.DLQThreshold},
	}
}

func approvalRule(snap *MetricsSnapshot, cfg config.MonitoringConfig) *Alert {
	if cfg.PendingApprovalThreshold <= 0 || snap.PendingApprovals < cfg.PendingApprovalThreshold {
		return nil
	}
	return &Alert{
		Type:     AlertApprovalBacklog,
		Severity: "medium",
		Message:  fmt.Sprintf("%d approval request(s) awaiting a decision (threshold %d)", snap.PendingApprovals, cfg.PendingApprovalThreshold),
		Details:  map[string]any{"pending": snap.PendingApprovals, "threshold": cfg.PendingApprovalThreshold},
	}
}

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Server errors are retried once.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if !a.cfg.Enabled() || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := resilience.Do(ctx, a.retry, func(ctx context.Context) error {
			return a.post(ctx, alert)
		})
		if err != nil {
			zap.L().Error("monitoring: alert not delivered",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert delivered",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return resilience.NewTransientError(eris.Wrap(err, "monitoring: webhook request"), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return resilience.WrapStatus(eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode), resp.StatusCode)
	}
	return nil
}
