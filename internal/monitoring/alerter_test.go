package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/contract-validator/internal/config"
)

func testMonitoringConfig() config.MonitoringConfig {
	return config.MonitoringConfig{
		FailureRateThreshold:     0.10,
		DLQThreshold:             20,
		PendingApprovalThreshold: 50,
	}
}

func TestAlerter_Evaluate_NoAlerts(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		DocumentsTotal:     100,
		DocumentsCompleted: 95,
		DocumentsFailed:    5,
		DocumentFailRate:   0.05,
		DLQDepth:           3,
		PendingApprovals:   10,
		LookbackHours:      24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_DocumentFailureRate(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		DocumentsTotal:     20,
		DocumentsCompleted: 12,
		DocumentsFailed:    8,
		DocumentFailRate:   0.4,
		LookbackHours:      24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertDocumentFailureRate, alerts[0].Type)
	assert.Equal(t, "high", alerts[0].Severity)
	assert.Contains(t, alerts[0].Message, "40.0% of documents failed")
}

func TestAlerter_Evaluate_MinimumDocumentsRequired(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		DocumentsCompleted: 1,
		DocumentsFailed:    2,
		DocumentFailRate:   0.666,
		LookbackHours:      24,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_Evaluate_Backlogs(t *testing.T) {
	a := NewAlerter(testMonitoringConfig())

	snap := &MetricsSnapshot{
		DLQDepth:         20,
		PendingApprovals: 75,
		LookbackHours:    24,
	}

	alerts := a.Evaluate(snap)
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertDLQBacklog, alerts[0].Type)
	assert.Contains(t, alerts[0].Message, "20 document(s)")
	assert.Equal(t, AlertApprovalBacklog, alerts[1].Type)
	assert.Equal(t, "medium", alerts[1].Severity)
}

func TestAlerter_Evaluate_ZeroThresholdsDisable(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	snap := &MetricsSnapshot{
		DocumentsCompleted: 10,
		DocumentsFailed:    10,
		DocumentFailRate:   0.5,
		DLQDepth:           999,
		PendingApprovals:   999,
	}

	assert.Empty(t, a.Evaluate(snap))
}

func TestAlerter_SendAlerts_Webhook(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var alert Alert
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&alert))
		assert.NotEmpty(t, alert.Type)
		received.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{
		{Type: AlertDocumentFailureRate, Severity: "high", Message: "first"},
		{Type: AlertDLQBacklog, Severity: "high", Message: "second"},
	})
	assert.Equal(t, 2, sent)
	assert.Equal(t, int32(2), received.Load())
}

func TestAlerter_SendAlerts_EmptyURL(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertDLQBacklog, Message: "test"}})
	assert.Equal(t, 0, sent)
}

func TestAlerter_SendAlerts_EmptyAlerts(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{WebhookURL: "http://example.com"})

	assert.Equal(t, 0, a.SendAlerts(context.Background(), nil))
}

func TestAlerter_SendAlerts_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	sent := a.SendAlerts(context.Background(), []Alert{{Type: AlertDLQBacklog, Message: "test"}})
	assert.Equal(t, 0, sent)
	assert.Equal(t, int32(2), calls.Load())
}

func TestAlerter_SendAlerts_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	a := NewAlerter(config.MonitoringConfig{WebhookURL: ts.URL})

	assert.Equal(t, 0, a.SendAlerts(context.Background(), []Alert{{Type: AlertDLQBacklog}}))
	assert.Equal(t, int32(1), calls.Load())
}

func TestAlerter_Evaluate_StampsTime(t *testing.T) {
	a := NewAlerter(config.MonitoringConfig{DLQThreshold: 1})
	a.now = func() time.Time { return fixedNow }

	alerts := a.Evaluate(&MetricsSnapshot{DLQDepth: 1})
	require.Len(t, alerts, 1)
	assert.Equal(t, fixedNow, alerts[0].Timestamp)
}
