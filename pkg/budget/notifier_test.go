package budget

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyhq/tally/pkg/observability"
)

func TestWebhookNotifierDeliversSignedAlert(t *testing.T) {
	var gotBody []byte
	var gotSignature string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotSignature = r.Header.Get("X-Tally-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	n := NewWebhookNotifier(server.URL, "s3cret", 5*time.Second, 0, logger)

	alert := Alert{TenantID: "tenant-1", Threshold: 90, SpendCents: 4500, BudgetCents: 5000, Percentage: 90}
	require.NoError(t, n.Notify(context.Background(), alert))

	var decoded Alert
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, alert.TenantID, decoded.TenantID)
	assert.Equal(t, alert.Threshold, decoded.Threshold)

	assert.True(t, VerifySignature(gotBody, gotSignature, "s3cret"))
	assert.False(t, VerifySignature(gotBody, gotSignature, "wrong"))
}

func TestWebhookNotifierRetriesOnServerError(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	n := NewWebhookNotifier(server.URL, "", 5*time.Second, 2, logger)

	require.NoError(t, n.Notify(context.Background(), Alert{TenantID: "tenant-1", Threshold: 75}))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestWebhookNotifierGivesUpAfterRetryBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	n := NewWebhookNotifier(server.URL, "", time.Second, 1, logger)

	err := n.Notify(context.Background(), Alert{TenantID: "tenant-1", Threshold: 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
}
