package instrumentation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	provider, ctx := newTestProvider(t)
	m := provider.Metrics()

	assert.NotPanics(t, func() {
		m.RecordHTTPRequest(ctx, "POST", "/oauth/message", 202, 2*time.Millisecond)
		m.RecordAuthFlow(ctx, "google", AuthResultSuccess, 12*time.Second)
		m.RecordAuthFlow(ctx, "microsoft", "timeout", 2*time.Minute)
		m.RecordCallbackMessage(ctx, "google", CallbackForeignOrigin)
		m.RecordTokenInvalidation(ctx, "google", InvalidationUnauthorized)
		m.SessionConnected(ctx, "calendar", true)
		m.SessionConnected(ctx, "calendar", false)
		m.RecordAPICall(ctx, "microsoft", ServiceOneDrive, "200", 300*time.Millisecond)
		m.RecordToolInvocation(ctx, "calendar_list_events", StatusSuccess, "calendar", time.Second)
	})
}

func TestMetrics_NilAndZeroAreNoop(t *testing.T) {
	ctx := context.Background()

	var nilMetrics *Metrics
	zero := &Metrics{}

	for _, m := range []*Metrics{nilMetrics, zero} {
		assert.NotPanics(t, func() {
			m.RecordHTTPRequest(ctx, "GET", "/", 200, time.Millisecond)
			m.RecordAuthFlow(ctx, "google", AuthResultSuccess, time.Second)
			m.RecordCallbackMessage(ctx, "google", CallbackAccepted)
			m.RecordTokenInvalidation(ctx, "google", InvalidationDisconnect)
			m.SessionConnected(ctx, "gmail", true)
			m.RecordAPICall(ctx, "google", ServiceGmail, "401", time.Millisecond)
			m.RecordToolInvocation(ctx, "gmail_send_message", StatusError, "", time.Millisecond)
		})
	}
}
