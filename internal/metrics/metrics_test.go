package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestObserveAttempt(t *testing.T) {
	before := testutil.ToFloat64(syncAttempts.WithLabelValues("RECENT", "COMPLETE"))
	ObserveAttempt("RECENT", "COMPLETE", 120*time.Millisecond)
	assert.Equal(t, before+1, testutil.ToFloat64(syncAttempts.WithLabelValues("RECENT", "COMPLETE")))
}

func TestAddSyncedItems_IgnoresZero(t *testing.T) {
	before := testutil.ToFloat64(syncedItems.WithLabelValues("FULL"))
	AddSyncedItems("FULL", 0)
	AddSyncedItems("FULL", 3)
	assert.Equal(t, before+3, testutil.ToFloat64(syncedItems.WithLabelValues("FULL")))
}

func TestIncRetry(t *testing.T) {
	before := testutil.ToFloat64(retries.WithLabelValues("fetch_page"))
	IncRetry("fetch_page")
	assert.Equal(t, before+1, testutil.ToFloat64(retries.WithLabelValues("fetch_page")))
}
