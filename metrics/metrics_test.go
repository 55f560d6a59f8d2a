package metrics

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swotrace/config"
	"swotrace/logging"
	"swotrace/session"
)

func TestWireExposesSessionCounters(t *testing.T) {
	sess := session.New(logging.Discard, config.Default())
	for i := 0; i < 3; i++ {
		sess.PumpTPIU(0xFF)
	}
	sess.PumpTPIU(0xFF)
	sess.PumpTPIU(0x7F) // completes the sync pattern, bumps tpiu sync count

	r := NewRegistry()
	Wire(r, sess)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "swotrace_tpiu_sync_count 1")
	assert.Contains(t, body, "swotrace_itm_sync_count")
	assert.Contains(t, body, "swotrace_pmring_held 0")
}

func TestWireReflectsRingWhenPostMortemEnabled(t *testing.T) {
	cfg := config.Default()
	cfg.PostMortem = true
	sess := session.New(logging.Discard, cfg)

	r := NewRegistry()
	Wire(r, sess)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}).ServeHTTP(rec, req)

	assert.Contains(t, rec.Body.String(), "swotrace_pmring_wrapped 0")
}
