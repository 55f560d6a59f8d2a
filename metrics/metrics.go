// Package metrics exposes a Session's decoder counters as Prometheus
// gauges, grounded on the teacher pack's CounterVec/Gauge registration
// style (see the DMRHub metrics package).
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"swotrace/internal/common"
	"swotrace/logging"
	"swotrace/session"
)

const readHeaderTimeout = 3 * time.Second

// Registry is a private prometheus.Registry holding the metric set this
// package defines, so tests don't pollute prometheus's global default.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates an empty registry; call Wire to attach it to a
// Session before serving it.
func NewRegistry() *Registry {
	return &Registry{reg: prometheus.NewRegistry()}
}

// Wire registers gauges that sample sess's decoder Stats on every
// scrape, via GaugeFunc, so the exported values are always current
// without the pump loop having to push updates itself.
func Wire(r *Registry, sess *session.Session) {
	gauge := func(name, help string, f func() float64) prometheus.GaugeFunc {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, f)
	}

	r.reg.MustRegister(
		gauge("swotrace_tpiu_sync_count", "TPIU sync pattern detections", func() float64 {
			return float64(sess.Frame.Stats().SyncCount)
		}),
		gauge("swotrace_tpiu_lost_sync_total", "TPIU frames abandoned as stale", func() float64 {
			return float64(sess.Frame.Stats().LostSync)
		}),
		gauge("swotrace_tpiu_packets_total", "TPIU frames decoded into packets", func() float64 {
			return float64(sess.Frame.Stats().Packets)
		}),
		gauge("swotrace_itm_sync_count", "ITM sync sequences observed", func() float64 {
			return float64(sess.ITM.Stats().SyncCount)
		}),
		gauge("swotrace_itm_lost_sync_total", "ITM decoder forced resyncs", func() float64 {
			return float64(sess.ITM.Stats().LostSync)
		}),
		gauge("swotrace_itm_packets_total", "ITM messages decoded", func() float64 {
			return float64(sess.ITM.Stats().Packets)
		}),
		gauge("swotrace_itm_overflows_total", "ITM overflow packets observed", func() float64 {
			return float64(sess.ITM.Stats().Overflows)
		}),
		gauge("swotrace_itm_bad_headers_total", "ITM header bytes rejected", func() float64 {
			return float64(sess.ITM.Stats().BadHeaders)
		}),
		gauge("swotrace_pmring_held", "1 if the post-mortem ring is held (single-shot capture complete)", func() float64 {
			return boolFloat(sess.Ring != nil && sess.Ring.Held())
		}),
		gauge("swotrace_pmring_wrapped", "1 if the post-mortem ring has overwritten unread data since release", func() float64 {
			return boolFloat(sess.Ring != nil && sess.Ring.Wrapped())
		}),
	)
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Serve runs the /metrics HTTP endpoint until ctx is cancelled.
// Reconnection and TLS are host-application concerns and out of scope.
func Serve(ctx context.Context, r *Registry, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              ":2113",
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Logf(common.SeverityError, "metrics", "metrics server stopped: %v", err)
	}
}
