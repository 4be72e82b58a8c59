package telemetry

import (
	"fmt"
	"net/http"
	_ "net/http/pprof"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lyzr/agentflow/common/logger"
)

// Telemetry exposes Prometheus metrics and pprof on a side listener,
// separate from the service port.
type Telemetry struct {
	log  *logger.Logger
	addr string
}

// New creates the telemetry listener
func New(metricsPort int, log *logger.Logger) *Telemetry {
	return &Telemetry{
		log:  log,
		addr: fmt.Sprintf(":%d", metricsPort),
	}
}

// Start serves /metrics (and the pprof handlers registered on the
// default mux) in a background goroutine.
func (t *Telemetry) Start() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/debug/pprof/", http.DefaultServeMux)

	go func() {
		t.log.Info("metrics listener starting", "addr", t.addr)
		if err := http.ListenAndServe(t.addr, mux); err != nil {
			t.log.Error("metrics listener error", "error", err)
		}
	}()
}
