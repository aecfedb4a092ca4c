package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"time"

	"github.com/unknownsaying/meshsync/internal/infra/buildinfo"
	"github.com/unknownsaying/meshsync/internal/telemetry/metric"
)

// Observability is the sidecar HTTP listener: Prometheus metrics,
// health, and build info. It binds to a separate address from the
// game traffic so operators can firewall it independently.
type Observability struct {
	httpServer *http.Server
}

// NewObservability builds the listener for the given server. extra
// handlers (such as a WebSocket bridge) may be mounted by path.
func NewObservability(addr string, srv *Server, m *metric.Metrics, extra map[string]http.Handler) *Observability {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if srv.stopped() {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":   "ok",
			"peers":    srv.registry.Count(),
			"entities": srv.table.Len(),
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(buildinfo.Get())
	})
	for path, h := range extra {
		mux.Handle(path, h)
	}

	return &Observability{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// EnableTLS makes the listener serve HTTPS, resolving the certificate
// per handshake so a rotated key pair takes effect immediately. Call
// before ListenAndServe.
func (o *Observability) EnableTLS(getCert func(*tls.ClientHelloInfo) (*tls.Certificate, error)) {
	o.httpServer.TLSConfig = &tls.Config{
		GetCertificate: getCert,
		MinVersion:     tls.VersionTLS12,
	}
}

// ListenAndServe starts the listener. It blocks like
// http.Server.ListenAndServe and returns http.ErrServerClosed on
// graceful shutdown.
func (o *Observability) ListenAndServe() error {
	if o.httpServer.TLSConfig != nil {
		return o.httpServer.ListenAndServeTLS("", "")
	}
	return o.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the listener.
func (o *Observability) Shutdown(ctx context.Context) error {
	return o.httpServer.Shutdown(ctx)
}
