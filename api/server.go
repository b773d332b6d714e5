// Package api exposes a small HTTP status surface over a running
// shardconsensusd process: liveness, a JSON status summary, and a
// prometheus scrape endpoint.
package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// StatusProvider is the narrow view of host.Host the status endpoint
// needs, kept as an interface here so api doesn't import host.
type StatusProvider interface {
	Status() (Status, error)
}

// Status mirrors host.Status's shape; defined independently so api has
// no compile-time dependency on the host package.
type Status struct {
	InFlight    int    `json:"in_flight"`
	LatestStore uint32 `json:"latest_store_id"`
	HasLatest   bool   `json:"has_latest"`
}

// Options configures the status server.
type Options struct {
	// AllowedOrigins is passed straight to rs/cors; nil or empty allows
	// every origin, as does []string{"*"}.
	AllowedOrigins []string
}

// NewServer builds an *http.Server exposing /healthz, /status, and
// /metrics, wrapped in combined-log and panic-recovery middleware and
// restricted to Options.AllowedOrigins by CORS.
func NewServer(addr string, provider StatusProvider, reg prometheus.Gatherer, opts Options, accessLog io.Writer) *http.Server {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", handleStatus(provider)).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	c := cors.New(cors.Options{AllowedOrigins: opts.AllowedOrigins})

	var handler http.Handler = r
	handler = c.Handler(handler)
	handler = handlers.RecoveryHandler()(handler)
	if accessLog != nil {
		handler = handlers.CombinedLoggingHandler(accessLog, handler)
	}

	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func handleStatus(provider StatusProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := provider.Status()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(st)
	}
}
