package main

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/validatorlabs/solana-validator-exporter/pkg/rpc"
	"github.com/validatorlabs/solana-validator-exporter/pkg/slog"
)

const (
	exporterName    = "Solana Validator Exporter"
	exporterVersion = "1.0.0"
)

// Server is the exporter's HTTP surface: the Prometheus scrape endpoint,
// the leader-slot window JSON, liveness, and service info.
type Server struct {
	config    *ExporterConfig
	rpcClient *rpc.Client
	registry  *prometheus.Registry
	logger    *zap.SugaredLogger
}

func NewServer(config *ExporterConfig, rpcClient *rpc.Client, collector *SolanaCollector) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collector)
	return &Server{
		config:    config,
		rpcClient: rpcClient,
		registry:  registry,
		logger:    slog.Get(),
	}
}

// Handler builds the exporter's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/blocks", s.handleBlocks)
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.HTTPErrorOnError,
		ErrorLog:      zap.NewStdLog(s.logger.Desugar()),
	}))
	return mux
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"name":         exporterName,
		"version":      exporterVersion,
		"metrics_path": "/metrics",
		"health_path":  "/health",
		"blocks_path":  "/blocks",
	})
}

// handleHealth reports process liveness only; it deliberately does not
// check RPC reachability.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleBlocks(w http.ResponseWriter, r *http.Request) {
	window, err := buildLeaderSlotWindow(r.Context(), s.rpcClient, s.config.IdentityKey)
	if err != nil {
		s.logger.Errorf("failed to build leader slot window: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Get().Errorf("failed to encode response: %v", err)
	}
}
