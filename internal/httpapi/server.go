// Package httpapi exposes the operational read surface: health,
// account state, open positions, recent activity and Prometheus
// metrics.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"tradepulse/internal/persistence"
	"tradepulse/internal/position"
	"tradepulse/internal/risk"
	"tradepulse/internal/telemetry"
)

// Server serves the ops API. All endpoints are read-only except the
// kill-switch reset.
type Server struct {
	account   *risk.Account
	positions *position.Manager
	trades    persistence.TradesRepo
	signals   persistence.SignalsRepo
	metrics   *telemetry.Metrics

	srv *http.Server
}

// New wires the router. trades and signals may be nil when the
// process runs without a database.
func New(listen string, account *risk.Account, positions *position.Manager,
	trades persistence.TradesRepo, signals persistence.SignalsRepo, metrics *telemetry.Metrics) *Server {

	s := &Server{
		account:   account,
		positions: positions,
		trades:    trades,
		signals:   signals,
		metrics:   metrics,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/account", s.handleAccount).Methods(http.MethodGet)
	r.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	r.HandleFunc("/trades/recent", s.handleRecentTrades).Methods(http.MethodGet)
	r.HandleFunc("/signals/recent", s.handleRecentSignals).Methods(http.MethodGet)
	r.HandleFunc("/halt/reset", s.handleHaltReset).Methods(http.MethodPost)
	if metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	s.srv = &http.Server{
		Addr:         listen,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It blocks.
func (s *Server) Start() error {
	log.Info().Str("listen", s.srv.Addr).Msg("ops server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"halted": s.account.Halted(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleAccount(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.account.Snapshot())
}

func (s *Server) handlePositions(w http.ResponseWriter, _ *http.Request) {
	open := s.positions.OpenPositions()
	if open == nil {
		open = []position.Position{}
	}
	writeJSON(w, http.StatusOK, open)
}

func (s *Server) handleRecentTrades(w http.ResponseWriter, r *http.Request) {
	if s.trades == nil {
		writeError(w, http.StatusServiceUnavailable, "trade history not configured")
		return
	}
	trades, err := s.trades.Recent(r.Context(), 100)
	if err != nil {
		log.Error().Err(err).Msg("recent trades query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if trades == nil {
		trades = []position.Trade{}
	}
	writeJSON(w, http.StatusOK, trades)
}

func (s *Server) handleRecentSignals(w http.ResponseWriter, r *http.Request) {
	if s.signals == nil {
		writeError(w, http.StatusServiceUnavailable, "signal history not configured")
		return
	}
	signals, err := s.signals.Recent(r.Context(), 100)
	if err != nil {
		log.Error().Err(err).Msg("recent signals query failed")
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, signals)
}

// handleHaltReset clears a tripped kill switch. Manual operator
// action only.
func (s *Server) handleHaltReset(w http.ResponseWriter, _ *http.Request) {
	s.account.ResetHalt()
	log.Warn().Msg("kill switch reset by operator")
	writeJSON(w, http.StatusOK, map[string]any{"halted": false})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
