// Package api provides the HTTP REST API server for folio.
//
// It exposes endpoints for portfolio return curves, option valuation,
// and raw USD-normalized quote series.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/openfolio/folio/internal/config"
	"github.com/openfolio/folio/internal/options"
	"github.com/openfolio/folio/internal/quote"
	"github.com/openfolio/folio/internal/returns"
	"github.com/openfolio/folio/pkg/models"
	"github.com/openfolio/folio/pkg/utils"
)

// ReturnsEngine computes the portfolio return curve.
type ReturnsEngine interface {
	TotalReturns(ctx context.Context, p *models.Portfolio) (map[string]float64, error)
}

// QuoteFetcher returns USD-normalized daily quote series.
type QuoteFetcher interface {
	FetchQuotes(ctx context.Context, ticker string, start, end time.Time) ([]models.Quote, error)
}

// Server is the HTTP API server.
type Server struct {
	router      chi.Router
	cfg         *config.Config
	engine      ReturnsEngine
	quotes      QuoteFetcher
	simulations int
}

// NewServer creates a configured API server with all routes and middleware.
func NewServer(cfg *config.Config, engine ReturnsEngine, quotes QuoteFetcher) *Server {
	srv := &Server{
		cfg:         cfg,
		engine:      engine,
		quotes:      quotes,
		simulations: cfg.Options.Simulations,
	}
	srv.router = srv.buildRouter()
	return srv
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe starts the HTTP server with graceful shutdown.
func (s *Server) ListenAndServe(addr string) error {
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	return httpSrv.Shutdown(ctx)
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	origins := []string{"*"}
	if len(s.cfg.API.CORSOrigins) > 0 {
		origins = s.cfg.API.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/returns", s.handleReturns)

		r.Route("/options", func(r chi.Router) {
			r.Post("/bs", s.handleBlackScholes)
			r.Post("/kelly", s.handleKelly)
			r.Post("/mc", s.handleMonteCarlo)
		})

		r.Get("/quotes/{ticker}", s.handleQuotes)
	})

	return r
}

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ============================================================
// Handlers
// ============================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"status":  "ok",
			"version": "dev",
		},
	})
}

func (s *Server) handleReturns(w http.ResponseWriter, r *http.Request) {
	var portfolio models.Portfolio
	if err := json.NewDecoder(r.Body).Decode(&portfolio); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validatePortfolio(&portfolio); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	curve, err := s.engine.TotalReturns(ctx, &portfolio)
	if err != nil {
		writeError(w, statusForReturnsError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    curve,
	})
}

// validatePortfolio enforces the data-model invariants the engine
// assumes: a ticker, a positive quantity, and buy not after sell.
func validatePortfolio(p *models.Portfolio) string {
	if len(p.Equities) == 0 {
		return "portfolio is empty"
	}
	for i := range p.Equities {
		eq := &p.Equities[i]
		if eq.Ticker == "" {
			return "ticker is required"
		}
		if eq.Quantity == 0 {
			return fmt.Sprintf("%s: quantity must be positive", eq.Ticker)
		}
		if eq.Sell != nil && dateAfter(eq.Buy.Date, eq.Sell.Date) {
			return fmt.Sprintf("%s: buy date is after sell date", eq.Ticker)
		}
	}
	return ""
}

func dateAfter(a, b models.Date) bool {
	if a.Year != b.Year {
		return a.Year > b.Year
	}
	if a.Month != b.Month {
		return a.Month > b.Month
	}
	return a.Day > b.Day
}

// statusForReturnsError maps the engine's error kinds onto status codes:
// bad input dates are the caller's fault, upstream data failures are a
// bad gateway, anything else is internal.
func statusForReturnsError(err error) int {
	switch {
	case errors.Is(err, returns.ErrInvalidDate):
		return http.StatusBadRequest
	case quote.IsProviderError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) handleBlackScholes(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.decodeContract(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]float64{"price": options.Price(contract)},
	})
}

func (s *Server) handleKelly(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.decodeContract(w, r)
	if !ok {
		return
	}
	fraction, err := options.KellyRatio(contract)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    map[string]float64{"kelly_fraction": fraction},
	})
}

func (s *Server) handleMonteCarlo(w http.ResponseWriter, r *http.Request) {
	contract, ok := s.decodeContract(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"expected_value": options.MonteCarlo(contract, s.simulations, 0),
			"simulations":    s.simulations,
		},
	})
}

// decodeContract parses and validates an option contract body; on
// failure it writes the error response and returns ok=false.
func (s *Server) decodeContract(w http.ResponseWriter, r *http.Request) (models.OptionContract, bool) {
	var contract models.OptionContract
	if err := json.NewDecoder(r.Body).Decode(&contract); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return contract, false
	}
	if contract.Type != models.Call && contract.Type != models.Put {
		writeError(w, http.StatusBadRequest, `type must be "call" or "put"`)
		return contract, false
	}
	if contract.Underlying <= 0 || contract.Strike <= 0 || contract.Volatility <= 0 || contract.Maturity < 1 {
		writeError(w, http.StatusBadRequest, "underlying, strike, volatility must be positive and maturity at least 1")
		return contract, false
	}
	return contract, true
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	ticker := chi.URLParam(r, "ticker")
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	from, err := time.Parse(utils.DayLayout, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date; use YYYY-MM-DD")
		return
	}
	to := time.Now().UTC()
	if v := r.URL.Query().Get("to"); v != "" {
		to, err = time.Parse(utils.DayLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid to date; use YYYY-MM-DD")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	quotes, err := s.quotes.FetchQuotes(ctx, ticker, from, to)
	if err != nil {
		status := http.StatusInternalServerError
		if quote.IsProviderError(err) {
			status = http.StatusBadGateway
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    quotes,
	})
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
