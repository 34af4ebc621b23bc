package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Keksclan/goQuoteSquirrel/quote"
	"github.com/Keksclan/goQuoteSquirrel/resolver"
	"github.com/Keksclan/goQuoteSquirrel/worker"
	"github.com/go-chi/chi/v5"
)

// maxBatch bounds the tickers accepted by one request.
const maxBatch = 100

// Defaults for the cron refresh endpoint.
const (
	defaultRefreshLimit = 10
	maxRefreshLimit     = 100
)

type errorResponse struct {
	Error string `json:"error"`
}

// StocksResponse is the body of GET /stocks.
type StocksResponse struct {
	Success map[string]resolver.Result `json:"success"`
	Failed  []string                   `json:"failed"`
}

// Price is one entry of POST /stocks/prices.
type Price struct {
	Price     float64   `json:"price"`
	Source    string    `json:"source"`
	QueryTime time.Time `json:"queryTime"`
}

// PricesResponse is the body of POST /stocks/prices.
type PricesResponse struct {
	Prices map[string]Price `json:"prices"`
	Failed []string         `json:"failed"`
}

type pricesRequest struct {
	Symbols []string `json:"symbols"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Checks     map[string]string `json:"checks"`
	QueueDepth *int              `json:"queueDepth,omitempty"`
	Worker     *bool             `json:"workerRunning,omitempty"`
}

// RefreshResponse is the body of POST /cron/refresh.
type RefreshResponse struct {
	Success   bool                   `json:"success"`
	Processed int                    `json:"processed"`
	Outcomes  map[worker.Outcome]int `json:"outcomes"`
}

// handleStocks resolves a comma-separated batch.
// GET /stocks?tickers=AAPL,MSFT
func (s *Server) handleStocks(w http.ResponseWriter, r *http.Request) {
	tickers := splitTickers(r.URL.Query().Get("tickers"))
	if len(tickers) == 0 {
		s.writeError(w, http.StatusBadRequest, "query parameter tickers is required")
		return
	}
	if len(tickers) > maxBatch {
		s.writeError(w, http.StatusBadRequest, "too many tickers")
		return
	}

	b := s.cfg.Resolver.ResolveMany(r.Context(), tickers)
	resp := StocksResponse{Success: make(map[string]resolver.Result, len(b.Succeeded)), Failed: b.Failed}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}
	for _, res := range b.Succeeded {
		resp.Success[res.Ticker] = res
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleStock resolves one ticker.
// GET /stocks/{ticker}
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	res, err := s.cfg.Resolver.ResolveOne(r.Context(), chi.URLParam(r, "ticker"))
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusOK, res)
	case errors.Is(err, quote.ErrEmptySymbol):
		s.writeError(w, http.StatusBadRequest, "ticker is required")
	case errors.Is(err, resolver.ErrNotResolvable):
		s.writeError(w, http.StatusNotFound, "ticker not found")
	case errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, "timed out")
	default:
		s.log.Error().Err(err).Msg("resolve failed")
		s.writeError(w, http.StatusInternalServerError, "failed to resolve ticker")
	}
}

// handlePrices returns only the price, source and fetch time per symbol.
// POST /stocks/prices {"symbols": ["AAPL"]}
func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	var req pricesRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Symbols) == 0 {
		s.writeError(w, http.StatusBadRequest, "symbols array is required and cannot be empty")
		return
	}
	if len(req.Symbols) > maxBatch {
		s.writeError(w, http.StatusBadRequest, "too many symbols")
		return
	}

	b := s.cfg.Resolver.ResolveMany(r.Context(), req.Symbols)
	resp := PricesResponse{Prices: make(map[string]Price, len(b.Succeeded)), Failed: b.Failed}
	if resp.Failed == nil {
		resp.Failed = []string{}
	}
	for _, res := range b.Succeeded {
		resp.Prices[res.Ticker] = Price{
			Price:     res.Quote.Price,
			Source:    res.Metadata.Source,
			QueryTime: res.Metadata.FetchedAt,
		}
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleHealth reports reachability of the cache and queue and whether the
// worker runs. Any failed check turns the response into a 503.
// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "healthy", Timestamp: s.now().UTC(), Checks: map[string]string{}}
	if s.cfg.Cache != nil {
		resp.Checks["cache"] = check(s.cfg.Cache.Ping(ctx))
	}
	if s.cfg.Queue != nil {
		n, err := s.cfg.Queue.Len(ctx)
		resp.Checks["queue"] = check(err)
		if err == nil {
			resp.QueueDepth = &n
		}
	}
	if s.cfg.Worker != nil {
		running := s.cfg.Worker.Running()
		resp.Worker = &running
		if running {
			resp.Checks["worker"] = "ok"
		} else {
			resp.Checks["worker"] = "stopped"
		}
	}

	code := http.StatusOK
	for _, v := range resp.Checks {
		if v != "ok" {
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	s.writeJSON(w, code, resp)
}

// handleCronRefresh lets an external scheduler drain part of the refresh
// queue. The shared secret comes from a bearer token or the secret query
// parameter.
// POST /cron/refresh?limit=10
func (s *Server) handleCronRefresh(w http.ResponseWriter, r *http.Request) {
	if s.cfg.CronSecret == "" {
		s.log.Error().Msg("cron refresh called but no cron secret is configured")
		s.writeError(w, http.StatusInternalServerError, "cron secret not configured")
		return
	}
	provided := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	if provided == "" {
		provided = r.URL.Query().Get("secret")
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(s.cfg.CronSecret)) != 1 {
		s.writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	limit := defaultRefreshLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxRefreshLimit)
		}
	}

	resp := RefreshResponse{Success: true, Outcomes: map[worker.Outcome]int{}}
	for range limit {
		if r.Context().Err() != nil {
			break
		}
		out := s.cfg.Worker.Tick(r.Context())
		resp.Outcomes[out]++
		if out == worker.OutcomeIdle || out == worker.OutcomeMarketClosed {
			break
		}
		resp.Processed++
	}
	s.log.Info().Int("processed", resp.Processed).Interface("outcomes", resp.Outcomes).Msg("cron refresh finished")
	s.writeJSON(w, http.StatusOK, resp)
}

func check(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func splitTickers(raw string) []string {
	var out []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
