package server

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ogulcanaydogan/credit-guardian/pkg/model"
	"github.com/ogulcanaydogan/credit-guardian/pkg/monitor"
	"github.com/ogulcanaydogan/credit-guardian/pkg/storage"
	"golang.org/x/time/rate"
)

// Defaults for Options.
const (
	DefaultRefreshCooldown = 30 * time.Second
	DefaultRefreshInterval = time.Hour

	apiKeyHeader   = "X-API-Key"
	requestTimeout = 10 * time.Second
	staleFactor    = 3
)

// Options configures the API server.
type Options struct {
	// APIKey, when set, is required in X-API-Key for state-changing endpoints.
	APIKey          string
	RefreshCooldown time.Duration
	// RefreshInterval is the scheduler period; data older than three of them is stale.
	RefreshInterval time.Duration
	// Storage backs the history endpoints; nil disables them.
	Storage storage.Storage
	// Metrics serves /metrics when non-nil.
	Metrics http.Handler
	Now     func() time.Time
}

// Server provides the query API over the latest check results.
type Server struct {
	svc     *monitor.Service
	opts    Options
	limiter *rate.Limiter
	mux     *http.ServeMux
	hub     *hub
	logger  *slog.Logger
}

// NewServer creates an API server.
func NewServer(svc *monitor.Service, logger *slog.Logger, opts Options) *Server {
	if opts.RefreshCooldown <= 0 {
		opts.RefreshCooldown = DefaultRefreshCooldown
	}
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = DefaultRefreshInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:     svc,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.RefreshCooldown), 1),
		mux:     http.NewServeMux(),
		logger:  logger.With("component", "server"),
	}
	s.hub = newHub(svc, s.logger)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /api/credits", s.handleCredits)
	s.mux.HandleFunc("GET /api/subscriptions", s.handleSubscriptions)
	s.mux.HandleFunc("POST /api/refresh", s.requireKey(s.handleRefresh))
	s.mux.HandleFunc("POST /api/scan", s.requireKey(s.handleScan))
	s.mux.HandleFunc("GET /api/circuits", s.handleCircuits)
	s.mux.HandleFunc("GET /api/history/balance", s.handleBalanceHistory)
	s.mux.HandleFunc("GET /api/history/alerts", s.handleAlertHistory)
	s.mux.HandleFunc("GET /api/history/trend/{project_id}", s.handleTrend)
	s.mux.HandleFunc("GET /ws", s.hub.serve)
	if s.opts.Metrics != nil {
		s.mux.Handle("GET /metrics", s.opts.Metrics)
	}
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Close disconnects WebSocket clients.
func (s *Server) Close() { s.hub.close() }

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	snap := s.svc.GetLatestBalanceSnapshot()
	hasData := !snap.LastUpdate.IsZero()
	stale := hasData && s.opts.Now().Sub(snap.LastUpdate) > staleFactor*s.opts.RefreshInterval

	status, code := "ok", http.StatusOK
	switch {
	case !hasData:
		status, code = "initializing", http.StatusServiceUnavailable
	case stale:
		status, code = "degraded", http.StatusServiceUnavailable
	}

	body := map[string]any{
		"status":     status,
		"has_data":   hasData,
		"data_stale": stale,
	}
	if hasData {
		body["last_update"] = snap.LastUpdate.UTC().Format(time.RFC3339)
	}
	writeJSON(w, code, body)
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, s.svc.GetLatestBalanceSnapshot())
}

func (s *Server) handleSubscriptions(w http.ResponseWriter, r *http.Request) {
	writeCached(w, r, s.svc.GetLatestSubscriptionSnapshot())
}

func (s *Server) handleCircuits(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"circuits": s.svc.Circuits()})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if wait, ok := s.allowRefresh(); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":       "refresh rate limited",
			"retry_after": math.Ceil(wait.Seconds()),
		})
		return
	}

	q := r.URL.Query()
	project := strings.TrimSpace(q.Get("project"))
	results, err := s.svc.TriggerRefresh(r.Context(), project, boolParam(q.Get("dry_run"), false))
	if err != nil {
		if errors.Is(err, monitor.ErrUnknownProject) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Error("refresh failed", "project", project, "error", err)
		writeError(w, http.StatusInternalServerError, "refresh failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"count":   len(results),
		"results": results,
	})
}

// allowRefresh consumes a refresh token or reports how long until one is available.
func (s *Server) allowRefresh() (time.Duration, bool) {
	now := s.opts.Now()
	res := s.limiter.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	days := intParam(q.Get("days"), 1)
	summary := s.svc.ScanMailboxes(r.Context(), days, boolParam(q.Get("dry_run"), true))
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleBalanceHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filter := historyFilter(r, s.opts.Now())
	records, err := s.opts.Storage.BalanceHistory(ctx, filter)
	if err != nil {
		s.logger.Error("query balance history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(records), "records": records})
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	filter := historyFilter(r, s.opts.Now())
	filter.AlertType = r.URL.Query().Get("alert_type")
	records, err := s.opts.Storage.AlertHistory(ctx, filter)
	if err != nil {
		s.logger.Error("query alert history", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(records), "records": records})
}

func (s *Server) handleTrend(w http.ResponseWriter, r *http.Request) {
	if !s.historyEnabled(w) {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	trend, err := s.opts.Storage.BalanceTrend(ctx, r.PathValue("project_id"), intParam(r.URL.Query().Get("days"), 30))
	if err != nil {
		s.logger.Error("query balance trend", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, trend)
}

func (s *Server) historyEnabled(w http.ResponseWriter) bool {
	if s.opts.Storage == nil {
		writeError(w, http.StatusServiceUnavailable, "history storage is disabled")
		return false
	}
	return true
}

func (s *Server) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey != "" {
			got := r.Header.Get(apiKeyHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.APIKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "invalid or missing API key")
				return
			}
		}
		next(w, r)
	}
}

func historyFilter(r *http.Request, now time.Time) model.HistoryFilter {
	q := r.URL.Query()
	return model.HistoryFilter{
		ProjectID: q.Get("project_id"),
		Provider:  q.Get("provider"),
		Since:     model.DaysAgo(now, intParam(q.Get("days"), 7)),
		Limit:     intParam(q.Get("limit"), 100),
	}
}

// writeCached writes v as JSON with a content ETag, answering 304 when the
// client already holds the same representation.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode response")
		return
	}
	sum := sha256.Sum256(body)
	etag := `"` + hex.EncodeToString(sum[:16]) + `"`

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	if etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func etagMatches(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag || candidate == "*" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intParam(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func boolParam(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}
