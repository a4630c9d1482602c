package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/ledger"
	"github.com/sophialabs/stubhttp/internal/domain/match"
	"github.com/sophialabs/stubhttp/internal/domain/trace"
	"github.com/sophialabs/stubhttp/internal/infrastructure/outbound/filesystem"
	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
	"github.com/sophialabs/stubhttp/internal/infrastructure/usecases"
)

const maxBodySize = 10 << 20 // 10 MB

// AdminPrefix is where the admin API is mounted. Requests under it are never
// matched against expectations or recorded.
const AdminPrefix = "/__admin"

var errBodyTooLarge = fmt.Errorf("request body exceeds %d bytes", maxBodySize)

// Server is the HTTP front of a mock server: the admin API plus the
// catch-all that dispatches every other request to the expectations.
type Server struct {
	handleReqUC *usecases.HandleRequestUseCase
	registerUC  *usecases.RegisterExpectationsUseCase
	resetUC     *usecases.ResetUseCase
	loadUC      *usecases.LoadExpectationsUseCase
	registry    *expectation.Registry
	ledger      *ledger.Ledger
	traceBuf    *trace.RingBuffer
	metrics     http.Handler
	logger      ports.Logger

	adminDisabled bool
	buildOnce     sync.Once
	router        *chi.Mux
}

// NewServer creates a new Server.
func NewServer(
	handleReqUC *usecases.HandleRequestUseCase,
	registerUC *usecases.RegisterExpectationsUseCase,
	resetUC *usecases.ResetUseCase,
	registry *expectation.Registry,
	ldg *ledger.Ledger,
	traceBuf *trace.RingBuffer,
	logger ports.Logger,
) *Server {
	return &Server{
		handleReqUC: handleReqUC,
		registerUC:  registerUC,
		resetUC:     resetUC,
		registry:    registry,
		ledger:      ldg,
		traceBuf:    traceBuf,
		logger:      logger,
	}
}

// SetReloader enables POST /__admin/reload. Must be called before serving.
func (s *Server) SetReloader(loadUC *usecases.LoadExpectationsUseCase) {
	s.loadUC = loadUC
}

// SetMetricsHandler enables GET /__admin/metrics. Must be called before serving.
func (s *Server) SetMetricsHandler(h http.Handler) {
	s.metrics = h
}

// DisableAdmin turns the admin prefix into an ordinary mock path.
func (s *Server) DisableAdmin() {
	s.adminDisabled = true
}

// BuildRouter creates the chi.Mux with admin and mock routes.
func (s *Server) BuildRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if !s.adminDisabled {
		r.Route(AdminPrefix, func(r chi.Router) {
			r.Use(middleware.RequestID)
			r.NotFound(func(w http.ResponseWriter, r *http.Request) {
				respondError(w, http.StatusNotFound, "not_found", "unknown admin endpoint: "+r.URL.Path)
			})
			r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
				respondError(w, http.StatusMethodNotAllowed, "method_not_allowed", r.Method+" not allowed on "+r.URL.Path)
			})

			r.Get("/health", s.handleHealth)

			r.Get("/expectations", s.handleListExpectations)
			r.Post("/expectations", s.handleCreateExpectations)
			r.Delete("/expectations", s.handleClearExpectations)
			r.Get("/expectations/verify", s.handleVerify)
			r.Get("/expectations/{id}", s.handleGetExpectation)
			r.Delete("/expectations/{id}", s.handleDeleteExpectation)

			r.Get("/requests", s.handleListRequests)
			r.Delete("/requests", s.handleClearRequests)

			r.Get("/trace", s.handleGetTrace)
			r.Post("/reset", s.handleReset)
			r.Post("/reload", s.handleReload)
			r.Get("/metrics", s.handleMetrics)
		})
	}

	// Everything else is a mock request. Methods chi does not know about
	// arrive through MethodNotAllowed.
	r.HandleFunc("/*", s.mockHandler)
	r.MethodNotAllowed(s.mockHandler)

	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.buildOnce.Do(func() { s.router = s.BuildRouter() })
	s.router.ServeHTTP(w, r)
}

func (s *Server) mockHandler(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()

	// net/http lifts Host out of the header map; put it back so header
	// constraints and the ledger see it.
	header := r.Header.Clone()
	if r.Host != "" {
		header.Set("Host", r.Host)
	}
	headers := make(map[string]string, len(header))
	for k := range header {
		headers[http.CanonicalHeaderKey(k)] = header.Get(k)
	}
	in := usecases.Incoming{
		Request: &match.IncomingRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: headers,
		},
		RawQuery:   r.URL.RawQuery,
		Header:     header,
		RemoteAddr: r.RemoteAddr,
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err == nil && len(body) > maxBodySize {
		body, err = body[:maxBodySize], errBodyTooLarge
	}
	in.Request.Body = body
	if err != nil {
		s.writeResult(w, s.handleReqUC.RecordMalformed(in, err))
		return
	}

	query, err := url.ParseQuery(r.URL.RawQuery)
	if err != nil {
		s.writeResult(w, s.handleReqUC.RecordMalformed(in, fmt.Errorf("invalid query string: %w", err)))
		return
	}
	in.Request.Query = firstValues(query)

	result := s.handleReqUC.Execute(r.Context(), in)
	if result.Aborted {
		// Client gone or server forced down. Returning normally would let
		// net/http send an empty 200.
		panic(http.ErrAbortHandler)
	}
	s.writeResult(w, result)
}

func (s *Server) writeResult(w http.ResponseWriter, result usecases.HandleRequestResult) {
	h := w.Header()
	for _, f := range result.Headers.Fields() {
		h.Add(f.Name, f.Value)
	}
	w.WriteHeader(result.Status)
	if _, err := w.Write(result.Body); err != nil {
		s.logger.Debug("failed to write response body", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"expectations": s.registry.Len(),
		"requests":     s.ledger.Len(),
	})
}

func (s *Server) handleListExpectations(w http.ResponseWriter, _ *http.Request) {
	exps := s.registry.Snapshot()
	out := make([]expectation.Snapshot, 0, len(exps))
	for _, e := range exps {
		out = append(out, e.Snapshot())
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExpectation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := s.registry.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "not_found", "expectation not found: "+id)
		return
	}
	respondJSON(w, http.StatusOK, e.Snapshot())
}

// handleCreateExpectations accepts one definition or a list, as JSON or
// YAML (JSON being valid YAML, both go through the same decoder).
func (s *Server) handleCreateExpectations(w http.ResponseWriter, r *http.Request) {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		respondError(w, http.StatusBadRequest, "read_failed", "failed to read request body")
		return
	}

	defs, err := filesystem.DecodeDefinitions(body)
	if err != nil {
		respondError(w, http.StatusBadRequest, "decode_failed", err.Error())
		return
	}
	if len(defs) == 0 {
		respondError(w, http.StatusBadRequest, "decode_failed", "no expectation definitions in request body")
		return
	}

	exps, err := s.registerUC.Execute(defs)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_definition", err.Error())
		return
	}

	out := make([]expectation.Snapshot, 0, len(exps))
	for _, e := range exps {
		out = append(out, e.Snapshot())
	}
	respondJSON(w, http.StatusCreated, out)
}

func (s *Server) handleClearExpectations(w http.ResponseWriter, _ *http.Request) {
	s.resetUC.Execute(usecases.ResetExpectations)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteExpectation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.resetUC.RemoveExpectation(id) {
		respondError(w, http.StatusNotFound, "not_found", "expectation not found: "+id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVerify(w http.ResponseWriter, _ *http.Request) {
	err := s.registry.Verify()
	if err == nil {
		respondJSON(w, http.StatusOK, map[string]any{"satisfied": true})
		return
	}

	var unsat *expectation.UnsatisfiedError
	if !errors.As(err, &unsat) {
		respondError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	respondJSON(w, http.StatusConflict, map[string]any{
		"satisfied":   false,
		"message":     err.Error(),
		"unsatisfied": unsat.Expectations,
	})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var constraints []match.Constraint
	if m := q.Get("method"); m != "" {
		constraints = append(constraints, match.Method(m))
	}
	if p := q.Get("path"); p != "" {
		constraints = append(constraints, match.Path(p))
	}
	if p := q.Get("path_pattern"); p != "" {
		constraints = append(constraints, match.PathPattern(p))
	}
	matcher, err := match.NewRequestMatcher(constraints...)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	recorded := s.ledger.Filter(matcher)
	if outcome := q.Get("outcome"); outcome != "" {
		kept := recorded[:0]
		for _, rr := range recorded {
			if string(rr.Outcome) == outcome {
				kept = append(kept, rr)
			}
		}
		recorded = kept
	}
	if recorded == nil {
		recorded = []ledger.RecordedRequest{}
	}
	respondJSON(w, http.StatusOK, recorded)
}

func (s *Server) handleClearRequests(w http.ResponseWriter, _ *http.Request) {
	s.resetUC.Execute(usecases.ResetRequests)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	n := 10
	if lastParam := r.URL.Query().Get("last"); lastParam != "" {
		if parsed, err := strconv.Atoi(lastParam); err == nil && parsed > 0 {
			n = parsed
		}
	}
	respondJSON(w, http.StatusOK, s.traceBuf.Last(n))
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	scope := usecases.ResetAll
	switch r.URL.Query().Get("scope") {
	case "", "all":
	case "expectations":
		scope = usecases.ResetExpectations
	case "requests":
		scope = usecases.ResetRequests
	default:
		respondError(w, http.StatusBadRequest, "invalid_scope", "scope must be one of all, expectations, requests")
		return
	}
	s.resetUC.Execute(scope)
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "scope": scope.String()})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.loadUC == nil {
		respondError(w, http.StatusNotImplemented, "not_configured", "no definitions directory configured")
		return
	}

	n, err := s.loadUC.Execute(r.Context())
	if err != nil {
		s.logger.Error("reload failed", "error", err)
		respondError(w, http.StatusUnprocessableEntity, "reload_failed", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"message":      "expectations reloaded",
		"expectations": n,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		respondError(w, http.StatusNotFound, "not_configured", "metrics are not enabled")
		return
	}
	s.metrics.ServeHTTP(w, r)
}

func firstValues(values url.Values) map[string]string {
	params := make(map[string]string, len(values))
	for k, v := range values {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}
	return params
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]string{"error": code, "message": message})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
