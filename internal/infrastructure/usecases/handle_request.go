package usecases

import (
	"context"
	"encoding/json"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/ledger"
	"github.com/sophialabs/stubhttp/internal/domain/match"
	"github.com/sophialabs/stubhttp/internal/domain/trace"
	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
)

// Incoming is a parsed request plus the raw details kept in the ledger.
type Incoming struct {
	Request    *match.IncomingRequest
	RawQuery   string
	Header     map[string][]string
	RemoteAddr string
}

// HandleRequestResult is the outcome of processing a mock request.
type HandleRequestResult struct {
	Outcome ledger.Outcome
	// ExpectationID names the expectation that served or throttled the request.
	ExpectationID string
	Status        int
	Headers       expectation.Headers
	Body          []byte
	Recorded      ledger.RecordedRequest
	TraceEntry    trace.Entry
	// Aborted is set when the request context ended during the response
	// delay. Nothing should be written.
	Aborted bool
}

// HandleRequestUseCase matches, records and answers mock requests.
type HandleRequestUseCase struct {
	registry      *expectation.Registry
	ledger        *ledger.Ledger
	evaluator     *match.Evaluator
	clock         ports.Clock
	rateLimiter   ports.RateLimiter
	metrics       ports.Metrics
	logger        ports.Logger
	traceBuf      *trace.RingBuffer
	noMatchStatus int
}

// NewHandleRequestUseCase creates a new use case. noMatchStatus is served
// when nothing matches; zero means 404.
func NewHandleRequestUseCase(
	registry *expectation.Registry,
	ldg *ledger.Ledger,
	evaluator *match.Evaluator,
	clock ports.Clock,
	rateLimiter ports.RateLimiter,
	metrics ports.Metrics,
	logger ports.Logger,
	traceBuf *trace.RingBuffer,
	noMatchStatus int,
) *HandleRequestUseCase {
	if noMatchStatus == 0 {
		noMatchStatus = http.StatusNotFound
	}
	return &HandleRequestUseCase{
		registry:      registry,
		ledger:        ldg,
		evaluator:     evaluator,
		clock:         clock,
		rateLimiter:   rateLimiter,
		metrics:       metrics,
		logger:        logger,
		traceBuf:      traceBuf,
		noMatchStatus: noMatchStatus,
	}
}

// Execute evaluates in.Request against the registry, consumes the best
// eligible expectation, records the request and honors the response delay.
// The ledger entry is written before Execute returns, so it is visible
// before any response byte is sent.
func (uc *HandleRequestUseCase) Execute(ctx context.Context, in Incoming) HandleRequestResult {
	start := uc.clock.Now()
	req := in.Request

	exps := uc.registry.Snapshot()
	candidates := make([]match.Candidate, len(exps))
	for i, e := range exps {
		candidates[i] = e
	}
	eval := uc.evaluator.Evaluate(req, candidates)

	result := HandleRequestResult{Outcome: ledger.OutcomeMatchNotFound}
	var (
		served   *expectation.Expectation
		resp     expectation.MockResponse
		lostRace []string
	)

	for _, c := range eval.Ranked {
		e := c.(*expectation.Expectation)

		if rl := rateLimitOf(e); rl != nil {
			key := rl.Key
			if key == "" {
				key = e.ID()
			}
			if !uc.rateLimiter.Allow(ctx, key, rl.Rate, rl.Burst) {
				result.Outcome = ledger.OutcomeRateLimited
				result.ExpectationID = e.ID()
				break
			}
		}

		r, ok := e.TryConsume(req)
		if !ok {
			// Another request took the last slot between evaluation and claim.
			lostRace = append(lostRace, e.ID())
			continue
		}
		served, resp = e, r
		break
	}

	var delay time.Duration
	switch {
	case served != nil:
		result.Outcome = ledger.OutcomeMatched
		result.ExpectationID = served.ID()
		result.Status = resp.Status()
		result.Headers = resp.Headers()
		result.Body = uc.renderBody(served, resp, req, start, &result)
		delay = resp.Delay()
		if p := served.Policy(); p != nil && p.Jitter > 0 {
			delay += rand.N(p.Jitter)
		}

	case result.Outcome == ledger.OutcomeRateLimited:
		result.Status = http.StatusTooManyRequests
		result.Headers = expectation.NewHeaders("Content-Type", "application/json", "Retry-After", "1")
		result.Body = mustJSON(map[string]string{"error": "rate limit exceeded", "expectation_id": result.ExpectationID})

	default:
		if len(eval.Exhausted) > 0 || len(lostRace) > 0 {
			result.Outcome = ledger.OutcomeCardinalityExceeded
		}
		result.Status = uc.noMatchStatus
		result.Headers = expectation.NewHeaders("Content-Type", "application/json")
		result.Body = mustJSON(noMatchBody{
			Error:      "no matching expectation",
			Outcome:    result.Outcome,
			Method:     req.Method,
			Path:       req.Path,
			Candidates: eval.Candidates,
		})
	}

	var exhausted []string
	for _, c := range eval.Exhausted {
		exhausted = append(exhausted, c.CandidateID())
	}
	exhausted = append(exhausted, lostRace...)
	var matchedID string
	if served != nil {
		matchedID = served.ID()
	}

	result.Recorded = uc.ledger.Append(ledger.RecordedRequest{
		ID:                   uuid.NewString(),
		Timestamp:            start,
		Method:               req.Method,
		Path:                 req.Path,
		RawQuery:             in.RawQuery,
		Headers:              in.Header,
		Body:                 req.Body,
		RemoteAddr:           in.RemoteAddr,
		MatchedExpectationID: matchedID,
		Outcome:              result.Outcome,
		ExhaustedIDs:         exhausted,
		Status:               result.Status,
	})

	result.TraceEntry = trace.Entry{
		Timestamp:     start,
		Method:        req.Method,
		Path:          req.Path,
		Outcome:       string(result.Outcome),
		ExpectationID: result.ExpectationID,
		Candidates:    eval.Candidates,
	}
	uc.traceBuf.Add(result.TraceEntry)
	uc.logOutcome(result, req)
	uc.updateGauges()

	if delay > 0 {
		if err := uc.clock.SleepContext(ctx, delay); err != nil {
			uc.logger.Debug("response delay cancelled", "expectation", result.ExpectationID, "error", err)
			result.Aborted = true
		}
	}

	uc.metrics.ObserveRequest(req.Method, string(result.Outcome), result.Status, uc.clock.Since(start))
	return result
}

// RecordMalformed records a request whose body or encoding could not be
// read and returns the 400 answer for it.
func (uc *HandleRequestUseCase) RecordMalformed(in Incoming, cause error) HandleRequestResult {
	start := uc.clock.Now()
	req := in.Request

	result := HandleRequestResult{
		Outcome: ledger.OutcomeMalformed,
		Status:  http.StatusBadRequest,
		Headers: expectation.NewHeaders("Content-Type", "application/json"),
		Body:    mustJSON(map[string]string{"error": "malformed request", "detail": cause.Error()}),
	}
	result.Recorded = uc.ledger.Append(ledger.RecordedRequest{
		ID:         uuid.NewString(),
		Timestamp:  start,
		Method:     req.Method,
		Path:       req.Path,
		RawQuery:   in.RawQuery,
		Headers:    in.Header,
		Body:       req.Body,
		RemoteAddr: in.RemoteAddr,
		Outcome:    ledger.OutcomeMalformed,
		Status:     http.StatusBadRequest,
	})
	result.TraceEntry = trace.Entry{
		Timestamp: start,
		Method:    req.Method,
		Path:      req.Path,
		Outcome:   string(ledger.OutcomeMalformed),
	}
	uc.traceBuf.Add(result.TraceEntry)

	uc.logger.Warn("malformed request", "method", req.Method, "path", req.Path, "error", cause)
	uc.metrics.ObserveRequest(req.Method, string(ledger.OutcomeMalformed), http.StatusBadRequest, uc.clock.Since(start))
	return result
}

func (uc *HandleRequestUseCase) renderBody(
	e *expectation.Expectation,
	resp expectation.MockResponse,
	req *match.IncomingRequest,
	now time.Time,
	result *HandleRequestResult,
) []byte {
	renderer := resp.Renderer()
	if renderer == nil {
		return resp.Body()
	}

	out, err := renderer.Render(match.RenderContext{
		Method:      req.Method,
		Path:        req.Path,
		Headers:     req.Headers,
		QueryParams: req.Query,
		PathParams:  e.Matcher().PathParams(req.Path),
		Body:        req.Body,
		Now:         now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		uc.logger.Error("template render failed", "expectation", e.ID(), "error", err)
		result.Status = http.StatusInternalServerError
		result.Headers = expectation.NewHeaders("Content-Type", "application/json")
		return mustJSON(map[string]string{"error": "template render failed", "detail": err.Error()})
	}
	return out
}

func (uc *HandleRequestUseCase) logOutcome(r HandleRequestResult, req *match.IncomingRequest) {
	args := []any{"method", req.Method, "path", req.Path, "status", r.Status}
	switch r.Outcome {
	case ledger.OutcomeMatched:
		uc.logger.Info("request matched", append(args, "expectation", r.ExpectationID)...)
	case ledger.OutcomeRateLimited:
		uc.logger.Info("request rate limited", append(args, "expectation", r.ExpectationID)...)
	case ledger.OutcomeCardinalityExceeded:
		uc.logger.Warn("cardinality exceeded", append(args, "exhausted", r.Recorded.ExhaustedIDs)...)
	default:
		uc.logger.Warn("request unmatched", args...)
	}
}

func (uc *HandleRequestUseCase) updateGauges() {
	exps := uc.registry.Snapshot()
	unsatisfied := 0
	for _, e := range exps {
		if !e.IsSatisfied() {
			unsatisfied++
		}
	}
	uc.metrics.SetExpectations(len(exps), unsatisfied)
}

func rateLimitOf(e *expectation.Expectation) *expectation.RateLimit {
	if p := e.Policy(); p != nil {
		return p.RateLimit
	}
	return nil
}

type noMatchBody struct {
	Error      string                  `json:"error"`
	Outcome    ledger.Outcome          `json:"outcome"`
	Method     string                  `json:"method"`
	Path       string                  `json:"path"`
	Candidates []trace.CandidateResult `json:"candidates"`
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(`{"error":"internal"}`)
	}
	return b
}
