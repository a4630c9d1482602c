package ledger

import (
	"net/textproto"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

// Outcome classifies how a recorded request was handled.
type Outcome string

const (
	OutcomeMatched             Outcome = "matched"
	OutcomeMatchNotFound       Outcome = "match_not_found"
	OutcomeCardinalityExceeded Outcome = "cardinality_exceeded"
	OutcomeMalformed           Outcome = "malformed"
	OutcomeRateLimited         Outcome = "rate_limited"
)

// RecordedRequest is an immutable snapshot of a received request.
type RecordedRequest struct {
	ID         string              `json:"id"`
	Seq        uint64              `json:"seq"`
	Timestamp  time.Time           `json:"timestamp"`
	Method     string              `json:"method"`
	Path       string              `json:"path"`
	RawQuery   string              `json:"raw_query,omitempty"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body,omitempty"`
	RemoteAddr string              `json:"remote_addr,omitempty"`

	// MatchedExpectationID is empty when no expectation was consumed.
	MatchedExpectationID string  `json:"matched_expectation_id,omitempty"`
	Outcome              Outcome `json:"outcome"`
	// ExhaustedIDs lists expectations whose matcher held but whose cardinality was used up.
	ExhaustedIDs []string `json:"exhausted_ids,omitempty"`
	Status       int      `json:"status"`
}

// Matched reports whether an expectation served this request.
func (r RecordedRequest) Matched() bool {
	return r.MatchedExpectationID != ""
}

// Header returns the first value of a header, case-insensitively.
func (r RecordedRequest) Header(name string) string {
	for k, vs := range r.Headers {
		if len(vs) > 0 && strings.EqualFold(k, name) {
			return vs[0]
		}
	}
	return ""
}

// Request rebuilds the domain request so matchers can be re-evaluated.
func (r RecordedRequest) Request() *match.IncomingRequest {
	req := &match.IncomingRequest{
		Method:  r.Method,
		Path:    r.Path,
		Query:   make(map[string]string),
		Headers: make(map[string]string, len(r.Headers)),
		Body:    r.Body,
	}
	if values, err := url.ParseQuery(r.RawQuery); err == nil {
		for k, vs := range values {
			if len(vs) > 0 {
				req.Query[k] = vs[0]
			}
		}
	}
	for k, vs := range r.Headers {
		if len(vs) > 0 {
			req.Headers[textproto.CanonicalMIMEHeaderKey(k)] = vs[0]
		}
	}
	return req
}

func (r RecordedRequest) clone() RecordedRequest {
	out := r
	if r.Headers != nil {
		out.Headers = make(map[string][]string, len(r.Headers))
		for k, vs := range r.Headers {
			out.Headers[k] = slices.Clone(vs)
		}
	}
	out.Body = slices.Clone(r.Body)
	out.ExhaustedIDs = slices.Clone(r.ExhaustedIDs)
	return out
}

// Ledger is the append-only record of requests received by one server.
// Reads return deep copies, so callers see a consistent snapshot while
// requests keep arriving.
type Ledger struct {
	mu      sync.RWMutex
	entries []RecordedRequest
	seq     uint64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append stores a copy of r, assigning the next sequence number, and
// returns the stored copy.
func (l *Ledger) Append(r RecordedRequest) RecordedRequest {
	stored := r.clone()

	l.mu.Lock()
	l.seq++
	stored.Seq = l.seq
	l.entries = append(l.entries, stored)
	l.mu.Unlock()

	return stored.clone()
}

// All returns every recorded request in arrival order.
func (l *Ledger) All() []RecordedRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]RecordedRequest, len(l.entries))
	for i, r := range l.entries {
		out[i] = r.clone()
	}
	return out
}

// Filter returns recorded requests that m matches, in arrival order.
func (l *Ledger) Filter(m match.RequestMatcher) []RecordedRequest {
	var out []RecordedRequest
	for _, r := range l.All() {
		if m.Matches(r.Request()) {
			out = append(out, r)
		}
	}
	return out
}

// CountMatching returns how many recorded requests m matches.
func (l *Ledger) CountMatching(m match.RequestMatcher) int {
	l.mu.RLock()
	snapshot := slices.Clone(l.entries)
	l.mu.RUnlock()

	n := 0
	for _, r := range snapshot {
		if m.Matches(r.Request()) {
			n++
		}
	}
	return n
}

// Last returns the most recent recorded request.
func (l *Ledger) Last() (RecordedRequest, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return RecordedRequest{}, false
	}
	return l.entries[len(l.entries)-1].clone(), true
}

// Len returns the number of recorded requests.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Reset drops every recorded request. Sequence numbers keep increasing.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Counts tallies recorded requests per outcome.
func (l *Ledger) Counts() map[Outcome]int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make(map[Outcome]int)
	for _, r := range l.entries {
		out[r.Outcome]++
	}
	return out
}
