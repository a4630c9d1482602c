package expectation

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

var _ match.Candidate = (*Expectation)(nil)

// Policy holds optional serving behavior beyond the response itself.
type Policy struct {
	RateLimit *RateLimit
	// Jitter adds a random delay in [0, Jitter) on top of the response delay.
	Jitter time.Duration
}

// RateLimit configures token-bucket throttling for an expectation.
type RateLimit struct {
	Rate  float64
	Burst int
	// Key groups expectations sharing one bucket; empty means the expectation ID.
	Key string
}

// Expectation binds a matcher to a response under a cardinality constraint.
// The consumption counter is the only mutable state and is updated atomically.
type Expectation struct {
	id       string
	name     string
	group    string
	priority int
	seq      uint64
	matcher  match.RequestMatcher
	response MockResponse
	times    Times
	policy   *Policy
	created  time.Time

	consumed atomic.Int64
}

// Option customizes an Expectation at construction.
type Option func(*Expectation)

// WithID overrides the generated UUID.
func WithID(id string) Option {
	return func(e *Expectation) { e.id = id }
}

// WithName sets a human-readable name used in diagnostics.
func WithName(name string) Option {
	return func(e *Expectation) { e.name = name }
}

// WithPriority ranks the expectation above lower priorities regardless of specificity.
func WithPriority(p int) Option {
	return func(e *Expectation) { e.priority = p }
}

// WithPolicy attaches rate limiting or jitter.
func WithPolicy(p *Policy) Option {
	return func(e *Expectation) { e.policy = p }
}

// WithGroup tags the expectation so it can be replaced as a set.
func WithGroup(g string) Option {
	return func(e *Expectation) { e.group = g }
}

// New creates an Expectation. The response must carry a valid status.
func New(m match.RequestMatcher, r MockResponse, t Times, opts ...Option) (*Expectation, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	e := &Expectation{
		matcher:  m,
		response: r.Clone(),
		times:    t,
		created:  time.Now(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.id == "" {
		e.id = uuid.NewString()
	}
	if e.policy != nil && e.policy.RateLimit != nil && e.policy.RateLimit.Rate <= 0 {
		return nil, fmt.Errorf("expectation %q: rate limit must be positive", e.id)
	}
	return e, nil
}

// TryConsume returns a copy of the bound response if req matches and the
// cardinality still permits consumption. Concurrent callers can never push
// an Exactly(n) expectation past n.
func (e *Expectation) TryConsume(req *match.IncomingRequest) (MockResponse, bool) {
	if !e.matcher.Matches(req) {
		return MockResponse{}, false
	}
	if !e.claim() {
		return MockResponse{}, false
	}
	return e.response.Clone(), true
}

func (e *Expectation) claim() bool {
	for {
		cur := e.consumed.Load()
		if !e.times.PermitsMore(cur) {
			return false
		}
		if e.consumed.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// IsSatisfied reports whether the lower bound of Times has been met.
func (e *Expectation) IsSatisfied() bool {
	return e.times.IsSatisfied(e.consumed.Load())
}

// Eligible reports whether another consumption is currently permitted.
func (e *Expectation) Eligible() bool {
	return e.times.PermitsMore(e.consumed.Load())
}

func (e *Expectation) ID() string                    { return e.id }
func (e *Expectation) Name() string                  { return e.name }
func (e *Expectation) Group() string                 { return e.group }
func (e *Expectation) Priority() int                 { return e.priority }
func (e *Expectation) Matcher() match.RequestMatcher { return e.matcher }
func (e *Expectation) Times() Times                  { return e.times }
func (e *Expectation) Policy() *Policy               { return e.policy }
func (e *Expectation) Consumed() int64               { return e.consumed.Load() }
func (e *Expectation) Response() MockResponse        { return e.response.Clone() }

// Seq is the registration sequence number assigned by a Registry.
func (e *Expectation) Seq() uint64 { return e.seq }

func (e *Expectation) CandidateID() string   { return e.id }
func (e *Expectation) CandidateName() string { return e.name }

// Snapshot is a point-in-time view of an expectation for listings.
type Snapshot struct {
	ID        string    `json:"id"`
	Name      string    `json:"name,omitempty"`
	Group     string    `json:"group,omitempty"`
	Priority  int       `json:"priority"`
	Matcher   string    `json:"matcher"`
	Times     string    `json:"times"`
	Status    int       `json:"status"`
	Consumed  int64     `json:"consumed"`
	Satisfied bool      `json:"satisfied"`
	Eligible  bool      `json:"eligible"`
	CreatedAt time.Time `json:"created_at"`
}

// Snapshot captures the current state.
func (e *Expectation) Snapshot() Snapshot {
	consumed := e.consumed.Load()
	return Snapshot{
		ID:        e.id,
		Name:      e.name,
		Group:     e.group,
		Priority:  e.priority,
		Matcher:   e.matcher.String(),
		Times:     e.times.String(),
		Status:    e.response.status,
		Consumed:  consumed,
		Satisfied: e.times.IsSatisfied(consumed),
		Eligible:  e.times.PermitsMore(consumed),
		CreatedAt: e.created,
	}
}
