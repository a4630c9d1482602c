package mockserver

import (
	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/ledger"
	"github.com/sophialabs/stubhttp/internal/domain/match"
)

type (
	// Matcher is a conjunction of request constraints.
	Matcher = match.RequestMatcher
	// Constraint is one condition of a Matcher.
	Constraint = match.Constraint
	// Predicate tests a request body.
	Predicate = match.Predicate
	// Response is the declarative response served by an expectation.
	Response = expectation.MockResponse
	// Times is the cardinality of an expectation.
	Times = expectation.Times
	// Expectation is a registered matcher/response pair.
	Expectation = expectation.Expectation
	// ExpectOption configures an expectation at registration.
	ExpectOption = expectation.Option
	// RecordedRequest is one entry of the request ledger.
	RecordedRequest = ledger.RecordedRequest
	// Outcome classifies how a recorded request was handled.
	Outcome = ledger.Outcome
	// UnsatisfiedError lists the expectations Verify found unsatisfied.
	UnsatisfiedError = expectation.UnsatisfiedError
)

const (
	OutcomeMatched             = ledger.OutcomeMatched
	OutcomeMatchNotFound       = ledger.OutcomeMatchNotFound
	OutcomeCardinalityExceeded = ledger.OutcomeCardinalityExceeded
	OutcomeMalformed           = ledger.OutcomeMalformed
	OutcomeRateLimited         = ledger.OutcomeRateLimited
)

var (
	// ErrUnsatisfied matches any error returned by Verify.
	ErrUnsatisfied   = expectation.ErrUnsatisfied
	ErrZeroTimes     = expectation.ErrZeroTimes
	ErrInvalidStatus = expectation.ErrInvalidStatus
)

// Constraint constructors.
var (
	Method        = match.Method
	Path          = match.Path
	PathPattern   = match.PathPattern
	Header        = match.Header
	HeaderPresent = match.HeaderPresent
	HeaderMatches = match.HeaderMatches
	Query         = match.Query
	Body          = match.Body
	BodyEquals    = match.BodyEquals
	BodyContains  = match.BodyContains
)

// Matcher and response constructors.
var (
	NewMatcher  = match.NewRequestMatcher
	MustMatcher = match.MustRequestMatcher
	NewResponse = expectation.NewResponse
)

// Times constructors.
var (
	Exactly     = expectation.Exactly
	AtLeast     = expectation.AtLeast
	Unbounded   = expectation.Unbounded
	Once        = expectation.Once
	MustExactly = expectation.MustExactly
	MustAtLeast = expectation.MustAtLeast
)

// Expectation options.
var (
	WithID       = expectation.WithID
	WithName     = expectation.WithName
	WithPriority = expectation.WithPriority
)
