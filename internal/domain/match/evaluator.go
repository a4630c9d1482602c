package match

import (
	"sort"

	"github.com/sophialabs/stubhttp/internal/domain/trace"
)

// Candidate is anything the evaluator can rank: a matcher plus the
// bookkeeping needed to decide eligibility and order.
type Candidate interface {
	CandidateID() string
	CandidateName() string
	Matcher() RequestMatcher
	Priority() int
	// Eligible reports whether the candidate may still be consumed.
	Eligible() bool
}

// EvalResult holds the outcome of evaluating candidates against a request.
type EvalResult struct {
	// Ranked lists eligible matching candidates, best first.
	Ranked []Candidate
	// Exhausted lists candidates whose matcher held but which were no longer eligible.
	Exhausted  []Candidate
	Candidates []trace.CandidateResult
}

// Evaluator ranks candidates against incoming requests.
type Evaluator struct{}

// NewEvaluator creates a new Evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

// Evaluate runs every candidate against req. Candidates must be given in
// registration order: ranking is priority desc, then specificity desc, and
// the stable sort leaves registration order as the final tie-break.
func (e *Evaluator) Evaluate(req *IncomingRequest, candidates []Candidate) EvalResult {
	result := EvalResult{
		Candidates: make([]trace.CandidateResult, 0, len(candidates)),
	}

	for _, c := range candidates {
		cr := trace.CandidateResult{
			ExpectationID: c.CandidateID(),
			Name:          c.CandidateName(),
			Matched:       true,
		}

		if failed, ok := c.Matcher().Check(req); !ok {
			cr.Matched = false
			cr.FailedConstraint = failed.String()
			cr.FailedReason = describeMismatch(failed, req)
		} else if !c.Eligible() {
			cr.Exhausted = true
			result.Exhausted = append(result.Exhausted, c)
		} else {
			result.Ranked = append(result.Ranked, c)
		}

		result.Candidates = append(result.Candidates, cr)
	}

	Rank(result.Ranked)
	return result
}

// Rank sorts candidates best first in place.
func Rank(cs []Candidate) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].Priority() != cs[j].Priority() {
			return cs[i].Priority() > cs[j].Priority()
		}
		return cs[i].Matcher().Specificity().Compare(cs[j].Matcher().Specificity()) > 0
	})
}

func describeMismatch(c Constraint, req *IncomingRequest) string {
	switch c.Kind {
	case KindMethod:
		return "method was " + req.Method
	case KindPathExact, KindPathPattern:
		return "path was " + req.Path
	case KindHeaderExact, KindHeaderPresent, KindHeaderPattern:
		if v, ok := req.Header(c.Name); ok {
			return "header value was " + v
		}
		return "header missing"
	case KindQueryExact:
		if v, ok := req.QueryParam(c.Name); ok {
			return "query value was " + v
		}
		return "query parameter missing"
	default:
		return "body did not satisfy predicate"
	}
}
