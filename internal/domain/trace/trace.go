package trace

import "time"

// Entry records how a single request was evaluated against the registry.
type Entry struct {
	Timestamp     time.Time         `json:"timestamp"`
	Method        string            `json:"method"`
	Path          string            `json:"path"`
	Outcome       string            `json:"outcome"`
	ExpectationID string            `json:"expectation_id,omitempty"`
	Candidates    []CandidateResult `json:"candidates"`
}

// CandidateResult records the evaluation result for a single expectation.
type CandidateResult struct {
	ExpectationID    string `json:"expectation_id"`
	Name             string `json:"name,omitempty"`
	Matched          bool   `json:"matched"`
	Exhausted        bool   `json:"exhausted,omitempty"`
	FailedConstraint string `json:"failed_constraint,omitempty"`
	FailedReason     string `json:"failed_reason,omitempty"`
}
