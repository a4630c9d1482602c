package expectation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsatisfied matches any *UnsatisfiedError via errors.Is.
var ErrUnsatisfied = errors.New("unsatisfied expectations")

// Unsatisfied describes one expectation whose lower bound was not met.
type Unsatisfied struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Matcher  string `json:"matcher"`
	Times    string `json:"times"`
	Consumed int64  `json:"consumed"`
}

// UnsatisfiedError lists every unsatisfied expectation found by Verify.
type UnsatisfiedError struct {
	Expectations []Unsatisfied
}

func (e *UnsatisfiedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d unsatisfied expectation(s):", len(e.Expectations))
	for _, u := range e.Expectations {
		label := u.ID
		if u.Name != "" {
			label = u.Name + " (" + u.ID + ")"
		}
		fmt.Fprintf(&b, "\n  %s: %s wanted %s, consumed %d", label, u.Matcher, u.Times, u.Consumed)
	}
	return b.String()
}

func (e *UnsatisfiedError) Is(target error) bool {
	return target == ErrUnsatisfied
}

// Verify collects every expectation whose Times lower bound is unmet. It
// returns nil when all are satisfied, otherwise an *UnsatisfiedError.
func Verify(exps []*Expectation) error {
	var missing []Unsatisfied
	for _, e := range exps {
		consumed := e.consumed.Load()
		if e.times.IsSatisfied(consumed) {
			continue
		}
		missing = append(missing, Unsatisfied{
			ID:       e.id,
			Name:     e.name,
			Matcher:  e.matcher.String(),
			Times:    e.times.String(),
			Consumed: consumed,
		})
	}
	if len(missing) == 0 {
		return nil
	}
	return &UnsatisfiedError{Expectations: missing}
}
