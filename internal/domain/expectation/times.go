package expectation

import (
	"errors"
	"fmt"
)

var (
	// ErrZeroTimes is returned for exactly(0), which can never be satisfied by a request.
	ErrZeroTimes = errors.New("exactly(0) is not a valid cardinality")

	// ErrNegativeTimes is returned for negative counts.
	ErrNegativeTimes = errors.New("cardinality must not be negative")
)

// TimesKind enumerates the cardinality variants.
type TimesKind uint8

const (
	TimesUnbounded TimesKind = iota
	TimesExactly
	TimesAtLeast
)

// Times constrains how often an expectation may be consumed. The zero
// value is Unbounded.
type Times struct {
	kind TimesKind
	n    int64
}

// Exactly permits n consumptions and requires all of them at verification.
func Exactly(n int) (Times, error) {
	switch {
	case n == 0:
		return Times{}, ErrZeroTimes
	case n < 0:
		return Times{}, ErrNegativeTimes
	}
	return Times{kind: TimesExactly, n: int64(n)}, nil
}

// AtLeast requires n consumptions at verification and never stops matching.
func AtLeast(n int) (Times, error) {
	if n < 0 {
		return Times{}, ErrNegativeTimes
	}
	return Times{kind: TimesAtLeast, n: int64(n)}, nil
}

// Unbounded never stops matching and is always satisfied.
func Unbounded() Times {
	return Times{kind: TimesUnbounded}
}

// Once is Exactly(1).
func Once() Times {
	return Times{kind: TimesExactly, n: 1}
}

// MustExactly is like Exactly but panics on an invalid count.
func MustExactly(n int) Times {
	t, err := Exactly(n)
	if err != nil {
		panic(err)
	}
	return t
}

// MustAtLeast is like AtLeast but panics on an invalid count.
func MustAtLeast(n int) Times {
	t, err := AtLeast(n)
	if err != nil {
		panic(err)
	}
	return t
}

// Kind returns the variant.
func (t Times) Kind() TimesKind { return t.kind }

// Count returns the bound carried by Exactly and AtLeast; zero for Unbounded.
func (t Times) Count() int { return int(t.n) }

// PermitsMore reports whether another consumption is allowed after consumed.
func (t Times) PermitsMore(consumed int64) bool {
	if t.kind == TimesExactly {
		return consumed < t.n
	}
	return true
}

// IsSatisfied reports whether consumed meets the lower bound.
func (t Times) IsSatisfied(consumed int64) bool {
	switch t.kind {
	case TimesExactly, TimesAtLeast:
		return consumed >= t.n
	default:
		return true
	}
}

func (t Times) String() string {
	switch t.kind {
	case TimesExactly:
		return fmt.Sprintf("exactly(%d)", t.n)
	case TimesAtLeast:
		return fmt.Sprintf("at_least(%d)", t.n)
	default:
		return "unbounded"
	}
}
