package match

import (
	"fmt"
	"regexp"
	"strings"
)

// Predicate tests a string value and returns true if it matches.
type Predicate func(string) bool

// And returns a predicate that requires all predicates to match.
func And(predicates ...Predicate) Predicate {
	return func(s string) bool {
		for _, p := range predicates {
			if !p(s) {
				return false
			}
		}
		return true
	}
}

// Or returns a predicate that requires at least one predicate to match.
func Or(predicates ...Predicate) Predicate {
	return func(s string) bool {
		for _, p := range predicates {
			if p(s) {
				return true
			}
		}
		return false
	}
}

// Not returns a predicate that inverts the given predicate.
func Not(p Predicate) Predicate {
	return func(s string) bool {
		return !p(s)
	}
}

// Always returns a predicate that always matches.
func Always() Predicate {
	return func(string) bool { return true }
}

// Equals matches values identical to expected.
func Equals(expected string) Predicate {
	return func(s string) bool { return s == expected }
}

// Contains matches values holding substr.
func Contains(substr string) Predicate {
	return func(s string) bool { return strings.Contains(s, substr) }
}

// Regex compiles pattern into a predicate.
func Regex(pattern string) (Predicate, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern %q: %w", pattern, err)
	}
	return re.MatchString, nil
}

// BodyRenderer renders a response body dynamically. Nil means static body.
type BodyRenderer interface {
	Render(ctx RenderContext) ([]byte, error)
}

// RenderContext provides request data for dynamic body rendering.
type RenderContext struct {
	Method      string
	Path        string
	Headers     map[string]string
	QueryParams map[string]string
	PathParams  map[string]string
	Body        []byte
	Now         string // ISO-8601 timestamp
}
