package testclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Kind classifies a ClientError.
type Kind int

const (
	KindTransport Kind = iota
	KindTimeout
	KindConnectionRefused
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnectionRefused:
		return "connection refused"
	default:
		return "transport"
	}
}

var (
	// ErrTimeout matches a ClientError of KindTimeout.
	ErrTimeout = errors.New("testclient: timeout")
	// ErrConnectionRefused matches a ClientError of KindConnectionRefused.
	ErrConnectionRefused = errors.New("testclient: connection refused")
)

// ClientError is returned by Send for any failure to obtain a response.
type ClientError struct {
	Kind   Kind
	Method string
	URL    string
	Err    error
}

func (e *ClientError) Error() string {
	return fmt.Sprintf("testclient: %s %s: %s: %v", e.Method, e.URL, e.Kind, e.Err)
}

func (e *ClientError) Unwrap() error { return e.Err }

func (e *ClientError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrConnectionRefused:
		return e.Kind == KindConnectionRefused
	}
	return false
}

func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return KindConnectionRefused
	}
	return KindTransport
}
