package expectation

import (
	"errors"
	"fmt"
	"time"

	"github.com/sophialabs/stubhttp/internal/domain/match"
)

// ErrInvalidStatus is returned for status codes outside 100-599.
var ErrInvalidStatus = errors.New("invalid HTTP status code")

// ValidateStatus reports whether code can be written as a response status.
func ValidateStatus(code int) error {
	if code < 100 || code > 599 {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, code)
	}
	return nil
}

// MockResponse describes the response served when an expectation is
// consumed. It is a value type: the With* methods return modified copies
// and accessors return copies, so a registered response never changes.
type MockResponse struct {
	status   int
	headers  Headers
	body     []byte
	delay    time.Duration
	renderer match.BodyRenderer
}

// NewResponse creates a response with the given status and no body.
func NewResponse(status int) MockResponse {
	return MockResponse{status: status}
}

// WithHeader returns a copy with name set to value.
func (r MockResponse) WithHeader(name, value string) MockResponse {
	r.headers = r.headers.Clone()
	r.headers.Set(name, value)
	return r
}

// WithAddedHeader returns a copy with an extra value appended for name.
func (r MockResponse) WithAddedHeader(name, value string) MockResponse {
	r.headers = r.headers.Clone()
	r.headers.Add(name, value)
	return r
}

// WithHeaders returns a copy whose headers are replaced by h.
func (r MockResponse) WithHeaders(h Headers) MockResponse {
	r.headers = h.Clone()
	return r
}

// WithBody returns a copy with the given body.
func (r MockResponse) WithBody(body []byte) MockResponse {
	r.body = append([]byte(nil), body...)
	return r
}

// WithBodyString returns a copy with the given body.
func (r MockResponse) WithBodyString(body string) MockResponse {
	r.body = []byte(body)
	return r
}

// WithDelay returns a copy that is served after d.
func (r MockResponse) WithDelay(d time.Duration) MockResponse {
	r.delay = d
	return r
}

// WithRenderer returns a copy whose body is produced per request by rd.
func (r MockResponse) WithRenderer(rd match.BodyRenderer) MockResponse {
	r.renderer = rd
	return r
}

func (r MockResponse) Status() int                  { return r.status }
func (r MockResponse) Headers() Headers             { return r.headers.Clone() }
func (r MockResponse) Body() []byte                 { return append([]byte(nil), r.body...) }
func (r MockResponse) Delay() time.Duration         { return r.delay }
func (r MockResponse) Renderer() match.BodyRenderer { return r.renderer }

// Clone returns a deep copy.
func (r MockResponse) Clone() MockResponse {
	r.headers = r.headers.Clone()
	r.body = append([]byte(nil), r.body...)
	return r
}

// Validate checks the status code and delay.
func (r MockResponse) Validate() error {
	if err := ValidateStatus(r.status); err != nil {
		return err
	}
	if r.delay < 0 {
		return fmt.Errorf("negative response delay: %s", r.delay)
	}
	return nil
}
