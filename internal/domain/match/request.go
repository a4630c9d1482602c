package match

import "net/textproto"

// IncomingRequest represents an HTTP request in domain terms, free of net/http.
// Header keys are stored in canonical MIME form; only the first value of a
// repeated header or query parameter is kept.
type IncomingRequest struct {
	Method  string
	Path    string
	Query   map[string]string
	Headers map[string]string
	Body    []byte
}

// Header looks up a header case-insensitively.
func (r *IncomingRequest) Header(name string) (string, bool) {
	if r.Headers == nil {
		return "", false
	}
	v, ok := r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
	return v, ok
}

// QueryParam looks up a query parameter by exact name.
func (r *IncomingRequest) QueryParam(name string) (string, bool) {
	if r.Query == nil {
		return "", false
	}
	v, ok := r.Query[name]
	return v, ok
}
