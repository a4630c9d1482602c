package expectation

import "strings"

// HeaderField is one name/value pair of an ordered header list.
type HeaderField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Headers is an insertion-ordered header list with case-insensitive names.
// The zero value is empty and ready to use.
type Headers struct {
	fields []HeaderField
}

// NewHeaders builds Headers from alternating name/value pairs. A trailing
// unpaired name is ignored.
func NewHeaders(pairs ...string) Headers {
	var h Headers
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// Get returns the first value for name.
func (h Headers) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value for name in insertion order.
func (h Headers) Values(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Add appends a field, keeping any existing values for name.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Set replaces all values for name. The field keeps the position of the
// first existing occurrence, or is appended if name is new.
func (h *Headers) Set(name, value string) {
	out := h.fields[:0:0]
	placed := false
	for _, f := range h.fields {
		if !strings.EqualFold(f.Name, name) {
			out = append(out, f)
			continue
		}
		if !placed {
			out = append(out, HeaderField{Name: name, Value: value})
			placed = true
		}
	}
	if !placed {
		out = append(out, HeaderField{Name: name, Value: value})
	}
	h.fields = out
}

// Len returns the number of fields.
func (h Headers) Len() int { return len(h.fields) }

// Fields returns a copy of the fields in insertion order.
func (h Headers) Fields() []HeaderField {
	out := make([]HeaderField, len(h.fields))
	copy(out, h.fields)
	return out
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	return Headers{fields: h.Fields()}
}
