package services

import (
	"encoding/json"
	"strings"
)

// parseJSON decodes body keeping numbers as json.Number, so extracted
// values print exactly as they were sent (no 1e+06 float formatting).
func parseJSON(body string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
