package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
)

// InferContentType picks a Content-Type from the explicit value, the body
// file extension, or the body itself. It returns "" for an empty body with
// no other hint, leaving the header unset.
func InferContentType(explicit string, bodyFile string, body []byte) string {
	if explicit != "" {
		return explicit
	}

	if bodyFile != "" {
		switch strings.ToLower(filepath.Ext(bodyFile)) {
		case ".json":
			return "application/json"
		case ".xml":
			return "application/xml"
		case ".yaml", ".yml":
			return "application/yaml"
		case ".html", ".htm":
			return "text/html"
		case ".txt":
			return "text/plain"
		case ".csv":
			return "text/csv"
		}
	}

	trimmed := bytes.TrimSpace(body)
	switch {
	case len(trimmed) == 0:
		return ""
	case (trimmed[0] == '{' || trimmed[0] == '[') && json.Valid(trimmed):
		return "application/json"
	case bytes.HasPrefix(trimmed, []byte("<?xml")):
		return "application/xml"
	}
	return http.DetectContentType(body)
}
