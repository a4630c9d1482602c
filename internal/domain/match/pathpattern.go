package match

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// pathPattern is a compiled path template. Segments may be literals, "*"
// (any single segment), "{name}" (a named single segment) or one "**"
// (any number of segments).
type pathPattern struct {
	raw      string
	glob     string
	segments []string
}

func compilePathPattern(raw string) (*pathPattern, error) {
	if !strings.HasPrefix(raw, "/") {
		return nil, fmt.Errorf("path pattern %q must start with /", raw)
	}

	segments := strings.Split(strings.TrimPrefix(raw, "/"), "/")
	globSegments := make([]string, 0, len(segments))
	doubles := 0

	for _, seg := range segments {
		switch {
		case isPlaceholder(seg):
			globSegments = append(globSegments, "*")
		case seg == "**":
			doubles++
			globSegments = append(globSegments, "**")
		default:
			globSegments = append(globSegments, escapeGlobLiteral(seg))
		}
	}
	if doubles > 1 {
		return nil, fmt.Errorf("path pattern %q may contain at most one **", raw)
	}

	glob := "/" + strings.Join(globSegments, "/")
	if !doublestar.ValidatePattern(glob) {
		return nil, fmt.Errorf("invalid path pattern %q", raw)
	}

	return &pathPattern{raw: raw, glob: glob, segments: segments}, nil
}

func (p *pathPattern) match(path string) bool {
	ok, err := doublestar.Match(p.glob, path)
	return err == nil && ok
}

// params extracts named placeholder values from a path the pattern matched.
func (p *pathPattern) params(path string) map[string]string {
	out := make(map[string]string)
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")

	double := -1
	for i, seg := range p.segments {
		if seg == "**" {
			double = i
			break
		}
	}

	for i, seg := range p.segments {
		if !isPlaceholder(seg) {
			continue
		}
		k := i
		if double >= 0 && i > double {
			// Segments after ** align from the end of the path.
			k = len(segs) - (len(p.segments) - i)
		}
		if k >= 0 && k < len(segs) {
			out[seg[1:len(seg)-1]] = segs[k]
		}
	}
	return out
}

func isPlaceholder(seg string) bool {
	return len(seg) > 2 &&
		strings.HasPrefix(seg, "{") &&
		strings.HasSuffix(seg, "}") &&
		!strings.ContainsAny(seg[1:len(seg)-1], "{},/")
}

// escapeGlobLiteral escapes glob metacharacters other than "*".
func escapeGlobLiteral(seg string) string {
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '\\', '?', '[', ']', '{', '}':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
