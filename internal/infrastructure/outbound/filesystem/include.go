package filesystem

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 10

// ErrIncludeCycle is returned when a file includes itself, directly or not.
var ErrIncludeCycle = errors.New("!include cycle")

// IncludeResolver replaces !include tagged nodes with the referenced file.
// YAML files are spliced in as nodes, anything else becomes a string scalar
// (handy for response bodies).
//
// References: "@root/x" is relative to the root dir, "@here/x" and bare
// relative paths to the including file. Absolute paths and anything that
// resolves outside the root are rejected.
type IncludeResolver struct {
	rootDir string
}

// NewIncludeResolver creates a resolver bound to rootDir.
func NewIncludeResolver(rootDir string) *IncludeResolver {
	return &IncludeResolver{rootDir: rootDir}
}

// ResolveIncludes rewrites node in place.
func (r *IncludeResolver) ResolveIncludes(node *yaml.Node, currentDir string) error {
	return r.walk(node, currentDir, nil)
}

// stack holds the files currently being expanded.
func (r *IncludeResolver) walk(node *yaml.Node, currentDir string, stack []string) error {
	if len(stack) > maxIncludeDepth {
		return fmt.Errorf("!include depth exceeds maximum of %d", maxIncludeDepth)
	}
	if node == nil {
		return nil
	}
	if node.Tag == "!include" {
		return r.resolveInclude(node, currentDir, stack)
	}
	for _, child := range node.Content {
		if err := r.walk(child, currentDir, stack); err != nil {
			return err
		}
	}
	return nil
}

func (r *IncludeResolver) resolveInclude(node *yaml.Node, currentDir string, stack []string) error {
	ref := strings.TrimSpace(node.Value)
	if ref == "" {
		return fmt.Errorf("line %d: !include tag has empty value", node.Line)
	}

	resolved, err := r.resolvePath(ref, currentDir)
	if err != nil {
		return fmt.Errorf("failed to resolve !include %q: %w", ref, err)
	}
	if err := r.validatePath(resolved); err != nil {
		return fmt.Errorf("!include path %q is not allowed: %w", ref, err)
	}
	if slices.Contains(stack, resolved) {
		return fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(append(stack, resolved), " -> "))
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		return fmt.Errorf("failed to read included file %q: %w", resolved, err)
	}

	if !isYAMLFile(resolved) {
		node.Tag = "!!str"
		node.Kind = yaml.ScalarNode
		node.Style = yaml.LiteralStyle
		node.Value = string(data)
		return nil
	}

	var included yaml.Node
	if err := yaml.Unmarshal(data, &included); err != nil {
		return fmt.Errorf("failed to parse included YAML %q: %w", resolved, err)
	}
	if err := r.walk(&included, filepath.Dir(resolved), append(stack, resolved)); err != nil {
		return err
	}
	if included.Kind == yaml.DocumentNode && len(included.Content) > 0 {
		*node = *included.Content[0]
	} else {
		*node = yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null"}
	}
	return nil
}

func (r *IncludeResolver) resolvePath(ref, currentDir string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "@root/"):
		return filepath.Join(r.rootDir, strings.TrimPrefix(ref, "@root/")), nil
	case strings.HasPrefix(ref, "@here/"):
		return filepath.Join(currentDir, strings.TrimPrefix(ref, "@here/")), nil
	case filepath.IsAbs(ref):
		return "", errors.New("absolute paths are not allowed in !include")
	default:
		return filepath.Join(currentDir, ref), nil
	}
}

// validatePath resolves symlinks on both sides so a link inside the root
// cannot point outside it.
func (r *IncludeResolver) validatePath(resolved string) error {
	realPath, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		realPath = resolved
	}
	realRoot, err := filepath.EvalSymlinks(r.rootDir)
	if err != nil {
		realRoot = r.rootDir
	}
	return withinRoot(realRoot, realPath)
}

func withinRoot(root, path string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return errors.New("path escapes root directory")
	}
	return nil
}
