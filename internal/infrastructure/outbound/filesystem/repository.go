package filesystem

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/stubhttp/internal/domain/scenario"
)

var _ scenario.Repository = (*YAMLRepository)(nil)

// YAMLRepository loads expectation definitions from YAML files in a
// directory tree.
type YAMLRepository struct {
	rootDir  string
	resolver *IncludeResolver
}

// NewYAMLRepository creates a repository rooted at rootDir.
func NewYAMLRepository(rootDir string) (*YAMLRepository, error) {
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root directory: %w", err)
	}
	return &YAMLRepository{
		rootDir:  absRoot,
		resolver: NewIncludeResolver(absRoot),
	}, nil
}

// RootDir returns the absolute root directory.
func (r *YAMLRepository) RootDir() string {
	return r.rootDir
}

// LoadAll walks the root directory in lexical order and returns every
// definition found. File order fixes registration order, which breaks
// specificity ties.
func (r *YAMLRepository) LoadAll(ctx context.Context) ([]*scenario.Definition, error) {
	var files []string
	err := filepath.WalkDir(r.rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			// Fragments referenced through !include live under _-prefixed dirs.
			if path != r.rootDir && strings.HasPrefix(d.Name(), "_") {
				return filepath.SkipDir
			}
			return nil
		}
		if isYAMLFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk definitions directory: %w", err)
	}
	sort.Strings(files)

	var defs []*scenario.Definition
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loaded, err := r.loadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		defs = append(defs, loaded...)
	}
	return defs, nil
}

func (r *YAMLRepository) loadFile(path string) ([]*scenario.Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := r.resolver.ResolveIncludes(&root, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("failed to resolve includes: %w", err)
	}

	defs, err := decodeDocument(&root)
	if err != nil {
		return nil, err
	}
	for _, d := range defs {
		d.SourceFile = path
	}
	return defs, nil
}

// DecodeDefinitions parses YAML holding one definition or a list of them.
// !include tags are not resolved.
func DecodeDefinitions(data []byte) ([]*scenario.Definition, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return decodeDocument(&root)
}

func decodeDocument(root *yaml.Node) ([]*scenario.Definition, error) {
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		// Empty file.
		return nil, nil
	}

	content := root.Content[0]
	if content.Kind != yaml.SequenceNode {
		d, err := decodeDefinitionNode(content)
		if err != nil {
			return nil, err
		}
		return []*scenario.Definition{d}, nil
	}

	defs := make([]*scenario.Definition, 0, len(content.Content))
	for i, item := range content.Content {
		d, err := decodeDefinitionNode(item)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func decodeDefinitionNode(node *yaml.Node) (*scenario.Definition, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	var yd yamlDefinition
	if err := node.Decode(&yd); err != nil {
		return nil, fmt.Errorf("failed to decode definition: %w", err)
	}
	return yd.toDefinition(), nil
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
