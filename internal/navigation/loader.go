package navigation

import (
	"crypto/sha256"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/medinor/dashboard/model"
)

//go:embed navigation.yaml
var defaultTree []byte

// DefaultSource names the built-in tree in Definition.SourceFile.
const DefaultSource = "builtin:navigation.yaml"

// Definition is a parsed navigation file.
type Definition struct {
	Tree       model.NavigationTree
	Checksum   string
	SourceFile string
}

// LoadFile reads and validates a navigation YAML file. An empty path
// loads the built-in tree.
func LoadFile(path string) (Definition, error) {
	if path == "" {
		return Parse(defaultTree, DefaultSource)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Definition{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return Parse(data, path)
}

// Parse decodes and validates a navigation definition. source is recorded
// for diagnostics.
func Parse(data []byte, source string) (Definition, error) {
	var tree model.NavigationTree
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return Definition{}, fmt.Errorf("parsing %s: %w", source, err)
	}
	if err := Validate(tree); err != nil {
		return Definition{}, fmt.Errorf("validating %s: %w", source, err)
	}
	return Definition{
		Tree:       tree,
		Checksum:   fmt.Sprintf("%x", sha256.Sum256(data)),
		SourceFile: source,
	}, nil
}

// Validate checks the structure of a tree: headers carry a title and no
// children or roles, and every leaf has a segment and a title.
func Validate(tree model.NavigationTree) error {
	if len(tree.Items) == 0 {
		return errors.New("navigation has no items")
	}
	var errs []string
	for i, n := range tree.Items {
		errs = append(errs, validateNode(fmt.Sprintf("items[%d]", i), n, true)...)
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateNode(path string, n model.NavigationNode, topLevel bool) []string {
	var errs []string
	switch n.Kind {
	case model.NavigationKindHeader:
		if !topLevel {
			errs = append(errs, path+": headers are only allowed at the top level")
		}
		if n.Title == "" {
			errs = append(errs, path+": header title is required")
		}
		if len(n.Children) > 0 || n.Roles != nil {
			errs = append(errs, path+": headers cannot have children or roles")
		}
		return errs
	case "":
	default:
		return append(errs, fmt.Sprintf("%s: unknown kind %q", path, n.Kind))
	}

	if n.Segment == "" {
		errs = append(errs, path+": segment is required")
	}
	if n.Title == "" {
		errs = append(errs, path+": title is required")
	}
	for i, child := range n.Children {
		errs = append(errs, validateNode(fmt.Sprintf("%s.children[%d]", path, i), child, false)...)
	}
	return errs
}
