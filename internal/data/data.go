// Package data loads render contexts from JSON and YAML files.
//
// Numbers of every form load as float64, so a value compares and prints the
// same whichever format it came from. YAML documents may use the !!set tag
// for sets, which load as *value.Set and can drive a repeat like a list.
package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/conneroisu/tagfill/internal/errors"
	"github.com/conneroisu/tagfill/internal/validation"
	"github.com/conneroisu/tagfill/internal/value"
)

// Format is a data file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// maxNesting bounds how deeply YAML values, aliases included, may nest.
const maxNesting = 100

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", errors.NewConfigError(
			errors.ErrCodeInvalidData,
			fmt.Sprintf("unsupported data file extension %q (use .json, .yaml or .yml)", filepath.Ext(path)),
		).WithFile(path)
	}
}

// LoadFile reads the context stored in path.
func LoadFile(path string) (value.Context, error) {
	if err := validation.ValidatePath(path); err != nil {
		return nil, err
	}
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewIOError(errors.ErrCodeFileNotFound, "reading data file", err).WithFile(path)
	}
	ctx, err := Parse(content, format)
	if err != nil {
		if fe, ok := err.(*errors.FillError); ok {
			return nil, fe.WithFile(path)
		}
		return nil, err
	}
	return ctx, nil
}

// Parse decodes content. The top level must be a mapping; an empty or null
// document yields an empty context.
func Parse(content []byte, format Format) (value.Context, error) {
	if len(bytes.TrimSpace(content)) == 0 {
		return value.Context{}, nil
	}

	var (
		v   any
		err error
	)
	switch format {
	case FormatJSON:
		v, err = parseJSON(content)
	case FormatYAML:
		v, err = parseYAML(content)
	default:
		return nil, errors.NewConfigError(errors.ErrCodeInvalidData, fmt.Sprintf("unknown data format %q", format))
	}
	if err != nil {
		return nil, err
	}

	if v == nil {
		return value.Context{}, nil
	}
	ctx, ok := value.AsContext(v)
	if !ok {
		return nil, errors.NewConfigError(
			errors.ErrCodeInvalidData,
			fmt.Sprintf("data must be a mapping at the top level, got %T", v),
		)
	}
	return ctx, nil
}

func parseJSON(content []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(content))
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeInvalidData, "decoding JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.NewConfigError(errors.ErrCodeInvalidData, "decoding JSON: trailing data after the top-level value")
	}
	return v, nil
}

func parseYAML(content []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, errors.ErrCodeInvalidData, "decoding YAML")
	}
	return fromNode(&doc, 0)
}

// fromNode converts a YAML node into plain values: mappings become
// map[string]any, !!set mappings *value.Set, sequences []any and numbers
// float64.
func fromNode(n *yaml.Node, depth int) (any, error) {
	if depth > maxNesting {
		return nil, nodeError(n, fmt.Sprintf("values nest deeper than %d levels", maxNesting))
	}

	switch n.Kind {
	case 0:
		// A document holding only comments.
		return nil, nil

	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return fromNode(n.Content[0], depth)

	case yaml.AliasNode:
		return fromNode(n.Alias, depth+1)

	case yaml.SequenceNode:
		items := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := fromNode(c, depth+1)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
		return items, nil

	case yaml.MappingNode:
		if n.ShortTag() == "!!set" {
			return setFromNode(n, depth)
		}
		m := make(map[string]any, len(n.Content)/2)
		if err := mergeMapping(m, n, depth); err != nil {
			return nil, err
		}
		return m, nil

	case yaml.ScalarNode:
		return scalar(n)
	}

	return nil, nodeError(n, "unsupported YAML node")
}

func mergeMapping(m map[string]any, n *yaml.Node, depth int) error {
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]

		if key.ShortTag() == "!!merge" {
			if err := merge(m, val, depth); err != nil {
				return err
			}
			continue
		}
		if key.Kind != yaml.ScalarNode {
			return nodeError(key, "mapping keys must be scalars")
		}

		v, err := fromNode(val, depth+1)
		if err != nil {
			return err
		}
		m[key.Value] = v
	}
	return nil
}

// merge applies a << merge key. Keys already present win over merged ones.
func merge(m map[string]any, val *yaml.Node, depth int) error {
	sources := []*yaml.Node{val}
	if val.Kind == yaml.SequenceNode {
		sources = val.Content
	}
	for _, src := range sources {
		for src.Kind == yaml.AliasNode {
			src = src.Alias
		}
		if src.Kind != yaml.MappingNode {
			return nodeError(src, "merge value must be a mapping")
		}
		merged := make(map[string]any)
		if err := mergeMapping(merged, src, depth+1); err != nil {
			return err
		}
		for k, v := range merged {
			if _, exists := m[k]; !exists {
				m[k] = v
			}
		}
	}
	return nil
}

func setFromNode(n *yaml.Node, depth int) (*value.Set, error) {
	set := value.NewSet()
	for i := 0; i+1 < len(n.Content); i += 2 {
		item, err := fromNode(n.Content[i], depth+1)
		if err != nil {
			return nil, err
		}
		set.Add(item)
	}
	return set, nil
}

func scalar(n *yaml.Node) (any, error) {
	switch n.ShortTag() {
	case "!!null":
		return nil, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, nodeError(n, err.Error())
		}
		return b, nil
	case "!!int", "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, nodeError(n, err.Error())
		}
		return f, nil
	default:
		// Strings, timestamps and binary keep their source text.
		return n.Value, nil
	}
}

func nodeError(n *yaml.Node, msg string) error {
	return errors.NewConfigError(
		errors.ErrCodeInvalidData,
		fmt.Sprintf("line %d column %d: %s", n.Line, n.Column, msg),
	)
}
