package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// FormatError reports a config file that could not be decoded. Path is the
// dotted key path of the offending entry, when one is known.
type FormatError struct {
	Format string // "json" or "yaml"
	Path   string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s config: %v", e.Format, e.Err)
	}
	return fmt.Sprintf("%s config: %s: %v", e.Format, e.Path, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatOf(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Decode strictly decodes config content, overlays environment secrets and
// fills defaults. name picks the format by extension; YAML is rewritten to
// JSON first so both formats share one strict decoder.
func Decode(name string, data []byte) (*Config, error) {
	format := formatOf(name)
	if format == "yaml" {
		tree, err := yamlTree(data)
		if err != nil {
			return nil, err
		}
		if data, err = json.Marshal(tree); err != nil {
			return nil, &FormatError{Format: format, Err: err}
		}
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, jsonError(format, err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			err = errors.New("trailing data after config object")
		}
		return nil, &FormatError{Format: format, Err: err}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// jsonError pulls the key path out of encoding/json errors.
func jsonError(format string, err error) error {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) {
		return &FormatError{Format: format, Path: te.Field, Err: fmt.Errorf("want %s, got %s", te.Type, te.Value)}
	}
	if field, ok := strings.CutPrefix(err.Error(), "json: unknown field "); ok {
		return &FormatError{Format: format, Path: strings.Trim(field, `"`), Err: errors.New("unknown key")}
	}
	return &FormatError{Format: format, Err: err}
}

// yamlTree converts a YAML document into plain maps, slices and scalars.
// Keys are always strings and a key repeated in one mapping is an error,
// so nothing is silently dropped on the way to the JSON decoder.
func yamlTree(data []byte) (any, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &FormatError{Format: "yaml", Err: err}
	}
	if len(doc.Content) == 0 {
		return map[string]any{}, nil
	}
	return walkYAML(doc.Content[0], "")
}

func walkYAML(n *yaml.Node, path string) (any, error) {
	switch n.Kind {
	case yaml.AliasNode:
		return walkYAML(n.Alias, path)
	case yaml.MappingNode:
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, v := n.Content[i], n.Content[i+1]
			key := joinPath(path, k.Value)
			if k.Kind != yaml.ScalarNode || k.Tag == "!!merge" {
				return nil, &FormatError{Format: "yaml", Path: key, Err: fmt.Errorf("line %d: unsupported key", k.Line)}
			}
			if _, dup := out[k.Value]; dup {
				return nil, &FormatError{Format: "yaml", Path: key, Err: fmt.Errorf("line %d: duplicate key", k.Line)}
			}
			val, err := walkYAML(v, key)
			if err != nil {
				return nil, err
			}
			out[k.Value] = val
		}
		return out, nil
	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for i, c := range n.Content {
			val, err := walkYAML(c, path+"["+strconv.Itoa(i)+"]")
			if err != nil {
				return nil, err
			}
			out = append(out, val)
		}
		return out, nil
	default:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, &FormatError{Format: "yaml", Path: path, Err: fmt.Errorf("line %d: %w", n.Line, err)}
		}
		return v, nil
	}
}

func joinPath(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
