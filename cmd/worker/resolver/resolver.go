package resolver

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

// Undefined is substituted for template paths that resolve to nothing.
// Resolution is total: a bad path never fails a node, it just yields
// this literal.
const Undefined = "undefined"

var templateRe = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// Resolver substitutes {{input.path}} templates in node config values
// against the input document the node received.
type Resolver struct {
	doc []byte
}

// New creates a resolver over the given input document
func New(input map[string]any) (*Resolver, error) {
	if input == nil {
		input = map[string]any{}
	}
	doc, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input document: %w", err)
	}
	return &Resolver{doc: doc}, nil
}

// Value resolves one config value. A string that is exactly a single
// template yields the looked-up value with its original type; a string
// with embedded templates yields a string with each occurrence
// substituted. Non-template strings pass through unchanged.
func (r *Resolver) Value(s string) any {
	m := templateRe.FindStringSubmatch(s)
	if m != nil && m[0] == strings.TrimSpace(s) {
		v, ok := r.lookup(m[1])
		if !ok {
			return Undefined
		}
		return v
	}

	return templateRe.ReplaceAllStringFunc(s, func(match string) string {
		path := templateRe.FindStringSubmatch(match)[1]
		v, ok := r.lookup(path)
		if !ok {
			return Undefined
		}
		return stringify(v)
	})
}

// String resolves a value and renders it as a string
func (r *Resolver) String(s string) string {
	return stringify(r.Value(s))
}

// Any resolves templates recursively through maps, slices and strings
func (r *Resolver) Any(v any) any {
	switch t := v.(type) {
	case string:
		return r.Value(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = r.Any(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = r.Any(val)
		}
		return out
	default:
		return v
	}
}

// Config resolves every value of a node config map
func (r *Resolver) Config(cfg map[string]any) map[string]any {
	resolved := r.Any(cfg)
	out, ok := resolved.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return out
}

// lookup resolves a template path against the input document. The
// "input" prefix addresses the document itself; "input.a.b" walks into
// it. Paths without the prefix are tried as-is.
func (r *Resolver) lookup(path string) (any, bool) {
	path = strings.TrimSpace(path)

	if path == "input" {
		var whole any
		if err := json.Unmarshal(r.doc, &whole); err != nil {
			return nil, false
		}
		return whole, true
	}

	path = strings.TrimPrefix(path, "input.")

	res := gjson.GetBytes(r.doc, path)
	if !res.Exists() {
		return nil, false
	}
	return res.Value(), true
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return "null"
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprintf("%v", t)
		}
		return string(b)
	}
}
