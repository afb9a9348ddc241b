package providers

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Accessor looks up one candidate field in a decoded JSON document.
type Accessor struct {
	path []string
}

// Path builds an accessor for a nested key sequence.
func Path(keys ...string) Accessor {
	return Accessor{path: keys}
}

func (a Accessor) String() string { return strings.Join(a.path, ".") }

// Lookup walks the path. Missing keys, non-object intermediates and JSON null
// all report ok=false.
func (a Accessor) Lookup(doc map[string]any) (any, bool) {
	var cur any = doc
	for _, key := range a.path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	if cur == nil {
		return nil, false
	}
	return cur, true
}

// firstValue returns the first present non-nil value among accessors.
func firstValue(doc map[string]any, accessors []Accessor) (any, Accessor, bool) {
	for _, a := range accessors {
		if v, ok := a.Lookup(doc); ok {
			return v, a, true
		}
	}
	return nil, Accessor{}, false
}

// firstNumber returns the first accessor value that parses as a number.
// A present value that is not numeric is a parse error rather than a fall-through.
func firstNumber(provider string, doc map[string]any, accessors []Accessor) (float64, error) {
	v, a, ok := firstValue(doc, accessors)
	if !ok {
		names := make([]string, len(accessors))
		for i, acc := range accessors {
			names[i] = acc.String()
		}
		return 0, newError(provider, ErrParse, "balance field not found (tried %s)", strings.Join(names, ", "))
	}
	n, err := parseNumber(v)
	if err != nil {
		return 0, &Error{Kind: ErrParse, Provider: provider, Message: fmt.Sprintf("field %s: %v", a, err), Err: err}
	}
	return n, nil
}

var numberReplacer = strings.NewReplacer(",", "", "¥", "", "￥", "", "$", "", " ", "", "\t", "", "\n", "")

// parseNumber accepts JSON numbers and numeric strings with currency symbols
// or thousands separators.
func parseNumber(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		s := numberReplacer.Replace(strings.TrimSpace(n))
		if s == "" {
			return 0, fmt.Errorf("empty numeric string %q", n)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("not a number: %q", n)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}

func stringField(doc map[string]any, keys ...string) string {
	v, ok := Path(keys...).Lookup(doc)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// splitPair splits an "ID:SECRET" credential.
func splitPair(provider, credential, format string) (string, string, error) {
	id, secret, ok := strings.Cut(credential, ":")
	if !ok || id == "" || secret == "" {
		return "", "", fmt.Errorf("%s credential must be %q", provider, format)
	}
	return id, secret, nil
}
