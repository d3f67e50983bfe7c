package coding

import (
	"encoding/json"
	"strconv"
)

// Walk follows path through a decoded JSON record. At a mapping node it
// descends by field name; at a sequence node it applies the remaining path
// to every element and flattens the results. Any other node yields nothing.
// When the path is exhausted on a sequence, its elements are returned.
func Walk(record any, path []string) []any {
	switch node := record.(type) {
	case nil:
		return nil
	case []any:
		var out []any
		for _, el := range node {
			if len(path) == 0 {
				if el != nil {
					out = append(out, el)
				}
				continue
			}
			out = append(out, Walk(el, path)...)
		}
		return out
	case map[string]any:
		if len(path) == 0 {
			return []any{node}
		}
		return Walk(node[path[0]], path[1:])
	default:
		if len(path) == 0 {
			return []any{node}
		}
		return nil
	}
}

// Normalize turns one raw coding entry into a Coding. A coding wrapped in a
// one-element sequence is unwrapped once; anything else that is not a
// mapping is dropped.
func Normalize(v any) (Coding, bool) {
	if list, ok := v.([]any); ok {
		if len(list) != 1 {
			return Coding{}, false
		}
		v = list[0]
	}
	m, ok := v.(map[string]any)
	if !ok {
		return Coding{}, false
	}
	return Coding{
		System:  field(m, "system"),
		Code:    field(m, "code"),
		Display: field(m, "display"),
	}, true
}

func field(m map[string]any, name string) string {
	switch v := m[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return Absent
	}
}

// Extract returns the codings found at path in record. Malformed entries
// are dropped; the count of dropped entries is returned alongside.
func Extract(record any, path []string) ([]Coding, int) {
	raw := Walk(record, path)
	if len(raw) == 0 {
		return nil, 0
	}
	out := make([]Coding, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		c, ok := Normalize(r)
		if !ok {
			dropped++
			continue
		}
		out = append(out, c)
	}
	return out, dropped
}
