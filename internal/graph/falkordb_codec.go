package graph

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/codegraphhq/codegraph/internal/errors"
)

// GRAPH.QUERY replies are RESP arrays: [columns, rows, statistics] for
// queries that return data, or [statistics] alone. Entity and map
// values arrive as nested key/value pair arrays with real property
// names. Doubles and booleans are formatted as strings by the server;
// integers and strings keep their native types.

func decodeGraphReply(raw any) ([]Record, []string, error) {
	top, ok := raw.([]any)
	if !ok {
		return nil, nil, errors.Operation(nil, fmt.Sprintf("unexpected graph reply type %T", raw), false)
	}
	switch len(top) {
	case 1:
		return nil, replyStrings(top[0]), nil
	case 3:
		header := replyStrings(top[0])
		rawRows, ok := top[1].([]any)
		if !ok {
			return nil, nil, errors.Operation(nil, fmt.Sprintf("unexpected graph row set type %T", top[1]), false)
		}
		records := make([]Record, 0, len(rawRows))
		for _, rawRow := range rawRows {
			cells, ok := rawRow.([]any)
			if !ok {
				return nil, nil, errors.Operation(nil, fmt.Sprintf("unexpected graph row type %T", rawRow), false)
			}
			rec := make(Record, len(header))
			for i, cell := range cells {
				if i < len(header) {
					rec[header[i]] = decodeFalkorValue(cell)
				}
			}
			records = append(records, rec)
		}
		return records, replyStrings(top[2]), nil
	default:
		return nil, nil, errors.Operation(nil, fmt.Sprintf("unexpected graph reply shape (%d elements)", len(top)), false)
	}
}

func decodeFalkorValue(v any) any {
	switch val := v.(type) {
	case []any:
		// Key/value pair arrays carry maps, node property bags and
		// entity envelopes. Plain arrays recurse element-wise.
		if m, ok := pairsToMap(val); ok {
			return m
		}
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = decodeFalkorValue(item)
		}
		return out
	default:
		return v
	}
}

func pairsToMap(arr []any) (map[string]any, bool) {
	if len(arr) == 0 {
		return nil, false
	}
	m := make(map[string]any, len(arr))
	for _, item := range arr {
		pair, ok := item.([]any)
		if !ok || len(pair) != 2 {
			return nil, false
		}
		key, ok := pair[0].(string)
		if !ok {
			return nil, false
		}
		m[key] = decodeFalkorValue(pair[1])
	}
	return m, true
}

// replyStrings flattens a header or statistics array. Compact-mode
// headers use [type, name] pairs; the name is the last element.
func replyStrings(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		switch s := item.(type) {
		case string:
			out = append(out, s)
		case []any:
			if len(s) > 0 {
				if name, ok := s[len(s)-1].(string); ok {
					out = append(out, name)
				}
			}
		}
	}
	return out
}

// statInt extracts a counter like "Nodes deleted: 2" from the
// statistics rows.
func statInt(stats []string, name string) int {
	prefix := name + ": "
	for _, s := range stats {
		if strings.HasPrefix(s, prefix) {
			if n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(s, prefix))); err == nil {
				return n
			}
		}
	}
	return 0
}

// cypherParamsPrologue renders bound parameters as a CYPHER prologue.
// The wire protocol has no separate parameter argument, so values are
// serialised as literals; strings are quoted and escaped, map keys must
// be plain identifiers.
func cypherParamsPrologue(params map[string]any) (string, error) {
	parts := make([]string, 0, len(params))
	for _, key := range sortedKeys(params) {
		if !IsValidIdentifier(key) {
			return "", errors.Validationf("invalid parameter name %q", key)
		}
		value, err := serializeCypherValue(params[key])
		if err != nil {
			return "", err
		}
		parts = append(parts, key+"="+value)
	}
	return "CYPHER " + strings.Join(parts, " "), nil
}

func serializeCypherValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		return quoteCypherString(val), nil
	case bool:
		if val {
			return "true", nil
		}
		return "false", nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case time.Time:
		return quoteCypherString(val.UTC().Format(time.RFC3339)), nil
	case []string:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = quoteCypherString(item)
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []any:
		parts := make([]string, len(val))
		for i, item := range val {
			s, err := serializeCypherValue(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case []map[string]any:
		parts := make([]string, len(val))
		for i, item := range val {
			s, err := serializeCypherValue(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, key := range sortedKeys(val) {
			if !IsValidIdentifier(key) {
				return "", errors.Validationf("invalid map key %q in parameter", key)
			}
			s, err := serializeCypherValue(val[key])
			if err != nil {
				return "", err
			}
			parts = append(parts, key+": "+s)
		}
		return "{" + strings.Join(parts, ", ") + "}", nil
	default:
		return "", errors.Validationf("unsupported parameter type %T", v)
	}
}

// quoteCypherString single-quotes a literal, escaping backslash and
// quote. Raw newlines are legal inside the quotes.
func quoteCypherString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}
