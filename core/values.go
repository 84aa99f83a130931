package core

import (
	"encoding/json"
	"strconv"
)

// Event attributes and extrinsic args arrive as generic JSON values. The
// helpers below coerce them without caring whether they were decoded into
// float64, json.Number, or native ints.

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	case json.Number:
		i, _ := n.Int64()
		return i
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	}
	return 0
}

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatInt(int64(s), 10)
	case int64:
		return strconv.FormatInt(s, 10)
	case int:
		return strconv.Itoa(s)
	case nil:
		return ""
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func toBool(v any) bool {
	b, _ := v.(bool)
	return b
}

func toMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}
