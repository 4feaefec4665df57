package component

import (
	"fmt"
	"strconv"
)

// Props are the input properties a component is first rendered with.
type Props map[string]any

// Payload is the argument carried by an event trigger. Form posts produce
// string values (or []string for repeated fields); JSON posts keep their types.
type Payload map[string]any

// Int returns the integer at key, or def if it is missing or not numeric.
func (p Props) Int(key string, def int) int { return toInt(p[key], def) }

// String returns the value at key formatted as a string, or def if missing.
func (p Props) String(key, def string) string { return toString(p[key], def) }

// Bool returns the boolean at key, or def if it is missing or not a boolean.
func (p Props) Bool(key string, def bool) bool { return toBool(p[key], def) }

// Int returns the integer at key, or def if it is missing or not numeric.
func (p Payload) Int(key string, def int) int { return toInt(p[key], def) }

// String returns the value at key formatted as a string, or def if missing.
func (p Payload) String(key, def string) string { return toString(p[key], def) }

// Bool returns the boolean at key, or def if it is missing or not a boolean.
func (p Payload) Bool(key string, def bool) bool { return toBool(p[key], def) }

func toInt(v any, def int) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case uint:
		return int(n)
	case uint8:
		return int(n)
	case uint16:
		return int(n)
	case uint32:
		return int(n)
	case uint64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i
		}
	case []string:
		if len(n) > 0 {
			return toInt(n[0], def)
		}
	}
	return def
}

func toString(v any, def string) string {
	switch s := v.(type) {
	case nil:
		return def
	case string:
		return s
	case []string:
		if len(s) > 0 {
			return s[0]
		}
		return def
	default:
		return fmt.Sprint(s)
	}
}

func toBool(v any, def bool) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	case []string:
		if len(b) > 0 {
			return toBool(b[0], def)
		}
	}
	return def
}
