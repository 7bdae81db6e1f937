package tools

import "math"

// intArg reads a numeric argument. JSON numbers decode as float64;
// fractional values truncate toward zero.
func intArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) > math.MaxInt32 {
			return 0, false
		}
		return int(v), true
	case int:
		return v, true
	}
	return 0, false
}

// stringArg reads a non-empty string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	s, ok := args[key].(string)
	return s, ok && s != ""
}
