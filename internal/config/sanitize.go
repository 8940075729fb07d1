package config

import "strconv"

// SanitizePositiveInt coerces v into a positive int. Non-numeric or
// non-positive values fall back to def; values above max (when max > 0)
// clamp to max. Numeric strings are accepted.
func SanitizePositiveInt(v any, def, max int) int {
	n, ok := toInt(v)
	if !ok || n <= 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x != float64(int(x)) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}
