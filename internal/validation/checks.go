package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"net/mail"
	"slices"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the wire format for every date field.
const DateLayout = "2006-01-02"

// Check inspects a present value and returns a message suffix describing
// the problem, or "" when the value is acceptable.
type Check func(v any, now time.Time) string

// Email accepts a bare address ("a@b.example"), not a display-name form.
func Email() Check {
	return func(v any, _ time.Time) string {
		s, ok := v.(string)
		if !ok {
			return "must be a valid email address"
		}
		s = strings.TrimSpace(s)
		addr, err := mail.ParseAddress(s)
		if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndex(s, "@")+1:], ".") {
			return "must be a valid email address"
		}
		return ""
	}
}

// PastDate requires a YYYY-MM-DD date that is not after today.
func PastDate() Check {
	return func(v any, now time.Time) string {
		s, ok := v.(string)
		if !ok {
			return "must be a date in YYYY-MM-DD format"
		}
		d, err := time.Parse(DateLayout, strings.TrimSpace(s))
		if err != nil {
			return "must be a date in YYYY-MM-DD format"
		}
		y, m, day := now.Date()
		today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
		if d.After(today) {
			return "cannot be in the future"
		}
		return ""
	}
}

// NonNegative requires a number >= 0.
func NonNegative() Check {
	return func(v any, _ time.Time) string {
		n, ok := toFloat(v)
		if !ok {
			return "must be a number"
		}
		if n < 0 {
			return "must be zero or more"
		}
		return ""
	}
}

// Percent requires a number in [0, 100].
func Percent() Check {
	return func(v any, _ time.Time) string {
		n, ok := toFloat(v)
		if !ok {
			return "must be a number"
		}
		if n < 0 || n > 100 {
			return "must be between 0 and 100"
		}
		return ""
	}
}

// OneOf restricts a string to a closed set.
func OneOf(values ...string) Check {
	return func(v any, _ time.Time) string {
		s, _ := v.(string)
		if slices.Contains(values, s) {
			return ""
		}
		return fmt.Sprintf("must be one of: %s", strings.Join(values, ", "))
	}
}

// MustBeTrue requires a boolean true, as for declarations.
func MustBeTrue() Check {
	return func(v any, _ time.Time) string {
		if b, ok := v.(bool); ok && b {
			return ""
		}
		return "must be accepted"
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
