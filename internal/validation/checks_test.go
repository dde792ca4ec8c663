package validation

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestChecks(t *testing.T) {
	now := time.Date(2026, 6, 1, 23, 30, 0, 0, time.UTC)

	tests := []struct {
		name  string
		check Check
		value any
		want  string
	}{
		{"email ok", Email(), "ops@firm.example", ""},
		{"email display name", Email(), "Ops <ops@firm.example>", "must be a valid email address"},
		{"email no domain dot", Email(), "ops@localhost", "must be a valid email address"},
		{"email not string", Email(), 42, "must be a valid email address"},
		{"past date today", PastDate(), "2026-06-01", ""},
		{"past date tomorrow", PastDate(), "2026-06-02", "cannot be in the future"},
		{"past date bad layout", PastDate(), "2026/06/01", "must be a date in YYYY-MM-DD format"},
		{"non-negative int", NonNegative(), 0, ""},
		{"non-negative json number", NonNegative(), json.Number("12.5"), ""},
		{"non-negative numeric string", NonNegative(), "1000", ""},
		{"negative", NonNegative(), -0.01, "must be zero or more"},
		{"not a number", NonNegative(), "lots", "must be a number"},
		{"percent upper bound", Percent(), 100.0, ""},
		{"percent over", Percent(), 100.01, "must be between 0 and 100"},
		{"one of", OneOf("a", "b"), "b", ""},
		{"one of miss", OneOf("a", "b"), "c", "must be one of: a, b"},
		{"must be true", MustBeTrue(), true, ""},
		{"must be true string", MustBeTrue(), "true", "must be accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.check(tt.value, now))
		})
	}
}

func TestOwnershipTotal(t *testing.T) {
	assert.Equal(t, 100.0, OwnershipTotal([]float64{33.33, 33.33, 33.34}))
	assert.Equal(t, 99.99, OwnershipTotal([]float64{50, 49.99}))
	assert.True(t, TotalIsComplete(OwnershipTotal([]float64{0.1, 0.2, 99.7})))
	assert.False(t, TotalIsComplete(99.99))
	assert.False(t, TotalIsComplete(100.01))
	assert.Equal(t, 0.0, OwnershipTotal(nil))
}
