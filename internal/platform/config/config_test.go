package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Setenv("INTAKE_ADDR", "")
		t.Setenv("AUTOSAVE_INTERVAL", "")
		t.Setenv("KAFKA_BROKERS", "")

		cfg := FromEnv()
		assert.Equal(t, ":8080", cfg.Addr)
		assert.Equal(t, DefaultAutosaveInterval, cfg.Drafts.AutosaveInterval)
		assert.Equal(t, DefaultDebounce, cfg.Drafts.Debounce)
		assert.Equal(t, DefaultDraftExpiry, cfg.Drafts.Expiry)
		assert.Empty(t, cfg.Kafka.Brokers)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("INTAKE_ADDR", ":9090")
		t.Setenv("AUTOSAVE_INTERVAL", "15s")
		t.Setenv("AUTOSAVE_DEBOUNCE", "not-a-duration")
		t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
		t.Setenv("INTAKE_ENV", "production")

		cfg := FromEnv()
		assert.Equal(t, ":9090", cfg.Addr)
		assert.Equal(t, 15*time.Second, cfg.Drafts.AutosaveInterval)
		assert.Equal(t, DefaultDebounce, cfg.Drafts.Debounce)
		assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
		assert.True(t, cfg.IsProduction())
	})
}
