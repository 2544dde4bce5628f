//go:build unit

package iou

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetenvOrDefault(t *testing.T) {
	t.Setenv("IOU_TEST_VALUE", "  value ")
	t.Setenv("IOU_TEST_EMPTY", "   ")

	assert.Equal(t, "value", GetenvOrDefault("IOU_TEST_VALUE", "default"))
	assert.Equal(t, "default", GetenvOrDefault("IOU_TEST_EMPTY", "default"))
	assert.Equal(t, "default", GetenvOrDefault("IOU_TEST_MISSING_XYZ", "default"))
}

func TestGetenvTypedDefaults(t *testing.T) {
	t.Setenv("IOU_TEST_BOOL", "true")
	t.Setenv("IOU_TEST_INT", "-7")
	t.Setenv("IOU_TEST_DURATION", "250ms")
	t.Setenv("IOU_TEST_BAD", "nope")

	assert.True(t, GetenvBoolOrDefault("IOU_TEST_BOOL", false))
	assert.False(t, GetenvBoolOrDefault("IOU_TEST_BAD", false))
	assert.Equal(t, int64(-7), GetenvIntOrDefault("IOU_TEST_INT", 1))
	assert.Equal(t, int64(1), GetenvIntOrDefault("IOU_TEST_BAD", 1))
	assert.Equal(t, 250*time.Millisecond, GetenvDurationOrDefault("IOU_TEST_DURATION", time.Second))
	assert.Equal(t, time.Second, GetenvDurationOrDefault("IOU_TEST_BAD", time.Second))
}

func TestSetConfigFromEnvVars_Success(t *testing.T) {
	type Config struct {
		Name    string        `env:"IOU_TEST_NAME"`
		Enabled bool          `env:"IOU_TEST_ENABLED"`
		Retries int64         `env:"IOU_TEST_RETRIES"`
		Timeout time.Duration `env:"IOU_TEST_TIMEOUT"`
		Keep    string        `env:"IOU_TEST_UNSET_XYZ"`
	}

	t.Setenv("IOU_TEST_NAME", "alice")
	t.Setenv("IOU_TEST_ENABLED", "true")
	t.Setenv("IOU_TEST_RETRIES", "3")
	t.Setenv("IOU_TEST_TIMEOUT", "2s")

	cfg := &Config{Keep: "default"}
	require.NoError(t, SetConfigFromEnvVars(cfg))

	assert.Equal(t, "alice", cfg.Name)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, int64(3), cfg.Retries)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
	assert.Equal(t, "default", cfg.Keep)
}

func TestSetConfigFromEnvVars_NonPointer(t *testing.T) {
	type Config struct {
		Field string `env:"IOU_TEST_FIELD"`
	}

	err := SetConfigFromEnvVars(Config{})
	assert.ErrorIs(t, err, ErrNotPointer)
}

func TestSetConfigFromEnvVars_InvalidValue(t *testing.T) {
	type Config struct {
		Timeout time.Duration `env:"IOU_TEST_BAD_TIMEOUT"`
	}

	t.Setenv("IOU_TEST_BAD_TIMEOUT", "soon")

	err := SetConfigFromEnvVars(&Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "IOU_TEST_BAD_TIMEOUT")
}
