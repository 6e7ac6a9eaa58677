package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ANALYSIS_DISPATCH", "")
	t.Setenv("PORT", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "ws://localhost:8000", cfg.Server.PublicWSBase)
	assert.Equal(t, DispatchInProcess, cfg.Analysis.Dispatch)
	assert.Equal(t, 0.3, cfg.Realtime.VolumeThreshold)
	assert.Equal(t, 3*time.Minute, cfg.Analysis.Estimate)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_DISPATCH", "QUEUE")
	t.Setenv("ANALYSIS_TIMEOUT", "15")
	t.Setenv("RATE_LIMIT_WINDOW", "1m")
	t.Setenv("ANALYSIS_BASE_URL", "http://llm.local/v1/")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DispatchQueue, cfg.Analysis.Dispatch)
	assert.Equal(t, 15*time.Second, cfg.Analysis.Timeout)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "http://llm.local/v1", cfg.Analysis.BaseURL)
}

func TestLoadRejectsUnknownDispatch(t *testing.T) {
	t.Setenv("ANALYSIS_DISPATCH", "cron")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidLimits(t *testing.T) {
	cases := []struct {
		key, value string
	}{
		{"RATE_LIMIT_WINDOW", "0s"},
		{"RATE_LIMIT_WINDOW", "-1m"},
		{"WS_VOLUME_THRESHOLD", "0"},
		{"WS_VOLUME_THRESHOLD", "1.5"},
	}
	for _, tc := range cases {
		t.Run(tc.key+"="+tc.value, func(t *testing.T) {
			t.Setenv("ANALYSIS_DISPATCH", "")
			t.Setenv(tc.key, tc.value)
			_, err := Load()
			assert.ErrorContains(t, err, tc.key)
		})
	}
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{User: "u", Password: "p", Host: "h", Port: "5432", DBName: "d", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@h:5432/d?sslmode=disable", c.DSN())
	c.URL = "postgres://x"
	assert.Equal(t, "postgres://x", c.DSN())
}
