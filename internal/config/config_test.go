package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultComplianceRiskThreshold, cfg.ComplianceRiskThreshold)
	assert.Equal(t, DefaultHoldWindowDays, cfg.HoldWindowDays)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, DefaultSystemActor, cfg.SystemActor)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "COMPLIANCE_RISK_THRESHOLD", "75")
	setEnv(t, "HOLD_WINDOW_DAYS", "45")
	setEnv(t, "SWEEP_INTERVAL", "30s")
	setEnv(t, "ORACLE_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 75, cfg.ComplianceRiskThreshold)
	assert.Equal(t, 45, cfg.HoldWindowDays)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, 5*time.Second, cfg.OracleTimeout)
}

func TestLoad_InvalidThresholdRejected(t *testing.T) {
	setEnv(t, "COMPLIANCE_RISK_THRESHOLD", "150")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "COMPLIANCE_RISK_THRESHOLD")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				ComplianceRiskThreshold: 60,
				HoldWindowDays:          30,
				SweepInterval:           time.Minute,
			},
			wantErr: "",
		},
		{
			name: "threshold out of range",
			config: Config{
				ComplianceRiskThreshold: 101,
				HoldWindowDays:          30,
				SweepInterval:           time.Minute,
			},
			wantErr: "COMPLIANCE_RISK_THRESHOLD",
		},
		{
			name: "negative threshold",
			config: Config{
				ComplianceRiskThreshold: -1,
				HoldWindowDays:          30,
				SweepInterval:           time.Minute,
			},
			wantErr: "COMPLIANCE_RISK_THRESHOLD",
		},
		{
			name: "zero hold window",
			config: Config{
				ComplianceRiskThreshold: 60,
				HoldWindowDays:          0,
				SweepInterval:           time.Minute,
			},
			wantErr: "HOLD_WINDOW_DAYS",
		},
		{
			name: "zero sweep interval",
			config: Config{
				ComplianceRiskThreshold: 60,
				HoldWindowDays:          30,
				SweepInterval:           0,
			},
			wantErr: "SWEEP_INTERVAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}

func TestGetEnv(t *testing.T) {
	setEnv(t, "TEST_VAR", "custom_value")

	assert.Equal(t, "custom_value", getEnv("TEST_VAR", "default"))
	assert.Equal(t, "default", getEnv("NONEXISTENT_VAR", "default"))
}

func TestGetEnvInt(t *testing.T) {
	setEnv(t, "TEST_INT", "42")
	setEnv(t, "TEST_INVALID", "not_a_number")

	assert.Equal(t, 42, getEnvInt("TEST_INT", 0))
	assert.Equal(t, 99, getEnvInt("NONEXISTENT_VAR", 99))
	assert.Equal(t, 99, getEnvInt("TEST_INVALID", 99)) // Falls back on parse error
}

func TestGetEnvDuration(t *testing.T) {
	setEnv(t, "TEST_DUR", "90s")
	setEnv(t, "TEST_BAD_DUR", "ninety")

	assert.Equal(t, 90*time.Second, getEnvDuration("TEST_DUR", time.Minute))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_BAD_DUR", time.Minute))
}
