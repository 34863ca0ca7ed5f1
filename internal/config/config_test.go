package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultValues(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "rescuenet", cfg.Database.Database)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)

	assert.Equal(t, 50.0, cfg.Monitor.HeartRateMin)
	assert.Equal(t, 120.0, cfg.Monitor.HeartRateMax)
	assert.Equal(t, 35.0, cfg.Monitor.TemperatureMin)
	assert.Equal(t, 38.5, cfg.Monitor.TemperatureMax)
	assert.Equal(t, 70.0, cfg.Monitor.SystolicMin)
	assert.Equal(t, 180.0, cfg.Monitor.SystolicMax)
	assert.Equal(t, 15.0, cfg.Monitor.FallMagnitude)
	assert.Equal(t, 10, cfg.Monitor.Patterns.MinSamples)
	assert.Equal(t, 10.0, cfg.Monitor.Patterns.DailyRhythmDelta)
	assert.Equal(t, 15.0, cfg.Monitor.Patterns.WeeklyStressDelta)
	assert.Equal(t, 6, cfg.Monitor.OutlierMinSamples)

	assert.Equal(t, 8*time.Second, cfg.Dispatch.ChannelTimeout)
	assert.Equal(t, 480, cfg.Dispatch.SMSMaxLength)
	assert.Equal(t, []string{"ambulance", "volunteer"}, cfg.Dispatch.ResponderKinds)
	assert.Equal(t, "log", cfg.Notify.SMSProvider)
	assert.Equal(t, "mqtt", cfg.Ingest.Source)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, time.UTC, cfg.Location())
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	os.Clearenv()
	t.Setenv("DB_HOST", "pg")
	t.Setenv("HR_MAX", "130")
	t.Setenv("BASELINE_PERCENT", "25")
	t.Setenv("DISPATCH_CHANNEL_TIMEOUT", "5s")
	t.Setenv("RESPONDER_KINDS", "ambulance, hospital ,")
	t.Setenv("NOTIFY_SUBJECT_EMAIL", "false")
	t.Setenv("SMS_PROVIDER", "twilio")
	t.Setenv("MONITOR_TIMEZONE", "Asia/Kolkata")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pg", cfg.Database.Host)
	assert.Equal(t, 130.0, cfg.Monitor.HeartRateMax)
	assert.Equal(t, 25.0, cfg.Monitor.BaselinePercent)
	assert.Equal(t, 5*time.Second, cfg.Dispatch.ChannelTimeout)
	assert.Equal(t, []string{"ambulance", "hospital"}, cfg.Dispatch.ResponderKinds)
	assert.False(t, cfg.Dispatch.NotifySubjectEmail)
	assert.Equal(t, "twilio", cfg.Notify.SMSProvider)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestGetEnv_InvalidNumbersFallBack(t *testing.T) {
	os.Clearenv()
	t.Setenv("TEST_INT", "abc")
	t.Setenv("TEST_FLOAT", "x1")
	t.Setenv("TEST_DURATION", "soon")

	assert.Equal(t, 7, getEnvInt("TEST_INT", 7))
	assert.Equal(t, 1.5, getEnvFloat("TEST_FLOAT", 1.5))
	assert.Equal(t, time.Minute, getEnvDuration("TEST_DURATION", time.Minute))
	assert.Equal(t, "default-value", getEnv("TEST_MISSING", "default-value"))
}
