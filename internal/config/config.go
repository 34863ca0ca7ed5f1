package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"rescuenet/common/config"
)

// Config 报警核心服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 检测与分析
	Monitor struct {
		HeartRateMin    float64
		HeartRateMax    float64
		TemperatureMin  float64
		TemperatureMax  float64
		SystolicMin     float64
		SystolicMax     float64
		FallMagnitude   float64 // 合加速度阈值（m/s²）
		BaselinePercent float64 // >0 时按个人基线 ±N% 覆盖心率/体温阈值

		Patterns struct {
			MinSamples        int     // 少于该样本数不做规律挖掘，默认 10
			DailyRhythmDelta  float64 // 昼夜心率差阈值，默认 10
			WeeklyStressDelta float64 // 周内日均心率差阈值，默认 15
		}

		OutlierMinSamples int // 默认 6
		OutlierWindow     int // 入库时做离群检测的心率窗口大小
		HistoryLimit      int // 分析报告读取的历史样本数
		Timezone          string
	}

	// 升级分发
	Dispatch struct {
		ChannelTimeout         time.Duration
		MaxParallel            int
		DashboardURL           string
		SMSMaxLength           int
		EmergencyServicesPhone string
		NotifySubjectEmail     bool
		OpsChatID              string
		PushEnabled            bool
		ResponderKinds         []string
		IdempotencyTTL         time.Duration
	}

	// 通知渠道
	Notify struct {
		SMSProvider string // log, twilio, device

		Twilio struct {
			BaseURL    string
			AccountSID string
			AuthToken  string
			From       string
		}

		SMTP struct {
			Host     string
			Port     int
			Username string
			Password string
			From     string
		}

		Telegram struct {
			BaseURL string
			Token   string
		}

		Push struct {
			Stream string
			MaxLen int64
		}

		DeviceSMSTopic string // 例如 "rescuenet/%s/sms"，%s 为设备 ID
	}

	Responder struct {
		Provider string // mock, http
		BaseURL  string
		Timeout  time.Duration
	}

	// Redis 缓存
	Cache struct {
		WindowKeyPrefix      string
		WindowTTL            time.Duration
		IdempotencyKeyPrefix string
	}

	// 数据接入
	Ingest struct {
		Source    string // mqtt, stream
		Topic     string
		Stream    string
		Group     string
		Consumer  string
		BatchSize int64
		Block     time.Duration
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量覆盖默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "rescuenet"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 5
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "rescuenet-alarm"
	cfg.MQTT.QoS = 1
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Monitor.HeartRateMin = getEnvFloat("HR_MIN", 50)
	cfg.Monitor.HeartRateMax = getEnvFloat("HR_MAX", 120)
	cfg.Monitor.TemperatureMin = getEnvFloat("TEMP_MIN", 35.0)
	cfg.Monitor.TemperatureMax = getEnvFloat("TEMP_MAX", 38.5)
	cfg.Monitor.SystolicMin = getEnvFloat("BP_SYSTOLIC_MIN", 70)
	cfg.Monitor.SystolicMax = getEnvFloat("BP_SYSTOLIC_MAX", 180)
	cfg.Monitor.FallMagnitude = getEnvFloat("FALL_MAGNITUDE", 15)
	cfg.Monitor.BaselinePercent = getEnvFloat("BASELINE_PERCENT", 0)
	cfg.Monitor.Patterns.MinSamples = getEnvInt("PATTERN_MIN_SAMPLES", 10)
	cfg.Monitor.Patterns.DailyRhythmDelta = getEnvFloat("PATTERN_DAILY_DELTA", 10)
	cfg.Monitor.Patterns.WeeklyStressDelta = getEnvFloat("PATTERN_WEEKLY_DELTA", 15)
	cfg.Monitor.OutlierMinSamples = getEnvInt("OUTLIER_MIN_SAMPLES", 6)
	cfg.Monitor.OutlierWindow = getEnvInt("OUTLIER_WINDOW", 50)
	cfg.Monitor.HistoryLimit = getEnvInt("HISTORY_LIMIT", 100)
	cfg.Monitor.Timezone = getEnv("MONITOR_TIMEZONE", "UTC")

	cfg.Dispatch.ChannelTimeout = getEnvDuration("DISPATCH_CHANNEL_TIMEOUT", 8*time.Second)
	cfg.Dispatch.MaxParallel = getEnvInt("DISPATCH_MAX_PARALLEL", 4)
	cfg.Dispatch.DashboardURL = getEnv("SERVER_URL", "http://localhost:3000")
	cfg.Dispatch.SMSMaxLength = getEnvInt("SMS_MAX_LENGTH", 480)
	cfg.Dispatch.EmergencyServicesPhone = getEnv("EMERGENCY_PHONE", "")
	cfg.Dispatch.NotifySubjectEmail = getEnvBool("NOTIFY_SUBJECT_EMAIL", true)
	cfg.Dispatch.OpsChatID = getEnv("TELEGRAM_OPS_CHAT_ID", "")
	cfg.Dispatch.PushEnabled = getEnvBool("DASHBOARD_PUSH_ENABLED", true)
	cfg.Dispatch.ResponderKinds = getEnvList("RESPONDER_KINDS", []string{"ambulance", "volunteer"})
	cfg.Dispatch.IdempotencyTTL = getEnvDuration("DISPATCH_IDEMPOTENCY_TTL", 24*time.Hour)

	cfg.Notify.SMSProvider = getEnv("SMS_PROVIDER", "log")
	cfg.Notify.Twilio.BaseURL = getEnv("TWILIO_BASE_URL", "https://api.twilio.com")
	cfg.Notify.Twilio.AccountSID = getEnv("TWILIO_ACCOUNT_SID", "")
	cfg.Notify.Twilio.AuthToken = getEnv("TWILIO_AUTH_TOKEN", "")
	cfg.Notify.Twilio.From = getEnv("TWILIO_PHONE", "")
	cfg.Notify.SMTP.Host = getEnv("SMTP_HOST", "")
	cfg.Notify.SMTP.Port = getEnvInt("SMTP_PORT", 587)
	cfg.Notify.SMTP.Username = getEnv("SMTP_USER", "")
	cfg.Notify.SMTP.Password = getEnv("SMTP_PASSWORD", "")
	cfg.Notify.SMTP.From = getEnv("SMTP_FROM", "alerts@rescuenet.local")
	cfg.Notify.Telegram.BaseURL = getEnv("TELEGRAM_BASE_URL", "https://api.telegram.org")
	cfg.Notify.Telegram.Token = getEnv("TELEGRAM_BOT_TOKEN", "")
	cfg.Notify.Push.Stream = getEnv("DASHBOARD_STREAM", "rescuenet:dashboard:events")
	cfg.Notify.Push.MaxLen = int64(getEnvInt("DASHBOARD_STREAM_MAXLEN", 10000))
	cfg.Notify.DeviceSMSTopic = getEnv("DEVICE_SMS_TOPIC", "rescuenet/%s/sms")

	cfg.Responder.Provider = getEnv("RESPONDER_PROVIDER", "mock")
	cfg.Responder.BaseURL = getEnv("RESPONDER_BASE_URL", "")
	cfg.Responder.Timeout = getEnvDuration("RESPONDER_TIMEOUT", 3*time.Second)

	cfg.Cache.WindowKeyPrefix = getEnv("CACHE_WINDOW_PREFIX", "rescuenet:window:")
	cfg.Cache.WindowTTL = getEnvDuration("CACHE_WINDOW_TTL", 30*time.Second)
	cfg.Cache.IdempotencyKeyPrefix = getEnv("CACHE_DISPATCH_PREFIX", "rescuenet:dispatch:")

	cfg.Ingest.Source = getEnv("INGEST_SOURCE", "mqtt")
	cfg.Ingest.Topic = getEnv("INGEST_TOPIC", "rescuenet/+/vitals")
	cfg.Ingest.Stream = getEnv("INGEST_STREAM", "rescuenet:vitals")
	cfg.Ingest.Group = getEnv("INGEST_GROUP", "rescuenet-alarm")
	cfg.Ingest.Consumer = getEnv("INGEST_CONSUMER", defaultConsumerName())
	cfg.Ingest.BatchSize = int64(getEnvInt("INGEST_BATCH_SIZE", 10))
	cfg.Ingest.Block = getEnvDuration("INGEST_BLOCK", 5*time.Second)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

// Location 解析监控时区，非法值回落到 UTC
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Monitor.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaultConsumerName() string {
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "rescuenet-alarm-1"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList 逗号分隔列表
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
