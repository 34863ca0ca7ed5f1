package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_NAME", "rescuenet")
	t.Setenv("PG_MAX_CONNS", "not-a-number")
	t.Setenv("PG_CONN_MAX_LIFETIME", "90s")

	cfg := DatabaseConfig{Port: 5432, MaxConns: 10, SSLMode: "disable"}
	cfg.LoadFromEnv("PG")

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "rescuenet", cfg.Database)
	// 非法值保留默认
	assert.Equal(t, 10, cfg.MaxConns)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.Equal(t, "host=db.internal port=6543 user= password= dbname=rescuenet sslmode=disable", cfg.GetDSN())
}

func TestMQTTConfig_LoadFromEnv_QoS(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_QOS", "1")

	cfg := MQTTConfig{}
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, byte(1), cfg.QoS)

	t.Setenv("MQTT_QOS", "7")
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, byte(1), cfg.QoS)
}

func TestRedisConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("CACHE_ADDR", "redis:6380")
	t.Setenv("CACHE_DB", "3")

	cfg := RedisConfig{Addr: "localhost:6379"}
	cfg.LoadFromEnv("CACHE")
	assert.Equal(t, "redis:6380", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
}
