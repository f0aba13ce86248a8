package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env  string
	Addr string

	// "*" accepts any origin
	AllowedOrigins []string

	SendBuffer     int
	MaxMessageSize int64
	WriteWait      time.Duration
	PongWait       time.Duration

	AuditDB      string
	RedisURL     string
	RedisChannel string
}

func Default() Config {
	return Config{
		Env:            "dev",
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		SendBuffer:     256,
		MaxMessageSize: 4096,
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		RedisChannel:   "drawsync:events",
	}
}

// Load reads .env when present, then the process environment. Unset
// variables keep their Default value.
func Load() Config {
	// missing .env is fine
	_ = godotenv.Load()

	c := Default()
	c.Env = envString("ENV", c.Env)
	c.Addr = envString("ADDR", c.Addr)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = splitList(v)
	}
	c.SendBuffer = envInt("SEND_BUFFER", c.SendBuffer)
	c.MaxMessageSize = int64(envInt("MAX_MESSAGE_SIZE", int(c.MaxMessageSize)))
	c.WriteWait = envDuration("WRITE_WAIT", c.WriteWait)
	c.PongWait = envDuration("PONG_WAIT", c.PongWait)
	c.AuditDB = envString("AUDIT_DB", c.AuditDB)
	c.RedisURL = envString("REDIS_URL", c.RedisURL)
	c.RedisChannel = envString("REDIS_CHANNEL", c.RedisChannel)

	return c
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

// PingPeriod must stay below PongWait so the peer has time to answer.
func (c Config) PingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
