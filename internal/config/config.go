package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"taskhub/pkg/config"
)

type TasksConfig struct {
	MaxAttachmentBytes int64 `yaml:"max_attachment_bytes"`
}

type Config struct {
	Server         config.ServerConfig         `yaml:"server"`
	API            config.APIConfig            `yaml:"api"`
	CircuitBreaker config.CircuitBreakerConfig `yaml:"circuit_breaker"`
	Session        config.SessionConfig        `yaml:"session"`
	DB             config.DBConfig             `yaml:"db"`
	Redis          config.RedisConfig          `yaml:"redis"`
	MQ             config.MQConfig             `yaml:"mq"`
	Tasks          TasksConfig                 `yaml:"tasks"`
	DedupTTL       time.Duration               `yaml:"dedup_ttl"`
}

// Load 读取 configDir 下的 base.yaml 与 {env}.yaml，再用环境变量覆盖
func Load(env, configDir string) (*Config, error) {
	raw, err := config.LoadConfig(env, configDir)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := config.Decode(raw, &cfg); err != nil {
		return nil, err
	}

	// 环境变量覆盖
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideAPIFromEnv(&cfg.API)
	config.OverrideSessionFromEnv(&cfg.Session)
	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideMQFromEnv(&cfg.MQ)
	if max := os.Getenv("MAX_ATTACHMENT_BYTES"); max != "" {
		if n, err := strconv.ParseInt(max, 10, 64); err == nil {
			cfg.Tasks.MaxAttachmentBytes = n
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.Session.Backend == "" {
		c.Session.Backend = "memory"
	}
	if c.Session.TTL <= 0 {
		c.Session.TTL = 24 * time.Hour
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "taskhub_session"
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = 10 * time.Minute
	}
}

func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	switch c.Session.Backend {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis session backend")
		}
	case "postgres":
		if c.DB.Host == "" {
			return fmt.Errorf("db.host is required for the postgres session backend")
		}
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	return nil
}
