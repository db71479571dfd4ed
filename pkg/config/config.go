package config

import (
	"os"
	"strconv"
	"time"
)

// DBConfig 数据库配置
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// DSN 返回 postgres 连接串
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.Name + "?sslmode=disable"
}

// MQConfig 消息队列配置，URL 为空表示不启用
type MQConfig struct {
	URL          string `yaml:"url"`
	Queue        string `yaml:"queue"`
	Exchange     string `yaml:"exchange"`
	ExchangeKind string `yaml:"exchange_kind"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `yaml:"port"`
}

// APIConfig 外部 REST API 配置
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CircuitBreakerConfig 熔断器配置，Enabled=false 时调用直接透传
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// SessionConfig 会话存储配置
type SessionConfig struct {
	Backend    string        `yaml:"backend"` // memory / redis / postgres
	TTL        time.Duration `yaml:"ttl"`
	CookieName string        `yaml:"cookie_name"`
	Secure     bool          `yaml:"secure"`
}

// OverrideDBFromEnv 从环境变量覆盖数据库配置
func OverrideDBFromEnv(cfg *DBConfig) {
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Password = password
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Name = name
	}
}

// OverrideMQFromEnv 从环境变量覆盖MQ配置
func OverrideMQFromEnv(cfg *MQConfig) {
	if url := os.Getenv("MQ_URL"); url != "" {
		cfg.URL = url
	}
	if exchange := os.Getenv("MQ_EXCHANGE"); exchange != "" {
		cfg.Exchange = exchange
	}
}

// OverrideRedisFromEnv 从环境变量覆盖Redis配置
func OverrideRedisFromEnv(cfg *RedisConfig) {
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Password = password
	}
}

// OverrideServerFromEnv 从环境变量覆盖服务器配置
func OverrideServerFromEnv(cfg *ServerConfig) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
}

// OverrideAPIFromEnv 从环境变量覆盖外部 API 配置
func OverrideAPIFromEnv(cfg *APIConfig) {
	if url := os.Getenv("API_BASE_URL"); url != "" {
		cfg.BaseURL = url
	}
	if timeout := os.Getenv("API_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			cfg.Timeout = d
		}
	}
}

// OverrideSessionFromEnv 从环境变量覆盖会话配置
func OverrideSessionFromEnv(cfg *SessionConfig) {
	if backend := os.Getenv("SESSION_BACKEND"); backend != "" {
		cfg.Backend = backend
	}
	if secure := os.Getenv("SESSION_SECURE"); secure != "" {
		if b, err := strconv.ParseBool(secure); err == nil {
			cfg.Secure = b
		}
	}
}
