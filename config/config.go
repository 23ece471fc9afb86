// Package config 从环境变量读取服务配置
package config

import (
	"fmt"

	"go-khora/engine"

	"github.com/caarlos0/env/v11"
)

const (
	StoreMySQL  = "mysql"
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// DefaultJWTSecret 只用于本地开发，生产环境必须覆盖
const DefaultJWTSecret = "access-secret"

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	StoreDriver     string `env:"STORE_DRIVER" envDefault:"sqlite"`
	StoreMaxRetries int    `env:"STORE_MAX_RETRIES" envDefault:"10"`
	MySQLDSN        string `env:"MYSQL_DSN"`
	SQLitePath      string `env:"SQLITE_PATH" envDefault:"khora.db"`
	RedisAddr       string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword   string `env:"REDIS_PASSWORD"`
	RedisDB         int    `env:"REDIS_DB" envDefault:"0"`

	JWTSecret   string   `env:"JWT_SECRET" envDefault:"access-secret"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`

	StartingDrachmas         int    `env:"STARTING_DRACHMAS" envDefault:"0"`
	StartingPhilosophyTokens int    `env:"STARTING_PHILOSOPHY_TOKENS" envDefault:"0"`
	EffectBonusPolicy        string `env:"EFFECT_BONUS_POLICY" envDefault:"level_rewards"`
}

// Load 解析环境变量并校验
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("STORE_DRIVER=mysql 需要设置 MYSQL_DSN")
		}
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("未知的 STORE_DRIVER: %q", c.StoreDriver)
	}
	if c.StoreMaxRetries < 1 {
		return fmt.Errorf("STORE_MAX_RETRIES 必须大于0")
	}
	if c.StartingDrachmas < 0 || c.StartingPhilosophyTokens < 0 {
		return fmt.Errorf("初始金币和哲学标记不能为负")
	}
	if _, err := engine.ParseBonusPolicy(c.EffectBonusPolicy); err != nil {
		return err
	}
	if c.Production() && (c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret) {
		return fmt.Errorf("APP_ENV=%s 必须设置 JWT_SECRET", c.AppEnv)
	}
	return nil
}

func (c Config) BonusPolicy() engine.BonusPolicy {
	p, _ := engine.ParseBonusPolicy(c.EffectBonusPolicy)
	return p
}

// Production 非 development 环境用 json 日志
func (c Config) Production() bool {
	return c.AppEnv != "development"
}
