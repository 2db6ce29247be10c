package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Engine struct {
		InitialGrant      string            `yaml:"initial_grant"`
		Tick              string            `yaml:"tick"`
		PenaltyTick       string            `yaml:"penalty_tick"`
		ResetTick         string            `yaml:"reset_tick"`
		RewardDefault     string            `yaml:"reward_default"`
		RewardStreakBonus string            `yaml:"reward_streak_bonus"`
		Rewards           map[string]string `yaml:"rewards"`
	} `yaml:"engine"`
}

// Load reads YAML config from path. A missing file yields the zero config
// so the daemon can run with built-in defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// DurationOr parses a duration string or returns the fallback if empty or
// invalid.
func DurationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
