package config

import (
	"errors"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"slotbook/internal/slots"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		APIKey string `yaml:"api_key"`
	} `yaml:"server"`

	Calendar struct {
		BaseURL         string  `yaml:"base_url"`
		APIKey          string  `yaml:"api_key"`
		APIExtra        string  `yaml:"api_extra"`
		TimeoutSeconds  int     `yaml:"timeout_seconds"`
		CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
		RatePerSecond   float64 `yaml:"rate_per_second"`
		Burst           int     `yaml:"burst"`
	} `yaml:"calendar"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Schedule struct {
		Open        string   `yaml:"open"`
		Close       string   `yaml:"close"`
		StepMinutes int      `yaml:"step_minutes"`
		Slots       []string `yaml:"slots"`
		Strategy    string   `yaml:"strategy"`
		Timezone    string   `yaml:"timezone"`
	} `yaml:"schedule"`

	Sessions struct {
		IdleMinutes  int `yaml:"idle_minutes"`
		SweepSeconds int `yaml:"sweep_seconds"`
	} `yaml:"sessions"`

	Watch struct {
		Enabled         bool `yaml:"enabled"`
		IntervalSeconds int  `yaml:"interval_seconds"`
	} `yaml:"watch"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if len(c.Schedule.Slots) == 0 {
		def := slots.DefaultWorkingHours()
		if c.Schedule.Open == "" {
			c.Schedule.Open = def.Open
		}
		if c.Schedule.Close == "" {
			c.Schedule.Close = def.Close
		}
		if c.Schedule.StepMinutes <= 0 {
			c.Schedule.StepMinutes = def.StepMinutes
		}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks the settings that cannot be defaulted.
func (c *Config) Validate() error {
	if c.Calendar.BaseURL == "" {
		return errors.New("calendar.base_url is required")
	}
	if _, err := c.Grid(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if _, err := c.Strategy(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	return nil
}

// Grid builds the slot grid. An explicit slots list wins over open/close/step.
func (c *Config) Grid() (*slots.Grid, error) {
	if len(c.Schedule.Slots) > 0 {
		tokens := make([]slots.TimeToken, len(c.Schedule.Slots))
		for i, s := range c.Schedule.Slots {
			tokens[i] = slots.TimeToken(s)
		}
		return slots.NewGrid(tokens)
	}
	return slots.GenerateGrid(slots.WorkingHours{
		Open:        c.Schedule.Open,
		Close:       c.Schedule.Close,
		StepMinutes: c.Schedule.StepMinutes,
	})
}

func (c *Config) Strategy() (slots.Strategy, error) {
	return slots.ParseStrategy(c.Schedule.Strategy)
}

// Location is the timezone used to interpret calendar dates. Empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Schedule.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Schedule.Timezone)
}

func (c *Config) CalendarTimeout() time.Duration {
	if c.Calendar.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Calendar.TimeoutSeconds) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Calendar.CacheTTLSeconds) * time.Second
}

func (c *Config) WatchInterval() time.Duration {
	if c.Watch.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Watch.IntervalSeconds) * time.Second
}

// SessionIdle is how long a session's slots are kept without a refresh or read.
func (c *Config) SessionIdle() time.Duration {
	if c.Sessions.IdleMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Sessions.IdleMinutes) * time.Minute
}

func (c *Config) SessionSweepInterval() time.Duration {
	if c.Sessions.SweepSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Sessions.SweepSeconds) * time.Second
}
