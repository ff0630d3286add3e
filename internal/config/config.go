package config

import (
	"time"

	"github.com/esign-tools/renotify/internal/obs"
	pginfra "github.com/esign-tools/renotify/internal/repository/postgres"
	"github.com/esign-tools/renotify/internal/repository/signhub"
)

type DefaultsCfg struct {
	IntervalDays int `mapstructure:"interval_days"`
	MaxReminders int `mapstructure:"max_reminders"`
}

type SchedCfg struct {
	Tick        time.Duration `mapstructure:"tick"`
	Timezone    string        `mapstructure:"timezone"`
	MetricsAddr string        `mapstructure:"metrics_addr"`
	Discovery   bool          `mapstructure:"discovery"`
	BatchLimit  int           `mapstructure:"batch_limit"`
}

type KafkaCfg struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// Enabled reports whether event publishing is configured at all.
func (k KafkaCfg) Enabled() bool { return len(k.Brokers) > 0 }

type LogCfg struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type OTELCfg struct {
	Enable      bool    `mapstructure:"enable"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

func (o OTELCfg) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      o.Enable,
		Endpoint:    o.Endpoint,
		ServiceName: o.ServiceName,
		SampleRatio: o.SampleRatio,
	}
}

type Config struct {
	Provider signhub.Config `mapstructure:"provider"`
	DB       pginfra.Config `mapstructure:"db"`
	Defaults DefaultsCfg    `mapstructure:"defaults"`
	Sched    SchedCfg       `mapstructure:"sched"`
	Kafka    KafkaCfg       `mapstructure:"kafka"`
	Log      LogCfg         `mapstructure:"log"`
	OTEL     OTELCfg        `mapstructure:"otel"`
}

func (c *Config) AsLoggerConfig(app string) obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    app,
		Env:    "prod",
		Ver:    "dev",
	}
}

// Location resolves the configured scheduler timezone, defaulting to UTC.
func (c *Config) Location() *time.Location {
	if c.Sched.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Sched.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
