/*
Package config loads runtime configuration.

SOURCES (highest precedence first):
  1. Command-line flags bound with BindFlags
  2. Environment variables, prefix SCHEDULES_, dots become underscores
     (SCHEDULES_DB, SCHEDULES_LOG_LEVEL, SCHEDULES_KAFKA_BROKERS)
  3. Optional YAML config file (--config)
  4. Defaults below

KEYS:
  port                      HTTP port (8080)
  db                        SQLite path (schedules.db)
  log.level                 info
  log.format                console | json (console)
  log.file                  rotating log file, empty = stdout only
  generation.concurrency    periods projected in parallel (4)
  generation.max_walk_days  working-day walk cap (3660)
  scheduler.enabled         rolling generation on/off (false)
  scheduler.interval        time between runs (24h)
  scheduler.horizon_months  months generated ahead (12)
  kafka.brokers             comma-separated, empty = no publishing
  kafka.topic               payroll-schedules
*/
package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/warp/payroll-schedules/generic"
	"github.com/warp/payroll-schedules/logging"
	"github.com/warp/payroll-schedules/schedule"
)

// EnvPrefix is prepended to every environment variable.
const EnvPrefix = "SCHEDULES"

// Config is the validated configuration.
type Config struct {
	Port       int
	DB         string
	Log        logging.Config
	Generation GenerationConfig
	Scheduler  SchedulerConfig
	Kafka      KafkaConfig
}

type GenerationConfig struct {
	Concurrency int
	MaxWalkDays int
}

type SchedulerConfig struct {
	Enabled       bool
	Interval      time.Duration
	HorizonMonths int
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers every key so AutomaticEnv can find it.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("db", "schedules.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.file", "")
	v.SetDefault("generation.concurrency", schedule.DefaultConcurrency)
	v.SetDefault("generation.max_walk_days", generic.DefaultMaxWalk)
	v.SetDefault("scheduler.enabled", false)
	v.SetDefault("scheduler.interval", "24h")
	v.SetDefault("scheduler.horizon_months", 12)
	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "payroll-schedules")
}

// BindFlags binds persistent flags to their keys. Flags are looked up by
// name with dots and underscores replaced by dashes
// (generation.max_walk_days -> --generation-max-walk-days).
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for _, key := range v.AllKeys() {
		name := strings.NewReplacer(".", "-", "_", "-").Replace(key)
		if f := flags.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}
	return nil
}

// ReadFile merges a YAML config file when path is set.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	return errors.Wrapf(v.ReadInConfig(), "read config %s", path)
}

// Load reads every key and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		Port: v.GetInt("port"),
		DB:   v.GetString("db"),
		Log: logging.Config{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			File:   v.GetString("log.file"),
		},
		Generation: GenerationConfig{
			Concurrency: v.GetInt("generation.concurrency"),
			MaxWalkDays: v.GetInt("generation.max_walk_days"),
		},
		Scheduler: SchedulerConfig{
			Enabled:       v.GetBool("scheduler.enabled"),
			Interval:      v.GetDuration("scheduler.interval"),
			HorizonMonths: v.GetInt("scheduler.horizon_months"),
		},
		Kafka: KafkaConfig{
			Brokers: splitBrokers(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
	}
	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return errors.Errorf("port %d out of range", c.Port)
	case c.DB == "":
		return errors.New("db is required")
	case c.Generation.Concurrency < 1:
		return errors.Errorf("generation.concurrency must be at least 1, got %d", c.Generation.Concurrency)
	case c.Generation.MaxWalkDays < 1:
		return errors.Errorf("generation.max_walk_days must be at least 1, got %d", c.Generation.MaxWalkDays)
	case c.Scheduler.Enabled && c.Scheduler.Interval <= 0:
		return errors.New("scheduler.interval must be positive")
	case c.Scheduler.HorizonMonths < 1 || c.Scheduler.HorizonMonths > 12*generic.MaxRangeYears:
		return errors.Errorf("scheduler.horizon_months must be between 1 and %d, got %d", 12*generic.MaxRangeYears, c.Scheduler.HorizonMonths)
	}
	return nil
}

// splitBrokers accepts both list values and one comma-separated string.
func splitBrokers(in []string) []string {
	var out []string
	for _, item := range in {
		for _, b := range strings.Split(item, ",") {
			if b = strings.TrimSpace(b); b != "" {
				out = append(out, b)
			}
		}
	}
	return out
}
