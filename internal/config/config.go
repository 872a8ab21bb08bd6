// Package config resolves runtime settings from the environment and an
// optional .env file.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/example/studyflow/internal/database"
	sr "github.com/example/studyflow/internal/spaced_repetition"
	"github.com/example/studyflow/internal/unlock"
)

// Config is the configuration to start the service
type Config struct {
	DBType     string // DB_TYPE: sqlite, postgres or mysql
	DBPath     string // DB_PATH, sqlite only
	DBDSN      string // DB_DSN, postgres and mysql
	MaxRetries int    // STORE_MAX_RETRIES

	TelegramToken string // TELEGRAM_BOT_TOKEN

	// Reminders are sent between these UTC hours, both inclusive.
	NotificationStartHour int
	NotificationEndHour   int
	ReminderInterval      time.Duration

	QualityPolicy     sr.QualityPolicy
	SentenceThreshold float64
	ArticleThreshold  float64

	LogLevel  string
	LogFormat string
}

// Load reads .env from the working directory when present and resolves
// every key through viper. Explicit environment variables win over .env.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to read .env")
	}
	return FromViper(NewViper())
}

// NewViper returns a viper instance bound to the environment with every
// default registered
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("DB_TYPE", database.TypeSQLite)
	v.SetDefault("DB_PATH", "data/studyflow.db")
	v.SetDefault("DB_DSN", "")
	v.SetDefault("STORE_MAX_RETRIES", 3)
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("NOTIFICATION_START_HOUR", 4)
	v.SetDefault("NOTIFICATION_END_HOUR", 18)
	v.SetDefault("REMINDER_INTERVAL", time.Hour)
	v.SetDefault("QUALITY_POLICY", string(sr.ClampPolicy))
	v.SetDefault("SENTENCE_UNLOCK_THRESHOLD", unlock.DefaultThreshold)
	v.SetDefault("ARTICLE_UNLOCK_THRESHOLD", unlock.DefaultThreshold)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	return v
}

// FromViper builds a validated Config from v
func FromViper(v *viper.Viper) (*Config, error) {
	policy, err := sr.ParseQualityPolicy(v.GetString("QUALITY_POLICY"))
	if err != nil {
		return nil, err
	}

	c := &Config{
		DBType:                strings.ToLower(strings.TrimSpace(v.GetString("DB_TYPE"))),
		DBPath:                v.GetString("DB_PATH"),
		DBDSN:                 v.GetString("DB_DSN"),
		MaxRetries:            v.GetInt("STORE_MAX_RETRIES"),
		TelegramToken:         v.GetString("TELEGRAM_BOT_TOKEN"),
		NotificationStartHour: v.GetInt("NOTIFICATION_START_HOUR"),
		NotificationEndHour:   v.GetInt("NOTIFICATION_END_HOUR"),
		ReminderInterval:      v.GetDuration("REMINDER_INTERVAL"),
		QualityPolicy:         policy,
		SentenceThreshold:     v.GetFloat64("SENTENCE_UNLOCK_THRESHOLD"),
		ArticleThreshold:      v.GetFloat64("ARTICLE_UNLOCK_THRESHOLD"),
		LogLevel:              strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:             strings.ToLower(v.GetString("LOG_FORMAT")),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks value ranges
func (c *Config) Validate() error {
	switch c.DBType {
	case database.TypeSQLite, database.TypePostgres, database.TypeMySQL:
	default:
		return errors.Errorf("unsupported DB_TYPE %q", c.DBType)
	}
	if c.DBType != database.TypeSQLite && c.DBDSN == "" {
		return errors.Errorf("DB_DSN is required for %s", c.DBType)
	}
	if c.MaxRetries < 0 {
		return errors.Errorf("STORE_MAX_RETRIES must not be negative, got %d", c.MaxRetries)
	}
	if !validHour(c.NotificationStartHour) || !validHour(c.NotificationEndHour) {
		return errors.Errorf("notification hours %d-%d outside 0-23", c.NotificationStartHour, c.NotificationEndHour)
	}
	if c.ReminderInterval < time.Minute {
		return errors.Errorf("REMINDER_INTERVAL %s is shorter than a minute", c.ReminderInterval)
	}
	if !validThreshold(c.SentenceThreshold) || !validThreshold(c.ArticleThreshold) {
		return errors.Errorf("unlock thresholds %v/%v outside (0,1]", c.SentenceThreshold, c.ArticleThreshold)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	return nil
}

// Database returns the connection settings
func (c *Config) Database() database.Config {
	return database.Config{
		Type:       c.DBType,
		Path:       c.DBPath,
		DSN:        c.DBDSN,
		MaxRetries: c.MaxRetries,
	}
}

// Gate returns the unlock gate with the configured thresholds
func (c *Config) Gate() *unlock.Gate {
	return &unlock.Gate{
		SentenceThreshold: c.SentenceThreshold,
		ArticleThreshold:  c.ArticleThreshold,
	}
}

func validHour(h int) bool { return h >= 0 && h <= 23 }

func validThreshold(t float64) bool { return t > 0 && t <= 1 }
