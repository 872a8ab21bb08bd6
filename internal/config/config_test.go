package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/studyflow/internal/database"
	sr "github.com/example/studyflow/internal/spaced_repetition"
)

func TestDefaults(t *testing.T) {
	c, err := FromViper(NewViper())
	require.NoError(t, err)

	assert.Equal(t, database.TypeSQLite, c.DBType)
	assert.Equal(t, "data/studyflow.db", c.DBPath)
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, 4, c.NotificationStartHour)
	assert.Equal(t, 18, c.NotificationEndHour)
	assert.Equal(t, time.Hour, c.ReminderInterval)
	assert.Equal(t, sr.ClampPolicy, c.QualityPolicy)
	assert.Equal(t, 0.8, c.SentenceThreshold)
	assert.Equal(t, 0.8, c.ArticleThreshold)
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, "text", c.LogFormat)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "Postgres")
	t.Setenv("DB_DSN", "postgres://u:p@localhost/db")
	t.Setenv("QUALITY_POLICY", "reject")
	t.Setenv("REMINDER_INTERVAL", "30m")
	t.Setenv("ARTICLE_UNLOCK_THRESHOLD", "0.9")
	t.Setenv("LOG_FORMAT", "JSON")

	c, err := FromViper(NewViper())
	require.NoError(t, err)

	assert.Equal(t, database.TypePostgres, c.DBType)
	assert.Equal(t, sr.RejectPolicy, c.QualityPolicy)
	assert.Equal(t, 30*time.Minute, c.ReminderInterval)
	assert.Equal(t, 0.9, c.ArticleThreshold)
	assert.Equal(t, "json", c.LogFormat)

	db := c.Database()
	assert.Equal(t, database.TypePostgres, db.Type)
	assert.Equal(t, "postgres://u:p@localhost/db", db.DSN)
	assert.Equal(t, 3, db.MaxRetries)

	gate := c.Gate()
	assert.Equal(t, 0.8, gate.SentenceThreshold)
	assert.Equal(t, 0.9, gate.ArticleThreshold)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"unknown db", "DB_TYPE", "oracle"},
		{"network db without dsn", "DB_TYPE", "mysql"},
		{"negative retries", "STORE_MAX_RETRIES", -1},
		{"start hour", "NOTIFICATION_START_HOUR", 24},
		{"end hour", "NOTIFICATION_END_HOUR", -1},
		{"interval", "REMINDER_INTERVAL", "10s"},
		{"zero threshold", "SENTENCE_UNLOCK_THRESHOLD", 0},
		{"large threshold", "ARTICLE_UNLOCK_THRESHOLD", 1.5},
		{"policy", "QUALITY_POLICY", "round"},
		{"log format", "LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViper()
			v.Set(tt.key, tt.val)
			_, err := FromViper(v)
			assert.Error(t, err)
		})
	}
}
