package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAdminIDs(t *testing.T) {
	got := parseAdminIDs(" 1, 22 ,abc,,333")
	assert.Equal(t, map[int64]bool{1: true, 22: true, 333: true}, got)
	assert.Empty(t, parseAdminIDs(""))
}

func TestParseDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "token")
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("STATE_BACKEND", "memory")
	t.Setenv("ADMIN_TG_IDS", "42")
	t.Setenv("BASE_PUBLIC_URL", "https://bot.example.uz/")

	c, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, ":8080", c.HTTPAddr)
	assert.Equal(t, 72*time.Hour, c.StateTTL)
	assert.Equal(t, 35*time.Millisecond, c.BroadcastInterval)
	assert.Equal(t, 8, c.Workers)
	assert.Equal(t, "https://bot.example.uz", c.BasePublicURL)
	assert.Equal(t, "token", c.ExportSecret)
	assert.True(t, c.AdminTGIDs[42])
	assert.False(t, c.SheetsEnabled())
}

func TestParseRejectsIncompleteSetups(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"no token", map[string]string{"STORAGE_DRIVER": "memory", "STATE_BACKEND": "memory"}},
		{"postgres without url", map[string]string{"TELEGRAM_BOT_TOKEN": "t"}},
		{"redis without url", map[string]string{"TELEGRAM_BOT_TOKEN": "t", "STORAGE_DRIVER": "memory", "STATE_BACKEND": "redis"}},
		{"postgres state on memory store", map[string]string{"TELEGRAM_BOT_TOKEN": "t", "STORAGE_DRIVER": "memory"}},
		{"half configured sheets", map[string]string{
			"TELEGRAM_BOT_TOKEN": "t", "STORAGE_DRIVER": "memory", "STATE_BACKEND": "memory",
			"GOOGLE_SHEETS_SPREADSHEET_ID": "sheet",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range []string{"TELEGRAM_BOT_TOKEN", "STORAGE_DRIVER", "STATE_BACKEND", "DATABASE_URL", "REDIS_URL", "GOOGLE_SHEETS_SPREADSHEET_ID", "GOOGLE_SERVICE_ACCOUNT_JSON"} {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
