package service

import (
	"testing"
	"time"

	"github.com/marginalia-labs/marginalia/internal/application/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		now  string
		want string
	}{
		{"mid-week", "2025-09-10T13:00:00Z", "2025-09-08T00:00:00Z"},
		{"monday itself", "2025-09-08T00:30:00Z", "2025-09-08T00:00:00Z"},
		{"sunday rolls back", "2025-09-14T23:59:00Z", "2025-09-08T00:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now, err := time.Parse(time.RFC3339, tt.now)
			require.NoError(t, err)
			want, err := time.Parse(time.RFC3339, tt.want)
			require.NoError(t, err)
			assert.Equal(t, want, WeekStart(now))
		})
	}
}

func TestShouldSendTimezone(t *testing.T) {
	// 2025-09-10 is a Wednesday; with 0=Sunday that is preferred_day 3.
	prefs := &repository.EmailPreferences{
		WeeklyDigestEnabled: true,
		PreferredDay:        3,
		PreferredHour:       22,
		Timezone:            "Asia/Tokyo",
		NoActivityPolicy:    "skip",
	}

	// UTC 2025-09-10 13:00 is Wednesday 22:00 in Tokyo.
	at13, _ := time.Parse(time.RFC3339, "2025-09-10T13:00:00Z")
	assert.True(t, ShouldSend(prefs, at13, true, false))

	// UTC 2025-09-10 12:00 is Wednesday 21:00 in Tokyo — hour mismatch.
	at12, _ := time.Parse(time.RFC3339, "2025-09-10T12:00:00Z")
	assert.False(t, ShouldSend(prefs, at12, true, false))
}

func TestShouldSendMatrix(t *testing.T) {
	matching, _ := time.Parse(time.RFC3339, "2025-09-10T09:30:00Z") // Wednesday 09 UTC
	base := repository.EmailPreferences{
		WeeklyDigestEnabled: true,
		PreferredDay:        3,
		PreferredHour:       9,
		Timezone:            "UTC",
		NoActivityPolicy:    "skip",
	}

	tests := []struct {
		name        string
		mutate      func(*repository.EmailPreferences)
		hasInsights bool
		force       bool
		want        bool
	}{
		{"all conditions met", func(p *repository.EmailPreferences) {}, true, false, true},
		{"digest disabled", func(p *repository.EmailPreferences) { p.WeeklyDigestEnabled = false }, true, false, false},
		{"wrong day", func(p *repository.EmailPreferences) { p.PreferredDay = 4 }, true, false, false},
		{"wrong hour", func(p *repository.EmailPreferences) { p.PreferredHour = 10 }, true, false, false},
		{"no activity with skip policy", func(p *repository.EmailPreferences) {}, false, false, false},
		{"no activity with brief policy", func(p *repository.EmailPreferences) { p.NoActivityPolicy = "brief" }, false, false, true},
		{"no activity with suggestions policy", func(p *repository.EmailPreferences) { p.NoActivityPolicy = "suggestions" }, false, false, true},
		{"force bypasses schedule", func(p *repository.EmailPreferences) { p.WeeklyDigestEnabled = false; p.PreferredDay = 0 }, false, true, true},
		{"unknown timezone falls back to UTC", func(p *repository.EmailPreferences) { p.Timezone = "Not/AZone" }, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefs := base
			tt.mutate(&prefs)
			assert.Equal(t, tt.want, ShouldSend(&prefs, matching, tt.hasInsights, tt.force))
		})
	}
}
