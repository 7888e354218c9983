package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScheduler(t *testing.T, settings ScheduleSettings) *Scheduler {
	t.Helper()
	s, err := NewScheduler(nil, nil, settings)
	require.NoError(t, err)
	return s
}

func TestNextRunBeforeFireTime(t *testing.T) {
	s := newTestScheduler(t, ScheduleSettings{Timezone: "Asia/Taipei", Hour: 20, Minute: 0})
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	s.now = func() time.Time {
		return time.Date(2026, 8, 31, 19, 59, 0, 0, loc)
	}

	next := s.NextRun()
	assert.Equal(t, time.Date(2026, 8, 31, 20, 0, 0, 0, loc), next)
}

func TestNextRunAfterFireTimeRollsToTomorrow(t *testing.T) {
	s := newTestScheduler(t, ScheduleSettings{Timezone: "Asia/Taipei", Hour: 20, Minute: 0})
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	s.now = func() time.Time {
		return time.Date(2026, 8, 31, 20, 1, 0, 0, loc)
	}

	next := s.NextRun()
	assert.Equal(t, time.Date(2026, 9, 1, 20, 0, 0, 0, loc), next)
}

func TestNextRunAtExactFireTimeRollsToTomorrow(t *testing.T) {
	s := newTestScheduler(t, ScheduleSettings{Timezone: "Asia/Taipei", Hour: 20, Minute: 0})
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	s.now = func() time.Time {
		return time.Date(2026, 8, 31, 20, 0, 0, 0, loc)
	}

	next := s.NextRun()
	assert.Equal(t, time.Date(2026, 9, 1, 20, 0, 0, 0, loc), next)
}

func TestUpdateSettingsChangesNextRun(t *testing.T) {
	s := newTestScheduler(t, ScheduleSettings{Timezone: "Asia/Taipei", Hour: 20, Minute: 0})
	loc, err := time.LoadLocation("Asia/Taipei")
	require.NoError(t, err)

	s.now = func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, loc)
	}

	require.NoError(t, s.UpdateSettings(ScheduleSettings{Timezone: "Asia/Taipei", Hour: 9, Minute: 30}))

	// 09:30 already passed today, so the next fire is tomorrow morning.
	next := s.NextRun()
	assert.Equal(t, time.Date(2026, 9, 1, 9, 30, 0, 0, loc), next)
	assert.Equal(t, 9, s.Settings().Hour)
	assert.Equal(t, 30, s.Settings().Minute)
}

func TestUpdateSettingsValidation(t *testing.T) {
	s := newTestScheduler(t, ScheduleSettings{Timezone: "UTC", Hour: 0, Minute: 0})

	testCases := []struct {
		name     string
		settings ScheduleSettings
	}{
		{"hour too large", ScheduleSettings{Timezone: "UTC", Hour: 24, Minute: 0}},
		{"negative hour", ScheduleSettings{Timezone: "UTC", Hour: -1, Minute: 0}},
		{"minute too large", ScheduleSettings{Timezone: "UTC", Hour: 12, Minute: 60}},
		{"bogus timezone", ScheduleSettings{Timezone: "Mars/Olympus", Hour: 12, Minute: 0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, s.UpdateSettings(tc.settings))
		})
	}

	// The rejected updates must not have clobbered the schedule.
	assert.Equal(t, ScheduleSettings{Timezone: "UTC", Hour: 0, Minute: 0}, s.Settings())
}
