package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autosendmail/autosendmail/internal/config"
	"github.com/autosendmail/autosendmail/internal/logger"
)

func testConfig(crons ...string) *config.Config {
	cfg := &config.Config{Timezone: "UTC"}
	for i, c := range crons {
		cfg.Accounts = append(cfg.Accounts, config.Account{
			Name:      string(rune('a' + i)),
			FromEmail: "from@example.com",
			ToEmail:   "to@example.com",
			Cron:      c,
			AIPrompt:  "say hi",
		})
	}
	return cfg
}

func noopTask(context.Context, config.Account) {}

func testLogger() *logger.Logger {
	return logger.New("error", "json")
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := New(testConfig("30 8 * * *", "*/15 * * * *"), noopTask, testLogger())
	require.NoError(t, err)

	entries := s.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "sendmail_a", entries[0].ID)
	assert.Equal(t, "sendmail_b", entries[1].ID)
}

func TestNewRejectsInvalidCron(t *testing.T) {
	cases := []struct {
		name string
		cron string
	}{
		{"six fields", "0 * * * * *"},
		{"four fields", "30 8 * *"},
		{"out of range minute", "61 * * * *"},
		{"descriptor", "@daily"},
		{"garbage", "not a cron"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(testConfig(tc.cron), noopTask, testLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid cron")
		})
	}
}

func TestNewRejectsDuplicateNames(t *testing.T) {
	cfg := testConfig("30 8 * * *")
	cfg.Accounts = append(cfg.Accounts, cfg.Accounts[0])

	_, err := New(cfg, noopTask, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate job id")
}

func TestNewRejectsInvalidTimezone(t *testing.T) {
	cfg := testConfig("30 8 * * *")
	cfg.Timezone = "Mars/Olympus_Mons"

	_, err := New(cfg, noopTask, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestScheduleNextFireTimes(t *testing.T) {
	loc := time.UTC
	base := time.Date(2026, 3, 10, 7, 0, 0, 0, loc)

	cases := []struct {
		cron string
		want time.Time
	}{
		{"30 8 * * *", time.Date(2026, 3, 10, 8, 30, 0, 0, loc)},
		{"0 */2 * * *", time.Date(2026, 3, 10, 8, 0, 0, 0, loc)},
		{"*/15 * * * *", time.Date(2026, 3, 10, 7, 15, 0, 0, loc)},
		{"0 9 * * 1", time.Date(2026, 3, 16, 9, 0, 0, 0, loc)}, // next Monday
		{"0 0 1 4 *", time.Date(2026, 4, 1, 0, 0, 0, 0, loc)},
	}

	for _, tc := range cases {
		t.Run(tc.cron, func(t *testing.T) {
			schedule, err := cronParser.Parse(tc.cron)
			require.NoError(t, err)
			assert.Equal(t, tc.want, schedule.Next(base))
		})
	}
}

func TestScheduleHonorsTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Shanghai")
	require.NoError(t, err)

	schedule, err := cronParser.Parse("30 8 * * *")
	require.NoError(t, err)

	base := time.Date(2026, 3, 10, 7, 0, 0, 0, loc)
	next := schedule.Next(base)
	assert.Equal(t, 8, next.Hour())
	assert.Equal(t, 30, next.Minute())
	assert.Equal(t, loc, next.Location())
}

func TestMissedGrace(t *testing.T) {
	scheduled := time.Date(2026, 3, 10, 8, 30, 0, 0, time.UTC)

	assert.False(t, missedGrace(scheduled, scheduled))
	assert.False(t, missedGrace(scheduled, scheduled.Add(299*time.Second)))
	assert.True(t, missedGrace(scheduled, scheduled.Add(301*time.Second)))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	s, err := New(testConfig("0 0 1 1 *"), noopTask, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
