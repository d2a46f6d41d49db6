package digest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"supportbot/internal/analytics"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestParseSchedule(t *testing.T) {
	sched, err := ParseSchedule("0 9 * * 1-5")
	require.NoError(t, err)
	friday := time.Date(2025, 6, 13, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2025, 6, 16, 9, 0, 0, 0, time.UTC), sched.Next(friday))

	_, err = ParseSchedule("every day")
	assert.Error(t, err)
	_, err = ParseSchedule("0 0 9 * * *")
	assert.Error(t, err, "six fields are rejected")
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runs := make(chan struct{}, 10)
	var waits []time.Duration

	calls := 0
	s, err := NewScheduler("30 * * * *", time.UTC, func(context.Context) error {
		calls++
		runs <- struct{}{}
		if calls == 2 {
			return errors.New("slack down")
		}
		return nil
	}, nil)
	require.NoError(t, err)

	start := time.Date(2025, 6, 10, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	ticks := make(chan time.Time)
	s.after = func(d time.Duration) <-chan time.Time {
		waits = append(waits, d)
		return ticks
	}

	done := s.Start(ctx)
	for i := 0; i < 3; i++ {
		ticks <- start
		<-runs
	}
	cancel()
	<-done

	require.GreaterOrEqual(t, len(waits), 3)
	assert.Equal(t, 30*time.Minute, waits[0])
}

type fakeStats struct {
	stats analytics.DashboardStats
	err   error
}

func (f fakeStats) Stats(context.Context) (analytics.DashboardStats, error) { return f.stats, f.err }

type fakePoster struct {
	channel string
	stats   analytics.DashboardStats
}

func (p *fakePoster) PostDigest(_ context.Context, channel string, s analytics.DashboardStats) error {
	p.channel = channel
	p.stats = s
	return nil
}

func TestSlackJob(t *testing.T) {
	poster := &fakePoster{}
	job := SlackJob(fakeStats{stats: analytics.DashboardStats{ActiveConversations: 4}}, poster, "#support")
	require.NoError(t, job(context.Background()))
	assert.Equal(t, "#support", poster.channel)
	assert.Equal(t, 4, poster.stats.ActiveConversations)

	err := SlackJob(fakeStats{err: errors.New("db locked")}, poster, "#support")(context.Background())
	assert.ErrorContains(t, err, "db locked")
}
