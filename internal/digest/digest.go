// Package digest runs periodic jobs on a cron schedule, such as posting
// support statistics to Slack.
package digest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"supportbot/internal/analytics"
)

// Job is one scheduled run.
type Job func(ctx context.Context) error

type StatsSource interface {
	Stats(ctx context.Context) (analytics.DashboardStats, error)
}

type Poster interface {
	PostDigest(ctx context.Context, channel string, stats analytics.DashboardStats) error
}

// SlackJob computes the dashboard stats and posts them to channel.
func SlackJob(stats StatsSource, poster Poster, channel string) Job {
	return func(ctx context.Context) error {
		s, err := stats.Stats(ctx)
		if err != nil {
			return fmt.Errorf("compute digest stats: %w", err)
		}
		return poster.PostDigest(ctx, channel, s)
	}
}

// ParseSchedule parses a standard 5-field cron expression
// (minute hour day-of-month month day-of-week).
// Examples: "0 9 * * *" (daily 9am), "0 9 * * 1-5" (weekdays 9am).
func ParseSchedule(schedule string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(strings.TrimSpace(schedule))
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return sched, nil
}

type Scheduler struct {
	name   string
	sched  cron.Schedule
	loc    *time.Location
	job    Job
	logger *zap.Logger
	now    func() time.Time
	after  func(time.Duration) <-chan time.Time
}

func NewScheduler(schedule string, loc *time.Location, job Job, logger *zap.Logger) (*Scheduler, error) {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{name: "digest", sched: sched, loc: loc, job: job, logger: logger, now: time.Now, after: time.After}, nil
}

// Named sets the job name used in log lines.
func (s *Scheduler) Named(name string) *Scheduler {
	s.name = name
	return s
}

// Start runs the job at every scheduled time until ctx is cancelled. The
// returned channel is closed once the loop has exited.
func (s *Scheduler) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			now := s.now().In(s.loc)
			next := s.sched.Next(now)
			wait := next.Sub(now)
			s.logger.Info("next run scheduled", zap.String("job", s.name), zap.Time("at", next), zap.Duration("in", wait.Round(time.Minute)))

			select {
			case <-ctx.Done():
				return
			case <-s.after(wait):
			}

			if err := s.job(ctx); err != nil {
				s.logger.Warn("scheduled run failed", zap.String("job", s.name), zap.Error(err))
				continue
			}
			s.logger.Info("scheduled run finished", zap.String("job", s.name))
		}
	}()
	return done
}
