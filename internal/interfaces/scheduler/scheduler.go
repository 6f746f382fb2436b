package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ScheduleTime is a wall-clock time of day in the scheduler's location.
type ScheduleTime struct {
	Hour   int
	Minute int
}

// ParseScheduleTime parses "HH:MM" in 24-hour format.
func ParseScheduleTime(s string) (ScheduleTime, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return ScheduleTime{}, fmt.Errorf("invalid schedule time %q, expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return ScheduleTime{}, fmt.Errorf("invalid hour in schedule time %q", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return ScheduleTime{}, fmt.Errorf("invalid minute in schedule time %q", s)
	}

	return ScheduleTime{Hour: hour, Minute: minute}, nil
}

func (t ScheduleTime) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// JobProvider builds the batch of jobs for a scheduled run.
type JobProvider interface {
	Jobs(ctx context.Context) ([]Job, error)
}

type Config struct {
	Times        []ScheduleTime
	RunOnStartup bool
	Location     *time.Location
}

// Scheduler fires the job provider at the configured times of day and feeds
// the resulting jobs into the worker pool.
type Scheduler struct {
	config   Config
	pool     *WorkerPool
	provider JobProvider
	logger   *zap.Logger

	lastRun map[string]string // schedule time -> date already run
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(config Config, pool *WorkerPool, provider JobProvider, logger *zap.Logger) *Scheduler {
	if config.Location == nil {
		config.Location = time.Local
	}

	return &Scheduler{
		config:   config,
		pool:     pool,
		provider: provider,
		logger:   logger,
		lastRun:  make(map[string]string),
		done:     make(chan struct{}),
	}
}

// Start begins the scheduling loop. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)

	s.pool.Start()

	times := make([]string, len(s.config.Times))
	for i, t := range s.config.Times {
		times[i] = t.String()
	}
	s.logger.Info("scheduler started", zap.Strings("times", times))

	if s.config.RunOnStartup {
		s.runJobs(ctx)
	}

	go s.loop(ctx)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if st, ok := s.shouldRun(now.In(s.config.Location)); ok {
				s.logger.Info("scheduled run triggered", zap.String("time", st.String()))
				s.runJobs(ctx)
			}
		}
	}
}

// shouldRun reports whether any configured time matches now and has not
// already fired today.
func (s *Scheduler) shouldRun(now time.Time) (ScheduleTime, bool) {
	date := now.Format("2006-01-02")

	for _, t := range s.config.Times {
		if now.Hour() != t.Hour || now.Minute() != t.Minute {
			continue
		}
		key := t.String()
		if s.lastRun[key] == date {
			continue
		}
		s.lastRun[key] = date
		return t, true
	}

	return ScheduleTime{}, false
}

func (s *Scheduler) runJobs(ctx context.Context) {
	jobs, err := s.provider.Jobs(ctx)
	if err != nil {
		s.logger.Error("failed to build scheduled jobs", zap.Error(err))
		return
	}

	if len(jobs) == 0 {
		s.logger.Info("no jobs to schedule")
		return
	}

	s.pool.SubmitBatch(jobs)
}

// TriggerNow runs the job provider immediately, outside the schedule.
func (s *Scheduler) TriggerNow(ctx context.Context) {
	s.logger.Info("manual scheduler trigger")
	s.runJobs(ctx)
}

// NextScheduledTime returns the next configured run after now.
func (s *Scheduler) NextScheduledTime(now time.Time) time.Time {
	now = now.In(s.config.Location)

	var next time.Time
	for _, t := range s.config.Times {
		candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, s.config.Location)
		if !candidate.After(now) {
			candidate = candidate.Add(24 * time.Hour)
		}
		if next.IsZero() || candidate.Before(next) {
			next = candidate
		}
	}

	return next
}

// Shutdown stops the loop and drains the worker pool.
func (s *Scheduler) Shutdown(timeout time.Duration) {
	if s.cancel != nil {
		s.cancel()
	}
	select {
	case <-s.done:
	case <-time.After(time.Second):
	}
	s.pool.ShutdownWithTimeout(timeout)
	s.logger.Info("scheduler stopped")
}
