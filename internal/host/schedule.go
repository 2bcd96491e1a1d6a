package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/goatkit/serverboot/internal/logging"
)

// Commander accepts console command lines. *Server implements it.
type Commander interface {
	Command(ctx context.Context, line string) error
}

// Job is a console command sent on a cron schedule.
type Job struct {
	Spec    string // standard five-field cron expression or @descriptor
	Command string
}

type schedulerOptions struct {
	logger   *slog.Logger
	parser   cron.Parser
	location *time.Location
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*schedulerOptions)

// WithSchedulerLogger sets the logger for job outcomes.
func WithSchedulerLogger(l *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		o.logger = l
	}
}

// WithCronParser replaces the cron expression parser.
func WithCronParser(p cron.Parser) SchedulerOption {
	return func(o *schedulerOptions) {
		o.parser = p
	}
}

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) SchedulerOption {
	return func(o *schedulerOptions) {
		o.location = loc
	}
}

// Scheduler sends console commands to the server core on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	target Commander
	logger *slog.Logger
}

// NewScheduler parses every job up front; an invalid spec is an error.
func NewScheduler(target Commander, jobs []Job, opts ...SchedulerOption) (*Scheduler, error) {
	o := schedulerOptions{
		logger:   slog.Default(),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		location: time.Local,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(o.location), cron.WithParser(o.parser)),
		target: target,
		logger: o.logger,
	}
	for _, j := range jobs {
		sched, err := o.parser.Parse(j.Spec)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule %q for %q: %w", j.Spec, j.Command, err)
		}
		s.cron.Schedule(sched, s.job(j))
	}
	return s, nil
}

func (s *Scheduler) job(j Job) cron.Job {
	return cron.FuncJob(func() {
		err := s.target.Command(context.Background(), j.Command)
		switch {
		case errors.Is(err, ErrNotRunning):
			s.logger.Log(context.Background(), logging.LevelVerbose, "Scheduled command skipped, server core not running",
				"command", j.Command)
		case err != nil:
			s.logger.Warn("Scheduled command failed", "command", j.Command, "error", err)
		default:
			s.logger.Log(context.Background(), logging.LevelVerbose, "Scheduled command sent",
				"command", j.Command, "schedule", j.Spec)
		}
	})
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Start runs the schedules until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
}

// Stop halts the schedules and waits for running jobs. Safe to call more
// than once.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
