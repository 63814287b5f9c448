package cron

import (
	"context"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/internal/audit"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
	"github.com/angelmondragon/componentry-backend/pkg/metrics"
)

const defaultSchedule = "10 0 * * *"

// ServiceParams configure the cron service. Schedule is a standard five
// field cron expression evaluated in UTC.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Audit    audit.Recorder
	Schedule string
}

// Service executes registered cron jobs on a schedule and on demand.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	audit    audit.Recorder
	schedule robfig.Schedule
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	spec := params.Schedule
	if spec == "" {
		spec = defaultSchedule
	}
	schedule, err := robfig.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse cron schedule %q: %w", spec, err)
	}
	recorder := params.Audit
	if recorder == nil {
		recorder = audit.Nop{}
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		audit:    recorder,
		schedule: schedule,
	}, nil
}

// Run executes one cycle immediately and then on every schedule tick until
// the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}

	scheduler := robfig.New(robfig.WithLocation(time.UTC))
	scheduler.Schedule(s.schedule, robfig.FuncJob(func() {
		if err := s.runCycle(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}
	}))
	scheduler.Start()
	s.logg.Info(s.logg.WithField(ctx, "next_run", s.schedule.Next(time.Now().UTC())), "cron scheduler started")

	<-ctx.Done()
	s.logg.Info(ctx, "cron service context canceled")
	<-scheduler.Stop().Done()
	return ctx.Err()
}

// Trigger runs one job on behalf of an admin. It shares the cycle lock, so a
// trigger during a scheduled cycle is rejected.
func (s *Service) Trigger(ctx context.Context, actor access.Actor, name string) error {
	if !actor.Role.IsStaff() {
		return pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	job, ok := s.registry.Lookup(name)
	if !ok {
		return pkgerrors.New(pkgerrors.CodeNotFound, "job not found").WithDetails(map[string]any{"jobs": s.registry.Names()})
	}

	release, locked, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire cron lock")
	}
	if !locked {
		return pkgerrors.New(pkgerrors.CodeConflict, "a cron run is already in progress")
	}
	defer s.release(ctx, release)

	s.audit.Record(ctx, audit.Entry{
		ActorID:      &actor.UserID,
		ActorRole:    actor.Role,
		Action:       enums.AuditJobTriggered,
		ResourceType: "job",
		ResourceID:   name,
	})
	if err := s.runJob(ctx, job, metrics.TriggerAdmin); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "job failed").WithDetails(map[string]any{"job": name})
	}
	return nil
}

// Jobs lists the registered job names.
func (s *Service) Jobs() []string {
	return s.registry.Names()
}

func (s *Service) runCycle(ctx context.Context) error {
	release, locked, err := s.lock.TryAcquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		s.metrics.CycleSkipped()
		return nil
	}
	defer s.release(ctx, release)

	s.logg.Info(ctx, "scheduled run starting")
	for _, job := range s.registry.Jobs() {
		_ = s.runJob(ctx, job, metrics.TriggerSchedule)
	}
	s.logg.Info(ctx, "scheduled run complete")
	return nil
}

func (s *Service) release(ctx context.Context, release ReleaseFunc) {
	if err := release(ctx); err != nil {
		s.logg.Error(ctx, "failed to release cron lock", err)
	}
}

func (s *Service) runJob(ctx context.Context, job Job, trigger string) error {
	jobCtx := s.logg.WithJob(ctx, job.Name())
	jobCtx = s.logg.WithFields(jobCtx, map[string]any{"event": "cron.job", "trigger": trigger})
	s.logg.Info(jobCtx, "job start")
	start := time.Now()
	err := job.Run(jobCtx)
	duration := time.Since(start)
	s.metrics.JobFinished(job.Name(), trigger, duration, err)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return err
	}
	s.logg.Info(jobCtx, "job completed")
	return nil
}
