package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/componentry-backend/internal/access"
	"github.com/angelmondragon/componentry-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/componentry-backend/pkg/errors"
	"github.com/angelmondragon/componentry-backend/pkg/logger"
)

type fakeLock struct {
	held     bool
	acquires int
}

func (f *fakeLock) TryAcquire(context.Context) (ReleaseFunc, bool, error) {
	if f.held {
		return nil, false, nil
	}
	f.held = true
	f.acquires++
	return func(context.Context) error {
		f.held = false
		return nil
	}, true, nil
}

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

func newTestService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	registry, err := NewRegistry(jobs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	service, err := NewService(ServiceParams{
		Logger:   logger.Nop(),
		Registry: registry,
		Lock:     lock,
	})
	if err != nil {
		t.Fatalf("construct service: %v", err)
	}
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service := newTestService(t, lock, success, failure)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if success.runs != 1 || failure.runs != 1 {
		t.Fatalf("expected each job once, got %d and %d", success.runs, failure.runs)
	}
	if lock.held {
		t.Fatalf("lock should be released after the cycle")
	}
}

func TestServiceRunCycleSkipsWhenLocked(t *testing.T) {
	job := &testJob{name: "token-reset"}
	service := newTestService(t, &fakeLock{held: true}, job)

	if err := service.runCycle(context.Background()); err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if job.runs != 0 {
		t.Fatalf("job must not run while another instance holds the lock")
	}
}

func TestServiceRejectsBadSchedule(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: logger.Nop(), Lock: &fakeLock{}, Schedule: "every day"})
	if err == nil {
		t.Fatalf("expected schedule parse error")
	}
}

func TestServiceTrigger(t *testing.T) {
	job := &testJob{name: "token-reset"}
	lock := &fakeLock{}
	service := newTestService(t, lock, job)
	admin := access.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}

	if err := service.Trigger(context.Background(), admin, "token-reset"); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	if job.runs != 1 {
		t.Fatalf("expected job to run once, ran %d", job.runs)
	}

	err := service.Trigger(context.Background(), access.Actor{UserID: uuid.New(), Role: enums.RoleDeveloper}, "token-reset")
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}

	err = service.Trigger(context.Background(), admin, "nope")
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	lock.held = true
	err = service.Trigger(context.Background(), admin, "token-reset")
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict while locked, got %v", err)
	}
}

func TestServiceTriggerReportsJobFailure(t *testing.T) {
	job := &testJob{name: "outbox-retention", err: errors.New("db down")}
	service := newTestService(t, &fakeLock{}, job)

	err := service.Trigger(context.Background(), access.Actor{UserID: uuid.New(), Role: enums.RoleSuperadmin}, "outbox-retention")
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}
