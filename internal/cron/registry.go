package cron

import (
	"context"
	"errors"
	"fmt"
)

// Job is one step of the lifecycle cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry holds the jobs of a cycle in the order they run. Order matters:
// reminders go out before expiry downgrades the same users.
type Registry struct {
	jobs   []Job
	byName map[string]Job
}

// NewRegistry rejects nil jobs and duplicate names, since admins trigger jobs
// by name.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for i, job := range jobs {
		if job == nil {
			return nil, fmt.Errorf("job %d is nil", i)
		}
		name := job.Name()
		if name == "" {
			return nil, errors.New("job name is required")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("job %q registered twice", name)
		}
		r.byName[name] = job
		r.jobs = append(r.jobs, job)
	}
	return r, nil
}

// Jobs returns a copy in run order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Lookup(name string) (Job, bool) {
	job, ok := r.byName[name]
	return job, ok
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
