package cron

import (
	"context"
	"fmt"
	"strings"
)

// Job is one unit of scheduled work. Each cycle the job selects its own
// backlog from the database, so a rerun after a crash picks up where it stopped.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Registry is the ordered job list for a cycle. Names label metrics and
// logs, so they must be unique.
type Registry struct {
	jobs  []Job
	names map[string]struct{}
}

func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(jobs))}
	for _, job := range jobs {
		if err := r.add(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) add(job Job) error {
	if job == nil {
		return nil
	}
	name := strings.TrimSpace(job.Name())
	if name == "" {
		return fmt.Errorf("cron job %T has no name", job)
	}
	if _, dup := r.names[name]; dup {
		return fmt.Errorf("cron job %q registered twice", name)
	}
	r.names[name] = struct{}{}
	r.jobs = append(r.jobs, job)
	return nil
}

// Jobs returns the jobs in registration order.
func (r *Registry) Jobs() []Job {
	return append([]Job(nil), r.jobs...)
}

func (r *Registry) Names() []string {
	names := make([]string, len(r.jobs))
	for i, job := range r.jobs {
		names[i] = job.Name()
	}
	return names
}
