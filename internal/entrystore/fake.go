package entrystore

import (
	"context"
	"fmt"
	"sync"

	"brain/internal/task"
)

// Fake is an in-memory Store for runner-loop and control-surface tests: no
// HTTP involved, just a project->tasks map guarded by a mutex.
type Fake struct {
	mu        sync.Mutex
	tasks     map[string][]*task.Task // project -> tasks
	claims    map[string]string       // "project/taskID" -> runnerID
	UpdateErr error
}

// NewFake returns an empty Fake ready for Seed.
func NewFake() *Fake {
	return &Fake{tasks: make(map[string][]*task.Task), claims: make(map[string]string)}
}

// Seed installs tasks for a project, replacing any previous set.
func (f *Fake) Seed(project string, tasks []*task.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[project] = tasks
}

func (f *Fake) List(ctx context.Context, project string) (*ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &ListResponse{Tasks: append([]*task.Task(nil), f.tasks[project]...)}, nil
}

func (f *Fake) Ready(ctx context.Context, project string) (*ListResponse, error) {
	return f.filtered(project, task.StatusPending, task.StatusActive)
}

func (f *Fake) Waiting(ctx context.Context, project string) (*ListResponse, error) {
	return f.filtered(project, task.StatusDraft)
}

func (f *Fake) Blocked(ctx context.Context, project string) (*ListResponse, error) {
	return f.filtered(project, task.StatusBlocked)
}

func (f *Fake) filtered(project string, statuses ...task.Status) (*ListResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := make(map[task.Status]struct{}, len(statuses))
	for _, s := range statuses {
		want[s] = struct{}{}
	}
	var out []*task.Task
	for _, t := range f.tasks[project] {
		if _, ok := want[t.Status]; ok {
			out = append(out, t)
		}
	}
	return &ListResponse{Tasks: out}, nil
}

func (f *Fake) Next(ctx context.Context, project string) (*task.Task, error) {
	resp, _ := f.Ready(ctx, project)
	if len(resp.Tasks) == 0 {
		return nil, nil
	}
	return resp.Tasks[0], nil
}

func (f *Fake) Update(ctx context.Context, path string, req UpdateRequest) error {
	if f.UpdateErr != nil {
		return f.UpdateErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, list := range f.tasks {
		for _, t := range list {
			if t.Path == path {
				if req.Status != nil {
					t.Status = *req.Status
				}
				if req.Title != nil {
					t.Title = *req.Title
				}
				if req.Append != nil {
					t.Content += *req.Append
				}
				return nil
			}
		}
	}
	return fmt.Errorf("unknown path %q", path)
}

func (f *Fake) Claim(ctx context.Context, project, taskID, runnerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := project + "/" + taskID
	if owner, ok := f.claims[key]; ok && owner != runnerID {
		return fmt.Errorf("already claimed by %s", owner)
	}
	f.claims[key] = runnerID
	return nil
}

func (f *Fake) Release(ctx context.Context, project, taskID, runnerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := project + "/" + taskID
	if f.claims[key] == runnerID {
		delete(f.claims, key)
	}
	return nil
}
