// Package supervisor owns child-process lifecycle for running tasks: spawn,
// soft/hard cancellation, exit-status classification, and the log broadcast
// pipeline. The Backend abstraction lets the same Supervisor logic run tasks
// as local processes, Docker containers, or Kubernetes Jobs.
package supervisor

import "context"

// Spec is everything a Backend needs to start one task's child process.
type Spec struct {
	TaskID  string
	Project string
	Workdir string
	Agent   string
	Args    []string
	Env     []string
}

// Handle identifies a started unit of work to its Backend for later
// Signal/Kill/Wait calls.
type Handle struct {
	ID string // pid for local, container id for docker, job name for k8s
}

// Result is what Wait reports once the unit of work has finished.
type Result struct {
	ExitCode int
	TimedOut bool
	Err      error
}

// Backend starts and supervises one task's execution. Implementations must
// be safe for concurrent use across different Handles.
type Backend interface {
	// Start launches the task described by spec and passes its output to
	// onLine. The local backend streams stdout/stderr lines as they are
	// produced; the docker backend forwards the agent's output once its exec
	// returns; the k8s backend reports only the Job creation, not pod logs.
	Start(ctx context.Context, spec Spec, onLine func(line string)) (Handle, error)
	// Signal requests a polite/soft stop (SIGTERM, ContainerStop, Job
	// deletion with grace).
	Signal(ctx context.Context, h Handle) error
	// Kill forces an immediate stop (SIGKILL, force remove, immediate
	// deletion).
	Kill(ctx context.Context, h Handle) error
	// Wait blocks until the unit of work exits and reports its outcome.
	Wait(ctx context.Context, h Handle) Result
}
