package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning rejects submissions before Start or after Stop
	ErrSchedulerNotRunning = errors.New("scheduler: not running")
	// ErrJobQueueFull rejects a sweep when every queue slot is taken
	ErrJobQueueFull = errors.New("scheduler: sweep queue full")
	// ErrUnknownJobKind marks a job kind no step is bound to
	ErrUnknownJobKind = errors.New("scheduler: no step bound to job kind")
	ErrInvalidConfig  = errors.New("scheduler: invalid configuration")
)
