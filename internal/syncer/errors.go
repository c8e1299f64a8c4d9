package syncer

import "errors"

// Scheduler errors.
var (
	ErrRunInProgress    = errors.New("sync run already in progress")
	ErrSchedulerStopped = errors.New("sync scheduler stopped")
)
