package events

import "time"

// ModuleExecuteStart is emitted right before a module body runs.
type ModuleExecuteStart struct {
	Module string
}

// ModuleExecuteFinish is emitted after a module body ran or a dependency of
// it failed.
type ModuleExecuteFinish struct {
	Module   string
	Err      error
	Duration time.Duration
}

// DeferredTrigger is emitted when touching a deferred binding forces the
// modules on its chain to execute.
type DeferredTrigger struct {
	Host  string
	Owner string
	Name  string
}
