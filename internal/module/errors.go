package module

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDependencyFailed is wrapped by load and execution errors of modules
	// that failed only because a module they depend on failed.
	ErrDependencyFailed = errors.New("modgraph: dependency failed")
	// ErrUninitialized is returned when a binding is read before its owner
	// assigned it, which only happens inside an import cycle.
	ErrUninitialized = errors.New("modgraph: binding accessed before initialization")
	// ErrNoExport is returned when a namespace has no export of the requested name.
	ErrNoExport = errors.New("modgraph: no such export")
	// ErrUndefined is returned when module code reads a name it never bound.
	ErrUndefined = errors.New("modgraph: name is not defined")
	// ErrNotLoaded is returned when a module is used before LoadGraph settled it.
	ErrNotLoaded = errors.New("modgraph: module not loaded")
)

// ResolutionError reports a specifier the host resolver could not map.
type ResolutionError struct {
	Specifier string
	Referrer  Identity
	Err       error
}

func (e *ResolutionError) Error() string {
	if e.Referrer == "" {
		return fmt.Sprintf("cannot resolve %q: %v", e.Specifier, e.Err)
	}
	return fmt.Sprintf("cannot resolve %q from %s: %v", e.Specifier, e.Referrer, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// LoadError reports a module that could not be fetched or compiled, or that
// depends eagerly on such a module (Dependency set).
type LoadError struct {
	Module     Identity
	Dependency Identity
	Err        error
}

func (e *LoadError) Error() string {
	if e.Dependency != "" {
		return fmt.Sprintf("load %s: dependency %s failed: %v", e.Module, e.Dependency, e.Err)
	}
	return fmt.Sprintf("load %s: %v", e.Module, e.Err)
}

func (e *LoadError) Unwrap() error {
	if e.Dependency != "" {
		return errors.Join(ErrDependencyFailed, e.Err)
	}
	return e.Err
}

// ExecutionError reports a module whose top-level code failed, or whose
// execution path passes through a failed module (Dependency set).
type ExecutionError struct {
	Module     Identity
	Dependency Identity
	Err        error
}

func (e *ExecutionError) Error() string {
	if e.Dependency != "" {
		return fmt.Sprintf("execute %s: dependency %s failed: %v", e.Module, e.Dependency, e.Err)
	}
	return fmt.Sprintf("execute %s: %v", e.Module, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	if e.Dependency != "" {
		return errors.Join(ErrDependencyFailed, e.Err)
	}
	return e.Err
}

// Violation is a single link problem.
type Violation struct {
	Message string   `json:"message"`
	Module  Identity `json:"module,omitempty"`
	Line    int      `json:"line,omitempty"`
}

// LinkError lists every unresolvable binding found in a graph.
type LinkError []*Violation

func (e LinkError) Error() string {
	var sb strings.Builder
	sb.WriteString("link violations found:\n")
	for _, v := range e {
		sb.WriteString("- ")
		sb.WriteString(v.Message)
		if v.Module != "" {
			fmt.Fprintf(&sb, " %s:%d", v.Module, v.Line)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
