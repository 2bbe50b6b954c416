package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"

	"github.com/hanpama/modgraph/internal/module"
)

var (
	SuccessColorFG = pterm.FgLightGreen
	SuccessStyleBG = pterm.NewStyle(pterm.BgLightGreen, pterm.FgBlack)
	WarnColorFG    = pterm.FgYellow
	WarnStyleBG    = pterm.NewStyle(pterm.BgYellow, pterm.FgBlack)
	ErrorColorFG   = pterm.FgRed
	ErrorStyleBG   = pterm.NewStyle(pterm.BgRed, pterm.FgWhite)
	InfoColorFG    = pterm.FgCyan
	InfoStyleBG    = pterm.NewStyle(pterm.BgCyan, pterm.FgBlack)
	TraceColorFG   = pterm.FgGray
)

// Level selects how much the Logger prints.
type Level int

const (
	LevelSilent  Level = iota // no output at all
	LevelError                // errors only
	LevelInfo                 // errors, module console output and summaries (default)
	LevelVerbose              // everything above plus loader and executor events
)

// Logger prints tagged, colored messages. It is safe for concurrent use.
type Logger struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

// New creates a Logger writing to out.
func New(out io.Writer, level Level) *Logger {
	return &Logger{out: out, level: level}
}

// Stderr creates a Logger writing to standard error.
func Stderr(level Level) *Logger { return New(os.Stderr, level) }

func (l *Logger) Level() Level { return l.level }

func (l *Logger) print(min Level, style *pterm.Style, color pterm.Color, tag, msg string) {
	if l.level < min {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprint(l.out, style.Sprint(tag))
	fmt.Fprintln(l.out, color.Sprint(" "+msg))
}

// Error prints an error with a tag.
func (l *Logger) Error(tag string, err error) {
	l.print(LevelError, ErrorStyleBG, ErrorColorFG, tag, err.Error())
}

// Warning prints a warning message.
func (l *Logger) Warning(tag, msg string) {
	l.print(LevelInfo, WarnStyleBG, WarnColorFG, tag, msg)
}

// Info prints an informational message.
func (l *Logger) Info(tag, msg string) {
	l.print(LevelInfo, InfoStyleBG, InfoColorFG, tag, msg)
}

// Success prints a completion message.
func (l *Logger) Success(tag, msg string) {
	l.print(LevelInfo, SuccessStyleBG, SuccessColorFG, tag, msg)
}

// Tracef prints a verbose diagnostic line.
func (l *Logger) Tracef(format string, args ...any) {
	if l.level < LevelVerbose {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, TraceColorFG.Sprint(fmt.Sprintf(format, args...)))
}

// Console prints one line of module output prefixed by the module identity.
func (l *Logger) Console(id module.Identity, line string) {
	if l.level < LevelInfo {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, InfoColorFG.Sprint(string(id)+":")+" "+line)
}

// Report prints err with a tag derived from the failure kind. Link errors
// print one line per violation.
func (l *Logger) Report(err error) {
	var (
		linkErr module.LinkError
		resErr  *module.ResolutionError
		loadErr *module.LoadError
		execErr *module.ExecutionError
	)
	switch {
	case errors.As(err, &linkErr):
		for _, v := range linkErr {
			l.Error("Link Error", fmt.Errorf("%s (%s:%d)", v.Message, v.Module, v.Line))
		}
	case errors.As(err, &execErr):
		l.Error("Execution Error", err)
	case errors.As(err, &loadErr):
		l.Error("Load Error", err)
	case errors.As(err, &resErr):
		l.Error("Resolution Error", err)
	default:
		l.Error("Error", err)
	}
}
