package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"

	"github.com/hanpama/modgraph/internal/language"
	"github.com/hanpama/modgraph/internal/module"
	"github.com/hanpama/modgraph/internal/source"
)

const (
	promptMain  = "modgraph> "
	historyFile = ".modgraph_history"
)

func cmdRepl(args []string) error {
	scratch := source.NewInMemory(nil)
	p, err := openProject("repl", runUsage+replUsage, args, scratch)
	if err != nil {
		return err
	}
	defer p.close()

	s := &session{p: p, scratch: scratch}
	ctx := context.Background()
	if p.entry != "" {
		s.handle(ctx, ":run "+p.entry)
	}

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
			fmt.Fprintln(stdout)
			return nil
		}
		if err != nil {
			return err
		}
		if strings.TrimSpace(line) != "" {
			ln.AppendHistory(line)
		}
		if s.handle(ctx, line) {
			return nil
		}
	}
}

// session evaluates repl input. Every statement line becomes a new scratch
// module that replays the imports and bindings accepted so far.
type session struct {
	p       *project
	scratch *source.InMemory
	n       int
	kept    []string
}

func (s *session) handle(ctx context.Context, line string) (exit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, ":") {
		if err := s.eval(ctx, line); err != nil {
			s.p.log.Report(err)
		}
		return false
	}

	fields := strings.Fields(line)
	arg := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	var err error
	switch fields[0] {
	case ":quit", ":q":
		return true
	case ":graph":
		printGraph(stdout, s.p.engine.Store())
	case ":run":
		err = s.run(ctx, arg(1))
	case ":keys":
		var ns module.Namespace
		if ns, err = s.namespace(ctx, arg(1)); err == nil {
			fmt.Fprintln(stdout, strings.Join(ns.Keys(), ", "))
		}
	case ":get":
		var ns module.Namespace
		if ns, err = s.namespace(ctx, arg(1)); err == nil {
			var v any
			if v, err = ns.Get(ctx, arg(2)); err == nil {
				fmt.Fprintln(stdout, language.Format(v))
			}
		}
	default:
		s.p.log.Warning("Usage", fmt.Sprintf("unknown command %s; type :quit to exit", fields[0]))
	}
	if err != nil {
		s.p.log.Report(err)
	}
	return false
}

func (s *session) run(ctx context.Context, spec string) error {
	if spec == "" {
		return errors.New("usage: :run <spec>")
	}
	id, err := s.p.engine.Resolve(ctx, spec)
	if err != nil {
		return err
	}
	ns, err := s.p.engine.Execute(ctx, id)
	if err != nil {
		return err
	}
	s.p.log.Info("Exports", strings.Join(ns.Keys(), ", "))
	return nil
}

func (s *session) namespace(ctx context.Context, spec string) (module.Namespace, error) {
	if spec == "" {
		return nil, errors.New("usage: :keys <spec> | :get <spec> <name>")
	}
	id, err := s.p.engine.Resolve(ctx, spec)
	if err != nil {
		return nil, err
	}
	return s.p.engine.Namespace(id)
}

func (s *session) eval(ctx context.Context, line string) error {
	prog, err := language.Parse("repl", line)
	if err != nil {
		return err
	}
	if len(prog.Decls.Exports) > 0 {
		return errors.New("exports are not available in the repl")
	}
	src := line
	keep := len(prog.Decls.Imports) > 0
	if len(prog.Stmts) == 1 {
		switch prog.Stmts[0].Kind {
		case language.StmtExpr:
			src = "log(" + strings.TrimSuffix(line, ";") + ")"
		case language.StmtBind:
			keep = true
		}
	}

	s.n++
	id := fmt.Sprintf("repl-%d.js", s.n)
	s.scratch.Set(id, strings.Join(append(append([]string(nil), s.kept...), src), "\n"))
	if _, err := s.p.engine.Execute(ctx, module.Identity(id)); err != nil {
		return err
	}
	if keep {
		s.kept = append(s.kept, line)
	}
	return nil
}
