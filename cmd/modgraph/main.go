package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"

	"github.com/hanpama/modgraph/internal/config"
	"github.com/hanpama/modgraph/internal/eventbus"
	"github.com/hanpama/modgraph/internal/events"
	"github.com/hanpama/modgraph/internal/executor"
	"github.com/hanpama/modgraph/internal/grpcsrc"
	"github.com/hanpama/modgraph/internal/language"
	"github.com/hanpama/modgraph/internal/loader"
	"github.com/hanpama/modgraph/internal/logging"
	"github.com/hanpama/modgraph/internal/module"
	"github.com/hanpama/modgraph/internal/otel"
	"github.com/hanpama/modgraph/internal/source"
)

const rootUsage = `modgraph - module graph loader, linker and executor

USAGE:
  modgraph <command> [flags]

COMMANDS:
  run              Load, link and execute an entry module
  graph            Load and link an entry module and print its graph
  repl             Inspect and extend a module graph interactively
  serve-sources    Serve a module directory over gRPC
  help             Show help for any command
`

const runUsage = `run FLAGS:
  -config <file>           Project file (default: nearest modgraph.toml)
  -root <dir>              Module root directory (default: from config or .)
  -remote <host:port>      Load sources from a SourceService. Repeatable
  -workers N               Concurrent compiles per load wave (default: 4)
  -v                       Trace loader and executor events
  -q                       Print errors only
  -otel.endpoint <addr>    OTLP collector endpoint
  -otel.service <name>     OpenTelemetry service name (default: modgraph)
  <entry>                  Entry specifier (default: entry from config)
`

const graphUsage = `graph FLAGS:
  Same flags as run. Nothing is executed.
`

const replUsage = `repl:
  Same flags as run; the entry is optional and executed first.
  Lines are module statements evaluated against the root directory.
  Imports and bindings persist across lines; bare expressions are printed.
  :run <spec>          Execute a module and list its exports
  :keys <spec>         List the exports of a loaded module
  :get <spec> <name>   Read one export, running deferred code if needed
  :graph               Print every loaded module
  :quit                Leave
`

const serveSourcesUsage = `serve-sources FLAGS:
  -root <dir>     Directory to serve (default: .)
  -addr <addr>    gRPC listen address (default: :7070)
`

var stdout io.Writer = os.Stdout

func main() {
	if err := run(os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("modgraph", flag.ContinueOnError)
	global.SetOutput(new(bytes.Buffer)) // silence automatic output
	if err := global.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, rootUsage)
		return err
	}
	remaining := global.Args()
	if len(remaining) == 0 {
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("missing command")
	}

	cmd := remaining[0]
	cmdArgs := remaining[1:]
	switch cmd {
	case "run":
		return cmdRun(cmdArgs)
	case "graph":
		return cmdGraph(cmdArgs)
	case "repl":
		return cmdRepl(cmdArgs)
	case "serve-sources":
		return cmdServeSources(cmdArgs)
	case "help":
		return cmdHelp(cmdArgs)
	default:
		fmt.Fprint(os.Stderr, rootUsage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func cmdHelp(args []string) error {
	if len(args) == 0 {
		fmt.Fprint(stdout, rootUsage)
		return nil
	}
	switch args[0] {
	case "run":
		fmt.Fprint(stdout, runUsage)
	case "graph":
		fmt.Fprint(stdout, runUsage+graphUsage)
	case "repl":
		fmt.Fprint(stdout, runUsage+replUsage)
	case "serve-sources":
		fmt.Fprint(stdout, serveSourcesUsage)
	default:
		return fmt.Errorf("unknown help topic %q", args[0])
	}
	return nil
}

type stringListFlag []string

func (s *stringListFlag) String() string { return strings.Join(*s, ",") }

func (s *stringListFlag) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// project is the engine and its collaborators built from flags and config.
type project struct {
	cfg    *config.Config
	log    *logging.Logger
	engine *executor.Engine
	entry  string
	close  func()
}

// openProject builds a project from flags. A non-nil scratch provider is
// layered over the module sources and makes the entry optional.
func openProject(name, usage string, args []string, scratch *source.InMemory) (*project, error) {
	configPath := ""
	rootDir := ""
	workers := 0
	verbose := false
	quiet := false
	otelEndpoint := ""
	otelService := "modgraph"
	var remotes stringListFlag

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&configPath, "config", configPath, "Project file")
	fs.StringVar(&rootDir, "root", rootDir, "Module root directory")
	fs.Var(&remotes, "remote", "SourceService endpoint")
	fs.IntVar(&workers, "workers", workers, "Concurrent compiles per load wave")
	fs.BoolVar(&verbose, "v", verbose, "Trace loader and executor events")
	fs.BoolVar(&quiet, "q", quiet, "Print errors only")
	fs.StringVar(&otelEndpoint, "otel.endpoint", otelEndpoint, "OTLP collector endpoint")
	fs.StringVar(&otelService, "otel.service", otelService, "OpenTelemetry service name")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, usage)
		return nil, err
	}

	cfg, err := loadConfig(configPath, rootDir)
	if err != nil {
		return nil, err
	}
	if rootDir != "" {
		cfg.Root = rootDir
	}
	if workers > 0 {
		cfg.Workers = workers
	}
	if len(remotes) > 0 {
		cfg.Remote = &config.Remote{Endpoints: remotes}
	}
	if otelEndpoint != "" {
		cfg.Telemetry = &config.Telemetry{Endpoint: otelEndpoint, Service: otelService}
	}
	entry := cfg.Entry
	if fs.NArg() > 0 {
		entry = fs.Arg(0)
	}
	if entry == "" && scratch == nil {
		fmt.Fprint(os.Stderr, usage)
		return nil, fmt.Errorf("missing entry")
	}

	level := logging.LevelInfo
	switch {
	case quiet:
		level = logging.LevelError
	case verbose:
		level = logging.LevelVerbose
	}
	logger := logging.New(stdout, level)

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	eventbus.Use(eventbus.New())
	closers = append(closers, func() { eventbus.Use(nil) })
	if cfg.Telemetry != nil {
		shutdown, err := otel.Setup(cfg.Telemetry.Endpoint, cfg.Telemetry.Service)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("otel setup: %w", err)
		}
		closers = append(closers, func() { _ = shutdown(context.Background()) })
	}
	closers = append(closers, logging.Trace(logger))

	provider, err := openProvider(cfg)
	if err != nil {
		closeAll()
		return nil, err
	}
	if c, ok := provider.(*grpcsrc.Client); ok {
		closers = append(closers, func() { _ = c.Close() })
	}
	if scratch != nil {
		provider = source.NewOverlay(scratch, provider)
	}

	var ropts []source.ResolverOption
	if len(cfg.Extensions) > 0 {
		ropts = append(ropts, source.WithExtensions(cfg.Extensions...))
	}
	if len(cfg.IndexFiles) > 0 {
		ropts = append(ropts, source.WithIndexFiles(cfg.IndexFiles...))
	}
	if len(cfg.Aliases) > 0 {
		ropts = append(ropts, source.WithAliases(cfg.Aliases))
	}
	engine := executor.New(
		source.NewResolver(provider, ropts...),
		language.NewCompiler(provider, language.WithConsole(logger.Console)),
		executor.WithLoaderOptions(loader.WithWorkers(cfg.Workers), loader.WithMaxDepth(cfg.MaxDepth)),
	)
	return &project{cfg: cfg, log: logger, engine: engine, entry: entry, close: closeAll}, nil
}

func loadConfig(path, rootDir string) (*config.Config, error) {
	if path == "" {
		dir := rootDir
		if dir == "" {
			dir = "."
		}
		found, err := config.Find(dir)
		if errors.Is(err, config.ErrNoConfig) {
			return config.Default(), nil
		}
		if err != nil {
			return nil, err
		}
		path = found
	}
	return config.Load(path)
}

func openProvider(cfg *config.Config) (source.Provider, error) {
	if cfg.Remote == nil {
		return source.NewDir(cfg.Root), nil
	}
	opts := []grpcsrc.Option{grpcsrc.WithEndpoints(cfg.Remote.Endpoints...)}
	if cfg.Remote.MaxConns > 0 {
		opts = append(opts, grpcsrc.WithMaxConnsPerEndpoint(cfg.Remote.MaxConns))
	}
	timeout, err := cfg.Remote.RPCTimeout()
	if err != nil {
		return nil, err
	}
	if timeout > 0 {
		opts = append(opts, grpcsrc.WithRPCTimeout(timeout))
	}
	return grpcsrc.NewClient(opts...)
}

func cmdRun(args []string) error {
	p, err := openProject("run", runUsage, args, nil)
	if err != nil {
		return err
	}
	defer p.close()

	var (
		mu    sync.Mutex
		order []string
	)
	unsub := eventbus.Subscribe(func(_ context.Context, e events.ModuleExecuteStart) {
		mu.Lock()
		order = append(order, e.Module)
		mu.Unlock()
	})
	defer unsub()

	ctx := context.Background()
	start := time.Now()
	id, err := p.engine.Resolve(ctx, p.entry)
	if err != nil {
		p.log.Report(err)
		return err
	}
	ns, err := p.engine.Execute(ctx, id)
	if err != nil {
		p.log.Report(err)
		return err
	}

	mu.Lock()
	p.log.Info("Order", strings.Join(order, " -> "))
	mu.Unlock()
	p.log.Info("Exports", strings.Join(ns.Keys(), ", "))
	p.log.Success("Done", fmt.Sprintf("%s (%.3fs)", id, time.Since(start).Seconds()))
	return nil
}

func cmdGraph(args []string) error {
	p, err := openProject("graph", runUsage+graphUsage, args, nil)
	if err != nil {
		return err
	}
	defer p.close()

	ctx := context.Background()
	id, err := p.engine.Resolve(ctx, p.entry)
	if err != nil {
		p.log.Report(err)
		return err
	}
	if _, err := p.engine.LoadGraph(ctx, id); err != nil {
		p.log.Report(err)
		return err
	}
	printGraph(stdout, p.engine.Store())
	return nil
}

func printGraph(w io.Writer, store *module.Store) {
	for _, rec := range store.Records() {
		fmt.Fprintf(w, "%s [%s]\n", rec.ID, rec.LoadState())
		for _, e := range rec.Edges() {
			kind := "eager"
			if e.Kind == module.Deferred {
				kind = "deferred"
			}
			fmt.Fprintf(w, "  -> %s (%s, line %d)\n", e.Target, kind, e.Line)
		}
		names := rec.ExportNames()
		sort.Strings(names)
		for _, name := range names {
			b, ok := rec.ExportBinding(name)
			if !ok {
				continue
			}
			if b.Owner == nil {
				fmt.Fprintf(w, "  export %s unavailable: %v\n", name, b.Err)
				continue
			}
			mark := ""
			if b.Deferred {
				mark = " (deferred)"
			}
			fmt.Fprintf(w, "  export %s = %s.%s%s\n", name, b.Owner.ID, b.Local, mark)
		}
		if err := rec.LoadErr(); err != nil {
			fmt.Fprintf(w, "  error: %v\n", err)
		}
	}
}

func cmdServeSources(args []string) error {
	rootDir := "."
	addr := ":7070"
	fs := flag.NewFlagSet("serve-sources", flag.ContinueOnError)
	fs.SetOutput(new(bytes.Buffer))
	fs.StringVar(&rootDir, "root", rootDir, "Directory to serve")
	fs.StringVar(&addr, "addr", addr, "gRPC listen address")
	if err := fs.Parse(args); err != nil {
		fmt.Fprint(os.Stderr, serveSourcesUsage)
		return err
	}

	srv := grpc.NewServer()
	if err := grpcsrc.Register(srv, source.NewDir(rootDir)); err != nil {
		return fmt.Errorf("register source service: %w", err)
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	log.Printf("SourceService serving %s on %s", rootDir, lis.Addr())
	return srv.Serve(lis)
}
