package events

import "time"

// GraphLoadStart is emitted before the loader walks the graph of an entry.
type GraphLoadStart struct {
	Entry string
}

// GraphLoadFinish is emitted after loading and linking settled.
type GraphLoadFinish struct {
	Entry    string
	Modules  int
	Err      error
	Duration time.Duration
}

// ModuleLoadStart is emitted before a module is compiled.
type ModuleLoadStart struct {
	Module string
}

// ModuleLoadFinish is emitted once the compile result of a module is stored.
type ModuleLoadFinish struct {
	Module   string
	Edges    int
	Err      error
	Duration time.Duration
}

// GraphLinked is emitted after the linker resolved every binding of a graph.
type GraphLinked struct {
	Entry      string
	Violations int
}
