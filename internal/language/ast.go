package language

import "github.com/hanpama/modgraph/internal/module"

// Program is a parsed module: its static declarations and the statements of
// its top-level code.
type Program struct {
	Name  string
	Decls module.Declarations
	Stmts []*Stmt
}

type StmtKind int

const (
	StmtBind StmtKind = iota // const x = expr
	StmtLog                  // log(a, b)
	StmtThrow                // throw expr
	StmtExpr                 // expr
)

// Stmt is one line of top-level code.
type Stmt struct {
	Kind StmtKind
	Name string
	Args []Expr
	Line int
}

// Expr is a sum of terms: numbers add, anything else concatenates.
type Expr []Term

type TermKind int

const (
	TermString TermKind = iota
	TermNumber
	TermBool
	TermNull
	TermRef
)

// Term is a literal or a reference. A reference path reads its first
// element from the module scope and every further element as a member of
// the previous value.
type Term struct {
	Kind  TermKind
	Value any
	Path  []string
}
