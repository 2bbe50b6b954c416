package language

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dlclark/regexp2"

	"github.com/hanpama/modgraph/internal/module"
)

// SyntaxError reports a line the parser could not understand.
type SyntaxError struct {
	Module string
	Line   int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("%s:%d: syntax error: %s", e.Module, e.Line, e.Msg)
}

const (
	ident = `[A-Za-z_$][\w$]*`
	str   = `["'](?<spec>[^"']*)["']`
)

func mustCompile(expr string) *regexp2.Regexp { return regexp2.MustCompile(expr, regexp2.None) }

var (
	reIsImport = mustCompile(`^import(?![\w$])`)
	reIsExport = mustCompile(`^export(?![\w$])`)

	reImportDefer = mustCompile(`^import\s+defer\s+\*\s+as\s+(?<ns>` + ident + `)\s+from\s+` + str + `$`)
	reImportNS    = mustCompile(`^import\s+\*\s+as\s+(?<ns>` + ident + `)\s+from\s+` + str + `$`)
	reImportNamed = mustCompile(`^import\s+(?:(?<def>` + ident + `)\s*,?\s*)?(?:\{(?<names>[^}]*)\}\s*)?from\s+` + str + `$`)
	reImportBare  = mustCompile(`^import\s+` + str + `$`)

	reExportFrom    = mustCompile(`^export\s+(?<defer>defer\s+)?\{(?<names>[^}]*)\}\s*from\s+` + str + `$`)
	reExportStar    = mustCompile(`^export\s+\*\s+from\s+` + str + `$`)
	reExportList    = mustCompile(`^export\s+\{(?<names>[^}]*)\}$`)
	reExportConst   = mustCompile(`^export\s+(?:const|let|var)\s+(?<name>` + ident + `)\s*=\s*(?<expr>.+)$`)
	reExportDefault = mustCompile(`^export\s+default\s+(?<expr>.+)$`)

	reConst = mustCompile(`^(?:const|let|var)\s+(?<name>` + ident + `)\s*=\s*(?<expr>.+)$`)
	reLog   = mustCompile(`^log\s*\((?<args>.*)\)$`)
	reThrow = mustCompile(`^throw\s+(?<expr>.+)$`)

	reName  = mustCompile(`^(?<from>` + ident + `)(?:\s+as\s+(?<to>` + ident + `))?$`)
	reToken = mustCompile(`^\s*(?:(?<str>"(?:[^"\\]|\\.)*"|'(?:[^'\\]|\\.)*')|(?<num>-?\d+(?:\.\d+)?)|(?<ref>` + ident + `(?:\s*\.\s*` + ident + `)*)|(?<op>[+,]))`)
)

func match(re *regexp2.Regexp, s string) *regexp2.Match {
	m, err := re.FindStringMatch(s)
	if err != nil {
		return nil
	}
	return m
}

func group(m *regexp2.Match, name string) (string, bool) {
	g := m.GroupByName(name)
	if g == nil || len(g.Captures) == 0 {
		return "", false
	}
	return g.String(), true
}

// Parse reads a module written in the line-oriented module dialect. Every
// non-empty line holds one statement; a trailing semicolon is optional and
// lines starting with // are comments.
func Parse(name, src string) (*Program, error) {
	p := &parser{prog: &Program{Name: name}}
	for i, raw := range strings.Split(src, "\n") {
		text := strings.TrimSpace(raw)
		text = strings.TrimSpace(strings.TrimSuffix(text, ";"))
		if text == "" || strings.HasPrefix(text, "//") {
			continue
		}
		p.line = i + 1
		if err := p.statement(text); err != nil {
			return nil, err
		}
	}
	return p.prog, nil
}

type parser struct {
	prog *Program
	line int
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Module: p.prog.Name, Line: p.line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) statement(text string) error {
	if match(reIsImport, text) != nil {
		return p.importDecl(text)
	}
	if match(reIsExport, text) != nil {
		return p.exportDecl(text)
	}

	if m := match(reConst, text); m != nil {
		name, _ := group(m, "name")
		return p.bind(name, mustGroup(m, "expr"))
	}
	if m := match(reLog, text); m != nil {
		args, err := p.exprList(mustGroup(m, "args"))
		if err != nil {
			return err
		}
		p.prog.Stmts = append(p.prog.Stmts, &Stmt{Kind: StmtLog, Args: args, Line: p.line})
		return nil
	}
	if m := match(reThrow, text); m != nil {
		e, err := p.expr(mustGroup(m, "expr"))
		if err != nil {
			return err
		}
		p.prog.Stmts = append(p.prog.Stmts, &Stmt{Kind: StmtThrow, Args: []Expr{e}, Line: p.line})
		return nil
	}
	e, err := p.expr(text)
	if err != nil {
		return err
	}
	p.prog.Stmts = append(p.prog.Stmts, &Stmt{Kind: StmtExpr, Args: []Expr{e}, Line: p.line})
	return nil
}

func (p *parser) importDecl(text string) error {
	d := module.ImportDecl{Line: p.line}
	if m := match(reImportDefer, text); m != nil {
		d.Namespace, _ = group(m, "ns")
		d.Specifier, _ = group(m, "spec")
		d.Deferred = true
	} else if m := match(reImportNS, text); m != nil {
		d.Namespace, _ = group(m, "ns")
		d.Specifier, _ = group(m, "spec")
	} else if m := match(reImportBare, text); m != nil {
		d.Specifier, _ = group(m, "spec")
	} else if m := match(reImportNamed, text); m != nil {
		d.Specifier, _ = group(m, "spec")
		def, hasDef := group(m, "def")
		names, hasNames := group(m, "names")
		if !hasDef && !hasNames {
			return p.errorf("import without bindings must be written `import %q`", d.Specifier)
		}
		if hasDef {
			d.Names = append(d.Names, module.ImportName{Imported: "default", Local: def})
		}
		if hasNames {
			pairs, err := p.names(names)
			if err != nil {
				return err
			}
			for _, pr := range pairs {
				d.Names = append(d.Names, module.ImportName{Imported: pr[0], Local: pr[1]})
			}
		}
	} else {
		return p.errorf("malformed import %q", text)
	}
	p.prog.Decls.Imports = append(p.prog.Decls.Imports, d)
	return nil
}

func (p *parser) exportDecl(text string) error {
	d := module.ExportDecl{Line: p.line}
	if m := match(reExportStar, text); m != nil {
		d.From, _ = group(m, "spec")
		d.Star = true
	} else if m := match(reExportFrom, text); m != nil {
		d.From, _ = group(m, "spec")
		_, d.Deferred = group(m, "defer")
		if err := p.exportNames(&d, mustGroup(m, "names")); err != nil {
			return err
		}
	} else if m := match(reExportList, text); m != nil {
		if err := p.exportNames(&d, mustGroup(m, "names")); err != nil {
			return err
		}
	} else if m := match(reExportConst, text); m != nil {
		name := mustGroup(m, "name")
		if err := p.bind(name, mustGroup(m, "expr")); err != nil {
			return err
		}
		d.Names = []module.ExportName{{Local: name, Exported: name}}
	} else if m := match(reExportDefault, text); m != nil {
		if err := p.bind("default", mustGroup(m, "expr")); err != nil {
			return err
		}
		d.Names = []module.ExportName{{Local: "default", Exported: "default"}}
	} else {
		return p.errorf("malformed export %q", text)
	}
	p.prog.Decls.Exports = append(p.prog.Decls.Exports, d)
	return nil
}

func (p *parser) exportNames(d *module.ExportDecl, list string) error {
	pairs, err := p.names(list)
	if err != nil {
		return err
	}
	for _, pr := range pairs {
		d.Names = append(d.Names, module.ExportName{Local: pr[0], Exported: pr[1]})
	}
	return nil
}

func (p *parser) bind(name, src string) error {
	e, err := p.expr(src)
	if err != nil {
		return err
	}
	p.prog.Stmts = append(p.prog.Stmts, &Stmt{Kind: StmtBind, Name: name, Args: []Expr{e}, Line: p.line})
	return nil
}

// names parses `a, b as c` into [from, to] pairs.
func (p *parser) names(list string) ([][2]string, error) {
	var out [][2]string
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		m := match(reName, part)
		if m == nil {
			return nil, p.errorf("malformed binding %q", part)
		}
		from := mustGroup(m, "from")
		to, ok := group(m, "to")
		if !ok {
			to = from
		}
		out = append(out, [2]string{from, to})
	}
	return out, nil
}

func (p *parser) expr(src string) (Expr, error) {
	list, err := p.exprList(src)
	if err != nil {
		return nil, err
	}
	if len(list) != 1 {
		return nil, p.errorf("expected one expression in %q", src)
	}
	return list[0], nil
}

// exprList parses comma separated expressions. An empty source yields none.
func (p *parser) exprList(src string) ([]Expr, error) {
	var (
		out     []Expr
		cur     Expr
		wantArg = true
	)
	rest := []rune(src)
	for len(strings.TrimSpace(string(rest))) > 0 {
		m := match(reToken, string(rest))
		if m == nil {
			return nil, p.errorf("unexpected %q", strings.TrimSpace(string(rest)))
		}
		rest = rest[m.Length:]

		if op, ok := group(m, "op"); ok {
			if wantArg {
				return nil, p.errorf("unexpected %q in %q", op, src)
			}
			if op == "," {
				out = append(out, cur)
				cur = nil
			}
			wantArg = true
			continue
		}
		if !wantArg {
			return nil, p.errorf("missing operator in %q", src)
		}
		t, err := p.term(m)
		if err != nil {
			return nil, err
		}
		cur = append(cur, t)
		wantArg = false
	}
	if wantArg {
		if cur == nil && len(out) == 0 {
			return nil, nil
		}
		return nil, p.errorf("dangling operator in %q", src)
	}
	return append(out, cur), nil
}

func (p *parser) term(m *regexp2.Match) (Term, error) {
	if s, ok := group(m, "str"); ok {
		v, err := unquote(s)
		if err != nil {
			return Term{}, p.errorf("bad string literal %s", s)
		}
		return Term{Kind: TermString, Value: v}, nil
	}
	if s, ok := group(m, "num"); ok {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Term{}, p.errorf("bad number %s", s)
		}
		return Term{Kind: TermNumber, Value: v}, nil
	}
	ref := mustGroup(m, "ref")
	switch ref {
	case "true", "false":
		return Term{Kind: TermBool, Value: ref == "true"}, nil
	case "null", "undefined":
		return Term{Kind: TermNull}, nil
	}
	path := strings.Split(ref, ".")
	for i := range path {
		path[i] = strings.TrimSpace(path[i])
	}
	return Term{Kind: TermRef, Path: path}, nil
}

func mustGroup(m *regexp2.Match, name string) string {
	s, _ := group(m, name)
	return s
}

func unquote(s string) (string, error) {
	if strings.HasPrefix(s, "'") {
		body := s[1 : len(s)-1]
		body = strings.ReplaceAll(body, `\'`, `'`)
		body = strings.ReplaceAll(body, `"`, `\"`)
		s = `"` + body + `"`
	}
	return strconv.Unquote(s)
}
