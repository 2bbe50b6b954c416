package module

// Declarations are the static module requests of one module in source order.
type Declarations struct {
	Imports []ImportDecl
	Exports []ExportDecl
}

// ImportName is one `imported as local` pair of a named import.
type ImportName struct {
	Imported string
	Local    string
}

// ImportDecl is an import statement. Namespace is the local name of a
// `* as ns` form; Deferred marks `import defer * as ns`. A declaration with
// neither names nor namespace only requests evaluation.
type ImportDecl struct {
	Specifier string
	Names     []ImportName
	Namespace string
	Deferred  bool
	Line      int
}

// ExportName is one `local as exported` pair. For re-exports Local is the
// name in the source module.
type ExportName struct {
	Local    string
	Exported string
}

// ExportDecl is an export statement. From is empty for local exports;
// Deferred marks `export defer { ... } from`; Star marks `export * from`.
type ExportDecl struct {
	Names    []ExportName
	From     string
	Deferred bool
	Star     bool
	Line     int
}
