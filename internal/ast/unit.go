package ast

// ImportKind classifies one entry of a Unit's import list.
type ImportKind int

const (
	ImportSourceUnit ImportKind = iota
	ImportStdlibModule
	ImportExternalLibrary
)

// Import is one resolved `use` statement.
type Import struct {
	Kind ImportKind
	Path string // dotted unit path, stdlib module name ("io/stdio"), or library path ("lib/acme/utils").
	Line int
	Col  int
}

// Unit is a single loaded source file: a dotted-path name, the typed AST
// the (out-of-scope) frontend built for it, its import list, and the
// symbols it exports. Units are created during loading (internal/unitgraph)
// and persist for the lifetime of the compilation (spec §3, "Lifecycles").
type Unit struct {
	Name     string // dotted path, e.g. "app.math.vectors".
	Path     string // absolute source file path.
	AST      *Node  // root of this unit's syntax tree (NUnit).
	Imports  []Import

	// ExportedFuncs / ExportedConsts name the public symbols this unit
	// contributes to the global tables; duplicate-export detection in
	// internal/unitgraph consults these before the collector pass runs.
	ExportedFuncs  []string
	ExportedConsts []string
}

// Graph is the unit dependency DAG: nodes are Units (keyed by dotted
// name), edges follow ImportSourceUnit imports. Graph is built and
// validated (acyclic, topologically orderable) by internal/unitgraph and
// then handed to every later pass read-only.
type Graph struct {
	Units map[string]*Unit
	Order []string // topological order, dependencies first.

	// StdlibModules and ExternalLibraries collect the distinct stdlib
	// module names and external library paths referenced transitively,
	// for the linker (spec §4.5) to merge in.
	StdlibModules     []string
	ExternalLibraries []string
}

// NewGraph returns an empty Graph ready for population by the loader.
func NewGraph() *Graph {
	return &Graph{Units: make(map[string]*Unit)}
}
