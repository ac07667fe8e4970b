// Package unitgraph implements pass A of spec §2/§4.1: resolving every
// `use` statement reachable from a root unit into a dependency DAG of
// source units, verifying acyclicity and no duplicate public symbol
// across units, and returning a topological compile order plus the set
// of distinct stdlib modules and external libraries to link.
package unitgraph

import (
	"fmt"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/config"
	"github.com/sushi-lang/sushic/internal/diag"
)

// UnitMeta is what a Builder reports about one parsed unit, without
// requiring unitgraph to understand the concrete grammar (spec §1: lexing
// and parsing are out of scope; the AST builder is a mechanical tree
// walk this package never performs itself).
type UnitMeta struct {
	Name           string
	RawImports     []RawImport
	ExportedFuncs  []string
	ExportedConsts []string
}

// RawImport is one `use` statement as written, before classification.
type RawImport struct {
	Path string
	Line int
	Col  int
}

// Builder is the seam an external frontend plugs into: given a resolved
// absolute source path, build its typed AST and report its metadata.
type Builder interface {
	BuildUnit(path string) (*ast.Node, UnitMeta, error)
}

// searchCacheSize bounds the external-library resolution memo; a project
// with more than a few thousand distinct library import paths is not a
// realistic compilation, so eviction beyond this size is harmless.
const searchCacheSize = 4096

// Resolver drives unit loading for one compilation.
type Resolver struct {
	builder      Builder
	stdlibKnown  map[string]bool
	searchPaths  []string
	srcRoot      string
	rep          *diag.Reporter
	libPathCache *lru.Cache // raw import path -> resolved artifact path, memoized across units.
}

// NewResolver returns a Resolver. stdlibInventory names every stdlib
// module the linked standard-library bitcode set actually provides;
// srcRoot is the base directory dotted source-unit names resolve
// against.
func NewResolver(builder Builder, stdlibInventory []string, srcRoot string, rep *diag.Reporter) (*Resolver, error) {
	cache, err := lru.New(searchCacheSize)
	if err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(stdlibInventory))
	for _, m := range stdlibInventory {
		known[m] = true
	}
	return &Resolver{
		builder:      builder,
		stdlibKnown:  known,
		searchPaths:  config.LibrarySearchPaths(),
		srcRoot:      srcRoot,
		rep:          rep,
		libPathCache: cache,
	}, nil
}

type colorState int

const (
	white colorState = iota
	gray
	black
)

// Load resolves rootPath (an absolute path to the root source file) and
// every transitively-imported source unit into a Graph, verifying
// acyclicity and returning a topological order.
func (r *Resolver) Load(rootPath string) (*ast.Graph, error) {
	g := ast.NewGraph()
	color := make(map[string]colorState)
	var order []string
	seenPublic := make(map[string]string) // symbol name -> owning unit.
	stdlibSeen := make(map[string]bool)
	libSeen := make(map[string]bool)

	var stack []string // for cycle-message construction.

	var visit func(path string) (string, error)
	visit = func(path string) (string, error) {
		node, meta, err := r.builder.BuildUnit(path)
		if err != nil {
			r.rep.Emit("CE3001", nil, map[string]any{"path": path, "reason": err.Error()})
			return "", fmt.Errorf("could not read source unit %s: %w", path, err)
		}

		if c := color[meta.Name]; c == black || c == gray {
			return meta.Name, nil
		}
		color[meta.Name] = gray
		stack = append(stack, meta.Name)

		u := &ast.Unit{
			Name:           meta.Name,
			Path:           path,
			AST:            node,
			ExportedFuncs:  meta.ExportedFuncs,
			ExportedConsts: meta.ExportedConsts,
		}
		g.Units[meta.Name] = u

		for _, sym := range meta.ExportedFuncs {
			if owner, ok := seenPublic[sym]; ok && owner != meta.Name {
				r.rep.Emit("CE3003", nil, map[string]any{"name": sym, "unitA": owner, "unitB": meta.Name})
			} else {
				seenPublic[sym] = meta.Name
			}
		}
		for _, sym := range meta.ExportedConsts {
			if owner, ok := seenPublic[sym]; ok && owner != meta.Name {
				r.rep.Emit("CE3003", nil, map[string]any{"name": sym, "unitA": owner, "unitB": meta.Name})
			} else {
				seenPublic[sym] = meta.Name
			}
		}

		dedupImports := make(map[string]bool)
		for _, imp := range meta.RawImports {
			if dedupImports[imp.Path] {
				r.rep.Emit("CW1001", &diag.Span{Unit: meta.Name, Line: imp.Line, Col: imp.Col},
					map[string]any{"path": imp.Path, "unit": meta.Name})
				continue
			}
			dedupImports[imp.Path] = true

			kind, resolved := r.classify(imp.Path)
			switch kind {
			case ast.ImportStdlibModule:
				if !stdlibSeen[imp.Path] {
					stdlibSeen[imp.Path] = true
					g.StdlibModules = append(g.StdlibModules, imp.Path)
				}
				u.Imports = append(u.Imports, ast.Import{Kind: kind, Path: imp.Path, Line: imp.Line, Col: imp.Col})
			case ast.ImportExternalLibrary:
				if !libSeen[imp.Path] {
					libSeen[imp.Path] = true
					g.ExternalLibraries = append(g.ExternalLibraries, imp.Path)
				}
				u.Imports = append(u.Imports, ast.Import{Kind: kind, Path: imp.Path, Line: imp.Line, Col: imp.Col})
			default:
				depName, err := visit(resolved)
				if err != nil {
					return "", err
				}
				if color[depName] == gray {
					cycle := cycleSlice(stack, depName)
					r.rep.Emit("CE3002", nil, map[string]any{"cycle": strings.Join(cycle, " -> ")})
					return "", fmt.Errorf("import cycle: %s", strings.Join(cycle, " -> "))
				}
				u.Imports = append(u.Imports, ast.Import{Kind: ast.ImportSourceUnit, Path: depName, Line: imp.Line, Col: imp.Col})
			}
		}

		color[meta.Name] = black
		stack = stack[:len(stack)-1]
		order = append(order, meta.Name)
		return meta.Name, nil
	}

	if _, err := visit(rootPath); err != nil {
		return g, err
	}
	if r.rep.HasErrors() {
		return g, fmt.Errorf("unit loading failed")
	}
	g.Order = order
	return g, nil
}

func cycleSlice(stack []string, reentry string) []string {
	for i, n := range stack {
		if n == reentry {
			c := append([]string{}, stack[i:]...)
			return append(c, reentry)
		}
	}
	return append(append([]string{}, stack...), reentry)
}

// classify determines whether path names a stdlib module, an external
// library, or a source unit, and for a source unit resolves it to an
// absolute file path relative to srcRoot.
func (r *Resolver) classify(path string) (ast.ImportKind, string) {
	if r.stdlibKnown[path] {
		return ast.ImportStdlibModule, path
	}
	if strings.HasPrefix(path, "lib/") {
		if cached, ok := r.libPathCache.Get(path); ok {
			return ast.ImportExternalLibrary, cached.(string)
		}
		resolved := r.resolveLibraryPath(path)
		r.libPathCache.Add(path, resolved)
		return ast.ImportExternalLibrary, resolved
	}
	// Source-unit import: dotted path resolves to srcRoot/a/b/c.<ext>, the
	// file extension itself being a surface detail this package does not
	// fix (spec §1).
	rel := strings.ReplaceAll(path, ".", string(filepath.Separator))
	return ast.ImportSourceUnit, filepath.Join(r.srcRoot, rel)
}

// resolveLibraryPath mirrors original_source/backend/library_linker.py's
// resolve_library: try each search path with the dotted sub-path intact,
// then flattened to just the base name, falling back to the sub-path
// joined onto the first search path (or the bare sub-path when there are
// no search paths) if nothing on disk matches (the library-load stage reports
// CE3502 if the returned path still does not exist).
func (r *Resolver) resolveLibraryPath(path string) string {
	trimmed := strings.TrimPrefix(path, "lib/")
	base := filepath.Base(trimmed)
	for _, dir := range r.searchPaths {
		candidate := filepath.Join(dir, trimmed)
		if pathExists(candidate + ".slib") {
			return candidate
		}
		flat := filepath.Join(dir, base)
		if pathExists(flat + ".slib") {
			return flat
		}
	}
	if len(r.searchPaths) > 0 {
		return filepath.Join(r.searchPaths[0], trimmed)
	}
	return trimmed
}
