// Package link implements pass E of spec §4.5: merging the main module,
// compiled library bitcode, and stdlib bitcode into one deduplicated LLVM
// module via a two-phase symbol-resolution scheme, with a "simple"
// native-link fallback for when a caller disables it.
package link

import "tinygo.org/x/go-llvm"

// Source tags which of the three bitcode categories a symbol table entry
// came from; Phase 4's priority rule (main > library > stdlib) is just an
// ordering over this type.
type Source int

const (
	SourceStdlib Source = iota
	SourceLibrary
	SourceMain
)

func (s Source) String() string {
	switch s {
	case SourceMain:
		return "main"
	case SourceLibrary:
		return "library"
	default:
		return "stdlib"
	}
}

// inputModule is one bitcode module handed to the linker, tagged with the
// name it was loaded under and its priority source.
type inputModule struct {
	mod    llvm.Module
	name   string
	source Source
}

// symbol is one function or global entry extracted from an inputModule.
type symbol struct {
	name       string
	source     Source
	moduleName string
	value      llvm.Value
	isDecl     bool
}

// symbolTable is every function/global extracted from one inputModule,
// keyed by name for the duplicate-detection phase 4 needs.
type symbolTable struct {
	moduleName string
	source     Source
	entries    map[string]symbol
}

// extractSymbolTable walks every function and global in in.mod (Phase 1),
// grounded on the FirstFunction/NextFunction and FirstGlobal/NextGlobal
// iteration idiom tinygo's own builder.go uses for exactly this kind of
// whole-module symbol sweep.
func extractSymbolTable(in inputModule) symbolTable {
	t := symbolTable{moduleName: in.name, source: in.source, entries: make(map[string]symbol)}
	for fn := in.mod.FirstFunction(); !fn.IsNil(); fn = llvm.NextFunction(fn) {
		name := fn.Name()
		if name == "" {
			continue
		}
		t.entries[name] = symbol{name: name, source: in.source, moduleName: in.name, value: fn, isDecl: fn.IsDeclaration()}
	}
	for g := in.mod.FirstGlobal(); !g.IsNil(); g = llvm.NextGlobal(g) {
		name := g.Name()
		if name == "" || name == "llvm.global_ctors" {
			continue
		}
		t.entries[name] = symbol{name: name, source: in.source, moduleName: in.name, value: g, isDecl: g.IsDeclaration()}
	}
	return t
}
