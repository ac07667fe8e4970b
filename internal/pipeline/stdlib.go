package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/config"
	"github.com/sushi-lang/sushic/internal/libfmt"
)

// stdlibArtifact is one resolved, on-disk precompiled stdlib module: spec
// §6 leaves "how they are produced" entirely unspecified, so this package
// resolves a module name like "io/stdio" to a file the same way
// unitgraph.Resolver.resolveLibraryPath resolves a `lib/` import -- by
// searching StdlibSearchPaths for <module>.slib -- and reads it with the
// same libfmt container internal/libfmt already implements for
// user-authored libraries, rather than inventing a second on-disk format
// for what is, from the core's point of view, the same kind of artifact.
type stdlibArtifact struct {
	Module   string
	Path     string
	Metadata libfmt.Metadata
	Bitcode  []byte
}

// resolveStdlibModule locates and reads module's .slib artifact.
func resolveStdlibModule(module string) (stdlibArtifact, error) {
	for _, dir := range config.StdlibSearchPaths() {
		candidate := filepath.Join(dir, filepath.FromSlash(module)+".slib")
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		meta, bc, err := libfmt.Read(candidate)
		if err != nil {
			return stdlibArtifact{}, fmt.Errorf("stdlib module %s: %w", module, err)
		}
		return stdlibArtifact{Module: module, Path: candidate, Metadata: meta, Bitcode: bc}, nil
	}
	return stdlibArtifact{}, fmt.Errorf("stdlib module %s not found on SUSHI_STDLIB_PATH", module)
}

// knownStdlibModules lists every module name resolveStdlibModule can find
// across config.StdlibSearchPaths, the stdlibInventory unitgraph.NewResolver
// needs to tell a bare `use "io/stdio"` apart from a source-unit import.
func knownStdlibModules() []string {
	seen := make(map[string]bool)
	var names []string
	for _, dir := range config.StdlibSearchPaths() {
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".slib" {
				continue
			}
			name := e.Name()[:len(e.Name())-len(".slib")]
			if !seen[name] {
				seen[name] = true
				names = append(names, name)
			}
		}
	}
	return names
}

// primitiveTypeRefs mirrors ast.NewArena's fixed built-in intern order, the
// only stable way to recover a TypeRef for a primitive type name without
// re-running type resolution over stdlib metadata (spec §1 keeps stdlib
// production out of scope; its public signatures arrive pre-typed only as
// libfmt's plain type-name strings).
var primitiveTypeRefs = map[string]ast.TypeRef{
	"i8": 1, "i16": 2, "i32": 3, "i64": 4,
	"u8": 5, "u16": 6, "u32": 7, "u64": 8,
	"f32": 9, "f64": 10, "bool": 11, "~": 12, "string": 13,
}

// typeRefForName resolves a libfmt-recorded type-name string to a TypeRef.
// Only primitives are resolvable this way; an unrecognized name (a stdlib
// struct/enum or a generic container spelling such as "List<i32>") falls
// back to the string type's ref, since stdlib-side struct/enum layouts are
// themselves opaque to the core (it only ever holds/passes them, spec
// §4.4.3 names no stdlib-defined aggregate layout).
func typeRefForName(name string) ast.TypeRef {
	if r, ok := primitiveTypeRefs[name]; ok {
		return r
	}
	return primitiveTypeRefs["string"]
}

// funcSigFromPublic converts one libfmt.PublicFunction into the ast.FuncSig
// shape collect.CollectStdlibFuncs expects, synthesizing Param entries
// positionally since the metadata format only records parameter type
// names, not parameter names (spec §6's public_functions key list).
func funcSigFromPublic(pf libfmt.PublicFunction) ast.FuncSig {
	params := make([]ast.Param, len(pf.Params))
	for i, tn := range pf.Params {
		params[i] = ast.Param{Name: fmt.Sprintf("arg%d", i), Type: typeRefForName(tn)}
	}
	var generics []ast.GenericConstraint
	for _, tp := range pf.TypeParams {
		generics = append(generics, ast.GenericConstraint{Name: tp})
	}
	return ast.FuncSig{
		Name:     pf.Name,
		Params:   params,
		Return:   typeRefForName(pf.ReturnType),
		Public:   true,
		Generics: generics,
	}
}
