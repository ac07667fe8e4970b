package pipeline

import (
	"path/filepath"
	"runtime"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/libfmt"
)

// srcDir returns the project root a compilation resolves dotted source-unit
// imports and the build cache against: the directory containing the root
// source file.
func srcDir(srcPath string) string {
	return filepath.Dir(srcPath)
}

// hostPlatform renders runtime.GOOS into the two-value spelling spec §6's
// library metadata "platform" key names.
func hostPlatform() string {
	if runtime.GOOS == "darwin" {
		return "darwin"
	}
	return "linux"
}

// typeNameOf renders r's display name for library metadata, reusing
// ast.Type's own String method so a struct/enum keeps its declared name
// and a primitive keeps its canonical spelling.
func typeNameOf(tables *ast.Tables, r ast.TypeRef) string {
	return tables.Arena.At(r).String()
}

// publicFunctionOf converts one exported FuncSig into the libfmt metadata
// shape written into a .slib artifact (spec §6).
func publicFunctionOf(tables *ast.Tables, name string, sig *ast.FuncSig) libfmt.PublicFunction {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = typeNameOf(tables, p.Type)
	}
	var typeParams []string
	for _, g := range sig.Generics {
		typeParams = append(typeParams, g.Name)
	}
	return libfmt.PublicFunction{
		Name:       name,
		Params:     params,
		ReturnType: typeNameOf(tables, sig.Return),
		IsGeneric:  len(sig.Generics) > 0,
		TypeParams: typeParams,
	}
}
