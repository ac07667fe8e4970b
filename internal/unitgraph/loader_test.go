package unitgraph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/diag"
)

// fakeBuilder lets tests describe a tiny unit graph by dotted name
// without a real frontend, standing in for the out-of-scope AST builder.
type fakeBuilder struct {
	units map[string]UnitMeta
}

func (f *fakeBuilder) BuildUnit(path string) (*ast.Node, UnitMeta, error) {
	meta, ok := f.units[path]
	if !ok {
		return nil, UnitMeta{}, fmt.Errorf("no such unit %q", path)
	}
	return &ast.Node{Kind: ast.NUnit}, meta, nil
}

func newTestResolver(t *testing.T, units map[string]UnitMeta) (*Resolver, *diag.Reporter) {
	t.Helper()
	rep := diag.NewReporter(diag.NewRegistry())
	r, err := NewResolver(&fakeBuilder{units: units}, []string{"io/stdio"}, "/src", rep)
	require.NoError(t, err)
	return r, rep
}

func TestLoadTopologicalOrder(t *testing.T) {
	r, rep := newTestResolver(t, map[string]UnitMeta{
		"/src/root": {Name: "root", RawImports: []RawImport{{Path: "math"}}},
		"/src/math": {Name: "math"},
	})
	g, err := r.Load("/src/root")
	require.NoError(t, err)
	assert.False(t, rep.HasErrors())
	assert.Equal(t, []string{"math", "root"}, g.Order)
}

func TestLoadDetectsCycle(t *testing.T) {
	r, rep := newTestResolver(t, map[string]UnitMeta{
		"/src/a": {Name: "a", RawImports: []RawImport{{Path: "b"}}},
		"/src/b": {Name: "b", RawImports: []RawImport{{Path: "a"}}},
	})
	_, err := r.Load("/src/a")
	require.Error(t, err)
	assert.True(t, rep.HasErrors())
	found := false
	for _, d := range rep.Diagnostics() {
		if d.Code == "CE3002" {
			found = true
		}
	}
	assert.True(t, found, "expected a CE3002 cycle diagnostic")
}

func TestLoadDetectsDuplicatePublicSymbol(t *testing.T) {
	r, rep := newTestResolver(t, map[string]UnitMeta{
		"/src/a": {Name: "a", RawImports: []RawImport{{Path: "b"}}, ExportedFuncs: []string{"area"}},
		"/src/b": {Name: "b", ExportedFuncs: []string{"area"}},
	})
	_, err := r.Load("/src/a")
	require.Error(t, err)
	codes := map[string]bool{}
	for _, d := range rep.Diagnostics() {
		codes[d.Code] = true
	}
	assert.True(t, codes["CE3003"])
}

func TestClassifyStdlibModule(t *testing.T) {
	r, _ := newTestResolver(t, map[string]UnitMeta{})
	kind, resolved := r.classify("io/stdio")
	assert.Equal(t, ast.ImportStdlibModule, kind)
	assert.Equal(t, "io/stdio", resolved)
}
