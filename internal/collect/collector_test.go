package collect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/diag"
)

func ident(name string) *ast.Node {
	return &ast.Node{Kind: ast.NIdentifierExpr, Data: name}
}

func structDecl(name string, generic bool) *ast.Node {
	n := &ast.Node{Kind: ast.NStructDecl, Children: []*ast.Node{ident(name)}}
	if generic {
		n.Children = append(n.Children, &ast.Node{
			Kind:     ast.NGenericParamList,
			Children: []*ast.Node{ident("T")},
		})
	}
	return n
}

func funcDecl(name string, public bool) *ast.Node {
	data := ""
	if public {
		data = "pub"
	}
	return &ast.Node{Kind: ast.NFunction, Data: data, Children: []*ast.Node{ident(name)}}
}

func newGraphWithUnit(u *ast.Unit) *ast.Graph {
	g := ast.NewGraph()
	g.Units[u.Name] = u
	g.Order = []string{u.Name}
	return g
}

func TestCollectStructsAndDuplicates(t *testing.T) {
	rep := diag.NewReporter(diag.NewRegistry())
	tables := ast.NewTables(ast.NewArena())

	unit := &ast.Unit{
		Name: "shapes",
		AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{
			structDecl("Point", false),
			structDecl("Point", false), // duplicate
		}},
	}
	Collect(newGraphWithUnit(unit), tables, rep)

	_, ok := tables.Structs["Point"]
	require.True(t, ok)
	assert.True(t, rep.HasErrors())
	foundDup := false
	for _, d := range rep.Diagnostics() {
		if d.Code == "CE1002" {
			foundDup = true
		}
	}
	assert.True(t, foundDup)
}

func TestCollectGenericStructGoesToTemplateTable(t *testing.T) {
	rep := diag.NewReporter(diag.NewRegistry())
	tables := ast.NewTables(ast.NewArena())

	unit := &ast.Unit{
		Name: "containers",
		AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{
			structDecl("Pair", true),
		}},
	}
	Collect(newGraphWithUnit(unit), tables, rep)

	assert.False(t, rep.HasErrors())
	tmpl, ok := tables.GenericStructs["Pair"]
	require.True(t, ok)
	assert.Equal(t, []string{"T"}, tmpl.TypeParams)
	_, concrete := tables.Structs["Pair"]
	assert.False(t, concrete)
}

func TestCollectPerkImplDuplicate(t *testing.T) {
	rep := diag.NewReporter(diag.NewRegistry())
	tables := ast.NewTables(ast.NewArena())

	implBlock := func() *ast.Node {
		return &ast.Node{Kind: ast.NPerkImpl, Children: []*ast.Node{
			ident("Point"), ident("Printable"), funcDecl("show", true),
		}}
	}
	unit := &ast.Unit{
		Name: "shapes",
		AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{
			implBlock(), implBlock(),
		}},
	}
	Collect(newGraphWithUnit(unit), tables, rep)

	key := ast.PerkImplKey{Target: "Point", Perk: "Printable"}
	_, ok := tables.PerkImpls[key]
	require.True(t, ok)
	codes := map[string]bool{}
	for _, d := range rep.Diagnostics() {
		codes[d.Code] = true
	}
	assert.True(t, codes["CE1006"])
}

func TestCollectFunctionsAndConstants(t *testing.T) {
	rep := diag.NewReporter(diag.NewRegistry())
	tables := ast.NewTables(ast.NewArena())

	constDecl := &ast.Node{Kind: ast.NConstantDecl, Children: []*ast.Node{
		ident("MAX"), &ast.Node{Kind: ast.NIntegerLit, Data: int64(100)},
	}}
	unit := &ast.Unit{
		Name: "app",
		AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{
			funcDecl("main", true),
			constDecl,
		}},
	}
	Collect(newGraphWithUnit(unit), tables, rep)

	assert.False(t, rep.HasErrors())
	sig, ok := tables.Funcs["main"]
	require.True(t, ok)
	assert.True(t, sig.Public)

	c, ok := tables.Constants["MAX"]
	require.True(t, ok)
	assert.Equal(t, "app", c.Unit)
}

func TestCollectStdlibFuncs(t *testing.T) {
	tables := ast.NewTables(ast.NewArena())
	CollectStdlibFuncs("io/stdio", []ast.FuncSig{
		{Name: "println"},
		{Name: "print"},
	}, tables)

	sig, ok := tables.StdlibFuncs["println"]
	require.True(t, ok)
	assert.True(t, sig.IsStdlib)
	assert.Equal(t, "io/stdio", sig.Unit)
}
