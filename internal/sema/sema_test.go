package sema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/collect"
	"github.com/sushi-lang/sushic/internal/diag"
)

func ident(name string) *ast.Node { return &ast.Node{Kind: ast.NIdentifierExpr, Data: name} }

func intLit(v int64) *ast.Node { return &ast.Node{Kind: ast.NIntegerLit, Data: v} }

func typeNode(name string) *ast.Node { return &ast.Node{Kind: ast.NTypeRefExpr, Data: name} }

func newFixture() (*ast.Graph, *ast.Tables, *diag.Reporter) {
	g := ast.NewGraph()
	tables := ast.NewTables(ast.NewArena())
	rep := diag.NewReporter(diag.NewRegistry())
	return g, tables, rep
}

func TestConstantEvaluationArithmetic(t *testing.T) {
	g, tables, rep := newFixture()
	unit := &ast.Unit{
		Name: "app",
		AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{
			{Kind: ast.NConstantDecl, Children: []*ast.Node{
				ident("SIZE"),
				&ast.Node{Kind: ast.NBinaryExpr, Data: "+", Children: []*ast.Node{intLit(2), intLit(3)}},
			}},
		}},
	}
	g.Units["app"] = unit
	g.Order = []string{"app"}
	collect.Collect(g, tables, rep)
	require.False(t, rep.HasErrors())

	Run(g, tables, rep)
	assert.False(t, rep.HasErrors())
	entry := tables.Constants["SIZE"]
	require.True(t, entry.Evaluated)
	assert.Equal(t, int64(5), entry.Value.Int)
}

func TestConstantEvaluationDivisionByZero(t *testing.T) {
	g, tables, rep := newFixture()
	unit := &ast.Unit{
		Name: "app",
		AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{
			{Kind: ast.NConstantDecl, Children: []*ast.Node{
				ident("BAD"),
				&ast.Node{Kind: ast.NBinaryExpr, Data: "/", Children: []*ast.Node{intLit(1), intLit(0)}},
			}},
		}},
	}
	g.Units["app"] = unit
	g.Order = []string{"app"}
	collect.Collect(g, tables, rep)

	Run(g, tables, rep)
	found := false
	for _, d := range rep.Diagnostics() {
		if d.Code == "CE2013" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestConstantEvaluationCycle(t *testing.T) {
	g, tables, rep := newFixture()
	unit := &ast.Unit{
		Name: "app",
		AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{
			{Kind: ast.NConstantDecl, Children: []*ast.Node{ident("A"), ident("B")}},
			{Kind: ast.NConstantDecl, Children: []*ast.Node{ident("B"), ident("A")}},
		}},
	}
	g.Units["app"] = unit
	g.Order = []string{"app"}
	collect.Collect(g, tables, rep)

	Run(g, tables, rep)
	found := false
	for _, d := range rep.Diagnostics() {
		if d.Code == "CE2014" {
			found = true
		}
	}
	assert.True(t, found)
}

func funcDecl(name string, params *ast.Node, ret *ast.Node, body *ast.Node) *ast.Node {
	return &ast.Node{Kind: ast.NFunction, Data: "pub", Children: []*ast.Node{
		ident(name),
		{Kind: ast.NGenericParamList},
		params,
		ret,
		body,
	}}
}

func TestCheckFuncBodyReturnTypeMismatch(t *testing.T) {
	g, tables, rep := newFixture()
	body := &ast.Node{Kind: ast.NBlock, Children: []*ast.Node{
		{Kind: ast.NReturnStatement, Children: []*ast.Node{
			&ast.Node{Kind: ast.NStringLit, Data: "oops"},
		}},
	}}
	fn := funcDecl("give", &ast.Node{Kind: ast.NParameterList}, typeNode("i32"), body)
	unit := &ast.Unit{Name: "app", AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{fn}}}
	g.Units["app"] = unit
	g.Order = []string{"app"}
	collect.Collect(g, tables, rep)
	require.False(t, rep.HasErrors())

	Run(g, tables, rep)
	found := false
	for _, d := range rep.Diagnostics() {
		if d.Code == "CE2012" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestCheckFuncBodyValidLet(t *testing.T) {
	g, tables, rep := newFixture()
	body := &ast.Node{Kind: ast.NBlock, Children: []*ast.Node{
		{Kind: ast.NLetStatement, Children: []*ast.Node{ident("x"), intLit(10)}},
		{Kind: ast.NReturnStatement, Children: []*ast.Node{ident("x")}},
	}}
	fn := funcDecl("give", &ast.Node{Kind: ast.NParameterList}, typeNode("i64"), body)
	unit := &ast.Unit{Name: "app", AST: &ast.Node{Kind: ast.NUnit, Children: []*ast.Node{fn}}}
	g.Units["app"] = unit
	g.Order = []string{"app"}
	collect.Collect(g, tables, rep)

	Run(g, tables, rep)
	assert.False(t, rep.HasErrors())
}
