// Package collect implements pass B of spec §2/§4.2: a single walk of
// every loaded unit's AST that populates the global symbol tables
// (structs, enums, perks, generic templates, functions, constants,
// extension methods, perk implementations) without descending into
// function bodies. No type resolution happens here; types remain as
// syntactic references until internal/sema resolves them.
//
// Declaration nodes are assumed to carry their name as Children[0] (an
// NIdentifierExpr-shaped node whose Ident() is the declared name), mirroring
// the positional child convention the out-of-scope frontend's tree builder
// already uses for every other node kind.
package collect

import (
	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/diag"
)

// Collect walks every unit in g.Order and populates tables. Units are
// visited in topological order (dependencies first) per spec §5's
// ordering contract, though collection itself has no cross-unit
// dependency beyond duplicate-name detection across the whole program.
func Collect(g *ast.Graph, tables *ast.Tables, rep *diag.Reporter) {
	for _, name := range g.Order {
		u := g.Units[name]
		collectUnit(u, tables, rep)
	}
}

func collectUnit(u *ast.Unit, t *ast.Tables, rep *diag.Reporter) {
	if u.AST == nil {
		return
	}
	for _, decl := range u.AST.Children {
		switch decl.Kind {
		case ast.NStructDecl:
			collectStruct(decl, u.Name, t, rep)
		case ast.NEnumDecl:
			collectEnum(decl, u.Name, t, rep)
		case ast.NPerkDecl:
			collectPerk(decl, u.Name, t, rep)
		case ast.NPerkImpl:
			collectPerkImpl(decl, u.Name, t, rep)
		case ast.NExtensionDecl:
			collectExtension(decl, u.Name, t, rep)
		case ast.NFunction:
			collectFunc(decl, u.Name, t, rep)
		case ast.NConstantDecl:
			collectConstant(decl, u.Name, t, rep)
		}
	}
}

func hasGenericParams(n *ast.Node) bool {
	for _, c := range n.Children {
		if c.Kind == ast.NGenericParamList {
			return len(c.Children) > 0
		}
	}
	return false
}

func genericParamNames(n *ast.Node) []string {
	for _, c := range n.Children {
		if c.Kind == ast.NGenericParamList {
			names := make([]string, 0, len(c.Children))
			for _, p := range c.Children {
				names = append(names, p.Ident())
			}
			return names
		}
	}
	return nil
}

func span(unit string, n *ast.Node) *diag.Span {
	return &diag.Span{Unit: unit, Line: n.Line, Col: n.Col}
}

func collectStruct(n *ast.Node, unit string, t *ast.Tables, rep *diag.Reporter) {
	name := n.Children[0].Ident()
	if hasGenericParams(n) {
		if _, dup := t.GenericStructs[name]; dup {
			rep.Emit("CE1002", span(unit, n), map[string]any{"name": name, "unit": unit})
			return
		}
		t.GenericStructs[name] = &ast.GenericStructTemplate{
			Name:       name,
			TypeParams: genericParamNames(n),
			Decl:       n,
			Unit:       unit,
		}
		return
	}
	if _, dup := t.Structs[name]; dup {
		rep.Emit("CE1002", span(unit, n), map[string]any{"name": name, "unit": unit})
		return
	}
	def := &ast.StructDef{Name: name, Unit: unit}
	t.Structs[name] = def
	t.StructOrder = append(t.StructOrder, name)
}

func collectEnum(n *ast.Node, unit string, t *ast.Tables, rep *diag.Reporter) {
	name := n.Children[0].Ident()
	if hasGenericParams(n) {
		if _, dup := t.GenericEnums[name]; dup {
			rep.Emit("CE1003", span(unit, n), map[string]any{"name": name, "unit": unit})
			return
		}
		t.GenericEnums[name] = &ast.GenericEnumTemplate{
			Name:       name,
			TypeParams: genericParamNames(n),
			Decl:       n,
			Unit:       unit,
		}
		return
	}
	if _, dup := t.Enums[name]; dup {
		rep.Emit("CE1003", span(unit, n), map[string]any{"name": name, "unit": unit})
		return
	}
	def := &ast.EnumDef{Name: name, Unit: unit}
	t.Enums[name] = def
	t.EnumOrder = append(t.EnumOrder, name)
}

func collectPerk(n *ast.Node, unit string, t *ast.Tables, rep *diag.Reporter) {
	name := n.Children[0].Ident()
	if _, dup := t.Perks[name]; dup {
		rep.Emit("CE1004", span(unit, n), map[string]any{"name": name, "unit": unit})
		return
	}
	def := &ast.PerkDef{Name: name}
	for _, m := range n.Children[1:] {
		if m.Kind == ast.NPerkMethodSig {
			def.Methods = append(def.Methods, ast.PerkMethodSig{Name: m.Ident()})
		}
	}
	t.Perks[name] = def
	t.PerkOrder = append(t.PerkOrder, name)
}

func collectPerkImpl(n *ast.Node, unit string, t *ast.Tables, rep *diag.Reporter) {
	target := n.Children[0].Ident()
	perk := n.Children[1].Ident()
	key := ast.PerkImplKey{Target: target, Perk: perk}
	if _, dup := t.PerkImpls[key]; dup {
		rep.Emit("CE1006", span(unit, n), map[string]any{"perk": perk, "target": target})
		return
	}
	methods := make(map[string]*ast.ExtensionMethod)
	for _, m := range n.Children[2:] {
		if m.Kind == ast.NFunction {
			em := extensionMethodFromFunc(m, target, unit)
			methods[em.Name] = em
		}
	}
	t.PerkImpls[key] = methods
}

func collectExtension(n *ast.Node, unit string, t *ast.Tables, rep *diag.Reporter) {
	target := n.Children[0].Ident()
	if hasGenericParams(n) {
		tmpl := &ast.GenericExtensionTemplate{Receiver: target, Unit: unit}
		for _, pname := range genericParamNames(n) {
			tmpl.TypeParams = append(tmpl.TypeParams, ast.GenericConstraint{Name: pname})
		}
		for _, m := range n.Children[1:] {
			if m.Kind == ast.NFunction {
				tmpl.Name = m.Children[0].Ident()
				tmpl.Body = m
			}
		}
		t.GenericExtensions[target] = append(t.GenericExtensions[target], tmpl)
		return
	}
	if t.Extensions[target] == nil {
		t.Extensions[target] = make(map[string]*ast.ExtensionMethod)
	}
	for _, m := range n.Children[1:] {
		if m.Kind == ast.NFunction {
			em := extensionMethodFromFunc(m, target, unit)
			t.Extensions[target][em.Name] = em
		}
	}
}

func extensionMethodFromFunc(m *ast.Node, target, unit string) *ast.ExtensionMethod {
	return &ast.ExtensionMethod{
		Name:     m.Children[0].Ident(),
		Receiver: target,
		Body:     m,
		Public:   m.Data == "pub",
	}
}

func collectFunc(n *ast.Node, unit string, t *ast.Tables, rep *diag.Reporter) {
	name := n.Children[0].Ident()
	if hasGenericParams(n) {
		if _, dup := t.GenericFuncs[name]; dup {
			rep.Emit("CE1005", span(unit, n), map[string]any{"name": name})
			return
		}
		t.GenericFuncs[name] = &ast.GenericFuncTemplate{
			Name: name,
			Body: n,
			Unit: unit,
		}
		return
	}
	if _, dup := t.Funcs[name]; dup {
		rep.Emit("CE1005", span(unit, n), map[string]any{"name": name})
		return
	}
	t.Funcs[name] = &ast.FuncSig{
		Name:   name,
		Body:   n,
		Unit:   unit,
		Public: n.Data == "pub",
	}
}

func collectConstant(n *ast.Node, unit string, t *ast.Tables, rep *diag.Reporter) {
	name := n.Children[0].Ident()
	if _, dup := t.Constants[name]; dup {
		rep.Emit("CE1005", span(unit, n), map[string]any{"name": name})
		return
	}
	t.Constants[name] = &ast.ConstantEntry{
		Name: name,
		Unit: unit,
		Expr: n.Children[len(n.Children)-1],
	}
}

// CollectStdlibFuncs registers the public functions offered by an imported
// stdlib module into the separate StdlibFuncs sub-table (spec §4.2, last
// bullet) so the validator can type-check calls against them without the
// monomorphization/codegen passes ever seeing a body to instantiate.
func CollectStdlibFuncs(moduleName string, sigs []ast.FuncSig, t *ast.Tables) {
	for _, sig := range sigs {
		s := sig
		s.IsStdlib = true
		s.Unit = moduleName
		t.StdlibFuncs[s.Name] = &s
	}
}
