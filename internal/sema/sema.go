// Package sema implements pass C of spec §2/§4.3: type resolution and
// inference, operator/control-flow validation, generic monomorphization,
// perk satisfaction checking, constant-expression evaluation, and
// borrow/ownership analysis. It consumes the ast.Tables the collector pass
// (internal/collect) populated and annotates every expression node's
// ResolvedType/Class/GenericArgs in place, per spec §9's redesign flag
// against string-based type reconstruction in later passes.
package sema

import (
	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/diag"
)

// Checker holds everything one compilation's semantic analysis pass
// shares across functions: the symbol tables, the diagnostic sink, and
// the current unit (for span/import-scoped name resolution).
type Checker struct {
	tables *ast.Tables
	rep    *diag.Reporter
	unit   string

	// currentFuncName names the function body currently being checked, for
	// diagnostics that reference "the enclosing function" (CE2501/CE2502).
	currentFuncName string

	// genericParamMap, when non-nil, maps a generic template's type-param
	// names to the concrete TypeRefs of the instantiation currently being
	// drained (mono.go). resolveType consults it before falling back to
	// struct/enum/generic-base name resolution.
	genericParamMap map[string]ast.TypeRef
}

// Run drives the whole of pass C over g in topological order: first
// resolving every struct/enum field's declared type and evaluating every
// constant, then checking perk implementations against their perk's
// required methods, then validating every concrete function body, and
// finally draining the monomorphization queue that body-checking
// populates (each drained instantiation is itself checked, which may
// enqueue further instantiations -- spec §4.3.2's recursive instantiation
// rule).
func Run(g *ast.Graph, tables *ast.Tables, rep *diag.Reporter) {
	c := &Checker{tables: tables, rep: rep}

	c.resolveStructFields(g)
	c.resolveEnumVariants(g)
	c.evaluateConstants(g)
	c.checkPerkImpls()

	for _, name := range g.Order {
		u := g.Units[name]
		c.unit = u.Name
		c.checkUnitFuncs(u)
	}

	c.drainMonoQueue()
}

func (c *Checker) checkUnitFuncs(u *ast.Unit) {
	if u.AST == nil {
		return
	}
	for _, decl := range u.AST.Children {
		if decl.Kind != ast.NFunction {
			continue
		}
		name := decl.Children[0].Ident()
		sig, ok := c.tables.Funcs[name]
		if !ok {
			continue // a duplicate the collector already rejected.
		}
		c.currentFuncName = name
		c.checkFuncBody(sig, decl)
	}
}

// resolveStructFields fills in StructDef.Fields/Ref for every concrete
// struct collected in pass B. Done as its own pre-pass so mutually
// recursive struct definitions ("a Tree node holds a Box<Tree>") resolve
// regardless of declaration order.
func (c *Checker) resolveStructFields(g *ast.Graph) {
	for _, name := range c.tables.StructOrder {
		def := c.tables.Structs[name]
		def.Ref = c.tables.Arena.Intern(ast.Type{Kind: ast.KindStruct, Name: name})
	}
	for _, name := range c.tables.StructOrder {
		def := c.tables.Structs[name]
		decl := c.findStructDecl(g, def.Unit, name)
		if decl == nil {
			continue
		}
		for _, child := range decl.Children[1:] {
			if child.Kind != ast.NFieldDecl {
				continue
			}
			fname := child.Children[0].Ident()
			ftype, err := c.resolveType(child.Children[1])
			if err != nil {
				c.rep.Emit("CE1001", span(def.Unit, child), map[string]any{"name": fname})
				continue
			}
			def.Fields = append(def.Fields, ast.StructField{Name: fname, Type: ftype})
		}
		c.tables.Arena.Set(def.Ref, ast.Type{Kind: ast.KindStruct, Name: name, Fields: def.Fields})
	}
}

func (c *Checker) resolveEnumVariants(g *ast.Graph) {
	for _, name := range c.tables.EnumOrder {
		def := c.tables.Enums[name]
		def.Ref = c.tables.Arena.Intern(ast.Type{Kind: ast.KindEnum, Name: name})
	}
	for _, name := range c.tables.EnumOrder {
		def := c.tables.Enums[name]
		decl := c.findEnumDecl(g, def.Unit, name)
		if decl == nil {
			continue
		}
		for _, child := range decl.Children[1:] {
			if child.Kind != ast.NEnumVariantDecl {
				continue
			}
			vname := child.Children[0].Ident()
			var payload []ast.TypeRef
			for _, pt := range child.Children[1:] {
				ref, err := c.resolveType(pt)
				if err == nil {
					payload = append(payload, ref)
				}
			}
			def.Variants = append(def.Variants, ast.EnumVariant{Name: vname, Payload: payload})
		}
		c.tables.Arena.Set(def.Ref, ast.Type{Kind: ast.KindEnum, Name: name, Variants: def.Variants})
	}
}

func (c *Checker) findStructDecl(g *ast.Graph, unit, name string) *ast.Node {
	u, ok := g.Units[unit]
	if !ok || u.AST == nil {
		return nil
	}
	for _, decl := range u.AST.Children {
		if decl.Kind == ast.NStructDecl && decl.Children[0].Ident() == name {
			return decl
		}
	}
	return nil
}

func (c *Checker) findEnumDecl(g *ast.Graph, unit, name string) *ast.Node {
	u, ok := g.Units[unit]
	if !ok || u.AST == nil {
		return nil
	}
	for _, decl := range u.AST.Children {
		if decl.Kind == ast.NEnumDecl && decl.Children[0].Ident() == name {
			return decl
		}
	}
	return nil
}

func span(unit string, n *ast.Node) *diag.Span {
	return &diag.Span{Unit: unit, Line: n.Line, Col: n.Col}
}
