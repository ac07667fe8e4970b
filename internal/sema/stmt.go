package sema

import "github.com/sushi-lang/sushic/internal/ast"

// checkFuncBody resolves sig's parameter/return types from decl's syntax
// (if not already resolved -- mono.go's generic instantiations arrive with
// neither set and are resolved here against the instantiation's
// genericParamMap) and validates its body against them.
//
// NFunction child layout convention: [name, genericParamList, paramList,
// returnType, block].
func (c *Checker) checkFuncBody(sig *ast.FuncSig, decl *ast.Node) {
	paramList := decl.Children[2]
	retNode := decl.Children[3]
	body := decl.Children[4]

	if sig.Return == ast.Invalid {
		if rt, err := c.resolveType(retNode); err == nil {
			sig.Return = rt
		} else {
			sig.Return = ast.RefBlank
		}
	}
	if len(sig.Params) == 0 && len(paramList.Children) > 0 {
		sig.Params = c.resolveParams(paramList)
	}

	sc := NewScope()
	for _, p := range sig.Params {
		sc.Declare(&Binding{Name: p.Name, Type: p.Type, IsParam: true, ParamRef: p.Borrow})
	}
	c.checkBlock(body, sc, sig.Return)
}

func (c *Checker) resolveParams(paramList *ast.Node) []ast.Param {
	params := make([]ast.Param, 0, len(paramList.Children))
	for _, p := range paramList.Children {
		name := p.Children[0].Ident()
		t, err := c.resolveType(p.Children[1])
		if err != nil {
			t = ast.Invalid
		}
		borrow := ast.BorrowNone
		switch p.Data {
		case "peek":
			borrow = ast.BorrowShared
		case "poke":
			borrow = ast.BorrowExclusive
		}
		params = append(params, ast.Param{Name: name, Type: t, Borrow: borrow})
	}
	return params
}

func (c *Checker) checkBlock(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	sc.Push()
	for _, stmt := range n.Children {
		c.checkStmt(stmt, sc, retType)
	}
	c.destroyScope(sc.Pop())
}

func (c *Checker) checkStmt(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	switch n.Kind {
	case ast.NLetStatement:
		c.checkLet(n, sc, retType)
	case ast.NAssignStatement:
		c.checkAssign(n, sc, retType)
	case ast.NIfStatement:
		c.checkExpr(n.Children[0], sc, retType)
		if c.tables.Arena.At(n.Children[0].ResolvedType).Kind != ast.KindBool {
			c.rep.Emit("CE2003", span(c.unit, n.Children[0]), map[string]any{"got": c.tables.Arena.At(n.Children[0].ResolvedType).String()})
		}
		c.checkBlock(n.Children[1], sc, retType)
		if len(n.Children) > 2 {
			if n.Children[2].Kind == ast.NBlock {
				c.checkBlock(n.Children[2], sc, retType)
			} else {
				c.checkStmt(n.Children[2], sc, retType)
			}
		}
	case ast.NWhileStatement:
		c.checkExpr(n.Children[0], sc, retType)
		c.checkBlock(n.Children[1], sc, retType)
	case ast.NForeachStatement:
		c.checkForeach(n, sc, retType)
	case ast.NMatchStatement:
		c.checkMatch(n, sc, retType)
	case ast.NReturnStatement:
		c.checkReturn(n, sc, retType)
	case ast.NBreakStatement, ast.NContinueStatement:
		// No-op: loop-context validity is a structural property the
		// out-of-scope parser already enforces by only emitting these
		// nodes inside a loop body.
	case ast.NExprStatement:
		c.checkExpr(n.Children[0], sc, retType)
	case ast.NDestroyStatement:
		c.checkDestroy(n, sc, retType)
	case ast.NBlock:
		c.checkBlock(n, sc, retType)
	default:
		for _, child := range n.Children {
			c.checkStmt(child, sc, retType)
		}
	}
}

func (c *Checker) checkLet(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	name := n.Children[0].Ident()
	var declared ast.TypeRef
	var init *ast.Node
	if len(n.Children) == 3 {
		t, err := c.resolveType(n.Children[1])
		if err == nil {
			declared = t
		}
		init = n.Children[2]
	} else {
		init = n.Children[1]
	}

	initType := c.checkExpr(init, sc, retType)
	if declared == ast.Invalid || declared == 0 {
		if initType == ast.Invalid || initType == 0 {
			c.rep.Emit("CE2007", span(c.unit, n), map[string]any{"name": name})
			declared = ast.RefI64
		} else {
			declared = initType
		}
	} else if !c.typesCompatible(declared, initType) {
		c.rep.Emit("CE2008", span(c.unit, n), map[string]any{
			"declared": c.tables.Arena.At(declared).String(), "got": c.tables.Arena.At(initType).String(),
		})
	}

	if sc.DeclaredInCurrent(name) {
		c.rep.Emit("CE1007", span(c.unit, n), map[string]any{"name": name})
	}
	if init.Kind == ast.NIdentifierExpr {
		if b, ok := sc.Lookup(init.Ident()); ok && c.tables.Arena.RequiresCleanup(b.Type) {
			c.applyMove(b, n)
		}
	}
	sc.Declare(&Binding{Name: name, Type: declared, Mutable: n.Data == "mut"})
}

func (c *Checker) checkAssign(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	lhsType := c.checkExpr(n.Children[0], sc, retType)
	if n.Children[0].Kind == ast.NIdentifierExpr {
		if b, ok := sc.Lookup(n.Children[0].Ident()); ok {
			if b.State == StateBorrowedShared || b.State == StateBorrowedExclusive {
				c.rep.Emit("CE2401", span(c.unit, n), map[string]any{"action": "assign", "name": b.Name})
			}
			b.State = StateOwned
		}
	}
	rhsType := c.checkExpr(n.Children[1], sc, retType)
	if !c.typesCompatible(lhsType, rhsType) {
		c.rep.Emit("CE2008", span(c.unit, n), map[string]any{
			"declared": c.tables.Arena.At(lhsType).String(), "got": c.tables.Arena.At(rhsType).String(),
		})
	}
}

func (c *Checker) checkForeach(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	bindName := n.Children[0].Ident()
	iterType := c.checkExpr(n.Children[1], sc, retType)
	it := c.tables.Arena.At(iterType)
	var elemType ast.TypeRef
	switch it.Kind {
	case ast.KindFixedArray, ast.KindDynArray, ast.KindIterator:
		elemType = it.Elem
	case ast.KindGenericRef:
		if it.Name == "List" && len(it.TypeArgs) > 0 {
			elemType = it.TypeArgs[0]
		} else {
			c.rep.Emit("CE2004", span(c.unit, n.Children[1]), map[string]any{"got": it.String()})
		}
	default:
		c.rep.Emit("CE2004", span(c.unit, n.Children[1]), map[string]any{"got": it.String()})
	}
	sc.Push()
	sc.Declare(&Binding{Name: bindName, Type: elemType})
	for _, stmt := range n.Children[2].Children {
		c.checkStmt(stmt, sc, retType)
	}
	c.destroyScope(sc.Pop())
}

func (c *Checker) checkMatch(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	subjType := c.checkExpr(n.Children[0], sc, retType)
	subj := c.tables.Arena.At(subjType)
	seenVariants := make(map[string]bool)
	hasWildcard := false
	for _, arm := range n.Children[1:] {
		pattern := arm.Children[0]
		variant, _ := pattern.Data.(string)
		if variant == "_" {
			if hasWildcard {
				c.rep.Emit("CE2011", span(c.unit, arm), map[string]any{"variant": "_"})
			}
			hasWildcard = true
		} else {
			if seenVariants[variant] {
				c.rep.Emit("CE2010", span(c.unit, arm), map[string]any{"variant": variant})
			}
			if hasWildcard {
				c.rep.Emit("CE2011", span(c.unit, arm), map[string]any{"variant": variant})
			}
			seenVariants[variant] = true
		}

		sc.Push()
		c.declarePatternBindings(pattern, variant, subj, sc)
		for _, stmt := range arm.Children[1].Children {
			c.checkStmt(stmt, sc, retType)
		}
		c.destroyScope(sc.Pop())
	}
	if !hasWildcard && subj.Kind == ast.KindEnum {
		for _, v := range subj.Variants {
			if !seenVariants[v.Name] {
				c.rep.Emit("CE2010", span(c.unit, n), map[string]any{"variant": v.Name})
			}
		}
	}
}

func (c *Checker) declarePatternBindings(pattern *ast.Node, variant string, subj ast.Type, sc *Scope) {
	var payload []ast.TypeRef
	for _, v := range subj.Variants {
		if v.Name == variant {
			payload = v.Payload
			break
		}
	}
	for i, bindNode := range pattern.Children {
		if i >= len(payload) {
			break
		}
		sc.Declare(&Binding{Name: bindNode.Ident(), Type: payload[i]})
	}
}

func (c *Checker) checkReturn(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	if len(n.Children) == 0 {
		if retType != ast.RefBlank && retType != 0 {
			c.rep.Emit("CE2012", span(c.unit, n), map[string]any{
				"expected": c.tables.Arena.At(retType).String(), "got": "~",
			})
		}
		return
	}
	expr := n.Children[0]
	retT := c.tables.Arena.At(retType)

	exprType := c.checkExpr(expr, sc, retType)
	if (retT.Name == "Result" || retT.Name == "Optional") && expr.Kind != ast.NEnumConstructExpr && expr.Kind != ast.NTryPropagateExpr {
		if retT.Name == "Result" {
			c.rep.Emit("CE2501", span(c.unit, n), map[string]any{"func": c.currentFuncName})
		} else {
			c.rep.Emit("CE2502", span(c.unit, n), map[string]any{"func": c.currentFuncName})
		}
		return
	}
	if !c.typesCompatible(retType, exprType) {
		c.rep.Emit("CE2012", span(c.unit, n), map[string]any{
			"expected": retT.String(), "got": c.tables.Arena.At(exprType).String(),
		})
	}
}

func (c *Checker) checkDestroy(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	ident := n.Children[0]
	c.checkExpr(ident, sc, retType)
	if ident.Kind != ast.NIdentifierExpr {
		return
	}
	if b, ok := sc.Lookup(ident.Ident()); ok {
		c.applyDestroy(b, n)
	}
}
