package sema

import (
	"fmt"
	"strings"

	"github.com/sushi-lang/sushic/internal/ast"
)

// checkExpr type-checks n, annotates n.ResolvedType/n.Class/n.GenericArgs in
// place, and returns its resolved type. retType is the enclosing function's
// declared return type, needed by '??' propagation (spec §4.3.5).
func (c *Checker) checkExpr(n *ast.Node, sc *Scope, retType ast.TypeRef) ast.TypeRef {
	if n == nil {
		return ast.RefBlank
	}
	switch n.Kind {
	case ast.NIntegerLit:
		n.ResolvedType, n.Class = ast.RefI64, ast.ClassRValue
	case ast.NFloatLit:
		n.ResolvedType, n.Class = ast.RefF64, ast.ClassRValue
	case ast.NBoolLit:
		n.ResolvedType, n.Class = ast.RefBool, ast.ClassRValue
	case ast.NStringLit:
		n.ResolvedType, n.Class = ast.RefString, ast.ClassRValue
	case ast.NInterpolatedString:
		for _, part := range n.Children {
			c.checkExpr(part, sc, retType)
		}
		n.ResolvedType, n.Class = ast.RefString, ast.ClassRValue
	case ast.NIdentifierExpr:
		c.checkIdentifier(n, sc)
	case ast.NUnaryExpr:
		t := c.checkExpr(n.Children[0], sc, retType)
		n.ResolvedType, n.Class = t, ast.ClassRValue
	case ast.NBinaryExpr:
		c.checkBinary(n, sc, retType)
	case ast.NCallExpr:
		c.checkCall(n, sc, retType)
	case ast.NMethodCallExpr:
		c.checkMethodCall(n, sc, retType)
	case ast.NFieldAccessExpr:
		c.checkFieldAccess(n, sc, retType)
	case ast.NIndexExpr:
		c.checkIndex(n, sc, retType)
	case ast.NArrayLit:
		c.checkArrayLit(n, sc, retType)
	case ast.NStructLit:
		c.checkStructLit(n, sc, retType)
	case ast.NEnumConstructExpr:
		c.checkEnumConstruct(n, sc, retType)
	case ast.NBorrowExpr:
		c.checkBorrow(n, sc, retType)
	case ast.NTryPropagateExpr:
		c.checkTryPropagate(n, sc, retType)
	case ast.NCastExpr:
		c.checkExpr(n.Children[0], sc, retType)
		t, err := c.resolveType(n.Children[1])
		if err != nil {
			t = ast.Invalid
		}
		n.ResolvedType, n.Class = t, ast.ClassRValue
	case ast.NTypeRefExpr:
		// A bare type name used as an expression's receiver, e.g.
		// `HashMap<string, i32>.new()`: there is no value yet, only the type
		// itself, so resolveType supplies the generic-ref checkMethodCall
		// needs to dispatch the static constructor through the same builtin
		// container method table as an ordinary instance method call.
		t, err := c.resolveType(n)
		if err != nil {
			n.ResolvedType, n.Class = ast.Invalid, ast.ClassRValue
		} else {
			n.ResolvedType, n.Class = t, ast.ClassRValue
		}
	default:
		n.ResolvedType, n.Class = ast.Invalid, ast.ClassUnclassified
	}
	return n.ResolvedType
}

func (c *Checker) checkIdentifier(n *ast.Node, sc *Scope) {
	name := n.Ident()
	b, ok := sc.Lookup(name)
	if !ok {
		c.rep.Emit("CE1008", span(c.unit, n), map[string]any{"name": name})
		n.ResolvedType, n.Class = ast.Invalid, ast.ClassUnclassified
		return
	}
	switch b.State {
	case StateMoved:
		c.rep.Emit("CE2404", span(c.unit, n), map[string]any{"name": name})
	case StateDestroyed:
		c.rep.Emit("CE2405", span(c.unit, n), map[string]any{"name": name})
	}
	n.ResolvedType, n.Class = b.Type, ast.ClassLValue
}

func (c *Checker) checkBinary(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	lhs := c.checkExpr(n.Children[0], sc, retType)
	rhs := c.checkExpr(n.Children[1], sc, retType)
	op, _ := n.Data.(string)
	n.Class = ast.ClassRValue

	lk := c.tables.Arena.At(lhs).Kind
	rk := c.tables.Arena.At(rhs).Kind

	if lk == ast.KindString || rk == ast.KindString {
		if op == "+" {
			c.rep.Emit("CE2002", span(c.unit, n), nil)
			n.ResolvedType = ast.RefString
			return
		}
		if lk != ast.KindString || rk != ast.KindString {
			c.rep.Emit("CE2009", span(c.unit, n), map[string]any{"op": op, "got": lk.String()})
		}
		n.ResolvedType = ast.RefBool
		return
	}

	if !lk.IsNumeric() || !rk.IsNumeric() {
		if isRelational(op) {
			n.ResolvedType = ast.RefBool
			return
		}
		n.ResolvedType = lhs
		return
	}
	if lk.IsFloat() != rk.IsFloat() && !isRelational(op) {
		if !(lk.IsInteger() && rk.IsFloat()) && !(lk.IsFloat() && rk.IsInteger()) {
			c.rep.Emit("CE2001", span(c.unit, n), map[string]any{"lhs": lk.String(), "rhs": rk.String()})
		}
	}
	if isRelational(op) {
		n.ResolvedType = ast.RefBool
		return
	}
	if lk.IsFloat() || rk.IsFloat() {
		n.ResolvedType = ast.RefF64
		return
	}
	n.ResolvedType = lhs
}

func isRelational(op string) bool {
	switch op {
	case "==", "!=", "<", ">", "<=", ">=":
		return true
	default:
		return false
	}
}

func (c *Checker) checkCall(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	name := n.Children[0].Ident()
	argList := n.Children[1]

	sig, ok := c.tables.Funcs[name]
	if !ok {
		sig, ok = c.tables.StdlibFuncs[name]
	}
	if !ok {
		if _, isGeneric := c.tables.GenericFuncs[name]; isGeneric {
			c.checkGenericCall(n, sc, retType)
			return
		}
		c.rep.Emit("CE1001", span(c.unit, n), map[string]any{"name": name})
		n.ResolvedType, n.Class = ast.Invalid, ast.ClassRValue
		return
	}

	args := argList.Children
	if len(args) != len(sig.Params) {
		c.rep.Emit("CE2005", span(c.unit, n), map[string]any{
			"name": name, "expected": len(sig.Params), "got": len(args),
		})
	}
	for i, arg := range args {
		at := c.checkExpr(arg, sc, retType)
		if i < len(sig.Params) && !c.typesCompatible(sig.Params[i].Type, at) {
			c.rep.Emit("CE2006", span(c.unit, arg), map[string]any{
				"index": i + 1, "name": name,
				"got": c.tables.Arena.At(at).String(), "expected": c.tables.Arena.At(sig.Params[i].Type).String(),
			})
		}
	}
	n.ResolvedType, n.Class = sig.Return, ast.ClassRValue
}

// checkGenericCall resolves explicit type arguments carried on the call
// node (spec §9: GenericArgs live on the Node, never re-parsed from a
// mangled name) and enqueues a MonoRequest, per spec §4.3.2.
func (c *Checker) checkGenericCall(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	name := n.Children[0].Ident()
	tmpl := c.tables.GenericFuncs[name]
	argList := n.Children[1]
	for _, arg := range argList.Children {
		c.checkExpr(arg, sc, retType)
	}
	args := n.GenericArgs
	key := c.enqueueMono(name, args, false, "")
	var retNode *ast.Node
	if tmpl.Body != nil && len(tmpl.Body.Children) >= 4 {
		retNode = tmpl.Body.Children[3]
	}
	n.ResolvedType, n.Class = c.monoReturnType(key, retNode, tmpl.TypeParams, args), ast.ClassRValue
}

func (c *Checker) checkMethodCall(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	recvType := c.checkExpr(n.Children[0], sc, retType)
	methodName := n.Children[1].Ident()
	argList := n.Children[2]
	for _, arg := range argList.Children {
		c.checkExpr(arg, sc, retType)
	}

	rt := c.tables.Arena.At(recvType)
	receiverName := rt.Name
	if receiverName == "" {
		receiverName = rt.Kind.String()
	}

	if rt.Kind == ast.KindGenericRef && ast.IsBuiltinContainer(receiverName) {
		n.ResolvedType, n.Class = c.builtinContainerMethodType(receiverName, methodName, rt.TypeArgs), ast.ClassRValue
		return
	}

	if methods, ok := c.tables.Extensions[receiverName]; ok {
		if m, ok := methods[methodName]; ok {
			n.ResolvedType, n.Class = m.Return, ast.ClassRValue
			return
		}
	}
	for key, methods := range c.tables.PerkImpls {
		if key.Target != receiverName {
			continue
		}
		if m, ok := methods[methodName]; ok {
			n.ResolvedType, n.Class = m.Return, ast.ClassRValue
			return
		}
	}

	c.rep.Emit("CE1001", span(c.unit, n), map[string]any{"name": fmt.Sprintf("%s.%s", receiverName, methodName)})
	n.ResolvedType, n.Class = ast.Invalid, ast.ClassRValue
}

// optionalOf interns the Optional<elem> generic-ref spec §4.4.3 names as the
// return type of every container accessor that can come up empty (HashMap
// get/remove, List pop/remove), so .realise/?? and the other Optional-
// consuming forms checkTryPropagate already recognizes apply to them.
func (c *Checker) optionalOf(elem ast.TypeRef) ast.TypeRef {
	return c.tables.Arena.Intern(ast.Type{Kind: ast.KindGenericRef, Name: "Optional", TypeArgs: []ast.TypeRef{elem}})
}

// iteratorOf interns the Iterator<elem> type keys()/values()/iter() produce.
func (c *Checker) iteratorOf(elem ast.TypeRef) ast.TypeRef {
	return c.tables.Arena.Intern(ast.Type{Kind: ast.KindIterator, Elem: elem})
}

// selfOf reconstructs container<typeArgs> as a TypeRef, the result of a
// static constructor (new/with_capacity) called on the container's own type
// name rather than on an existing instance.
func (c *Checker) selfOf(container string, typeArgs []ast.TypeRef) ast.TypeRef {
	return c.tables.Arena.Intern(ast.Type{Kind: ast.KindGenericRef, Name: container, TypeArgs: typeArgs})
}

// builtinContainerMethodType returns the result type of calling a built-in
// container's conventional methods without needing a full per-container
// method table (spec §3: Box/Optional/Result/List/HashMap ship with the
// language). Methods not listed here resolve to RefBlank (~); no
// missing-method diagnostic is reported for them.
func (c *Checker) builtinContainerMethodType(container, method string, typeArgs []ast.TypeRef) ast.TypeRef {
	elem := ast.RefI64
	if len(typeArgs) > 0 {
		elem = typeArgs[0]
	}
	switch container {
	case "Box":
		if method == "get" {
			return elem
		}
	case "List":
		switch method {
		case "new", "with_capacity":
			return c.selfOf(container, typeArgs)
		case "get":
			return elem
		case "pop", "remove":
			return c.optionalOf(elem)
		case "len", "capacity":
			return ast.RefI64
		case "is_empty":
			return ast.RefBool
		case "push", "insert", "clear", "reserve", "shrink_to_fit", "destroy", "free":
			return ast.RefBlank
		case "iter":
			return c.iteratorOf(elem)
		case "debug":
			return ast.RefString
		}
	case "HashMap":
		key, val := ast.RefI64, ast.RefI64
		if len(typeArgs) > 0 {
			key = typeArgs[0]
		}
		if len(typeArgs) > 1 {
			val = typeArgs[1]
		}
		switch method {
		case "new", "with_capacity":
			return c.selfOf(container, typeArgs)
		case "len":
			return ast.RefI64
		case "is_empty":
			return ast.RefBool
		case "insert", "free", "destroy":
			return ast.RefBlank
		case "get", "remove":
			return c.optionalOf(val)
		case "contains_key":
			return ast.RefBool
		case "keys":
			return c.iteratorOf(key)
		case "values":
			return c.iteratorOf(val)
		}
	case "Optional":
		switch method {
		case "realise", "expect":
			return elem
		case "is_some", "is_none":
			return ast.RefBool
		}
	case "Result":
		errElem := ast.RefString
		if len(typeArgs) > 1 {
			errElem = typeArgs[1]
		}
		switch method {
		case "realise", "expect":
			return elem
		case "is_ok", "is_err":
			return ast.RefBool
		case "err":
			return errElem
		}
	}
	return ast.RefBlank
}

func (c *Checker) checkFieldAccess(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	recvType := c.checkExpr(n.Children[0], sc, retType)
	field := n.Children[1].Ident()
	t := c.tables.Arena.At(recvType)
	if t.Kind != ast.KindStruct {
		n.ResolvedType, n.Class = ast.Invalid, ast.ClassLValue
		return
	}
	for _, f := range t.Fields {
		if f.Name == field {
			n.ResolvedType, n.Class = f.Type, ast.ClassLValue
			return
		}
	}
	c.rep.Emit("CE1001", span(c.unit, n), map[string]any{"name": fmt.Sprintf("%s.%s", t.Name, field)})
	n.ResolvedType, n.Class = ast.Invalid, ast.ClassLValue
}

func (c *Checker) checkIndex(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	recvType := c.checkExpr(n.Children[0], sc, retType)
	c.checkExpr(n.Children[1], sc, retType)
	t := c.tables.Arena.At(recvType)
	switch t.Kind {
	case ast.KindFixedArray, ast.KindDynArray:
		n.ResolvedType, n.Class = t.Elem, ast.ClassLValue
	default:
		n.ResolvedType, n.Class = ast.Invalid, ast.ClassLValue
	}
}

func (c *Checker) checkArrayLit(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	var elem ast.TypeRef = ast.RefI64
	for i, el := range n.Children {
		t := c.checkExpr(el, sc, retType)
		if i == 0 {
			elem = t
		}
	}
	n.ResolvedType = c.tables.Arena.Intern(ast.Type{Kind: ast.KindFixedArray, Elem: elem, Len: int64(len(n.Children))})
	n.Class = ast.ClassRValue
}

func (c *Checker) checkStructLit(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	name := n.Children[0].Ident()
	def, ok := c.tables.Structs[name]
	if !ok {
		c.rep.Emit("CE1001", span(c.unit, n), map[string]any{"name": name})
		n.ResolvedType, n.Class = ast.Invalid, ast.ClassRValue
		return
	}
	seen := make(map[string]bool)
	for _, f := range n.Children[1:] {
		fname := f.Children[0].Ident()
		found := false
		for _, df := range def.Fields {
			if df.Name == fname {
				found = true
				break
			}
		}
		if !found {
			c.rep.Emit("CE1009", span(c.unit, f), map[string]any{"name": fname, "target": name})
		}
		if seen[fname] {
			c.rep.Emit("CE1010", span(c.unit, f), map[string]any{"name": fname})
		}
		seen[fname] = true
		c.checkExpr(f.Children[1], sc, retType)
	}
	for _, df := range def.Fields {
		if !seen[df.Name] {
			c.rep.Emit("CE1011", span(c.unit, n), map[string]any{"target": name, "field": df.Name})
		}
	}
	n.ResolvedType, n.Class = def.Ref, ast.ClassRValue
}

func (c *Checker) checkEnumConstruct(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	parts := strings.SplitN(n.Data.(string), "::", 2)
	enumName := parts[0]
	def, ok := c.tables.Enums[enumName]
	if !ok {
		if ast.IsBuiltinContainer(enumName) {
			for _, a := range n.Children {
				c.checkExpr(a, sc, retType)
			}
			n.ResolvedType, n.Class = ast.RefBlank, ast.ClassRValue
			return
		}
		c.rep.Emit("CE1001", span(c.unit, n), map[string]any{"name": enumName})
		n.ResolvedType, n.Class = ast.Invalid, ast.ClassRValue
		return
	}
	for _, a := range n.Children {
		c.checkExpr(a, sc, retType)
	}
	n.ResolvedType, n.Class = def.Ref, ast.ClassRValue
}

func (c *Checker) checkBorrow(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	inner := n.Children[0]
	t := c.checkExpr(inner, sc, retType)
	if inner.Class != ast.ClassLValue {
		c.rep.Emit("CE2406", span(c.unit, n), nil)
	}
	mode := ast.BorrowShared
	if n.Data == "poke" {
		mode = ast.BorrowExclusive
	}
	if inner.Kind == ast.NIdentifierExpr {
		if b, ok := sc.Lookup(inner.Ident()); ok {
			c.applyBorrow(b, mode, n)
		}
	}
	n.ResolvedType = c.tables.Arena.Intern(ast.Type{Kind: ast.KindPointer, Elem: t, Borrow: mode})
	n.Class = ast.ClassRValue
}

func (c *Checker) checkTryPropagate(n *ast.Node, sc *Scope, retType ast.TypeRef) {
	t := c.checkExpr(n.Children[0], sc, retType)
	tt := c.tables.Arena.At(t)
	if tt.Kind != ast.KindEnum || (tt.Name != "Result" && tt.Name != "Optional") {
		if tt.Kind != ast.KindGenericRef || (tt.Name != "Result" && tt.Name != "Optional") {
			c.rep.Emit("CE2503", span(c.unit, n), map[string]any{"got": tt.String()})
			n.ResolvedType, n.Class = ast.Invalid, ast.ClassRValue
			return
		}
	}
	retT := c.tables.Arena.At(retType)
	if retT.Name != tt.Name {
		c.rep.Emit("CW2511", span(c.unit, n), nil)
	}
	var okType ast.TypeRef = ast.RefBlank
	if len(tt.TypeArgs) > 0 {
		okType = tt.TypeArgs[0]
	}
	n.ResolvedType, n.Class = okType, ast.ClassRValue
}
