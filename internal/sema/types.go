package sema

import (
	"fmt"

	"github.com/sushi-lang/sushic/internal/ast"
)

// primitiveRefs maps the built-in type names a NTypeRefExpr can spell
// directly to their fixed arena index, so resolution never has to intern a
// duplicate built-in.
var primitiveRefs = map[string]ast.TypeRef{
	"i8": ast.RefI8, "i16": ast.RefI16, "i32": ast.RefI32, "i64": ast.RefI64,
	"u8": ast.RefU8, "u16": ast.RefU16, "u32": ast.RefU32, "u64": ast.RefU64,
	"f32": ast.RefF32, "f64": ast.RefF64, "bool": ast.RefBool, "~": ast.RefBlank,
	"string": ast.RefString, "stdin": ast.RefStdin, "stdout": ast.RefStdout,
	"stderr": ast.RefStderr, "filehandle": ast.RefFileHandle,
}

// resolveType turns a NTypeRefExpr syntax node into a TypeRef, interning
// new arena entries for arrays, struct/enum references, and unresolved
// generic references (whose concrete instantiation happens lazily, driven
// by call sites -- spec §4.3.2).
//
// Node shape convention (frontend is out of scope; this is the shape its
// tree builder is assumed to produce):
//   - primitive name: Data = name, no children.
//   - fixed array:   Data = "[]", Children = [elem, lengthLit].
//   - dynamic array: Data = "[]", Children = [elem].
//   - pointer:       Data = "*",  Children = [pointee].
//   - named/generic: Data = base name, Children = generic type-argument nodes.
func (c *Checker) resolveType(n *ast.Node) (ast.TypeRef, error) {
	if n == nil {
		return ast.RefBlank, nil
	}
	name, _ := n.Data.(string)

	if c.genericParamMap != nil {
		if ref, ok := c.genericParamMap[name]; ok {
			return ref, nil
		}
	}

	if ref, ok := primitiveRefs[name]; ok {
		return ref, nil
	}

	switch name {
	case "[]":
		elem, err := c.resolveType(n.Children[0])
		if err != nil {
			return ast.Invalid, err
		}
		if len(n.Children) > 1 {
			lit := n.Children[1]
			length, _ := lit.Data.(int64)
			return c.tables.Arena.Intern(ast.Type{Kind: ast.KindFixedArray, Elem: elem, Len: length}), nil
		}
		return c.tables.Arena.Intern(ast.Type{Kind: ast.KindDynArray, Elem: elem}), nil
	case "*":
		elem, err := c.resolveType(n.Children[0])
		if err != nil {
			return ast.Invalid, err
		}
		return c.tables.Arena.Intern(ast.Type{Kind: ast.KindPointer, Elem: elem}), nil
	}

	if def, ok := c.tables.Structs[name]; ok {
		return def.Ref, nil
	}
	if def, ok := c.tables.Enums[name]; ok {
		return def.Ref, nil
	}

	// Generic base (built-in container or user generic struct/enum): resolve
	// the type-argument list and intern an un-monomorphized generic-ref. The
	// caller (sema.checkExpr for the call-site that demands a concrete
	// instantiation) is what actually enqueues a MonoRequest; a bare type
	// annotation like `let b: Box<i32>` only needs the reference shape.
	_, isGenStruct := c.tables.GenericStructs[name]
	_, isGenEnum := c.tables.GenericEnums[name]
	if isGenStruct || isGenEnum || ast.IsBuiltinContainer(name) {
		args := make([]ast.TypeRef, 0, len(n.Children))
		for _, a := range n.Children {
			ar, err := c.resolveType(a)
			if err != nil {
				return ast.Invalid, err
			}
			args = append(args, ar)
		}
		return c.tables.Arena.Intern(ast.Type{Kind: ast.KindGenericRef, Name: name, TypeArgs: args}), nil
	}

	return ast.Invalid, fmt.Errorf("unknown type name %q", name)
}

// typesCompatible reports whether a value of type src can be used where dst
// is expected, per spec §4.3.1's lutAssign-style widening rules: integer ->
// integer exact match only (no implicit narrowing/widening across distinct
// bit widths), integer -> float allowed, float -> float exact match only.
func (c *Checker) typesCompatible(dst, src ast.TypeRef) bool {
	if dst == src {
		return true
	}
	dt := c.tables.Arena.At(dst)
	st := c.tables.Arena.At(src)
	if dt.Kind.IsFloat() && st.Kind.IsInteger() {
		return true
	}
	return false
}
