package llvm

import (
	"tinygo.org/x/go-llvm"

	"github.com/sushi-lang/sushic/internal/ast"
)

// genExpr lowers n, relying entirely on the ResolvedType/Class annotations
// internal/sema already attached -- codegen never re-derives a type, it
// only asks the arena what a TypeRef means.
func (g *Generator) genExpr(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	switch n.Kind {
	case ast.NIntegerLit:
		return llvm.ConstInt(g.lowerType(n.ResolvedType), uint64(n.Data.(int64)), true)
	case ast.NFloatLit:
		return llvm.ConstFloat(g.lowerType(n.ResolvedType), n.Data.(float64))
	case ast.NBoolLit:
		v := uint64(0)
		if b, _ := n.Data.(bool); b {
			v = 1
		}
		return llvm.ConstInt(g.ctx.Int1Type(), v, false)
	case ast.NStringLit:
		return g.genStringLit(n.Data.(string))
	case ast.NInterpolatedString:
		return g.genInterpolatedString(f, n, sc)
	case ast.NIdentifierExpr:
		alloc, _, ok := sc.lookup(n.Ident())
		if !ok {
			return llvm.ConstNull(g.lowerType(n.ResolvedType))
		}
		return g.builder.CreateLoad(alloc, n.Ident())
	case ast.NUnaryExpr:
		return g.genUnary(f, n, sc)
	case ast.NBinaryExpr:
		return g.genBinary(f, n, sc)
	case ast.NCallExpr:
		return g.genCall(f, n, sc)
	case ast.NMethodCallExpr:
		return g.genMethodCall(f, n, sc)
	case ast.NFieldAccessExpr:
		return g.genFieldAccess(f, n, sc)
	case ast.NIndexExpr:
		return g.genIndex(f, n, sc)
	case ast.NArrayLit:
		return g.genArrayLit(f, n, sc)
	case ast.NStructLit:
		return g.genStructLit(f, n, sc)
	case ast.NEnumConstructExpr:
		return g.genEnumConstruct(f, n, sc)
	case ast.NBorrowExpr:
		if ptr, ok := g.genAddressOf(f, n.Children[0], sc); ok {
			return ptr
		}
		return g.genExpr(f, n.Children[0], sc)
	case ast.NTryPropagateExpr:
		return g.genTryPropagate(f, n, sc)
	case ast.NCastExpr:
		return g.genCast(f, n, sc)
	default:
		return llvm.ConstNull(g.lowerType(n.ResolvedType))
	}
}

// genStringLit interns one global constant per distinct literal content and
// materializes the fat-pointer {ptr, len, cap} value spec §4.4.1 requires.
func (g *Generator) genStringLit(s string) llvm.Value {
	glob, ok := g.globalStrings[s]
	if !ok {
		glob = g.builder.CreateGlobalStringPtr(s, "")
		g.globalStrings[s] = glob
	}
	fatT := g.fatPointerType(g.ctx.Int8Type())
	n := int64(len(s))
	val := llvm.ConstNull(fatT)
	val = g.builder.CreateInsertValue(val, glob, 0, "")
	val = g.builder.CreateInsertValue(val, llvm.ConstInt(g.wordType(), uint64(n), false), 1, "")
	val = g.builder.CreateInsertValue(val, llvm.ConstInt(g.wordType(), uint64(n), false), 2, "")
	return val
}

// genInterpolatedString concatenates each interpolated part's string form
// by successive concatStrings calls (inline malloc+memcpy); part expressions
// that aren't already strings must have been wrapped in an implicit to-string
// conversion by the out-of-scope frontend (spec §1 leaves string formatting
// to the surface syntax, not this pass).
func (g *Generator) genInterpolatedString(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	if len(n.Children) == 0 {
		return g.genStringLit("")
	}
	acc := g.genExpr(f, n.Children[0], sc)
	for _, part := range n.Children[1:] {
		rhs := g.genExpr(f, part, sc)
		acc = g.concatStrings(acc, rhs)
	}
	return acc
}

// concatStrings allocates a fresh backing buffer sized to both operands and
// copies each in turn, matching the fat-pointer convention everywhere else
// strings are handled.
func (g *Generator) concatStrings(lhs, rhs llvm.Value) llvm.Value {
	lhsLen := g.builder.CreateExtractValue(lhs, 1, "")
	rhsLen := g.builder.CreateExtractValue(rhs, 1, "")
	total := g.builder.CreateAdd(lhsLen, rhsLen, "")
	buf := g.builder.CreateCall(g.runtime.malloc, []llvm.Value{total}, "")
	g.emitAllocGuard(g.currentFn(), buf)

	lhsPtr := g.builder.CreateExtractValue(lhs, 0, "")
	rhsPtr := g.builder.CreateExtractValue(rhs, 0, "")
	g.builder.CreateCall(g.memcpyFn(), []llvm.Value{buf, lhsPtr, lhsLen}, "")
	tail := g.builder.CreateGEP(buf, []llvm.Value{lhsLen}, "")
	g.builder.CreateCall(g.memcpyFn(), []llvm.Value{tail, rhsPtr, rhsLen}, "")

	fatT := g.fatPointerType(g.ctx.Int8Type())
	val := llvm.ConstNull(fatT)
	val = g.builder.CreateInsertValue(val, buf, 0, "")
	val = g.builder.CreateInsertValue(val, total, 1, "")
	val = g.builder.CreateInsertValue(val, total, 2, "")
	return val
}

// memcpyFn lazily declares libc memcpy the first time a concat/container op
// needs it.
func (g *Generator) memcpyFn() llvm.Value {
	if fn := g.mod.NamedFunction("memcpy"); !fn.IsNil() {
		return fn
	}
	i8ptr := llvm.PointerType(g.ctx.Int8Type(), 0)
	fnType := llvm.FunctionType(i8ptr, []llvm.Type{i8ptr, i8ptr, g.wordType()}, false)
	return llvm.AddFunction(g.mod, "memcpy", fnType)
}

// memsetFn lazily declares libc memset, used to zero-fill a freshly
// malloc'd HashMap bucket array (state 0 == Empty) and nothing else.
func (g *Generator) memsetFn() llvm.Value {
	if fn := g.mod.NamedFunction("memset"); !fn.IsNil() {
		return fn
	}
	i8ptr := llvm.PointerType(g.ctx.Int8Type(), 0)
	fnType := llvm.FunctionType(i8ptr, []llvm.Type{i8ptr, g.ctx.Int32Type(), g.wordType()}, false)
	return llvm.AddFunction(g.mod, "memset", fnType)
}

// memmoveFn lazily declares libc memmove, needed (unlike memcpy) for
// List.insert/remove's element shifts: source and destination ranges
// overlap there, which memcpy leaves undefined.
func (g *Generator) memmoveFn() llvm.Value {
	if fn := g.mod.NamedFunction("memmove"); !fn.IsNil() {
		return fn
	}
	i8ptr := llvm.PointerType(g.ctx.Int8Type(), 0)
	fnType := llvm.FunctionType(i8ptr, []llvm.Type{i8ptr, i8ptr, g.wordType()}, false)
	return llvm.AddFunction(g.mod, "memmove", fnType)
}

// currentFn recovers the function llvm.Value the builder's insertion block
// belongs to, since several guard helpers need it to append new blocks.
func (g *Generator) currentFn() llvm.Value {
	return g.builder.GetInsertBlock().Parent()
}

func (g *Generator) genUnary(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	op1 := g.genExpr(f, n.Children[0], sc)
	op, _ := n.Data.(string)
	isFloat := op1.Type() == g.ctx.FloatType() || op1.Type() == g.ctx.DoubleType()
	switch op {
	case "-":
		if isFloat {
			return g.builder.CreateFNeg(op1, "")
		}
		return g.builder.CreateSub(llvm.ConstInt(op1.Type(), 0, false), op1, "")
	case "!":
		return g.builder.CreateXor(op1, llvm.ConstInt(op1.Type(), 1, false), "")
	case "~":
		allOnes := llvm.ConstInt(op1.Type(), ^uint64(0), false)
		return g.builder.CreateXor(op1, allOnes, "")
	default:
		return op1
	}
}

func (g *Generator) genBinary(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	lhsNode, rhsNode := n.Children[0], n.Children[1]
	lhsKind := g.tables.Arena.At(lhsNode.ResolvedType).Kind
	rhsKind := g.tables.Arena.At(rhsNode.ResolvedType).Kind

	if lhsKind == ast.KindString && rhsKind == ast.KindString {
		lhs := g.genExpr(f, lhsNode, sc)
		rhs := g.genExpr(f, rhsNode, sc)
		op, _ := n.Data.(string)
		if op == "==" {
			return g.genStringEquals(lhs, rhs)
		}
		return g.concatStrings(lhs, rhs)
	}

	op1 := g.genExpr(f, lhsNode, sc)
	op2 := g.genExpr(f, rhsNode, sc)
	op, _ := n.Data.(string)
	isFloat := lhsKind.IsFloat() || rhsKind.IsFloat()

	switch op {
	case "+":
		if isFloat {
			return g.builder.CreateFAdd(op1, op2, "")
		}
		return g.builder.CreateAdd(op1, op2, "")
	case "-":
		if isFloat {
			return g.builder.CreateFSub(op1, op2, "")
		}
		return g.builder.CreateSub(op1, op2, "")
	case "*":
		if isFloat {
			return g.builder.CreateFMul(op1, op2, "")
		}
		return g.builder.CreateMul(op1, op2, "")
	case "/":
		if isFloat {
			return g.builder.CreateFDiv(op1, op2, "")
		}
		g.emitDivGuard(g.currentFn(), op2)
		return g.builder.CreateSDiv(op1, op2, "")
	case "%":
		if isFloat {
			return g.builder.CreateFRem(op1, op2, "")
		}
		g.emitDivGuard(g.currentFn(), op2)
		return g.builder.CreateSRem(op1, op2, "")
	case "==":
		if isFloat {
			return g.builder.CreateFCmp(llvm.FloatOEQ, op1, op2, "")
		}
		return g.builder.CreateICmp(llvm.IntEQ, op1, op2, "")
	case "!=":
		if isFloat {
			return g.builder.CreateFCmp(llvm.FloatONE, op1, op2, "")
		}
		return g.builder.CreateICmp(llvm.IntNE, op1, op2, "")
	case "<":
		if isFloat {
			return g.builder.CreateFCmp(llvm.FloatOLT, op1, op2, "")
		}
		return g.builder.CreateICmp(llvm.IntSLT, op1, op2, "")
	case ">":
		if isFloat {
			return g.builder.CreateFCmp(llvm.FloatOGT, op1, op2, "")
		}
		return g.builder.CreateICmp(llvm.IntSGT, op1, op2, "")
	case "<=":
		if isFloat {
			return g.builder.CreateFCmp(llvm.FloatOLE, op1, op2, "")
		}
		return g.builder.CreateICmp(llvm.IntSLE, op1, op2, "")
	case ">=":
		if isFloat {
			return g.builder.CreateFCmp(llvm.FloatOGE, op1, op2, "")
		}
		return g.builder.CreateICmp(llvm.IntSGE, op1, op2, "")
	case "&&":
		return g.builder.CreateAnd(op1, op2, "")
	case "||":
		return g.builder.CreateOr(op1, op2, "")
	default:
		return op1
	}
}

// genStringEquals compares two fat-pointer strings for byte equality via
// length check + memcmp, grounded in the libc-first approach the rest of
// this package's string handling already takes.
func (g *Generator) genStringEquals(lhs, rhs llvm.Value) llvm.Value {
	lhsLen := g.builder.CreateExtractValue(lhs, 1, "")
	rhsLen := g.builder.CreateExtractValue(rhs, 1, "")
	lenEq := g.builder.CreateICmp(llvm.IntEQ, lhsLen, rhsLen, "")

	i8ptr := llvm.PointerType(g.ctx.Int8Type(), 0)
	memcmpT := llvm.FunctionType(g.ctx.Int32Type(), []llvm.Type{i8ptr, i8ptr, g.wordType()}, false)
	memcmp := g.mod.NamedFunction("memcmp")
	if memcmp.IsNil() {
		memcmp = llvm.AddFunction(g.mod, "memcmp", memcmpT)
	}
	lhsPtr := g.builder.CreateExtractValue(lhs, 0, "")
	rhsPtr := g.builder.CreateExtractValue(rhs, 0, "")
	cmp := g.builder.CreateCall(memcmp, []llvm.Value{lhsPtr, rhsPtr, lhsLen}, "")
	bytesEq := g.builder.CreateICmp(llvm.IntEQ, cmp, llvm.ConstInt(g.ctx.Int32Type(), 0, false), "")
	return g.builder.CreateAnd(lenEq, bytesEq, "")
}

func (g *Generator) genCall(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	name := n.Children[0].Ident()
	argList := n.Children[1]
	args := make([]llvm.Value, len(argList.Children))
	for i, a := range argList.Children {
		args[i] = g.genExpr(f, a, sc)
	}
	if n.GenericArgs != nil {
		key := g.enqueueCallKey(name, n.GenericArgs)
		if sig, ok := g.tables.MonoFuncs[key]; ok {
			name = sig.Name
		}
	}
	fn := g.mod.NamedFunction(name)
	if fn.IsNil() {
		return llvm.ConstNull(g.lowerType(n.ResolvedType))
	}
	return g.builder.CreateCall(fn, args, "")
}

// enqueueCallKey mirrors internal/sema's mangling exactly so codegen finds
// the same MonoFuncs entry pass C already populated instead of re-deciding
// which instantiation this call site refers to.
func (g *Generator) enqueueCallKey(template string, args []ast.TypeRef) ast.MonoKey {
	parts := ""
	for i, a := range args {
		if i > 0 {
			parts += ","
		}
		parts += g.tables.Arena.At(a).String()
	}
	return ast.MonoKey{Template: template, Mangled: template + "<" + parts + ">"}
}

func (g *Generator) genMethodCall(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	recvNode := n.Children[0]
	recv := g.genExpr(f, recvNode, sc)
	method := n.Children[1].Ident()
	argList := n.Children[2]
	args := make([]llvm.Value, len(argList.Children))
	for i, a := range argList.Children {
		args[i] = g.genExpr(f, a, sc)
	}

	recvT := g.tables.Arena.At(recvNode.ResolvedType)
	if recvT.Kind == ast.KindGenericRef {
		if v, ok := g.genBuiltinContainerMethod(f, recvT, recv, recvNode, method, args, sc, n.ResolvedType); ok {
			return v
		}
	}

	mangled := recvT.Name + "." + method
	if fn := g.mod.NamedFunction(mangled); !fn.IsNil() {
		return g.builder.CreateCall(fn, append([]llvm.Value{recv}, args...), "")
	}
	return llvm.ConstNull(g.lowerType(n.ResolvedType))
}

func (g *Generator) genFieldAccess(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	if ptr, ok := g.genAddressOf(f, n, sc); ok {
		return g.builder.CreateLoad(ptr, "")
	}
	recv := g.genExpr(f, n.Children[0], sc)
	recvT := g.tables.Arena.At(n.Children[0].ResolvedType)
	for i, field := range recvT.Fields {
		if field.Name == n.Children[1].Ident() {
			return g.builder.CreateExtractValue(recv, i, "")
		}
	}
	return llvm.ConstNull(g.lowerType(n.ResolvedType))
}

func (g *Generator) genIndex(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	if ptr, ok := g.genAddressOf(f, n, sc); ok {
		return g.builder.CreateLoad(ptr, "")
	}
	return llvm.ConstNull(g.lowerType(n.ResolvedType))
}

func (g *Generator) genArrayLit(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	elemT := g.lowerType(g.tables.Arena.At(n.ResolvedType).Elem)
	arrT := llvm.ArrayType(elemT, len(n.Children))
	val := llvm.ConstNull(arrT)
	for i, c := range n.Children {
		val = g.builder.CreateInsertValue(val, g.genExpr(f, c, sc), i, "")
	}
	return val
}

func (g *Generator) genStructLit(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	ty := g.tables.Arena.At(n.ResolvedType)
	llT := g.lowerType(n.ResolvedType)
	val := llvm.ConstNull(llT)
	for _, fieldNode := range n.Children {
		fname := fieldNode.Children[0].Ident()
		fv := g.genExpr(f, fieldNode.Children[1], sc)
		for i, field := range ty.Fields {
			if field.Name == fname {
				val = g.builder.CreateInsertValue(val, fv, i, "")
				break
			}
		}
	}
	return val
}

// genEnumConstruct builds a tagged-union value: the variant's ordinal goes
// in the tag slot, the payload values are packed into the union's byte
// array by bitcasting a local alloca (the simplest way to write
// differently-typed payloads into one fixed-size array field).
func (g *Generator) genEnumConstruct(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	ty := g.tables.Arena.At(n.ResolvedType)
	variantName, _ := n.Data.(string)
	llT := g.lowerType(n.ResolvedType)

	tag := 0
	var payloadTypes []ast.TypeRef
	for i, v := range ty.Variants {
		if v.Name == variantName {
			tag = i
			payloadTypes = v.Payload
			break
		}
	}

	alloc := g.builder.CreateAlloca(llT, "")
	tagPtr := g.builder.CreateStructGEP(alloc, 0, "")
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int32Type(), uint64(tag), false), tagPtr)

	if len(n.Children) > 0 {
		payloadPtr := g.builder.CreateStructGEP(alloc, 1, "")
		offset := 0
		for i, c := range n.Children {
			v := g.genExpr(f, c, sc)
			var pt llvm.Type
			if i < len(payloadTypes) {
				pt = g.lowerType(payloadTypes[i])
			} else {
				pt = v.Type()
			}
			slot := g.builder.CreateGEP(payloadPtr, []llvm.Value{llvm.ConstInt(g.ctx.Int32Type(), uint64(offset), false)}, "")
			typed := g.builder.CreateBitCast(slot, llvm.PointerType(pt, 0), "")
			g.builder.CreateStore(v, typed)
			offset += g.sizeOfType(payloadTypeAt(payloadTypes, i))
		}
	}
	return g.builder.CreateLoad(alloc, "")
}

func payloadTypeAt(ts []ast.TypeRef, i int) ast.TypeRef {
	if i < len(ts) {
		return ts[i]
	}
	return ast.Invalid
}

func (g *Generator) genCast(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	v := g.genExpr(f, n.Children[0], sc)
	target := g.lowerType(n.ResolvedType)
	srcKind := g.tables.Arena.At(n.Children[0].ResolvedType).Kind
	dstKind := g.tables.Arena.At(n.ResolvedType).Kind

	switch {
	case srcKind.IsInteger() && dstKind.IsFloat():
		return g.builder.CreateSIToFP(v, target, "")
	case srcKind.IsFloat() && dstKind.IsInteger():
		return g.builder.CreateFPToSI(v, target, "")
	case srcKind.IsInteger() && dstKind.IsInteger():
		if v.Type().IntTypeWidth() < target.IntTypeWidth() {
			return g.builder.CreateSExt(v, target, "")
		} else if v.Type().IntTypeWidth() > target.IntTypeWidth() {
			return g.builder.CreateTrunc(v, target, "")
		}
		return v
	case srcKind.IsFloat() && dstKind.IsFloat():
		if target == g.ctx.DoubleType() {
			return g.builder.CreateFPExt(v, target, "")
		}
		return g.builder.CreateFPTrunc(v, target, "")
	default:
		return v
	}
}

// genTryPropagate lowers `expr??`: on an Err/None tag it returns early with
// that same enum value re-wrapped as the caller's own Result/Optional
// (spec §4.3.5); otherwise it extracts the payload and continues.
func (g *Generator) genTryPropagate(f *fb, n *ast.Node, sc *localScope) llvm.Value {
	inner := g.genExpr(f, n.Children[0], sc)
	llT := inner.Type()
	tag := g.builder.CreateExtractValue(inner, 0, "")
	isErr := g.builder.CreateICmp(llvm.IntEQ, tag, llvm.ConstInt(g.ctx.Int32Type(), 1, false), "tryerr")

	errBB := g.ctx.AddBasicBlock(f.fn, "try.err")
	okBB := g.ctx.AddBasicBlock(f.fn, "try.ok")
	g.builder.CreateCondBr(isErr, errBB, okBB)

	g.builder.SetInsertPointAtEnd(errBB)
	if f.retVoid {
		g.builder.CreateRetVoid()
	} else {
		g.builder.CreateRet(inner)
	}

	g.builder.SetInsertPointAtEnd(okBB)
	alloc := g.builder.CreateAlloca(llT, "")
	g.builder.CreateStore(inner, alloc)
	payloadPtr := g.builder.CreateStructGEP(alloc, 1, "")
	resultT := g.lowerType(n.ResolvedType)
	typed := g.builder.CreateBitCast(payloadPtr, llvm.PointerType(resultT, 0), "")
	return g.builder.CreateLoad(typed, "")
}
