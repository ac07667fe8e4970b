package llvm

import (
	"tinygo.org/x/go-llvm"

	"github.com/sushi-lang/sushic/internal/ast"
)

// localScope tracks one function body's stack-allocated locals, mirroring
// the teacher's symTab pattern but as a plain map since codegen runs
// single-threaded per function in this pipeline (spec §4.4 names no
// parallel-codegen requirement, unlike the teacher's opt-in multi-threaded
// backend).
type localScope struct {
	vars   map[string]llvm.Value // name -> alloca.
	types  map[string]ast.TypeRef
	order  []string // declaration order, for LIFO scope-exit destruction.
	parent *localScope
}

func newLocalScope(parent *localScope) *localScope {
	return &localScope{vars: make(map[string]llvm.Value), types: make(map[string]ast.TypeRef), parent: parent}
}

func (s *localScope) declare(name string, v llvm.Value, t ast.TypeRef) {
	if _, exists := s.vars[name]; !exists {
		s.order = append(s.order, name)
	}
	s.vars[name] = v
	s.types[name] = t
}

func (s *localScope) lookup(name string) (llvm.Value, ast.TypeRef, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, sc.types[name], true
		}
	}
	return llvm.Value{}, ast.Invalid, false
}

// fb bundles the per-function codegen state genExpr/genStmt thread through,
// analogous to (builder, module, fun) in the teacher's genExpression.
type fb struct {
	fn      llvm.Value
	retVoid bool

	// rootScope is the function's parameter scope, the boundary genReturn
	// stops destroying at -- matching the normal-fallthrough path, which
	// never destroys params either (defineFunc's own genBlock call only
	// ever tears down the body's own child scope).
	rootScope *localScope

	// continueTargets/breakTargets track the enclosing loop headers/exits
	// so a nested NBreakStatement/NContinueStatement (which carries no
	// explicit label -- spec names no labeled-loop construct) always jumps
	// to the innermost loop's blocks. loopScopes pairs each with the scope
	// that was active just before the loop's body was entered, so a break
	// or continue knows exactly which nested block scopes it is jumping
	// out of and must destroy first.
	continueTargets []llvm.BasicBlock
	breakTargets    []llvm.BasicBlock
	loopScopes      []*localScope
}

func (f *fb) pushLoop(continueBB, breakBB llvm.BasicBlock, outerScope *localScope) {
	f.continueTargets = append(f.continueTargets, continueBB)
	f.breakTargets = append(f.breakTargets, breakBB)
	f.loopScopes = append(f.loopScopes, outerScope)
}

func (f *fb) popLoop() {
	f.continueTargets = f.continueTargets[:len(f.continueTargets)-1]
	f.breakTargets = f.breakTargets[:len(f.breakTargets)-1]
	f.loopScopes = f.loopScopes[:len(f.loopScopes)-1]
}

// GenerateAll lowers every concrete and monomorphized function in g.tables
// into the module. Struct/enum type layouts are lowered lazily by
// lowerType on first reference.
func (g *Generator) GenerateAll() error {
	for _, sig := range g.tables.Funcs {
		g.declareFunc(sig.Name, sig)
	}
	for _, sig := range g.tables.MonoFuncs {
		g.declareFunc(sig.Name, sig)
	}

	for _, sig := range g.tables.Funcs {
		if sig.Body == nil {
			continue
		}
		if err := g.defineFunc(sig); err != nil {
			return err
		}
	}
	for _, sig := range g.tables.MonoFuncs {
		if sig.Body == nil {
			continue
		}
		if err := g.defineFunc(sig); err != nil {
			return err
		}
	}
	return nil
}

// MonoUnitName is the pseudo-unit every monomorphized generic instantiation
// is attributed to for incremental codegen, since ast.FuncSig carries no
// owning-unit field for MonoFuncs (mirroring the same program-wide
// over-invalidation the build cache already applies to extensions and perk
// implementations).
const MonoUnitName = "__mono__"

// DeclareAll emits an extern declaration for every concrete and
// monomorphized function into g's module, without bodies. internal/pipeline
// calls this once per per-unit Generator so that a call crossing into
// another unit's functions still resolves at the IR level; the callee's
// actual definition arrives later when that unit's own cached or freshly
// generated bitcode module is merged in by internal/link.
func (g *Generator) DeclareAll() {
	for _, sig := range g.tables.Funcs {
		g.declareFunc(sig.Name, sig)
	}
	for _, sig := range g.tables.MonoFuncs {
		g.declareFunc(sig.Name, sig)
	}
}

// DefineUnit lowers the bodies of every function in tables.Funcs owned by
// unitName, after DeclareAll has populated every signature. Used by the
// per-unit incremental codegen path (spec §4.6): one Generator/module per
// source unit, so its bitcode can be cached and reused independently of its
// sibling units.
func (g *Generator) DefineUnit(unitName string) error {
	for _, sig := range g.tables.Funcs {
		if sig.Body == nil || sig.Unit != unitName {
			continue
		}
		if err := g.defineFunc(sig); err != nil {
			return err
		}
	}
	return nil
}

// DefineMono lowers every monomorphized generic instantiation's body. These
// are generated into their own MonoUnitName module rather than split across
// the units that triggered them, since MonoFuncs carries no per-instantiation
// owning unit.
func (g *Generator) DefineMono() error {
	for _, sig := range g.tables.MonoFuncs {
		if sig.Body == nil {
			continue
		}
		if err := g.defineFunc(sig); err != nil {
			return err
		}
	}
	return nil
}

func (g *Generator) declareFunc(name string, sig *ast.FuncSig) llvm.Value {
	if existing := g.mod.NamedFunction(name); !existing.IsNil() {
		return existing
	}
	paramTypes := make([]llvm.Type, len(sig.Params))
	for i, p := range sig.Params {
		t := g.lowerType(p.Type)
		if p.Borrow != ast.BorrowNone {
			t = llvm.PointerType(t, 0)
		}
		paramTypes[i] = t
	}
	retType := g.lowerType(sig.Return)
	fnType := llvm.FunctionType(retType, paramTypes, false)
	fn := llvm.AddFunction(g.mod, name, fnType)
	for i, p := range sig.Params {
		fn.Param(i).SetName(p.Name)
	}
	return fn
}

func (g *Generator) defineFunc(sig *ast.FuncSig) error {
	fn := g.mod.NamedFunction(sig.Name)
	entry := g.ctx.AddBasicBlock(fn, "entry")
	g.builder.SetInsertPointAtEnd(entry)

	sc := newLocalScope(nil)
	for i, p := range sig.Params {
		alloc := g.builder.CreateAlloca(fn.Param(i).Type(), p.Name)
		g.builder.CreateStore(fn.Param(i), alloc)
		sc.declare(p.Name, alloc, p.Type)
	}

	body := sig.Body.Children[4]
	frame := &fb{fn: fn, retVoid: sig.Return == ast.RefBlank, rootScope: sc}
	g.genBlock(frame, body, sc)

	if lastBlockNeedsTerminator(g.builder) {
		if frame.retVoid {
			g.builder.CreateRetVoid()
		} else {
			g.builder.CreateRet(llvm.ConstNull(g.lowerType(sig.Return)))
		}
	}
	return nil
}

// lastBlockNeedsTerminator reports whether the builder's current insertion
// block still lacks a terminator instruction (a fallthrough path the
// borrow/return checker in internal/sema already proved is unreachable in
// a well-typed program, but codegen fills in defensively so a malformed
// tree never produces an unterminated LLVM basic block).
func lastBlockNeedsTerminator(b llvm.Builder) bool {
	bb := b.GetInsertBlock()
	term := bb.LastInstruction()
	return term.IsNil() || term.IsATerminatorInst().IsNil()
}

// genBlock runs one block's statements in a fresh child scope and, on the
// path where the block falls through normally, destroys its still-owned
// locals in reverse declaration order (spec §4.4.5's implicit scope-exit
// RAII; destroyScope in internal/sema performs the matching ownership
// bookkeeping). A block that exits early via return/break/continue instead
// has its destructors emitted by genReturn/genBreak/genContinue themselves,
// which walk the full chain of scopes being unwound rather than just this
// block's own.
func (g *Generator) genBlock(f *fb, n *ast.Node, parent *localScope) {
	sc := newLocalScope(parent)
	for _, stmt := range n.Children {
		g.genStmt(f, stmt, sc)
		if !lastBlockNeedsTerminator(g.builder) {
			// Everything after a return/break/continue in this block is
			// unreachable; LLVM rejects instructions appended past a
			// terminator, so stop rather than emit dead code. The
			// terminating statement already emitted its own destructor
			// sequence for every scope it unwinds, sc included.
			return
		}
	}
	g.destroyLocalScope(sc)
}

// destroyLocalScope frees every scope-local binding whose type owns
// dynamic storage, in reverse declaration order.
func (g *Generator) destroyLocalScope(sc *localScope) {
	g.destroyScopeChain(sc, sc.parent, "")
}

// destroyScopeChain walks sc and its ancestors up to (but not including)
// boundary, destroying each scope's still-owned locals in reverse
// declaration order -- the general form destroyLocalScope and every
// early-exit statement (return/break/continue) share, so an exit nested
// several blocks deep still tears down every scope it passes through
// rather than just its own. At most one binding named skip is left alone
// wherever it is found in the chain: genReturn passes the identifier it is
// handing back to the caller by move, so the value just returned isn't
// freed out from under it.
func (g *Generator) destroyScopeChain(sc, boundary *localScope, skip string) {
	skipped := false
	for s := sc; s != nil && s != boundary; s = s.parent {
		for i := len(s.order) - 1; i >= 0; i-- {
			name := s.order[i]
			if !skipped && name == skip {
				skipped = true
				continue
			}
			t := s.types[name]
			if !g.tables.Arena.RequiresCleanup(t) {
				continue
			}
			g.emitDestructorCall(s.vars[name], t)
		}
	}
}

func (g *Generator) genStmt(f *fb, n *ast.Node, sc *localScope) {
	switch n.Kind {
	case ast.NLetStatement:
		g.genLet(f, n, sc)
	case ast.NAssignStatement:
		g.genAssign(f, n, sc)
	case ast.NExprStatement:
		g.genExpr(f, n.Children[0], sc)
	case ast.NReturnStatement:
		g.genReturn(f, n, sc)
	case ast.NIfStatement:
		g.genIf(f, n, sc)
	case ast.NWhileStatement:
		g.genWhile(f, n, sc)
	case ast.NForeachStatement:
		g.genForeach(f, n, sc)
	case ast.NMatchStatement:
		g.genMatch(f, n, sc)
	case ast.NBreakStatement:
		g.genBreak(f, sc)
	case ast.NContinueStatement:
		g.genContinue(f, sc)
	case ast.NDestroyStatement:
		g.genDestroy(f, n, sc)
	case ast.NBlock:
		g.genBlock(f, n, sc)
	default:
		for _, c := range n.Children {
			g.genStmt(f, c, sc)
		}
	}
}

func (g *Generator) genLet(f *fb, n *ast.Node, sc *localScope) {
	name := n.Children[0].Ident()
	init := n.Children[len(n.Children)-1]
	v := g.genExpr(f, init, sc)
	alloc := g.builder.CreateAlloca(v.Type(), name)
	g.builder.CreateStore(v, alloc)
	sc.declare(name, alloc, init.ResolvedType)
}

func (g *Generator) genAssign(f *fb, n *ast.Node, sc *localScope) {
	rhs := g.genExpr(f, n.Children[1], sc)
	if n.Children[0].Kind == ast.NIdentifierExpr {
		if alloc, _, ok := sc.lookup(n.Children[0].Ident()); ok {
			g.builder.CreateStore(rhs, alloc)
		}
		return
	}
	// Field/index lvalue: compute the destination address and store.
	if ptr, ok := g.genAddressOf(f, n.Children[0], sc); ok {
		g.builder.CreateStore(rhs, ptr)
	}
}

// genReturn evaluates the return expression (if any), destroys every
// still-owned local in every scope between sc and the function's param
// scope (spec §4.4.5: return is a scope-exit edge exactly like a block
// falling through), and only then emits the terminator. A bare `return
// name` moves name's value out to the caller, so that one binding is
// skipped by the destructor walk -- freeing its backing storage here
// would invalidate the value the caller is about to receive.
func (g *Generator) genReturn(f *fb, n *ast.Node, sc *localScope) {
	if len(n.Children) == 0 {
		g.destroyScopeChain(sc, f.rootScope, "")
		g.builder.CreateRetVoid()
		return
	}
	v := g.genExpr(f, n.Children[0], sc)
	moved := ""
	if n.Children[0].Kind == ast.NIdentifierExpr {
		moved = n.Children[0].Ident()
	}
	g.destroyScopeChain(sc, f.rootScope, moved)
	g.builder.CreateRet(v)
}

func (g *Generator) genIf(f *fb, n *ast.Node, sc *localScope) {
	cond := g.genExpr(f, n.Children[0], sc)
	thenBB := g.ctx.AddBasicBlock(f.fn, "if.then")
	elseBB := g.ctx.AddBasicBlock(f.fn, "if.else")
	contBB := g.ctx.AddBasicBlock(f.fn, "if.cont")
	g.builder.CreateCondBr(cond, thenBB, elseBB)

	g.builder.SetInsertPointAtEnd(thenBB)
	g.genBlock(f, n.Children[1], sc)
	if lastBlockNeedsTerminator(g.builder) {
		g.builder.CreateBr(contBB)
	}

	g.builder.SetInsertPointAtEnd(elseBB)
	if len(n.Children) > 2 {
		if n.Children[2].Kind == ast.NBlock {
			g.genBlock(f, n.Children[2], sc)
		} else {
			g.genStmt(f, n.Children[2], sc)
		}
	}
	if lastBlockNeedsTerminator(g.builder) {
		g.builder.CreateBr(contBB)
	}

	g.builder.SetInsertPointAtEnd(contBB)
}

func (g *Generator) genWhile(f *fb, n *ast.Node, sc *localScope) {
	condBB := g.ctx.AddBasicBlock(f.fn, "while.cond")
	bodyBB := g.ctx.AddBasicBlock(f.fn, "while.body")
	contBB := g.ctx.AddBasicBlock(f.fn, "while.cont")

	g.builder.CreateBr(condBB)
	g.builder.SetInsertPointAtEnd(condBB)
	cond := g.genExpr(f, n.Children[0], sc)
	g.builder.CreateCondBr(cond, bodyBB, contBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	f.pushLoop(condBB, contBB, sc)
	g.genBlock(f, n.Children[1], sc)
	f.popLoop()
	if lastBlockNeedsTerminator(g.builder) {
		g.builder.CreateBr(condBB)
	}

	g.builder.SetInsertPointAtEnd(contBB)
}

// genBreak/genContinue destroy every still-owned local declared since the
// loop's body was entered (spec §4.4.5 names break/continue as scope-exit
// edges alongside return/end-of-block) before jumping to the innermost
// enclosing loop's exit/header block. A break or continue outside any loop
// (a malformed tree the out-of-scope parser/sema would already have
// rejected) is a silent no-op.
func (g *Generator) genBreak(f *fb, sc *localScope) {
	if len(f.breakTargets) == 0 {
		return
	}
	g.destroyScopeChain(sc, f.loopScopes[len(f.loopScopes)-1], "")
	g.builder.CreateBr(f.breakTargets[len(f.breakTargets)-1])
}

func (g *Generator) genContinue(f *fb, sc *localScope) {
	if len(f.continueTargets) == 0 {
		return
	}
	g.destroyScopeChain(sc, f.loopScopes[len(f.loopScopes)-1], "")
	g.builder.CreateBr(f.continueTargets[len(f.continueTargets)-1])
}

// genForeach lowers iteration over a fixed/dynamic array, List, or the
// {i32 index, i32 length, T* data_ptr} iterator shape spec §4.3.4 defines,
// as an index-based loop sharing one GEP-per-element pattern across all
// four source kinds once backing/length/start are normalized.
func (g *Generator) genForeach(f *fb, n *ast.Node, sc *localScope) {
	bindName := n.Children[0].Ident()
	iterNode := n.Children[1]
	body := n.Children[2]
	iterT := g.tables.Arena.At(iterNode.ResolvedType)

	var elemT ast.TypeRef
	switch iterT.Kind {
	case ast.KindFixedArray, ast.KindDynArray, ast.KindIterator:
		elemT = iterT.Elem
	case ast.KindGenericRef:
		if len(iterT.TypeArgs) > 0 {
			elemT = iterT.TypeArgs[0]
		}
	}

	var backing, length, start llvm.Value
	switch iterT.Kind {
	case ast.KindFixedArray:
		arrPtr, ok := g.genAddressOf(f, iterNode, sc)
		if !ok {
			arrPtr = g.builder.CreateAlloca(g.lowerType(iterNode.ResolvedType), "")
			g.builder.CreateStore(g.genExpr(f, iterNode, sc), arrPtr)
		}
		zero32 := llvm.ConstInt(g.ctx.Int32Type(), 0, false)
		backing = g.builder.CreateGEP(arrPtr, []llvm.Value{zero32, zero32}, "")
		length = llvm.ConstInt(g.wordType(), uint64(iterT.Len), false)
		start = llvm.ConstInt(g.wordType(), 0, false)
	case ast.KindDynArray, ast.KindGenericRef:
		val := g.genExpr(f, iterNode, sc)
		backing = g.builder.CreateExtractValue(val, 0, "")
		length = g.builder.CreateExtractValue(val, 1, "")
		start = llvm.ConstInt(length.Type(), 0, false)
	case ast.KindIterator:
		val := g.genExpr(f, iterNode, sc)
		start = g.builder.CreateExtractValue(val, 0, "")
		length = g.builder.CreateExtractValue(val, 1, "")
		backing = g.builder.CreateExtractValue(val, 2, "")
	default:
		return
	}

	idxAlloc := g.builder.CreateAlloca(length.Type(), "")
	g.builder.CreateStore(start, idxAlloc)

	condBB := g.ctx.AddBasicBlock(f.fn, "foreach.cond")
	bodyBB := g.ctx.AddBasicBlock(f.fn, "foreach.body")
	contBB := g.ctx.AddBasicBlock(f.fn, "foreach.cont")

	g.builder.CreateBr(condBB)
	g.builder.SetInsertPointAtEnd(condBB)
	idx := g.builder.CreateLoad(idxAlloc, "")
	var cond llvm.Value
	if iterT.Kind == ast.KindIterator {
		// A negative length is the streaming-iterator sentinel; its
		// source-specific fetch helper lives in the out-of-scope runtime,
		// so this core treats a streaming iterator as already exhausted.
		notStreaming := g.builder.CreateICmp(llvm.IntSGE, length, llvm.ConstInt(length.Type(), 0, true), "")
		inBounds := g.builder.CreateICmp(llvm.IntSLT, idx, length, "")
		cond = g.builder.CreateAnd(notStreaming, inBounds, "")
	} else {
		cond = g.builder.CreateICmp(llvm.IntSLT, idx, length, "")
	}
	g.builder.CreateCondBr(cond, bodyBB, contBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	elemPtr := g.builder.CreateGEP(backing, []llvm.Value{idx}, "")
	bodySc := newLocalScope(sc)
	// bodySc itself, not sc, is the boundary a break/continue stops at: it
	// holds only bindName, a pointer straight into the source's own backing
	// storage rather than an owned value, so it must never be destroyed
	// (matching the normal-fallthrough path, which also never tears it
	// down -- only genBlock's own inner scope is destroyed on fallthrough).
	bodySc.declare(bindName, elemPtr, elemT)
	f.pushLoop(condBB, contBB, bodySc)
	g.genBlock(f, body, bodySc)
	f.popLoop()
	if lastBlockNeedsTerminator(g.builder) {
		next := g.builder.CreateAdd(idx, llvm.ConstInt(idx.Type(), 1, false), "")
		g.builder.CreateStore(next, idxAlloc)
		g.builder.CreateBr(condBB)
	}

	g.builder.SetInsertPointAtEnd(contBB)
}

// genMatch lowers a match statement as a chain of tag-equality branches
// into per-arm blocks, each falling through to a shared continuation once
// the arm's body completes (spec §4.3.3's exhaustiveness/no-fallthrough
// pattern-match semantics; internal/sema has already rejected missing or
// duplicate variants, so codegen just needs one branch per arm in order).
func (g *Generator) genMatch(f *fb, n *ast.Node, sc *localScope) {
	subjNode := n.Children[0]
	subjT := g.tables.Arena.At(subjNode.ResolvedType)
	subjVal := g.genExpr(f, subjNode, sc)
	tag := g.builder.CreateExtractValue(subjVal, 0, "")

	contBB := g.ctx.AddBasicBlock(f.fn, "match.cont")
	for _, arm := range n.Children[1:] {
		pattern := arm.Children[0]
		body := arm.Children[1]
		variant, _ := pattern.Data.(string)

		armBB := g.ctx.AddBasicBlock(f.fn, "match.arm")
		nextBB := g.ctx.AddBasicBlock(f.fn, "match.next")

		if variant == "_" {
			g.builder.CreateBr(armBB)
		} else {
			eq := g.builder.CreateICmp(llvm.IntEQ, tag, llvm.ConstInt(g.ctx.Int32Type(), uint64(variantIndex(subjT, variant)), false), "")
			g.builder.CreateCondBr(eq, armBB, nextBB)
		}

		g.builder.SetInsertPointAtEnd(armBB)
		armSc := newLocalScope(sc)
		g.bindPatternPayload(subjVal, pattern, variant, subjT, armSc)
		g.genBlock(f, body, armSc)
		if lastBlockNeedsTerminator(g.builder) {
			g.builder.CreateBr(contBB)
		}

		g.builder.SetInsertPointAtEnd(nextBB)
		if variant == "_" {
			g.builder.CreateBr(contBB)
		}
	}
	if lastBlockNeedsTerminator(g.builder) {
		g.builder.CreateBr(contBB)
	}
	g.builder.SetInsertPointAtEnd(contBB)
}

func variantIndex(subjT ast.Type, name string) int {
	for i, v := range subjT.Variants {
		if v.Name == name {
			return i
		}
	}
	return -1
}

// bindPatternPayload declares each pattern-arm binding as a pointer into
// the tagged union's payload bytes, the same byte-offset bitcast scheme
// genEnumConstruct uses to write them.
func (g *Generator) bindPatternPayload(subjVal llvm.Value, pattern *ast.Node, variant string, subjT ast.Type, sc *localScope) {
	if variant == "_" || len(pattern.Children) == 0 {
		return
	}
	var payload []ast.TypeRef
	for _, v := range subjT.Variants {
		if v.Name == variant {
			payload = v.Payload
			break
		}
	}
	if len(payload) == 0 {
		return
	}
	alloc := g.builder.CreateAlloca(subjVal.Type(), "")
	g.builder.CreateStore(subjVal, alloc)
	payloadPtr := g.builder.CreateStructGEP(alloc, 1, "")
	offset := 0
	for i, bindNode := range pattern.Children {
		if i >= len(payload) {
			break
		}
		pt := g.lowerType(payload[i])
		slot := g.builder.CreateGEP(payloadPtr, []llvm.Value{llvm.ConstInt(g.ctx.Int32Type(), uint64(offset), false)}, "")
		typed := g.builder.CreateBitCast(slot, llvm.PointerType(pt, 0), "")
		sc.declare(bindNode.Ident(), typed, payload[i])
		offset += g.sizeOfType(payload[i])
	}
}

// genDestroy emits the RAII destructor call for an explicit `destroy x`
// statement when x's type requires cleanup (spec §4.4.5). Types that don't
// own heap/dynamic storage (ast.Arena.RequiresCleanup == false) lower to a
// no-op, matching scope-exit destruction's own skip rule.
func (g *Generator) genDestroy(f *fb, n *ast.Node, sc *localScope) {
	ident := n.Children[0]
	if ident.Kind != ast.NIdentifierExpr {
		return
	}
	alloc, t, ok := sc.lookup(ident.Ident())
	if !ok || !g.tables.Arena.RequiresCleanup(t) {
		return
	}
	g.emitDestructorCall(alloc, t)
}

// emitDestructorCall frees the dynamic storage backing a value of type t:
// a fat-pointer's backing buffer for string/array/List/HashMap, the single
// boxed allocation for Box, and a recursive field-by-field teardown for
// struct values that merely contain such a type. Enum values, Optional and
// Result included, get no teardown: their payloads are not freed.
func (g *Generator) emitDestructorCall(ptr llvm.Value, t ast.TypeRef) {
	ty := g.tables.Arena.At(t)
	switch ty.Kind {
	case ast.KindString, ast.KindDynArray:
		val := g.builder.CreateLoad(ptr, "")
		backing := g.builder.CreateExtractValue(val, 0, "")
		g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(backing)}, "")
	case ast.KindGenericRef:
		switch ty.Name {
		case "Box":
			val := g.builder.CreateLoad(ptr, "")
			g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(val)}, "")
		case "List", "HashMap":
			val := g.builder.CreateLoad(ptr, "")
			backing := g.builder.CreateExtractValue(val, 0, "")
			g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(backing)}, "")
		}
	case ast.KindStruct:
		for i, field := range ty.Fields {
			if !g.tables.Arena.RequiresCleanup(field.Type) {
				continue
			}
			fieldPtr := g.builder.CreateStructGEP(ptr, i, "")
			g.emitDestructorCall(fieldPtr, field.Type)
		}
	}
}

func (g *Generator) castToI8Ptr(v llvm.Value) llvm.Value {
	i8ptr := llvm.PointerType(g.ctx.Int8Type(), 0)
	if v.Type() == i8ptr {
		return v
	}
	return g.builder.CreateBitCast(v, i8ptr, "")
}

// genAddressOf resolves the storage address of an lvalue expression
// (identifier, field access, index) for use as an assignment destination.
func (g *Generator) genAddressOf(f *fb, n *ast.Node, sc *localScope) (llvm.Value, bool) {
	switch n.Kind {
	case ast.NIdentifierExpr:
		if alloc, _, ok := sc.lookup(n.Ident()); ok {
			return alloc, true
		}
	case ast.NFieldAccessExpr:
		recvPtr, ok := g.genAddressOf(f, n.Children[0], sc)
		if !ok {
			return llvm.Value{}, false
		}
		recvT := g.tables.Arena.At(n.Children[0].ResolvedType)
		for i, field := range recvT.Fields {
			if field.Name == n.Children[1].Ident() {
				return g.builder.CreateStructGEP(recvPtr, i, ""), true
			}
		}
	case ast.NIndexExpr:
		idx := g.genExpr(f, n.Children[1], sc)
		recvT := g.tables.Arena.At(n.Children[0].ResolvedType)
		if recvT.Kind == ast.KindDynArray {
			recv := g.genExpr(f, n.Children[0], sc)
			backing := g.builder.CreateExtractValue(recv, 0, "")
			length := g.builder.CreateExtractValue(recv, 1, "")
			g.emitBoundsGuard(f.fn, idx, length)
			return g.builder.CreateGEP(backing, []llvm.Value{idx}, ""), true
		}
		if recvT.Kind == ast.KindFixedArray {
			length := llvm.ConstInt(idx.Type(), uint64(recvT.Len), false)
			g.emitBoundsGuard(f.fn, idx, length)
			arrPtr, ok := g.genAddressOf(f, n.Children[0], sc)
			if !ok {
				arrPtr = g.builder.CreateAlloca(g.lowerType(n.Children[0].ResolvedType), "")
				g.builder.CreateStore(g.genExpr(f, n.Children[0], sc), arrPtr)
			}
			zero := llvm.ConstInt(g.ctx.Int32Type(), 0, false)
			return g.builder.CreateGEP(arrPtr, []llvm.Value{zero, idx}, ""), true
		}
	}
	return llvm.Value{}, false
}
