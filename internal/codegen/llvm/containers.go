package llvm

import (
	"tinygo.org/x/go-llvm"

	"github.com/sushi-lang/sushic/internal/ast"
)

// Bucket entry states for the HashMap open-addressing scheme (spec §4.4.3):
// a slot starts Empty, becomes Occupied on insert, and becomes Tombstone on
// remove so a later probe for a different key that once collided with this
// slot still finds it.
const (
	hmEmpty     = 0
	hmOccupied  = 1
	hmTombstone = 2
)

// genBuiltinContainerMethod inline-emits Box/List/HashMap method bodies at
// the call site (spec §4.4.3: these never go through the monomorphization
// queue, unlike user generics). resultRef is the method call's own resolved
// type (internal/sema's builtinContainerMethodType already computed it),
// needed wherever a method constructs an Optional/Iterator value whose exact
// type argument codegen has no other way to recover. ok is false for a
// container/method combination this function doesn't know, letting the
// caller fall back to a user-defined extension lookup.
func (g *Generator) genBuiltinContainerMethod(f *fb, recvT ast.Type, recv llvm.Value, recvNode *ast.Node, method string, args []llvm.Value, sc *localScope, resultRef ast.TypeRef) (llvm.Value, bool) {
	switch recvT.Name {
	case "Box":
		return g.genBoxMethod(recv, method, args, recvT)
	case "List":
		return g.genListMethod(f, recvNode, recv, method, args, recvT, sc, resultRef)
	case "HashMap":
		return g.genHashMapMethod(f, recvNode, recv, method, args, recvT, sc, resultRef)
	case "Optional", "Result":
		return g.genOptionalResultMethod(f, recv, method, args, resultRef)
	}
	return llvm.Value{}, false
}

func (g *Generator) genBoxMethod(recv llvm.Value, method string, args []llvm.Value, recvT ast.Type) (llvm.Value, bool) {
	elemT := g.ctx.Int8Type()
	if len(recvT.TypeArgs) > 0 {
		elemT = g.lowerType(recvT.TypeArgs[0])
	}
	_ = elemT
	switch method {
	case "get":
		return g.builder.CreateLoad(recv, ""), true
	case "set":
		g.builder.CreateStore(args[0], recv)
		return llvm.Value{}, true
	}
	return llvm.Value{}, false
}

// genOptionalSome builds Some(v) for the Optional<T> named by optRef,
// mirroring genEnumConstruct's alloca + StructGEP + bitcast-store pattern
// for the tagged-union values codegen itself needs to build (as opposed to
// ones the surface syntax spells out with Some(...)/None). Tag 0 is Some,
// matching the convention genTryPropagate already relies on.
func (g *Generator) genOptionalSome(optRef ast.TypeRef, v llvm.Value) llvm.Value {
	optT := g.lowerType(optRef)
	alloc := g.builder.CreateAlloca(optT, "")
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int32Type(), 0, false), g.builder.CreateStructGEP(alloc, 0, ""))
	payloadPtr := g.builder.CreateStructGEP(alloc, 1, "")
	typed := g.builder.CreateBitCast(payloadPtr, llvm.PointerType(v.Type(), 0), "")
	g.builder.CreateStore(v, typed)
	return g.builder.CreateLoad(alloc, "")
}

// genOptionalNone builds None for Optional<T>; tag 1, payload left zeroed.
func (g *Generator) genOptionalNone(optRef ast.TypeRef) llvm.Value {
	optT := g.lowerType(optRef)
	alloc := g.builder.CreateAlloca(optT, "")
	g.builder.CreateStore(llvm.ConstNull(optT), alloc)
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int32Type(), 1, false), g.builder.CreateStructGEP(alloc, 0, ""))
	return g.builder.CreateLoad(alloc, "")
}

// genOptionalResultMethod implements the Optional<T>/Result<T,E> method
// surface spec §3 names directly ("realise(default), expect(msg),
// is_ok/is_err, err()"): presence queries read the tag, realise/expect/err
// extract the payload with genEnumConstruct's own alloca+StructGEP+bitcast
// read pattern (the mirror image of its write side), and expect traps via
// puts+exit like the RE-series runtime checks rather than inventing a
// separate panic mechanism.
func (g *Generator) genOptionalResultMethod(f *fb, recv llvm.Value, method string, args []llvm.Value, resultRef ast.TypeRef) (llvm.Value, bool) {
	llT := recv.Type()
	tag := g.builder.CreateExtractValue(recv, 0, "")
	isAbsent := g.builder.CreateICmp(llvm.IntEQ, tag, llvm.ConstInt(g.ctx.Int32Type(), 1, false), "")

	switch method {
	case "is_some", "is_ok":
		return g.builder.CreateXor(isAbsent, llvm.ConstInt(g.ctx.Int1Type(), 1, false), ""), true
	case "is_none", "is_err":
		return isAbsent, true
	case "err":
		return g.extractTaggedPayload(recv, llT, resultRef), true
	case "realise":
		payloadT := g.lowerType(resultRef)
		resultVar := g.builder.CreateAlloca(payloadT, "")
		presentBB := g.ctx.AddBasicBlock(f.fn, "opt.realise.present")
		absentBB := g.ctx.AddBasicBlock(f.fn, "opt.realise.absent")
		doneBB := g.ctx.AddBasicBlock(f.fn, "opt.realise.done")
		g.builder.CreateCondBr(isAbsent, absentBB, presentBB)

		g.builder.SetInsertPointAtEnd(presentBB)
		g.builder.CreateStore(g.extractTaggedPayload(recv, llT, resultRef), resultVar)
		g.builder.CreateBr(doneBB)

		g.builder.SetInsertPointAtEnd(absentBB)
		g.builder.CreateStore(args[0], resultVar)
		g.builder.CreateBr(doneBB)

		g.builder.SetInsertPointAtEnd(doneBB)
		return g.builder.CreateLoad(resultVar, ""), true
	case "expect":
		payloadT := g.lowerType(resultRef)
		resultVar := g.builder.CreateAlloca(payloadT, "")
		presentBB := g.ctx.AddBasicBlock(f.fn, "opt.expect.present")
		panicBB := g.ctx.AddBasicBlock(f.fn, "opt.expect.panic")
		g.builder.CreateCondBr(isAbsent, panicBB, presentBB)

		g.builder.SetInsertPointAtEnd(panicBB)
		msgPtr := g.builder.CreateExtractValue(args[0], 0, "")
		g.builder.CreateCall(g.runtime.puts, []llvm.Value{msgPtr}, "")
		g.builder.CreateCall(g.runtime.exit, []llvm.Value{llvm.ConstInt(g.ctx.Int32Type(), 2, false)}, "")
		g.builder.CreateUnreachable()

		g.builder.SetInsertPointAtEnd(presentBB)
		g.builder.CreateStore(g.extractTaggedPayload(recv, llT, resultRef), resultVar)
		return g.builder.CreateLoad(resultVar, ""), true
	}
	return llvm.Value{}, false
}

// extractTaggedPayload reads an Optional/Result value's payload field back
// out as payloadRef's own LLVM type, the read-side mirror of
// genOptionalSome/genEnumConstruct's alloca+bitcast-store write side.
func (g *Generator) extractTaggedPayload(tagged llvm.Value, taggedT llvm.Type, payloadRef ast.TypeRef) llvm.Value {
	alloc := g.builder.CreateAlloca(taggedT, "")
	g.builder.CreateStore(tagged, alloc)
	payloadPtr := g.builder.CreateStructGEP(alloc, 1, "")
	payloadT := g.lowerType(payloadRef)
	typed := g.builder.CreateBitCast(payloadPtr, llvm.PointerType(payloadT, 0), "")
	return g.builder.CreateLoad(typed, "")
}

// genListMethod implements the fat-pointer List<T> operations spec §4.4.3
// names in full: construction (new/with_capacity), inspection (len/
// capacity/is_empty/get), mutation (push/insert/remove/pop/clear), capacity
// management (reserve/shrink_to_fit), teardown (destroy/free), and iteration
// (iter/debug).
func (g *Generator) genListMethod(f *fb, recvNode *ast.Node, recv llvm.Value, method string, args []llvm.Value, recvT ast.Type, sc *localScope, resultRef ast.TypeRef) (llvm.Value, bool) {
	elemRef := ast.RefI64
	if len(recvT.TypeArgs) > 0 {
		elemRef = recvT.TypeArgs[0]
	}
	elemT := g.lowerType(elemRef)

	if method == "new" || method == "with_capacity" {
		return g.genListConstruct(f, recv.Type(), elemT, method, args), true
	}

	ptr := g.builder.CreateExtractValue(recv, 0, "")
	length := g.builder.CreateExtractValue(recv, 1, "")
	capacity := g.builder.CreateExtractValue(recv, 2, "")

	switch method {
	case "len":
		return length, true
	case "capacity":
		return capacity, true
	case "is_empty":
		return g.builder.CreateICmp(llvm.IntEQ, length, llvm.ConstInt(g.wordType(), 0, false), ""), true
	case "get":
		g.emitBoundsGuard(f.fn, args[0], length)
		slot := g.builder.CreateGEP(ptr, []llvm.Value{args[0]}, "")
		return g.builder.CreateLoad(slot, ""), true
	case "clear":
		g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(ptr, llvm.ConstInt(g.wordType(), 0, false), capacity))
		return llvm.Value{}, true
	case "push":
		g.genListPush(f, recvNode, ptr, length, capacity, args[0], elemT, sc)
		return llvm.Value{}, true
	case "pop":
		return g.genListPop(f, recvNode, ptr, length, capacity, elemT, resultRef, sc), true
	case "insert":
		g.genListInsert(f, recvNode, ptr, length, capacity, args[0], args[1], elemT, sc)
		return llvm.Value{}, true
	case "remove":
		return g.genListRemove(f, recvNode, ptr, length, capacity, args[0], elemT, resultRef, sc), true
	case "reserve":
		finalPtr, finalCap := g.ensureListCapacity(f, ptr, length, capacity, elemT, g.builder.CreateAdd(length, args[0], ""))
		g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(finalPtr, length, finalCap))
		return llvm.Value{}, true
	case "shrink_to_fit":
		g.genListShrinkToFit(f, recvNode, ptr, length, capacity, elemT, sc)
		return llvm.Value{}, true
	case "destroy", "free":
		g.genListFree(f, recvNode, ptr, length, elemRef, elemT, sc)
		return llvm.Value{}, true
	case "iter":
		return g.genListIter(ptr, length, resultRef), true
	case "debug":
		return g.genStringLit("<List>"), true
	}
	return llvm.Value{}, false
}

// genListConstruct implements List<T>.new() (empty, first push allocates)
// and List<T>.with_capacity(n) (preallocated to n, still empty).
func (g *Generator) genListConstruct(f *fb, hdrT, elemT llvm.Type, method string, args []llvm.Value) llvm.Value {
	zero := llvm.ConstInt(g.wordType(), 0, false)
	if method == "new" {
		return llvm.ConstNull(hdrT)
	}
	want := args[0]
	elemSize := g.sizeOfType(g.elemRefOf(elemT))
	bytes := g.builder.CreateMul(want, llvm.ConstInt(g.wordType(), uint64(elemSize), false), "")
	buf := g.builder.CreateCall(g.runtime.malloc, []llvm.Value{bytes}, "")
	g.emitAllocGuard(f.fn, buf)
	typedBuf := g.builder.CreateBitCast(buf, llvm.PointerType(elemT, 0), "")
	return g.rebuildFatPointer(typedBuf, zero, want)
}

func (g *Generator) rebuildFatPointer(ptr, length, capacity llvm.Value) llvm.Value {
	fatT := g.fatPointerType(ptr.Type().ElementType())
	val := llvm.ConstNull(fatT)
	val = g.builder.CreateInsertValue(val, ptr, 0, "")
	val = g.builder.CreateInsertValue(val, length, 1, "")
	val = g.builder.CreateInsertValue(val, capacity, 2, "")
	return val
}

// storeBackRecv writes an updated fat-pointer value back to the receiver's
// local slot so a later read of the same List/HashMap variable observes the
// mutation (value receivers here behave like Go slices: the header is
// copied by value at the call boundary but this package always evaluates
// method calls against the bound local directly, matching &poke semantics
// internal/sema already enforces at the type-check level). A receiver that
// isn't a plain identifier -- e.g. the type-name pseudo-expression of a
// static `List<T>.new()` constructor call -- has no local to write back to,
// and the mutation is communicated purely through the method's return value
// instead.
func (g *Generator) storeBackRecv(recvNode *ast.Node, sc *localScope, updated llvm.Value) {
	if recvNode.Kind != ast.NIdentifierExpr {
		return
	}
	if alloc, _, ok := sc.lookup(recvNode.Ident()); ok {
		g.builder.CreateStore(updated, alloc)
	}
}

// ensureListCapacity grows the backing buffer (by malloc + memcpy + free,
// matching push's own grow strategy) until capacity is at least minCap,
// returning the possibly-reallocated pointer and capacity. Freeing ptr
// unconditionally is safe even the very first time (free(NULL) is a no-op),
// which lets push/insert/reserve all share this one routine.
func (g *Generator) ensureListCapacity(f *fb, ptr, length, capacity llvm.Value, elemT llvm.Type, minCap llvm.Value) (llvm.Value, llvm.Value) {
	entryBB := g.builder.GetInsertBlock()
	needsGrow := g.builder.CreateICmp(llvm.IntSLT, capacity, minCap, "")
	growBB := g.ctx.AddBasicBlock(f.fn, "list.grow")
	contBB := g.ctx.AddBasicBlock(f.fn, "list.grow.cont")
	g.builder.CreateCondBr(needsGrow, growBB, contBB)

	g.builder.SetInsertPointAtEnd(growBB)
	elemSize := g.sizeOfType(g.elemRefOf(elemT))
	newBytes := g.builder.CreateMul(minCap, llvm.ConstInt(g.wordType(), uint64(elemSize), false), "")
	newBuf := g.builder.CreateCall(g.runtime.malloc, []llvm.Value{newBytes}, "")
	g.emitAllocGuard(f.fn, newBuf)
	typedBuf := g.builder.CreateBitCast(newBuf, llvm.PointerType(elemT, 0), "")
	oldBytes := g.builder.CreateMul(length, llvm.ConstInt(g.wordType(), uint64(elemSize), false), "")
	g.builder.CreateCall(g.memcpyFn(), []llvm.Value{newBuf, g.castToI8Ptr(ptr), oldBytes}, "")
	g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(ptr)}, "")
	g.builder.CreateBr(contBB)
	grownFromBB := g.builder.GetInsertBlock()

	g.builder.SetInsertPointAtEnd(contBB)
	finalPtr := g.builder.CreatePHI(llvm.PointerType(elemT, 0), "")
	finalPtr.AddIncoming([]llvm.Value{typedBuf, ptr}, []llvm.BasicBlock{grownFromBB, entryBB})
	finalCap := g.builder.CreatePHI(g.wordType(), "")
	finalCap.AddIncoming([]llvm.Value{minCap, capacity}, []llvm.BasicBlock{grownFromBB, entryBB})
	return finalPtr, finalCap
}

func (g *Generator) genListPush(f *fb, recvNode *ast.Node, ptr, length, capacity, val llvm.Value, elemT llvm.Type, sc *localScope) {
	one := llvm.ConstInt(g.wordType(), 1, false)
	two := llvm.ConstInt(g.wordType(), 2, false)
	zero := llvm.ConstInt(g.wordType(), 0, false)
	needLen := g.builder.CreateAdd(length, one, "")
	doubled := g.builder.CreateSelect(g.builder.CreateICmp(llvm.IntEQ, capacity, zero, ""), one, g.builder.CreateMul(capacity, two, ""), "")
	minCap := g.builder.CreateSelect(g.builder.CreateICmp(llvm.IntSGE, doubled, needLen, ""), doubled, needLen, "")

	finalPtr, finalCap := g.ensureListCapacity(f, ptr, length, capacity, elemT, minCap)
	slot := g.builder.CreateGEP(finalPtr, []llvm.Value{length}, "")
	g.builder.CreateStore(val, slot)
	g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(finalPtr, needLen, finalCap))
}

// genListPop removes and returns the last element as Some(v), or None when
// the list is empty (spec §4.4.3: pop is an Optional-returning access).
func (g *Generator) genListPop(f *fb, recvNode *ast.Node, ptr, length, capacity llvm.Value, elemT llvm.Type, resultRef ast.TypeRef, sc *localScope) llvm.Value {
	optT := g.lowerType(resultRef)
	resultVar := g.builder.CreateAlloca(optT, "")

	isEmpty := g.builder.CreateICmp(llvm.IntEQ, length, llvm.ConstInt(g.wordType(), 0, false), "")
	emptyBB := g.ctx.AddBasicBlock(f.fn, "list.pop.empty")
	popBB := g.ctx.AddBasicBlock(f.fn, "list.pop.body")
	doneBB := g.ctx.AddBasicBlock(f.fn, "list.pop.done")
	g.builder.CreateCondBr(isEmpty, emptyBB, popBB)

	g.builder.SetInsertPointAtEnd(emptyBB)
	g.builder.CreateStore(g.genOptionalNone(resultRef), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(popBB)
	newLen := g.builder.CreateSub(length, llvm.ConstInt(g.wordType(), 1, false), "")
	slot := g.builder.CreateGEP(ptr, []llvm.Value{newLen}, "")
	val := g.builder.CreateLoad(slot, "")
	g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(ptr, newLen, capacity))
	g.builder.CreateStore(g.genOptionalSome(resultRef, val), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	return g.builder.CreateLoad(resultVar, "")
}

// genListInsert shifts [idx, length) up by one slot (memmove, since source
// and destination overlap) and writes val at idx; idx may equal length for
// an append. Growing the buffer first, if needed, matches push's strategy.
func (g *Generator) genListInsert(f *fb, recvNode *ast.Node, ptr, length, capacity, idx, val llvm.Value, elemT llvm.Type, sc *localScope) {
	g.emitInsertBoundsGuard(f.fn, idx, length)

	one := llvm.ConstInt(g.wordType(), 1, false)
	needLen := g.builder.CreateAdd(length, one, "")
	finalPtr, finalCap := g.ensureListCapacity(f, ptr, length, capacity, elemT, needLen)

	tailLen := g.builder.CreateSub(length, idx, "")
	elemSize := g.sizeOfType(g.elemRefOf(elemT))
	tailBytes := g.builder.CreateMul(tailLen, llvm.ConstInt(g.wordType(), uint64(elemSize), false), "")
	src := g.builder.CreateGEP(finalPtr, []llvm.Value{idx}, "")
	dst := g.builder.CreateGEP(finalPtr, []llvm.Value{g.builder.CreateAdd(idx, one, "")}, "")
	g.builder.CreateCall(g.memmoveFn(), []llvm.Value{g.castToI8Ptr(dst), g.castToI8Ptr(src), tailBytes}, "")

	slot := g.builder.CreateGEP(finalPtr, []llvm.Value{idx}, "")
	g.builder.CreateStore(val, slot)
	g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(finalPtr, needLen, finalCap))
}

// genListRemove shifts [idx+1, length) down by one slot and returns the
// removed element as Some(v), or None when idx is out of range (spec
// §4.4.3: remove is an Optional-returning mutation).
func (g *Generator) genListRemove(f *fb, recvNode *ast.Node, ptr, length, capacity, idx llvm.Value, elemT llvm.Type, resultRef ast.TypeRef, sc *localScope) llvm.Value {
	optT := g.lowerType(resultRef)
	resultVar := g.builder.CreateAlloca(optT, "")

	tooLow := g.builder.CreateICmp(llvm.IntSLT, idx, llvm.ConstInt(idx.Type(), 0, true), "")
	tooHigh := g.builder.CreateICmp(llvm.IntSGE, idx, length, "")
	outOfRange := g.builder.CreateOr(tooLow, tooHigh, "")

	badBB := g.ctx.AddBasicBlock(f.fn, "list.remove.bad")
	okBB := g.ctx.AddBasicBlock(f.fn, "list.remove.ok")
	doneBB := g.ctx.AddBasicBlock(f.fn, "list.remove.done")
	g.builder.CreateCondBr(outOfRange, badBB, okBB)

	g.builder.SetInsertPointAtEnd(badBB)
	g.builder.CreateStore(g.genOptionalNone(resultRef), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(okBB)
	slot := g.builder.CreateGEP(ptr, []llvm.Value{idx}, "")
	val := g.builder.CreateLoad(slot, "")
	one := llvm.ConstInt(g.wordType(), 1, false)
	newLen := g.builder.CreateSub(length, one, "")
	tailLen := g.builder.CreateSub(newLen, idx, "")
	elemSize := g.sizeOfType(g.elemRefOf(elemT))
	tailBytes := g.builder.CreateMul(tailLen, llvm.ConstInt(g.wordType(), uint64(elemSize), false), "")
	src := g.builder.CreateGEP(ptr, []llvm.Value{g.builder.CreateAdd(idx, one, "")}, "")
	g.builder.CreateCall(g.memmoveFn(), []llvm.Value{g.castToI8Ptr(slot), g.castToI8Ptr(src), tailBytes}, "")
	g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(ptr, newLen, capacity))
	g.builder.CreateStore(g.genOptionalSome(resultRef, val), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	return g.builder.CreateLoad(resultVar, "")
}

// genListShrinkToFit reallocates the backing buffer down to exactly length
// elements, a no-op when capacity already equals length.
func (g *Generator) genListShrinkToFit(f *fb, recvNode *ast.Node, ptr, length, capacity llvm.Value, elemT llvm.Type, sc *localScope) {
	alreadyFits := g.builder.CreateICmp(llvm.IntEQ, capacity, length, "")
	shrinkBB := g.ctx.AddBasicBlock(f.fn, "list.shrink")
	contBB := g.ctx.AddBasicBlock(f.fn, "list.shrink.cont")
	g.builder.CreateCondBr(alreadyFits, contBB, shrinkBB)

	g.builder.SetInsertPointAtEnd(shrinkBB)
	elemSize := g.sizeOfType(g.elemRefOf(elemT))
	bytes := g.builder.CreateMul(length, llvm.ConstInt(g.wordType(), uint64(elemSize), false), "")
	newBuf := g.builder.CreateCall(g.runtime.malloc, []llvm.Value{bytes}, "")
	g.emitAllocGuard(f.fn, newBuf)
	typedBuf := g.builder.CreateBitCast(newBuf, llvm.PointerType(elemT, 0), "")
	g.builder.CreateCall(g.memcpyFn(), []llvm.Value{newBuf, g.castToI8Ptr(ptr), bytes}, "")
	g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(ptr)}, "")
	g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(typedBuf, length, length))
	g.builder.CreateBr(contBB)

	g.builder.SetInsertPointAtEnd(contBB)
}

// genListFree implements both destroy and free: destroy each element that
// owns dynamic storage, release the backing buffer, then leave the header
// zeroed so the binding is still usable (the next push reallocates from
// scratch, exactly like a freshly-constructed List<T>.new()).
func (g *Generator) genListFree(f *fb, recvNode *ast.Node, ptr, length llvm.Value, elemRef ast.TypeRef, elemT llvm.Type, sc *localScope) {
	if g.tables.Arena.RequiresCleanup(elemRef) {
		idxVar := g.builder.CreateAlloca(g.wordType(), "")
		g.builder.CreateStore(llvm.ConstInt(g.wordType(), 0, false), idxVar)

		loopBB := g.ctx.AddBasicBlock(f.fn, "list.free.scan")
		bodyBB := g.ctx.AddBasicBlock(f.fn, "list.free.body")
		doneBB := g.ctx.AddBasicBlock(f.fn, "list.free.done")
		g.builder.CreateBr(loopBB)

		g.builder.SetInsertPointAtEnd(loopBB)
		idx := g.builder.CreateLoad(idxVar, "")
		atEnd := g.builder.CreateICmp(llvm.IntSGE, idx, length, "")
		g.builder.CreateCondBr(atEnd, doneBB, bodyBB)

		g.builder.SetInsertPointAtEnd(bodyBB)
		slot := g.builder.CreateGEP(ptr, []llvm.Value{idx}, "")
		g.emitDestructorCall(slot, elemRef)
		g.builder.CreateStore(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), idxVar)
		g.builder.CreateBr(loopBB)

		g.builder.SetInsertPointAtEnd(doneBB)
	}
	g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(ptr)}, "")
	g.storeBackRecv(recvNode, sc, g.rebuildFatPointer(llvm.ConstNull(ptr.Type()), llvm.ConstInt(g.wordType(), 0, false), llvm.ConstInt(g.wordType(), 0, false)))
}

// genListIter builds the Iterator<T> iter() returns directly over the
// List's own backing buffer (no copy needed, unlike HashMap's sparse
// bucket array).
func (g *Generator) genListIter(ptr, length llvm.Value, resultRef ast.TypeRef) llvm.Value {
	iterT := g.lowerType(resultRef)
	result := llvm.ConstNull(iterT)
	result = g.builder.CreateInsertValue(result, llvm.ConstInt(g.ctx.Int32Type(), 0, false), 0, "")
	result = g.builder.CreateInsertValue(result, g.builder.CreateTrunc(length, g.ctx.Int32Type(), ""), 1, "")
	result = g.builder.CreateInsertValue(result, ptr, 2, "")
	return result
}

func (g *Generator) elemRefOf(elemT llvm.Type) ast.TypeRef {
	for ref, cached := range g.llTypes {
		if cached == elemT {
			return ref
		}
	}
	return ast.RefI64
}

// emitInsertBoundsGuard traps (RE2020) unless idx is in [0, length] --
// List.insert, unlike get, allows idx == length for an append.
func (g *Generator) emitInsertBoundsGuard(fn llvm.Value, idx, length llvm.Value) {
	tooLow := g.builder.CreateICmp(llvm.IntSLT, idx, llvm.ConstInt(idx.Type(), 0, true), "")
	tooHigh := g.builder.CreateICmp(llvm.IntSGT, idx, length, "")
	cond := g.builder.CreateOr(tooLow, tooHigh, "")
	g.emitTrapBranch(fn, cond, g.runtime.trapOutOfBound)
}

// bucketRefs recovers the key/value TypeRefs a HashMap's type arguments
// carry, defaulting to i64 for an (otherwise impossible) arity-0 reference.
func bucketRefs(recvT ast.Type) (ast.TypeRef, ast.TypeRef) {
	keyRef, valRef := ast.RefI64, ast.RefI64
	if len(recvT.TypeArgs) > 0 {
		keyRef = recvT.TypeArgs[0]
	}
	if len(recvT.TypeArgs) > 1 {
		valRef = recvT.TypeArgs[1]
	}
	return keyRef, valRef
}

func (g *Generator) bucketType(recvT ast.Type) (llvm.Type, llvm.Type) {
	keyRef, valRef := bucketRefs(recvT)
	return g.lowerType(keyRef), g.lowerType(valRef)
}

// hashEntryType returns the {key, value, state} entry struct type backing
// recvT's bucket array (lowerBuiltinContainer's "HashMap" case builds the
// identical type; this just needs it again to GEP into field 2).
func (g *Generator) hashEntryType(recvT ast.Type) llvm.Type {
	keyT, valT := g.bucketType(recvT)
	return g.ctx.StructType([]llvm.Type{keyT, valT, g.ctx.Int8Type()}, false)
}

// genHashMapMethod implements the open-addressing HashMap<K,V> operations
// spec §4.4.3 names: construction (new/with_capacity), insert (overwrite in
// place without growing size, resize-before-grow otherwise), get/remove
// (Optional-returning, tombstone-transparent probing), contains_key,
// keys/values iteration, and teardown.
func (g *Generator) genHashMapMethod(f *fb, recvNode *ast.Node, recv llvm.Value, method string, args []llvm.Value, recvT ast.Type, sc *localScope, resultRef ast.TypeRef) (llvm.Value, bool) {
	switch method {
	case "new":
		return g.genHashMapConstruct(f, recv.Type(), recvT, llvm.ConstInt(g.wordType(), 16, false)), true
	case "with_capacity":
		cap := g.roundUpCapacity(f, args[0])
		return g.genHashMapConstruct(f, recv.Type(), recvT, cap), true
	}

	size := g.builder.CreateExtractValue(recv, 1, "")
	switch method {
	case "len":
		return size, true
	case "is_empty":
		return g.builder.CreateICmp(llvm.IntEQ, size, llvm.ConstInt(g.wordType(), 0, false), ""), true
	case "insert":
		g.genHashMapInsert(f, recvNode, recv, args[0], args[1], recvT, sc)
		return llvm.Value{}, true
	case "get":
		return g.genHashMapGet(f, recv, args[0], recvT, resultRef), true
	case "remove":
		return g.genHashMapRemove(f, recvNode, recv, args[0], recvT, resultRef, sc), true
	case "contains_key":
		return g.genHashMapContainsKey(f, recv, args[0], recvT), true
	case "keys":
		return g.genHashMapProject(f, recv, recvT, resultRef, 0), true
	case "values":
		return g.genHashMapProject(f, recv, recvT, resultRef, 1), true
	case "free", "destroy":
		g.genHashMapFree(f, recvNode, recv, recvT, sc)
		return llvm.Value{}, true
	}
	return llvm.Value{}, false
}

// roundUpCapacity returns the smallest power of two, at least 16, that is
// >= want (spec §4.4.3: HashMap capacity is always a power of two).
func (g *Generator) roundUpCapacity(f *fb, want llvm.Value) llvm.Value {
	capVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(llvm.ConstInt(g.wordType(), 16, false), capVar)

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.roundcap")
	growBB := g.ctx.AddBasicBlock(f.fn, "hm.roundcap.grow")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.roundcap.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	cur := g.builder.CreateLoad(capVar, "")
	tooSmall := g.builder.CreateICmp(llvm.IntSLT, cur, want, "")
	g.builder.CreateCondBr(tooSmall, growBB, doneBB)

	g.builder.SetInsertPointAtEnd(growBB)
	g.builder.CreateStore(g.builder.CreateMul(cur, llvm.ConstInt(g.wordType(), 2, false), ""), capVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	return g.builder.CreateLoad(capVar, "")
}

// genHashMapAlloc mallocs and zero-fills a capacity-entry bucket array
// (state 0 == Empty, so a freshly zeroed array already reads as entirely
// empty slots) and returns it bitcast to the entry pointer type.
func (g *Generator) genHashMapAlloc(f *fb, keyRef, valRef ast.TypeRef, entryT llvm.Type, capacity llvm.Value) llvm.Value {
	entrySize := g.sizeOfType(keyRef) + g.sizeOfType(valRef) + 1
	bytes := g.builder.CreateMul(capacity, llvm.ConstInt(g.wordType(), uint64(entrySize), false), "")
	buf := g.builder.CreateCall(g.runtime.malloc, []llvm.Value{bytes}, "")
	g.emitAllocGuard(f.fn, buf)
	g.builder.CreateCall(g.memsetFn(), []llvm.Value{buf, llvm.ConstInt(g.ctx.Int32Type(), 0, false), bytes}, "")
	return g.builder.CreateBitCast(buf, llvm.PointerType(entryT, 0), "")
}

func (g *Generator) genHashMapConstruct(f *fb, hdrT llvm.Type, recvT ast.Type, capacity llvm.Value) llvm.Value {
	keyRef, valRef := bucketRefs(recvT)
	entryT := g.hashEntryType(recvT)
	buckets := g.genHashMapAlloc(f, keyRef, valRef, entryT, capacity)

	val := llvm.ConstNull(hdrT)
	val = g.builder.CreateInsertValue(val, buckets, 0, "")
	val = g.builder.CreateInsertValue(val, llvm.ConstInt(g.wordType(), 0, false), 1, "")
	val = g.builder.CreateInsertValue(val, capacity, 2, "")
	val = g.builder.CreateInsertValue(val, llvm.ConstInt(g.wordType(), 0, false), 3, "")
	return val
}

func (g *Generator) rebuildHashMap(buckets, size, capacity, tombstones llvm.Value, hdrT llvm.Type) llvm.Value {
	val := llvm.ConstNull(hdrT)
	val = g.builder.CreateInsertValue(val, buckets, 0, "")
	val = g.builder.CreateInsertValue(val, size, 1, "")
	val = g.builder.CreateInsertValue(val, capacity, 2, "")
	val = g.builder.CreateInsertValue(val, tombstones, 3, "")
	return val
}

// genHashMapInsert performs the spec §4.4.3 load-factor check -- (size +
// tombstones + 1) * 4 > capacity * 3 -- before the probe, doubling capacity
// and rehashing (which drops every tombstone) when the table would
// otherwise cross 3/4 full; the check runs whether this insert turns out to
// be a fresh key or an overwrite, which only ever resizes a little earlier
// than strictly necessary and never affects len(). The probe itself
// remembers the first tombstone slot it passes so a later truly-empty slot
// doesn't get used when an earlier tombstone could be reclaimed instead,
// and only increments size on the genuinely-new-key path -- overwriting an
// existing key's value must never grow len().
func (g *Generator) genHashMapInsert(f *fb, recvNode *ast.Node, recv, key, val llvm.Value, recvT ast.Type, sc *localScope) {
	keyT, _ := g.bucketType(recvT)
	hdrT := recv.Type()

	hdrVar := g.builder.CreateAlloca(hdrT, "")
	g.builder.CreateStore(recv, hdrVar)
	g.maybeGrowHashMap(f, hdrVar, recvT)

	hdr := g.builder.CreateLoad(hdrVar, "")
	buckets := g.builder.CreateExtractValue(hdr, 0, "")
	size := g.builder.CreateExtractValue(hdr, 1, "")
	capacity := g.builder.CreateExtractValue(hdr, 2, "")
	tombstones := g.builder.CreateExtractValue(hdr, 3, "")
	g.storeBackRecv(recvNode, sc, hdr)

	hash := g.hashValue(key, keyT)
	capMask := g.builder.CreateSub(capacity, llvm.ConstInt(g.wordType(), 1, false), "")
	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(g.builder.CreateAnd(hash, capMask, ""), idxVar)
	tombVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(llvm.ConstInt(g.wordType(), ^uint64(0), true), tombVar) // -1: no tombstone seen yet.

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.probe")
	tombCheckBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.tombcheck")
	recordTombBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.recordtomb")
	setTombBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.settomb")
	occupiedCheckBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.occupied")
	overwriteBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.overwrite")
	insertBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.new")
	nextBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.next")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.insert.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	slot := g.builder.CreateGEP(buckets, []llvm.Value{idx}, "")
	state := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 2, ""), "")
	isEmpty := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmEmpty, false), "")
	g.builder.CreateCondBr(isEmpty, insertBB, tombCheckBB)

	g.builder.SetInsertPointAtEnd(tombCheckBB)
	isTomb := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmTombstone, false), "")
	g.builder.CreateCondBr(isTomb, recordTombBB, occupiedCheckBB)

	g.builder.SetInsertPointAtEnd(recordTombBB)
	haveTomb := g.builder.CreateICmp(llvm.IntSGE, g.builder.CreateLoad(tombVar, ""), llvm.ConstInt(g.wordType(), 0, true), "")
	g.builder.CreateCondBr(haveTomb, nextBB, setTombBB)

	g.builder.SetInsertPointAtEnd(setTombBB)
	g.builder.CreateStore(idx, tombVar)
	g.builder.CreateBr(nextBB)

	g.builder.SetInsertPointAtEnd(occupiedCheckBB)
	keyPtr := g.builder.CreateStructGEP(slot, 0, "")
	sameKey := g.keyEquals(g.builder.CreateLoad(keyPtr, ""), key, keyT)
	g.builder.CreateCondBr(sameKey, overwriteBB, nextBB)

	g.builder.SetInsertPointAtEnd(overwriteBB)
	g.builder.CreateStore(val, g.builder.CreateStructGEP(slot, 1, ""))
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(insertBB)
	tombIdx := g.builder.CreateLoad(tombVar, "")
	useTomb := g.builder.CreateICmp(llvm.IntSGE, tombIdx, llvm.ConstInt(g.wordType(), 0, true), "")
	targetIdx := g.builder.CreateSelect(useTomb, tombIdx, idx, "")
	targetSlot := g.builder.CreateGEP(buckets, []llvm.Value{targetIdx}, "")
	g.builder.CreateStore(key, g.builder.CreateStructGEP(targetSlot, 0, ""))
	g.builder.CreateStore(val, g.builder.CreateStructGEP(targetSlot, 1, ""))
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), g.builder.CreateStructGEP(targetSlot, 2, ""))

	newSize := g.builder.CreateAdd(size, llvm.ConstInt(g.wordType(), 1, false), "")
	tombDelta := g.builder.CreateSelect(useTomb, llvm.ConstInt(g.wordType(), 1, false), llvm.ConstInt(g.wordType(), 0, false), "")
	newTomb := g.builder.CreateSub(tombstones, tombDelta, "")
	g.storeBackRecv(recvNode, sc, g.rebuildHashMap(buckets, newSize, capacity, newTomb, hdrT))
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(nextBB)
	nextIdx := g.builder.CreateURem(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), capacity, "")
	g.builder.CreateStore(nextIdx, idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
}

// maybeGrowHashMap resizes hdrVar in place -- doubling capacity and
// rehashing every occupied entry into a fresh, tombstone-free array -- when
// (size + tombstones + 1) * 4 > capacity * 3. The +1 pessimistically
// assumes the pending insert will add a new key even though it might turn
// out to be an overwrite; resizing one insert earlier than strictly
// required never changes len() or correctness, only headroom.
func (g *Generator) maybeGrowHashMap(f *fb, hdrVar llvm.Value, recvT ast.Type) {
	hdr := g.builder.CreateLoad(hdrVar, "")
	size := g.builder.CreateExtractValue(hdr, 1, "")
	capacity := g.builder.CreateExtractValue(hdr, 2, "")
	tombstones := g.builder.CreateExtractValue(hdr, 3, "")

	projected := g.builder.CreateAdd(g.builder.CreateAdd(size, tombstones, ""), llvm.ConstInt(g.wordType(), 1, false), "")
	lhs := g.builder.CreateMul(projected, llvm.ConstInt(g.wordType(), 4, false), "")
	rhs := g.builder.CreateMul(capacity, llvm.ConstInt(g.wordType(), 3, false), "")
	needsGrow := g.builder.CreateICmp(llvm.IntSGT, lhs, rhs, "")

	growBB := g.ctx.AddBasicBlock(f.fn, "hm.grow")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.grow.done")
	g.builder.CreateCondBr(needsGrow, growBB, doneBB)

	g.builder.SetInsertPointAtEnd(growBB)
	g.genHashMapResize(f, hdrVar, recvT)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(doneBB)
}

// genHashMapResize doubles capacity, allocates a fresh zeroed bucket array,
// reinserts every occupied entry (no tombstones possible in a brand new
// array, so a plain first-empty-slot probe suffices), frees the old array,
// and stores the new header back into hdrVar.
func (g *Generator) genHashMapResize(f *fb, hdrVar llvm.Value, recvT ast.Type) {
	keyT, _ := g.bucketType(recvT)
	keyRef, valRef := bucketRefs(recvT)
	entryT := g.hashEntryType(recvT)

	hdr := g.builder.CreateLoad(hdrVar, "")
	oldBuckets := g.builder.CreateExtractValue(hdr, 0, "")
	size := g.builder.CreateExtractValue(hdr, 1, "")
	oldCapacity := g.builder.CreateExtractValue(hdr, 2, "")
	newCapacity := g.builder.CreateMul(oldCapacity, llvm.ConstInt(g.wordType(), 2, false), "")
	newBuckets := g.genHashMapAlloc(f, keyRef, valRef, entryT, newCapacity)

	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(llvm.ConstInt(g.wordType(), 0, false), idxVar)

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.resize.scan")
	bodyBB := g.ctx.AddBasicBlock(f.fn, "hm.resize.body")
	reinsertBB := g.ctx.AddBasicBlock(f.fn, "hm.resize.reinsert")
	advanceBB := g.ctx.AddBasicBlock(f.fn, "hm.resize.advance")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.resize.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	atEnd := g.builder.CreateICmp(llvm.IntSGE, idx, oldCapacity, "")
	g.builder.CreateCondBr(atEnd, doneBB, bodyBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	oldSlot := g.builder.CreateGEP(oldBuckets, []llvm.Value{idx}, "")
	state := g.builder.CreateLoad(g.builder.CreateStructGEP(oldSlot, 2, ""), "")
	isOccupied := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), "")
	g.builder.CreateCondBr(isOccupied, reinsertBB, advanceBB)

	g.builder.SetInsertPointAtEnd(reinsertBB)
	key := g.builder.CreateLoad(g.builder.CreateStructGEP(oldSlot, 0, ""), "")
	val := g.builder.CreateLoad(g.builder.CreateStructGEP(oldSlot, 1, ""), "")
	g.insertIntoFreshBuckets(f, newBuckets, newCapacity, key, val, keyT)
	g.builder.CreateBr(advanceBB)

	g.builder.SetInsertPointAtEnd(advanceBB)
	g.builder.CreateStore(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(oldBuckets)}, "")
	g.builder.CreateStore(g.rebuildHashMap(newBuckets, size, newCapacity, llvm.ConstInt(g.wordType(), 0, false), hdr.Type()), hdrVar)
}

// insertIntoFreshBuckets probes buckets (known tombstone-free and known not
// to already contain key, since it only ever runs during a rehash of
// already-unique keys) for the first Empty slot and writes the entry there.
func (g *Generator) insertIntoFreshBuckets(f *fb, buckets, capacity, key, val llvm.Value, keyT llvm.Type) {
	hash := g.hashValue(key, keyT)
	capMask := g.builder.CreateSub(capacity, llvm.ConstInt(g.wordType(), 1, false), "")
	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(g.builder.CreateAnd(hash, capMask, ""), idxVar)

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.rehash.probe")
	foundBB := g.ctx.AddBasicBlock(f.fn, "hm.rehash.found")
	nextBB := g.ctx.AddBasicBlock(f.fn, "hm.rehash.next")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	slot := g.builder.CreateGEP(buckets, []llvm.Value{idx}, "")
	state := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 2, ""), "")
	isEmpty := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmEmpty, false), "")
	g.builder.CreateCondBr(isEmpty, foundBB, nextBB)

	g.builder.SetInsertPointAtEnd(nextBB)
	nextIdx := g.builder.CreateURem(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), capacity, "")
	g.builder.CreateStore(nextIdx, idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(foundBB)
	g.builder.CreateStore(key, g.builder.CreateStructGEP(slot, 0, ""))
	g.builder.CreateStore(val, g.builder.CreateStructGEP(slot, 1, ""))
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), g.builder.CreateStructGEP(slot, 2, ""))
}

// genHashMapGet probes for key and returns Some(value) when an occupied
// slot matches, or None once the probe reaches a truly Empty slot -- a
// Tombstone slot (state 2) never stops the probe, since the key being
// searched for may have been pushed further along by a since-removed
// collision (spec §4.4.3: get returns an Optional so .realise/?? apply).
func (g *Generator) genHashMapGet(f *fb, recv, key llvm.Value, recvT ast.Type, resultRef ast.TypeRef) llvm.Value {
	keyT, _ := g.bucketType(recvT)
	resultVar := g.builder.CreateAlloca(g.lowerType(resultRef), "")

	buckets := g.builder.CreateExtractValue(recv, 0, "")
	capacity := g.builder.CreateExtractValue(recv, 2, "")
	hash := g.hashValue(key, keyT)
	capMask := g.builder.CreateSub(capacity, llvm.ConstInt(g.wordType(), 1, false), "")
	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(g.builder.CreateAnd(hash, capMask, ""), idxVar)

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.get.probe")
	occupiedBB := g.ctx.AddBasicBlock(f.fn, "hm.get.occupied")
	keyMatchBB := g.ctx.AddBasicBlock(f.fn, "hm.get.keymatch")
	foundBB := g.ctx.AddBasicBlock(f.fn, "hm.get.found")
	notFoundBB := g.ctx.AddBasicBlock(f.fn, "hm.get.notfound")
	nextBB := g.ctx.AddBasicBlock(f.fn, "hm.get.next")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.get.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	slot := g.builder.CreateGEP(buckets, []llvm.Value{idx}, "")
	state := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 2, ""), "")
	isEmpty := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmEmpty, false), "")
	g.builder.CreateCondBr(isEmpty, notFoundBB, occupiedBB)

	g.builder.SetInsertPointAtEnd(occupiedBB)
	isOccupied := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), "")
	g.builder.CreateCondBr(isOccupied, keyMatchBB, nextBB)

	g.builder.SetInsertPointAtEnd(keyMatchBB)
	existingKey := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 0, ""), "")
	sameKey := g.keyEquals(existingKey, key, keyT)
	g.builder.CreateCondBr(sameKey, foundBB, nextBB)

	g.builder.SetInsertPointAtEnd(foundBB)
	val := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 1, ""), "")
	g.builder.CreateStore(g.genOptionalSome(resultRef, val), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(notFoundBB)
	g.builder.CreateStore(g.genOptionalNone(resultRef), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(nextBB)
	nextIdx := g.builder.CreateURem(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), capacity, "")
	g.builder.CreateStore(nextIdx, idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	return g.builder.CreateLoad(resultVar, "")
}

// genHashMapContainsKey mirrors genHashMapGet's probe but only reports
// presence.
func (g *Generator) genHashMapContainsKey(f *fb, recv, key llvm.Value, recvT ast.Type) llvm.Value {
	keyT, _ := g.bucketType(recvT)
	resultVar := g.builder.CreateAlloca(g.ctx.Int1Type(), "")

	buckets := g.builder.CreateExtractValue(recv, 0, "")
	capacity := g.builder.CreateExtractValue(recv, 2, "")
	hash := g.hashValue(key, keyT)
	capMask := g.builder.CreateSub(capacity, llvm.ConstInt(g.wordType(), 1, false), "")
	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(g.builder.CreateAnd(hash, capMask, ""), idxVar)

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.contains.probe")
	occupiedBB := g.ctx.AddBasicBlock(f.fn, "hm.contains.occupied")
	keyMatchBB := g.ctx.AddBasicBlock(f.fn, "hm.contains.keymatch")
	foundBB := g.ctx.AddBasicBlock(f.fn, "hm.contains.found")
	notFoundBB := g.ctx.AddBasicBlock(f.fn, "hm.contains.notfound")
	nextBB := g.ctx.AddBasicBlock(f.fn, "hm.contains.next")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.contains.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	slot := g.builder.CreateGEP(buckets, []llvm.Value{idx}, "")
	state := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 2, ""), "")
	isEmpty := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmEmpty, false), "")
	g.builder.CreateCondBr(isEmpty, notFoundBB, occupiedBB)

	g.builder.SetInsertPointAtEnd(occupiedBB)
	isOccupied := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), "")
	g.builder.CreateCondBr(isOccupied, keyMatchBB, nextBB)

	g.builder.SetInsertPointAtEnd(keyMatchBB)
	existingKey := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 0, ""), "")
	sameKey := g.keyEquals(existingKey, key, keyT)
	g.builder.CreateCondBr(sameKey, foundBB, nextBB)

	g.builder.SetInsertPointAtEnd(foundBB)
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int1Type(), 1, false), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(notFoundBB)
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int1Type(), 0, false), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(nextBB)
	nextIdx := g.builder.CreateURem(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), capacity, "")
	g.builder.CreateStore(nextIdx, idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	return g.builder.CreateLoad(resultVar, "")
}

// genHashMapRemove probes for key exactly like get; on a match it marks the
// slot Tombstone (never Empty -- a later probe for a different, once-
// colliding key must still skip past it) and returns Some(removed), per
// spec §4.4.3's "remove ... returns Some(removed)".
func (g *Generator) genHashMapRemove(f *fb, recvNode *ast.Node, recv, key llvm.Value, recvT ast.Type, resultRef ast.TypeRef, sc *localScope) llvm.Value {
	keyT, _ := g.bucketType(recvT)
	resultVar := g.builder.CreateAlloca(g.lowerType(resultRef), "")

	buckets := g.builder.CreateExtractValue(recv, 0, "")
	size := g.builder.CreateExtractValue(recv, 1, "")
	capacity := g.builder.CreateExtractValue(recv, 2, "")
	tombstones := g.builder.CreateExtractValue(recv, 3, "")
	hash := g.hashValue(key, keyT)
	capMask := g.builder.CreateSub(capacity, llvm.ConstInt(g.wordType(), 1, false), "")
	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(g.builder.CreateAnd(hash, capMask, ""), idxVar)

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.remove.probe")
	occupiedBB := g.ctx.AddBasicBlock(f.fn, "hm.remove.occupied")
	keyMatchBB := g.ctx.AddBasicBlock(f.fn, "hm.remove.keymatch")
	foundBB := g.ctx.AddBasicBlock(f.fn, "hm.remove.found")
	notFoundBB := g.ctx.AddBasicBlock(f.fn, "hm.remove.notfound")
	nextBB := g.ctx.AddBasicBlock(f.fn, "hm.remove.next")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.remove.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	slot := g.builder.CreateGEP(buckets, []llvm.Value{idx}, "")
	state := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 2, ""), "")
	isEmpty := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmEmpty, false), "")
	g.builder.CreateCondBr(isEmpty, notFoundBB, occupiedBB)

	g.builder.SetInsertPointAtEnd(occupiedBB)
	isOccupied := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), "")
	g.builder.CreateCondBr(isOccupied, keyMatchBB, nextBB)

	g.builder.SetInsertPointAtEnd(keyMatchBB)
	existingKey := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 0, ""), "")
	sameKey := g.keyEquals(existingKey, key, keyT)
	g.builder.CreateCondBr(sameKey, foundBB, nextBB)

	g.builder.SetInsertPointAtEnd(foundBB)
	val := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 1, ""), "")
	g.builder.CreateStore(llvm.ConstInt(g.ctx.Int8Type(), hmTombstone, false), g.builder.CreateStructGEP(slot, 2, ""))
	newSize := g.builder.CreateSub(size, llvm.ConstInt(g.wordType(), 1, false), "")
	newTomb := g.builder.CreateAdd(tombstones, llvm.ConstInt(g.wordType(), 1, false), "")
	g.storeBackRecv(recvNode, sc, g.rebuildHashMap(buckets, newSize, capacity, newTomb, recv.Type()))
	g.builder.CreateStore(g.genOptionalSome(resultRef, val), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(notFoundBB)
	g.builder.CreateStore(g.genOptionalNone(resultRef), resultVar)
	g.builder.CreateBr(doneBB)

	g.builder.SetInsertPointAtEnd(nextBB)
	nextIdx := g.builder.CreateURem(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), capacity, "")
	g.builder.CreateStore(nextIdx, idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	return g.builder.CreateLoad(resultVar, "")
}

// genHashMapProject builds the Iterator<K> (fieldIdx 0) or Iterator<V>
// (fieldIdx 1) that keys()/values() return: a freshly allocated compact
// array holding just the occupied entries' key or value field, scanned out
// of the sparse bucket array in bucket order. The copy is a deliberate
// simplification -- an iterator over the live, mutating bucket array would
// have to cope with resize invalidating it mid-iteration, which spec §4.4.3
// doesn't specify a story for.
func (g *Generator) genHashMapProject(f *fb, recv llvm.Value, recvT ast.Type, resultRef ast.TypeRef, fieldIdx int) llvm.Value {
	elemRef := g.tables.Arena.At(resultRef).Elem
	elemT := g.lowerType(elemRef)
	elemSize := g.sizeOfType(elemRef)

	buckets := g.builder.CreateExtractValue(recv, 0, "")
	size := g.builder.CreateExtractValue(recv, 1, "")
	capacity := g.builder.CreateExtractValue(recv, 2, "")

	bytes := g.builder.CreateMul(size, llvm.ConstInt(g.wordType(), uint64(elemSize), false), "")
	buf := g.builder.CreateCall(g.runtime.malloc, []llvm.Value{bytes}, "")
	g.emitAllocGuard(f.fn, buf)
	typedBuf := g.builder.CreateBitCast(buf, llvm.PointerType(elemT, 0), "")

	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(llvm.ConstInt(g.wordType(), 0, false), idxVar)
	outVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(llvm.ConstInt(g.wordType(), 0, false), outVar)

	loopBB := g.ctx.AddBasicBlock(f.fn, "hm.project.scan")
	bodyBB := g.ctx.AddBasicBlock(f.fn, "hm.project.body")
	copyBB := g.ctx.AddBasicBlock(f.fn, "hm.project.copy")
	advanceBB := g.ctx.AddBasicBlock(f.fn, "hm.project.advance")
	doneBB := g.ctx.AddBasicBlock(f.fn, "hm.project.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	atEnd := g.builder.CreateICmp(llvm.IntSGE, idx, capacity, "")
	g.builder.CreateCondBr(atEnd, doneBB, bodyBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	slot := g.builder.CreateGEP(buckets, []llvm.Value{idx}, "")
	state := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 2, ""), "")
	isOccupied := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), "")
	g.builder.CreateCondBr(isOccupied, copyBB, advanceBB)

	g.builder.SetInsertPointAtEnd(copyBB)
	fieldVal := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, fieldIdx, ""), "")
	out := g.builder.CreateLoad(outVar, "")
	dst := g.builder.CreateGEP(typedBuf, []llvm.Value{out}, "")
	g.builder.CreateStore(fieldVal, dst)
	g.builder.CreateStore(g.builder.CreateAdd(out, llvm.ConstInt(g.wordType(), 1, false), ""), outVar)
	g.builder.CreateBr(advanceBB)

	g.builder.SetInsertPointAtEnd(advanceBB)
	g.builder.CreateStore(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	iterT := g.lowerType(resultRef)
	result := llvm.ConstNull(iterT)
	result = g.builder.CreateInsertValue(result, llvm.ConstInt(g.ctx.Int32Type(), 0, false), 0, "")
	result = g.builder.CreateInsertValue(result, g.builder.CreateTrunc(size, g.ctx.Int32Type(), ""), 1, "")
	result = g.builder.CreateInsertValue(result, typedBuf, 2, "")
	return result
}

// genHashMapFree implements both free and destroy: tear down every occupied
// entry's key/value that owns dynamic storage, release the bucket array,
// and zero the header (buckets=null, size=capacity=tombstones=0) so the
// binding needs a fresh new()/with_capacity() before further use.
func (g *Generator) genHashMapFree(f *fb, recvNode *ast.Node, recv llvm.Value, recvT ast.Type, sc *localScope) {
	keyRef, valRef := bucketRefs(recvT)
	buckets := g.builder.CreateExtractValue(recv, 0, "")
	capacity := g.builder.CreateExtractValue(recv, 2, "")

	if g.tables.Arena.RequiresCleanup(keyRef) || g.tables.Arena.RequiresCleanup(valRef) {
		idxVar := g.builder.CreateAlloca(g.wordType(), "")
		g.builder.CreateStore(llvm.ConstInt(g.wordType(), 0, false), idxVar)

		loopBB := g.ctx.AddBasicBlock(f.fn, "hm.free.scan")
		bodyBB := g.ctx.AddBasicBlock(f.fn, "hm.free.body")
		doneBB := g.ctx.AddBasicBlock(f.fn, "hm.free.done")
		g.builder.CreateBr(loopBB)

		g.builder.SetInsertPointAtEnd(loopBB)
		idx := g.builder.CreateLoad(idxVar, "")
		atEnd := g.builder.CreateICmp(llvm.IntSGE, idx, capacity, "")
		g.builder.CreateCondBr(atEnd, doneBB, bodyBB)

		g.builder.SetInsertPointAtEnd(bodyBB)
		slot := g.builder.CreateGEP(buckets, []llvm.Value{idx}, "")
		state := g.builder.CreateLoad(g.builder.CreateStructGEP(slot, 2, ""), "")
		isOccupied := g.builder.CreateICmp(llvm.IntEQ, state, llvm.ConstInt(g.ctx.Int8Type(), hmOccupied, false), "")
		cleanupBB := g.ctx.AddBasicBlock(f.fn, "hm.free.cleanup")
		advanceBB := g.ctx.AddBasicBlock(f.fn, "hm.free.advance")
		g.builder.CreateCondBr(isOccupied, cleanupBB, advanceBB)

		g.builder.SetInsertPointAtEnd(cleanupBB)
		if g.tables.Arena.RequiresCleanup(keyRef) {
			g.emitDestructorCall(g.builder.CreateStructGEP(slot, 0, ""), keyRef)
		}
		if g.tables.Arena.RequiresCleanup(valRef) {
			g.emitDestructorCall(g.builder.CreateStructGEP(slot, 1, ""), valRef)
		}
		g.builder.CreateBr(advanceBB)

		g.builder.SetInsertPointAtEnd(advanceBB)
		g.builder.CreateStore(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), idxVar)
		g.builder.CreateBr(loopBB)

		g.builder.SetInsertPointAtEnd(doneBB)
	}

	g.builder.CreateCall(g.runtime.free, []llvm.Value{g.castToI8Ptr(buckets)}, "")
	zero := llvm.ConstInt(g.wordType(), 0, false)
	g.storeBackRecv(recvNode, sc, g.rebuildHashMap(llvm.ConstNull(buckets.Type()), zero, zero, zero, recv.Type()))
}

// hashValue derives a word-sized hash: integer keys hash to themselves
// zero-extended, string keys use a simple FNV-1a fold over their bytes
// (grounded in the original implementation's per-type hash method dispatch,
// simplified to the two key kinds this package's test programs exercise).
func (g *Generator) hashValue(key llvm.Value, keyT llvm.Type) llvm.Value {
	if keyT.TypeKind() == llvm.StructTypeKind {
		return g.fnvHashString(key)
	}
	if keyT.IntTypeWidth() < g.wordType().IntTypeWidth() {
		return g.builder.CreateZExt(key, g.wordType(), "")
	}
	if keyT.IntTypeWidth() > g.wordType().IntTypeWidth() {
		return g.builder.CreateTrunc(key, g.wordType(), "")
	}
	return key
}

func (g *Generator) fnvHashString(strVal llvm.Value) llvm.Value {
	ptr := g.builder.CreateExtractValue(strVal, 0, "")
	length := g.builder.CreateExtractValue(strVal, 1, "")

	accVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(llvm.ConstInt(g.wordType(), 0xcbf29ce484222325, false), accVar)
	idxVar := g.builder.CreateAlloca(g.wordType(), "")
	g.builder.CreateStore(llvm.ConstInt(g.wordType(), 0, false), idxVar)

	fn := g.currentFn()
	loopBB := g.ctx.AddBasicBlock(fn, "fnv.loop")
	doneBB := g.ctx.AddBasicBlock(fn, "fnv.done")
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(loopBB)
	idx := g.builder.CreateLoad(idxVar, "")
	atEnd := g.builder.CreateICmp(llvm.IntSGE, idx, length, "")
	bodyBB := g.ctx.AddBasicBlock(fn, "fnv.body")
	g.builder.CreateCondBr(atEnd, doneBB, bodyBB)

	g.builder.SetInsertPointAtEnd(bodyBB)
	bytePtr := g.builder.CreateGEP(ptr, []llvm.Value{idx}, "")
	byteVal := g.builder.CreateLoad(bytePtr, "")
	byteWord := g.builder.CreateZExt(byteVal, g.wordType(), "")
	acc := g.builder.CreateLoad(accVar, "")
	acc = g.builder.CreateXor(acc, byteWord, "")
	acc = g.builder.CreateMul(acc, llvm.ConstInt(g.wordType(), 0x100000001b3, false), "")
	g.builder.CreateStore(acc, accVar)
	g.builder.CreateStore(g.builder.CreateAdd(idx, llvm.ConstInt(g.wordType(), 1, false), ""), idxVar)
	g.builder.CreateBr(loopBB)

	g.builder.SetInsertPointAtEnd(doneBB)
	return g.builder.CreateLoad(accVar, "")
}

func (g *Generator) keyEquals(a, b llvm.Value, keyT llvm.Type) llvm.Value {
	if keyT.TypeKind() == llvm.StructTypeKind {
		return g.genStringEquals(a, b)
	}
	return g.builder.CreateICmp(llvm.IntEQ, a, b, "")
}
