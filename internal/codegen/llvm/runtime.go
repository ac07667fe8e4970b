package llvm

import "tinygo.org/x/go-llvm"

// runtimeHelpers holds the small set of trap/abort functions generated code
// calls into for the checks spec §4.4.6 requires at every unsafe operation:
// integer division, array indexing, and heap allocation.
type runtimeHelpers struct {
	trapDivByZero  llvm.Value
	trapOutOfBound llvm.Value
	trapAllocFail  llvm.Value
	puts           llvm.Value
	exit           llvm.Value
	malloc         llvm.Value
	free           llvm.Value
}

// declareRuntimeHelpers declares (without defining) the libc entry points
// every trap needs, plus one small defined wrapper per RExxxx condition
// that prints a fixed diagnostic string and calls exit(2) -- mirroring
// spec §6's "runtime errors exit with status 2" contract. Every trap body
// is defined here, up front, whether or not any function uses it.
func declareRuntimeHelpers(g *Generator) runtimeHelpers {
	i8ptr := llvm.PointerType(g.ctx.Int8Type(), 0)

	putsT := llvm.FunctionType(g.ctx.Int32Type(), []llvm.Type{i8ptr}, false)
	puts := llvm.AddFunction(g.mod, "puts", putsT)

	exitT := llvm.FunctionType(g.ctx.VoidType(), []llvm.Type{g.ctx.Int32Type()}, false)
	exit := llvm.AddFunction(g.mod, "exit", exitT)
	exit.AddFunctionAttr(llvm.NoReturnAttr)

	mallocT := llvm.FunctionType(i8ptr, []llvm.Type{g.wordType()}, false)
	malloc := llvm.AddFunction(g.mod, "malloc", mallocT)

	freeT := llvm.FunctionType(g.ctx.VoidType(), []llvm.Type{i8ptr}, false)
	free := llvm.AddFunction(g.mod, "free", freeT)

	h := runtimeHelpers{puts: puts, exit: exit, malloc: malloc, free: free}
	h.trapDivByZero = g.defineTrap("sushi_rt_trap_RE2010", "division by zero", puts, exit)
	h.trapOutOfBound = g.defineTrap("sushi_rt_trap_RE2020", "array index out of bounds", puts, exit)
	h.trapAllocFail = g.defineTrap("sushi_rt_trap_RE2030", "allocation failure", puts, exit)
	return h
}

// defineTrap emits a small no-argument, no-return function that prints msg
// to stderr-equivalent (puts, for simplicity — the teacher's own runtime
// glue favors libc calls over hand-rolled syscalls) and exits with status 2.
func (g *Generator) defineTrap(name, msg string, puts, exit llvm.Value) llvm.Value {
	fnType := llvm.FunctionType(g.ctx.VoidType(), nil, false)
	fn := llvm.AddFunction(g.mod, name, fnType)
	fn.AddFunctionAttr(llvm.NoReturnAttr)

	entry := g.ctx.AddBasicBlock(fn, "entry")
	b := g.ctx.NewBuilder()
	defer b.Dispose()
	b.SetInsertPointAtEnd(entry)

	str := b.CreateGlobalStringPtr(msg, name+".msg")
	b.CreateCall(puts, []llvm.Value{str}, "")
	b.CreateCall(exit, []llvm.Value{llvm.ConstInt(g.ctx.Int32Type(), 2, false)}, "")
	b.CreateUnreachable()
	return fn
}

// emitDivGuard emits a branch that calls the RE2010 trap when divisor is
// the integer zero constant for its type, before the actual division
// instruction executes.
func (g *Generator) emitDivGuard(fn llvm.Value, divisor llvm.Value) {
	zero := llvm.ConstInt(divisor.Type(), 0, false)
	cond := g.builder.CreateICmp(llvm.IntEQ, divisor, zero, "divzero")
	g.emitTrapBranch(fn, cond, g.runtime.trapDivByZero)
}

// emitBoundsGuard emits a branch that calls the RE2020 trap when index is
// outside [0, length).
func (g *Generator) emitBoundsGuard(fn llvm.Value, index, length llvm.Value) {
	tooLow := g.builder.CreateICmp(llvm.IntSLT, index, llvm.ConstInt(index.Type(), 0, true), "idxlow")
	tooHigh := g.builder.CreateICmp(llvm.IntSGE, index, length, "idxhigh")
	cond := g.builder.CreateOr(tooLow, tooHigh, "idxbad")
	g.emitTrapBranch(fn, cond, g.runtime.trapOutOfBound)
}

// emitAllocGuard emits a branch that calls the RE2030 trap when ptr (the
// result of a malloc call) is null.
func (g *Generator) emitAllocGuard(fn llvm.Value, ptr llvm.Value) {
	null := llvm.ConstNull(ptr.Type())
	cond := g.builder.CreateICmp(llvm.IntEQ, ptr, null, "allocnull")
	g.emitTrapBranch(fn, cond, g.runtime.trapAllocFail)
}

func (g *Generator) emitTrapBranch(fn llvm.Value, cond llvm.Value, trap llvm.Value) {
	trapBB := llvm.AddBasicBlock(fn, "")
	contBB := llvm.AddBasicBlock(fn, "")
	g.builder.CreateCondBr(cond, trapBB, contBB)

	g.builder.SetInsertPointAtEnd(trapBB)
	g.builder.CreateCall(trap, nil, "")
	g.builder.CreateUnreachable()

	g.builder.SetInsertPointAtEnd(contBB)
}
