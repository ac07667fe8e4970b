package pipeline

import (
	"errors"

	"tinygo.org/x/go-llvm"

	"github.com/sushi-lang/sushic/internal/config"
)

// codeGenLevel maps the user-facing optimization level to the backend
// code-generation aggressiveness passed to CreateTargetMachine. mem2reg and
// none both name IR-level normalization, not a backend scheduling/codegen
// tier, so both map to CodeGenLevelNone; O1-O3 step up accordingly.
func codeGenLevel(o config.OptLevel) llvm.CodeGenOptLevel {
	switch o {
	case config.OptO1:
		return llvm.CodeGenLevelLess
	case config.OptO2:
		return llvm.CodeGenLevelDefault
	case config.OptO3:
		return llvm.CodeGenLevelAggressive
	default:
		return llvm.CodeGenLevelNone
	}
}

// emitObject delegates optimization and object-file emission to the LLVM
// binding (spec §1 names this a black box this core only drives), grounded
// on the teacher's genTargetTriple/EmitToMemoryBuffer sequence: initialize
// the target backends once, resolve the target triple (explicit or host
// default), build a TargetMachine, set the module's target/data layout,
// and compile straight to an in-memory object buffer pass E then writes out.
func emitObject(mod llvm.Module, opts config.Options) ([]byte, string, error) {
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()
	llvm.InitializeAllTargets()

	triple := opts.TargetTriple
	if triple == "" {
		triple = llvm.DefaultTargetTriple()
	}
	target, err := llvm.GetTargetFromTriple(triple)
	if err != nil {
		return nil, "", err
	}

	tm := target.CreateTargetMachine(triple, "generic", "",
		codeGenLevel(opts.OptLevel), llvm.RelocDefault, llvm.CodeModelDefault)
	defer tm.Dispose()

	td := tm.CreateTargetData()
	defer td.Dispose()

	mod.SetDataLayout(td.String())
	mod.SetTarget(tm.Triple())

	buf, err := tm.EmitToMemoryBuffer(mod, llvm.ObjectFile)
	if err != nil {
		return nil, "", err
	}
	if buf.IsNil() {
		return nil, "", errors.New("pipeline: target machine produced no object bytes")
	}
	defer buf.Dispose()
	return buf.Bytes(), triple, nil
}
