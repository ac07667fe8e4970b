// Package pipeline drives the whole compiler core straight-line, the way
// the teacher's own main.run(opt util.Options) error does: read options,
// run each pass in order, short-circuiting the rest on the propagation
// policy of spec §7, and finally emit an object file or library artifact.
// Lexing/parsing, CLI flag parsing, and diagnostic rendering stay behind
// the unitgraph.Builder / ObjectEmitter-style seams this package consumes,
// since spec §1 keeps all three out of the core's scope.
package pipeline

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"tinygo.org/x/go-llvm"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/buildlog"
	"github.com/sushi-lang/sushic/internal/cache"
	"github.com/sushi-lang/sushic/internal/collect"
	codegenllvm "github.com/sushi-lang/sushic/internal/codegen/llvm"
	"github.com/sushi-lang/sushic/internal/config"
	"github.com/sushi-lang/sushic/internal/diag"
	"github.com/sushi-lang/sushic/internal/libfmt"
	"github.com/sushi-lang/sushic/internal/link"
	"github.com/sushi-lang/sushic/internal/sema"
	"github.com/sushi-lang/sushic/internal/unitgraph"
)

// Result is everything the driver's caller (cmd/sushic) needs to print a
// report and choose an exit code.
type Result struct {
	Diagnostics []*diag.Diagnostic
	ExitCode    int
}

// Pipeline owns the one diagnostic reporter, build logger, and cache
// manager that persist across the whole straight-line run (spec §5:
// "the diagnostic reporter and the symbol tables are each owned by the
// driver and passed by reference to the pass currently running").
type Pipeline struct {
	Builder unitgraph.Builder
	Opts    config.Options

	rep *diag.Reporter
	log *buildlog.Logger
}

// New returns a Pipeline ready to Run. builder is the frontend seam (spec
// §1 treats lexing/parsing as an external collaborator).
func New(builder unitgraph.Builder, opts config.Options) *Pipeline {
	return &Pipeline{
		Builder: builder,
		Opts:    opts,
		rep:     diag.NewReporter(diag.NewRegistry()),
		log:     buildlog.New(opts.Verbose),
	}
}

// Run executes the whole pipeline: unit loading (pass A), collection
// (pass B), semantic validation (pass C), incremental LLVM codegen (pass
// D), two-phase linking, and object emission (pass E). An internal-error
// panic raised via diag.Panic from any pass is recovered here and folded
// into the diagnostic stream as the stage boundary spec §7 describes.
func (p *Pipeline) Run() (res Result, err error) {
	defer p.log.Sync()
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*diag.InternalError); ok {
				p.rep.Emit(ie.Code, nil, ie.Fields)
				res = Result{Diagnostics: p.rep.Diagnostics(), ExitCode: p.rep.ExitCode()}
				err = ie
				return
			}
			panic(r)
		}
	}()

	srcPath, err := config.ResolveSrcPath(p.Opts.Src)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: resolving source path: %w", err)
	}

	if p.Opts.QueryLibrary != "" {
		return p.runQueryLibrary(p.Opts.QueryLibrary)
	}

	// Pass A: unit loading and dependency DAG.
	p.log.Phase("pipeline.pass_a")
	resolver, err := unitgraph.NewResolver(p.Builder, knownStdlibModules(), srcDir(srcPath), p.rep)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}
	graph, err := resolver.Load(srcPath)
	if err != nil || p.rep.HasErrors() {
		return p.finish(), nil
	}
	p.log.Stat("pipeline.units", len(graph.Order))

	arena := ast.NewArena()
	tables := ast.NewTables(arena)

	stdArtifacts, err := p.loadStdlibModules(graph)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}
	for _, a := range stdArtifacts {
		var sigs []ast.FuncSig
		for _, pf := range a.Metadata.PublicFunctions {
			sigs = append(sigs, funcSigFromPublic(pf))
		}
		collect.CollectStdlibFuncs(a.Module, sigs, tables)
	}

	// Pass B: collection.
	p.log.Phase("pipeline.pass_b")
	collect.Collect(graph, tables, p.rep)
	if p.rep.HasErrors() {
		return p.finish(), nil
	}

	// Pass C: semantic validation (name/type/borrow/perk/generics/const-eval).
	p.log.Phase("pipeline.pass_c")
	sema.Run(graph, tables, p.rep)
	if p.rep.HasErrors() {
		return p.finish(), nil
	}

	// Pass D + link + pass E all share one LLVM context, since
	// internal/link.LinkModules requires every module it merges to belong
	// to the same context (spec §5: "the LLVM context, the module, and the
	// IR builder are shared state owned by the codegen component").
	ctx := llvm.NewContext()
	defer ctx.Dispose()

	cacheMgr := cache.NewManager(srcDir(srcPath), p.Opts)
	if err := cacheMgr.Prepare(p.Opts.WipeCache); err != nil {
		return Result{}, fmt.Errorf("pipeline: preparing cache: %w", err)
	}

	linker := link.NewTwoPhaseLinker(ctx, p.log)

	if err := p.loadLibraryModules(ctx, graph, cacheMgr, linker); err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}
	if err := p.loadStdlibBitcode(ctx, stdArtifacts, cacheMgr, linker); err != nil {
		return Result{}, fmt.Errorf("pipeline: %w", err)
	}

	wordBits := 64

	// Pass D: generate each unit's bitcode independently so spec §4.6's
	// per-unit cache can skip codegen for units whose fingerprint did not
	// change.
	p.log.Phase("pipeline.pass_d")
	for _, unitName := range graph.Order {
		unit := graph.Units[unitName]
		fp, ferr := cache.ComputeUnitFingerprint(unit, graph, tables)
		if ferr != nil {
			return Result{}, fmt.Errorf("pipeline: fingerprinting unit %s: %w", unitName, ferr)
		}
		if cacheMgr.HasCachedUnit(unitName, fp) {
			mod, perr := ctx.ParseBitcodeFile(cacheMgr.UnitObjectPath(unitName))
			if perr != nil {
				return Result{}, fmt.Errorf("pipeline: loading cached unit %s: %w", unitName, perr)
			}
			linker.AddMainModule(mod, unitName)
			p.log.Phase("pipeline.unit.cached", zap.String("unit", unitName))
			continue
		}
		gen := codegenllvm.New(ctx, unitName, tables, wordBits)
		gen.DeclareAll()
		if err := gen.DefineUnit(unitName); err != nil {
			return Result{}, fmt.Errorf("pipeline: generating unit %s: %w", unitName, err)
		}
		mod := gen.Module()
		bcBytes := llvm.WriteBitcodeToMemoryBuffer(mod).Bytes()
		if err := cacheMgr.StoreUnitObject(unitName, bcBytes, fp); err != nil {
			return Result{}, fmt.Errorf("pipeline: caching unit %s: %w", unitName, err)
		}
		linker.AddMainModule(mod, unitName)
		p.log.Phase("pipeline.unit.built", zap.String("unit", unitName))
	}

	if len(tables.MonoFuncs) > 0 {
		monoGen := codegenllvm.New(ctx, codegenllvm.MonoUnitName, tables, wordBits)
		monoGen.DeclareAll()
		if err := monoGen.DefineMono(); err != nil {
			return Result{}, fmt.Errorf("pipeline: generating monomorphized instantiations: %w", err)
		}
		linker.AddMainModule(monoGen.Module(), codegenllvm.MonoUnitName)
	}

	// Link: two-phase symbol-deduplicating merge (spec §4.5), falling back
	// to the simple native link-in when the user disabled it.
	p.log.Phase("pipeline.link")
	var merged llvm.Module
	if p.Opts.SimpleLink {
		merged, err = linker.LinkSimple("sushi_program", p.Opts.TargetTriple, "")
	} else {
		merged, err = linker.Link("sushi_program", []string{"main"}, p.Opts.TargetTriple, "")
	}
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: link: %w", err)
	}

	if p.rep.HasErrors() {
		return p.finish(), nil
	}

	if p.Opts.LibraryMode {
		if err := p.emitLibrary(merged, tables); err != nil {
			return Result{}, fmt.Errorf("pipeline: emitting library: %w", err)
		}
		return p.finish(), nil
	}

	// Pass E: object emission. Any failure here is an I/O failure per spec
	// §7's "Pass E I/O failures abort with a generic error code."
	p.log.Phase("pipeline.pass_e")
	objBytes, triple, err := emitObject(merged, p.Opts)
	if err != nil {
		return Result{}, fmt.Errorf("pipeline: object emission: %w", err)
	}
	out := p.Opts.Out
	if out == "" {
		out = "a.out.o"
	}
	if err := os.WriteFile(out, objBytes, 0o644); err != nil {
		return Result{}, fmt.Errorf("pipeline: writing object file %s: %w", out, err)
	}
	p.log.Phase("pipeline.done", zap.String("output", out), zap.String("target", triple))

	if p.Opts.EmitTextIR {
		if err := os.WriteFile(out+".ll", []byte(merged.String()), 0o644); err != nil {
			return Result{}, fmt.Errorf("pipeline: writing textual IR: %w", err)
		}
	}

	return p.finish(), nil
}

func (p *Pipeline) finish() Result {
	return Result{Diagnostics: p.rep.Diagnostics(), ExitCode: p.rep.ExitCode()}
}

// runQueryLibrary implements spec §6's "querying a library artifact's
// metadata" CLI contract, independent of the rest of the pipeline.
func (p *Pipeline) runQueryLibrary(path string) (Result, error) {
	meta, err := libfmt.ReadMetadataOnly(path)
	if err != nil {
		if fe, ok := err.(*libfmt.FormatError); ok {
			fe.Report(p.rep)
			return p.finish(), nil
		}
		return Result{}, fmt.Errorf("pipeline: querying library %s: %w", path, err)
	}
	p.log.Phase("pipeline.query_library",
		zap.String("library", meta.LibraryName),
		zap.String("compiled_at", meta.CompiledAt))
	return p.finish(), nil
}

// loadStdlibModules resolves every stdlib module graph.StdlibModules names
// to its on-disk .slib artifact.
func (p *Pipeline) loadStdlibModules(graph *ast.Graph) ([]stdlibArtifact, error) {
	out := make([]stdlibArtifact, 0, len(graph.StdlibModules))
	for _, mod := range graph.StdlibModules {
		a, err := resolveStdlibModule(mod)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// loadStdlibBitcode feeds every resolved stdlib artifact's bitcode into ctx
// and the linker, gated by the stdlib object cache (spec §4.6: "Stdlib ...
// object caches use SHA-256 over their own bitcode bytes").
func (p *Pipeline) loadStdlibBitcode(ctx llvm.Context, artifacts []stdlibArtifact, cacheMgr *cache.Manager, linker *link.TwoPhaseLinker) error {
	for _, a := range artifacts {
		fp, err := cache.ComputeStdlibFingerprint([]string{a.Path})
		if err != nil {
			return err
		}
		objPath := cacheMgr.StdlibObjectPath(a.Module)
		if !cacheMgr.HasCachedStdlib(a.Module, fp) {
			if err := cacheMgr.StoreStdlibObject(a.Module, a.Bitcode, fp); err != nil {
				return err
			}
		}
		mod, err := ctx.ParseBitcodeFile(objPath)
		if err != nil {
			return fmt.Errorf("loading stdlib module %s: %w", a.Module, err)
		}
		linker.AddStdlibModule(mod, a.Module)
	}
	return nil
}

// loadLibraryModules resolves and loads every external library import in
// graph, gated by the library object cache.
func (p *Pipeline) loadLibraryModules(ctx llvm.Context, graph *ast.Graph, cacheMgr *cache.Manager, linker *link.TwoPhaseLinker) error {
	for _, slibPath := range graph.ExternalLibraries {
		path := slibPath
		if _, err := os.Stat(path); err != nil {
			candidate := path + ".slib"
			if _, err := os.Stat(candidate); err != nil {
				p.rep.Emit("CE3502", nil, map[string]any{"lib": slibPath, "paths": config.LibrarySearchPaths()})
				continue
			}
			path = candidate
		}
		meta, bc, err := libfmt.Read(path)
		if err != nil {
			return fmt.Errorf("reading library %s: %w", path, err)
		}
		fp, err := cache.ComputeLibFingerprint(path)
		if err != nil {
			return err
		}
		objPath := cacheMgr.LibObjectPath(path)
		if !cacheMgr.HasCachedLib(path, fp) {
			if err := cacheMgr.StoreLibObject(path, bc, fp); err != nil {
				return err
			}
		}
		mod, err := ctx.ParseBitcodeFile(objPath)
		if err != nil {
			return fmt.Errorf("loading library %s: %w", path, err)
		}
		linker.AddLibraryModule(mod, meta.LibraryName)
	}
	return nil
}

// emitLibrary writes a .slib artifact for the merged module instead of a
// native object, implementing spec §6's "producing a library artifact
// instead of an executable."
func (p *Pipeline) emitLibrary(merged llvm.Module, tables *ast.Tables) error {
	meta := libfmt.Metadata{
		SushiLibVersion: libfmt.Version,
		LibraryName:     p.Opts.Out,
		CompiledAt:      time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		Platform:        hostPlatform(),
		CompilerVersion: config.CompilerVersion,
	}
	for name, sig := range tables.Funcs {
		if !sig.Public {
			continue
		}
		meta.PublicFunctions = append(meta.PublicFunctions, publicFunctionOf(tables, name, sig))
	}
	for name, c := range tables.Constants {
		meta.PublicConstants = append(meta.PublicConstants, libfmt.PublicConstant{Name: name, Type: typeNameOf(tables, c.DeclaredType)})
	}
	bc := llvm.WriteBitcodeToMemoryBuffer(merged).Bytes()
	out := p.Opts.Out
	if out == "" {
		out = "a.out.slib"
	}
	return libfmt.Write(out, meta, bc)
}
