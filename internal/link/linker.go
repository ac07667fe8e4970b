package link

import (
	"fmt"

	"go.uber.org/zap"
	"tinygo.org/x/go-llvm"

	"github.com/sushi-lang/sushic/internal/buildlog"
)

// defaultEntryPoints is used when a caller does not name its own entry
// point set -- the ordinary case of linking a single final executable.
var defaultEntryPoints = []string{"main"}

// TwoPhaseLinker accumulates bitcode modules tagged by priority and merges
// them via the five phases of spec §4.5: extract every module's symbol
// table, fold in @llvm.global_ctors as extra entry points, compute the
// reachable closure from the entry-point set, resolve same-name duplicate
// definitions by priority, then rebuild a single module containing only
// the winning definitions.
type TwoPhaseLinker struct {
	ctx    llvm.Context
	inputs []inputModule
	log    *buildlog.Logger
}

// NewTwoPhaseLinker returns a linker whose merged module and every input
// module passed to it must belong to ctx -- LinkModules requires same-
// context operands, same as tinygo's builder.go parses every package's
// bitcode into the one context it links into.
func NewTwoPhaseLinker(ctx llvm.Context, log *buildlog.Logger) *TwoPhaseLinker {
	if log == nil {
		log = buildlog.New(false)
	}
	return &TwoPhaseLinker{ctx: ctx, log: log}
}

// AddMainModule registers the module compiled from the program's own
// units -- the highest-priority source; its definitions always win a
// conflict against library or stdlib code of the same name.
func (l *TwoPhaseLinker) AddMainModule(mod llvm.Module, name string) {
	l.inputs = append(l.inputs, inputModule{mod: mod, name: name, source: SourceMain})
}

// AddLibraryModule registers one compiled external-library unit's module.
func (l *TwoPhaseLinker) AddLibraryModule(mod llvm.Module, name string) {
	l.inputs = append(l.inputs, inputModule{mod: mod, name: name, source: SourceLibrary})
}

// AddStdlibModule registers one stdlib bitcode module -- lowest priority;
// a stdlib definition only survives the merge when nothing else defines
// the same symbol.
func (l *TwoPhaseLinker) AddStdlibModule(mod llvm.Module, name string) {
	l.inputs = append(l.inputs, inputModule{mod: mod, name: name, source: SourceStdlib})
}

// Link runs the full five-phase merge and returns one module containing
// only the reachable, conflict-resolved definitions. entryPoints defaults
// to ["main"] when nil; @llvm.global_ctors entries found across the input
// modules are always folded in as additional roots, regardless of what
// the caller passes.
func (l *TwoPhaseLinker) Link(name string, entryPoints []string, targetTriple, dataLayout string) (llvm.Module, error) {
	if len(entryPoints) == 0 {
		entryPoints = defaultEntryPoints
	}
	if len(l.inputs) == 0 {
		return llvm.Module{}, fmt.Errorf("link: no input modules registered")
	}

	l.log.Phase("link.extract")
	tables := make([]symbolTable, len(l.inputs))
	defCount, declCount := 0, 0
	for i, in := range l.inputs {
		tables[i] = extractSymbolTable(in)
		for _, sym := range tables[i].entries {
			if sym.isDecl {
				declCount++
			} else {
				defCount++
			}
		}
	}
	l.log.Stat("link.symbols.definitions", defCount)
	l.log.Stat("link.symbols.declarations", declCount)

	l.log.Phase("link.ctors")
	roots := append(append([]string{}, entryPoints...), findGlobalConstructors(l.inputs)...)
	l.log.Stat("link.entrypoints", len(roots))

	l.log.Phase("link.reachability")
	graph := buildDependencyGraph(l.inputs)
	reachable := graph.transitiveClosure(roots)
	l.log.Stat("link.reachable", len(reachable))

	l.log.Phase("link.resolve")
	res := resolveConflicts(tables, reachable)
	l.log.Stat("link.conflicts", len(res.conflicts))
	for _, c := range res.conflicts {
		l.log.Phase("link.conflict", zap.String("symbol", c.name), zap.String("kept", c.kept))
	}

	l.log.Phase("link.merge")
	applyResolution(tables, res)
	merged, err := mergeModules(l.ctx, name, l.inputs, targetTriple, dataLayout)
	if err != nil {
		return llvm.Module{}, fmt.Errorf("link: merge failed: %w", err)
	}
	pruned := pruneUnreachable(merged, reachable)
	l.log.Stat("link.pruned", pruned)

	return merged, nil
}

// LinkSimple is the native-link fallback for callers that disable the
// two-phase scheme (spec §4.5's "simple" mode): it folds every input,
// lowest priority first, into one fresh module via plain LinkModules
// calls, skipping any input whose link-in fails and accepting whatever
// duplicate-definition outcome LLVM
// itself produces rather than resolving conflicts first. Grounded on the
// original implementation's link_simple, which likewise iterates
// link_in calls and tolerates expected duplicate-symbol errors from
// stdlib/library overlap.
func (l *TwoPhaseLinker) LinkSimple(name, targetTriple, dataLayout string) (llvm.Module, error) {
	if len(l.inputs) == 0 {
		return llvm.Module{}, fmt.Errorf("link: no input modules registered")
	}
	l.log.Phase("link.simple")
	dest := l.ctx.NewModule(name)
	linked := 0
	for _, in := range orderByPriority(l.inputs) {
		if err := llvm.LinkModules(dest, in.mod); err != nil {
			l.log.Phase("link.simple.skip", zap.String("module", in.name), zap.String("error", err.Error()))
			continue
		}
		linked++
	}
	l.log.Stat("link.simple.modules", linked)
	if targetTriple != "" {
		dest.SetTarget(targetTriple)
	}
	if dataLayout != "" {
		dest.SetDataLayout(dataLayout)
	}
	return dest, nil
}
