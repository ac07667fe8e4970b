package link

import "tinygo.org/x/go-llvm"

// applyResolution converts every losing duplicate definition found in
// resolveConflicts's output to available_externally linkage. That linkage is
// LLVM's own idiom for "this is a correct, redundant definition -- keep it
// around for inlining purposes but never emit it", so a plain LinkModules
// merge no longer sees two strong definitions of the same name and doesn't
// fail the link. The winning module's definition is left untouched and is
// what ultimately survives into the emitted object.
func applyResolution(tables []symbolTable, res resolution) {
	for name, winnerModule := range res.winner {
		for _, t := range tables {
			if t.moduleName == winnerModule {
				continue
			}
			sym, ok := t.entries[name]
			if !ok || sym.isDecl {
				continue
			}
			sym.value.SetLinkage(llvm.AvailableExternallyLinkage)
		}
	}
}

// pruneUnreachable marks every definition in mod that Phase 3's closure
// never reached as available_externally too, so it never makes it into the
// emitted object. Entry points and anything they transitively touch are
// left alone. This stands in for the spec's literal "rebuild a module
// containing only the chosen definitions": no whole-module IR clone utility
// is available in this binding, so dropping dead bodies in place produces
// the same observable object file without one.
func pruneUnreachable(mod llvm.Module, reachable map[string]bool) int {
	pruned := 0
	for fn := mod.FirstFunction(); !fn.IsNil(); fn = llvm.NextFunction(fn) {
		if fn.IsDeclaration() || reachable[fn.Name()] {
			continue
		}
		fn.SetLinkage(llvm.AvailableExternallyLinkage)
		pruned++
	}
	for g := mod.FirstGlobal(); !g.IsNil(); g = llvm.NextGlobal(g) {
		if g.IsDeclaration() || g.Name() == "llvm.global_ctors" || reachable[g.Name()] {
			continue
		}
		g.SetLinkage(llvm.AvailableExternallyLinkage)
		pruned++
	}
	return pruned
}

// orderByPriority sorts inputs stdlib first, then library, then main, so
// mergeModules links lowest-priority bodies in before the higher-priority
// ones that Phase 4 decided should win -- matching tinygo's builder.go
// pattern of accumulating package modules into one destination by
// link-in, one at a time.
func orderByPriority(inputs []inputModule) []inputModule {
	var stdlib, lib, main []inputModule
	for _, in := range inputs {
		switch in.source {
		case SourceStdlib:
			stdlib = append(stdlib, in)
		case SourceLibrary:
			lib = append(lib, in)
		case SourceMain:
			main = append(main, in)
		}
	}
	out := make([]inputModule, 0, len(inputs))
	out = append(out, stdlib...)
	out = append(out, lib...)
	out = append(out, main...)
	return out
}

// mergeModules links every input module into a single fresh module named
// name, in priority order, then stamps the target triple/data layout the
// caller's target machine produced. Every input module must belong to ctx;
// llvm.LinkModules consumes its source argument, so none of inputs' modules
// are usable again after this returns.
func mergeModules(ctx llvm.Context, name string, inputs []inputModule, targetTriple, dataLayout string) (llvm.Module, error) {
	dest := ctx.NewModule(name)
	for _, in := range orderByPriority(inputs) {
		if err := llvm.LinkModules(dest, in.mod); err != nil {
			return llvm.Module{}, err
		}
	}
	if targetTriple != "" {
		dest.SetTarget(targetTriple)
	}
	if dataLayout != "" {
		dest.SetDataLayout(dataLayout)
	}
	return dest, nil
}
