package link

import "tinygo.org/x/go-llvm"

// depGraph is a reference graph over every symbol name seen across all
// input modules: edges are "function X's body calls/references symbol Y".
// Phase 3 walks this from the entry-point set to compute the reachable
// closure that phase 4/5 keep.
type depGraph struct {
	edges map[string]map[string]bool
}

func newDepGraph() *depGraph {
	return &depGraph{edges: make(map[string]map[string]bool)}
}

func (g *depGraph) addEdge(from, to string) {
	if from == to {
		return
	}
	set, ok := g.edges[from]
	if !ok {
		set = make(map[string]bool)
		g.edges[from] = set
	}
	set[to] = true
}

// buildDependencyGraph scans every function body in every module for call
// instructions and operands that directly name a function or global (a
// reference wrapped in a constant bitcast/GEP expression is not followed,
// nor are global initializers), grounded on
// tinygo's own builder.go determineStackSizes walk (FirstBasicBlock/
// NextBasicBlock, FirstInstruction/NextInstruction, IsACallInst,
// CalledValue) which is the same instruction-level traversal this needs,
// just recording edges instead of flagging indirect calls.
func buildDependencyGraph(inputs []inputModule) *depGraph {
	g := newDepGraph()
	for _, in := range inputs {
		for fn := in.mod.FirstFunction(); !fn.IsNil(); fn = llvm.NextFunction(fn) {
			if fn.IsDeclaration() {
				continue
			}
			caller := fn.Name()
			for bb := fn.FirstBasicBlock(); !bb.IsNil(); bb = llvm.NextBasicBlock(bb) {
				for inst := bb.FirstInstruction(); !inst.IsNil(); inst = llvm.NextInstruction(inst) {
					recordReferences(g, caller, inst)
				}
			}
		}
	}
	return g
}

// recordReferences adds an edge from caller to every function or global
// inst directly names: the called function of a call instruction, plus
// any operand that is itself a function or global value (covers taking a
// function's address, and reading/writing a global).
func recordReferences(g *depGraph, caller string, inst llvm.Value) {
	if !inst.IsACallInst().IsNil() {
		if callee := inst.CalledValue(); !callee.IsAFunction().IsNil() {
			g.addEdge(caller, callee.Name())
		}
	}
	for i := 0; i < inst.OperandsCount(); i++ {
		op := inst.Operand(i)
		if !op.IsAFunction().IsNil() || !op.IsAGlobalVariable().IsNil() {
			if name := op.Name(); name != "" {
				g.addEdge(caller, name)
			}
		}
	}
}

// transitiveClosure returns every symbol name reachable from entryPoints
// by following g's edges, plus the entry points themselves (Phase 3).
func (g *depGraph) transitiveClosure(entryPoints []string) map[string]bool {
	reachable := make(map[string]bool)
	queue := append([]string{}, entryPoints...)
	for _, e := range entryPoints {
		reachable[e] = true
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for next := range g.edges[n] {
			if !reachable[next] {
				reachable[next] = true
				queue = append(queue, next)
			}
		}
	}
	return reachable
}

// findGlobalConstructors returns every function name registered in
// @llvm.global_ctors across all input modules (Phase 2); these run before
// main and are treated as additional entry points. Constant-aggregate
// walking is done defensively -- LLVM's C API exposes global_ctors as a
// bare constant array/struct with no dedicated accessor, so a shape this
// doesn't recognize is skipped rather than treated as an error.
func findGlobalConstructors(inputs []inputModule) []string {
	var names []string
	for _, in := range inputs {
		ctors := in.mod.NamedGlobal("llvm.global_ctors")
		if ctors.IsNil() {
			continue
		}
		init := ctors.Initializer()
		if init.IsNil() {
			continue
		}
		for i := 0; i < init.OperandsCount(); i++ {
			entry := init.Operand(i)
			for j := 0; j < entry.OperandsCount(); j++ {
				fnVal := entry.Operand(j)
				if !fnVal.IsAFunction().IsNil() && fnVal.Name() != "" {
					names = append(names, fnVal.Name())
				}
			}
		}
	}
	return names
}
