package link

// conflict records a symbol name that was defined in more than one input
// module, and which module's definition the resolver kept.
type conflict struct {
	name     string
	kept     string
	dropped  []string
}

// resolution is Phase 4's output: for every reachable symbol name with
// more than one *definition* across the input modules, which module's
// definition wins, and (implicitly, via its absence) which other
// modules' same-named definitions must be stripped before the final
// merge so linking them in doesn't redefine the symbol.
type resolution struct {
	winner    map[string]string // symbol name -> winning module name.
	conflicts []conflict
}

// resolveConflicts implements spec §4.5 Phase 4: among the symbol tables
// for every reachable name, pick the highest-priority (main > library >
// stdlib) *definition*. Declaration-only duplicates never conflict --
// every module's external declaration of a stdlib-provided runtime helper
// is expected and resolves to whichever module supplies the real body.
func resolveConflicts(tables []symbolTable, reachable map[string]bool) resolution {
	res := resolution{winner: make(map[string]string)}

	type candidate struct {
		moduleName string
		source     Source
	}
	defsByName := make(map[string][]candidate)
	for _, t := range tables {
		for name, sym := range t.entries {
			if sym.isDecl || !reachable[name] {
				continue
			}
			defsByName[name] = append(defsByName[name], candidate{moduleName: t.moduleName, source: t.source})
		}
	}

	for name, cands := range defsByName {
		best := cands[0]
		for _, c := range cands[1:] {
			if c.source > best.source {
				best = c
			}
		}
		res.winner[name] = best.moduleName
		if len(cands) > 1 {
			var dropped []string
			for _, c := range cands {
				if c.moduleName != best.moduleName {
					dropped = append(dropped, c.moduleName)
				}
			}
			if len(dropped) > 0 {
				res.conflicts = append(res.conflicts, conflict{name: name, kept: best.moduleName, dropped: dropped})
			}
		}
	}
	return res
}
