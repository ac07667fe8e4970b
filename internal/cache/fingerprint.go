package cache

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/sushi-lang/sushic/internal/ast"
)

// ComputeUnitFingerprint hashes everything that can change a unit's
// codegen output: its own source bytes, its own and its transitive
// dependencies' public symbol signatures, the structural shape of every
// struct/enum this unit declares, every extension/perk implementation
// visible anywhere in the program, and its sorted import list. Grounded
// on compute_unit_fingerprint's five-part hash, adapted to the tables this
// Go implementation actually builds (an ast.Tables keyed by final symbol
// name rather than a per-unit AST walk).
func ComputeUnitFingerprint(unit *ast.Unit, graph *ast.Graph, tables *ast.Tables) (string, error) {
	h := sha256.New()

	src, err := os.ReadFile(unit.Path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: reading %s: %w", unit.Path, err)
	}
	h.Write([]byte("SOURCE:"))
	h.Write(src)

	h.Write([]byte("OWN_SYMBOLS:"))
	writeSymbolSignatures(h, tables, unit.ExportedFuncs, unit.ExportedConsts)

	h.Write([]byte("DEP_SYMBOLS:"))
	for _, dep := range sortedStrings(transitiveDeps(unit, graph)) {
		depUnit, ok := graph.Units[dep]
		if !ok {
			continue
		}
		h.Write([]byte("DEP:" + dep + ":"))
		writeSymbolSignatures(h, tables, depUnit.ExportedFuncs, depUnit.ExportedConsts)
	}

	h.Write([]byte("STRUCTS:"))
	for _, name := range sortedStructNamesInUnit(tables, unit.Name) {
		s := tables.Structs[name]
		h.Write([]byte(structSignature(s)))
	}

	h.Write([]byte("ENUMS:"))
	for _, name := range sortedEnumNamesInUnit(tables, unit.Name) {
		e := tables.Enums[name]
		h.Write([]byte(enumSignature(e)))
	}

	// Extension methods and perk implementations are not tracked per
	// owning unit in ast.Tables (collect.go merges them into one global
	// map keyed by target type), so every unit's fingerprint folds in all
	// of them rather than only the ones it can see -- an over-
	// invalidating but safe stand-in for the original's per-unit
	// visibility filter; see DESIGN.md.
	h.Write([]byte("EXTENSIONS:"))
	for _, target := range sortedStrings(keysOfExtensions(tables)) {
		methods := tables.Extensions[target]
		for _, name := range sortedStrings(keysOfMethods(methods)) {
			h.Write([]byte(extensionSignature(target, methods[name])))
		}
	}

	h.Write([]byte("PERK_IMPLS:"))
	for _, key := range sortedPerkImplKeys(tables) {
		methods := tables.PerkImpls[key]
		for _, name := range sortedStrings(keysOfMethods(methods)) {
			h.Write([]byte(extensionSignature(key.Target+"::"+key.Perk, methods[name])))
		}
	}

	h.Write([]byte("USES:"))
	uses := make([]string, 0, len(unit.Imports))
	for _, imp := range unit.Imports {
		uses = append(uses, fmt.Sprintf("%s:%d:", imp.Path, imp.Kind))
	}
	sort.Strings(uses)
	for _, use := range uses {
		h.Write([]byte(use))
	}

	return hexDigest(h.Sum(nil)), nil
}

// ComputeStdlibFingerprint hashes the concatenated bytes of every bitcode
// file making up one stdlib module -- stdlib source never changes within
// a compiler version, so bitcode identity alone determines staleness.
func ComputeStdlibFingerprint(bcPaths []string) (string, error) {
	h := sha256.New()
	h.Write([]byte("STDLIB:"))
	sorted := append([]string{}, bcPaths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		data, err := os.ReadFile(p)
		if err != nil {
			return "", err
		}
		h.Write(data)
	}
	return hexDigest(h.Sum(nil)), nil
}

// ComputeLibFingerprint hashes one external library's .slib artifact
// bytes wholesale.
func ComputeLibFingerprint(slibPath string) (string, error) {
	h := sha256.New()
	h.Write([]byte("LIB:"))
	data, err := os.ReadFile(slibPath)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hexDigest(h.Sum(nil)), nil
}

// transitiveDeps returns the dotted names of every unit reachable from
// unit by following ImportSourceUnit edges, not including unit itself.
func transitiveDeps(unit *ast.Unit, graph *ast.Graph) map[string]bool {
	seen := make(map[string]bool)
	var visit func(u *ast.Unit)
	visit = func(u *ast.Unit) {
		for _, imp := range u.Imports {
			if imp.Kind != ast.ImportSourceUnit || seen[imp.Path] {
				continue
			}
			seen[imp.Path] = true
			if dep, ok := graph.Units[imp.Path]; ok {
				visit(dep)
			}
		}
	}
	visit(unit)
	return seen
}

func writeSymbolSignatures(h io.Writer, tables *ast.Tables, funcNames, constNames []string) {
	names := append(append([]string{}, funcNames...), constNames...)
	for _, name := range sortedStrings(toSet(names)) {
		if fn, ok := tables.Funcs[name]; ok {
			h.Write([]byte("func:" + name + ":" + funcSignature(fn)))
			continue
		}
		if c, ok := tables.Constants[name]; ok {
			h.Write([]byte("const:" + name + ":" + constSignature(c)))
		}
	}
}

func funcSignature(fn *ast.FuncSig) string {
	params := ""
	for i, p := range fn.Params {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("%d:%s", p.Type, p.Name)
	}
	generic := ""
	for i, g := range fn.Generics {
		if i > 0 {
			generic += ","
		}
		generic += g.Name
	}
	if generic != "" {
		generic = "<" + generic + ">"
	}
	return fmt.Sprintf("fn%s(%s)->%d", generic, params, fn.Return)
}

func constSignature(c *ast.ConstantEntry) string {
	return fmt.Sprintf("const:%d=%s", c.DeclaredType, c.Name)
}

func structSignature(s *ast.StructDef) string {
	fields := ""
	for i, f := range s.Fields {
		if i > 0 {
			fields += ","
		}
		fields += fmt.Sprintf("%d:%s", f.Type, f.Name)
	}
	return fmt.Sprintf("%s(%s)", s.Name, fields)
}

func enumSignature(e *ast.EnumDef) string {
	variants := ""
	for i, v := range e.Variants {
		if i > 0 {
			variants += ","
		}
		payload := ""
		for j, p := range v.Payload {
			if j > 0 {
				payload += ","
			}
			payload += fmt.Sprintf("%d", p)
		}
		variants += fmt.Sprintf("%s(%s)", v.Name, payload)
	}
	return fmt.Sprintf("%s[%s]", e.Name, variants)
}

func extensionSignature(target string, m *ast.ExtensionMethod) string {
	params := ""
	for i, p := range m.Params {
		if i > 0 {
			params += ","
		}
		params += fmt.Sprintf("%d:%s", p.Type, p.Name)
	}
	return fmt.Sprintf("%s::%s(%s)->%d", target, m.Name, params, m.Return)
}

func sortedStructNamesInUnit(tables *ast.Tables, unitName string) []string {
	var names []string
	for _, name := range tables.StructOrder {
		if s, ok := tables.Structs[name]; ok && s.Unit == unitName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func sortedEnumNamesInUnit(tables *ast.Tables, unitName string) []string {
	var names []string
	for _, name := range tables.EnumOrder {
		if e, ok := tables.Enums[name]; ok && e.Unit == unitName {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func keysOfExtensions(tables *ast.Tables) map[string]bool {
	out := make(map[string]bool, len(tables.Extensions))
	for k := range tables.Extensions {
		out[k] = true
	}
	return out
}

func keysOfMethods(methods map[string]*ast.ExtensionMethod) map[string]bool {
	out := make(map[string]bool, len(methods))
	for k := range methods {
		out[k] = true
	}
	return out
}

func sortedPerkImplKeys(tables *ast.Tables) []ast.PerkImplKey {
	keys := make([]ast.PerkImplKey, 0, len(tables.PerkImpls))
	for k := range tables.PerkImpls {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Target != keys[j].Target {
			return keys[i].Target < keys[j].Target
		}
		return keys[i].Perk < keys[j].Perk
	})
	return keys
}

func toSet(xs []string) map[string]bool {
	out := make(map[string]bool, len(xs))
	for _, x := range xs {
		out[x] = true
	}
	return out
}

func sortedStrings(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
