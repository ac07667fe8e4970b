package sema

import (
	"strings"

	"github.com/sushi-lang/sushic/internal/ast"
)

// mangle builds the deterministic display form spec §4.3.2 requires every
// (template, concrete-args) pair to map to exactly once: the template name
// followed by its concrete type arguments in angle brackets, e.g.
// "List<i32>" or "Pair<string,bool>". Two call sites instantiating the same
// template with the same concrete arguments always produce the same
// mangled string, which is what lets MonoDone dedupe repeat requests.
func (c *Checker) mangle(name string, args []ast.TypeRef) string {
	if len(args) == 0 {
		return name
	}
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = c.tables.Arena.At(a).String()
	}
	return name + "<" + strings.Join(parts, ",") + ">"
}

// enqueueMono records a pending instantiation unless an identical one is
// already queued or done, returning its MonoKey so the caller can look up
// the eventual concrete definition once drainMonoQueue finishes.
func (c *Checker) enqueueMono(template string, args []ast.TypeRef, isExt bool, receiver string) ast.MonoKey {
	key := ast.MonoKey{Template: template, Mangled: c.mangle(template, args)}
	if c.tables.MonoDone[key] {
		return key
	}
	for _, req := range c.tables.MonoQueue {
		if req.Key == key {
			return key
		}
	}
	c.tables.MonoQueue = append(c.tables.MonoQueue, ast.MonoRequest{
		Key: key, Template: template, Args: args, IsExt: isExt, Receiver: receiver,
	})
	return key
}

// monoReturnType resolves a generic function's declared return type against
// a concrete instantiation's arguments without waiting for the queue to
// drain, so the call expression itself can be annotated immediately; the
// MonoFuncs table entry produced later by drainMonoQueue carries the same
// resolved type, keeping the two views consistent.
func (c *Checker) monoReturnType(key ast.MonoKey, templateReturn *ast.Node, typeParams []ast.GenericConstraint, args []ast.TypeRef) ast.TypeRef {
	saved := c.genericParamMap
	c.genericParamMap = paramMap(typeParams, args)
	defer func() { c.genericParamMap = saved }()
	t, err := c.resolveType(templateReturn)
	if err != nil {
		return ast.RefBlank
	}
	return t
}

func paramMap(params []ast.GenericConstraint, args []ast.TypeRef) map[string]ast.TypeRef {
	m := make(map[string]ast.TypeRef, len(params))
	for i, p := range params {
		if i < len(args) {
			m[p.Name] = args[i]
		}
	}
	return m
}

func paramMapNames(names []string, args []ast.TypeRef) map[string]ast.TypeRef {
	m := make(map[string]ast.TypeRef, len(names))
	for i, n := range names {
		if i < len(args) {
			m[n] = args[i]
		}
	}
	return m
}

// drainMonoQueue repeatedly instantiates every queued generic request until
// the queue is empty, which covers recursive instantiation: checking one
// instantiated body can itself enqueue further requests (spec §4.3.2).
func (c *Checker) drainMonoQueue() {
	for len(c.tables.MonoQueue) > 0 {
		req := c.tables.MonoQueue[0]
		c.tables.MonoQueue = c.tables.MonoQueue[1:]
		if c.tables.MonoDone[req.Key] {
			continue
		}
		c.tables.MonoDone[req.Key] = true

		if req.IsExt {
			c.instantiateExtension(req)
			continue
		}
		if tmpl, ok := c.tables.GenericFuncs[req.Template]; ok {
			c.instantiateFunc(req, tmpl)
			continue
		}
		if tmpl, ok := c.tables.GenericStructs[req.Template]; ok {
			c.instantiateStruct(req, tmpl)
			continue
		}
		if tmpl, ok := c.tables.GenericEnums[req.Template]; ok {
			c.instantiateEnum(req, tmpl)
			continue
		}
	}
}

func (c *Checker) instantiateFunc(req ast.MonoRequest, tmpl *ast.GenericFuncTemplate) {
	for idx, tp := range tmpl.TypeParams {
		for _, perk := range tp.Perks {
			if idx < len(req.Args) {
				argName := c.tables.Arena.At(req.Args[idx]).Name
				if argName != "" && !c.typeSatisfiesPerk(argName, perk) {
					c.rep.Emit("CE4001", nil, map[string]any{"typ": argName, "perk": perk, "method": "<any>"})
				}
			}
		}
	}

	sig := &ast.FuncSig{Name: req.Key.Mangled, Unit: tmpl.Unit, Public: tmpl.Public}
	c.tables.MonoFuncs[req.Key] = sig

	saved := c.genericParamMap
	c.genericParamMap = paramMap(tmpl.TypeParams, req.Args)
	c.unit = tmpl.Unit
	c.currentFuncName = req.Key.Mangled
	c.checkFuncBody(sig, tmpl.Body)
	c.genericParamMap = saved
}

func (c *Checker) instantiateExtension(req ast.MonoRequest) {
	templates := c.tables.GenericExtensions[req.Receiver]
	var tmpl *ast.GenericExtensionTemplate
	for _, t := range templates {
		if t.Name == req.Template {
			tmpl = t
			break
		}
	}
	if tmpl == nil {
		return
	}
	em := &ast.ExtensionMethod{Name: req.Key.Mangled, Receiver: req.Receiver, Body: tmpl.Body, Public: tmpl.Public}
	c.tables.MonoExtensions[req.Key] = em

	saved := c.genericParamMap
	c.genericParamMap = paramMap(tmpl.TypeParams, req.Args)
	c.unit = tmpl.Unit
	c.currentFuncName = req.Key.Mangled
	if tmpl.Body != nil && len(tmpl.Body.Children) >= 5 {
		sig := &ast.FuncSig{Name: em.Name, Unit: tmpl.Unit}
		c.checkFuncBody(sig, tmpl.Body)
		em.Return = sig.Return
		em.Params = sig.Params
	}
	c.genericParamMap = saved
}

func (c *Checker) instantiateStruct(req ast.MonoRequest, tmpl *ast.GenericStructTemplate) {
	ref := c.tables.Arena.Intern(ast.Type{Kind: ast.KindStruct, Name: req.Key.Mangled})
	def := &ast.StructDef{Name: req.Key.Mangled, Unit: tmpl.Unit, Ref: ref}
	c.tables.MonoStructs[req.Key] = def

	if tmpl.Decl == nil {
		return // built-in container: codegen emits its layout directly.
	}
	saved := c.genericParamMap
	c.genericParamMap = paramMapNames(tmpl.TypeParams, req.Args)
	for _, child := range tmpl.Decl.Children[2:] {
		if child.Kind != ast.NFieldDecl {
			continue
		}
		fname := child.Children[0].Ident()
		ftype, err := c.resolveType(child.Children[1])
		if err != nil {
			continue
		}
		def.Fields = append(def.Fields, ast.StructField{Name: fname, Type: ftype})
	}
	c.tables.Arena.Set(ref, ast.Type{Kind: ast.KindStruct, Name: req.Key.Mangled, Fields: def.Fields})
	c.genericParamMap = saved
}

func (c *Checker) instantiateEnum(req ast.MonoRequest, tmpl *ast.GenericEnumTemplate) {
	ref := c.tables.Arena.Intern(ast.Type{Kind: ast.KindEnum, Name: req.Key.Mangled})
	def := &ast.EnumDef{Name: req.Key.Mangled, Unit: tmpl.Unit, Ref: ref}
	c.tables.MonoEnums[req.Key] = def

	if tmpl.Decl == nil {
		return // Optional/Result: codegen emits their fixed tagged-union layout directly.
	}
	saved := c.genericParamMap
	c.genericParamMap = paramMapNames(tmpl.TypeParams, req.Args)
	for _, child := range tmpl.Decl.Children[2:] {
		if child.Kind != ast.NEnumVariantDecl {
			continue
		}
		vname := child.Children[0].Ident()
		var payload []ast.TypeRef
		for _, pt := range child.Children[1:] {
			if ref, err := c.resolveType(pt); err == nil {
				payload = append(payload, ref)
			}
		}
		def.Variants = append(def.Variants, ast.EnumVariant{Name: vname, Payload: payload})
	}
	c.tables.Arena.Set(ref, ast.Type{Kind: ast.KindEnum, Name: req.Key.Mangled, Variants: def.Variants})
	c.genericParamMap = saved
}
