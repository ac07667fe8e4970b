package ast

// ConstValue holds the fully-evaluated value of a constant (spec §4.3.3).
// Exactly one of the numeric fields is meaningful, selected by Kind.
type ConstValue struct {
	Kind  Kind
	Int   int64
	Uint  uint64
	Float float64
	Bool  bool
}

// ConstantEntry is one entry of the `constants` table.
type ConstantEntry struct {
	Name         string
	DeclaredType TypeRef
	Expr         *Node
	Unit         string
	Value        ConstValue
	Evaluated    bool
}

// StructDef is one entry of the `structs` table.
type StructDef struct {
	Name   string
	Fields []StructField
	Unit   string
	Ref    TypeRef
}

// EnumDef is one entry of the `enums` table.
type EnumDef struct {
	Name     string
	Variants []EnumVariant
	Unit     string
	Ref      TypeRef
}

// GenericStructTemplate is a not-yet-instantiated generic struct template.
type GenericStructTemplate struct {
	Name       string
	TypeParams []string
	Fields     []StructField // field Type entries that equal a type-param placeholder TypeRef.
	Decl       *Node
	Unit       string
}

// GenericEnumTemplate is a not-yet-instantiated generic enum template.
type GenericEnumTemplate struct {
	Name       string
	TypeParams []string
	Variants   []EnumVariant
	Decl       *Node
	Unit       string
}

// GenericFuncTemplate is a not-yet-instantiated generic function template.
type GenericFuncTemplate struct {
	Name       string
	TypeParams []GenericConstraint
	Params     []Param
	Return     TypeRef
	Body       *Node
	Unit       string
	Public     bool
}

// GenericExtensionTemplate is a not-yet-instantiated generic extension
// method (an `extend T<A>:` block where the receiver itself is generic, or
// a method carrying its own type parameters).
type GenericExtensionTemplate struct {
	Name       string
	Receiver   string // base receiver name, e.g. "Pair" for `extend Pair<A, B>`.
	TypeParams []GenericConstraint
	Params     []Param
	Return     TypeRef
	Body       *Node
	Unit       string
	Public     bool
}

// PerkImplKey identifies one `extend T with P` implementation block.
type PerkImplKey struct {
	Target string
	Perk   string
}

// MonoKey identifies one unique (template, concrete-type-arguments) tuple.
// Exactly one monomorphized definition must exist per MonoKey across the
// whole program (a testable property of spec §8).
type MonoKey struct {
	Template string
	Mangled  string // deterministic mangled display form of the concrete type args.
}

// MonoRequest is a pending instantiation the monomorphization engine has
// not yet drained into a concrete func/extension definition.
type MonoRequest struct {
	Key      MonoKey
	Template string
	Args     []TypeRef
	IsExt    bool
	Receiver string // set when IsExt.
}

// Tables is the complete set of global symbol tables populated by the
// collector pass (spec §4.2) and consumed by every later pass.
type Tables struct {
	Arena *Arena

	Constants map[string]*ConstantEntry

	Structs     map[string]*StructDef
	StructOrder []string

	Enums     map[string]*EnumDef
	EnumOrder []string

	Perks     map[string]*PerkDef
	PerkOrder []string

	GenericStructs    map[string]*GenericStructTemplate
	GenericEnums      map[string]*GenericEnumTemplate
	GenericExtensions map[string][]*GenericExtensionTemplate
	GenericFuncs      map[string]*GenericFuncTemplate

	Funcs map[string]*FuncSig

	// StdlibFuncs is the separate sub-table of spec §4.2's last bullet:
	// functions offered by imported stdlib modules, type-checked against
	// but never monomorphized/codegen'd by this compilation.
	StdlibFuncs map[string]*FuncSig

	Extensions map[string]map[string]*ExtensionMethod
	PerkImpls  map[PerkImplKey]map[string]*ExtensionMethod

	MonoQueue []MonoRequest
	MonoDone  map[MonoKey]bool

	// MonoStructs/MonoEnums/MonoFuncs/MonoExtensions hold the concrete
	// definitions produced by draining MonoQueue, keyed by MonoKey so
	// genExpression-time lookups never re-parse a mangled name.
	MonoStructs    map[MonoKey]*StructDef
	MonoEnums      map[MonoKey]*EnumDef
	MonoFuncs      map[MonoKey]*FuncSig
	MonoExtensions map[MonoKey]*ExtensionMethod
}

// NewTables returns an empty Tables bound to arena, with the three built-in
// generic containers (Box, Optional, Result) and List/HashMap registered as
// generic templates up front -- spec §3 requires Box/Optional/Result "ship
// with the language regardless of the standard library", and spec §4.4.3
// treats List/HashMap identically for inline-emission purposes.
func NewTables(arena *Arena) *Tables {
	t := &Tables{
		Arena:             arena,
		Constants:         make(map[string]*ConstantEntry),
		Structs:           make(map[string]*StructDef),
		Enums:             make(map[string]*EnumDef),
		Perks:             make(map[string]*PerkDef),
		GenericStructs:    make(map[string]*GenericStructTemplate),
		GenericEnums:      make(map[string]*GenericEnumTemplate),
		GenericExtensions: make(map[string][]*GenericExtensionTemplate),
		GenericFuncs:      make(map[string]*GenericFuncTemplate),
		Funcs:             make(map[string]*FuncSig),
		StdlibFuncs:       make(map[string]*FuncSig),
		Extensions:        make(map[string]map[string]*ExtensionMethod),
		PerkImpls:         make(map[PerkImplKey]map[string]*ExtensionMethod),
		MonoDone:          make(map[MonoKey]bool),
		MonoStructs:       make(map[MonoKey]*StructDef),
		MonoEnums:         make(map[MonoKey]*EnumDef),
		MonoFuncs:         make(map[MonoKey]*FuncSig),
		MonoExtensions:    make(map[MonoKey]*ExtensionMethod),
	}
	registerBuiltinContainers(t)
	return t
}

// builtinContainerNames lists the generic containers that bypass the
// MonoQueue entirely and are inline-emitted at each call site (spec
// §4.3.2 last bullet, §4.4.3). They are registered here only so name
// resolution recognizes them as known generic bases; the codegen
// container emitters (internal/codegen/llvm) hold the real logic.
var builtinContainerNames = []string{"Box", "Optional", "Result", "List", "HashMap"}

func registerBuiltinContainers(t *Tables) {
	t.GenericStructs["Box"] = &GenericStructTemplate{Name: "Box", TypeParams: []string{"T"}}
	t.GenericStructs["List"] = &GenericStructTemplate{Name: "List", TypeParams: []string{"T"}}
	t.GenericStructs["HashMap"] = &GenericStructTemplate{Name: "HashMap", TypeParams: []string{"K", "V"}}
	t.GenericEnums["Optional"] = &GenericEnumTemplate{Name: "Optional", TypeParams: []string{"T"}}
	t.GenericEnums["Result"] = &GenericEnumTemplate{Name: "Result", TypeParams: []string{"T", "E"}}
}

// IsBuiltinContainer reports whether name is one of the inline-emitted
// generic containers.
func IsBuiltinContainer(name string) bool {
	for _, n := range builtinContainerNames {
		if n == name {
			return true
		}
	}
	return false
}
