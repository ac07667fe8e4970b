package ast

// Param is one parameter of a function signature: its declared type
// determines an implicit borrow mode (pointer/reference types carry their
// own BorrowMode; plain value types are BorrowNone, i.e. passed/owned by
// value at the call boundary).
type Param struct {
	Name   string
	Type   TypeRef
	Borrow BorrowMode
}

// GenericConstraint names a generic type parameter together with the set
// of perks a concrete type argument must implement.
type GenericConstraint struct {
	Name  string
	Perks []string
}

// FuncSig is the full signature of a function, as recorded by the
// collector pass (spec §4.2) and consulted by the validator (spec §4.3).
type FuncSig struct {
	Name       string
	Params     []Param
	Return     TypeRef
	Public     bool
	Unit       string // owning unit's dotted name.
	Generics   []GenericConstraint
	Body       *Node // nil for stdlib-table entries (no body to monomorphize/codegen).
	IsStdlib   bool
}

// PerkDef is a nominal capability definition: a set of method signatures a
// type must implement (via an `extend T with P` block) to satisfy the perk.
type PerkDef struct {
	Name    string
	Methods []PerkMethodSig
}

// PerkMethodSig is one required method of a perk, by name/arity/types —
// enough to check an implementation block against the perk definition.
type PerkMethodSig struct {
	Name   string
	Params []Param
	Return TypeRef
}

// ExtensionMethod is one method declared in an `extend T:` / `extend T with
// P:` block, keyed by its receiver's textual target-type name in the
// Extensions/PerkImpls tables.
type ExtensionMethod struct {
	Name     string
	Receiver string // textual target-type name, e.g. "Point" or "List<T>".
	Params   []Param
	Return   TypeRef
	Generics []GenericConstraint
	Body     *Node
	Public   bool
}
