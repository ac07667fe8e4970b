// Package ast holds the data model consumed and produced by every pass of the
// compiler core: the type system, the syntax tree node shape, source units,
// and the global symbol tables that the collector pass populates.
package ast

import "fmt"

// Kind tags the variant of a Type value.
type Kind int

const (
	KindInvalid Kind = iota
	KindI8
	KindI16
	KindI32
	KindI64
	KindU8
	KindU16
	KindU32
	KindU64
	KindF32
	KindF64
	KindBool
	KindBlank // the "~" unit type.
	KindString
	KindStdin
	KindStdout
	KindStderr
	KindFileHandle
	KindFixedArray
	KindDynArray
	KindStruct
	KindEnum
	KindGenericRef
	KindPointer
	KindIterator
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindU8:
		return "u8"
	case KindU16:
		return "u16"
	case KindU32:
		return "u32"
	case KindU64:
		return "u64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindBool:
		return "bool"
	case KindBlank:
		return "~"
	case KindString:
		return "string"
	case KindStdin:
		return "stdin"
	case KindStdout:
		return "stdout"
	case KindStderr:
		return "stderr"
	case KindFileHandle:
		return "filehandle"
	case KindFixedArray:
		return "fixed-array"
	case KindDynArray:
		return "array"
	case KindStruct:
		return "struct"
	case KindEnum:
		return "enum"
	case KindGenericRef:
		return "generic-ref"
	case KindPointer:
		return "pointer"
	case KindIterator:
		return "iterator"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// BorrowMode distinguishes &peek (shared-read) from &poke (exclusive-write)
// references, and the "not a reference" default for owned values.
type BorrowMode int

const (
	BorrowNone BorrowMode = iota
	BorrowShared
	BorrowExclusive
)

func (b BorrowMode) String() string {
	switch b {
	case BorrowShared:
		return "&peek"
	case BorrowExclusive:
		return "&poke"
	default:
		return ""
	}
}

// TypeRef is an index into a TypeArena. The zero value is never a valid
// reference to a real type; Arena reserves it. Resolved-type pointers live
// inside struct/enum fields as further TypeRefs into the same arena, which
// is what lets recursive and mutually-recursive struct/enum definitions
// exist without Go-level pointer cycles (spec §9, "cyclic references
// between AST nodes and their resolved types").
type TypeRef int32

// Invalid is the zero TypeRef; no real type is ever interned there.
const Invalid TypeRef = 0

// StructField is one (name, type) pair of a struct type, in declaration order.
type StructField struct {
	Name string
	Type TypeRef
}

// EnumVariant is one named variant of an enum type with its ordered payload
// types (possibly empty, for a unit-like variant).
type EnumVariant struct {
	Name    string
	Payload []TypeRef
}

// Type is the tagged sum described in spec §3. Only the fields relevant to
// Kind are meaningful; the rest are zero.
type Type struct {
	Kind   Kind
	Name   string // struct/enum/generic-ref base name, or Unknown placeholder name.
	Elem   TypeRef
	Len    int64 // fixed-array compile-time length.
	Fields []StructField
	Variants []EnumVariant
	TypeArgs []TypeRef // generic reference type arguments, pre-monomorphization.
	Borrow BorrowMode
}

func (t Type) String() string {
	switch t.Kind {
	case KindStruct, KindEnum, KindUnknown, KindGenericRef:
		return t.Name
	default:
		return t.Kind.String()
	}
}

// Arena owns every interned Type value for one compilation. Built-in types
// occupy fixed low indices so codegen and the validator can compare them by
// TypeRef equality without a map lookup.
type Arena struct {
	types []Type
}

// Fixed indices for built-ins, populated by NewArena.
const (
	RefI8 TypeRef = iota + 1
	RefI16
	RefI32
	RefI64
	RefU8
	RefU16
	RefU32
	RefU64
	RefF32
	RefF64
	RefBool
	RefBlank
	RefString
	RefStdin
	RefStdout
	RefStderr
	RefFileHandle
	firstDynamic
)

// NewArena returns a fresh Arena with all built-in types pre-interned at
// their fixed indices.
func NewArena() *Arena {
	a := &Arena{types: make([]Type, 1, 64)} // index 0 reserved (Invalid).
	builtins := []Kind{
		KindI8, KindI16, KindI32, KindI64,
		KindU8, KindU16, KindU32, KindU64,
		KindF32, KindF64, KindBool, KindBlank, KindString,
		KindStdin, KindStdout, KindStderr, KindFileHandle,
	}
	for _, k := range builtins {
		a.types = append(a.types, Type{Kind: k})
	}
	return a
}

// Intern stores t and returns the TypeRef addressing it. Structural
// deduplication (so that two identical fixed-array-of-i32 types share a
// TypeRef) is the caller's responsibility via a cache keyed on a display
// form; Intern itself always appends.
func (a *Arena) Intern(t Type) TypeRef {
	a.types = append(a.types, t)
	return TypeRef(len(a.types) - 1)
}

// At dereferences r. Panics on an out-of-range ref, which is an internal
// compiler error (CE0xxx territory): a TypeRef should never outlive the
// arena that minted it or reference past its length.
func (a *Arena) At(r TypeRef) Type {
	if int(r) <= 0 || int(r) >= len(a.types) {
		panic(fmt.Sprintf("ast: type arena index %d out of range [1,%d)", r, len(a.types)))
	}
	return a.types[r]
}

// Set overwrites the type stored at r in place. Used by the monomorphization
// engine and the struct/enum collector to patch forward-declared
// placeholders once their real shape is known, without reassigning every
// TypeRef that already points at r.
func (a *Arena) Set(r TypeRef, t Type) {
	if int(r) <= 0 || int(r) >= len(a.types) {
		panic(fmt.Sprintf("ast: type arena index %d out of range [1,%d)", r, len(a.types)))
	}
	a.types[r] = t
}

// IsNumeric reports whether k is one of the signed/unsigned integer or
// float built-in kinds.
func (k Kind) IsNumeric() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindU8, KindU16, KindU32, KindU64, KindF32, KindF64:
		return true
	default:
		return false
	}
}

// IsInteger reports whether k is a signed or unsigned integer built-in kind.
func (k Kind) IsInteger() bool {
	switch k {
	case KindI8, KindI16, KindI32, KindI64, KindU8, KindU16, KindU32, KindU64:
		return true
	default:
		return false
	}
}

// IsFloat reports whether k is f32 or f64.
func (k Kind) IsFloat() bool {
	return k == KindF32 || k == KindF64
}

// RequiresCleanup reports whether a value of this type needs a destructor
// call at scope exit under the RAII discipline of spec §4.4.5. The Arena is
// needed to recurse into struct fields and enum payloads.
func (a *Arena) RequiresCleanup(r TypeRef) bool {
	seen := make(map[TypeRef]bool)
	var rec func(TypeRef) bool
	rec = func(r TypeRef) bool {
		if seen[r] {
			return false // break structural recursion; a self-referential struct must own a pointer/box to exist.
		}
		seen[r] = true
		t := a.At(r)
		switch t.Kind {
		case KindString, KindDynArray:
			return true
		case KindStruct:
			for _, f := range t.Fields {
				if rec(f.Type) {
					return true
				}
			}
			return false
		case KindEnum:
			for _, v := range t.Variants {
				for _, p := range v.Payload {
					if rec(p) {
						return true
					}
				}
			}
			return false
		case KindGenericRef:
			// An un-monomorphized reference to owning-box/list/hash-map/optional/result
			// always requires cleanup; the monomorphization engine resolves the precise
			// element-type recursion once a concrete instantiation exists.
			switch t.Name {
			case "Box", "List", "HashMap":
				return true
			case "Optional", "Result":
				for _, a1 := range t.TypeArgs {
					if rec(a1) {
						return true
					}
				}
				return false
			default:
				return true
			}
		default:
			return false
		}
	}
	return rec(r)
}
