// Package llvm implements pass D of spec §2/§4.4: lowering the typed,
// fully-monomorphized ast.Tables into an LLVM module via
// tinygo.org/x/go-llvm, the same binding the teacher repo's own codegen
// backend is built on.
package llvm

import (
	"tinygo.org/x/go-llvm"

	"github.com/sushi-lang/sushic/internal/ast"
)

// Generator holds the one LLVM context/module/builder a single compilation
// lowers into, plus the symbol tables pass C produced and the running
// per-type lowering cache.
type Generator struct {
	ctx     llvm.Context
	mod     llvm.Module
	builder llvm.Builder

	tables *ast.Tables

	// llTypes memoizes the lowering of a TypeRef so a recursive struct type
	// is only ever lowered once (an opaque struct body is set in place,
	// matching LLVM's own two-step named-struct creation protocol).
	llTypes map[ast.TypeRef]llvm.Type

	// globalStrings interns string-literal constants by content so two
	// identical literals share one global (spec §4.4.1's fat-pointer string
	// representation still wants a single backing byte buffer per distinct
	// literal).
	globalStrings map[string]llvm.Value

	runtime runtimeHelpers
}

// New creates a Generator targeting moduleName within ctx. wordBits is
// accepted but not consulted: the word size (pointer-sized integer) is
// always 64 bits, see wordType. The
// caller owns ctx and supplies it (rather than New creating its own)
// because internal/link's LinkModules requires every module it merges —
// this one plus every parsed stdlib/library bitcode module — to belong
// to the same LLVMContext.
func New(ctx llvm.Context, moduleName string, tables *ast.Tables, wordBits int) *Generator {
	g := &Generator{
		ctx:           ctx,
		mod:           ctx.NewModule(moduleName),
		builder:       ctx.NewBuilder(),
		tables:        tables,
		llTypes:       make(map[ast.TypeRef]llvm.Type),
		globalStrings: make(map[string]llvm.Value),
	}
	g.runtime = declareRuntimeHelpers(g)
	return g
}

// Dispose releases the Generator's module and builder. The context
// itself is owned by the pipeline caller that created it and is disposed
// there, once, after the post-link module it also owns is done with.
func (g *Generator) Dispose() {
	g.builder.Dispose()
	g.mod.Dispose()
}

// Module exposes the in-progress LLVM module (internal/link consumes this
// directly, and internal/cache serializes it to bitcode for object-file
// emission).
func (g *Generator) Module() llvm.Module { return g.mod }

// wordType returns the fat-pointer length/capacity field integer type
// (spec §4.4.1/§4.4.3). It is i64 on every target; no i32 variant is
// produced.
func (g *Generator) wordType() llvm.Type {
	return g.ctx.Int64Type()
}

// lowerType maps a TypeRef to its LLVM representation, memoized by ref.
// Strings and dynamic arrays/containers lower to a fat pointer: a
// {pointer, length, capacity} struct (spec §4.4.1) rather than a bare i8*,
// so bounds checks never need a separate out-of-band length lookup.
func (g *Generator) lowerType(r ast.TypeRef) llvm.Type {
	if t, ok := g.llTypes[r]; ok {
		return t
	}
	ty := g.tables.Arena.At(r)
	var lt llvm.Type
	switch ty.Kind {
	case ast.KindI8, ast.KindU8:
		lt = g.ctx.Int8Type()
	case ast.KindI16, ast.KindU16:
		lt = g.ctx.Int16Type()
	case ast.KindI32, ast.KindU32:
		lt = g.ctx.Int32Type()
	case ast.KindI64, ast.KindU64:
		lt = g.ctx.Int64Type()
	case ast.KindF32:
		lt = g.ctx.FloatType()
	case ast.KindF64:
		lt = g.ctx.DoubleType()
	case ast.KindBool:
		lt = g.ctx.Int1Type()
	case ast.KindBlank:
		lt = g.ctx.VoidType()
	case ast.KindString:
		lt = g.fatPointerType(g.ctx.Int8Type())
	case ast.KindFixedArray:
		lt = llvm.ArrayType(g.lowerType(ty.Elem), int(ty.Len))
	case ast.KindDynArray:
		lt = g.fatPointerType(g.lowerType(ty.Elem))
	case ast.KindPointer:
		lt = llvm.PointerType(g.lowerType(ty.Elem), 0)
	case ast.KindStruct:
		lt = g.lowerStruct(r, ty)
	case ast.KindEnum:
		lt = g.lowerEnum(r, ty)
	case ast.KindGenericRef:
		lt = g.lowerBuiltinContainer(ty)
	case ast.KindIterator:
		// {i32 index, i32 length, T* data_ptr}; a length of -1 is the
		// streaming-iterator sentinel whose data_ptr names an external
		// source rather than an indexable buffer.
		lt = g.ctx.StructType([]llvm.Type{
			g.ctx.Int32Type(),
			g.ctx.Int32Type(),
			llvm.PointerType(g.lowerType(ty.Elem), 0),
		}, false)
	default:
		lt = g.ctx.Int8Type()
	}
	g.llTypes[r] = lt
	return lt
}

// fatPointerType returns the {elem*, len, cap} struct spec §4.4.1 and
// §4.4.3 both describe: strings use it with elem=i8, dynamic arrays/List
// with elem=the element type.
func (g *Generator) fatPointerType(elem llvm.Type) llvm.Type {
	return g.ctx.StructType([]llvm.Type{
		llvm.PointerType(elem, 0),
		g.wordType(),
		g.wordType(),
	}, false)
}

func (g *Generator) lowerStruct(r ast.TypeRef, ty ast.Type) llvm.Type {
	named := g.ctx.StructCreateNamed(ty.Name)
	g.llTypes[r] = named // break recursive-field cycles before lowering fields.
	fields := make([]llvm.Type, len(ty.Fields))
	for i, f := range ty.Fields {
		fields[i] = g.lowerType(f.Type)
	}
	named.StructSetBody(fields, false)
	return named
}

// lowerEnum lowers a tagged union as {i32 tag, [N x i8] payload}, N sized to
// the widest variant payload so every variant fits the same storage (spec
// §4.4.2's pattern-match lowering switches on the tag field).
func (g *Generator) lowerEnum(r ast.TypeRef, ty ast.Type) llvm.Type {
	named := g.ctx.StructCreateNamed(ty.Name)
	g.llTypes[r] = named
	maxSize := 0
	for _, v := range ty.Variants {
		sz := 0
		for _, p := range v.Payload {
			sz += g.sizeOfType(p)
		}
		if sz > maxSize {
			maxSize = sz
		}
	}
	payload := llvm.ArrayType(g.ctx.Int8Type(), maxSize)
	named.StructSetBody([]llvm.Type{g.ctx.Int32Type(), payload}, false)
	return named
}

// lowerBuiltinContainer lowers Box/List/HashMap/Optional/Result to their
// inline-emitted layout (spec §4.4.3): Box is a bare pointer, List/HashMap
// are fat-pointer-backed dynamic buffers, Optional/Result share the tagged
// union layout lowerEnum would produce for a concrete {Some,None}/{Ok,Err}
// enum built from their type arguments.
func (g *Generator) lowerBuiltinContainer(ty ast.Type) llvm.Type {
	switch ty.Name {
	case "Box":
		elem := g.ctx.Int8Type()
		if len(ty.TypeArgs) > 0 {
			elem = g.lowerType(ty.TypeArgs[0])
		}
		return llvm.PointerType(elem, 0)
	case "List":
		elem := g.ctx.Int8Type()
		if len(ty.TypeArgs) > 0 {
			elem = g.lowerType(ty.TypeArgs[0])
		}
		return g.fatPointerType(elem)
	case "HashMap":
		// Open-addressed entry array: {key, value, state} per entry (state
		// hmEmpty/hmOccupied/hmTombstone, containers.go), plus
		// a dedicated four-field header {entries*, size, capacity,
		// tombstones} rather than the generic three-field fat pointer, since
		// load-factor resize (spec §4.4.3) needs the tombstone count carried
		// alongside size and capacity.
		keyT, valT := g.ctx.Int8Type(), g.ctx.Int8Type()
		if len(ty.TypeArgs) > 0 {
			keyT = g.lowerType(ty.TypeArgs[0])
		}
		if len(ty.TypeArgs) > 1 {
			valT = g.lowerType(ty.TypeArgs[1])
		}
		entry := g.ctx.StructType([]llvm.Type{keyT, valT, g.ctx.Int8Type()}, false)
		return g.ctx.StructType([]llvm.Type{
			llvm.PointerType(entry, 0),
			g.wordType(),
			g.wordType(),
			g.wordType(),
		}, false)
	case "Optional":
		payload := 0
		if len(ty.TypeArgs) > 0 {
			payload = g.sizeOfType(ty.TypeArgs[0])
		}
		return g.ctx.StructType([]llvm.Type{g.ctx.Int32Type(), llvm.ArrayType(g.ctx.Int8Type(), payload)}, false)
	case "Result":
		payload := 0
		for _, a := range ty.TypeArgs {
			if s := g.sizeOfType(a); s > payload {
				payload = s
			}
		}
		return g.ctx.StructType([]llvm.Type{g.ctx.Int32Type(), llvm.ArrayType(g.ctx.Int8Type(), payload)}, false)
	default:
		return llvm.PointerType(g.ctx.Int8Type(), 0)
	}
}

// sizeOfType estimates a type's storage size in bytes for enum/Optional/
// Result payload sizing, good enough for the inline container layouts this
// package controls end to end (it never needs to match a foreign ABI).
func (g *Generator) sizeOfType(r ast.TypeRef) int {
	ty := g.tables.Arena.At(r)
	switch ty.Kind {
	case ast.KindI8, ast.KindU8, ast.KindBool:
		return 1
	case ast.KindI16, ast.KindU16:
		return 2
	case ast.KindI32, ast.KindU32, ast.KindF32:
		return 4
	case ast.KindI64, ast.KindU64, ast.KindF64:
		return 8
	case ast.KindString, ast.KindDynArray:
		return 24 // fat pointer: ptr + len + cap, 8 bytes each on a 64-bit target.
	case ast.KindPointer:
		return 8
	case ast.KindFixedArray:
		return int(ty.Len) * g.sizeOfType(ty.Elem)
	case ast.KindStruct:
		total := 0
		for _, f := range ty.Fields {
			total += g.sizeOfType(f.Type)
		}
		return total
	case ast.KindEnum:
		max := 0
		for _, v := range ty.Variants {
			sz := 0
			for _, p := range v.Payload {
				sz += g.sizeOfType(p)
			}
			if sz > max {
				max = sz
			}
		}
		return 4 + max
	default:
		return 8
	}
}
