// Package libfmt implements the .slib library artifact format of spec §6:
// a fixed binary header, a MessagePack-encoded metadata blob, and a raw
// LLVM bitcode blob, all in one file. Grounded on
// original_source/sushi_lang/backend/library_format.py's LibraryFormat.
package libfmt

import (
	"fmt"

	"github.com/sushi-lang/sushic/internal/diag"
)

// Magic is the 16-byte signature every .slib file starts with: the UTF-8
// bytes of "🍣SUSHILIB🍣" (each sushi emoji is 4 bytes).
var Magic = [16]byte{0xF0, 0x9F, 0x8D, 0xA3, 'S', 'U', 'S', 'H', 'I', 'L', 'I', 'B', 0xF0, 0x9F, 0x8D, 0xA3}

const (
	// Version is the only format version this package reads or writes.
	Version uint32 = 1

	// FixedHeaderSize is magic(16) + version(4) + reserved(24) + metadata
	// length(8).
	FixedHeaderSize = 16 + 4 + 24 + 8

	// MaxFileSize is the spec §6 sanity ceiling on a whole .slib file.
	MaxFileSize = 1 << 30
)

// PublicFunction is one exported function entry in a library's metadata
// (spec §6's public_functions list).
type PublicFunction struct {
	Name       string   `codec:"name"`
	Params     []string `codec:"params"`
	ReturnType string   `codec:"return_type"`
	IsGeneric  bool     `codec:"is_generic"`
	TypeParams []string `codec:"type_params"`
}

// PublicConstant is one exported constant entry.
type PublicConstant struct {
	Name string `codec:"name"`
	Type string `codec:"type"`
}

// StructMeta/EnumMeta describe one exported struct/enum's shape, enough
// for a dependent compilation to type-check against without the bitcode.
type StructMeta struct {
	Name   string   `codec:"name"`
	Fields []string `codec:"fields"` // "name:type" pairs, display form.
}

type EnumMeta struct {
	Name     string   `codec:"name"`
	Variants []string `codec:"variants"` // "name(payload,...)" display form.
}

// Metadata is the deserialized form of the MessagePack metadata blob
// (spec §6's key list).
type Metadata struct {
	SushiLibVersion uint32           `codec:"sushi_lib_version"`
	LibraryName     string           `codec:"library_name"`
	CompiledAt      string           `codec:"compiled_at"` // ISO8601 UTC.
	Platform        string           `codec:"platform"`    // "darwin" | "linux".
	CompilerVersion string           `codec:"compiler_version"`
	PublicFunctions []PublicFunction `codec:"public_functions"`
	PublicConstants []PublicConstant `codec:"public_constants"`
	Structs         []StructMeta     `codec:"structs"`
	Enums           []EnumMeta       `codec:"enums"`
	Dependencies    []string         `codec:"dependencies"`
}

// FormatError carries a diag registry code plus its interpolation fields
// for one of the CE3508-CE3513 format violations, so a caller with a
// diag.Reporter in scope can report it the same way every other pass
// does, while a standalone caller (the CLI's metadata-query flag) can
// still just print err.Error().
type FormatError struct {
	Code   string
	Fields map[string]any
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s %v", e.Code, e.Fields)
}

// Report emits e through rep the same way every other CE3xxx diagnostic
// is raised (spec §7: library artifact errors have no source span of
// their own).
func (e *FormatError) Report(rep *diag.Reporter) {
	rep.Emit(e.Code, nil, e.Fields)
}
