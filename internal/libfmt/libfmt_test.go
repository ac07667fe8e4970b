package libfmt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleMetadata() Metadata {
	return Metadata{
		SushiLibVersion: 1,
		LibraryName:     "acme/utils",
		CompiledAt:      "2026-07-31T00:00:00Z",
		Platform:        "linux",
		CompilerVersion: "sushic 0.1.0",
		PublicFunctions: []PublicFunction{
			{Name: "double", Params: []string{"i32"}, ReturnType: "i32"},
		},
		PublicConstants: []PublicConstant{{Name: "PI", Type: "f64"}},
		Structs:         []StructMeta{{Name: "Point", Fields: []string{"x:i32", "y:i32"}}},
		Enums:           []EnumMeta{{Name: "Color", Variants: []string{"Red", "Green", "Blue"}}},
		Dependencies:    []string{"io/stdio"},
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "acme_utils.slib")
	meta := sampleMetadata()
	bitcode := []byte("fake-bitcode-bytes")

	require.NoError(t, Write(path, meta, bitcode))

	got, gotBitcode, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
	assert.Equal(t, bitcode, gotBitcode)
}

func TestReadMetadataOnlyDoesNotNeedBitcode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.slib")
	meta := sampleMetadata()
	require.NoError(t, Write(path, meta, []byte("bitcode")))

	got, err := ReadMetadataOnly(path)
	require.NoError(t, err)
	assert.Equal(t, meta, got)
}

func TestReadBadMagic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.slib")
	require.NoError(t, os.WriteFile(path, []byte("not a slib file at all, just junk"), 0o644))

	_, _, err := Read(path)
	require.Error(t, err)
	fe, ok := err.(*FormatError)
	require.True(t, ok)
	assert.Equal(t, "CE3508", fe.Code)
}

func TestReadTruncatedMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "trunc.slib")
	require.NoError(t, Write(path, sampleMetadata(), []byte("bitcode")))

	full, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, full[:FixedHeaderSize+2], 0o644))

	_, _, err = Read(path)
	require.Error(t, err)
	fe, ok := err.(*FormatError)
	require.True(t, ok)
	assert.Equal(t, "CE3510", fe.Code)
}

func TestReadUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "futurever.slib")
	require.NoError(t, Write(path, sampleMetadata(), []byte("bitcode")))

	full, err := os.ReadFile(path)
	require.NoError(t, err)
	full[16] = 99 // version field starts right after the 16-byte magic.
	require.NoError(t, os.WriteFile(path, full, 0o644))

	_, _, err = Read(path)
	require.Error(t, err)
	fe, ok := err.(*FormatError)
	require.True(t, ok)
	assert.Equal(t, "CE3509", fe.Code)
}
