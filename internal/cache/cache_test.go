package cache

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sushi-lang/sushic/internal/ast"
	"github.com/sushi-lang/sushic/internal/config"
)

func newTestOpts(dir string) config.Options {
	return config.Options{
		CacheDir:     filepath.Join(dir, "__sushi_cache__"),
		OptLevel:     config.OptMem2Reg,
		TargetTriple: "x86_64-unknown-linux-gnu",
	}
}

func TestPrepareWipesOnManifestMismatch(t *testing.T) {
	dir := t.TempDir()
	opts := newTestOpts(dir)

	m := NewManager(dir, opts)
	require.NoError(t, m.Prepare(false))
	require.NoError(t, m.StoreUnitObject("main", []byte("object-bytes"), "deadbeef"))
	assert.True(t, m.HasCachedUnit("main", "deadbeef"))

	staleOpts := opts
	staleOpts.OptLevel = config.OptO2
	m2 := NewManager(dir, staleOpts)
	require.NoError(t, m2.Prepare(false))

	assert.False(t, m2.HasCachedUnit("main", "deadbeef"), "a changed opt level must invalidate the whole cache")
}

func TestPrepareKeepsMatchingManifest(t *testing.T) {
	dir := t.TempDir()
	opts := newTestOpts(dir)

	m := NewManager(dir, opts)
	require.NoError(t, m.Prepare(false))
	require.NoError(t, m.StoreUnitObject("app.math", []byte("obj"), "f00d"))

	m2 := NewManager(dir, opts)
	require.NoError(t, m2.Prepare(false))
	assert.True(t, m2.HasCachedUnit("app.math", "f00d"))
}

func TestHasCachedUnitDetectsFingerprintMismatch(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, newTestOpts(dir))
	require.NoError(t, m.Prepare(false))
	require.NoError(t, m.StoreUnitObject("main", []byte("obj"), "aaaa"))

	assert.False(t, m.HasCachedUnit("main", "bbbb"))
	assert.False(t, m.HasCachedUnit("missing", "aaaa"))
}

func TestForceRebuildAlwaysReportsMiss(t *testing.T) {
	dir := t.TempDir()
	opts := newTestOpts(dir)
	opts.ForceRebuild = true
	m := NewManager(dir, opts)
	require.NoError(t, m.Prepare(false))
	require.NoError(t, m.StoreUnitObject("main", []byte("obj"), "aaaa"))

	assert.False(t, m.HasCachedUnit("main", "aaaa"))
}

func TestStoreUnitObjectWritesAtomically(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, newTestOpts(dir))
	require.NoError(t, m.Prepare(false))
	require.NoError(t, m.StoreUnitObject("nested.unit", []byte("payload"), "cafe"))

	objPath := m.UnitObjectPath("nested.unit")
	data, err := os.ReadFile(objPath)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	entries, err := os.ReadDir(filepath.Dir(objPath))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "no leftover temp file after a successful store")
	}
}

func TestCollectAllObjectPaths(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir, newTestOpts(dir))
	require.NoError(t, m.Prepare(false))
	require.NoError(t, m.StoreUnitObject("main", []byte("a"), "1"))
	require.NoError(t, m.StoreStdlibObject("io/stdio", []byte("b"), "2"))
	require.NoError(t, m.StoreLibObject("acme/utils", []byte("c"), "3"))

	paths, err := m.CollectAllObjectPaths()
	require.NoError(t, err)
	assert.Len(t, paths, 3)
}

func TestComputeUnitFingerprintChangesWithSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.sushi")
	require.NoError(t, os.WriteFile(path, []byte("fn main() {}"), 0o644))

	unit := &ast.Unit{Name: "main", Path: path}
	graph := &ast.Graph{Units: map[string]*ast.Unit{"main": unit}}
	tables := ast.NewTables(ast.NewArena())

	fp1, err := ComputeUnitFingerprint(unit, graph, tables)
	require.NoError(t, err)
	assert.Len(t, fp1, 64, "SHA-256 hex digest is 64 characters")

	require.NoError(t, os.WriteFile(path, []byte("fn main() { return }"), 0o644))
	fp2, err := ComputeUnitFingerprint(unit, graph, tables)
	require.NoError(t, err)
	assert.NotEqual(t, fp1, fp2)
}

func TestComputeUnitFingerprintStableAcrossRepeatedCalls(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.sushi")
	require.NoError(t, os.WriteFile(path, []byte("fn main() {}"), 0o644))

	unit := &ast.Unit{Name: "main", Path: path, ExportedFuncs: []string{"main"}}
	graph := &ast.Graph{Units: map[string]*ast.Unit{"main": unit}}
	tables := ast.NewTables(ast.NewArena())
	tables.Funcs["main"] = &ast.FuncSig{Name: "main", Unit: "main", Public: true}

	fp1, err := ComputeUnitFingerprint(unit, graph, tables)
	require.NoError(t, err)
	fp2, err := ComputeUnitFingerprint(unit, graph, tables)
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2)
}

func TestComputeStdlibFingerprintOrderIndependent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.bc")
	b := filepath.Join(dir, "b.bc")
	require.NoError(t, os.WriteFile(a, []byte("AAAA"), 0o644))
	require.NoError(t, os.WriteFile(b, []byte("BBBB"), 0o644))

	fp1, err := ComputeStdlibFingerprint([]string{a, b})
	require.NoError(t, err)
	fp2, err := ComputeStdlibFingerprint([]string{b, a})
	require.NoError(t, err)
	assert.Equal(t, fp1, fp2, "fingerprint must not depend on input slice order")
}
