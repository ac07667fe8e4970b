package cache

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/sushi-lang/sushic/internal/config"
)

// Manager owns one __sushi_cache__ directory for the duration of a single
// compilation. It never holds a lock across process invocations -- spec
// §5 makes the whole core single-threaded and non-reentrant, so the only
// safety property that matters is that a crash mid-write never leaves a
// corrupt .o or manifest in place, which the write-then-rename protocol
// below guarantees regardless of concurrent access.
type Manager struct {
	root         string
	unitsPath    string
	stdlibPath   string
	libsPath     string
	want         Manifest
	forceRebuild bool
}

// NewManager resolves opts.CacheDir (defaulting to <project root>/__sushi_cache__)
// into a Manager. It does not touch the filesystem; call Prepare next.
func NewManager(projectRoot string, opts config.Options) *Manager {
	root := opts.CacheDir
	if root == "" {
		root = filepath.Join(projectRoot, dirName)
	}
	return &Manager{
		root:         root,
		unitsPath:    filepath.Join(root, unitsDir),
		stdlibPath:   filepath.Join(root, stdlibDir),
		libsPath:     filepath.Join(root, libsDir),
		want:         currentManifest(opts),
		forceRebuild: opts.ForceRebuild,
	}
}

// Prepare implements spec §4.6's start-of-run contract: wipe the cache if
// --wipe-cache was passed or the manifest doesn't match the current
// (compiler version, target triple, opt level), then (re)write the
// manifest and ensure the three subdirectories exist. forceRebuild alone
// does not wipe the directory -- it makes every unit, stdlib and library
// staleness check (HasCachedUnit, HasCachedStdlib, HasCachedLib) report a
// miss (spec §6's "forcing a full rebuild" flag), so each of those objects
// is stored again during the run.
func (m *Manager) Prepare(wipe bool) error {
	if wipe {
		if err := m.wipe(); err != nil {
			return err
		}
	} else if got, ok := m.readManifest(); !ok || !got.matches(m.want) {
		if err := m.wipe(); err != nil {
			return err
		}
	}
	return m.writeManifest()
}

func (m *Manager) wipe() error {
	if err := os.RemoveAll(m.root); err != nil {
		return err
	}
	return nil
}

func (m *Manager) ensureDirs() error {
	for _, d := range []string{m.unitsPath, m.stdlibPath, m.libsPath} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// --- per-unit object cache ------------------------------------------------

// UnitObjectPath returns the cached .o path for a dotted unit name,
// mirroring the source tree the way the original cache manager's
// unit_object_path does (dots become path separators so nested unit names
// read like a directory mirror, e.g. "app.math.vectors" -> units/app/math/vectors.o).
func (m *Manager) UnitObjectPath(unitName string) string {
	return filepath.Join(m.unitsPath, strings.ReplaceAll(unitName, ".", string(filepath.Separator))+".o")
}

// HasCachedUnit reports whether unitName has a cached .o whose fingerprint
// sidecar matches fingerprint, and forceRebuild was not requested.
func (m *Manager) HasCachedUnit(unitName, fingerprint string) bool {
	if m.forceRebuild {
		return false
	}
	return m.hasCached(m.UnitObjectPath(unitName), fingerprint)
}

// StoreUnitObject atomically writes objBytes to unitName's cache slot and
// records fingerprint in its sidecar.
func (m *Manager) StoreUnitObject(unitName string, objBytes []byte, fingerprint string) error {
	return m.store(m.UnitObjectPath(unitName), objBytes, fingerprint)
}

// --- stdlib object cache ---------------------------------------------------

// StdlibObjectPath returns the cached .o path for a stdlib module name,
// flattening path separators to underscores the way the original
// stdlib_object_path does ("io/stdio" -> stdlib/io_stdio.o).
func (m *Manager) StdlibObjectPath(stdlibModule string) string {
	safe := strings.ReplaceAll(stdlibModule, "/", "_")
	return filepath.Join(m.stdlibPath, safe+".o")
}

func (m *Manager) HasCachedStdlib(stdlibModule, fingerprint string) bool {
	if m.forceRebuild {
		return false
	}
	return m.hasCached(m.StdlibObjectPath(stdlibModule), fingerprint)
}

func (m *Manager) StoreStdlibObject(stdlibModule string, objBytes []byte, fingerprint string) error {
	return m.store(m.StdlibObjectPath(stdlibModule), objBytes, fingerprint)
}

// --- external library object cache ----------------------------------------

// LibObjectPath returns the cached .o path for an external library path.
func (m *Manager) LibObjectPath(libPath string) string {
	safe := strings.ReplaceAll(libPath, "/", "_")
	return filepath.Join(m.libsPath, safe+".o")
}

func (m *Manager) HasCachedLib(libPath, fingerprint string) bool {
	if m.forceRebuild {
		return false
	}
	return m.hasCached(m.LibObjectPath(libPath), fingerprint)
}

func (m *Manager) StoreLibObject(libPath string, objBytes []byte, fingerprint string) error {
	return m.store(m.LibObjectPath(libPath), objBytes, fingerprint)
}

// CollectAllObjectPaths returns the path of every cached .o under units/,
// stdlib/, and libs/ -- the final link stage (spec §4.5) reads this list
// regardless of which units actually recompiled this run.
func (m *Manager) CollectAllObjectPaths() ([]string, error) {
	var paths []string
	for _, dir := range []string{m.unitsPath, m.stdlibPath, m.libsPath} {
		err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".o") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return paths, nil
}

// --- shared helpers ---------------------------------------------------------

func fingerprintSidecar(objPath string) string {
	return strings.TrimSuffix(objPath, filepath.Ext(objPath)) + ".fingerprint"
}

func (m *Manager) hasCached(objPath, fingerprint string) bool {
	if _, err := os.Stat(objPath); err != nil {
		return false
	}
	stored, err := os.ReadFile(fingerprintSidecar(objPath))
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(stored)) == fingerprint
}

func (m *Manager) store(objPath string, objBytes []byte, fingerprint string) error {
	if err := os.MkdirAll(filepath.Dir(objPath), 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(objPath, objBytes); err != nil {
		return err
	}
	return writeFileAtomic(fingerprintSidecar(objPath), []byte(fingerprint))
}

// writeFileAtomic writes data to a uuid-suffixed temp file in path's own
// directory, then renames it into place -- spec §5's "`.o` files are
// written fully then renamed into place" contract, generalized to every
// file this package persists (manifest included) so a killed process
// never leaves a half-written file at the final path. Grounded on the
// write-temp-then-os.Rename shape of the pack's own AtomicWriter.WriteFile,
// minus its cross-process locking (irrelevant here: spec §5 makes this
// core itself single-threaded and non-reentrant).
func writeFileAtomic(path string, data []byte) error {
	tmp := path + "." + uuid.NewString() + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// hexDigest is a small naming convenience for fingerprint.go's SHA-256
// call sites so they don't each re-spell hex.EncodeToString.
func hexDigest(sum []byte) string {
	return hex.EncodeToString(sum)
}
