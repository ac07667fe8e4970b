// Package cache implements spec §4.6's incremental build cache: a
// __sushi_cache__ directory keyed by a JSON manifest, per-unit/stdlib/
// library object files each paired with a SHA-256 fingerprint sidecar,
// and the write-then-atomic-rename protocol spec §5 requires for partial
// artifacts to always be safe to discard and re-derive.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/sushi-lang/sushic/internal/config"
)

const (
	dirName      = "__sushi_cache__"
	manifestName = "cache.json"
	unitsDir     = "units"
	stdlibDir    = "stdlib"
	libsDir      = "libs"
)

// Manifest is the cache.json contract of spec §4.6: the three global
// parameters whose change invalidates the whole cache, not just one
// entry.
type Manifest struct {
	CompilerVersion string `json:"compiler_version"`
	TargetTriple    string `json:"target_triple"`
	OptLevel        string `json:"opt_level"`
}

func currentManifest(opts config.Options) Manifest {
	return Manifest{
		CompilerVersion: config.CompilerVersion,
		TargetTriple:    opts.TargetTriple,
		OptLevel:        opts.OptLevel.String(),
	}
}

func (m Manifest) matches(other Manifest) bool {
	return m == other
}

func (m *Manager) manifestPath() string {
	return filepath.Join(m.root, manifestName)
}

// readManifest loads cache.json, returning (zero, false) when it is
// absent or unreadable -- either case means "treat the cache as stale",
// the same outcome is_valid in the original cache manager produces for a
// missing or corrupt manifest.
func (m *Manager) readManifest() (Manifest, bool) {
	data, err := os.ReadFile(m.manifestPath())
	if err != nil {
		return Manifest{}, false
	}
	var man Manifest
	if err := json.Unmarshal(data, &man); err != nil {
		return Manifest{}, false
	}
	return man, true
}

// writeManifest overwrites cache.json with the manager's current
// (compiler version, target triple, opt level).
func (m *Manager) writeManifest() error {
	if err := m.ensureDirs(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.want, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(m.manifestPath(), data)
}
