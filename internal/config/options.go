// Package config resolves the external interface described in spec §6:
// the CLI option contract (spelled out concretely by cmd/sushic, a non-goal
// surface per spec §1) and the SUSHI_CWD / SUSHI_LIB_PATH environment
// variables.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// CompilerVersion is the value recorded in the cache manifest and library
// artifact metadata (spec §4.6, §6); a version bump invalidates every
// existing cache entry and embeds a detectable marker in .slib files.
const CompilerVersion = "sushic 0.1.0"

// OptLevel is the optimization level contract of spec §6.
type OptLevel int

const (
	OptNone OptLevel = iota
	OptMem2Reg
	OptO1
	OptO2
	OptO3
)

// String renders o back to the spelling ParseOptLevel accepts, used by the
// cache manifest (spec §4.6) to record the opt level a cached object was
// built under.
func (o OptLevel) String() string {
	switch o {
	case OptNone:
		return "none"
	case OptO1:
		return "O1"
	case OptO2:
		return "O2"
	case OptO3:
		return "O3"
	default:
		return "mem2reg"
	}
}

func ParseOptLevel(s string) (OptLevel, bool) {
	switch s {
	case "none":
		return OptNone, true
	case "mem2reg", "":
		return OptMem2Reg, true
	case "O1":
		return OptO1, true
	case "O2":
		return OptO2, true
	case "O3":
		return OptO3, true
	default:
		return OptMem2Reg, false
	}
}

// Options is the fully-resolved set of knobs named by spec §6, generalized
// from the teacher's util.Options (architecture target fields kept; VSL's
// thread-count/token-stream flags dropped, as they named a different
// language's frontend).
type Options struct {
	Src      string
	Out      string
	CacheDir string

	OptLevel     OptLevel
	EmitTextIR   bool
	KeepObject   bool
	DumpAST      bool
	SkipVerify   bool
	LibraryMode  bool
	QueryLibrary string // path to a library artifact to query metadata for, instead of compiling.
	ForceRebuild bool
	WipeCache    bool
	Verbose      bool

	// SimpleLink selects the "simple" native link-in fallback of spec
	// §4.5 over the default two-phase symbol-deduplicating linker.
	SimpleLink bool

	TargetTriple string // empty means "host default".
}

// ResolveCWD implements the SUSHI_CWD contract of spec §6: relative source
// paths resolve against this directory instead of the process's actual
// working directory, so a wrapper script can invoke the compiler from an
// arbitrary location.
func ResolveCWD() (string, error) {
	if v := os.Getenv("SUSHI_CWD"); v != "" {
		return v, nil
	}
	return os.Getwd()
}

// ResolveSrcPath joins opt.Src against ResolveCWD when it is not already
// absolute.
func ResolveSrcPath(src string) (string, error) {
	if filepath.IsAbs(src) {
		return src, nil
	}
	cwd, err := ResolveCWD()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, src), nil
}

// StdlibSearchPaths mirrors LibrarySearchPaths for the standard-library
// bitcode set: an OS-path-separator delimited SUSHI_STDLIB_PATH list of
// directories holding precompiled stdlib module artifacts (spec §6,
// "the core does not care how they are produced"), always falling back to
// the current working directory so a project vendoring its own stdlib
// build still resolves.
func StdlibSearchPaths() []string {
	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	var paths []string
	if v := os.Getenv("SUSHI_STDLIB_PATH"); v != "" {
		for _, p := range strings.Split(v, sep) {
			p = strings.TrimSpace(p)
			if p != "" {
				paths = append(paths, p)
			}
		}
	}
	if cwd, err := ResolveCWD(); err == nil {
		for _, p := range paths {
			if p == cwd {
				return paths
			}
		}
		paths = append(paths, cwd)
	}
	return paths
}

// LibrarySearchPaths implements the SUSHI_LIB_PATH contract restored from
// original_source/backend/library_linker.py: an OS-path-separator
// delimited list of directories to search for external-library artifacts,
// always falling back to the current working directory.
func LibrarySearchPaths() []string {
	sep := ":"
	if runtime.GOOS == "windows" {
		sep = ";"
	}
	var paths []string
	if v := os.Getenv("SUSHI_LIB_PATH"); v != "" {
		for _, p := range strings.Split(v, sep) {
			p = strings.TrimSpace(p)
			if p != "" {
				paths = append(paths, p)
			}
		}
	}
	if cwd, err := ResolveCWD(); err == nil {
		for _, p := range paths {
			if p == cwd {
				return paths
			}
		}
		paths = append(paths, cwd)
	}
	return paths
}
