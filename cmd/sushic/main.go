// Command sushic is the CLI surface of spec §6: a thin cobra front end
// that turns flags into config.Options and hands everything else to
// internal/pipeline. It never touches lexing, parsing, or diagnostic
// rendering itself -- those stay behind the Builder seam and the
// diag.Diagnostic values this command does no more than print.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sushi-lang/sushic/internal/config"
	"github.com/sushi-lang/sushic/internal/pipeline"
	"github.com/sushi-lang/sushic/internal/unitgraph"
)

func main() {
	var opts config.Options
	var optLevelFlag string

	root := &cobra.Command{
		Use:   "sushic <source>",
		Short: "Compile a sushi source file to a native object or library artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Src = args[0]
			lvl, ok := config.ParseOptLevel(optLevelFlag)
			if !ok {
				return fmt.Errorf("unrecognized optimization level %q", optLevelFlag)
			}
			opts.OptLevel = lvl
			return runCompile(opts)
		},
	}

	flags := root.Flags()
	flags.StringVarP(&opts.Out, "out", "o", "", "output path (default derived from the source file name)")
	flags.StringVar(&optLevelFlag, "opt", "mem2reg", "optimization level: none|mem2reg|O1|O2|O3")
	flags.BoolVar(&opts.EmitTextIR, "emit-ir", false, "also write textual LLVM IR alongside the output")
	flags.BoolVar(&opts.KeepObject, "keep-object", false, "retain the intermediate object file")
	flags.BoolVar(&opts.DumpAST, "dump-ast", false, "dump the parse tree/AST instead of compiling")
	flags.BoolVar(&opts.SkipVerify, "no-verify", false, "skip IR verification before object emission")
	flags.BoolVar(&opts.SimpleLink, "simple-link", false, "use the simple native link-in fallback instead of two-phase linking")
	flags.BoolVar(&opts.LibraryMode, "library", false, "produce a .slib library artifact instead of an executable")
	flags.StringVar(&opts.QueryLibrary, "query-library", "", "print a .slib artifact's metadata and exit")
	flags.BoolVar(&opts.ForceRebuild, "force-rebuild", false, "ignore the build cache and recompile every unit")
	flags.StringVar(&opts.CacheDir, "cache-dir", "", "override the build cache directory")
	flags.BoolVar(&opts.WipeCache, "wipe-cache", false, "wipe the build cache before compiling")
	flags.StringVar(&opts.TargetTriple, "target", "", "target triple (default: host)")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "enable verbose phase/stat logging")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}

func runCompile(opts config.Options) error {
	var builder unitgraph.Builder // the frontend (lexer/parser) plugs in here; out of scope for this core.
	p := pipeline.New(builder, opts)
	res, err := p.Run()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	for _, d := range res.Diagnostics {
		fmt.Fprintln(os.Stderr, d.Error())
	}
	os.Exit(res.ExitCode)
	return nil
}
