// Command surgelink is the CLI surface of the surgical ELF linker
// (spec.md §6): preprocess splices a dummy shared library's symbol table
// against a dynamically-linked host executable, and surgery later splices
// a freshly-compiled application object into the preprocessed host to
// produce a final statically-linked executable without invoking a
// general-purpose linker.
//
// Grounded on lib.rs's build_app (clap, not in the Go ecosystem) and on
// the teacher's own main.go/cli.go flag-parsing-then-dispatch shape;
// cobra is the grounded cross-pack substitute for clap's subcommand CLI
// (see DESIGN.md).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xyproto/devback/linker"
)

func main() {
	os.Exit(run())
}

func run() int {
	var verbose bool

	root := &cobra.Command{
		Use:           "surgelink",
		Short:         "Surgical ELF linker: splice a compiled object into a preprocessed host executable",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "print per-phase diagnostics")

	preprocessCmd := &cobra.Command{
		Use:   "preprocess EXEC SHARED_LIB METADATA OUT",
		Short: "Scan a host executable and a dummy shared library, writing a surgery plan and a modified host",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			linker.SetVerbose(verbose)
			return linker.Preprocess(args[0], args[1], args[2], args[3])
		},
	}

	surgeryCmd := &cobra.Command{
		Use:   "surgery METADATA APP OUT",
		Short: "Splice an application object into the preprocessed host named by OUT, in place",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			linker.SetVerbose(verbose)
			return linker.Surgery(args[0], args[1], args[2])
		},
	}

	root.AddCommand(preprocessCmd, surgeryCmd)

	defer func() {
		if r := recover(); r != nil {
			if fe, ok := r.(*linker.FatalError); ok {
				fmt.Fprintf(os.Stderr, "%s\n", fe.Error())
				os.Exit(-1)
			}
			panic(r)
		}
	}()

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return -1
	}
	return 0
}
