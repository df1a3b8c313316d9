package cli

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=...".
var Version = "dev"

func init() {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the pksim version",
		Run:   runVersion,
	}

	RootCmd.AddCommand(cmd)
}

func runVersion(cmd *cobra.Command, args []string) {
	v := Version
	if v == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			v = info.Main.Version
		}
	}
	if !textOutput() {
		printJSON(map[string]string{"version": v, "go": runtime.Version()})
		return
	}
	fmt.Printf("pksim %s (%s)\n", v, runtime.Version())
}
