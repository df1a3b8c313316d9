package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/pksim/internal/config"
)

func init() {
	cmd := &cobra.Command{
		Use:   "dumpconfig [file]",
		Short: "Show configuration values",
		Long:  "Print the effective configuration (defaults overlaid with the config file) as TOML, or write it to file.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runDumpConfig,
	}

	RootCmd.AddCommand(cmd)
}

func runDumpConfig(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	dump := os.Stdout
	if len(args) > 0 {
		f, err := os.OpenFile(args[0], os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
		if err != nil {
			exitErr("dumpconfig", err)
		}
		defer f.Close()
		dump = f
	}
	if err := config.Write(dump, cfg); err != nil {
		exitErr("dumpconfig", err)
	}
}
