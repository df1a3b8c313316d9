// Package cli implements the pksim CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rcliao/pksim/internal/config"
	"github.com/rcliao/pksim/internal/engine"
)

var (
	configPath string
	formatFlag string
	logLevel   string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "pksim",
	Short: "Pharmacokinetic compartmental model simulator",
	Long: "Compile compartmental models written as dXdt = ... lines, simulate them under " +
		"bolus and infusion dosing, summarize PK metrics, and fit parameters to observed data.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $PKSIM_CONFIG or ~/.pksim/config.toml)")
	RootCmd.PersistentFlags().StringVarP(&formatFlag, "format", "f", "json", "Output format: json or text")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn or error")
}

func loadConfig() config.Config {
	cfg, err := config.Load(config.Path(configPath))
	if err != nil {
		exitErr("load config", err)
	}
	return cfg
}

func newLogger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		exitErr("log level", err)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func openEngine(cfg config.Config) *engine.Engine {
	e, err := engine.New(cfg.EngineOptions(newLogger()))
	if err != nil {
		exitErr("create engine", err)
	}
	return e
}

func textOutput() bool {
	switch strings.ToLower(formatFlag) {
	case "json":
		return false
	case "text":
		return true
	}
	exitErr("format", fmt.Errorf("unknown format %q (want json or text)", formatFlag))
	return false
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	prefix := color.New(color.FgRed, color.Bold)
	if isatty.IsTerminal(os.Stderr.Fd()) {
		prefix.EnableColor()
	} else {
		prefix.DisableColor()
	}
	fmt.Fprintf(os.Stderr, "%s %s: %v\n", prefix.Sprint("error:"), msg, err)
	os.Exit(1)
}
