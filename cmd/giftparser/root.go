package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nitrodev1/telegram-gift-parser/pkg/config"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ui"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
)

var rootCmd = &cobra.Command{
	Use:   "giftparser",
	Short: "Resolve the owners of collectible gifts in bulk",
	Long: `giftparser walks the ID range of one collectible-gift collection and
resolves every gift to its owner.

Each ID is looked up through the provider gateway first; when that yields
nothing the public gift page is scraped. Owners and valid links are written
to CSV files or a SQLite database and flushed periodically, so an
interrupted scan can be resumed with --resume-from.`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			return
		}
		if cmd.Name() == "scan" || cmd.Name() == "login" {
			ui.PrintLogo(os.Stderr)
		}
	},
}

// Execute runs the root command and exits non-zero on failure
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(os.Stderr, "Error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.giftparser.yaml or ~/.config/giftparser/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress the banner and progress output")

	rootCmd.SetVersionTemplate(`giftparser {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads the layered configuration with the global flag overrides
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}
	return config.Load(configFile, flags)
}
