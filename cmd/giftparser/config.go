package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/nitrodev1/telegram-gift-parser/pkg/config"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage gift parser configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (GIFTPARSER_*)
  - .env files
  - Configuration file
  - Default values (lowest priority)`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with the default values",
	Long: `Create a configuration file holding every option at its default.

The file is created in the current directory as 'giftparser.yaml' unless a
different path is given with the --config flag.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging all sources.

Credentials are masked.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd, configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = "giftparser.yaml"
	}

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("configuration file already exists: %s", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}

	ui.PrintSuccess(os.Stderr, "Configuration file created: "+path)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Set provider.api_id and provider.api_hash, or run 'giftparser auth login'")
	fmt.Println("2. Run 'giftparser config validate' to check the configuration")
	fmt.Println("3. Start with 'giftparser scan --start-id 1 --end-id 1000'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	data, err := yaml.Marshal(maskedConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	fmt.Print(string(data))
	return nil
}

// maskedConfig returns a copy safe to print
func maskedConfig(cfg *config.Config) *config.Config {
	display := *cfg
	display.Provider.APIHash = mask(cfg.Provider.APIHash)
	display.Provider.SessionToken = mask(cfg.Provider.SessionToken)
	return &display
}

func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) <= 8:
		return "***"
	default:
		return s[:4] + "..." + s[len(s)-4:]
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(nil)
	if err != nil {
		return err
	}

	var problems []error
	if cfg.Output.Directory != "" {
		if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create output directory: %w", err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Errorf("cannot create log directory: %w", err))
		}
	}
	if len(problems) > 0 {
		return errors.Join(problems...)
	}

	if cfg.Provider.APIID == "" || cfg.Provider.APIHash == "" {
		ui.PrintWarning(os.Stderr, "API credentials are not configured; a stored profile will be needed")
	}

	ui.PrintSuccess(os.Stderr, "Configuration is valid")
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Collection:      %s\n", cfg.Provider.Collection)
	fmt.Printf("  Range:           %d-%d\n", cfg.Scan.StartID, cfg.Scan.EndID)
	fmt.Printf("  Batch size:      %d\n", cfg.Scan.BatchSize)
	fmt.Printf("  Flush interval:  %d\n", cfg.Scan.FlushInterval)
	fmt.Printf("  Steady delay:    %s\n", cfg.RateLimit.SteadyDelay)
	fmt.Printf("  Output:          %s (%s)\n", cfg.Output.Directory, cfg.Output.Format)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)
	return nil
}
