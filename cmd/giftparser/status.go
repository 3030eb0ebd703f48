package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nitrodev1/telegram-gift-parser/pkg/checkpoint"
	"github.com/nitrodev1/telegram-gift-parser/pkg/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show how far the last scan of a collection got",
	Long: `Status reads the checkpoint written at every flush and prints the ID
to pass to --resume-from.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().String("collection", "", "gift collection slug")
}

func runStatus(cmd *cobra.Command, args []string) error {
	flags := make(map[string]interface{})
	if cmd.Flags().Changed("collection") {
		v, _ := cmd.Flags().GetString("collection")
		flags["collection"] = v
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}

	manager, err := checkpoint.NewManager(cfg.Output.CheckpointDir, cfg.Provider.Collection, nil)
	if err != nil {
		return err
	}
	cp, err := manager.Load()
	if err != nil {
		return err
	}
	if cp == nil {
		fmt.Printf("No checkpoint for collection %s\n", cfg.Provider.Collection)
		return nil
	}

	ui.PrintInfo(os.Stdout, "Collection", cp.Collection)
	ui.PrintInfo(os.Stdout, "Run", cp.RunID)
	ui.PrintInfo(os.Stdout, "Range", fmt.Sprintf("%d-%d", cp.StartID, cp.EndID))
	ui.PrintInfo(os.Stdout, "Last flushed", fmt.Sprintf("%d", cp.LastFlushedID))
	ui.PrintInfo(os.Stdout, "Owners", fmt.Sprintf("%d", cp.OwnersFound))
	ui.PrintInfo(os.Stdout, "Links", fmt.Sprintf("%d", cp.LinksFound))
	ui.PrintInfo(os.Stdout, "Updated", cp.UpdatedAt.Format(time.RFC3339))

	if cp.Completed {
		ui.PrintSuccess(os.Stdout, "Scan completed")
		return nil
	}
	ui.PrintWarning(os.Stdout, fmt.Sprintf("Scan incomplete, continue with --resume-from %d", cp.NextID))
	return nil
}
