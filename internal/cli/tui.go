package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"secondbrain/internal/logger"
	"secondbrain/internal/tui"
)

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch the full-screen terminal UI",
	Long: `Launch the full-screen terminal interface.

The documents sidebar shows everything you have ingested and its processing
status; the main pane holds the chat, the upload form or the conversation list.

Keys:
  ctrl+w  switch between sidebar and main pane
  ctrl+n  new conversation
  ctrl+o  open a previous conversation
  ctrl+u  add a document (file, URL or text)
  esc     back to the chat
  ctrl+c  quit

In the sidebar: ↑/↓ select, d delete (y to confirm), r refresh, u add.`,
	Args: cobra.NoArgs,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
}

func runTUI(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if err := client.HealthCheck(ctx); err != nil {
		return err
	}

	// stderr belongs to the screen while the TUI runs
	if cfg.Verbose {
		logPath := filepath.Join(filepath.Dir(cfg.HistoryPath), "tui.log")
		if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		logger.SetOutput(f)
		logger.SetTimestamps(true)
		defer logger.SetOutput(cmd.ErrOrStderr())
	} else {
		logger.SetVerbose(false)
	}

	return tui.Run(ctx, &tui.Ports{
		Session:       newSession(),
		Documents:     newStore(),
		Conversations: client,
		History:       openHistory(),
		PollInterval:  cfg.PollInterval,
	})
}
