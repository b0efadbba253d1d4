package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"secondbrain/internal/terminal"
	"secondbrain/internal/ui"
)

var conversationsCmd = &cobra.Command{
	Use:     "conversations",
	Aliases: []string{"conv"},
	Short:   "Manage conversations stored on the server",
}

var conversationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List conversations",
	Args:  cobra.NoArgs,
	RunE:  runConversationsList,
}

var conversationsShowCmd = &cobra.Command{
	Use:   "show [conversation-id]",
	Short: "Print a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsShow,
}

var conversationsDeleteCmd = &cobra.Command{
	Use:   "delete [conversation-id]",
	Short: "Delete a conversation",
	Args:  cobra.ExactArgs(1),
	RunE:  runConversationsDelete,
}

var conversationsYes bool

func init() {
	conversationsDeleteCmd.Flags().BoolVarP(&conversationsYes, "yes", "y", false, "do not ask for confirmation")

	conversationsCmd.AddCommand(conversationsListCmd)
	conversationsCmd.AddCommand(conversationsShowCmd)
	conversationsCmd.AddCommand(conversationsDeleteCmd)
	rootCmd.AddCommand(conversationsCmd)
}

func runConversationsList(cmd *cobra.Command, _ []string) error {
	convs, err := client.ListConversations(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list conversations: %w", err)
	}

	ui.NewEnhancedDisplay(cmd.OutOrStdout()).PrintConversations(convs)
	return nil
}

func runConversationsShow(cmd *cobra.Command, args []string) error {
	session := newSession()
	if err := session.LoadConversation(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}

	ui.NewEnhancedDisplay(cmd.OutOrStdout()).PrintTranscript(session.ConversationID(), session.Messages())
	return nil
}

func runConversationsDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	out := cmd.OutOrStdout()

	if !conversationsYes {
		in := terminal.NewInput(cmd.InOrStdin())
		if !in.Confirm(out, fmt.Sprintf("Delete conversation %s?", id)) {
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}

	if err := newSession().DeleteConversation(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}

	if err := openHistory().Remove(id); err != nil {
		ui.NewEnhancedDisplay(out).PrintWarning(fmt.Sprintf("Failed to update history: %v", err))
	}
	ui.NewEnhancedDisplay(out).PrintSuccess("Deleted " + id)
	return nil
}
