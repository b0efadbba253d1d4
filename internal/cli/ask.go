package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"secondbrain/internal/api"
	"secondbrain/internal/ui"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a single question",
	Long: `Ask one question and print the answer with its citations.

Use --conversation to continue an existing conversation. The conversation id
of the answer is printed last so scripts can follow up.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

// Flags for the ask command.
var (
	askConversation string
	askNoStream     bool
)

func init() {
	askCmd.Flags().StringVarP(&askConversation, "conversation", "c", "", "continue this conversation")
	askCmd.Flags().BoolVar(&askNoStream, "no-stream", false, "wait for the whole answer instead of streaming it")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	question := strings.TrimSpace(strings.Join(args, " "))
	out := cmd.OutOrStdout()
	display := ui.NewEnhancedDisplay(out)

	if askNoStream {
		resp, err := client.Chat(ctx, api.ChatRequest{
			Message:        question,
			ConversationID: askConversation,
			Timezone:       cfg.Timezone,
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Content)
		display.PrintCitations(resp.Citations)
		fmt.Fprintf(out, "conversation: %s\n", resp.ConversationID)
		return nil
	}

	session := newSession()
	if askConversation != "" {
		if err := session.LoadConversation(ctx, askConversation); err != nil {
			return err
		}
	}

	printer := &streamPrinter{session: session, display: display}
	session.SetListener(printer.onChange)

	printer.begin()
	err := session.SendMessage(ctx, question)
	printer.end()
	if err != nil {
		display.AbortAssistantResponse()
		return err
	}

	msgs := session.Messages()
	display.EndAssistantResponse(msgs[len(msgs)-1].Citations)
	fmt.Fprintf(out, "conversation: %s\n", session.ConversationID())
	return nil
}
