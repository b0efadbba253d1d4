package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"secondbrain/internal/api"
	"secondbrain/internal/terminal"
	"secondbrain/internal/ui"
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Manage ingested documents",
	Long:  `List, inspect and delete the documents in your knowledge base.`,
}

var docsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List documents",
	Args:  cobra.NoArgs,
	RunE:  runDocsList,
}

var docsGetCmd = &cobra.Command{
	Use:   "get [doc-id]",
	Short: "Show a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsGet,
}

var docsChunksCmd = &cobra.Command{
	Use:   "chunks [doc-id]",
	Short: "Print the chunks a document was split into",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsChunks,
}

var docsDeleteCmd = &cobra.Command{
	Use:   "delete [doc-id]",
	Short: "Delete a document",
	Long:  `Deletes a document with its chunks and embeddings. Asks for confirmation unless --yes is given.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runDocsDelete,
}

// Flags for the docs commands.
var (
	docsType   string
	docsLimit  int
	docsOffset int
	docsYes    bool
)

var sourceTypes = []api.SourceType{
	api.SourceAudio, api.SourcePDF, api.SourceMarkdown, api.SourceWeb, api.SourceText, api.SourceImage,
}

func init() {
	docsListCmd.Flags().StringVarP(&docsType, "type", "t", "", "only list this source kind (audio, pdf, markdown, web, text, image)")
	docsListCmd.Flags().IntVar(&docsLimit, "limit", 0, "maximum number of documents")
	docsListCmd.Flags().IntVar(&docsOffset, "offset", 0, "number of documents to skip")
	docsDeleteCmd.Flags().BoolVarP(&docsYes, "yes", "y", false, "do not ask for confirmation")

	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsGetCmd)
	docsCmd.AddCommand(docsChunksCmd)
	docsCmd.AddCommand(docsDeleteCmd)
	rootCmd.AddCommand(docsCmd)
}

func runDocsList(cmd *cobra.Command, _ []string) error {
	kind := api.SourceType(docsType)
	if kind != "" && !slices.Contains(sourceTypes, kind) {
		return fmt.Errorf("unknown source type %q", docsType)
	}
	if docsLimit < 0 || docsOffset < 0 {
		return fmt.Errorf("--limit and --offset cannot be negative")
	}

	list, err := client.ListDocuments(cmd.Context(), api.ListOptions{
		SourceType: kind,
		Limit:      docsLimit,
		Offset:     docsOffset,
	})
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}

	ui.NewEnhancedDisplay(cmd.OutOrStdout()).PrintDocuments(list.Documents, list.Total)
	return nil
}

func runDocsGet(cmd *cobra.Command, args []string) error {
	doc, err := client.GetDocument(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	ui.NewEnhancedDisplay(cmd.OutOrStdout()).PrintDocument(doc)
	return nil
}

func runDocsChunks(cmd *cobra.Command, args []string) error {
	chunks, err := client.GetDocumentChunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}

	ui.NewEnhancedDisplay(cmd.OutOrStdout()).PrintChunks(chunks)
	return nil
}

func runDocsDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	out := cmd.OutOrStdout()

	if !docsYes {
		in := terminal.NewInput(cmd.InOrStdin())
		if !in.Confirm(out, fmt.Sprintf("Delete document %s?", id)) {
			fmt.Fprintln(out, "Cancelled")
			return nil
		}
	}

	if err := client.DeleteDocument(cmd.Context(), id); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	ui.NewEnhancedDisplay(out).PrintSuccess("Deleted " + id)
	return nil
}
