package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"secondbrain/internal/api"
	"secondbrain/internal/documents"
	"secondbrain/internal/ui"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Add documents to your knowledge base",
	Long: `Upload a file, ingest a web page or store a note. Processing happens on
the backend; use "docs list" or "jobs get" to follow it.`,
}

var ingestTextCmd = &cobra.Command{
	Use:   "text [text|-]",
	Short: "Ingest a note (- reads standard input)",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestText,
}

var ingestURLCmd = &cobra.Command{
	Use:   "url [url]",
	Short: "Ingest a web page",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestURL,
}

var ingestFileCmd = &cobra.Command{
	Use:   "file [path]",
	Short: "Upload a PDF, markdown, text or audio file",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestFile,
}

// Flags for the ingest commands.
var (
	ingestTitle     string
	ingestCreatedAt string
)

func init() {
	ingestTextCmd.Flags().StringVar(&ingestTitle, "title", "", "title of the note")
	for _, c := range []*cobra.Command{ingestTextCmd, ingestFileCmd} {
		c.Flags().StringVar(&ingestCreatedAt, "created-at", "", "creation time to record (RFC 3339 or YYYY-MM-DD)")
	}

	ingestCmd.AddCommand(ingestTextCmd)
	ingestCmd.AddCommand(ingestURLCmd)
	ingestCmd.AddCommand(ingestFileCmd)
	rootCmd.AddCommand(ingestCmd)
}

func runIngestText(cmd *cobra.Command, args []string) error {
	opts, err := ingestOptions()
	if err != nil {
		return err
	}

	text := args[0]
	if text == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read standard input: %w", err)
		}
		text = string(data)
	}

	doc, err := newStore().IngestText(cmd.Context(), text, ingestTitle, opts...)
	if err != nil {
		return fmt.Errorf("failed to ingest text: %w", err)
	}
	printQueued(cmd, doc)
	return nil
}

func runIngestURL(cmd *cobra.Command, args []string) error {
	doc, err := newStore().IngestURL(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to ingest URL: %w", err)
	}
	printQueued(cmd, doc)
	return nil
}

func runIngestFile(cmd *cobra.Command, args []string) error {
	opts, err := ingestOptions()
	if err != nil {
		return err
	}

	path := args[0]
	if !documents.IsAccepted(path) {
		return fmt.Errorf("unsupported file type, accepted: %s", strings.Join(documents.AcceptedExtensions, " "))
	}

	doc, err := newStore().UploadFile(cmd.Context(), path, opts...)
	if err != nil {
		return fmt.Errorf("failed to upload file: %w", err)
	}
	printQueued(cmd, doc)
	return nil
}

func ingestOptions() ([]documents.IngestOption, error) {
	if ingestCreatedAt == "" {
		return nil, nil
	}
	t, err := parseCreatedAt(ingestCreatedAt)
	if err != nil {
		return nil, err
	}
	return []documents.IngestOption{documents.WithCreatedAt(t)}, nil
}

// parseCreatedAt accepts RFC 3339 or a bare date, taken as local midnight.
func parseCreatedAt(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid --created-at %q: use RFC 3339 or YYYY-MM-DD", s)
}

func printQueued(cmd *cobra.Command, doc *api.Document) {
	ui.NewEnhancedDisplay(cmd.OutOrStdout()).PrintSuccess(
		fmt.Sprintf("Queued %s document %s (%s)", doc.SourceType, doc.ID, doc.Status))
}
