package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"secondbrain/internal/api"
	"secondbrain/internal/chat"
	"secondbrain/internal/history"
)

// EnhancedDisplay renders the REPL: prompts, streamed answers, citations and
// document listings
type EnhancedDisplay struct {
	out            io.Writer
	width          int
	color          bool
	responseBuffer strings.Builder
	startTime      time.Time
	tokenCount     int
	renderer       *glamour.TermRenderer
}

// NewEnhancedDisplay creates a display writing to out. Colors and markdown
// rendering are used only when out is a terminal.
func NewEnhancedDisplay(out io.Writer) *EnhancedDisplay {
	width, isTTY := terminalWidth(out)

	d := &EnhancedDisplay{
		out:   out,
		width: width,
		color: isTTY,
	}

	if isTTY {
		// Create markdown renderer
		renderer, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-10),
		)
		if err == nil {
			d.renderer = renderer
		}
	}
	return d
}

// Color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// c wraps s in a color when colors are enabled
func (d *EnhancedDisplay) c(code, s string) string {
	if !d.color {
		return s
	}
	return code + s + colorReset
}

func (d *EnhancedDisplay) printf(format string, args ...any) {
	fmt.Fprintf(d.out, format, args...)
}

// ClearScreen clears the terminal
func (d *EnhancedDisplay) ClearScreen() {
	if d.color {
		d.printf("\033[2J\033[H")
	}
}

// PrintWelcome displays the banner with the backend address
func (d *EnhancedDisplay) PrintWelcome(baseURL, userEmail string) {
	d.printf("%s\n", d.c(colorBold+colorCyan, "╔══════════════════════════════════════════╗"))
	d.printf("%s\n", d.c(colorBold+colorCyan, "║   secondbrain · chat with your documents ║"))
	d.printf("%s\n", d.c(colorBold+colorCyan, "╚══════════════════════════════════════════╝"))
	d.printf("\n%s %s\n", d.c(colorBold+colorGray, "Backend:"), baseURL)
	if userEmail != "" {
		d.printf("%s %s\n", d.c(colorBold+colorGray, "User:"), userEmail)
	}
	d.printf("%s /help for commands, /exit to quit\n\n", d.c(colorGray, "Commands:"))
}

// PrintHelp lists the REPL commands
func (d *EnhancedDisplay) PrintHelp() {
	rows := [][2]string{
		{"/new", "start a new conversation"},
		{"/load <id>", "load a conversation from the server"},
		{"/resume", "load the most recently used conversation"},
		{"/conversations", "list conversations on the server"},
		{"/recent", "list conversations used from this machine"},
		{"/history", "print the current conversation"},
		{"/docs", "list documents"},
		{"/upload <path>", "upload a file (@partial shows matching files)"},
		{"/url <url>", "ingest a web page"},
		{"/text <title> | <body>", "ingest a note"},
		{"/delete <doc-id>", "delete a document"},
		{"/clear", "clear the screen"},
		{"/exit", "quit"},
	}
	d.PrintSeparator()
	for _, r := range rows {
		d.printf("  %-24s %s\n", d.c(colorCyan, r[0]), r[1])
	}
	d.PrintSeparator()
}

// PrintSeparator prints a visual separator
func (d *EnhancedDisplay) PrintSeparator() {
	line := strings.Repeat("─", min(d.width, 80))
	d.printf("%s\n", d.c(colorDim, line))
}

// PrintPrompt displays user input prompt
func (d *EnhancedDisplay) PrintPrompt() {
	d.printf("\n%s ", d.c(colorBold+colorGreen, "❯"))
}

// PrintUserMessage displays a user message with timestamp
func (d *EnhancedDisplay) PrintUserMessage(content string, timestamp time.Time) {
	d.printf("\n%s\n", d.c(colorGray, "┌─ You · "+timestamp.Format("15:04:05")))
	for _, line := range strings.Split(content, "\n") {
		d.printf("%s %s\n", d.c(colorGray, "│"), line)
	}
	d.printf("%s\n", d.c(colorGray, "└"))
}

// StartAssistantResponse initializes response tracking
func (d *EnhancedDisplay) StartAssistantResponse() {
	d.startTime = time.Now()
	d.tokenCount = 0
	d.responseBuffer.Reset()

	d.printf("\n%s\n", d.c(colorGray, "┌─ Assistant · "+d.startTime.Format("15:04:05")))
	d.printf("%s ", d.c(colorGray, "│"))
}

// WriteAnswer writes answer tokens (streams live, renders markdown at end)
func (d *EnhancedDisplay) WriteAnswer(text string) {
	d.responseBuffer.WriteString(text)
	d.tokenCount += len(strings.Fields(text))
	d.printf("%s", text)
}

// AbortAssistantResponse closes a response that failed mid-stream
func (d *EnhancedDisplay) AbortAssistantResponse() {
	d.printf("\n%s\n", d.c(colorGray, "└"))
}

// EndAssistantResponse renders the complete answer and its citations
func (d *EnhancedDisplay) EndAssistantResponse(citations []api.Citation) {
	duration := time.Since(d.startTime)

	d.printf("\n")

	// Render the complete response as markdown for final display
	if d.responseBuffer.Len() > 0 && d.renderer != nil {
		rendered, err := d.renderer.Render(d.responseBuffer.String())
		if err == nil {
			d.printf("%s\n", d.c(colorGray, "│ Rendered:"))
			for _, line := range strings.Split(strings.TrimRight(rendered, "\n"), "\n") {
				d.printf("%s %s\n", d.c(colorGray, "│"), line)
			}
		}
	}

	if len(citations) > 0 {
		d.printf("%s\n", d.c(colorGray, "│"))
		d.printCitationLines(citations, d.c(colorGray, "│ "))
	}

	d.printf("%s\n", d.c(colorGray, "│"))
	d.printf("%s\n", d.c(colorGray, fmt.Sprintf("│ ⏱️  %s · 📝 ~%d words", formatDuration(duration), d.tokenCount)))
	d.printf("%s\n", d.c(colorGray, "└"))
}

// PrintCitations lists citations on their own
func (d *EnhancedDisplay) PrintCitations(citations []api.Citation) {
	if len(citations) == 0 {
		return
	}
	d.printCitationLines(citations, "")
}

func (d *EnhancedDisplay) printCitationLines(citations []api.Citation, prefix string) {
	d.printf("%s%s\n", prefix, d.c(colorBold, "📚 Sources:"))
	for i, c := range citations {
		meta := []string{string(c.SourceType)}
		if c.PageRange != "" {
			meta = append(meta, c.PageRange)
		}
		if c.TimeRange != "" {
			meta = append(meta, c.TimeRange)
		}
		d.printf("%s  [%d] %s %s\n", prefix, i+1, c.Title, d.c(colorGray, "("+strings.Join(meta, " · ")+")"))
		if c.SourceURI != "" {
			d.printf("%s      %s\n", prefix, d.c(colorBlue, truncate(c.SourceURI, 70)))
		}
		if snippet := oneLine(c.TextSnippet); snippet != "" {
			d.printf("%s      %s\n", prefix, d.c(colorDim, "“"+truncate(snippet, 100)+"”"))
		}
	}
}

// PrintDocuments lists documents with their status
func (d *EnhancedDisplay) PrintDocuments(docs []api.Document, total int) {
	if len(docs) == 0 {
		d.PrintInfo("No documents yet. Use /upload, /url or /text to add some.")
		return
	}

	d.PrintSeparator()
	for _, doc := range docs {
		d.printf("%s %-8s %s\n", d.statusBadge(doc.Status), doc.SourceType, truncate(documentTitle(doc), 50))
		d.printf("  %s\n", d.c(colorGray, doc.ID+" · "+doc.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
	d.PrintSeparator()
	d.printf("%s\n", d.c(colorGray, fmt.Sprintf("%d of %d documents", len(docs), total)))
}

// PrintDocument shows one document in detail
func (d *EnhancedDisplay) PrintDocument(doc *api.Document) {
	d.PrintSeparator()
	d.printf("%s\n", d.c(colorBold, documentTitle(*doc)))
	d.printf("  ID:       %s\n", doc.ID)
	d.printf("  Kind:     %s\n", doc.SourceType)
	d.printf("  Status:   %s\n", d.statusBadge(doc.Status))
	if doc.SourceURI != "" {
		d.printf("  Source:   %s\n", doc.SourceURI)
	}
	if doc.OriginalFilename != "" {
		d.printf("  File:     %s\n", doc.OriginalFilename)
	}
	d.printf("  Created:  %s\n", doc.CreatedAt.Local().Format(time.RFC1123))
	if doc.IngestedAt != nil && !doc.IngestedAt.IsZero() {
		d.printf("  Ingested: %s\n", doc.IngestedAt.Local().Format(time.RFC1123))
	}
	for k, v := range doc.Metadata {
		d.printf("  %s: %v\n", k, v)
	}
	d.PrintSeparator()
}

// PrintChunks lists a document's chunks
func (d *EnhancedDisplay) PrintChunks(chunks []api.Chunk) {
	if len(chunks) == 0 {
		d.PrintInfo("No chunks (the document may still be processing)")
		return
	}
	for _, ch := range chunks {
		header := fmt.Sprintf("#%d", ch.ChunkIndex)
		if ch.PageStart != nil {
			header += fmt.Sprintf(" · p. %d", *ch.PageStart)
			if ch.PageEnd != nil && *ch.PageEnd != *ch.PageStart {
				header += fmt.Sprintf("-%d", *ch.PageEnd)
			}
		}
		if ch.SourceOffsetMsFrom != nil {
			header += " · " + formatOffset(*ch.SourceOffsetMsFrom)
		}
		if ch.TokenCount != nil {
			header += fmt.Sprintf(" · %d tokens", *ch.TokenCount)
		}
		d.printf("%s\n%s\n\n", d.c(colorCyan, header), ch.Text)
	}
}

// PrintJob shows ingestion job progress
func (d *EnhancedDisplay) PrintJob(job *api.IngestionJob) {
	d.printf("%s %s · stage %s\n", d.statusBadge(job.Status), job.ID, job.Stage)
	d.printf("  document %s · updated %s\n", job.DocumentID, job.UpdatedAt.Local().Format("15:04:05"))
	if job.Error != "" {
		d.printf("  %s\n", d.c(colorRed, job.Error))
	}
}

// PrintConversations lists server-side conversations
func (d *EnhancedDisplay) PrintConversations(convs []api.Conversation) {
	if len(convs) == 0 {
		d.PrintInfo("No conversations yet")
		return
	}
	for _, conv := range convs {
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		d.printf("%s %s\n", d.c(colorBold, truncate(title, 50)), d.c(colorGray, fmt.Sprintf("· %d messages", len(conv.Messages))))
		d.printf("  %s\n", d.c(colorGray, conv.ID+" · "+conv.CreatedAt.Local().Format("2006-01-02 15:04")))
	}
}

// PrintRecent lists conversations recently used from this machine
func (d *EnhancedDisplay) PrintRecent(entries []history.Entry) {
	if len(entries) == 0 {
		d.PrintInfo("No recent conversations")
		return
	}
	for _, e := range entries {
		d.printf("%s %s\n", d.c(colorBold, truncate(e.Label(), 50)), d.c(colorGray, fmt.Sprintf("· %d turns · %s", e.Turns, e.LastUsed.Local().Format("Jan 2 15:04"))))
		d.printf("  %s\n", d.c(colorGray, e.ConversationID))
	}
}

// PrintTranscript prints every message of the active conversation
func (d *EnhancedDisplay) PrintTranscript(conversationID string, messages []chat.Message) {
	if len(messages) == 0 {
		d.PrintInfo("No messages in this conversation yet")
		return
	}

	d.PrintSeparator()
	if conversationID != "" {
		d.printf("%s\n", d.c(colorGray, "Conversation "+conversationID))
	}
	for _, msg := range messages {
		timestamp := msg.CreatedAt.Local().Format("15:04:05")
		if msg.Role == chat.RoleUser {
			d.printf("\n[%s] %s\n%s\n", timestamp, d.c(colorGreen, "You:"), msg.Content)
			continue
		}
		d.printf("\n[%s] %s\n%s\n", timestamp, d.c(colorCyan, "Assistant:"), msg.Content)
		d.PrintCitations(msg.Citations)
	}
	d.PrintSeparator()
}

// PrintInfo displays info message
func (d *EnhancedDisplay) PrintInfo(msg string) {
	d.printf("%s\n", d.c(colorCyan, "ℹ "+msg))
}

// PrintWarning displays warning message
func (d *EnhancedDisplay) PrintWarning(msg string) {
	d.printf("%s\n", d.c(colorYellow, "⚠ "+msg))
}

// PrintError displays error message
func (d *EnhancedDisplay) PrintError(err error) {
	d.printf("%s\n", d.c(colorRed, "✗ Error: "+api.ErrorMessage(err, api.GenericErrorMessage)))
}

// PrintSuccess displays success message
func (d *EnhancedDisplay) PrintSuccess(msg string) {
	d.printf("%s\n", d.c(colorGreen, "✓ "+msg))
}

// PrintGoodbye displays goodbye message
func (d *EnhancedDisplay) PrintGoodbye() {
	d.printf("\n%s\n", d.c(colorBold+colorCyan, "Goodbye! 👋"))
}

func (d *EnhancedDisplay) statusBadge(s api.Status) string {
	label := fmt.Sprintf("%-9s", s)
	switch s {
	case api.StatusCompleted:
		return d.c(colorGreen, label)
	case api.StatusFailed:
		return d.c(colorRed, label)
	case api.StatusRunning:
		return d.c(colorBlue, label)
	default:
		return d.c(colorYellow, label)
	}
}

// Helper functions

func documentTitle(doc api.Document) string {
	switch {
	case doc.Title != "":
		return doc.Title
	case doc.OriginalFilename != "":
		return doc.OriginalFilename
	case doc.SourceURI != "":
		return doc.SourceURI
	}
	return "(untitled)"
}

func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxLen-3]) + "..."
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatOffset(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// terminalWidth reports the width of out and whether it is a terminal
func terminalWidth(out io.Writer) (int, bool) {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 80, false
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width < 20 {
		return 80, true
	}
	return width, true
}
