package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"secondbrain/internal/api"
	"secondbrain/internal/chat"
	"secondbrain/internal/documents"
	"secondbrain/internal/history"
	"secondbrain/internal/terminal"
	"secondbrain/internal/ui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat with your knowledge base.

Type a question to ask it. Answers stream in as they are generated and are
followed by the sources they were drawn from. Type /help for commands.`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

var chatResume bool

func init() {
	chatCmd.Flags().BoolVar(&chatResume, "resume", false, "continue the most recently used conversation")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	display := ui.NewEnhancedDisplay(out)

	display.PrintWelcome(cfg.APIBaseURL, cfg.UserEmail)
	if err := client.HealthCheck(ctx); err != nil {
		display.PrintWarning(err.Error())
		display.PrintInfo("Start the backend or point --api-url at it")
	}

	r := newREPL(ctx, cmd.InOrStdin(), out, display)
	if chatResume {
		r.command("/resume")
	}
	r.loop()
	display.PrintGoodbye()
	return nil
}

// repl is the interactive chat loop.
type repl struct {
	ctx     context.Context
	out     io.Writer
	display *ui.EnhancedDisplay
	input   *terminal.Input
	session *chat.Session
	store   *documents.Store
	history *history.Manager
	printer *streamPrinter
}

func newREPL(ctx context.Context, in io.Reader, out io.Writer, display *ui.EnhancedDisplay) *repl {
	r := &repl{
		ctx:     ctx,
		out:     out,
		display: display,
		input:   terminal.NewInput(in),
		session: newSession(),
		store:   newStore(),
		history: openHistory(),
	}
	r.printer = &streamPrinter{session: r.session, display: display}
	r.session.SetListener(r.printer.onChange)
	return r
}

// loop reads lines until /exit, EOF or interruption.
func (r *repl) loop() {
	for r.ctx.Err() == nil {
		r.display.PrintPrompt()
		line, err := r.input.ReadLine()
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") || line == "exit" || line == "quit" {
			if !r.command(line) {
				return
			}
			continue
		}
		r.ask(line)
	}
}

// ask sends one message and prints the streamed answer.
func (r *repl) ask(question string) {
	first := len(r.session.Messages()) == 0

	r.printer.begin()
	err := r.session.SendMessage(r.ctx, question)
	r.printer.end()

	if err != nil {
		r.display.AbortAssistantResponse()
		r.display.PrintError(err)
		return
	}

	msgs := r.session.Messages()
	r.display.EndAssistantResponse(msgs[len(msgs)-1].Citations)

	title := ""
	if first {
		title = question
	}
	r.touch(r.session.ConversationID(), title)
}

// command runs a slash command. It returns false when the loop should end.
func (r *repl) command(line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/exit", "/quit", "exit", "quit":
		return false
	case "/help":
		r.display.PrintHelp()
	case "/clear":
		r.display.ClearScreen()
		r.display.PrintWelcome(cfg.APIBaseURL, cfg.UserEmail)
	case "/new":
		r.session.ClearMessages()
		r.display.PrintInfo("Started a new conversation")
	case "/load":
		if arg == "" {
			r.display.PrintWarning("Usage: /load <conversation-id>")
			break
		}
		r.load(arg)
	case "/resume":
		last, ok := r.history.Last()
		if !ok {
			r.display.PrintInfo("No recent conversations")
			break
		}
		r.load(last.ConversationID)
	case "/conversations":
		convs, err := client.ListConversations(r.ctx)
		if err != nil {
			r.display.PrintError(err)
			break
		}
		r.display.PrintConversations(convs)
	case "/recent":
		r.display.PrintRecent(r.history.Recent(10))
	case "/history":
		r.display.PrintTranscript(r.session.ConversationID(), r.session.Messages())
	case "/docs":
		r.listDocuments()
	case "/upload":
		r.upload(arg)
	case "/url":
		r.ingestURL(arg)
	case "/text":
		r.ingestText(arg)
	case "/delete":
		r.deleteDocument(arg)
	default:
		r.display.PrintWarning(fmt.Sprintf("Unknown command %s, type /help for a list", name))
	}
	return true
}

func (r *repl) load(id string) {
	if err := r.session.LoadConversation(r.ctx, id); err != nil {
		r.display.PrintError(err)
		if api.IsNotFound(err) {
			if rmErr := r.history.Remove(id); rmErr != nil {
				r.display.PrintWarning(fmt.Sprintf("Failed to update history: %v", rmErr))
			}
		}
		return
	}
	r.display.PrintTranscript(r.session.ConversationID(), r.session.Messages())
	r.touch(id, "")
}

func (r *repl) listDocuments() {
	if err := r.store.Refresh(r.ctx); err != nil {
		r.display.PrintError(err)
		return
	}
	state := r.store.Snapshot()
	r.display.PrintDocuments(state.Documents, state.Total)
}

func (r *repl) upload(arg string) {
	if arg == "" {
		r.display.PrintWarning("Usage: /upload <path>  (try /upload @name to search)")
		return
	}

	path := terminal.FirstPath(arg)
	if _, err := os.Stat(path); err != nil {
		// @partial asks for suggestions
		if strings.HasPrefix(arg, "@") {
			terminal.ShowFileSuggestions(r.out, ".", arg)
			return
		}
		r.display.PrintError(fmt.Errorf("cannot read %s: %w", path, err))
		return
	}
	if !documents.IsAccepted(path) {
		r.display.PrintWarning(fmt.Sprintf("Unsupported file type. Accepted: %s", strings.Join(documents.AcceptedExtensions, " ")))
		return
	}

	doc, err := r.store.UploadFile(r.ctx, path)
	if err != nil {
		r.display.PrintError(err)
		return
	}
	r.display.PrintSuccess(fmt.Sprintf("Uploaded %s as %s (%s)", path, doc.ID, doc.Status))
}

func (r *repl) ingestURL(arg string) {
	if arg == "" {
		r.display.PrintWarning("Usage: /url <url>")
		return
	}
	doc, err := r.store.IngestURL(r.ctx, arg)
	if err != nil {
		r.display.PrintError(err)
		return
	}
	r.display.PrintSuccess(fmt.Sprintf("Queued %s as %s (%s)", doc.SourceURI, doc.ID, doc.Status))
}

func (r *repl) ingestText(arg string) {
	title, body, found := strings.Cut(arg, "|")
	if !found {
		title, body = "", arg
	}
	doc, err := r.store.IngestText(r.ctx, body, title)
	if errors.Is(err, documents.ErrEmptyText) {
		r.display.PrintWarning("Usage: /text <title> | <body>")
		return
	}
	if err != nil {
		r.display.PrintError(err)
		return
	}
	r.display.PrintSuccess(fmt.Sprintf("Queued note %s (%s)", doc.ID, doc.Status))
}

func (r *repl) deleteDocument(id string) {
	if id == "" {
		r.display.PrintWarning("Usage: /delete <document-id>")
		return
	}
	if !r.input.Confirm(r.out, fmt.Sprintf("Delete document %s?", id)) {
		r.display.PrintInfo("Cancelled")
		return
	}
	if err := r.store.DeleteDocument(r.ctx, id); err != nil {
		r.display.PrintError(err)
		return
	}
	r.display.PrintSuccess("Deleted " + id)
}

func (r *repl) touch(id, title string) {
	if err := r.history.Touch(id, title); err != nil {
		r.display.PrintWarning(fmt.Sprintf("Failed to save history: %v", err))
	}
}

// streamPrinter writes the growing assistant reply as the session reports
// changes.
type streamPrinter struct {
	session *chat.Session
	display *ui.EnhancedDisplay

	mu      sync.Mutex
	active  bool
	started bool
	token   string
	printed int
}

// begin arms the printer for the next reply.
func (p *streamPrinter) begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.started = false
	p.token = ""
	p.printed = 0
}

// end disarms the printer and opens the reply if no token arrived.
func (p *streamPrinter) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		p.display.StartAssistantResponse()
		p.started = true
	}
	p.active = false
}

func (p *streamPrinter) onChange() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return
	}

	msgs := p.session.Messages()
	if len(msgs) == 0 {
		return
	}
	last := msgs[len(msgs)-1]
	if last.Role != chat.RoleAssistant {
		return
	}
	if p.token == "" {
		p.token = last.Token
	}
	if last.Token != p.token || len(last.Content) <= p.printed {
		return
	}

	if !p.started {
		p.display.StartAssistantResponse()
		p.started = true
	}
	p.display.WriteAnswer(last.Content[p.printed:])
	p.printed = len(last.Content)
}
