// Package tui provides the full-screen terminal interface: a documents
// sidebar next to the chat, an ingestion form and a conversation picker.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"secondbrain/internal/chat"
	"secondbrain/internal/documents"
	"secondbrain/internal/logger"
	"secondbrain/internal/tui/keymap"
	"secondbrain/internal/tui/messages"
	"secondbrain/internal/tui/styles"
	"secondbrain/internal/tui/views/conversations"
	docview "secondbrain/internal/tui/views/documents"
	"secondbrain/internal/tui/views/transcript"
	"secondbrain/internal/tui/views/upload"
)

// Recorder remembers conversations the user took part in.
type Recorder interface {
	Touch(conversationID, title string) error
}

// Ports holds what the TUI drives.
type Ports struct {
	Session       *chat.Session
	Documents     *documents.Store
	Conversations conversations.Lister

	// History is optional.
	History Recorder

	// PollInterval paces the document status watcher.
	PollInterval time.Duration
}

// Validate checks that all required ports are set.
func (p *Ports) Validate() error {
	if p == nil {
		return errors.New("ports are nil")
	}
	if p.Session == nil {
		return errors.New("chat session is required")
	}
	if p.Documents == nil {
		return errors.New("document store is required")
	}
	if p.Conversations == nil {
		return errors.New("conversation lister is required")
	}
	return nil
}

// App is the main TUI application.
type App struct {
	ports  *Ports
	ctx    context.Context
	styles *styles.Styles
	keys   *keymap.KeyMap
	help   help.Model

	transcriptView    *transcript.View
	documentsView     *docview.View
	uploadView        *upload.View
	conversationsView *conversations.View

	// sessionCh and documentsCh carry change notifications from the
	// listeners into the event loop. Both hold at most one pending signal.
	sessionCh   chan struct{}
	documentsCh chan struct{}

	currentView    messages.ViewType
	sidebarFocused bool

	width  int
	height int
	ready  bool
}

var _ tea.Model = (*App)(nil)

// NewApp creates the TUI and registers its listeners on the session and
// the document store.
func NewApp(ctx context.Context, ports *Ports) (*App, error) {
	if err := ports.Validate(); err != nil {
		return nil, fmt.Errorf("creating app: %w", err)
	}

	s := styles.DefaultStyles()
	a := &App{
		ports:             ports,
		ctx:               ctx,
		styles:            s,
		keys:              keymap.DefaultKeyMap(),
		help:              help.New(),
		transcriptView:    transcript.NewView(ctx, s, ports.Session),
		documentsView:     docview.NewView(ctx, s, ports.Documents),
		uploadView:        upload.NewView(ctx, s, ports.Documents),
		conversationsView: conversations.NewView(ctx, s, ports.Conversations),
		sessionCh:         make(chan struct{}, 1),
		documentsCh:       make(chan struct{}, 1),
		currentView:       messages.ViewChat,
	}

	ports.Session.SetListener(signal(a.sessionCh))
	ports.Documents.SetListener(signal(a.documentsCh))
	return a, nil
}

// Run starts the TUI and blocks until the user quits.
func Run(ctx context.Context, ports *Ports) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	app, err := NewApp(ctx, ports)
	if err != nil {
		return err
	}

	p := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err = p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// signal returns a listener that never blocks the notifying goroutine.
func signal(ch chan struct{}) func() {
	return func() {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// waitFor turns the next signal on ch into msg.
func (a *App) waitFor(ch chan struct{}, msg tea.Msg) tea.Cmd {
	ctx := a.ctx
	return func() tea.Msg {
		select {
		case <-ch:
			return msg
		case <-ctx.Done():
			return nil
		}
	}
}

// CurrentView returns the view filling the main pane.
func (a *App) CurrentView() messages.ViewType { return a.currentView }

// SidebarFocused reports whether the documents sidebar has focus.
func (a *App) SidebarFocused() bool { return a.sidebarFocused }

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	store, ctx, interval := a.ports.Documents, a.ctx, a.ports.PollInterval

	return tea.Batch(
		tea.SetWindowTitle("secondbrain"),
		a.transcriptView.Init(),
		a.documentsView.Init(),
		a.uploadView.Init(),
		a.waitFor(a.sessionCh, messages.SessionUpdated{}),
		a.waitFor(a.documentsCh, messages.DocumentsUpdated{}),
		func() tea.Msg {
			return messages.RefreshFinished{Err: store.Refresh(ctx)}
		},
		func() tea.Msg {
			store.Watch(ctx, interval)
			return nil
		},
	)
}

// SetDimensions lays out the panes for a terminal of the given size.
func (a *App) SetDimensions(width, height int) {
	a.width = width
	a.height = height
	a.ready = true

	sidebar := a.sidebarWidth()
	// two border columns/rows per pane, one footer line
	paneHeight := max(height-3, 3)
	a.documentsView.SetDimensions(max(sidebar-2, 10), paneHeight)

	mainWidth := max(width-sidebar-2, 20)
	a.transcriptView.SetDimensions(mainWidth, paneHeight)
	a.uploadView.SetDimensions(mainWidth, paneHeight)
	a.conversationsView.SetDimensions(mainWidth, paneHeight)
	a.help.Width = width
}

func (a *App) sidebarWidth() int {
	return min(max(a.width/3, 24), 40)
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.SetDimensions(msg.Width, msg.Height)
		return a, nil

	case tea.KeyMsg:
		return a.handleKeyMsg(msg)

	case messages.SessionUpdated:
		a.transcriptView, cmd = a.transcriptView.Update(msg)
		return a, tea.Batch(cmd, a.waitFor(a.sessionCh, messages.SessionUpdated{}))

	case messages.DocumentsUpdated:
		a.documentsView, cmd = a.documentsView.Update(msg)
		return a, tea.Batch(cmd, a.waitFor(a.documentsCh, messages.DocumentsUpdated{}))

	case messages.SendFinished:
		a.transcriptView, cmd = a.transcriptView.Update(msg)
		if msg.Err == nil {
			state := a.transcriptView.State()
			// the first question names the conversation
			title := ""
			if len(state.Messages) <= 2 {
				title = msg.Content
			}
			a.record(state.ConversationID, title)
		}
		return a, cmd

	case messages.ViewChanged:
		return a, a.switchTo(msg.View)

	case messages.ConversationSelected:
		a.switchTo(messages.ViewChat)
		session, ctx, id := a.ports.Session, a.ctx, msg.ID
		return a, func() tea.Msg {
			return messages.ConversationLoaded{ID: id, Err: session.LoadConversation(ctx, id)}
		}

	case messages.ConversationLoaded:
		if msg.Err != nil {
			logger.Debug("loading conversation %s failed: %v", msg.ID, msg.Err)
		} else {
			a.record(msg.ID, "")
		}
		a.transcriptView, cmd = a.transcriptView.Update(messages.SessionUpdated{})
		return a, cmd

	case messages.ConversationsLoaded:
		a.conversationsView, cmd = a.conversationsView.Update(msg)
		return a, cmd

	case messages.DocumentDeleted, messages.RefreshFinished:
		a.documentsView, cmd = a.documentsView.Update(msg)
		return a, cmd

	case messages.IngestFinished:
		a.uploadView, cmd = a.uploadView.Update(msg)
		return a, cmd
	}

	// spinner ticks, cursor blinks and the like
	var cmds []tea.Cmd
	a.transcriptView, cmd = a.transcriptView.Update(msg)
	cmds = append(cmds, cmd)
	switch a.currentView {
	case messages.ViewUpload:
		a.uploadView, cmd = a.uploadView.Update(msg)
		cmds = append(cmds, cmd)
	case messages.ViewConversations:
		a.conversationsView, cmd = a.conversationsView.Update(msg)
		cmds = append(cmds, cmd)
	}
	return a, tea.Batch(cmds...)
}

// handleKeyMsg handles global keys and forwards the rest to the focused view.
func (a *App) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch {
	case key.Matches(msg, a.keys.Quit):
		return a, tea.Quit

	case key.Matches(msg, a.keys.Focus):
		a.setSidebarFocus(!a.sidebarFocused)
		return a, nil

	case key.Matches(msg, a.keys.NewChat):
		a.ports.Session.ClearMessages()
		return a, a.switchTo(messages.ViewChat)

	case key.Matches(msg, a.keys.Conversations):
		return a, a.switchTo(messages.ViewConversations)

	case key.Matches(msg, a.keys.Upload):
		return a, a.switchTo(messages.ViewUpload)

	case key.Matches(msg, a.keys.Back) && !a.sidebarFocused && a.currentView == messages.ViewUpload:
		return a, a.switchTo(messages.ViewChat)
	}

	if a.sidebarFocused {
		a.documentsView, cmd = a.documentsView.Update(msg)
		return a, cmd
	}

	switch a.currentView {
	case messages.ViewUpload:
		a.uploadView, cmd = a.uploadView.Update(msg)
	case messages.ViewConversations:
		a.conversationsView, cmd = a.conversationsView.Update(msg)
	default:
		a.transcriptView, cmd = a.transcriptView.Update(msg)
	}
	return a, cmd
}

// switchTo shows view in the main pane and gives it focus.
func (a *App) switchTo(view messages.ViewType) tea.Cmd {
	a.currentView = view
	a.setSidebarFocus(false)

	if view == messages.ViewConversations {
		return a.conversationsView.Init()
	}
	return nil
}

func (a *App) setSidebarFocus(focused bool) {
	a.sidebarFocused = focused
	if focused {
		a.documentsView.Focus()
		a.transcriptView.Blur()
		return
	}
	a.documentsView.Blur()
	if a.currentView == messages.ViewChat {
		a.transcriptView.Focus()
	} else {
		a.transcriptView.Blur()
	}
}

// record stores the conversation in the local history.
func (a *App) record(conversationID, firstMessage string) {
	if a.ports.History == nil || conversationID == "" {
		return
	}
	if err := a.ports.History.Touch(conversationID, titleFrom(firstMessage)); err != nil {
		logger.Warn("failed to save history: %v", err)
	}
}

// titleFrom shortens a message into a history title.
func titleFrom(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	if runes := []rune(title); len(runes) > 60 {
		title = string(runes[:59]) + "…"
	}
	return title
}

// View implements tea.Model.
func (a *App) View() string {
	if !a.ready {
		return "Initialising..."
	}

	sidebar := a.sidebarWidth()
	paneHeight := max(a.height-3, 3)

	sidebarStyle, mainStyle := a.styles.Pane, a.styles.FocusedPane
	if a.sidebarFocused {
		sidebarStyle, mainStyle = a.styles.FocusedPane, a.styles.Pane
	}

	left := sidebarStyle.
		Width(max(sidebar-2, 10)).
		Height(paneHeight).
		Render(a.documentsView.View())

	var main string
	switch a.currentView {
	case messages.ViewUpload:
		main = a.uploadView.View()
	case messages.ViewConversations:
		main = a.conversationsView.View()
	default:
		main = a.transcriptView.View()
	}
	right := mainStyle.
		Width(max(a.width-sidebar-2, 20)).
		Height(paneHeight).
		Render(main)

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		a.help.ShortHelpView(a.keys.ShortHelp()),
	)
}
