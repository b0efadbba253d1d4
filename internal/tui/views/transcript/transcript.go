// Package transcript provides the chat view for the TUI.
package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"secondbrain/internal/chat"
	"secondbrain/internal/tui/messages"
	"secondbrain/internal/tui/styles"
)

// inputHeight is the number of lines of the message input.
const inputHeight = 3

// Session is the part of the chat session the view drives.
type Session interface {
	SendMessage(ctx context.Context, content string) error
	Snapshot() chat.State
}

// rendered caches the markdown rendering of one message.
type rendered struct {
	content string
	out     string
}

// View is the chat transcript with its input.
type View struct {
	styles  *styles.Styles
	session Session
	ctx     context.Context

	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model
	renderer *glamour.TermRenderer
	cache    map[string]rendered

	state   chat.State
	focused bool
	width   int
	height  int
}

// NewView creates a new chat view.
func NewView(ctx context.Context, s *styles.Styles, session Session) *View {
	input := textarea.New()
	input.Placeholder = "Ask your second brain..."
	input.ShowLineNumbers = false
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	// Enter sends; alt+enter inserts a newline
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter"))

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = s.AssistantLabel

	v := &View{
		styles:   s,
		session:  session,
		ctx:      ctx,
		viewport: viewport.New(80, 20),
		input:    input,
		spinner:  sp,
		cache:    make(map[string]rendered),
	}
	v.SetDimensions(80, 24)
	v.Focus()
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	v.sync()
	return textarea.Blink
}

// SetDimensions sets the size available to the view.
func (v *View) SetDimensions(width, height int) {
	if width == v.width && height == v.height {
		return
	}
	v.width = width
	v.height = height

	v.input.SetWidth(max(width-2, 10))
	// header, error line, status line and the input
	v.viewport.Width = width
	v.viewport.Height = max(height-inputHeight-4, 3)

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(max(width-6, 20)),
	)
	if err == nil {
		v.renderer = renderer
	}
	v.cache = make(map[string]rendered)
	v.refreshContent()
}

// Focus gives the input keyboard focus.
func (v *View) Focus() {
	v.focused = true
	v.applyFocus()
}

// Blur removes keyboard focus.
func (v *View) Blur() {
	v.focused = false
	v.applyFocus()
}

// Focused reports whether the view has focus.
func (v *View) Focused() bool {
	return v.focused
}

// Draft returns the current input text.
func (v *View) Draft() string {
	return v.input.Value()
}

// State returns the session state last shown.
func (v *View) State() chat.State {
	return v.state
}

// Update handles messages for the chat view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.SessionUpdated:
		wasBusy := v.state.Busy
		v.sync()
		if v.state.Busy && !wasBusy {
			return v, v.spinner.Tick
		}
		return v, nil

	case messages.SendFinished:
		v.sync()
		// Give the draft back so the user can retry
		if msg.Err != nil && v.input.Value() == "" {
			v.input.SetValue(msg.Content)
		}
		return v, nil

	case spinner.TickMsg:
		if !v.state.Busy {
			return v, nil
		}
		var cmd tea.Cmd
		v.spinner, cmd = v.spinner.Update(msg)
		return v, cmd
	}

	return v, nil
}

// handleKeyMsg handles key presses.
func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "enter":
		return v, v.submit()
	case "pgup", "pgdown":
		var cmd tea.Cmd
		v.viewport, cmd = v.viewport.Update(msg)
		return v, cmd
	}

	if v.state.Busy {
		return v, nil
	}
	var cmd tea.Cmd
	v.input, cmd = v.input.Update(msg)
	return v, cmd
}

// submit clears the input and starts a turn.
func (v *View) submit() tea.Cmd {
	content := strings.TrimSpace(v.input.Value())
	if content == "" || v.state.Busy {
		return nil
	}
	v.input.Reset()

	session, ctx := v.session, v.ctx
	return func() tea.Msg {
		err := session.SendMessage(ctx, content)
		return messages.SendFinished{Content: content, Err: err}
	}
}

// sync pulls the session state and redraws the transcript.
func (v *View) sync() {
	v.state = v.session.Snapshot()
	v.applyFocus()
	v.refreshContent()
}

func (v *View) applyFocus() {
	if v.focused && !v.state.Busy {
		v.input.Focus()
	} else {
		v.input.Blur()
	}
}

// refreshContent rebuilds the viewport from the current state.
func (v *View) refreshContent() {
	atBottom := v.viewport.AtBottom()
	v.viewport.SetContent(v.renderTranscript())
	if atBottom || v.state.Busy {
		v.viewport.GotoBottom()
	}
}

func (v *View) renderTranscript() string {
	if len(v.state.Messages) == 0 {
		return v.styles.Muted.Render("No messages yet. Ask something about your documents.")
	}

	var b strings.Builder
	last := len(v.state.Messages) - 1
	for i, msg := range v.state.Messages {
		if msg.Role == chat.RoleUser {
			b.WriteString(v.styles.UserLabel.Render("You") + " " + v.styles.Muted.Render(msg.CreatedAt.Local().Format("15:04")) + "\n")
			b.WriteString(msg.Content + "\n\n")
			continue
		}

		b.WriteString(v.styles.AssistantLabel.Render("Assistant") + "\n")
		streaming := v.state.Busy && i == last && msg.State == chat.IdentityPending
		switch {
		case streaming && msg.Content == "":
			b.WriteString(v.spinner.View() + " thinking\n")
		case streaming:
			b.WriteString(msg.Content + "\n")
		default:
			b.WriteString(v.renderMarkdown(msg) + "\n")
		}

		for n, c := range msg.Citations {
			b.WriteString(v.renderCitation(n+1, c.Title, string(c.SourceType), c.PageRange, c.TimeRange, c.TextSnippet) + "\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (v *View) renderMarkdown(msg chat.Message) string {
	if v.renderer == nil {
		return msg.Content
	}
	if r, ok := v.cache[msg.Token]; ok && r.content == msg.Content {
		return r.out
	}
	out, err := v.renderer.Render(msg.Content)
	if err != nil {
		return msg.Content
	}
	out = strings.Trim(out, "\n")
	v.cache[msg.Token] = rendered{content: msg.Content, out: out}
	return out
}

func (v *View) renderCitation(n int, title, kind, pages, times, snippet string) string {
	meta := []string{kind}
	if pages != "" {
		meta = append(meta, pages)
	}
	if times != "" {
		meta = append(meta, times)
	}
	snippet = strings.Join(strings.Fields(snippet), " ")
	if runes := []rune(snippet); len(runes) > 160 {
		snippet = string(runes[:157]) + "..."
	}

	card := fmt.Sprintf("[%d] %s (%s)", n, title, strings.Join(meta, " · "))
	if snippet != "" {
		card += "\n" + snippet
	}
	return v.styles.Citation.Width(max(v.width-4, 20)).Render(card)
}

// View renders the chat view.
func (v *View) View() string {
	header := v.styles.Title.Render("Chat")
	if v.state.ConversationID != "" {
		header += " " + v.styles.Muted.Render(v.state.ConversationID)
	}

	status := ""
	if v.state.Busy {
		status = v.spinner.View() + " " + v.styles.Muted.Render("waiting for the answer...")
	}

	errLine := ""
	if v.state.Err != "" {
		errLine = v.styles.Error.Render("✗ " + v.state.Err)
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		v.viewport.View(),
		errLine,
		status,
		v.input.View(),
	)
}
