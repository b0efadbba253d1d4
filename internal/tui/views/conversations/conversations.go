// Package conversations provides the conversation picker for the TUI.
package conversations

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"secondbrain/internal/api"
	"secondbrain/internal/tui/messages"
	"secondbrain/internal/tui/styles"
)

// Lister fetches the conversations stored on the server.
type Lister interface {
	ListConversations(ctx context.Context) ([]api.Conversation, error)
}

// View lists conversations and lets the user reopen one.
type View struct {
	styles *styles.Styles
	lister Lister
	ctx    context.Context

	conversations []api.Conversation
	selected      int
	scrollOffset  int
	loading       bool
	err           error
	width         int
	height        int
}

// NewView creates a new conversations view.
func NewView(ctx context.Context, s *styles.Styles, lister Lister) *View {
	return &View{
		styles: s,
		lister: lister,
		ctx:    ctx,
		width:  80,
		height: 24,
	}
}

// Init starts loading the list.
func (v *View) Init() tea.Cmd {
	return v.load()
}

// SetDimensions sets the size available to the view.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.adjustScroll()
}

// Loading reports whether the list is being fetched.
func (v *View) Loading() bool { return v.loading }

// Conversations returns the loaded list.
func (v *View) Conversations() []api.Conversation { return v.conversations }

// Selected returns the highlighted conversation, if any.
func (v *View) Selected() (api.Conversation, bool) {
	if v.selected < 0 || v.selected >= len(v.conversations) {
		return api.Conversation{}, false
	}
	return v.conversations[v.selected], true
}

// Update handles messages for the conversations view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.ConversationsLoaded:
		v.loading = false
		v.err = msg.Err
		if msg.Err == nil {
			v.conversations = msg.Conversations
			v.selected = 0
			v.scrollOffset = 0
		}
		return v, nil
	}

	return v, nil
}

// handleKeyMsg handles key presses.
func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.selected > 0 {
			v.selected--
			v.adjustScroll()
		}
	case "down", "j":
		if v.selected < len(v.conversations)-1 {
			v.selected++
			v.adjustScroll()
		}
	case "r":
		return v, v.load()
	case "enter":
		if conv, ok := v.Selected(); ok {
			return v, func() tea.Msg {
				return messages.ConversationSelected{ID: conv.ID}
			}
		}
	case "esc":
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewChat}
		}
	}
	return v, nil
}

func (v *View) load() tea.Cmd {
	if v.loading {
		return nil
	}
	v.loading = true
	lister, ctx := v.lister, v.ctx
	return func() tea.Msg {
		convs, err := lister.ListConversations(ctx)
		return messages.ConversationsLoaded{Conversations: convs, Err: err}
	}
}

func (v *View) visibleRows() int {
	return max(v.height-4, 1)
}

func (v *View) adjustScroll() {
	rows := v.visibleRows()
	if v.selected < v.scrollOffset {
		v.scrollOffset = v.selected
	}
	if v.selected >= v.scrollOffset+rows {
		v.scrollOffset = v.selected - rows + 1
	}
}

// View renders the list.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Conversations"))
	b.WriteString("\n\n")

	switch {
	case v.loading:
		b.WriteString(v.styles.Muted.Render("Loading conversations..."))
		return b.String()
	case v.err != nil:
		b.WriteString(v.styles.Error.Render(api.ErrorMessage(v.err, "Failed to load conversations")))
		b.WriteString("\n\n")
		b.WriteString(v.styles.Help.Render("r retry · esc back"))
		return b.String()
	case len(v.conversations) == 0:
		b.WriteString(v.styles.Muted.Render("No conversations yet."))
		b.WriteString("\n\n")
		b.WriteString(v.styles.Help.Render("esc back"))
		return b.String()
	}

	end := min(v.scrollOffset+v.visibleRows(), len(v.conversations))
	for i := v.scrollOffset; i < end; i++ {
		conv := v.conversations[i]
		line := fmt.Sprintf("%s  %s", conv.CreatedAt.Local().Format("2006-01-02 15:04"), conversationLabel(conv))
		if i == v.selected {
			b.WriteString(v.styles.Selected.Render("▸ " + line))
		} else {
			b.WriteString("  " + line)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(v.styles.Help.Render("↑/↓ move · enter open · r reload · esc back"))
	return b.String()
}

// conversationLabel prefers the title, then the first user message.
func conversationLabel(conv api.Conversation) string {
	if conv.Title != "" {
		return conv.Title
	}
	for _, m := range conv.Messages {
		if m.Role == "user" {
			text := strings.Join(strings.Fields(m.Content), " ")
			if runes := []rune(text); len(runes) > 60 {
				text = string(runes[:59]) + "…"
			}
			return text
		}
	}
	return fmt.Sprintf("%s (%d messages)", conv.ID, len(conv.Messages))
}
