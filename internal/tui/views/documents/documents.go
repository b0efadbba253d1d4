// Package documents provides the documents sidebar for the TUI.
package documents

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"secondbrain/internal/api"
	"secondbrain/internal/documents"
	"secondbrain/internal/tui/messages"
	"secondbrain/internal/tui/styles"
)

// Store is the part of the document store the sidebar drives.
type Store interface {
	Snapshot() documents.State
	Refresh(ctx context.Context) error
	DeleteDocument(ctx context.Context, id string) error
}

// View is the documents sidebar.
type View struct {
	styles *styles.Styles
	store  Store
	ctx    context.Context

	state        documents.State
	selected     int
	scrollOffset int
	confirming   string
	deleting     map[string]bool
	focused      bool
	width        int
	height       int
}

// NewView creates a new documents view.
func NewView(ctx context.Context, s *styles.Styles, store Store) *View {
	return &View{
		styles:   s,
		store:    store,
		ctx:      ctx,
		deleting: make(map[string]bool),
		width:    30,
		height:   20,
	}
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	v.sync()
	return nil
}

// SetDimensions sets the size available to the view.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	v.adjustScroll()
}

// Focus gives the sidebar keyboard focus.
func (v *View) Focus() { v.focused = true }

// Blur removes keyboard focus and cancels a pending confirmation.
func (v *View) Blur() {
	v.focused = false
	v.confirming = ""
}

// Focused reports whether the view has focus.
func (v *View) Focused() bool { return v.focused }

// Selected returns the highlighted document, if any.
func (v *View) Selected() (api.Document, bool) {
	if v.selected < 0 || v.selected >= len(v.state.Documents) {
		return api.Document{}, false
	}
	return v.state.Documents[v.selected], true
}

// Confirming returns the id awaiting delete confirmation.
func (v *View) Confirming() string { return v.confirming }

// Deleting reports whether a delete of id is in flight.
func (v *View) Deleting(id string) bool { return v.deleting[id] }

// Update handles messages for the documents view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if v.confirming != "" {
			return v.handleConfirmKeyMsg(msg)
		}
		return v.handleKeyMsg(msg)

	case messages.DocumentsUpdated:
		v.sync()
		return v, nil

	case messages.DocumentDeleted:
		delete(v.deleting, msg.ID)
		v.sync()
		return v, nil

	case messages.RefreshFinished:
		v.sync()
		return v, nil
	}

	return v, nil
}

// handleKeyMsg handles key presses in list mode.
func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if v.selected > 0 {
			v.selected--
			v.adjustScroll()
		}
	case "down", "j":
		if v.selected < len(v.state.Documents)-1 {
			v.selected++
			v.adjustScroll()
		}
	case "r":
		store, ctx := v.store, v.ctx
		return v, func() tea.Msg {
			return messages.RefreshFinished{Err: store.Refresh(ctx)}
		}
	case "u":
		return v, func() tea.Msg {
			return messages.ViewChanged{View: messages.ViewUpload}
		}
	case "d", "delete":
		if doc, ok := v.Selected(); ok && !v.deleting[doc.ID] {
			v.confirming = doc.ID
		}
	}
	return v, nil
}

// handleConfirmKeyMsg handles the y/n answer to a delete prompt.
func (v *View) handleConfirmKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	id := v.confirming
	v.confirming = ""

	if msg.String() != "y" && msg.String() != "Y" {
		return v, nil
	}

	v.deleting[id] = true
	store, ctx := v.store, v.ctx
	return v, func() tea.Msg {
		return messages.DocumentDeleted{ID: id, Err: store.DeleteDocument(ctx, id)}
	}
}

// sync pulls the store state and keeps the selection in range.
func (v *View) sync() {
	v.state = v.store.Snapshot()
	if v.selected >= len(v.state.Documents) {
		v.selected = max(len(v.state.Documents)-1, 0)
	}
	v.adjustScroll()
}

// visibleRows is how many documents fit; each takes two lines.
func (v *View) visibleRows() int {
	return max((v.height-4)/2, 1)
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

// View renders the sidebar.
func (v *View) View() string {
	var b strings.Builder

	counts := map[api.Status]int{}
	for _, d := range v.state.Documents {
		counts[d.Status]++
	}
	b.WriteString(v.styles.Title.Render("Documents"))
	b.WriteString(v.styles.Muted.Render(fmt.Sprintf(" %d", v.state.Total)))
	if pending := counts[api.StatusQueued] + counts[api.StatusRunning]; pending > 0 {
		b.WriteString(v.styles.Warning.Render(fmt.Sprintf(" · %d processing", pending)))
	}
	b.WriteString("\n")

	if v.state.Busy {
		b.WriteString(v.styles.Muted.Render("loading...") + "\n")
	}
	if v.state.Err != "" {
		b.WriteString(v.styles.Error.Render(truncate(v.state.Err, v.width-2)) + "\n")
	}

	if len(v.state.Documents) == 0 {
		b.WriteString(v.styles.Muted.Render("No documents yet.\nPress u to add one."))
		return b.String()
	}

	end := min(v.scrollOffset+v.visibleRows(), len(v.state.Documents))
	for i := v.scrollOffset; i < end; i++ {
		doc := v.state.Documents[i]
		title := truncate(documentTitle(doc), v.width-4)
		line := title
		if i == v.selected && v.focused {
			line = v.styles.Selected.Render(title)
		}
		b.WriteString(line + "\n")

		meta := v.styles.StatusBadge(doc.Status) + " " + v.styles.Muted.Render(string(doc.SourceType))
		switch {
		case v.deleting[doc.ID]:
			meta = v.styles.Warning.Render("deleting...")
		case v.confirming == doc.ID:
			meta = v.styles.Warning.Render("delete? y/n")
		}
		b.WriteString(meta + "\n")
	}

	if v.focused {
		b.WriteString(v.styles.Help.Render("↑/↓ move · d delete · r refresh · u add"))
	}
	return b.String()
}

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

func truncate(s string, n int) string {
	runes := []rune(s)
	if n < 4 || len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
