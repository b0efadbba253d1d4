// Package upload provides the ingestion form for the TUI.
package upload

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"secondbrain/internal/api"
	"secondbrain/internal/documents"
	"secondbrain/internal/terminal"
	"secondbrain/internal/tui/messages"
	"secondbrain/internal/tui/styles"
)

// Tab selects the kind of ingestion.
type Tab int

const (
	// TabFile uploads a local file.
	TabFile Tab = iota
	// TabURL ingests a web page.
	TabURL
	// TabText ingests pasted text.
	TabText
)

var tabNames = []string{"File", "URL", "Text"}

// String returns the tab label.
func (t Tab) String() string {
	if int(t) < len(tabNames) {
		return tabNames[t]
	}
	return "unknown"
}

// Store is the part of the document store the form drives.
type Store interface {
	UploadFile(ctx context.Context, path string, opts ...documents.IngestOption) (*api.Document, error)
	IngestURL(ctx context.Context, rawURL string) (*api.Document, error)
	IngestText(ctx context.Context, text, title string, opts ...documents.IngestOption) (*api.Document, error)
}

// View is the ingestion form.
type View struct {
	styles *styles.Styles
	store  Store
	ctx    context.Context

	tab   Tab
	path  textinput.Model
	url   textinput.Model
	title textinput.Model
	body  textarea.Model

	// bodyFocused is true when the text tab edits the body.
	bodyFocused bool
	submitting  bool
	message     string
	failed      bool
	width       int
	height      int
}

// NewView creates a new upload view.
func NewView(ctx context.Context, s *styles.Styles, store Store) *View {
	path := textinput.New()
	path.Placeholder = "~/Documents/paper.pdf"
	path.Prompt = "Path: "

	u := textinput.New()
	u.Placeholder = "https://example.com/article"
	u.Prompt = "URL: "

	title := textinput.New()
	title.Placeholder = "optional"
	title.Prompt = "Title: "

	body := textarea.New()
	body.Placeholder = "Paste or type the note here..."
	body.ShowLineNumbers = false
	body.CharLimit = 0

	v := &View{
		styles: s,
		store:  store,
		ctx:    ctx,
		path:   path,
		url:    u,
		title:  title,
		body:   body,
	}
	v.SetDimensions(80, 24)
	v.focusCurrent()
	return v
}

// Init initialises the view.
func (v *View) Init() tea.Cmd {
	return textinput.Blink
}

// SetDimensions sets the size available to the view.
func (v *View) SetDimensions(width, height int) {
	v.width = width
	v.height = height
	inner := max(width-4, 10)
	v.path.Width = inner - len(v.path.Prompt)
	v.url.Width = inner - len(v.url.Prompt)
	v.title.Width = inner - len(v.title.Prompt)
	v.body.SetWidth(inner)
	v.body.SetHeight(max(height-10, 3))
}

// Tab returns the active tab.
func (v *View) Tab() Tab { return v.tab }

// Submitting reports whether an ingestion is in flight.
func (v *View) Submitting() bool { return v.submitting }

// Message returns the last result or validation message.
func (v *View) Message() string { return v.message }

// SetTab switches to the given tab and clears the message.
func (v *View) SetTab(t Tab) {
	v.tab = t
	v.message = ""
	v.failed = false
	v.bodyFocused = false
	v.focusCurrent()
}

// Update handles messages for the upload view.
func (v *View) Update(msg tea.Msg) (*View, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return v.handleKeyMsg(msg)

	case messages.IngestFinished:
		v.submitting = false
		if msg.Err != nil {
			v.failed = true
			v.message = api.ErrorMessage(msg.Err, "Ingestion failed")
			return v, nil
		}
		v.failed = false
		v.message = "Queued " + describe(msg.Document)
		v.clearDraft()
		return v, nil
	}

	return v, nil
}

// handleKeyMsg handles key presses.
func (v *View) handleKeyMsg(msg tea.KeyMsg) (*View, tea.Cmd) {
	switch msg.String() {
	case "tab":
		v.SetTab((v.tab + 1) % 3)
		return v, nil
	case "shift+tab":
		v.SetTab((v.tab + 2) % 3)
		return v, nil
	case "ctrl+s":
		return v, v.submit()
	case "enter":
		switch {
		case v.tab == TabText && !v.bodyFocused:
			v.bodyFocused = true
			v.focusCurrent()
			return v, nil
		case v.tab != TabText:
			return v, v.submit()
		}
	case "up":
		if v.tab == TabText && v.bodyFocused && v.body.Line() == 0 {
			v.bodyFocused = false
			v.focusCurrent()
			return v, nil
		}
	}

	if v.submitting {
		return v, nil
	}

	var cmd tea.Cmd
	switch {
	case v.tab == TabFile:
		v.path, cmd = v.path.Update(msg)
		// a drop of several files keeps only the first
		if msg.Paste {
			v.path.SetValue(terminal.FirstPath(v.path.Value()))
		}
	case v.tab == TabURL:
		v.url, cmd = v.url.Update(msg)
	case v.bodyFocused:
		v.body, cmd = v.body.Update(msg)
	default:
		v.title, cmd = v.title.Update(msg)
	}
	return v, cmd
}

// submit validates the active tab and starts the ingestion.
func (v *View) submit() tea.Cmd {
	if v.submitting {
		return nil
	}

	store, ctx := v.store, v.ctx
	var run func() (*api.Document, error)

	switch v.tab {
	case TabFile:
		path := terminal.FirstPath(v.path.Value())
		if path == "" {
			return v.invalid("Enter a file path")
		}
		if !documents.IsAccepted(path) {
			return v.invalid(fmt.Sprintf("Unsupported file type. Accepted: %s", strings.Join(documents.AcceptedExtensions, " ")))
		}
		run = func() (*api.Document, error) { return store.UploadFile(ctx, path) }
	case TabURL:
		rawURL := strings.TrimSpace(v.url.Value())
		if rawURL == "" {
			return v.invalid("Enter a URL")
		}
		run = func() (*api.Document, error) { return store.IngestURL(ctx, rawURL) }
	case TabText:
		text, title := v.body.Value(), v.title.Value()
		if strings.TrimSpace(text) == "" {
			return v.invalid("Enter some text")
		}
		run = func() (*api.Document, error) { return store.IngestText(ctx, text, title) }
	}

	v.submitting = true
	v.failed = false
	v.message = "Submitting..."
	return func() tea.Msg {
		doc, err := run()
		return messages.IngestFinished{Document: doc, Err: err}
	}
}

func (v *View) invalid(msg string) tea.Cmd {
	v.failed = true
	v.message = msg
	return nil
}

func (v *View) clearDraft() {
	switch v.tab {
	case TabFile:
		v.path.Reset()
	case TabURL:
		v.url.Reset()
	case TabText:
		v.title.Reset()
		v.body.Reset()
		v.bodyFocused = false
		v.focusCurrent()
	}
}

// focusCurrent focuses the input of the active tab.
func (v *View) focusCurrent() {
	v.path.Blur()
	v.url.Blur()
	v.title.Blur()
	v.body.Blur()

	switch {
	case v.tab == TabFile:
		v.path.Focus()
	case v.tab == TabURL:
		v.url.Focus()
	case v.bodyFocused:
		v.body.Focus()
	default:
		v.title.Focus()
	}
}

// View renders the form.
func (v *View) View() string {
	var b strings.Builder

	b.WriteString(v.styles.Title.Render("Add to your second brain"))
	b.WriteString("\n\n")

	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if Tab(i) == v.tab {
			tabs[i] = v.styles.ActiveTab.Render(name)
		} else {
			tabs[i] = v.styles.Tab.Render(name)
		}
	}
	b.WriteString(strings.Join(tabs, " "))
	b.WriteString("\n\n")

	switch v.tab {
	case TabFile:
		b.WriteString(v.path.View())
		b.WriteString("\n")
		b.WriteString(v.styles.Muted.Render("Accepted: " + strings.Join(documents.AcceptedExtensions, " ")))
	case TabURL:
		b.WriteString(v.url.View())
	case TabText:
		b.WriteString(v.title.View())
		b.WriteString("\n")
		b.WriteString(v.body.View())
	}
	b.WriteString("\n\n")

	if v.message != "" {
		style := v.styles.Success
		switch {
		case v.failed:
			style = v.styles.Error
		case v.submitting:
			style = v.styles.Muted
		}
		b.WriteString(style.Render(v.message))
		b.WriteString("\n")
	}

	help := "tab switch · enter submit · esc back"
	if v.tab == TabText {
		help = "tab switch · enter next field · ctrl+s submit · esc back"
	}
	b.WriteString(v.styles.Help.Render(help))
	return b.String()
}

func describe(doc *api.Document) string {
	if doc == nil {
		return "document"
	}
	name := doc.Title
	if name == "" {
		name = doc.OriginalFilename
	}
	if name == "" {
		name = doc.SourceURI
	}
	if name == "" {
		return fmt.Sprintf("%s document", doc.SourceType)
	}
	return fmt.Sprintf("%q (%s)", name, doc.SourceType)
}
