// Package keymap defines keybindings for the TUI.
package keymap

import (
	"github.com/charmbracelet/bubbles/key"
)

// KeyMap defines the global keybindings.
type KeyMap struct {
	// Quit exits the application.
	Quit key.Binding

	// Focus moves focus between the sidebar and the main pane.
	Focus key.Binding

	// NewChat starts a new conversation.
	NewChat key.Binding

	// Conversations opens the conversations picker.
	Conversations key.Binding

	// Upload opens the ingestion form.
	Upload key.Binding

	// Back returns to the chat.
	Back key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() *KeyMap {
	return &KeyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("ctrl+c", "quit"),
		),
		Focus: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("ctrl+w", "switch pane"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("ctrl+n", "new chat"),
		),
		Conversations: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("ctrl+o", "conversations"),
		),
		Upload: key.NewBinding(
			key.WithKeys("ctrl+u"),
			key.WithHelp("ctrl+u", "add document"),
		),
		Back: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "back"),
		),
	}
}

// ShortHelp returns the bindings shown in the footer.
func (k *KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Focus, k.NewChat, k.Conversations, k.Upload, k.Quit}
}
