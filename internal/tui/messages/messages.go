// Package messages defines Bubbletea message types for the TUI.
package messages

import (
	"secondbrain/internal/api"
)

// ViewType identifies which view fills the main pane.
type ViewType int

const (
	// ViewChat is the conversation transcript and input.
	ViewChat ViewType = iota
	// ViewUpload is the ingestion form.
	ViewUpload
	// ViewConversations lists conversations stored on the server.
	ViewConversations
)

// String returns the string representation of the view type.
func (v ViewType) String() string {
	switch v {
	case ViewChat:
		return "chat"
	case ViewUpload:
		return "upload"
	case ViewConversations:
		return "conversations"
	default:
		return "unknown"
	}
}

// ViewChanged is sent when navigating between views.
type ViewChanged struct {
	View ViewType
}

// SessionUpdated is sent whenever the chat session changed.
type SessionUpdated struct{}

// DocumentsUpdated is sent whenever the document store changed.
type DocumentsUpdated struct{}

// SendFinished reports the end of a chat turn.
type SendFinished struct {
	Content string
	Err     error
}

// ConversationLoaded reports the end of a conversation load.
type ConversationLoaded struct {
	ID  string
	Err error
}

// ConversationSelected asks the app to load a conversation.
type ConversationSelected struct {
	ID string
}

// ConversationsLoaded carries the server's conversation list.
type ConversationsLoaded struct {
	Conversations []api.Conversation
	Err           error
}

// DocumentDeleted reports the end of a delete.
type DocumentDeleted struct {
	ID  string
	Err error
}

// IngestFinished reports the end of an upload, URL or text ingestion.
type IngestFinished struct {
	Document *api.Document
	Err      error
}

// RefreshFinished reports the end of a manual refresh.
type RefreshFinished struct {
	Err error
}
