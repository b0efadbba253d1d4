package api

import (
	"bytes"
	"fmt"
	"time"
)

// SourceType classifies the medium an ingested document came from
type SourceType string

const (
	SourceAudio    SourceType = "audio"
	SourcePDF      SourceType = "pdf"
	SourceMarkdown SourceType = "markdown"
	SourceWeb      SourceType = "web"
	SourceText     SourceType = "text"
	SourceImage    SourceType = "image"
)

// Status is the ingestion lifecycle stage of a document or job
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Pending reports whether the backend is still working on the item
func (s Status) Pending() bool {
	return s == StatusQueued || s == StatusRunning
}

// Stage is the pipeline step an ingestion job last reached
type Stage string

const (
	StageReceived  Stage = "received"
	StageExtracted Stage = "extracted"
	StageChunked   Stage = "chunked"
	StageEmbedded  Stage = "embedded"
	StageIndexed   Stage = "indexed"
)

// Timestamp decodes the backend's ISO-8601 datetimes, which may or may not
// carry a zone offset. Offset-less values are taken as UTC.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("timestamp must be a string, got %s", data)
	}
	raw := string(data[1 : len(data)-1])
	if raw == "" {
		return nil
	}

	if parsed, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range naiveLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("invalid timestamp %q", raw)
}

// MarshalJSON implements json.Marshaler
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.UTC().Format(time.RFC3339Nano) + `"`), nil
}

// Document is an ingested item as reported by the backend
type Document struct {
	ID               string         `json:"id"`
	UserID           string         `json:"user_id"`
	SourceType       SourceType     `json:"source_type"`
	Title            string         `json:"title"`
	SourceURI        string         `json:"source_uri,omitempty"`
	OriginalFilename string         `json:"original_filename,omitempty"`
	Status           Status         `json:"status"`
	CreatedAt        Timestamp      `json:"created_at"`
	IngestedAt       *Timestamp     `json:"ingested_at,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// DocumentList is the body of GET /v1/documents
type DocumentList struct {
	Documents []Document `json:"documents"`
	Total     int        `json:"total"`
}

// ListOptions narrows a document listing. Zero values are left to the server.
type ListOptions struct {
	SourceType SourceType
	Limit      int
	Offset     int
}

// Chunk is one retrievable slice of a document
type Chunk struct {
	ID                 string     `json:"id"`
	DocumentID         string     `json:"document_id"`
	ChunkIndex         int        `json:"chunk_index"`
	Text               string     `json:"text"`
	TokenCount         *int       `json:"token_count,omitempty"`
	PageStart          *int       `json:"page_start,omitempty"`
	PageEnd            *int       `json:"page_end,omitempty"`
	TimeStart          *Timestamp `json:"time_start,omitempty"`
	TimeEnd            *Timestamp `json:"time_end,omitempty"`
	SourceOffsetMsFrom *int       `json:"source_offset_ms_start,omitempty"`
	SourceOffsetMsTo   *int       `json:"source_offset_ms_end,omitempty"`
}

// IngestionJob tracks the backend pipeline for one document
type IngestionJob struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Status     Status    `json:"status"`
	Stage      Stage     `json:"stage"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  Timestamp `json:"created_at"`
	UpdatedAt  Timestamp `json:"updated_at"`
}

// IngestTextRequest is the body of POST /v1/ingest/text
type IngestTextRequest struct {
	Text      string `json:"text"`
	Title     string `json:"title,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// IngestURLRequest is the body of POST /v1/ingest/url
type IngestURLRequest struct {
	URL string `json:"url"`
}

// FileUpload is the multipart payload of POST /v1/ingest/file
type FileUpload struct {
	Filename   string
	SourceType SourceType
	CreatedAt  string
}

// Citation points an assistant reply back at a source chunk
type Citation struct {
	ChunkID     string     `json:"chunk_id"`
	DocumentID  string     `json:"document_id"`
	Title       string     `json:"title"`
	SourceURI   string     `json:"source_uri,omitempty"`
	SourceType  SourceType `json:"source_type"`
	PageRange   string     `json:"page_range,omitempty"`
	TimeRange   string     `json:"time_range,omitempty"`
	TextSnippet string     `json:"text_snippet"`
}

// Message is a stored conversation turn
type Message struct {
	ID        string     `json:"id"`
	Role      string     `json:"role"` // "user" or "assistant"
	Content   string     `json:"content"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt Timestamp  `json:"created_at"`
}

// Conversation is a stored chat thread with its messages
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt Timestamp `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// ChatRequest is the body of POST /v1/chat and /v1/chat/stream
type ChatRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
	Timezone       string `json:"timezone"`
}

// ChatResponse is the body of a non-streaming chat reply
type ChatResponse struct {
	ConversationID string     `json:"conversation_id"`
	MessageID      string     `json:"message_id"`
	Content        string     `json:"content"`
	Citations      []Citation `json:"citations"`
}

// EventType tags a StreamEvent
type EventType string

const (
	EventStart     EventType = "start"
	EventCitations EventType = "citations"
	EventToken     EventType = "token"
	EventDone      EventType = "done"
)

// StreamEvent is one frame of the chat stream. Which payload field is set
// depends on Type.
type StreamEvent struct {
	Type           EventType  `json:"type"`
	ConversationID string     `json:"conversation_id,omitempty"`
	Citations      []Citation `json:"citations,omitempty"`
	Token          string     `json:"token,omitempty"`
	MessageID      string     `json:"message_id,omitempty"`
}
