package documents

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"secondbrain/internal/api"
	"secondbrain/internal/logger"
)

// ErrEmptyText is returned when IngestText is called with blank text
var ErrEmptyText = errors.New("text is empty")

// Backend is the part of the API adapter the store needs
type Backend interface {
	ListDocuments(ctx context.Context, opts api.ListOptions) (*api.DocumentList, error)
	IngestFile(ctx context.Context, upload api.FileUpload, content io.Reader) (*api.Document, error)
	IngestURL(ctx context.Context, rawURL string) (*api.Document, error)
	IngestText(ctx context.Context, req api.IngestTextRequest) (*api.Document, error)
	DeleteDocument(ctx context.Context, id string) error
}

// State is a point-in-time copy of the store
type State struct {
	Documents []api.Document
	Total     int
	Busy      bool
	Err       string
}

// Option configures a Store
type Option func(*Store)

// WithListener registers a function called after every observable change
func WithListener(fn func()) Option {
	return func(s *Store) {
		s.listener = fn
	}
}

// WithListOptions sets the filter and page used by every refresh
func WithListOptions(opts api.ListOptions) Option {
	return func(s *Store) {
		s.listOpts = opts
	}
}

// IngestOption adjusts an ingestion request
type IngestOption func(*ingestOptions)

type ingestOptions struct {
	createdAt time.Time
}

// WithCreatedAt overrides the creation time recorded for the document
func WithCreatedAt(t time.Time) IngestOption {
	return func(o *ingestOptions) {
		o.createdAt = t
	}
}

func (o ingestOptions) createdAtString() string {
	if o.createdAt.IsZero() {
		return ""
	}
	return o.createdAt.Format(time.RFC3339)
}

// Store owns the list of ingested documents. Every mutation is followed by
// a full reload from the server; documents are never patched locally.
type Store struct {
	backend  Backend
	listOpts api.ListOptions

	mu        sync.Mutex
	listener  func()
	documents []api.Document
	total     int
	inflight  int
	err       string

	// reloads are numbered when they start; a list fetched before the
	// most recently applied one is dropped
	reloadSeq  uint64
	appliedSeq uint64
}

// NewStore creates an empty store
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:   backend,
		documents: []api.Document{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open creates a store and loads the document list once
func Open(ctx context.Context, backend Backend, opts ...Option) (*Store, error) {
	s := NewStore(backend, opts...)
	if err := s.Refresh(ctx); err != nil {
		return s, err
	}
	return s, nil
}

// SetListener replaces the change listener
func (s *Store) SetListener(fn func()) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// Refresh replaces the document list with the server's
func (s *Store) Refresh(ctx context.Context) error {
	s.begin()
	defer s.end()

	if err := s.reload(ctx); err != nil {
		s.setErr(err, "Failed to load documents")
		return err
	}
	return nil
}

// UploadFile reads the file at path and ingests it
func (s *Store) UploadFile(ctx context.Context, path string, opts ...IngestOption) (*api.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open %s: %w", path, err)
		s.setErr(err, "Failed to upload file")
		s.notify()
		return nil, err
	}
	defer f.Close()

	return s.Upload(ctx, filepath.Base(path), f, opts...)
}

// Upload ingests content under name, deriving the source kind from its extension
func (s *Store) Upload(ctx context.Context, name string, content io.Reader, opts ...IngestOption) (*api.Document, error) {
	o := applyIngestOptions(opts)
	upload := api.FileUpload{
		Filename:   name,
		SourceType: SourceTypeForFilename(name),
		CreatedAt:  o.createdAtString(),
	}

	var doc *api.Document
	err := s.run(ctx, "Failed to upload file", func(ctx context.Context) error {
		var err error
		doc, err = s.backend.IngestFile(ctx, upload, content)
		return err
	})
	return doc, err
}

// IngestURL asks the backend to fetch and ingest a web page
func (s *Store) IngestURL(ctx context.Context, rawURL string) (*api.Document, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}

	var doc *api.Document
	err = s.run(ctx, "Failed to ingest URL", func(ctx context.Context) error {
		var err error
		doc, err = s.backend.IngestURL(ctx, normalized)
		return err
	})
	return doc, err
}

// IngestText ingests raw text with an optional title
func (s *Store) IngestText(ctx context.Context, text, title string, opts ...IngestOption) (*api.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	o := applyIngestOptions(opts)
	req := api.IngestTextRequest{
		Text:      text,
		Title:     strings.TrimSpace(title),
		CreatedAt: o.createdAtString(),
	}

	var doc *api.Document
	err := s.run(ctx, "Failed to ingest text", func(ctx context.Context) error {
		var err error
		doc, err = s.backend.IngestText(ctx, req)
		return err
	})
	return doc, err
}

// DeleteDocument deletes a document
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.run(ctx, "Failed to delete document", func(ctx context.Context) error {
		return s.backend.DeleteDocument(ctx, id)
	})
}

// run performs op and, only if it succeeded, reloads the list once
func (s *Store) run(ctx context.Context, failMsg string, op func(context.Context) error) error {
	s.begin()
	defer s.end()

	if err := op(ctx); err != nil {
		s.setErr(err, failMsg)
		return err
	}
	if err := s.reload(ctx); err != nil {
		s.setErr(err, "Failed to load documents")
		return err
	}
	return nil
}

// reload fetches the list and swaps it in unless a later reload already
// finished
func (s *Store) reload(ctx context.Context) error {
	s.mu.Lock()
	s.reloadSeq++
	seq := s.reloadSeq
	s.mu.Unlock()

	list, err := s.backend.ListDocuments(ctx, s.listOpts)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if applied := s.appliedSeq; seq < applied {
		s.mu.Unlock()
		logger.Debug("dropping stale document list (reload %d, have %d)", seq, applied)
		return nil
	}
	s.appliedSeq = seq
	s.documents = list.Documents
	if s.documents == nil {
		s.documents = []api.Document{}
	}
	s.total = list.Total
	s.mu.Unlock()

	logger.Debug("loaded %d of %d documents", len(list.Documents), list.Total)
	return nil
}

func (s *Store) begin() {
	s.mu.Lock()
	s.inflight++
	s.err = ""
	s.mu.Unlock()
	s.notify()
}

func (s *Store) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
	s.notify()
}

func (s *Store) setErr(err error, fallback string) {
	s.mu.Lock()
	s.err = api.ErrorMessage(err, fallback)
	s.mu.Unlock()
	logger.Debug("%s: %v", fallback, err)
}

func (s *Store) notify() {
	s.mu.Lock()
	fn := s.listener
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Snapshot returns a copy of the current state
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]api.Document, len(s.documents))
	copy(docs, s.documents)
	return State{
		Documents: docs,
		Total:     s.total,
		Busy:      s.inflight > 0,
		Err:       s.err,
	}
}

// Documents returns a copy of the document list
func (s *Store) Documents() []api.Document {
	return s.Snapshot().Documents
}

// Busy reports whether any operation is in flight
func (s *Store) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inflight > 0
}

// Err returns the last recorded error message
func (s *Store) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Counts tallies the loaded documents by status
func (s *Store) Counts() map[api.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[api.Status]int)
	for _, d := range s.documents {
		counts[d.Status]++
	}
	return counts
}

// HasPending reports whether any loaded document is still being ingested
func (s *Store) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.documents {
		if d.Status.Pending() {
			return true
		}
	}
	return false
}

func applyIngestOptions(opts []IngestOption) ingestOptions {
	var o ingestOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
