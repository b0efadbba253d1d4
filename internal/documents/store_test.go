package documents

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secondbrain/internal/api"
)

// mockBackend implements Backend for testing
type mockBackend struct {
	mu        sync.Mutex
	listCalls int

	ListFunc   func(ctx context.Context, opts api.ListOptions) (*api.DocumentList, error)
	FileFunc   func(ctx context.Context, upload api.FileUpload, content io.Reader) (*api.Document, error)
	URLFunc    func(ctx context.Context, rawURL string) (*api.Document, error)
	TextFunc   func(ctx context.Context, req api.IngestTextRequest) (*api.Document, error)
	DeleteFunc func(ctx context.Context, id string) error
}

func (m *mockBackend) ListDocuments(ctx context.Context, opts api.ListOptions) (*api.DocumentList, error) {
	m.mu.Lock()
	m.listCalls++
	m.mu.Unlock()
	if m.ListFunc != nil {
		return m.ListFunc(ctx, opts)
	}
	return &api.DocumentList{Documents: []api.Document{}}, nil
}

func (m *mockBackend) IngestFile(ctx context.Context, upload api.FileUpload, content io.Reader) (*api.Document, error) {
	if m.FileFunc != nil {
		return m.FileFunc(ctx, upload, content)
	}
	return &api.Document{ID: "new"}, nil
}

func (m *mockBackend) IngestURL(ctx context.Context, rawURL string) (*api.Document, error) {
	if m.URLFunc != nil {
		return m.URLFunc(ctx, rawURL)
	}
	return &api.Document{ID: "new"}, nil
}

func (m *mockBackend) IngestText(ctx context.Context, req api.IngestTextRequest) (*api.Document, error) {
	if m.TextFunc != nil {
		return m.TextFunc(ctx, req)
	}
	return &api.Document{ID: "new"}, nil
}

func (m *mockBackend) DeleteDocument(ctx context.Context, id string) error {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	return nil
}

func (m *mockBackend) refreshes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func listOf(docs ...api.Document) func(context.Context, api.ListOptions) (*api.DocumentList, error) {
	return func(context.Context, api.ListOptions) (*api.DocumentList, error) {
		return &api.DocumentList{Documents: docs, Total: len(docs)}, nil
	}
}

func TestOpen_LoadsOnce(t *testing.T) {
	backend := &mockBackend{ListFunc: listOf(
		api.Document{ID: "a", Status: api.StatusCompleted},
		api.Document{ID: "b", Status: api.StatusQueued},
	)}

	store, err := Open(context.Background(), backend)

	require.NoError(t, err)
	assert.Equal(t, 1, backend.refreshes())
	assert.Len(t, store.Documents(), 2)
	assert.Equal(t, 2, store.Snapshot().Total)
	assert.False(t, store.Busy())
}

func TestRefresh_PassesListOptions(t *testing.T) {
	backend := &mockBackend{
		ListFunc: func(ctx context.Context, opts api.ListOptions) (*api.DocumentList, error) {
			assert.Equal(t, api.SourceAudio, opts.SourceType)
			assert.Equal(t, 10, opts.Limit)
			return &api.DocumentList{}, nil
		},
	}
	store := NewStore(backend, WithListOptions(api.ListOptions{SourceType: api.SourceAudio, Limit: 10}))

	require.NoError(t, store.Refresh(context.Background()))
	assert.NotNil(t, store.Documents())
}

func TestRefresh_Failure(t *testing.T) {
	backend := &mockBackend{
		ListFunc: func(context.Context, api.ListOptions) (*api.DocumentList, error) {
			return nil, &api.Error{StatusCode: 502, Detail: api.GenericErrorMessage}
		},
	}
	store := NewStore(backend)

	err := store.Refresh(context.Background())

	require.Error(t, err)
	assert.Equal(t, api.GenericErrorMessage, store.Err())
	assert.False(t, store.Busy())
}

func TestMutations_RefreshExactlyOnceOnSuccess(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	require.NoError(t, os.WriteFile(path, []byte("# hi"), 0600))

	ops := map[string]func(*Store) error{
		"upload": func(s *Store) error {
			_, err := s.UploadFile(context.Background(), path)
			return err
		},
		"url": func(s *Store) error {
			_, err := s.IngestURL(context.Background(), "https://example.com")
			return err
		},
		"text": func(s *Store) error {
			_, err := s.IngestText(context.Background(), "body", "")
			return err
		},
		"delete": func(s *Store) error {
			return s.DeleteDocument(context.Background(), "d1")
		},
	}

	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			backend := &mockBackend{}
			store := NewStore(backend)

			require.NoError(t, op(store))
			assert.Equal(t, 1, backend.refreshes())
			assert.Empty(t, store.Err())
		})
	}
}

func TestMutations_NoRefreshOnFailure(t *testing.T) {
	boom := &api.Error{StatusCode: 400, Detail: "Unsupported file"}
	backend := &mockBackend{
		FileFunc: func(context.Context, api.FileUpload, io.Reader) (*api.Document, error) { return nil, boom },
		URLFunc:  func(context.Context, string) (*api.Document, error) { return nil, boom },
		TextFunc: func(context.Context, api.IngestTextRequest) (*api.Document, error) { return nil, boom },
		DeleteFunc: func(context.Context, string) error {
			return boom
		},
	}
	store := NewStore(backend)
	ctx := context.Background()

	_, err := store.Upload(ctx, "a.pdf", nil)
	assert.ErrorIs(t, err, boom)
	_, err = store.IngestURL(ctx, "http://example.com")
	assert.ErrorIs(t, err, boom)
	_, err = store.IngestText(ctx, "text", "title")
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, store.DeleteDocument(ctx, "d1"), boom)

	assert.Equal(t, 0, backend.refreshes())
	assert.Equal(t, "Unsupported file", store.Err())
	assert.False(t, store.Busy())
}

func TestUpload_DerivesSourceKind(t *testing.T) {
	var got api.FileUpload
	var body []byte
	backend := &mockBackend{
		FileFunc: func(ctx context.Context, upload api.FileUpload, content io.Reader) (*api.Document, error) {
			got = upload
			body, _ = io.ReadAll(content)
			return &api.Document{ID: "d9", Status: api.StatusQueued}, nil
		},
	}
	store := NewStore(backend)
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	doc, err := store.Upload(context.Background(), "Memo.WAV", bytesReader("RIFF"), WithCreatedAt(created))

	require.NoError(t, err)
	assert.Equal(t, "d9", doc.ID)
	assert.Equal(t, "Memo.WAV", got.Filename)
	assert.Equal(t, api.SourceAudio, got.SourceType)
	assert.Equal(t, "2024-01-02T03:04:05Z", got.CreatedAt)
	assert.Equal(t, "RIFF", string(body))
}

func TestUploadFile_MissingFile(t *testing.T) {
	backend := &mockBackend{}
	store := NewStore(backend)

	_, err := store.UploadFile(context.Background(), filepath.Join(t.TempDir(), "nope.pdf"))

	require.Error(t, err)
	assert.NotEmpty(t, store.Err())
	assert.Equal(t, 0, backend.refreshes())
}

func TestIngestText_RejectsBlank(t *testing.T) {
	called := false
	backend := &mockBackend{
		TextFunc: func(context.Context, api.IngestTextRequest) (*api.Document, error) {
			called = true
			return nil, nil
		},
	}
	store := NewStore(backend)

	_, err := store.IngestText(context.Background(), " \t\n", "title")

	assert.ErrorIs(t, err, ErrEmptyText)
	assert.False(t, called)
	assert.Equal(t, 0, backend.refreshes())
}

func TestIngestText_TrimsTitle(t *testing.T) {
	var got api.IngestTextRequest
	backend := &mockBackend{
		TextFunc: func(ctx context.Context, req api.IngestTextRequest) (*api.Document, error) {
			got = req
			return &api.Document{}, nil
		},
	}
	store := NewStore(backend)

	_, err := store.IngestText(context.Background(), "body text", "  Title  ")

	require.NoError(t, err)
	assert.Equal(t, "body text", got.Text)
	assert.Equal(t, "Title", got.Title)
	assert.Empty(t, got.CreatedAt)
}

func TestIngestURL_Validates(t *testing.T) {
	var sent []string
	backend := &mockBackend{
		URLFunc: func(ctx context.Context, rawURL string) (*api.Document, error) {
			sent = append(sent, rawURL)
			return &api.Document{}, nil
		},
	}
	store := NewStore(backend)

	_, err := store.IngestURL(context.Background(), "ftp://example.com/file")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = store.IngestURL(context.Background(), " https://bücher.example/buch ")
	require.NoError(t, err)

	assert.Equal(t, []string{"https://xn--bcher-kva.example/buch"}, sent)
	assert.Equal(t, 1, backend.refreshes())
}

func TestListener_CalledAroundOperations(t *testing.T) {
	var calls atomic.Int32
	var busySeen atomic.Bool
	var store *Store
	store = NewStore(&mockBackend{}, WithListener(func() {
		calls.Add(1)
		if store.Busy() {
			busySeen.Store(true)
		}
	}))

	require.NoError(t, store.Refresh(context.Background()))

	assert.EqualValues(t, 2, calls.Load())
	assert.True(t, busySeen.Load())
}

func TestCountsAndPending(t *testing.T) {
	backend := &mockBackend{ListFunc: listOf(
		api.Document{ID: "a", Status: api.StatusCompleted},
		api.Document{ID: "b", Status: api.StatusCompleted},
		api.Document{ID: "c", Status: api.StatusFailed},
	)}
	store, err := Open(context.Background(), backend)
	require.NoError(t, err)

	counts := store.Counts()
	assert.Equal(t, 2, counts[api.StatusCompleted])
	assert.Equal(t, 1, counts[api.StatusFailed])
	assert.Equal(t, 0, counts[api.StatusQueued])
	assert.False(t, store.HasPending())
}

func TestWatch_PollsWhilePending(t *testing.T) {
	var polls atomic.Int32
	backend := &mockBackend{
		ListFunc: func(context.Context, api.ListOptions) (*api.DocumentList, error) {
			status := api.StatusRunning
			if polls.Add(1) >= 3 {
				status = api.StatusCompleted
			}
			return &api.DocumentList{Documents: []api.Document{{ID: "a", Status: status}}, Total: 1}, nil
		},
	}
	store, err := Open(context.Background(), backend)
	require.NoError(t, err)
	require.True(t, store.HasPending())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Watch(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return !store.HasPending()
	}, 2*time.Second, 5*time.Millisecond)

	settled := polls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, polls.Load())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

func TestWatch_IgnoresPollErrors(t *testing.T) {
	var polls atomic.Int32
	backend := &mockBackend{
		ListFunc: func(context.Context, api.ListOptions) (*api.DocumentList, error) {
			if polls.Add(1) == 1 {
				return &api.DocumentList{Documents: []api.Document{{ID: "a", Status: api.StatusQueued}}}, nil
			}
			return nil, errors.New("offline")
		},
	}
	store, err := Open(context.Background(), backend)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	store.Watch(ctx, 5*time.Millisecond)

	assert.Greater(t, polls.Load(), int32(2))
	assert.Empty(t, store.Err())
	assert.True(t, store.HasPending())
}

func TestWatch_StalePollDoesNotOverwriteDelete(t *testing.T) {
	var calls atomic.Int32
	pollStarted := make(chan struct{})
	release := make(chan struct{})
	backend := &mockBackend{
		ListFunc: func(context.Context, api.ListOptions) (*api.DocumentList, error) {
			switch calls.Add(1) {
			case 1:
				return &api.DocumentList{Documents: []api.Document{{ID: "a", Status: api.StatusRunning}}, Total: 1}, nil
			case 2:
				// poll fetched before the delete and answers after it
				close(pollStarted)
				<-release
				return &api.DocumentList{Documents: []api.Document{{ID: "a", Status: api.StatusRunning}}, Total: 1}, nil
			default:
				return &api.DocumentList{Documents: []api.Document{}}, nil
			}
		},
	}
	store, err := Open(context.Background(), backend)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Watch(ctx, time.Millisecond)
		close(done)
	}()

	select {
	case <-pollStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("Watch never polled")
	}

	require.NoError(t, store.DeleteDocument(context.Background(), "a"))
	assert.Empty(t, store.Documents())

	close(release)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Watch did not return after cancel")
	}

	assert.Empty(t, store.Documents())
	assert.Equal(t, 0, store.Snapshot().Total)
}

func TestRefresh_AppliesSequentialReloads(t *testing.T) {
	var calls atomic.Int32
	backend := &mockBackend{
		ListFunc: func(context.Context, api.ListOptions) (*api.DocumentList, error) {
			if calls.Add(1) == 1 {
				return &api.DocumentList{Documents: []api.Document{{ID: "a"}}, Total: 1}, nil
			}
			return &api.DocumentList{Documents: []api.Document{{ID: "a"}, {ID: "b"}}, Total: 2}, nil
		},
	}
	store := NewStore(backend)

	require.NoError(t, store.Refresh(context.Background()))
	require.NoError(t, store.Refresh(context.Background()))

	assert.Len(t, store.Documents(), 2)
}
