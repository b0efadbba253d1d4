package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"secondbrain/internal/logger"
)

// Client handles communication with the knowledge-base backend
type Client struct {
	baseURL         string
	userEmail       string
	httpClient      *http.Client
	streamingClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithUserEmail sets the X-User-Email identity header sent on every request
func WithUserEmail(email string) Option {
	return func(c *Client) {
		c.userEmail = email
	}
}

// WithStreamTimeout bounds the whole streaming call. Zero means no limit.
func WithStreamTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.streamingClient.Timeout = timeout
	}
}

// WithHTTPClient replaces both underlying HTTP clients
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
		c.streamingClient = hc
	}
}

// NewClient creates a new backend client
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		// Streams stay open for as long as the model generates
		streamingClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the server root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// newRequest builds a request against the base URL with the common headers
func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.userEmail != "" {
		req.Header.Set("X-User-Email", c.userEmail)
	}
	return req, nil
}

// do executes req and decodes a JSON body into out when out is non-nil
func (c *Client) do(req *http.Request, out any) error {
	logger.Debug("%s %s", req.Method, req.URL.Path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return wrapTransport("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := newError(resp)
		logger.Debug("%s %s -> %d: %s", req.Method, req.URL.Path, resp.StatusCode, apiErr.Detail)
		return apiErr
	}

	if out == nil {
		// Drain so the connection can be reused
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// doJSON sends in as a JSON body (when non-nil) and decodes the reply into out
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}

	req, err := c.newRequest(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

// ListDocuments returns the caller's documents, newest first
func (c *Client) ListDocuments(ctx context.Context, opts ListOptions) (*DocumentList, error) {
	params := url.Values{}
	if opts.SourceType != "" {
		params.Set("source_type", string(opts.SourceType))
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	path := "/v1/documents"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}

	var list DocumentList
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	if list.Documents == nil {
		list.Documents = []Document{}
	}
	return &list, nil
}

// GetDocument fetches one document
func (c *Client) GetDocument(ctx context.Context, id string) (*Document, error) {
	var doc Document
	if err := c.doJSON(ctx, http.MethodGet, "/v1/documents/"+url.PathEscape(id), nil, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetDocumentChunks lists a document's chunks in order
func (c *Client) GetDocumentChunks(ctx context.Context, id string) ([]Chunk, error) {
	var chunks []Chunk
	if err := c.doJSON(ctx, http.MethodGet, "/v1/documents/"+url.PathEscape(id)+"/chunks", nil, &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// DeleteDocument removes a document and everything derived from it
func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/documents/"+url.PathEscape(id), nil, nil)
}

// IngestText submits raw text for ingestion
func (c *Client) IngestText(ctx context.Context, req IngestTextRequest) (*Document, error) {
	var doc Document
	if err := c.doJSON(ctx, http.MethodPost, "/v1/ingest/text", req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// IngestURL asks the backend to fetch and ingest a web page
func (c *Client) IngestURL(ctx context.Context, rawURL string) (*Document, error) {
	var doc Document
	if err := c.doJSON(ctx, http.MethodPost, "/v1/ingest/url", IngestURLRequest{URL: rawURL}, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// IngestFile uploads content as a multipart form with the file and its source type
func (c *Client) IngestFile(ctx context.Context, upload FileUpload, content io.Reader) (*Document, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)

	part, err := form.CreateFormFile("file", upload.Filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", upload.Filename, err)
	}
	if err := form.WriteField("source_type", string(upload.SourceType)); err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}
	if upload.CreatedAt != "" {
		if err := form.WriteField("created_at", upload.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to write form: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to write form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/v1/ingest/file", &buf, form.FormDataContentType())
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := c.do(req, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// GetJob reports the progress of an ingestion job
func (c *Client) GetJob(ctx context.Context, id string) (*IngestionJob, error) {
	var job IngestionJob
	if err := c.doJSON(ctx, http.MethodGet, "/v1/ingest/jobs/"+url.PathEscape(id), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// Chat sends a message and waits for the complete answer
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/chat", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListConversations returns every conversation with its messages
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/v1/chat/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// GetConversation fetches one conversation with all of its messages
func (c *Client) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	if err := c.doJSON(ctx, http.MethodGet, "/v1/chat/conversations/"+url.PathEscape(id), nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// DeleteConversation removes a conversation
func (c *Client) DeleteConversation(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/chat/conversations/"+url.PathEscape(id), nil, nil)
}

// HealthCheck verifies that the backend is reachable
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("backend is unreachable at %s: %w", c.baseURL, err)
	}
	return nil
}
