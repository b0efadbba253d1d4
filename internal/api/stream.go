package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"secondbrain/internal/logger"
)

// dataPrefix marks a line carrying a JSON event payload. The single space
// after the colon is optional, as in SSE.
const dataPrefix = "data:"

// StreamCallback receives each decoded stream event in arrival order
type StreamCallback func(StreamEvent)

// ChatStream sends a message and streams the reply, invoking onEvent once per
// event. It returns when the body ends, the transport fails, or ctx is done.
// A malformed frame is skipped and never fails the call.
func (c *Client) ChatStream(ctx context.Context, req ChatRequest, onEvent StreamCallback) error {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/stream", bytes.NewReader(jsonData), "application/json")
	if err != nil {
		return err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	logger.Debug("POST %s (stream)", httpReq.URL.Path)

	// Execute request with the streaming client (no overall timeout by default)
	resp, err := c.streamingClient.Do(httpReq)
	if err != nil {
		return wrapTransport("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(resp)
	}

	dec := NewStreamDecoder(onEvent)
	if _, err := io.Copy(dec, resp.Body); err != nil {
		return wrapTransport("failed to read stream", err)
	}
	dec.Close()

	logger.Debug("stream finished: %d events, %d skipped", dec.Events(), dec.Skipped())
	return nil
}

// StreamDecoder turns an arbitrarily chunked SSE body into events. Bytes are
// fed through Write; every complete line is handled exactly once and a
// trailing partial line is held until more bytes arrive or Close is called.
type StreamDecoder struct {
	pending []byte
	onEvent StreamCallback
	events  int
	skipped int
}

// NewStreamDecoder creates a decoder that delivers events to onEvent
func NewStreamDecoder(onEvent StreamCallback) *StreamDecoder {
	return &StreamDecoder{onEvent: onEvent}
}

// Write implements io.Writer. It never fails.
func (d *StreamDecoder) Write(p []byte) (int, error) {
	d.pending = append(d.pending, p...)

	start := 0
	for {
		i := bytes.IndexByte(d.pending[start:], '\n')
		if i < 0 {
			break
		}
		d.handleLine(d.pending[start : start+i])
		start += i + 1
	}

	if start > 0 {
		d.pending = append(d.pending[:0], d.pending[start:]...)
	}
	return len(p), nil
}

// Close handles a final line left without a trailing newline
func (d *StreamDecoder) Close() {
	if len(d.pending) > 0 {
		d.handleLine(d.pending)
	}
	d.pending = nil
}

// Events returns how many events were delivered
func (d *StreamDecoder) Events() int {
	return d.events
}

// Skipped returns how many data lines failed to parse
func (d *StreamDecoder) Skipped() int {
	return d.skipped
}

// handleLine parses one complete line. Blank lines, comments and other SSE
// fields are ignored.
func (d *StreamDecoder) handleLine(line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, []byte(dataPrefix)) {
		return
	}
	payload := bytes.TrimPrefix(line[len(dataPrefix):], []byte(" "))

	var event StreamEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		// Skip malformed frames
		d.skipped++
		logger.Debug("skipping malformed stream frame: %v", err)
		return
	}

	d.events++
	if d.onEvent != nil {
		d.onEvent(event)
	}
}
