package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(events *[]StreamEvent) StreamCallback {
	return func(ev StreamEvent) {
		*events = append(*events, ev)
	}
}

func TestStreamDecoder_LineSplitAcrossWrites(t *testing.T) {
	var events []StreamEvent
	dec := NewStreamDecoder(collect(&events))

	_, _ = dec.Write([]byte(`data: {"type":"tok`))
	_, _ = dec.Write([]byte(`en","token":"Hel`))
	assert.Empty(t, events)

	_, _ = dec.Write([]byte("lo\"}\n"))
	dec.Close()

	require.Len(t, events, 1)
	assert.Equal(t, EventToken, events[0].Type)
	assert.Equal(t, "Hello", events[0].Token)
}

func TestStreamDecoder_ByteAtATime(t *testing.T) {
	body := "data: {\"type\":\"start\",\"conversation_id\":\"c1\"}\n\n" +
		"data: {\"type\":\"token\",\"token\":\"a\"}\n\n" +
		"data: {\"type\":\"done\",\"message_id\":\"m1\"}\n\n"

	var events []StreamEvent
	dec := NewStreamDecoder(collect(&events))
	for i := 0; i < len(body); i++ {
		_, _ = dec.Write([]byte{body[i]})
	}
	dec.Close()

	require.Len(t, events, 3)
	assert.Equal(t, "c1", events[0].ConversationID)
	assert.Equal(t, "a", events[1].Token)
	assert.Equal(t, "m1", events[2].MessageID)
}

func TestStreamDecoder_SeveralLinesInOneWrite(t *testing.T) {
	var events []StreamEvent
	dec := NewStreamDecoder(collect(&events))

	_, _ = dec.Write([]byte("data: {\"type\":\"token\",\"token\":\"1\"}\ndata: {\"type\":\"token\",\"token\":\"2\"}\ndata: {\"type\":\"tok"))
	require.Len(t, events, 2)

	_, _ = dec.Write([]byte("en\",\"token\":\"3\"}\n"))
	require.Len(t, events, 3)
	assert.Equal(t, "3", events[2].Token)
}

func TestStreamDecoder_SkipsMalformedAndForeignLines(t *testing.T) {
	body := strings.Join([]string{
		": keepalive",
		"",
		"event: message",
		"data: not-json",
		`data: {"type":"token","token":"ok"}`,
		"data:",
		`data:{"type":"token","token":"tight"}`,
		"",
	}, "\n")

	var events []StreamEvent
	dec := NewStreamDecoder(collect(&events))
	_, _ = dec.Write([]byte(body))
	dec.Close()

	require.Len(t, events, 2)
	assert.Equal(t, "ok", events[0].Token)
	assert.Equal(t, "tight", events[1].Token)
	assert.Equal(t, 2, dec.Events())
	assert.Equal(t, 2, dec.Skipped())
}

func TestStreamDecoder_CRLF(t *testing.T) {
	var events []StreamEvent
	dec := NewStreamDecoder(collect(&events))

	_, _ = dec.Write([]byte("data: {\"type\":\"token\",\"token\":\"x\"}\r\n\r\n"))

	require.Len(t, events, 1)
	assert.Equal(t, "x", events[0].Token)
}

func TestStreamDecoder_CloseFlushesTrailingLine(t *testing.T) {
	var events []StreamEvent
	dec := NewStreamDecoder(collect(&events))

	_, _ = dec.Write([]byte(`data: {"type":"done","message_id":"m9"}`))
	assert.Empty(t, events)

	dec.Close()
	require.Len(t, events, 1)
	assert.Equal(t, "m9", events[0].MessageID)

	// A second Close must not redeliver
	dec.Close()
	assert.Len(t, events, 1)
}

func TestStreamDecoder_Citations(t *testing.T) {
	var events []StreamEvent
	dec := NewStreamDecoder(collect(&events))

	_, _ = dec.Write([]byte(`data: {"type":"citations","citations":[{"chunk_id":"k1","document_id":"d1","title":"Notes","source_uri":null,"source_type":"pdf","page_range":"p. 2-3","time_range":null,"text_snippet":"snip"}]}` + "\n"))

	require.Len(t, events, 1)
	require.Len(t, events[0].Citations, 1)
	c := events[0].Citations[0]
	assert.Equal(t, "k1", c.ChunkID)
	assert.Equal(t, SourcePDF, c.SourceType)
	assert.Equal(t, "p. 2-3", c.PageRange)
	assert.Empty(t, c.SourceURI)
}

// chunkedWriter writes body in fixed-size pieces, flushing after each
func chunkedWriter(w http.ResponseWriter, body string, size int) {
	flusher, _ := w.(http.Flusher)
	for len(body) > 0 {
		n := size
		if n > len(body) {
			n = len(body)
		}
		fmt.Fprint(w, body[:n])
		body = body[n:]
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func TestClient_ChatStream(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/stream", r.URL.Path)
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))

		var req ChatRequest
		require.NoError(t, decodeBody(r, &req))
		assert.Equal(t, "hi", req.Message)
		assert.Equal(t, "Europe/Berlin", req.Timezone)
		assert.Empty(t, req.ConversationID)

		w.Header().Set("Content-Type", "text/event-stream")
		chunkedWriter(w, "data: {\"type\":\"start\",\"conversation_id\":\"c1\"}\n\n"+
			"data: {\"type\":\"citations\",\"citations\":[]}\n\n"+
			"data: not-json\n\n"+
			"data: {\"type\":\"token\",\"token\":\"Hel\"}\n\n"+
			"data: {\"type\":\"token\",\"token\":\"lo\"}\n\n"+
			"data: {\"type\":\"done\",\"message_id\":\"m1\"}\n\n", 7)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)

	var events []StreamEvent
	err := client.ChatStream(context.Background(), ChatRequest{Message: "hi", Timezone: "Europe/Berlin"}, collect(&events))
	require.NoError(t, err)

	require.Len(t, events, 5)
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	assert.Equal(t, []EventType{EventStart, EventCitations, EventToken, EventToken, EventDone}, types)
}

func TestClient_ChatStream_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"detail":"Conversation not found"}`)
	}))
	defer server.Close()

	client := NewClient(server.URL, 0)

	called := false
	err := client.ChatStream(context.Background(), ChatRequest{Message: "hi", ConversationID: "gone"}, func(StreamEvent) {
		called = true
	})

	require.Error(t, err)
	assert.False(t, called)
	assert.True(t, IsNotFound(err))
	assert.Equal(t, "Conversation not found", err.Error())
}

func TestClient_ChatStream_Cancelled(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		chunkedWriter(w, "data: {\"type\":\"token\",\"token\":\"a\"}\n\n", 64)
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(server.URL, 0)
	ctx, cancel := context.WithCancel(context.Background())

	err := client.ChatStream(ctx, ChatRequest{Message: "hi"}, func(ev StreamEvent) {
		if ev.Type == EventToken {
			cancel()
		}
	})

	require.Error(t, err)
	assert.True(t, errors.Is(ctx.Err(), context.Canceled))
}
