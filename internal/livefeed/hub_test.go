package livefeed

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/collectivat/mic2etherpad/internal/dictation"
	"github.com/collectivat/mic2etherpad/internal/protocol"
	"github.com/gorilla/websocket"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(hub)
	t.Cleanup(srv.Close)
	t.Cleanup(hub.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub("session-1", newLogger())
	conn := dial(t, hub)

	ev := dictation.Event{Kind: dictation.EventParagraph, PadID: "PAD", Text: "hola", Punctuated: "Hola.", PunctuationOK: true}
	if err := hub.Observe(context.Background(), ev); err != nil {
		t.Fatalf("observe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if msg.Subject != protocol.SubjectParagraph {
		t.Fatalf("unexpected subject %q", msg.Subject)
	}
	var p protocol.Paragraph
	if err := json.Unmarshal(msg.Event, &p); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if p.SessionID != "session-1" || p.Punctuated != "Hola." || p.PadID != "PAD" {
		t.Fatalf("unexpected paragraph %+v", p)
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	hub := NewHub("session-1", newLogger())
	conn := dial(t, hub)

	hub.Close()
	if hub.Clients() != 0 {
		t.Fatalf("expected no clients after close, got %d", hub.Clients())
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Fatalf("expected normal close, got %v", err)
	}
	if err := hub.Observe(context.Background(), dictation.Event{Kind: dictation.EventSegment, Text: "late"}); err != nil {
		t.Fatalf("observe after close: %v", err)
	}
}
