package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/gpxity/gpxity/internal/backend"
	"github.com/gpxity/gpxity/internal/observability"
	"github.com/gpxity/gpxity/internal/watch"
)

func startServer(t *testing.T) *Server {
	t.Helper()
	server := NewServer(&Config{
		Addr:   "127.0.0.1:0",
		Logger: log.New(io.Discard, "", 0),
	})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { server.Stop() })
	return server
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func waitClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	return msg
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Addr: "127.0.0.1:0", Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if strings.HasSuffix(server.Addr(), ":0") {
		t.Errorf("Addr() = %s, want the bound port", server.Addr())
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestStopWithoutStart(t *testing.T) {
	server := NewServer(&Config{Logger: log.New(io.Discard, "", 0)})
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestHandler_Broadcasts(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	first := dial(t, ctx, server)
	second := dial(t, ctx, server)
	waitClients(t, server, 2)

	h := NewHandler(server, nil)
	h.ActivityChanged(watch.FileEvent{ID: "ride", Op: watch.OpCreate})

	for _, conn := range []*websocket.Conn{first, second} {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeActivityUpdate {
			t.Fatalf("Type = %s, want %s", msg.Type, MessageTypeActivityUpdate)
		}
		var data ActivityUpdateData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("Unmarshal() failed: %v", err)
		}
		if data.ID != "ride" || data.Action != "create" {
			t.Errorf("data = %+v", data)
		}
	}

	h.SyncCompleted(backend.SyncReport{Added: 2, Removed: 1}, errors.New("one failed"))
	msg := readMessage(t, ctx, first)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Type = %s, want %s", msg.Type, MessageTypeSyncComplete)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if data.Added != 2 || data.Removed != 1 || data.Error != "one failed" {
		t.Errorf("data = %+v", data)
	}
}

func TestClientDisconnect(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws://"+server.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	waitClients(t, server, 1)
	conn.Close(websocket.StatusNormalClosure, "")
	waitClients(t, server, 0)
}

func TestHealthAndMetrics(t *testing.T) {
	server := startServer(t)
	observability.RecordWatchEvent("create")

	resp, err := http.Get("http://" + server.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	var health map[string]any
	err = json.NewDecoder(resp.Body).Decode(&health)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if health["status"] != "ok" {
		t.Errorf("status = %v", health["status"])
	}

	resp, err = http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics failed: %v", err)
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("ReadAll() failed: %v", err)
	}
	if !strings.Contains(string(body), "gpxity_watch_events_total") {
		t.Error("/metrics does not expose gpxity collectors")
	}
}

func TestLatestSyncReplayedOnConnect(t *testing.T) {
	server := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h := NewHandler(server, nil)
	h.ActivityChanged(watch.FileEvent{ID: "ride", Op: watch.OpModify})
	h.SyncCompleted(backend.SyncReport{Added: 1}, nil)
	h.SyncCompleted(backend.SyncReport{Unchanged: 3}, nil)

	conn := dial(t, ctx, server)
	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSyncComplete {
		t.Fatalf("Type = %s, want %s", msg.Type, MessageTypeSyncComplete)
	}
	var data SyncCompleteData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if data.Unchanged != 3 || data.Added != 0 {
		t.Errorf("replayed %+v, want the latest sync", data)
	}

	server.Broadcast(Message{Type: MessageTypeActivityUpdate})
	if msg := readMessage(t, ctx, conn); msg.Timestamp.IsZero() {
		t.Error("Broadcast() did not set the timestamp")
	}
}
