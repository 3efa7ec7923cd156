package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBroadcastReachesConnectedClient(t *testing.T) {
	srv := New()
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing dev server: %v", err)
	}
	defer conn.Close()

	// HandleWS registers the client before entering its read loop; give
	// it a moment to land in the client set before broadcasting.
	deadline := time.Now().Add(time.Second)
	for srv.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if srv.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", srv.ClientCount())
	}

	want := CompileResult{OK: true, Source: "int main() {}"}
	if err := srv.Broadcast(context.Background(), want); err != nil {
		t.Fatalf("broadcast: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast message: %v", err)
	}
	var got CompileResult
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("unmarshaling broadcast message: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestClientCountDropsOnDisconnect(t *testing.T) {
	srv := New()
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWS))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dialing dev server: %v", err)
	}
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for srv.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if srv.ClientCount() != 0 {
		t.Fatalf("expected client count to drop to 0 after disconnect, got %d", srv.ClientCount())
	}
}
