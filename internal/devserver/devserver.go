// Package devserver implements a recompile-broadcast server: clients
// connect over a websocket and receive every compilation result passed
// to Broadcast. The package does not watch files itself; the caller
// decides when to recompile and broadcast.
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

func marshalResult(r CompileResult) ([]byte, error) {
	return json.Marshal(r)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// CompileResult is the message broadcast to every connected client after
// a recompilation.
type CompileResult struct {
	OK     bool   `json:"ok"`
	Source string `json:"source,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Server fans a compile result out to every connected client.
type Server struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
}

// New creates an empty dev server.
func New() *Server {
	return &Server{clients: make(map[*websocket.Conn]bool)}
}

// HandleWS upgrades an incoming HTTP request to a websocket connection
// and registers it for broadcast, removing it on disconnect.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends result to every connected client concurrently and
// returns the first write error, if any. A connection whose write fails
// stays registered until HandleWS's read loop sees its socket close.
func (s *Server) Broadcast(ctx context.Context, result CompileResult) error {
	payload, err := marshalResult(result)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for c := range s.clients {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	g, _ := errgroup.WithContext(ctx)
	for _, c := range conns {
		c := c
		g.Go(func() error {
			return c.WriteMessage(websocket.TextMessage, payload)
		})
	}
	return g.Wait()
}

// ClientCount reports how many clients are currently connected, for
// CLI diagnostics.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
