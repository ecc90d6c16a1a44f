package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/amarbel-llc/go-lib-mcp/jsonrpc"
)

// WebSocket implements Transport over a single gorilla/websocket
// connection: one JSON-RPC message per frame, in either direction.
type WebSocket struct {
	conn   *websocket.Conn
	wMu    sync.Mutex
	rMu    sync.Mutex
	closed bool
	cMu    sync.Mutex
}

func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

func (t *WebSocket) Read() (*jsonrpc.Message, error) {
	t.rMu.Lock()
	defer t.rMu.Unlock()

	_, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	var msg jsonrpc.Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decode websocket frame: %w", err)
	}
	return &msg, nil
}

func (t *WebSocket) Write(msg *jsonrpc.Message) error {
	t.wMu.Lock()
	defer t.wMu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, data)
}

func (t *WebSocket) Close() error {
	t.cMu.Lock()
	defer t.cMu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// WebSocketServer listens for a single inbound WebSocket connection and
// exposes it as a Transport once a client has connected. Mirrors
// StreamableHTTP's Start/accept shape: Start blocks the caller until ctx is
// cancelled; Accept blocks until a client has connected.
type WebSocketServer struct {
	addr     string
	server   *http.Server
	upgrader websocket.Upgrader

	mu      sync.Mutex
	conn    chan *WebSocket
	started bool
}

func NewWebSocketServer(addr string) *WebSocketServer {
	return &WebSocketServer{
		addr: addr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conn: make(chan *WebSocket, 1),
	}
}

func (s *WebSocketServer) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)

	s.server = &http.Server{Addr: s.addr, Handler: mux}

	go func() {
		<-ctx.Done()
		s.server.Shutdown(context.Background())
	}()

	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *WebSocketServer) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.conn <- NewWebSocket(conn)
}

// Accept blocks until the first client connects, or ctx is cancelled.
func (s *WebSocketServer) Accept(ctx context.Context) (*WebSocket, error) {
	select {
	case t := <-s.conn:
		return t, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DialWebSocket dials a remote WebSocket MCP endpoint and returns a
// Transport over the resulting connection.
func DialWebSocket(ctx context.Context, url string) (*WebSocket, error) {
	dialer := websocket.Dialer{}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocket(conn), nil
}

var _ io.Closer = (*WebSocket)(nil)
