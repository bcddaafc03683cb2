// Package server exposes a session to clients as a JSON protocol over
// WebSocket.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"tabletop-tracker/internal/logger"
	"tabletop-tracker/internal/session"
)

const instrumentationName = "tabletop-tracker/internal/server"

const (
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

type Server struct {
	address  string
	session  *session.Session
	logger   logger.Logger
	upgrader websocket.Upgrader
	actions  map[string]actionFunc

	mu      sync.Mutex
	clients map[*client]struct{}
	http    *http.Server

	connections metric.Int64UpDownCounter
	messages    metric.Int64Counter
}

func New(address string, s *session.Session, log logger.Logger) (*Server, error) {
	srv := &Server{
		address: address,
		session: s,
		logger:  log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // clients are served from other origins
			},
		},
		clients: make(map[*client]struct{}),
	}
	srv.actions = srv.routes()

	m := otel.Meter(instrumentationName)
	var err error
	srv.connections, err = m.Int64UpDownCounter(
		"tracker.server.connections",
		metric.WithDescription("Open WebSocket connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating connections counter: %w", err)
	}
	srv.messages, err = m.Int64Counter(
		"tracker.server.messages",
		metric.WithDescription("Messages sent to clients by action and result"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating messages counter: %w", err)
	}

	s.SetNotifier(srv)
	return srv, nil
}

// Handler routes /ws to the protocol and /healthz to a liveness probe.
func (srv *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/ws", srv.handleWebSocket).Methods("GET")
	router.HandleFunc("/healthz", srv.handleHealth).Methods("GET")
	return router
}

// ListenAndServe serves until ctx is done or Shutdown is called.
func (srv *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", srv.address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", srv.address, err)
	}
	return srv.Serve(ctx, ln)
}

func (srv *Server) Serve(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv.mu.Lock()
	srv.http = hs
	srv.mu.Unlock()

	go func() {
		<-ctx.Done()
		srv.Shutdown(context.Background())
	}()

	srv.logger.Info("Server", "listening", map[string]interface{}{
		"address": ln.Addr().String(),
	})
	if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and closes every client.
func (srv *Server) Shutdown(ctx context.Context) error {
	srv.mu.Lock()
	hs := srv.http
	clients := make([]*client, 0, len(srv.clients))
	for c := range srv.clients {
		clients = append(clients, c)
	}
	srv.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	if hs == nil {
		return nil
	}
	return hs.Shutdown(ctx)
}

func (srv *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"reporters": len(srv.session.ReporterIDs()),
		"board":     srv.boardStatus(),
	})
}

func (srv *Server) boardStatus() string {
	if snapshot := srv.session.Snapshot(); snapshot != nil {
		return snapshot.Status().String()
	}
	return "UNKNOWN"
}

func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Warning("Server", "websocket upgrade failed", map[string]interface{}{
			"error": err.Error(),
		})
		return
	}

	c := newClient(conn, srv.logger)
	srv.register(c)
	go c.writePump()
	go func() {
		defer srv.unregister(c)
		srv.readPump(c)
	}()
}

func (srv *Server) register(c *client) {
	srv.mu.Lock()
	srv.clients[c] = struct{}{}
	n := len(srv.clients)
	srv.mu.Unlock()

	srv.connections.Add(context.Background(), 1)
	srv.logger.Info("Server", "client connected", map[string]interface{}{
		"remote":  c.remote,
		"clients": n,
	})
}

// unregister drops a closed client and stops every reporter.
func (srv *Server) unregister(c *client) {
	srv.mu.Lock()
	_, ok := srv.clients[c]
	delete(srv.clients, c)
	srv.mu.Unlock()
	if !ok {
		return
	}

	c.close()
	srv.connections.Add(context.Background(), -1)
	srv.session.StopAllReporters()
	srv.logger.Info("Server", "client disconnected", map[string]interface{}{
		"remote": c.remote,
	})
}

func (srv *Server) readPump(c *client) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil || req.Action == "" {
			srv.logger.Warning("Server", "malformed message", map[string]interface{}{
				"remote": c.remote,
				"size":   len(data),
			})
			continue
		}
		if req.Payload == nil {
			req.Payload = map[string]interface{}{}
		}

		srv.logger.Debug("Server", "message received", map[string]interface{}{
			"action": req.Action,
		})
		srv.send(c, srv.handle(c, req))
	}
}

// send queues resp for c.
func (srv *Server) send(c *client, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		srv.logger.Error("Server", err, map[string]interface{}{
			"message": "encoding response",
			"action":  resp.Action,
		})
		return
	}
	srv.messages.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("action", resp.Action),
		attribute.String("result", resp.Result),
	))
	c.send(data)
}

// BoardChanged broadcasts board notifications to every client.
func (srv *Server) BoardChanged(e session.BoardEvent) {
	resp := Response{
		Result:    ResultBoardRecognized,
		Action:    actionRecognizeBoard,
		Payload:   payload{},
		RequestID: randomRequestID(),
	}
	if !e.Recognized {
		resp.Result = ResultBoardNotRecognized
		resp.Payload = payload{"unrecognizedCorners": nonNil(e.MissingCorners)}
	}

	srv.mu.Lock()
	clients := make([]*client, 0, len(srv.clients))
	for c := range srv.clients {
		clients = append(clients, c)
	}
	srv.mu.Unlock()

	for _, c := range clients {
		srv.send(c, resp)
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// client is one WebSocket connection with a single writer goroutine.
type client struct {
	conn     *websocket.Conn
	remote   string
	logger   logger.Logger
	outbound chan []byte
	done     chan struct{}
	once     sync.Once
}

func newClient(conn *websocket.Conn, log logger.Logger) *client {
	return &client{
		conn:     conn,
		remote:   conn.RemoteAddr().String(),
		logger:   log,
		outbound: make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}
}

// send blocks until the message is queued or the client is closed.
func (c *client) send(data []byte) {
	select {
	case c.outbound <- data:
	case <-c.done:
	}
}

func (c *client) writePump() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.outbound:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warning("Server", "write failed", map[string]interface{}{
					"remote": c.remote,
					"error":  err.Error(),
				})
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
