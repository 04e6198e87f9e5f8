// Package ipcserver accepts local clients on a Unix domain socket and
// bridges line-delimited JSON requests to the daemon's Event Loop
// (spec.md §4.6), generalized in design from the corpus' goroutine-per-
// connection, graceful-drain Unix socket server
// (other_examples/nabbar-golib socket/unix package documentation) onto
// Undertone's request/reply/event wire protocol.
package ipcserver

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/undertone-audio/undertone/internal/ipc"
)

// IncomingRequest is one parsed client request, handed to whatever
// drains Requests() (the Event Loop) along with a channel to deliver the
// encoded reply on, in the order the client's requests are processed by
// this server — not necessarily the order the Event Loop finishes them.
type IncomingRequest struct {
	ClientID  uint64
	RequestID uint64
	Req       ipc.Request
	Reply     chan<- []byte
}

// Server accepts IPC connections on a Unix domain socket.
type Server struct {
	socketPath string
	logger     *slog.Logger

	listener net.Listener
	requests chan IncomingRequest

	mu      sync.RWMutex
	clients map[uint64]*client
	nextID  atomic.Uint64
}

// New returns a Server bound to socketPath once Start is called.
func New(socketPath string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		socketPath: socketPath,
		logger:     logger,
		requests:   make(chan IncomingRequest, 256),
		clients:    make(map[uint64]*client),
	}
}

// Requests returns the channel of parsed client requests; drain it to
// service clients.
func (s *Server) Requests() <-chan IncomingRequest { return s.requests }

// Start removes any stale socket file, listens, and begins accepting
// connections in a background goroutine. It returns once the listener
// is bound.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}
	if err := removeStaleSocket(s.socketPath); err != nil {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.socketPath, err)
	}
	if err := os.Chmod(s.socketPath, 0o660); err != nil {
		s.logger.Warn("failed to set socket permissions", "path", s.socketPath, "err", err)
	}
	s.listener = ln

	go s.acceptLoop(ctx)
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()
	return nil
}

// removeStaleSocket deletes a leftover socket file from a prior,
// uncleanly terminated daemon instance so Listen can bind the path.
func removeStaleSocket(path string) error {
	_, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.Remove(path)
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			s.logger.Warn("accept failed", "err", err)
			continue
		}
		c := s.newClient(conn)
		go s.serve(c)
	}
}

func (s *Server) newClient(conn net.Conn) *client {
	id := s.nextID.Add(1)
	c := &client{
		id:         id,
		conn:       conn,
		replyQueue: make(chan chan []byte, 256),
		events:     make(chan []byte, 256),
	}
	s.mu.Lock()
	s.clients[id] = c
	s.mu.Unlock()
	return c
}

func (s *Server) removeClient(id uint64) {
	s.mu.Lock()
	delete(s.clients, id)
	s.mu.Unlock()
}

func (s *Server) serve(c *client) {
	defer s.removeClient(c.id)
	go c.writeReplies()
	go c.writeEvents()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.handleLine(s, append([]byte(nil), line...))
	}
	c.closeReplyQueue()
}

// handleLine parses one request line and either answers it locally
// (Subscribe/Unsubscribe, which only touch this client's registration)
// or forwards it to the Event Loop via s.requests. Either way a reply
// channel is pushed onto the client's ordering queue first, so replies
// are written to the socket in arrival order regardless of how long the
// Event Loop takes to answer any individual request (spec.md §5).
func (c *client) handleLine(s *Server, line []byte) {
	reqID, req, err := ipc.ParseRequest(line)

	rc := make(chan []byte, 1)
	c.replyQueue <- rc

	if err != nil {
		s.logger.Warn("skipping invalid IPC request line", "client", c.id, "err", err)
		payload, _ := ipc.EncodeError(reqID, ipc.CodeInvalidArgument, err.Error())
		rc <- payload
		return
	}

	switch r := req.(type) {
	case ipc.SubscribeRequest:
		c.subscribe(r.Events)
		payload, _ := ipc.EncodeResult(reqID, map[string]any{"success": true})
		rc <- payload
	case ipc.UnsubscribeRequest:
		c.unsubscribe(r.Events)
		payload, _ := ipc.EncodeResult(reqID, map[string]any{"success": true})
		rc <- payload
	default:
		s.requests <- IncomingRequest{ClientID: c.id, RequestID: reqID, Req: req, Reply: rc}
	}
}

// Broadcast sends an event to every client whose subscription set is
// empty (receive-all) or contains eventType.
func (s *Server) Broadcast(eventType string, data any) {
	payload, err := ipc.EncodeEvent(eventType, data)
	if err != nil {
		s.logger.Error("failed to encode event", "event", eventType, "err", err)
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.clients {
		if c.subscribed(eventType) {
			c.enqueueEvent(payload)
		}
	}
}

// ClientCount reports the number of currently connected clients, for
// diagnostics.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}
