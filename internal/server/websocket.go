package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"

	"mesh-mac-simulation/internal/commands"
	"mesh-mac-simulation/internal/eventBus"
)

// Define a WebSocket upgrader.
var upgrader = websocket.Upgrader{
	// Allow any origin for simplicity. Adjust for production use.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeWait = 5 * time.Second
	// MaxConns bounds concurrent HTTP connections, websockets included.
	MaxConns = 64
)

// Server exposes the event stream over a websocket and accepts commands
// for the running simulation.
type Server struct {
	bus     *eventBus.EventBus
	inj     commands.Injector
	metrics commands.Snapshotter
	log     *slog.Logger
}

func New(bus *eventBus.EventBus, inj commands.Injector, metrics commands.Snapshotter, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{bus: bus, inj: inj, metrics: metrics, log: log.With("component", "server")}
}

// Handler routes /ws, /report and /nodeAPI/send.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)
	mux.Handle("/report", commands.ReportHandler(s.metrics))
	mux.Handle("/nodeAPI/send", commands.SendFrameHandler(s.inj))
	return mux
}

// wsHandler upgrades the connection to WebSocket and pushes events from the EventBus.
func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade error", "err", err)
		return
	}
	eventCh := s.bus.Subscribe()
	defer s.bus.Unsubscribe(eventCh)
	s.log.Info("websocket client connected", "remote", r.RemoteAddr, "subscribers", s.bus.Subscribers())

	// The client never sends anything we need; reading only notices it going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
	defer func() {
		conn.Close()
		<-gone
	}()

	for {
		select {
		case event, ok := <-eventCh:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "simulation finished"),
					time.Now().Add(writeWait))
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(event); err != nil {
				s.log.Debug("write error", "err", err)
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.serve(ctx, netutil.LimitListener(ln, MaxConns))
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		// websocket handlers outlive Shutdown unless their context ends with ctx
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()
	s.log.Info("server started", "addr", ln.Addr().String())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := srv.Shutdown(shutCtx)
	if serr := <-errc; serr != nil && !errors.Is(serr, http.ErrServerClosed) {
		return serr
	}
	return err
}
