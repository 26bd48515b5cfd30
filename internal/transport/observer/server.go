// Package observer streams world events to read-only WebSocket spectators.
package observer

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"shelltown.ai/internal/logging"
	"shelltown.ai/internal/sim/world"
)

const (
	writeWait = 5 * time.Second
	readWait  = 60 * time.Second
	pingEvery = 25 * time.Second
)

type Options struct {
	Logger *zap.Logger
	// LoopbackOnly rejects non-loopback clients (admin dashboards behind a proxy).
	LoopbackOnly bool
}

type Server struct {
	world *world.World
	log   *zap.Logger
	opts  Options

	upgrader websocket.Upgrader
	active   atomic.Int64
}

func NewServer(w *world.World, opts Options) *Server {
	opts.Logger = logging.OrNop(opts.Logger)
	return &Server{
		world: w,
		log:   opts.Logger,
		opts:  opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // spectator pages may be served elsewhere
		},
	}
}

// Active is the number of connected observers.
func (s *Server) Active() int64 { return s.active.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if s.opts.LoopbackOnly && !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), writeWait)
		sub, err := s.world.Subscribe(ctx)
		cancel()
		if err != nil {
			http.Error(rw, "world unavailable", http.StatusServiceUnavailable)
			return
		}
		defer s.world.Unsubscribe(sub)

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		s.active.Add(1)
		defer s.active.Add(-1)
		s.log.Debug("observer connected", zap.Uint64("sub", sub.ID), zap.String("remote", r.RemoteAddr))

		// Observers never send anything meaningful; reading only tracks liveness.
		readDone := make(chan struct{})
		go func() {
			defer close(readDone)
			conn.SetReadLimit(4 * 1024)
			_ = conn.SetReadDeadline(time.Now().Add(readWait))
			conn.SetPongHandler(func(string) error {
				return conn.SetReadDeadline(time.Now().Add(readWait))
			})
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
				_ = conn.SetReadDeadline(time.Now().Add(readWait))
			}
		}()

		ping := time.NewTicker(pingEvery)
		defer ping.Stop()

		reason := "bye"
		code := websocket.CloseNormalClosure
	loop:
		for {
			select {
			case <-readDone:
				break loop
			case <-sub.Done():
				code, reason = websocket.CloseTryAgainLater, "observer too slow"
				break loop
			case <-s.world.Done():
				code, reason = websocket.CloseGoingAway, "world stopped"
				break loop
			case b := <-sub.C():
				_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					break loop
				}
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
					break loop
				}
			}
		}
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
		s.log.Debug("observer disconnected", zap.Uint64("sub", sub.ID), zap.String("reason", reason))
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
