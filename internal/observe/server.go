// Package observe serves the session event stream to WebSocket observers
// and exposes Prometheus metrics. Every observer reads from its own bus
// subscription, so a slow observer loses its oldest events without
// slowing the session or other observers.
package observe

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/paramlink/paramlink/internal/bus"
	"github.com/paramlink/paramlink/internal/logging"
	"github.com/paramlink/paramlink/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// Source is the session side of the relay. *session.Manager satisfies it.
type Source interface {
	Subscribe() *bus.Subscription[session.Event]
	Status() session.Status
}

type Server struct {
	src      Source
	gatherer prometheus.Gatherer
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	wg      sync.WaitGroup
}

// NewServer relays events from src. A nil gatherer serves the default
// Prometheus registry on /metrics.
func NewServer(src Source, gatherer prometheus.Gatherer, log *slog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Server{
		src:      src,
		gatherer: gatherer,
		log:      log,
		upgrader: websocket.Upgrader{CheckOrigin: checkOrigin},
		clients:  make(map[*client]struct{}),
	}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// ClientCount returns the number of connected observers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close disconnects every observer and waits for their pumps to exit.
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.clients {
		c.sub.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusMessage(s.src.Status()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("ws upgrade failed", "err", err)
		return
	}

	// Subscribe before taking the status snapshot so no event falls
	// between the two.
	c := &client{conn: conn, sub: s.src.Subscribe(), log: s.log.With("remote", r.RemoteAddr)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	c.log.Info("observer connected")

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		c.readPump()
	}()
	go func() {
		defer s.wg.Done()
		defer s.removeClient(c)
		c.writePump(s.src.Status())
	}()
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.log.Info("observer disconnected")
}

// checkOrigin admits same-host and loopback pages only.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return originAllowed(origin, r.Host)
}

// ListenAndServe serves mux on addr until ctx ends.
func ListenAndServe(ctx context.Context, addr string, mux http.Handler, log *slog.Logger) error {
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("observe server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
