// Package peer is a simulated control endpoint. It keeps a parameter table
// and a handful of moving signals, and answers commands over the same
// newline-delimited JSON protocol a real device speaks.
package peer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"maps"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/paramlink/paramlink/internal/config"
	"github.com/paramlink/paramlink/internal/logging"
	"github.com/paramlink/paramlink/internal/protocol"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	// SignalInterval is both the simulation tick and the period of
	// subscription updates.
	SignalInterval time.Duration
	// Parameters seeds the parameter table. Nil uses a built-in set.
	Parameters map[string]float64
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// OptionsFromConfig maps the peer section of the file configuration.
func OptionsFromConfig(cfg config.PeerConfig) Options {
	return Options{SignalInterval: cfg.SignalInterval}
}

type Server struct {
	opts     Options
	log      *slog.Logger
	commands *prometheus.CounterVec

	mu      sync.RWMutex
	params  map[string]float64
	signals map[string]*signal
	tick    int

	wg sync.WaitGroup
}

func New(opts Options) *Server {
	if opts.SignalInterval <= 0 {
		opts.SignalInterval = config.Default().Peer.SignalInterval
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	params := defaultParameters()
	if opts.Parameters != nil {
		params = maps.Clone(opts.Parameters)
	}

	s := &Server{
		opts:    opts,
		log:     opts.Logger,
		params:  params,
		signals: make(map[string]*signal),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "paramlink",
			Subsystem: "peer",
			Name:      "commands_total",
			Help:      "Commands handled by the simulated endpoint, by type",
		}, []string{"type"}),
	}
	for _, sig := range defaultSignals() {
		sig.advance(0)
		s.signals[sig.name] = sig
	}
	if opts.Registerer != nil {
		opts.Registerer.MustRegister(s.commands)
	}
	return s
}

// ListenAndServe listens on addr and serves until ctx ends.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx ends, then closes every open
// connection and returns nil. Any other accept failure is returned.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveCtx, cancel := context.WithCancel(ctx)
	defer s.wg.Wait()
	defer cancel()

	s.log.Info("peer listening", "addr", ln.Addr().String())
	go func() {
		<-serveCtx.Done()
		ln.Close()
	}()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.simulate(serveCtx)
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(serveCtx, conn)
		}()
	}
}

func (s *Server) simulate(ctx context.Context) {
	ticker := time.NewTicker(s.opts.SignalInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.tick++
			for _, sig := range s.signals {
				sig.advance(s.tick)
			}
			s.mu.Unlock()
		}
	}
}

// Parameter returns the stored value of name.
func (s *Server) Parameter(name string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.params[name]
	return v, ok
}

// SignalNames lists the simulated signals in name order.
func (s *Server) SignalNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.signals))
	for name := range s.signals {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// peerConn serialises response writes from the command loop and any
// subscription streams.
type peerConn struct {
	conn net.Conn
	mu   sync.Mutex
}

func (c *peerConn) send(resp protocol.Response) error {
	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.conn.Write(frame)
	return err
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	ctx, cancel := context.WithCancel(ctx)
	var streams sync.WaitGroup
	defer streams.Wait()
	defer cancel()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	log := s.log.With("remote", conn.RemoteAddr().String())
	log.Info("client connected")
	defer log.Info("client disconnected")

	pc := &peerConn{conn: conn}
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		cmd, err := protocol.DecodeCommand(line)
		if err != nil {
			log.Warn("malformed command, closing", "err", err, "frame", string(line))
			return
		}
		s.commands.WithLabelValues(string(cmd.Type())).Inc()
		log.Debug("command", "command", cmd)

		resp := s.apply(cmd)
		if err := pc.send(resp); err != nil {
			log.Debug("write failed", "err", err)
			return
		}

		switch c := cmd.(type) {
		case protocol.SubscribeToSignal:
			streams.Add(1)
			go func() {
				defer streams.Done()
				s.stream(ctx, pc, c.Name)
			}()
		case protocol.CloseListenerThread:
			return
		}
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, net.ErrClosed) {
		log.Debug("read failed", "err", err)
	}
}

// apply runs cmd against the tables and returns the reply.
func (s *Server) apply(cmd protocol.Command) protocol.Response {
	switch c := cmd.(type) {
	case protocol.ListParameters:
		s.mu.RLock()
		defer s.mu.RUnlock()
		return protocol.Parameters(maps.Clone(s.params))

	case protocol.GetParameterValue:
		s.mu.RLock()
		defer s.mu.RUnlock()
		if v, ok := s.params[c.Name]; ok {
			return protocol.Parameters{c.Name: v}
		}
		return protocol.Parameters{}

	case protocol.SetParameterValue:
		s.mu.Lock()
		s.params[c.Name] = c.Value
		s.mu.Unlock()
		return protocol.Done{}

	case protocol.ListSignals:
		s.mu.RLock()
		defer s.mu.RUnlock()
		values := make(protocol.Parameters, len(s.signals))
		for name, sig := range s.signals {
			values[name] = sig.value
		}
		return values

	default:
		// SubscribeToSignal and CloseListenerThread acknowledge first and
		// act afterwards.
		return protocol.Done{}
	}
}

// stream sends the current value of one signal every interval until the
// connection ends. Unknown signals stream nothing.
func (s *Server) stream(ctx context.Context, pc *peerConn, name string) {
	s.mu.RLock()
	_, ok := s.signals[name]
	s.mu.RUnlock()
	if !ok {
		return
	}

	ticker := time.NewTicker(s.opts.SignalInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			v := s.signals[name].value
			s.mu.RUnlock()
			if err := pc.send(protocol.Parameters{name: v}); err != nil {
				return
			}
		}
	}
}
