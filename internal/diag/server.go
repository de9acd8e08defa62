// Package diag streams fired blow records to websocket subscribers, so a
// browser or tool can watch the classifier while tuning sensitivity.
package diag

import (
	"net"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/petems/blowsense/internal/detect"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: checkOrigin,
}

// checkOrigin admits same-machine clients only; the diagnostics feed is a
// local tuning aid, not a public API.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	// Same-origin requests omit the Origin header
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()

	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}

	// Same-origin check (compare with request host)
	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	return host == requestHost
}

// Server broadcasts detect.Records to all connected websocket clients.
type Server struct {
	log zerolog.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	srv   *http.Server
}

// NewServer returns a diagnostics server listening on addr once started.
func NewServer(addr string, log zerolog.Logger) *Server {
	s := &Server{
		log:   log,
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/diag", s.handleWS)
	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error().Err(err).Msg("diagnostics server failed")
		}
	}()
	s.log.Info().Str("addr", s.srv.Addr).Msg("diagnostics server listening")
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("diagnostics client connected")

	// Drain incoming messages to detect disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.drop(conn)
				return
			}
		}
	}()
}

// Publish sends one record to every connected client. Implements the
// session diagnostic sink.
func (s *Server) Publish(rec detect.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for conn := range s.conns {
		if err := conn.WriteJSON(rec); err != nil {
			delete(s.conns, conn)
			conn.Close()
		}
	}
}

func (s *Server) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		conn.Close()
	}
}

// Close shuts the listener and disconnects all clients.
func (s *Server) Close() error {
	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
		delete(s.conns, conn)
	}
	s.mu.Unlock()
	return s.srv.Close()
}
