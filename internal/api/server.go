// Package api serves the HTTP JSON API and the WebSocket event stream.
package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"netscout/internal/errors"
	"netscout/internal/logging"
	"netscout/internal/scan"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	clientBuffer   = 64
)

// Frame is one WebSocket event message.
type Frame struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Options configure the API server.
type Options struct {
	// Addr is the listen address, host:port.
	Addr string
	// Defaults seed the session configuration for API-started scans; the
	// request body may override target and resolve window.
	Defaults scan.SessionConfig
	// OnScanStarted, if set, is called with the session id of every scan
	// started over the API.
	OnScanStarted func(sessionID string)
}

// Server exposes the engine over HTTP and streams its events to WebSocket
// clients.
type Server struct {
	engine        *scan.Engine
	addr          string
	defaults      scan.SessionConfig
	onScanStarted func(string)
	log           *zap.SugaredLogger
	upgrader      websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}

	baseCtx context.Context
}

// NewServer wires a server to the engine and registers for its events.
func NewServer(engine *scan.Engine, opts Options) *Server {
	s := &Server{
		engine:        engine,
		addr:          opts.Addr,
		defaults:      opts.Defaults,
		onScanStarted: opts.OnScanStarted,
		log:           logging.Component("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	engine.AddListener(s.listener())
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/hosts", s.handleHosts).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/scan", s.handleScanStart).Methods(http.MethodPost)
	api.HandleFunc("/scan/cancel", s.handleScanCancel).Methods(http.MethodPost)
	api.HandleFunc("/hosts/{ip}/deepscan", s.handleDeepScan).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	return router
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.baseCtx = ctx
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Infow("API server listening", "addr", s.addr)
		err := server.ListenAndServe()
		if err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.closeClients()
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

type hostsResponse struct {
	Hosts []scan.HostRecord `json:"hosts"`
	Count int               `json:"count"`
}

type statusResponse struct {
	scan.Progress
	ActiveDeepScans []string `json:"activeDeepScans,omitempty"`
}

func (s *Server) handleHosts(w http.ResponseWriter, _ *http.Request) {
	hosts := s.engine.Hosts()
	writeJSON(w, http.StatusOK, hostsResponse{Hosts: hosts, Count: len(hosts)})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) status() statusResponse {
	return statusResponse{
		Progress:        s.engine.Status(),
		ActiveDeepScans: s.engine.ActiveDeepScans(),
	}
}

func (s *Server) handleScanStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Target          string `json:"target"`
		ResolveWindowMs int    `json:"resolveWindowMs"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}

	cfg := s.defaults
	if target := strings.TrimSpace(req.Target); target != "" {
		cfg.Target = target
	}
	if req.ResolveWindowMs > 0 {
		cfg.ResolveWindow = time.Duration(req.ResolveWindowMs) * time.Millisecond
	}

	session, err := s.engine.StartScan(s.scanCtx(), cfg)
	if err != nil {
		if stderrors.Is(err, scan.ErrScanInProgress) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if s.onScanStarted != nil {
		s.onScanStarted(session.ID())
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": session.ID()})
}

func (s *Server) handleScanCancel(w http.ResponseWriter, _ *http.Request) {
	if err := s.engine.CancelScan(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeepScan(w http.ResponseWriter, r *http.Request) {
	host := mux.Vars(r)["ip"]

	var req struct {
		Kind  string `json:"kind"`
		Ports []int  `json:"ports"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !stderrors.Is(err, io.EOF) {
		http.Error(w, "invalid request payload", http.StatusBadRequest)
		return
	}
	if req.Kind == "" {
		req.Kind = string(scan.KindQuick)
	}

	mode := scan.DeepScanMode{Kind: scan.ScanKind(req.Kind), Ports: req.Ports}
	if _, err := s.engine.StartDeepScan(s.scanCtx(), host, mode); err != nil {
		if errors.IsBusy(err) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"host": host, "kind": req.Kind})
}

// scanCtx is the parent context for scans started over the API; shutting the
// server down cancels them.
func (s *Server) scanCtx() context.Context {
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
