// Package inspect serves a development inspector for a catalog of cells.
//
// The inspector exposes the catalog over HTTP and streams changes over a
// websocket:
//
//	GET  /healthz        liveness
//	GET  /cells          every cell with its value
//	GET  /cells/{name}   one cell
//	PUT  /cells/{name}   set a cell from a JSON body
//	GET  /ws             snapshot followed by a live change stream
//
// Cells are only touched on the loop: every request is marshalled with
// loop.Await.
package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/vango-dev/cellkit/pkg/catalog"
	"github.com/vango-dev/cellkit/pkg/cell"
	"github.com/vango-dev/cellkit/pkg/loop"
)

// CellView is the JSON form of a catalog entry.
type CellView struct {
	Name  string       `json:"name"`
	Kind  catalog.Kind `json:"kind"`
	Type  string       `json:"type"`
	Value any          `json:"value"`
}

// Message is sent to websocket clients and accepted from them.
type Message struct {
	// Type is "snapshot", "change" or "error" from the server, and "set"
	// from clients.
	Type  string     `json:"type"`
	Name  string     `json:"name,omitempty"`
	Value any        `json:"value"`
	Cells []CellView `json:"cells,omitempty"`
	Error string     `json:"error,omitempty"`
}

// Server is the inspector.
type Server struct {
	cat    *catalog.Catalog
	loop   *loop.Loop
	config *Config
	logger *slog.Logger

	upgrader websocket.Upgrader
	router   chi.Router

	mu      sync.Mutex
	clients map[*client]struct{}
	host    *cell.Owner
	closed  bool
}

// New creates an inspector over cat. The catalog is only accessed through l.
func New(cat *catalog.Catalog, l *loop.Loop, config *Config) *Server {
	config = config.withDefaults()
	s := &Server{
		cat:    cat,
		loop:   l,
		config: config,
		logger: config.Logger.With("component", "inspect"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		clients: make(map[*client]struct{}),
	}
	s.router = s.routes()
	return s
}

// Start begins watching the catalog so that websocket clients receive
// changes. It must be called once, from outside the loop.
func (s *Server) Start(ctx context.Context) error {
	return s.loop.Await(ctx, func() {
		s.host = cell.NewOwner(nil)
		s.cat.Watch(s.broadcast, s.host)
	})
}

// Close stops the change stream and disconnects websocket clients.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for c := range clients {
		c.close()
	}

	if s.host == nil {
		return nil
	}
	err := s.loop.Await(ctx, s.host.Dispose)
	if errors.Is(err, loop.ErrClosed) {
		return nil
	}
	return err
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	r.Get("/cells", s.handleList)
	r.Get("/cells/{name}", s.handleGet)
	r.Put("/cells/{name}", s.handlePut)
	r.Get("/ws", s.handleWebSocket)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok\n")
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	var views []CellView
	if err := s.loop.Await(r.Context(), func() { views = s.views() }); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var view CellView
	var found bool
	if err := s.loop.Await(r.Context(), func() { view, found = s.view(name) }); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, catalog.ErrUnknownCell)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var value any
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&value); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	var view CellView
	var setErr error
	if err := s.loop.Await(r.Context(), func() {
		if setErr = s.cat.Set(name, value); setErr == nil {
			view, _ = s.view(name)
		}
	}); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if setErr != nil {
		s.writeError(w, statusFor(setErr), setErr)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// views must run on the loop.
func (s *Server) views() []CellView {
	names := s.cat.Names()
	views := make([]CellView, 0, len(names))
	for _, name := range names {
		if v, ok := s.view(name); ok {
			views = append(views, v)
		}
	}
	return views
}

// view must run on the loop.
func (s *Server) view(name string) (CellView, bool) {
	e, ok := s.cat.Get(name)
	if !ok {
		return CellView{}, false
	}
	return CellView{
		Name:  name,
		Kind:  e.Kind(),
		Type:  e.Type().String(),
		Value: e.GetAny(),
	}, true
}

// broadcast runs on the loop for every catalog change.
func (s *Server) broadcast(ch catalog.Change) {
	data, err := json.Marshal(Message{Type: "change", Name: ch.Name, Value: ch.Value})
	if err != nil {
		s.logger.Warn("inspect: cannot encode change", "cell", ch.Name, "error", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		if !c.enqueue(data) {
			s.logger.Warn("inspect: client too slow, disconnecting", "remote", c.remote)
			delete(s.clients, c)
			c.close()
		}
	}
}

func (s *Server) addClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || c.closed() {
		return false
	}
	s.clients[c] = struct{}{}
	return true
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrUnknownCell):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrReadOnly):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrTypeMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Error("inspect: request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
