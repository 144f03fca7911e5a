// Package server exposes the relay over HTTP: the websocket endpoint
// that carries the message protocol, plus account, contact, history
// and operational endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/courierchat/courier/internal/config"
	"github.com/courierchat/courier/internal/directory"
	"github.com/courierchat/courier/internal/registry"
	"github.com/courierchat/courier/internal/router"
	"github.com/courierchat/courier/internal/store"
)

// Server wires the HTTP surface to the registry, router and stores.
type Server struct {
	cfg       config.Config
	registry  *registry.Registry
	router    *router.Router
	store     store.Store
	directory directory.Directory
	logger    *slog.Logger

	upgrader websocket.Upgrader

	// baseCtx outlives individual connections; dispatches run on it so
	// a sender hanging up cannot cancel an in-flight store write.
	baseCtx context.Context
}

// New creates a Server. ctx is the process lifetime context.
func New(ctx context.Context, cfg config.Config, reg *registry.Registry, rt *router.Router, st store.Store, dir directory.Directory, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:       cfg,
		registry:  reg,
		router:    rt,
		store:     st,
		directory: dir,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect from anywhere.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		baseCtx: ctx,
	}
}

// Handler builds the HTTP routing tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Get("/socket", s.handleSocket)
	r.Get("/history/{chatID}", s.handleHistory)
	r.Post("/create_account", s.handleCreateAccount)
	r.Post("/login", s.handleLogin)
	r.Get("/contacts", s.handleListContacts)
	r.Post("/contacts", s.handleAddContact)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// handleSocket upgrades to a websocket and runs the session until the
// connection dies.
func (s *Server) handleSocket(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("username")
	if identity == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the error response.
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := &session{
		srv:      s,
		identity: identity,
		peer:     newWSPeer(conn, s.cfg.Sockets),
		logger:   s.logger.With("identity", identity),
	}
	sess.run(r.Context())
}

// handleHistory returns a conversation's log, either the full message
// list or, with ?chunks=1, the raw chunk structure.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")

	if r.URL.Query().Get("chunks") == "1" {
		chunks, err := s.store.Chunks(r.Context(), chatID)
		if err != nil {
			s.logger.Error("reading chunks failed", "chat_id", chatID, "error", err)
			respondError(w, http.StatusInternalServerError, "history unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "chunks": chunks})
		return
	}

	msgs, err := s.store.Read(r.Context(), chatID)
	if err != nil {
		s.logger.Error("reading history failed", "chat_id", chatID, "error", err)
		respondError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chat_id": chatID, "messages": msgs})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	err := s.directory.Create(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, directory.ErrExists):
		respondError(w, http.StatusConflict, "username already exists")
	case err != nil:
		s.logger.Error("account creation failed", "username", req.Username, "error", err)
		respondError(w, http.StatusInternalServerError, "account creation failed")
	default:
		respondJSON(w, http.StatusCreated, map[string]string{"username": req.Username})
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := s.directory.Verify(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, directory.ErrNoSuchUser),
		errors.Is(err, directory.ErrCredentialMismatch):
		// Same answer either way: do not leak which accounts exist.
		respondError(w, http.StatusUnauthorized, "invalid credentials")
	case err != nil:
		s.logger.Error("login failed", "username", req.Username, "error", err)
		respondError(w, http.StatusInternalServerError, "login failed")
	default:
		respondJSON(w, http.StatusOK, map[string]string{"username": req.Username})
	}
}

type contactRequest struct {
	Username string `json:"username"`
	Contact  string `json:"contact"`
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Contact == "" {
		respondError(w, http.StatusBadRequest, "username and contact are required")
		return
	}

	err := s.directory.AddContact(r.Context(), req.Username, req.Contact)
	switch {
	case errors.Is(err, directory.ErrAlreadyPresent):
		respondError(w, http.StatusConflict, "contact already present")
	case errors.Is(err, directory.ErrNoSuchUser):
		respondError(w, http.StatusNotFound, "no such user")
	case err != nil:
		s.logger.Error("adding contact failed", "username", req.Username, "error", err)
		respondError(w, http.StatusInternalServerError, "adding contact failed")
	default:
		respondJSON(w, http.StatusCreated, map[string]string{
			"username": req.Username,
			"contact":  req.Contact,
		})
	}
}

func (s *Server) handleListContacts(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		respondError(w, http.StatusBadRequest, "username is required")
		return
	}

	contacts, err := s.directory.Contacts(r.Context(), username)
	if err != nil {
		s.logger.Error("listing contacts failed", "username", username, "error", err)
		respondError(w, http.StatusInternalServerError, "listing contacts failed")
		return
	}
	if contacts == nil {
		contacts = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"username": username, "contacts": contacts})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	overall := "ok"
	storage := "ok"
	if err := s.store.Ping(r.Context()); err != nil {
		status = http.StatusServiceUnavailable
		overall = "degraded"
		storage = err.Error()
	}

	respondJSON(w, status, map[string]any{
		"status":      overall,
		"storage":     storage,
		"connections": s.registry.Len(),
		"stats":       s.router.Stats(),
	})
}

// logRequests is a small slog access-log middleware; the websocket
// endpoint is skipped because its "request" lasts the whole session.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/socket" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
