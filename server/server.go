package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"github.com/xhad/rag/pkg/pipeline"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Be careful with this in production
	},
}

type Config struct {
	Port           string
	RequestTimeout time.Duration
}

// Server exposes the indexing and query flows over JSON HTTP, plus a
// websocket endpoint that accepts the same query payload.
type Server struct {
	config   Config
	pipeline *pipeline.Pipeline
	logger   *log.Logger
}

type indexRequest struct {
	DocumentIDs []string `json:"document_ids"`
}

type queryRequest struct {
	DocumentIDs []string `json:"document_ids"`
	Question    string   `json:"question"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func New(config Config, p *pipeline.Pipeline, logger *log.Logger) *Server {
	if config.Port == "" {
		config.Port = "8001"
	}
	if config.RequestTimeout == 0 {
		config.RequestTimeout = 60 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		config:   config,
		pipeline: p,
		logger:   logger,
	}
}

// Handler builds the route table. Split out from Start so tests can
// drive the server through httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/rag/index", s.handleIndex)
	mux.HandleFunc("/rag/query", s.handleQuery)
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

func (s *Server) Start() error {
	s.logger.Info("starting server", "port", s.config.Port)
	return http.ListenAndServe(":"+s.config.Port, s.Handler())
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	results, err := s.pipeline.IndexDocuments(ctx, req.DocumentIDs)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Indexing always answers 200; per-document failures live in the
	// status list.
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
	defer cancel()

	result, err := s.pipeline.QueryDocuments(ctx, req.DocumentIDs, req.Question)
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrNoMatches):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

// handleWebSocket serves the query flow over a persistent connection.
// Each inbound message is one full query; each reply is one full
// result. There is no token streaming.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	for {
		var req queryRequest
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Error("error reading websocket message", "error", err)
			}
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), s.config.RequestTimeout)
		result, err := s.pipeline.QueryDocuments(ctx, req.DocumentIDs, req.Question)
		cancel()

		var reply any
		if err != nil {
			reply = errorResponse{Detail: err.Error()}
		} else {
			reply = result
		}

		if err := conn.WriteJSON(reply); err != nil {
			s.logger.Error("error writing websocket message", "error", err)
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "rag",
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
