package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"race-telemetry/internal/ingest"
	"race-telemetry/internal/models"
	"race-telemetry/internal/stats"
	"race-telemetry/internal/store"
	"race-telemetry/internal/ws"

	"github.com/gorilla/mux"
	gwebsocket "github.com/gorilla/websocket"
)

var upgrader = gwebsocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The dashboard is served from another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Server is the HTTP and WebSocket surface of the telemetry pipeline.
type Server struct {
	store  *store.Store
	hub    *ws.Hub
	ingest *ingest.Service
	router *mux.Router
}

// NewServer wires the routes over the given pipeline components.
func NewServer(st *store.Store, hub *ws.Hub, ing *ingest.Service) *Server {
	s := &Server{
		store:  st,
		hub:    hub,
		ingest: ing,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// OPTIONS is routed so the CORS middleware can answer preflight;
	// mux skips middleware on unmatched routes.
	s.router.HandleFunc("/api/telemetry", s.handleTelemetry).Methods("POST", "OPTIONS")
	s.router.HandleFunc("/api/history", s.handleHistory).Methods("GET", "OPTIONS")
	s.router.HandleFunc("/api/stats", s.handleStats).Methods("GET", "OPTIONS")

	s.router.HandleFunc("/ws", s.handleWS)

	s.router.Use(loggingMiddleware)
	s.router.Use(corsMiddleware)
}

// Router returns the configured router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Middleware
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ack is the ingest acknowledgment body.
type ack struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Handlers
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleTelemetry accepts one telemetry payload. Acceptance is
// unconditional for well-formed JSON: missing fields default, nothing
// is validated against a fixed set. The broadcast happens regardless
// of the persistence outcome; only the acknowledgment distinguishes
// the two.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	var p models.Payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		respondJSON(w, http.StatusBadRequest, ack{Status: "error", Message: "invalid JSON"})
		return
	}

	if _, err := s.ingest.Ingest(p); err != nil {
		respondJSON(w, http.StatusInternalServerError, ack{
			Status:  "error",
			Message: "Failed to store telemetry data",
		})
		return
	}

	respondJSON(w, http.StatusOK, ack{Status: "success", Message: "Data received and stored"})
}

// handleHistory returns up to limit most recent rows, oldest first, as
// a flat JSON array mirroring the on-disk encoding. Either the full
// window or an explicit error; never partial output.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	rows, err := s.store.Tail(limit)
	if err != nil {
		log.Printf("error reading history: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to read historical data")
		return
	}

	respondJSON(w, http.StatusOK, rows)
}

// handleStats recomputes the aggregate summary from the full record
// set on every call. An empty store yields {}.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ScanAll()
	if err != nil {
		log.Printf("error reading store for stats: %v", err)
		respondError(w, http.StatusInternalServerError, "Failed to calculate stats")
		return
	}

	respondJSON(w, http.StatusOK, stats.Compute(rows))
}

// handleWS upgrades the connection and hands it to the hub.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	client := ws.NewClient(s.hub, conn)
	s.hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
