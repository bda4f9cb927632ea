package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"applier/eventbus"
	"applier/hunter"
	"applier/orchestrator"
	"applier/vision"
)

// PageInspector is the browser engine's debug surface: the live page markup
// and the latest extraction snapshot. vision.Agent implements it.
type PageInspector interface {
	GetPageHTML(clean bool) (string, error)
	LastScan() []vision.FieldDescriptor
}

// Server is the REST control surface over a single orchestrator instance.
type Server struct {
	orch      *orchestrator.Orchestrator
	events    *eventbus.MemorySink
	store     *hunter.RedisStore
	inspector PageInspector
	router    *mux.Router
}

func New(orch *orchestrator.Orchestrator, events *eventbus.MemorySink, store *hunter.RedisStore, inspector PageInspector) *Server {
	s := &Server{
		orch:      orch,
		events:    events,
		store:     store,
		inspector: inspector,
		router:    mux.NewRouter(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/status", s.handleStatus).Methods("GET")
	s.router.HandleFunc("/start", s.handleStart).Methods("POST")
	s.router.HandleFunc("/stop", s.handleStop).Methods("POST")
	s.router.HandleFunc("/submit", s.handleSubmit).Methods("POST")
	s.router.HandleFunc("/jobs", s.handleJobs).Methods("GET")
	s.router.HandleFunc("/events", s.handleEvents).Methods("GET")
	s.router.HandleFunc("/page", s.handlePage).Methods("GET")
	s.router.HandleFunc("/fields", s.handleFields).Methods("GET")
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "applier",
		"time":    time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.orch.Status())
}

type startRequest struct {
	DryRun *bool `json:"dry_run"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	// Body is optional; an empty or absent one keeps the configured mode.
	var req startRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	if req.DryRun != nil {
		s.orch.SetDryRun(*req.DryRun)
	}

	if err := s.orch.Start(r.Context()); err != nil {
		writeJSON(w, http.StatusConflict, messageResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "orchestrator started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Stop(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Success: true, Message: "orchestrator stopped"})
}

type submitRequest struct {
	Answer string `json:"answer"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Success: false, Message: "invalid request body"})
		return
	}

	if err := s.orch.SubmitOverride(req.Answer); err != nil {
		if errors.Is(err, orchestrator.ErrNoPending) {
			writeJSON(w, http.StatusConflict, messageResponse{Success: false, Message: "not waiting for input"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, messageResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, messageResponse{Success: true, Message: "input accepted"})
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	// This run's job history, plus the persisted records when a store
	// is wired.
	response := map[string]interface{}{
		"run": s.orch.History(),
	}
	if s.store != nil {
		jobs, err := s.store.Jobs(r.Context())
		if err != nil {
			log.Printf("⚠️ Job store read failed: %v", err)
		} else {
			response["stored"] = jobs
		}
	}
	writeJSON(w, http.StatusOK, response)
}

// handlePage returns the live page markup, cleaned of scripts, styles and
// inline payloads unless ?raw=1.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if s.inspector == nil {
		writeJSON(w, http.StatusNotFound, messageResponse{Success: false, Message: "no browser attached"})
		return
	}
	clean := r.URL.Query().Get("raw") != "1"
	html, err := s.inspector.GetPageHTML(clean)
	if err != nil {
		writeJSON(w, http.StatusConflict, messageResponse{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"html": html})
}

// handleFields returns the most recent extraction snapshot.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	if s.inspector == nil {
		writeJSON(w, http.StatusNotFound, messageResponse{Success: false, Message: "no browser attached"})
		return
	}
	writeJSON(w, http.StatusOK, s.inspector.LastScan())
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			n = parsed
		}
	}
	writeJSON(w, http.StatusOK, s.events.Recent(n))
}
