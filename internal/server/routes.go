package server

import (
	"net/http"
	"strings"

	"github.com/ternarybob/obsoleta/internal/handlers"
)

// setupRoutes registers all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Job lifecycle
	mux.HandleFunc("/api/jobs/initialize", s.app.JobHandler.InitializeJobHandler) // POST
	mux.HandleFunc("/api/jobs", s.app.JobHandler.ListJobsHandler)                 // GET
	mux.HandleFunc("/api/jobs/", s.handleJobRoutes)                               // GET /{id}, POST /{id}/fetch|analyze|poll

	// Scheduled-run state
	mux.HandleFunc("/api/autocheck", s.handleAutoCheckRoute)               // GET (state), POST (partial update)
	mux.HandleFunc("/api/autocheck/run", s.app.AutoCheckHandler.RunNowHandler) // POST

	// Collaborator surfaces
	mux.HandleFunc("/api/auth/check", s.app.AuthHandler.CheckHandler)       // GET
	mux.HandleFunc("/api/kv", s.handleKVRoute)                              // GET (list), POST (set)
	mux.HandleFunc("/api/kv/", s.handleKVKeyRoutes)                         // GET/DELETE /{key}
	mux.HandleFunc("/api/events/recent", s.app.EventsHandler.RecentHandler) // GET

	// Service status
	mux.HandleFunc("/api/health", s.app.StatusHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.StatusHandler.VersionHandler)
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	mux.HandleFunc("/api/", s.app.StatusHandler.NotFoundHandler)

	return mux
}

// handleJobRoutes dispatches /api/jobs/{id} and its stage subpaths
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := parts[0]
	if jobID == "" {
		handlers.WriteError(w, http.StatusBadRequest, "Job ID required")
		return
	}

	if len(parts) == 1 {
		s.app.JobHandler.GetJobHandler(w, r, jobID)
		return
	}

	switch parts[1] {
	case "fetch":
		s.app.JobHandler.FetchTriggerHandler(w, r, jobID)
	case "analyze":
		s.app.JobHandler.AnalyzeTriggerHandler(w, r, jobID)
	case "poll":
		s.app.JobHandler.PollJobHandler(w, r, jobID)
	default:
		handlers.WriteError(w, http.StatusNotFound, "Unknown job endpoint")
	}
}

func (s *Server) handleAutoCheckRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.AutoCheckHandler.GetStateHandler(w, r)
	case http.MethodPost:
		s.app.AutoCheckHandler.SetStateHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleKVRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.app.KVHandler.ListHandler(w, r)
	case http.MethodPost:
		s.app.KVHandler.SetHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleKVKeyRoutes(w http.ResponseWriter, r *http.Request) {
	key := handlers.KeyFromPath(r, "/api/kv/")
	if key == "" {
		handlers.WriteError(w, http.StatusBadRequest, "Key required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.app.KVHandler.GetHandler(w, r, key)
	case http.MethodDelete:
		s.app.KVHandler.DeleteHandler(w, r, key)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
