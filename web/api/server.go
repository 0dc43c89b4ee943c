// Package api exposes the browser-facing control surface: run control,
// status, configuration, tutorials, and the live output feeds.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/haldardhruv/foamchalak/internal/broadcast"
	"github.com/haldardhruv/foamchalak/internal/config"
	"github.com/haldardhruv/foamchalak/internal/domain"
	"github.com/haldardhruv/foamchalak/internal/pipeline"
	"github.com/haldardhruv/foamchalak/internal/tutorials"
)

// RunController is the pipeline surface the server drives
type RunController interface {
	Start(workDir string) (string, error)
	Stop() domain.RunState
	Status() pipeline.Status
}

// CaseProvisioner creates seeded run directories
type CaseProvisioner interface {
	CloneCase(src string) (string, error)
}

// Server is the HTTP API server
type Server struct {
	runner     RunController
	bc         *broadcast.Broadcaster
	catalog    *tutorials.Catalog
	prov       CaseProvisioner
	store      *config.Store
	configPath string
	addr       string
	staticDir  string
	mux        *http.ServeMux
}

// NewServer creates a new API server
func NewServer(runner RunController, bc *broadcast.Broadcaster, catalog *tutorials.Catalog, prov CaseProvisioner, store *config.Store, configPath, addr, staticDir string) *Server {
	s := &Server{
		runner:     runner,
		bc:         bc,
		catalog:    catalog,
		prov:       prov,
		store:      store,
		configPath: configPath,
		addr:       addr,
		staticDir:  staticDir,
		mux:        http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API routes
	s.mux.HandleFunc("/api/run", s.startRunHandler())
	s.mux.HandleFunc("/api/stop", s.stopRunHandler())
	s.mux.HandleFunc("/api/status", s.statusHandler())
	s.mux.HandleFunc("/api/config", s.configHandler())
	s.mux.HandleFunc("/api/tutorials", s.listTutorialsHandler())
	s.mux.HandleFunc("/api/tutorials/load", s.loadTutorialHandler())
	s.mux.HandleFunc("/stream", s.streamHandler())
	s.mux.HandleFunc("/ws", s.wsHandler())

	// Static files (browser UI)
	if s.staticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	}
}

// Handler returns the server's routing handler, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return http.ListenAndServe(s.addr, s.mux)
}

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
