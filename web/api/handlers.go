package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/haldardhruv/foamchalak/internal/config"
	"github.com/haldardhruv/foamchalak/internal/domain"
)

// StartRunRequest is the request body for starting a run. All fields are
// optional: an empty body runs the configured default case in place.
type StartRunRequest struct {
	// CaseDir runs the pipeline directly in this directory.
	CaseDir string `json:"case_dir,omitempty"`
	// Tutorial clones the named tutorial case into a fresh run directory
	// first. Takes precedence over CaseDir.
	Tutorial string `json:"tutorial,omitempty"`
}

// StartRunResponse is the response for a started run
type StartRunResponse struct {
	RunID   string `json:"run_id"`
	WorkDir string `json:"work_dir"`
}

// StopRunResponse reports the state Stop observed
type StopRunResponse struct {
	State domain.RunState `json:"state"`
}

// LoadTutorialRequest names the tutorial case to provision
type LoadTutorialRequest struct {
	Name string `json:"name"`
}

func (s *Server) startRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		// An empty body is fine; anything else must parse.
		var req StartRunRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		workDir, err := s.resolveWorkDir(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		runID, err := s.runner.Start(workDir)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyRunning) {
				writeError(w, http.StatusConflict, "a run is already in progress")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		writeJSON(w, StartRunResponse{RunID: runID, WorkDir: workDir})
	}
}

// resolveWorkDir picks the run's working directory: a cloned tutorial, an
// explicit case directory, or the configured default case.
func (s *Server) resolveWorkDir(req StartRunRequest) (string, error) {
	if req.Tutorial != "" {
		cs, ok := s.catalog.Find(req.Tutorial)
		if !ok {
			return "", errors.New("unknown tutorial: " + req.Tutorial)
		}
		return s.prov.CloneCase(cs.Path)
	}
	if req.CaseDir != "" {
		return req.CaseDir, nil
	}

	cfg := s.store.Get()
	if cfg.Case.Dir == "" {
		return "", errors.New("no case directory given and none configured")
	}
	return cfg.Case.Dir, nil
}

func (s *Server) stopRunHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		state := s.runner.Stop()
		writeJSON(w, StopRunResponse{State: state})
	}
}

func (s *Server) statusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		writeJSON(w, s.runner.Status())
	}
}

func (s *Server) configHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, s.store.Get())

		case http.MethodPost:
			var updated config.Config
			if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
				writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
			if err := updated.Validate(); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}

			// Takes effect on the next run; the runner resolves its
			// backend and steps from this store at start time.
			s.store.Update(updated)

			if s.configPath != "" {
				if err := config.Save(&updated, s.configPath); err != nil {
					writeError(w, http.StatusInternalServerError, err.Error())
					return
				}
			}
			writeJSON(w, map[string]string{"status": "saved"})

		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	}
}

func (s *Server) listTutorialsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		writeJSON(w, s.catalog.List())
	}
}

func (s *Server) loadTutorialHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}

		var req LoadTutorialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			writeError(w, http.StatusBadRequest, "tutorial name required")
			return
		}

		cs, ok := s.catalog.Find(req.Name)
		if !ok {
			writeError(w, http.StatusNotFound, "tutorial not found")
			return
		}

		dir, err := s.prov.CloneCase(cs.Path)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}

		writeJSON(w, map[string]string{"name": req.Name, "work_dir": dir})
	}
}
