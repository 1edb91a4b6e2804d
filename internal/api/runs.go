package api

import (
	"errors"
	"net/http"
	"strconv"

	"remsim/internal/playbook"
	"remsim/internal/simulation"
)

const (
	defaultPageLimit = 50
	maxPageLimit     = 200
)

type createRunRequest struct {
	PlaybookID string `json:"playbookId" validate:"required"`
	WindowDays int    `json:"windowDays"`
}

// handleCreateRun handles POST /v1/runs. The simulation is synchronous: the
// response carries the terminal run. A failed run (baseline unavailable) is
// still a successful request, so it comes back 200 with the run payload.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if errs := s.validateStruct(req); len(errs) > 0 {
		writeValidationError(w, errs)
		return
	}

	run, err := s.runner.Run(r.Context(), tenantFromContext(r.Context()), req.PlaybookID, req.WindowDays)
	if err != nil {
		var verr *playbook.ValidationError
		switch {
		case errors.As(err, &verr):
			writeValidationError(w, verr.Errors)
		case errors.Is(err, playbook.ErrNotFound):
			writeError(w, http.StatusNotFound, "playbook not found")
		default:
			s.internalError(w, r, "run simulation", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// handleListRuns handles GET /v1/runs.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	runs, err := s.runs.ListRuns(r.Context(), tenantFromContext(r.Context()), limit, offset)
	if err != nil {
		s.internalError(w, r, "list runs", err)
		return
	}

	writeJSON(w, http.StatusOK, runsPage(runs, limit, offset))
}

// handleGetRun handles GET /v1/runs/{id}.
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runs.GetRun(r.Context(), tenantFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, simulation.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.internalError(w, r, "get run", err)
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// pagination parses limit and offset query parameters, writing the 400
// itself on bad input.
func pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit = defaultPageLimit

	q := r.URL.Query()
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		if n > maxPageLimit {
			n = maxPageLimit
		}
		limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}
