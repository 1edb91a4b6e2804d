package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	remerrors "remsim/internal/errors"
	"remsim/internal/playbook"
	"remsim/internal/simulation"
)

const maxBodySize = 1 << 20 // 1MB

type createPlaybookRequest struct {
	Name        string          `json:"name" validate:"required,max=128"`
	Description string          `json:"description" validate:"max=1024"`
	Category    string          `json:"category" validate:"max=64"`
	IsActive    *bool           `json:"isActive"`
	Config      playbook.Config `json:"config"`
}

type updatePlaybookRequest struct {
	Name        *string          `json:"name" validate:"omitempty,max=128"`
	Description *string          `json:"description" validate:"omitempty,max=1024"`
	Category    *string          `json:"category" validate:"omitempty,max=64"`
	IsActive    *bool            `json:"isActive"`
	Config      *playbook.Config `json:"config"`
}

// handleCreatePlaybook handles POST /v1/playbooks.
func (s *Server) handleCreatePlaybook(w http.ResponseWriter, r *http.Request) {
	var req createPlaybookRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	errs := s.validateStruct(req)
	errs = append(errs, playbook.ValidateConfig(req.Config)...)
	if len(errs) > 0 {
		writeValidationError(w, errs)
		return
	}

	pb := &playbook.Playbook{
		ID:          uuid.NewString(),
		TenantID:    tenantFromContext(r.Context()),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		IsActive:    req.IsActive == nil || *req.IsActive,
		Config:      req.Config,
	}

	if err := s.playbooks.CreatePlaybook(r.Context(), pb); err != nil {
		if errors.Is(err, playbook.ErrDuplicateName) {
			writeError(w, http.StatusConflict, fmt.Sprintf("playbook name %q already in use", pb.Name))
			return
		}
		s.internalError(w, r, "create playbook", err)
		return
	}

	writeJSON(w, http.StatusCreated, pb)
}

// handleListPlaybooks handles GET /v1/playbooks.
func (s *Server) handleListPlaybooks(w http.ResponseWriter, r *http.Request) {
	playbooks, err := s.playbooks.ListPlaybooks(r.Context(), tenantFromContext(r.Context()))
	if err != nil {
		s.internalError(w, r, "list playbooks", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"playbooks": playbooks,
		"total":     len(playbooks),
	})
}

// handleGetPlaybook handles GET /v1/playbooks/{id}.
func (s *Server) handleGetPlaybook(w http.ResponseWriter, r *http.Request) {
	pb, err := s.playbooks.GetPlaybook(r.Context(), tenantFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, playbook.ErrNotFound) {
			writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		s.internalError(w, r, "get playbook", err)
		return
	}

	writeJSON(w, http.StatusOK, pb)
}

// handleUpdatePlaybook handles PATCH /v1/playbooks/{id}. Absent fields keep
// their stored values; a supplied config is validated in full.
func (s *Server) handleUpdatePlaybook(w http.ResponseWriter, r *http.Request) {
	var req updatePlaybookRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	errs := s.validateStruct(req)
	if req.Name != nil && *req.Name == "" {
		errs = append(errs, "name must not be empty")
	}
	if req.Config != nil {
		errs = append(errs, playbook.ValidateConfig(*req.Config)...)
	}
	if len(errs) > 0 {
		writeValidationError(w, errs)
		return
	}

	tenantID := tenantFromContext(r.Context())
	pb, err := s.playbooks.GetPlaybook(r.Context(), tenantID, r.PathValue("id"))
	if err != nil {
		if errors.Is(err, playbook.ErrNotFound) {
			writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		s.internalError(w, r, "get playbook", err)
		return
	}

	if req.Name != nil {
		pb.Name = *req.Name
	}
	if req.Description != nil {
		pb.Description = *req.Description
	}
	if req.Category != nil {
		pb.Category = *req.Category
	}
	if req.IsActive != nil {
		pb.IsActive = *req.IsActive
	}
	if req.Config != nil {
		pb.Config = *req.Config
	}

	if err := s.playbooks.UpdatePlaybook(r.Context(), pb); err != nil {
		switch {
		case errors.Is(err, playbook.ErrDuplicateName):
			writeError(w, http.StatusConflict, fmt.Sprintf("playbook name %q already in use", pb.Name))
		case errors.Is(err, playbook.ErrNotFound):
			writeError(w, http.StatusNotFound, "playbook not found")
		default:
			s.internalError(w, r, "update playbook", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, pb)
}

// handleDeletePlaybook handles DELETE /v1/playbooks/{id}. Past runs keep
// their playbook id; deletion only removes the definition.
func (s *Server) handleDeletePlaybook(w http.ResponseWriter, r *http.Request) {
	err := s.playbooks.DeletePlaybook(r.Context(), tenantFromContext(r.Context()), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, playbook.ErrNotFound) {
			writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		s.internalError(w, r, "delete playbook", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleListPlaybookRuns handles GET /v1/playbooks/{id}/runs.
func (s *Server) handleListPlaybookRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pagination(w, r)
	if !ok {
		return
	}

	tenantID := tenantFromContext(r.Context())
	playbookID := r.PathValue("id")

	// A 404 for an unknown playbook beats an empty list the caller cannot
	// distinguish from "no runs yet".
	if _, err := s.playbooks.GetPlaybook(r.Context(), tenantID, playbookID); err != nil {
		if errors.Is(err, playbook.ErrNotFound) {
			writeError(w, http.StatusNotFound, "playbook not found")
			return
		}
		s.internalError(w, r, "get playbook", err)
		return
	}

	runs, err := s.runs.ListRunsByPlaybook(r.Context(), tenantID, playbookID, limit, offset)
	if err != nil {
		s.internalError(w, r, "list playbook runs", err)
		return
	}

	writeJSON(w, http.StatusOK, runsPage(runs, limit, offset))
}

func runsPage(runs []*simulation.Run, limit, offset int) map[string]any {
	return map[string]any{
		"runs":   runs,
		"count":  len(runs),
		"limit":  limit,
		"offset": offset,
	}
}

// decodeBody decodes a bounded JSON body, writing the 400 itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

// validateStruct runs the tag validators and flattens failures into
// field-level messages.
func (s *Server) validateStruct(v any) []string {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", jsonFieldName(fe)))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", jsonFieldName(fe), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", jsonFieldName(fe)))
		}
	}
	return msgs
}

func jsonFieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "Name":
		return "name"
	case "Description":
		return "description"
	case "Category":
		return "category"
	case "PlaybookID":
		return "playbookId"
	case "WindowDays":
		return "windowDays"
	default:
		return fe.Field()
	}
}

// internalError logs the original error server-side and returns only a
// sanitized message to the client.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.logger.Error(op+" failed",
		"tenant", tenantFromContext(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	writeError(w, http.StatusInternalServerError, remerrors.SafeErrorMessage(err))
}
