package handler

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/perimetra/projects-service/internal/model"
	"github.com/perimetra/projects-service/internal/service"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	projects *service.ProjectsService
	errors   *ErrorWriter
	logger   *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(projects *service.ProjectsService, errors *ErrorWriter, logger *zap.Logger) *Handlers {
	return &Handlers{
		projects: projects,
		errors:   errors,
		logger:   logger,
	}
}

// Register wires all routes onto the router.
func (h *Handlers) Register(r *mux.Router) {
	r.HandleFunc("/v1/tenants/{tenantId}/projects", h.CreateProject).Methods(http.MethodPost)
	r.HandleFunc("/v1/tenants/{tenantId}/projects", h.ListProjects).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenantId}/projects/by-name/{name}", h.GetProjectByName).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenantId}/projects/by-key/{apiKey}", h.GetProjectByKey).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenantId}/projects/{projectId}", h.UpdateProject).Methods(http.MethodPut)
	r.HandleFunc("/v1/tenants/{tenantId}/projects/{projectId}", h.DeleteProject).Methods(http.MethodDelete)
	r.HandleFunc("/v1/tenants/{tenantId}/projects/{projectId}/keys/{purpose}/reset", h.ResetKey).Methods(http.MethodPut)
	r.HandleFunc("/v1/tenants/{tenantId}/users/{email}/projects", h.GetProjectsForUser).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenantId}/users/{email}/project-ids", h.GetAuthorizedProjectIDs).Methods(http.MethodGet)
	r.HandleFunc("/v1/tenants/{tenantId}/users/{userId}/project-authorizations", h.UpdateUserProjects).Methods(http.MethodPut)
	r.HandleFunc("/v1/api-keys/{apiKey}/tenant-id", h.GetTenantIDByKey).Methods(http.MethodGet)
}

type postProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	UserEmail   string `json:"userEmail"`
}

type putProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Enabled     bool   `json:"enabled"`
	Version     int    `json:"version"`
	UserEmail   string `json:"userEmail"`
}

type deleteProjectRequest struct {
	UserEmail string `json:"userEmail"`
}

type resetKeyRequest struct {
	Version   int    `json:"version"`
	UserEmail string `json:"userEmail"`
}

type updateUserProjectsRequest struct {
	Email     string   `json:"email"`
	Added     []string `json:"added"`
	Removed   []string `json:"removed"`
	UserEmail string   `json:"userEmail"`
}

type projectResponse struct {
	ProjectID     string `json:"projectId"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Enabled       bool   `json:"enabled"`
	Version       int    `json:"version"`
	LiveKeyPrefix string `json:"liveKeyPrefix"`
	TestKeyPrefix string `json:"testKeyPrefix"`
	ProjKeyPrefix string `json:"projKeyPrefix"`
	LiveKey       string `json:"liveKey,omitempty"`
	TestKey       string `json:"testKey,omitempty"`
	ProjKey       string `json:"projKey,omitempty"`
}

func toProjectResponse(p model.Project, version int) projectResponse {
	return projectResponse{
		ProjectID:     p.ProjectID.String(),
		Name:          p.Name,
		Description:   p.Description,
		Enabled:       p.Enabled,
		Version:       version,
		LiveKeyPrefix: p.LiveKeyPrefix,
		TestKeyPrefix: p.TestKeyPrefix,
		ProjKeyPrefix: p.ProjKeyPrefix,
	}
}

// CreateProject handles POST /v1/tenants/{tenantId}/projects. The response
// is the only place the cleartext keys ever appear.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenantId"]
	requestID := r.Header.Get("X-Request-ID")

	var req postProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.WriteValidationError(w, "malformed request body", requestID)
		return
	}
	if req.Name == "" || req.UserEmail == "" {
		h.errors.WriteValidationError(w, "name and userEmail are required", requestID)
		return
	}

	result, err := h.projects.Create(r.Context(), tenantID, req.UserEmail, service.CreateProject{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.Enabled,
	})
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}

	resp := toProjectResponse(result.Project, result.Version)
	resp.LiveKey = result.Keys.LiveKey
	resp.TestKey = result.Keys.TestKey
	resp.ProjKey = result.Keys.ProjKey
	h.writeJSON(w, http.StatusCreated, resp)
}

// UpdateProject handles PUT /v1/tenants/{tenantId}/projects/{projectId}.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := r.Header.Get("X-Request-ID")

	projectID, err := uuid.Parse(vars["projectId"])
	if err != nil {
		h.errors.WriteValidationError(w, "projectId is not a valid uuid", requestID)
		return
	}

	var req putProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.WriteValidationError(w, "malformed request body", requestID)
		return
	}
	if req.Name == "" || req.UserEmail == "" {
		h.errors.WriteValidationError(w, "name and userEmail are required", requestID)
		return
	}

	result, err := h.projects.Update(r.Context(), vars["tenantId"], req.UserEmail, projectID, req.Version, service.UpdateProject{
		Name:        req.Name,
		Description: req.Description,
		Enabled:     req.Enabled,
	})
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toProjectResponse(result.Project, result.Version))
}

// DeleteProject handles DELETE /v1/tenants/{tenantId}/projects/{projectId}.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := r.Header.Get("X-Request-ID")

	projectID, err := uuid.Parse(vars["projectId"])
	if err != nil {
		h.errors.WriteValidationError(w, "projectId is not a valid uuid", requestID)
		return
	}

	var req deleteProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.WriteValidationError(w, "malformed request body", requestID)
		return
	}
	if req.UserEmail == "" {
		h.errors.WriteValidationError(w, "userEmail is required", requestID)
		return
	}

	if _, err := h.projects.SoftDelete(r.Context(), vars["tenantId"], req.UserEmail, projectID); err != nil {
		h.errors.WriteError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ResetKey handles PUT .../projects/{projectId}/keys/{purpose}/reset.
func (h *Handlers) ResetKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := r.Header.Get("X-Request-ID")

	projectID, err := uuid.Parse(vars["projectId"])
	if err != nil {
		h.errors.WriteValidationError(w, "projectId is not a valid uuid", requestID)
		return
	}
	purpose, ok := model.ParseKeyPurpose(vars["purpose"])
	if !ok {
		h.errors.WriteValidationError(w, "invalid key purpose, expected live, test, or proj", requestID)
		return
	}

	var req resetKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.WriteValidationError(w, "malformed request body", requestID)
		return
	}
	if req.UserEmail == "" {
		h.errors.WriteValidationError(w, "userEmail is required", requestID)
		return
	}

	result, err := h.projects.ResetKey(r.Context(), vars["tenantId"], req.UserEmail, projectID, purpose, req.Version)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}

	resp := toProjectResponse(result.Project, result.Version)
	switch purpose {
	case model.KeyPurposeLive:
		resp.LiveKey = result.NewKey
	case model.KeyPurposeTest:
		resp.TestKey = result.NewKey
	case model.KeyPurposeProj:
		resp.ProjKey = result.NewKey
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// ListProjects handles GET /v1/tenants/{tenantId}/projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.AllProjects(r.Context(), mux.Vars(r)["tenantId"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProjectResponses(projects))
}

// GetProjectsForUser handles GET /v1/tenants/{tenantId}/users/{email}/projects.
func (h *Handlers) GetProjectsForUser(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	projects, err := h.projects.ProjectsForUser(r.Context(), vars["tenantId"], vars["email"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProjectResponses(projects))
}

// GetProjectByName handles GET /v1/tenants/{tenantId}/projects/by-name/{name}.
func (h *Handlers) GetProjectByName(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	vp, err := h.projects.ProjectByName(r.Context(), vars["tenantId"], vars["name"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProjectResponse(vp.Project, vp.Version))
}

// GetProjectByKey handles GET /v1/tenants/{tenantId}/projects/by-key/{apiKey}.
func (h *Handlers) GetProjectByKey(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	vp, err := h.projects.ProjectByKey(r.Context(), vars["tenantId"], vars["apiKey"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toProjectResponse(vp.Project, vp.Version))
}

// GetAuthorizedProjectIDs handles GET .../users/{email}/project-ids.
func (h *Handlers) GetAuthorizedProjectIDs(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ids, err := h.projects.AuthorizedProjectIDs(r.Context(), vars["tenantId"], vars["email"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}

	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	h.writeJSON(w, http.StatusOK, map[string][]string{"projectIds": out})
}

// UpdateUserProjects handles PUT .../users/{userId}/project-authorizations.
func (h *Handlers) UpdateUserProjects(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	requestID := r.Header.Get("X-Request-ID")

	var req updateUserProjectsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errors.WriteValidationError(w, "malformed request body", requestID)
		return
	}
	if req.Email == "" || req.UserEmail == "" {
		h.errors.WriteValidationError(w, "email and userEmail are required", requestID)
		return
	}

	added, invalid := parseProjectIDs(req.Added)
	removed, alsoInvalid := parseProjectIDs(req.Removed)
	invalid = append(invalid, alsoInvalid...)

	err := h.projects.UpdateUserProjects(r.Context(), vars["tenantId"], vars["userId"], req.Email, added, removed, req.UserEmail)
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"status":            "updated",
		"invalidProjectIds": invalid,
	})
}

// GetTenantIDByKey handles GET /v1/api-keys/{apiKey}/tenant-id, the cached
// authentication hot path.
func (h *Handlers) GetTenantIDByKey(w http.ResponseWriter, r *http.Request) {
	tenantID, err := h.projects.TenantIDByKey(r.Context(), mux.Vars(r)["apiKey"])
	if err != nil {
		h.errors.WriteError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"tenantId": tenantID})
}

func toProjectResponses(projects []model.VersionedProject) []projectResponse {
	out := make([]projectResponse, 0, len(projects))
	for _, vp := range projects {
		out = append(out, toProjectResponse(vp.Project, vp.Version))
	}
	return out
}

func parseProjectIDs(raw []string) ([]uuid.UUID, []string) {
	ids := make([]uuid.UUID, 0, len(raw))
	invalid := make([]string, 0)
	for _, s := range raw {
		id, err := uuid.Parse(s)
		if err != nil {
			invalid = append(invalid, s)
			continue
		}
		ids = append(ids, id)
	}
	return ids, invalid
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
