package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/teamflow/profile"
	"github.com/BaSui01/teamflow/types"
)

// =============================================================================
// Agent Profile Handler
// =============================================================================

// AgentHandler 智能体档案管理 handler
type AgentHandler struct {
	registry *profile.Registry
	logger   *zap.Logger
}

// NewAgentHandler creates an agent profile handler.
func NewAgentHandler(registry *profile.Registry, logger *zap.Logger) *AgentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentHandler{
		registry: registry,
		logger:   logger.With(zap.String("handler", "agent")),
	}
}

// =============================================================================
// HTTP Handlers
// =============================================================================

// HandleRegisterAgent registers a new agent profile, or publishes a new
// version when the agent is already registered.
// @Summary Register agent profile
// @Tags agent
// @Accept json
// @Produce json
// @Param request body profile.AgentProfile true "Agent profile"
// @Success 201 {object} Response{data=profile.AgentProfile} "Registered"
// @Success 200 {object} Response{data=profile.AgentProfile} "Updated"
// @Failure 400 {object} Response "Invalid profile"
// @Security ApiKeyAuth
// @Router /api/v1/agents [post]
func (h *AgentHandler) HandleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var p profile.AgentProfile
	if err := DecodeJSONBody(w, r, &p, h.logger); err != nil {
		return
	}

	err := h.registry.Register(&p)
	if err == nil {
		stored, _ := h.registry.Get(p.ID)
		h.logger.Info("agent profile registered", zap.String("agent_id", p.ID))
		WriteCreated(w, stored)
		return
	}

	if strings.Contains(err.Error(), "already registered") {
		if err := h.registry.Update(&p); err != nil {
			WriteError(w, types.NewError(types.ErrConfigInvalid, err.Error()).
				WithHTTPStatus(http.StatusBadRequest), h.logger)
			return
		}
		stored, _ := h.registry.Get(p.ID)
		h.logger.Info("agent profile updated",
			zap.String("agent_id", p.ID),
			zap.Int("version", stored.Version),
		)
		WriteSuccess(w, stored)
		return
	}

	WriteError(w, types.NewError(types.ErrConfigInvalid, err.Error()).
		WithHTTPStatus(http.StatusBadRequest), h.logger)
}

// HandleListAgents lists the latest version of every registered profile.
// @Summary List agent profiles
// @Tags agent
// @Produce json
// @Success 200 {object} Response{data=[]profile.AgentProfile} "Profiles"
// @Security ApiKeyAuth
// @Router /api/v1/agents [get]
func (h *AgentHandler) HandleListAgents(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, h.registry.List())
}

// HandleGetAgent returns one agent profile. Query parameters select a
// specific version (?version=N) or the full version history (?history=true).
// @Summary Get agent profile
// @Tags agent
// @Produce json
// @Param id path string true "Agent ID"
// @Param version query int false "Profile version"
// @Param history query bool false "Return full version history"
// @Success 200 {object} Response{data=profile.AgentProfile} "Profile"
// @Failure 404 {object} Response "Agent not found"
// @Security ApiKeyAuth
// @Router /api/v1/agents/{id} [get]
func (h *AgentHandler) HandleGetAgent(w http.ResponseWriter, r *http.Request) {
	agentID := extractAgentID(r)
	if agentID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "agent ID is required", h.logger)
		return
	}

	if r.URL.Query().Get("history") == "true" {
		history, err := h.registry.History(agentID)
		if err != nil {
			WriteError(w, types.NewError(types.ErrNotFound, err.Error()).
				WithHTTPStatus(http.StatusNotFound), h.logger)
			return
		}
		WriteSuccess(w, history)
		return
	}

	if v := r.URL.Query().Get("version"); v != "" {
		version, err := strconv.Atoi(v)
		if err != nil {
			WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "version must be an integer", h.logger)
			return
		}
		p, err := h.registry.GetVersion(agentID, version)
		if err != nil {
			WriteError(w, types.NewError(types.ErrNotFound, err.Error()).
				WithHTTPStatus(http.StatusNotFound), h.logger)
			return
		}
		WriteSuccess(w, p)
		return
	}

	p, err := h.registry.Get(agentID)
	if err != nil {
		WriteError(w, types.NewError(types.ErrNotFound, err.Error()).
			WithHTTPStatus(http.StatusNotFound), h.logger)
		return
	}
	WriteSuccess(w, p)
}

// HandleTeamBalance reports the compatibility balance of a prospective team.
// The team is selected with ?ids=a,b,c; unknown agents are a 404.
// @Summary Team balance report
// @Tags agent
// @Produce json
// @Param ids query string true "Comma-separated agent IDs"
// @Success 200 {object} Response{data=profile.TeamBalanceReport} "Balance report"
// @Failure 404 {object} Response "Agent not found"
// @Security ApiKeyAuth
// @Router /api/v1/agents/balance [get]
func (h *AgentHandler) HandleTeamBalance(w http.ResponseWriter, r *http.Request) {
	idsParam := r.URL.Query().Get("ids")
	if idsParam == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "query parameter 'ids' is required", h.logger)
		return
	}

	ids := strings.Split(idsParam, ",")
	profiles := make([]*profile.AgentProfile, 0, len(ids))
	for _, id := range ids {
		p, err := h.registry.Get(strings.TrimSpace(id))
		if err != nil {
			WriteError(w, types.NewError(types.ErrNotFound, err.Error()).
				WithHTTPStatus(http.StatusNotFound), h.logger)
			return
		}
		profiles = append(profiles, p)
	}

	WriteSuccess(w, profile.TeamBalance(profiles))
}

// extractAgentID extracts the agent ID from the URL path.
// Supports both /api/v1/agents/{id} (PathValue) and prefix trimming.
func extractAgentID(r *http.Request) string {
	// Try Go 1.22+ PathValue first
	if id := r.PathValue("id"); id != "" {
		return id
	}
	// Fallback: extract from URL path by trimming the /api/v1/agents/ prefix
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	if path != "" && path != r.URL.Path && !strings.Contains(path, "/") {
		return path
	}
	return ""
}
