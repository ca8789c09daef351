package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/teamflow/conflict"
	"github.com/BaSui01/teamflow/engine"
	"github.com/BaSui01/teamflow/persistence"
	"github.com/BaSui01/teamflow/stream"
	"github.com/BaSui01/teamflow/types"
)

// =============================================================================
// 🤝 团队编排 Handler
// =============================================================================

// Orchestrator 编排引擎的操作面；*engine.Engine 实现该接口
type Orchestrator interface {
	Start(ctx context.Context, cfg *engine.TeamConfiguration) (string, error)
	GetExecution(id string) (*engine.Execution, error)
	ListExecutions() []*engine.Execution
	Cancel(ctx context.Context, id string) error
	Resolve(ctx context.Context, executionID, conflictID string, resolution *conflict.Resolution) error
	Subscribe(id string) (<-chan engine.Event, func(), error)
}

// TeamHandler 团队执行处理器
type TeamHandler struct {
	engine  Orchestrator
	history persistence.ExecutionStore // 可空；提供已归档执行的查询
	logger  *zap.Logger
}

// NewTeamHandler 创建团队执行处理器
func NewTeamHandler(orchestrator Orchestrator, history persistence.ExecutionStore, logger *zap.Logger) *TeamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TeamHandler{
		engine:  orchestrator,
		history: history,
		logger:  logger.With(zap.String("component", "team_handler")),
	}
}

// StartTeamResponse 启动执行的响应
type StartTeamResponse struct {
	ExecutionID string `json:"execution_id"`
}

// ResolveConflictRequest 外部裁决请求体
type ResolveConflictRequest struct {
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail,omitempty"`
	ResolvedBy string `json:"resolved_by,omitempty"`
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleStartTeam 处理 POST /api/v1/teams
// @Summary 启动团队执行
// @Description 校验团队配置并异步启动执行
// @Tags 团队
// @Accept json
// @Produce json
// @Success 201 {object} Response{data=StartTeamResponse}
// @Failure 422 {object} Response "配置非法"
// @Router /api/v1/teams [post]
func (h *TeamHandler) HandleStartTeam(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrConfigInvalid, "method not allowed", h.logger)
		return
	}
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var cfg engine.TeamConfiguration
	if err := DecodeJSONBody(w, r, &cfg, h.logger); err != nil {
		return
	}

	id, err := h.engine.Start(r.Context(), &cfg)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("execution started",
		zap.String("execution_id", id),
		zap.String("mode", string(cfg.Mode)),
	)
	WriteCreated(w, StartTeamResponse{ExecutionID: id})
}

// HandleGetExecution 处理 GET /api/v1/executions/{id}
// @Summary 查询执行快照
// @Tags 团队
// @Produce json
// @Success 200 {object} Response{data=engine.Execution}
// @Failure 404 {object} Response
// @Router /api/v1/executions/{id} [get]
func (h *TeamHandler) HandleGetExecution(w http.ResponseWriter, r *http.Request) {
	id := executionID(r)
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "missing execution id", h.logger)
		return
	}

	exec, err := h.engine.GetExecution(id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, exec)
}

// HandleListExecutions 处理 GET /api/v1/executions
// @Summary 列出执行
// @Description 默认列出引擎内执行；history=true 时查询持久化归档
// @Tags 团队
// @Produce json
// @Success 200 {object} Response
// @Router /api/v1/executions [get]
func (h *TeamHandler) HandleListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("history") == "true" && h.history != nil {
		filter := persistence.ListFilter{
			Status: q.Get("status"),
			Mode:   q.Get("mode"),
		}
		if v := q.Get("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Limit = n
			}
		}
		if v := q.Get("offset"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				filter.Offset = n
			}
		}
		records, err := h.history.ListExecutions(r.Context(), filter)
		if err != nil {
			WriteError(w, err, h.logger)
			return
		}
		WriteSuccess(w, records)
		return
	}

	executions := h.engine.ListExecutions()
	if status := q.Get("status"); status != "" {
		filtered := executions[:0]
		for _, exec := range executions {
			if string(exec.Status) == status {
				filtered = append(filtered, exec)
			}
		}
		executions = filtered
	}
	WriteSuccess(w, executions)
}

// HandleCancelExecution 处理 POST /api/v1/executions/{id}/cancel
// @Summary 取消执行
// @Tags 团队
// @Produce json
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Failure 409 {object} Response "执行已终止"
// @Router /api/v1/executions/{id}/cancel [post]
func (h *TeamHandler) HandleCancelExecution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrConfigInvalid, "method not allowed", h.logger)
		return
	}

	id := executionID(r)
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "missing execution id", h.logger)
		return
	}

	if err := h.engine.Cancel(r.Context(), id); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	exec, err := h.engine.GetExecution(id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteSuccess(w, exec)
}

// HandleResolveConflict 处理 POST /api/v1/executions/{id}/conflicts/{conflict_id}/resolve
// @Summary 注入外部裁决
// @Description 解除 conflict_pending 的执行
// @Tags 团队
// @Accept json
// @Produce json
// @Success 200 {object} Response
// @Failure 404 {object} Response
// @Router /api/v1/executions/{id}/conflicts/{conflict_id}/resolve [post]
func (h *TeamHandler) HandleResolveConflict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteErrorMessage(w, http.StatusMethodNotAllowed, types.ErrConfigInvalid, "method not allowed", h.logger)
		return
	}

	id := executionID(r)
	conflictID := r.PathValue("conflict_id")
	if id == "" || conflictID == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "missing execution or conflict id", h.logger)
		return
	}

	var req ResolveConflictRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Outcome == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "outcome is required", h.logger)
		return
	}

	resolution := &conflict.Resolution{
		Strategy:   conflict.StrategyEscalate,
		Outcome:    req.Outcome,
		Detail:     req.Detail,
		ResolvedBy: req.ResolvedBy,
	}
	if err := h.engine.Resolve(r.Context(), id, conflictID, resolution); err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("conflict resolved externally",
		zap.String("execution_id", id),
		zap.String("conflict_id", conflictID),
	)
	WriteSuccess(w, resolution)
}

// HandleEvents 处理 GET /api/v1/executions/{id}/events（WebSocket）
// @Summary 订阅执行事件流
// @Description 升级为 WebSocket 并推送执行事件，执行结束后服务端正常关闭
// @Tags 团队
// @Router /api/v1/executions/{id}/events [get]
func (h *TeamHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	id := executionID(r)
	if id == "" {
		WriteErrorMessage(w, http.StatusBadRequest, types.ErrConfigInvalid, "missing execution id", h.logger)
		return
	}

	events, cancel, err := h.engine.Subscribe(id)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	defer cancel()

	conn, err := stream.Accept(w, r, h.logger)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				// 执行结束，正常关闭
				return
			}
			if err := conn.WriteEvent(ctx, ev); err != nil {
				h.logger.Debug("event write failed, dropping subscriber",
					zap.String("execution_id", id),
					zap.Error(err),
				)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// executionID 提取路径中的执行 ID。
// 兼容 /api/v1/executions/{id}（PathValue）与前缀裁剪两种路由。
func executionID(r *http.Request) string {
	if id := r.PathValue("id"); id != "" {
		return id
	}
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/executions/")
	if i := strings.IndexByte(path, '/'); i >= 0 {
		path = path[:i]
	}
	return path
}
