package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/teamflow/config"
	"github.com/BaSui01/teamflow/engine"
	"github.com/BaSui01/teamflow/internal/ctxkeys"
	"github.com/BaSui01/teamflow/internal/tlsutil"
	"github.com/BaSui01/teamflow/task"
)

// =============================================================================
// 🤖 Runner 装配
// =============================================================================
// 推理内部（提示词、模型调用）在引擎之外：配置了 runner_endpoint 时，
// 调用被转发到外部智能体服务；未配置时使用 dry-run 回显执行器，
// 便于本地验证任务图与编排语义。

// newRunner 根据配置选择 Runner 实现
func newRunner(cfg config.EngineConfig, logger *zap.Logger) engine.Runner {
	if cfg.RunnerEndpoint != "" {
		return newHTTPRunner(cfg.RunnerEndpoint, cfg.RunnerTimeout, logger)
	}
	logger.Info("runner endpoint not configured, using dry-run runner")
	return &dryRunRunner{}
}

// httpRunner 将调用以 JSON POST 到外部智能体服务
type httpRunner struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

func newHTTPRunner(endpoint string, timeout time.Duration, logger *zap.Logger) *httpRunner {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &httpRunner{
		endpoint: endpoint,
		client:   tlsutil.SecureHTTPClient(timeout),
		logger:   logger.With(zap.String("component", "http_runner")),
	}
}

// Invoke implements engine.Runner.
func (r *httpRunner) Invoke(ctx context.Context, inv *engine.Invocation) (*task.Result, error) {
	body, err := json.Marshal(inv)
	if err != nil {
		return nil, fmt.Errorf("marshal invocation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build runner request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if id, ok := ctxkeys.ExecutionID(ctx); ok {
		req.Header.Set("X-Execution-ID", id)
	}
	if id, ok := ctxkeys.TaskID(ctx); ok {
		req.Header.Set("X-Task-ID", id)
	}
	if id, ok := ctxkeys.AgentID(ctx); ok {
		req.Header.Set("X-Agent-ID", id)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("invoke runner endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		r.logger.Warn("runner endpoint returned non-OK status",
			zap.Int("status", resp.StatusCode),
			zap.String("task_id", inv.Task.ID),
		)
		return nil, fmt.Errorf("runner endpoint status %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var result task.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode runner response: %w", err)
	}
	return &result, nil
}

// dryRunRunner 回显执行器：不做任何推理，直接返回任务描述与输入，
// 用于演示和本地冒烟
type dryRunRunner struct{}

// Invoke implements engine.Runner.
func (d *dryRunRunner) Invoke(ctx context.Context, inv *engine.Invocation) (*task.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return &task.Result{
		TaskID:  inv.Task.ID,
		AgentID: inv.AgentID,
		Status:  task.StatusCompleted,
		Output: map[string]any{
			"dry_run":     true,
			"description": inv.Task.Description,
			"inputs":      inv.Inputs,
		},
	}, nil
}
