// =============================================================================
// 🎭 Mock Runner - 脚本化任务执行器
// =============================================================================
// 按任务 ID 查脚本执行，未命中脚本时走默认行为；记录全部调用
// 供断言使用
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/teamflow/engine"
	"github.com/BaSui01/teamflow/task"
)

// Script 单个任务的脚本
type Script func(ctx context.Context, inv *engine.Invocation) (*task.Result, error)

// ScriptedRunner 脚本化 Runner
type ScriptedRunner struct {
	mu          sync.Mutex
	scripts     map[string]Script
	fallback    Script
	invocations []*engine.Invocation
}

// NewScriptedRunner 创建脚本化 Runner；默认行为是回显任务 ID
func NewScriptedRunner() *ScriptedRunner {
	return &ScriptedRunner{
		scripts: make(map[string]Script),
		fallback: func(_ context.Context, inv *engine.Invocation) (*task.Result, error) {
			return &task.Result{Output: "out-" + inv.Task.ID}, nil
		},
	}
}

// Script 为指定任务注册脚本
func (r *ScriptedRunner) Script(taskID string, script Script) *ScriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scripts[taskID] = script
	return r
}

// Fallback 设置未命中脚本时的默认行为
func (r *ScriptedRunner) Fallback(script Script) *ScriptedRunner {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = script
	return r
}

// Invoke implements engine.Runner.
func (r *ScriptedRunner) Invoke(ctx context.Context, inv *engine.Invocation) (*task.Result, error) {
	r.mu.Lock()
	r.invocations = append(r.invocations, inv)
	script, ok := r.scripts[inv.Task.ID]
	if !ok {
		script = r.fallback
	}
	r.mu.Unlock()
	return script(ctx, inv)
}

// Invocations 返回记录的全部调用
func (r *ScriptedRunner) Invocations() []*engine.Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*engine.Invocation(nil), r.invocations...)
}

// CallCount 返回某任务被调用的次数
func (r *ScriptedRunner) CallCount(taskID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, inv := range r.invocations {
		if inv.Task.ID == taskID {
			n++
		}
	}
	return n
}

// FailingRunner 总是返回给定错误的 Runner
func FailingRunner(err error) engine.Runner {
	return engine.RunnerFunc(func(_ context.Context, _ *engine.Invocation) (*task.Result, error) {
		return nil, err
	})
}

// StancedRunner 每个智能体返回固定立场，驱动冲突场景
func StancedRunner(stances map[string]string, confidence float64) engine.Runner {
	return engine.RunnerFunc(func(_ context.Context, inv *engine.Invocation) (*task.Result, error) {
		return &task.Result{
			Stance:     stances[inv.AgentID],
			Confidence: confidence,
		}, nil
	})
}
