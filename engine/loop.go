package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/teamflow/conflict"
	"github.com/BaSui01/teamflow/internal/ctxkeys"
	"github.com/BaSui01/teamflow/profile"
	"github.com/BaSui01/teamflow/task"
)

// runExecution 是执行的唯一调度循环：派发、汇聚、恢复、裁决
// 全部经过这里，避免并发修改执行状态
func (e *Engine) runExecution(st *execState) {
	defer e.wg.Done()

	ctx := st.ctx
	defer st.cancel()

	_, span := e.tracer.Start(context.Background(), "engine.execution")
	span.SetAttributes(
		attribute.String("execution.id", st.id),
		attribute.String("execution.mode", string(st.config.Mode)),
	)
	defer span.End()

	st.mu.Lock()
	st.status = ExecutionRunning
	st.startedAt = time.Now()
	st.mu.Unlock()

	if e.metrics != nil {
		e.metrics.RecordExecutionStarted()
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventExecutionStarted})
	e.publishTaskStates(st)
	e.persist(st)

	concurrency := st.config.concurrency(st.spec)
	outstanding := 0

loop:
	for {
		if ctx.Err() != nil {
			break
		}

		if !st.hasPending() {
			outstanding += e.dispatchReady(ctx, st, concurrency-outstanding)
		}

		if outstanding == 0 && !st.hasPending() && st.sched.Done() {
			break
		}

		select {
		case out := <-st.outcomeCh:
			outstanding--
			e.applyOutcome(ctx, st, out)
			e.persist(st)
		case req := <-st.resolveCh:
			req.errCh <- e.applyExternalResolution(ctx, st, req)
			e.persist(st)
		case <-ctx.Done():
			break loop
		}
	}

	e.finalize(ctx, st)
}

// dispatchReady 派发至多 slots 个就绪任务，返回实际派发数
func (e *Engine) dispatchReady(ctx context.Context, st *execState, slots int) int {
	if slots <= 0 {
		return 0
	}

	ready := st.sched.Ready()
	dispatched := 0
	for _, t := range ready {
		if dispatched >= slots {
			break
		}
		if e.dispatchTask(ctx, st, t) {
			dispatched++
		}
	}
	return dispatched
}

// dispatchTask 按模式派发单个任务；返回是否产生了在途调用
func (e *Engine) dispatchTask(ctx context.Context, st *execState, t *task.Task) bool {
	st.mu.Lock()
	st.attempts[t.ID]++
	attempt := st.attempts[t.ID]
	backoff := st.backoffs[t.ID]
	delete(st.backoffs, t.ID)
	delete(st.readySeen, t.ID)
	st.mu.Unlock()

	if st.spec.dispatch == dispatchFanOut {
		return e.dispatchFanOut(ctx, st, t, attempt, backoff)
	}
	return e.dispatchSingle(ctx, st, t, attempt, backoff)
}

// dispatchSingle 选出一个智能体并提交调用
func (e *Engine) dispatchSingle(ctx context.Context, st *execState, t *task.Task, attempt int, backoff time.Duration) bool {
	agentID, err := e.pickAgent(ctx, st, t)
	if err != nil {
		// 无可用智能体按任务失败处理，走恢复策略
		if markErr := st.sched.MarkAssigned(t.ID, ""); markErr != nil {
			e.logger.Warn("mark assigned failed", zap.String("task_id", t.ID), zap.Error(markErr))
			return false
		}
		_ = st.sched.MarkStarted(t.ID)
		now := time.Now()
		e.applyOutcome(ctx, st, &invocationOutcome{
			taskID: t.ID,
			result: &task.Result{
				TaskID:     t.ID,
				Status:     task.StatusFailed,
				Error:      err.Error(),
				Attempts:   attempt,
				StartedAt:  now,
				FinishedAt: now,
			},
		})
		return false
	}

	if err := st.sched.MarkAssigned(t.ID, agentID); err != nil {
		e.logger.Warn("mark assigned failed", zap.String("task_id", t.ID), zap.Error(err))
		return false
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskAssigned, TaskID: t.ID, AgentID: agentID})

	if err := st.sched.MarkStarted(t.ID); err != nil {
		e.logger.Warn("mark started failed", zap.String("task_id", t.ID), zap.Error(err))
		return false
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskStarted, TaskID: t.ID, AgentID: agentID})

	st.mu.Lock()
	st.inProgress[agentID]++
	st.mu.Unlock()

	inv := &Invocation{
		ExecutionID: st.id,
		AgentID:     agentID,
		Task:        t,
		Inputs:      st.sched.DependencyOutputs(t.ID),
		Attempt:     attempt,
		Team:        st.session,
	}

	run := func(workCtx context.Context) error {
		st.outcomeCh <- &invocationOutcome{
			taskID:  t.ID,
			agentID: agentID,
			result:  e.invoke(workCtx, st, inv, backoff),
		}
		return nil
	}
	if err := e.pool.Submit(ctx, run); err != nil {
		go func() { _ = run(ctx) }()
	}
	return true
}

// pickAgent 解析任务的执行者：fallback 改派 > 主管委派 > 分配策略
func (e *Engine) pickAgent(ctx context.Context, st *execState, t *task.Task) (string, error) {
	st.mu.Lock()
	forced := st.forced[t.ID]
	delete(st.forced, t.ID)
	st.mu.Unlock()
	if forced != "" {
		return forced, nil
	}

	candidates := e.workerProfiles(st)
	if st.config.Mode == ModeHierarchical {
		if delegator, ok := e.runner.(Delegator); ok {
			ids := make([]string, 0, len(candidates))
			for _, p := range candidates {
				ids = append(ids, p.ID)
			}
			picked, err := delegator.Delegate(ctx, st.config.SupervisorID, t, ids)
			if err != nil {
				return "", err
			}
			if picked != "" {
				return picked, nil
			}
			// 空串回退到技能匹配
		}
	}

	return st.assigner.Pick(t, candidates, st)
}

// workerProfiles 返回候选执行者档案；hierarchical 下主管只
// 委派与复核，不亲自执行（单人团队除外）
func (e *Engine) workerProfiles(st *execState) []*profile.AgentProfile {
	out := make([]*profile.AgentProfile, 0, len(st.config.AgentIDs))
	for _, id := range st.config.AgentIDs {
		if st.config.Mode == ModeHierarchical && id == st.config.SupervisorID && len(st.config.AgentIDs) > 1 {
			continue
		}
		p, err := e.registry.Get(id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}

// invoke 执行一次 Runner 调用并规范化结果
func (e *Engine) invoke(ctx context.Context, st *execState, inv *Invocation, backoff time.Duration) *task.Result {
	if backoff > 0 {
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return failedResult(inv, time.Now(), err)
	}

	workCtx := ctx
	if st.config.TaskTimeout > 0 {
		var cancel context.CancelFunc
		workCtx, cancel = context.WithTimeout(ctx, st.config.TaskTimeout)
		defer cancel()
	}

	invCtx, span := e.tracer.Start(workCtx, "engine.invoke")
	span.SetAttributes(
		attribute.String("task.id", inv.Task.ID),
		attribute.String("agent.id", inv.AgentID),
		attribute.Int("attempt", inv.Attempt),
	)
	defer span.End()

	// 调用上下文带上标识，供外部 Runner 与日志链路追踪使用
	invCtx = ctxkeys.WithExecutionID(invCtx, st.id)
	invCtx = ctxkeys.WithTaskID(invCtx, inv.Task.ID)
	invCtx = ctxkeys.WithAgentID(invCtx, inv.AgentID)

	started := time.Now()
	res, err := e.runner.Invoke(invCtx, inv)
	if err != nil {
		return failedResult(inv, started, err)
	}
	res = normalizeResult(inv, res, started)

	if st.config.Mode == ModeHierarchical && res.Status == task.StatusCompleted {
		if reviewer, ok := e.runner.(Reviewer); ok {
			approved, reason, reviewErr := reviewer.Review(ctx, st.config.SupervisorID, res)
			if reviewErr != nil {
				return failedResult(inv, started, fmt.Errorf("supervisor review: %w", reviewErr))
			}
			if !approved {
				res.Status = task.StatusFailed
				res.Error = "rejected by supervisor: " + reason
			}
		}
	}
	return res
}

// dispatchFanOut 将任务扇出到全队
func (e *Engine) dispatchFanOut(ctx context.Context, st *execState, t *task.Task, attempt int, backoff time.Duration) bool {
	if err := st.sched.MarkAssigned(t.ID, "team"); err != nil {
		e.logger.Warn("mark assigned failed", zap.String("task_id", t.ID), zap.Error(err))
		return false
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskAssigned, TaskID: t.ID, AgentID: "team"})
	if err := st.sched.MarkStarted(t.ID); err != nil {
		e.logger.Warn("mark started failed", zap.String("task_id", t.ID), zap.Error(err))
		return false
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskStarted, TaskID: t.ID, AgentID: "team"})

	agents := append([]string(nil), st.config.AgentIDs...)
	st.mu.Lock()
	for _, id := range agents {
		st.inProgress[id]++
	}
	st.mu.Unlock()

	inputs := st.sched.DependencyOutputs(t.ID)

	go func() {
		results := make([]*task.Result, len(agents))

		fanCtx, cancelAll := context.WithCancel(ctx)
		defer cancelAll()

		g, _ := errgroup.WithContext(fanCtx)
		for i, agentID := range agents {
			g.Go(func() error {
				inv := &Invocation{
					ExecutionID: st.id,
					AgentID:     agentID,
					Task:        t,
					Inputs:      inputs,
					Attempt:     attempt,
					Team:        st.session,
				}
				res := e.invoke(fanCtx, st, inv, backoff)
				results[i] = res
				if st.spec.completion == completionFirstSuccess && res.Status == task.StatusCompleted {
					// 首个成功者出现后取消其余调用
					cancelAll()
				}
				return nil
			})
		}
		_ = g.Wait()

		st.outcomeCh <- &invocationOutcome{taskID: t.ID, results: results}
	}()
	return true
}

// applyOutcome 在调度循环内落地一次派发的终点
func (e *Engine) applyOutcome(ctx context.Context, st *execState, out *invocationOutcome) {
	if out.results != nil {
		e.applyFanOutOutcome(ctx, st, out)
		return
	}

	st.mu.Lock()
	if out.agentID != "" {
		st.inProgress[out.agentID]--
		st.busy[out.agentID] += out.result.Duration
	}
	st.mu.Unlock()

	if out.result.Status == task.StatusCompleted {
		e.completeTask(ctx, st, out.result)
	} else {
		e.failTask(ctx, st, out.result)
	}
}

// applyFanOutOutcome 汇聚扇出结果：冲突检测、裁决、合并
func (e *Engine) applyFanOutOutcome(ctx context.Context, st *execState, out *invocationOutcome) {
	st.mu.Lock()
	for _, id := range st.config.AgentIDs {
		st.inProgress[id]--
	}
	for _, r := range out.results {
		if r != nil {
			st.busy[r.AgentID] += r.Duration
		}
	}
	st.mu.Unlock()

	var successes, failures []*task.Result
	for _, r := range out.results {
		if r == nil {
			continue
		}
		if r.Status == task.StatusCompleted {
			successes = append(successes, r)
		} else {
			failures = append(failures, r)
		}
	}

	if len(successes) == 0 {
		e.failTask(ctx, st, aggregateFailure(out.taskID, failures))
		return
	}

	if st.spec.completion == completionFirstSuccess {
		winner := firstSuccess(out.results)
		winner.TaskID = out.taskID
		e.completeTask(ctx, st, winner)
		return
	}

	c := e.resolver.Detect(st.id, out.taskID, successes)
	if c == nil {
		e.completeTask(ctx, st, e.mergeResults(st, out.taskID, successes))
		return
	}

	st.mu.Lock()
	st.conflicts = append(st.conflicts, c)
	st.mu.Unlock()
	e.broker.publish(Event{ExecutionID: st.id, Type: EventConflictDetected, TaskID: out.taskID, ConflictID: c.ID})

	strategy := st.config.conflictStrategy(st.spec)
	resolution := e.resolver.Resolve(c, strategy, st.config.SupervisorID)

	st.mu.Lock()
	st.resolutions = append(st.resolutions, resolution)
	st.mu.Unlock()

	if e.metrics != nil {
		outcome := "resolved"
		if resolution.Pending {
			outcome = "escalated"
		}
		e.metrics.RecordConflict(string(strategy), outcome)
	}

	if resolution.Pending {
		// 任务保持 in_progress，执行转入 conflict_pending 等待外部裁决
		st.mu.Lock()
		st.pendings = append(st.pendings, &pendingConflict{
			conflict: c,
			taskID:   out.taskID,
			results:  successes,
		})
		if CanTransitionExecution(st.status, ExecutionConflictPending) {
			st.status = ExecutionConflictPending
		}
		st.mu.Unlock()
		e.logger.Info("conflict escalated, awaiting external resolution",
			zap.String("execution_id", st.id),
			zap.String("conflict_id", c.ID),
			zap.String("task_id", out.taskID),
		)
		return
	}

	e.broker.publish(Event{ExecutionID: st.id, Type: EventConflictResolved, TaskID: out.taskID, ConflictID: c.ID,
		Data: map[string]any{"strategy": string(resolution.Strategy), "outcome": resolution.Outcome}})
	e.completeTask(ctx, st, resolvedResult(out.taskID, resolution, successes))
}

// applyExternalResolution 注入外部裁决并恢复执行
func (e *Engine) applyExternalResolution(ctx context.Context, st *execState, req *externalResolution) error {
	st.mu.Lock()
	idx := -1
	for i, p := range st.pendings {
		if p.conflict.ID == req.conflictID {
			idx = i
			break
		}
	}
	if idx < 0 {
		st.mu.Unlock()
		return notFoundErr("no pending conflict: " + req.conflictID)
	}
	pending := st.pendings[idx]
	st.pendings = append(st.pendings[:idx], st.pendings[idx+1:]...)

	resolution := req.resolution
	resolution.ConflictID = req.conflictID
	resolution.Pending = false
	if resolution.ResolvedAt.IsZero() {
		resolution.ResolvedAt = time.Now()
	}
	pending.conflict.Status = conflict.StatusResolved
	st.resolutions = append(st.resolutions, resolution)

	if len(st.pendings) == 0 && CanTransitionExecution(st.status, ExecutionRunning) {
		st.status = ExecutionRunning
	}
	st.mu.Unlock()

	e.broker.publish(Event{ExecutionID: st.id, Type: EventConflictResolved, TaskID: pending.taskID,
		ConflictID: req.conflictID,
		Data:       map[string]any{"strategy": string(resolution.Strategy), "outcome": resolution.Outcome, "external": true}})

	e.completeTask(ctx, st, resolvedResult(pending.taskID, resolution, pending.results))
	return nil
}

// completeTask 落地成功结果：记录、镜像输出、回灌绩效、派生就绪
func (e *Engine) completeTask(ctx context.Context, st *execState, result *task.Result) {
	if err := st.sched.MarkFinished(result.TaskID, result); err != nil {
		e.logger.Error("mark finished failed", zap.String("task_id", result.TaskID), zap.Error(err))
		return
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskCompleted, TaskID: result.TaskID, AgentID: result.AgentID})

	if e.metrics != nil {
		e.metrics.RecordTask(string(st.config.Mode), string(task.StatusCompleted), result.Duration)
	}

	// 下游任务通过 team 作用域读取上游输出
	if _, err := st.teamMem.PutTeam(ctx, "task:"+result.TaskID+":output",
		fmt.Sprint(result.Output), result.Output); err != nil && ctx.Err() == nil {
		e.logger.Warn("output mirror failed", zap.String("task_id", result.TaskID), zap.Error(err))
	}

	if e.memberAgent(st, result.AgentID) {
		quality := result.Confidence
		if quality <= 0 {
			quality = 1.0
		}
		if err := e.registry.RecordOutcome(result.AgentID, true, quality); err != nil {
			e.logger.Debug("record outcome failed", zap.String("agent_id", result.AgentID), zap.Error(err))
		}
	}

	e.publishTaskStates(st)
}

// failTask 落地失败结果并执行恢复策略
func (e *Engine) failTask(ctx context.Context, st *execState, result *task.Result) {
	if err := st.sched.MarkFinished(result.TaskID, result); err != nil {
		e.logger.Error("mark finished failed", zap.String("task_id", result.TaskID), zap.Error(err))
		return
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskFailed, TaskID: result.TaskID, AgentID: result.AgentID,
		Data: map[string]any{"error": result.Error}})
	if e.metrics != nil {
		e.metrics.RecordTask(string(st.config.Mode), string(task.StatusFailed), result.Duration)
	}
	e.publishTaskStates(st)

	policy := st.config.Recovery
	st.mu.Lock()
	attempts := st.attempts[result.TaskID]
	fellBack := st.fellBack[result.TaskID]
	st.mu.Unlock()

	retry := false
	switch policy.OnFailure {
	case RecoveryRetry:
		retry = attempts-1 < policy.MaxRetries
	case RecoveryRetryWithBackoff:
		if attempts-1 < policy.MaxRetries {
			retry = true
			st.mu.Lock()
			st.backoffs[result.TaskID] = policy.CalculateBackoff(attempts - 1)
			st.mu.Unlock()
		}
	case RecoveryFallbackAgent:
		if !fellBack && policy.FallbackAgent != result.AgentID {
			retry = true
			st.mu.Lock()
			st.fellBack[result.TaskID] = true
			st.forced[result.TaskID] = policy.FallbackAgent
			st.mu.Unlock()
		}
	}

	if retry {
		if err := st.sched.Requeue(result.TaskID); err != nil {
			e.logger.Error("requeue failed", zap.String("task_id", result.TaskID), zap.Error(err))
			return
		}
		e.logger.Info("task requeued for recovery",
			zap.String("execution_id", st.id),
			zap.String("task_id", result.TaskID),
			zap.Int("attempt", attempts),
			zap.String("action", string(policy.OnFailure)),
		)
		return
	}

	// 失败被接受，回灌绩效
	if e.memberAgent(st, result.AgentID) {
		if err := e.registry.RecordOutcome(result.AgentID, false, 0); err != nil {
			e.logger.Debug("record outcome failed", zap.String("agent_id", result.AgentID), zap.Error(err))
		}
	}
}

// finalize 计算终态、聚合指标、拆除资源
func (e *Engine) finalize(ctx context.Context, st *execState) {
	cancelled := st.cancelReq.Load()
	timedOut := !cancelled && st.ctx.Err() == context.DeadlineExceeded

	var cancelledIDs []string
	if cancelled || timedOut {
		cancelledIDs = st.sched.CancelPending()
	}

	counts := st.sched.Counts()

	st.mu.Lock()
	switch {
	case cancelled:
		st.status = ExecutionCancelled
	case len(st.pendings) > 0:
		st.status = ExecutionPartial
		st.errMsg = "CONFLICT_UNRESOLVED: execution ended with an unresolved escalation"
	case timedOut:
		st.status = ExecutionFailed
		st.errMsg = "TIMEOUT: execution deadline exceeded"
	case counts[task.StatusFailed] > 0 || counts[task.StatusBlocked] > 0:
		if st.config.DependencyPolicy == task.DependencyPolicySkipAndContinue && counts[task.StatusCompleted] > 0 {
			st.status = ExecutionPartial
		} else {
			st.status = ExecutionFailed
		}
		if st.errMsg == "" {
			st.errMsg = fmt.Sprintf("TASK_FAILED: %d failed, %d blocked",
				counts[task.StatusFailed], counts[task.StatusBlocked])
		}
	default:
		st.status = ExecutionCompleted
	}
	st.finishedAt = time.Now()
	status := st.status
	duration := st.finishedAt.Sub(st.startedAt)
	st.mu.Unlock()

	if len(cancelledIDs) > 0 {
		e.logger.Info("pending tasks cancelled",
			zap.String("execution_id", st.id),
			zap.Int("count", len(cancelledIDs)),
		)
	}

	if e.metrics != nil {
		stats := st.bus.Stats()
		e.metrics.RecordMessages(stats.Sent, stats.Dropped)
		e.metrics.RecordExecutionFinished(string(st.config.Mode), string(status), duration)
	}

	if cancelled {
		e.broker.publish(Event{ExecutionID: st.id, Type: EventExecutionCancelled})
	}
	e.broker.publish(Event{ExecutionID: st.id, Type: EventExecutionFinished,
		Data: map[string]any{"status": string(status)}})

	e.persist(st)

	// 拆除：总线关闭，执行级与私有作用域清空，global 作用域存续
	if err := st.bus.Close(); err != nil {
		e.logger.Warn("bus close failed", zap.String("execution_id", st.id), zap.Error(err))
	}
	teardownCtx, cancelTeardown := context.WithTimeout(context.Background(), 5*time.Second)
	if err := st.teamMem.Teardown(teardownCtx); err != nil {
		e.logger.Warn("memory teardown failed", zap.String("execution_id", st.id), zap.Error(err))
	}
	cancelTeardown()

	e.logger.Info("execution finished",
		zap.String("execution_id", st.id),
		zap.String("status", string(status)),
		zap.Duration("duration", duration),
	)

	close(st.doneCh)
	e.broker.closeExecution(st.id)
}

// publishTaskStates 发布自上次检查以来新就绪/新阻塞的任务事件
func (e *Engine) publishTaskStates(st *execState) {
	snapshot := st.sched.Snapshot()

	st.mu.Lock()
	var readyIDs, blockedIDs []string
	for id, status := range snapshot {
		switch status {
		case task.StatusReady:
			if !st.readySeen[id] {
				st.readySeen[id] = true
				readyIDs = append(readyIDs, id)
			}
		case task.StatusBlocked:
			if !st.blockSeen[id] {
				st.blockSeen[id] = true
				blockedIDs = append(blockedIDs, id)
			}
		}
	}
	st.mu.Unlock()

	for _, id := range readyIDs {
		e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskReady, TaskID: id})
	}
	for _, id := range blockedIDs {
		e.broker.publish(Event{ExecutionID: st.id, Type: EventTaskBlocked, TaskID: id})
	}
}

// persist 尽力而为地落盘执行快照
func (e *Engine) persist(st *execState) {
	if e.store == nil {
		return
	}
	exec := st.snapshot()
	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.store.SaveExecution(saveCtx, st.record(exec)); err != nil {
		e.logger.Warn("snapshot persist failed", zap.String("execution_id", st.id), zap.Error(err))
	}
}

// memberAgent 判断结果归属是否为真实团队成员
func (e *Engine) memberAgent(st *execState, agentID string) bool {
	for _, id := range st.config.AgentIDs {
		if id == agentID {
			return true
		}
	}
	return false
}

// computeMetricsLocked 聚合团队指标；调用方持有 st.mu
func (st *execState) computeMetricsLocked() TeamMetrics {
	counts := st.sched.Counts()
	stats := st.bus.Stats()

	m := TeamMetrics{
		TasksCompleted:    counts[task.StatusCompleted],
		TasksFailed:       counts[task.StatusFailed],
		TasksBlocked:      counts[task.StatusBlocked],
		TasksCancelled:    counts[task.StatusCancelled],
		MessagesSent:      int(stats.Sent),
		MessagesDropped:   int(stats.Dropped),
		ConflictsDetected: len(st.conflicts),
	}
	for _, r := range st.resolutions {
		if !r.Pending {
			m.ConflictsResolved++
		}
	}

	end := st.finishedAt
	if end.IsZero() {
		end = time.Now()
	}
	if !st.startedAt.IsZero() {
		m.TotalDuration = end.Sub(st.startedAt)
	}

	var totalTaskTime time.Duration
	finished := 0
	for _, r := range st.sched.Results() {
		if r.Duration > 0 {
			totalTaskTime += r.Duration
			finished++
		}
	}
	if finished > 0 {
		m.AvgTaskDuration = totalTaskTime / time.Duration(finished)
	}

	if m.TotalDuration > 0 && len(st.busy) > 0 {
		m.AgentUtilization = make(map[string]float64, len(st.busy))
		for id, busy := range st.busy {
			util := float64(busy) / float64(m.TotalDuration)
			if util > 1 {
				util = 1
			}
			m.AgentUtilization[id] = util
		}
	}

	profiles := make([]*profile.AgentProfile, 0, len(st.config.AgentIDs))
	for _, id := range st.config.AgentIDs {
		if p, err := st.session.registry.Get(id); err == nil {
			profiles = append(profiles, p)
		}
	}
	m.TeamCompatibility = profile.TeamBalance(profiles).MeanCompatibility

	return m
}

// hasPending 是否存在待外部裁决的冲突
func (st *execState) hasPending() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.pendings) > 0
}

// normalizeResult 补全 Runner 返回结果的缺省字段
func normalizeResult(inv *Invocation, res *task.Result, started time.Time) *task.Result {
	if res == nil {
		res = &task.Result{}
	}
	if res.TaskID == "" {
		res.TaskID = inv.Task.ID
	}
	if res.AgentID == "" {
		res.AgentID = inv.AgentID
	}
	switch res.Status {
	case "":
		res.Status = task.StatusCompleted
	case task.StatusCompleted, task.StatusFailed, task.StatusCancelled:
	default:
		// 非终态由 Runner 返回属于协议违规，按失败走恢复策略
		if res.Error == "" {
			res.Error = fmt.Sprintf("runner returned non-terminal status %q", res.Status)
		}
		res.Status = task.StatusFailed
	}
	res.Attempts = inv.Attempt
	if res.StartedAt.IsZero() {
		res.StartedAt = started
	}
	if res.FinishedAt.IsZero() {
		res.FinishedAt = time.Now()
	}
	if res.Duration == 0 {
		res.Duration = res.FinishedAt.Sub(res.StartedAt)
	}
	return res
}

// failedResult 由调用错误构造失败结果
func failedResult(inv *Invocation, started time.Time, err error) *task.Result {
	now := time.Now()
	return &task.Result{
		TaskID:     inv.Task.ID,
		AgentID:    inv.AgentID,
		Status:     task.StatusFailed,
		Error:      err.Error(),
		Attempts:   inv.Attempt,
		StartedAt:  started,
		FinishedAt: now,
		Duration:   now.Sub(started),
	}
}

// aggregateFailure 扇出全员失败时的聚合结果
func aggregateFailure(taskID string, failures []*task.Result) *task.Result {
	msgs := make([]string, 0, len(failures))
	var started, finished time.Time
	attempts := 0
	for _, r := range failures {
		if r.Error != "" {
			msgs = append(msgs, r.AgentID+": "+r.Error)
		}
		if started.IsZero() || r.StartedAt.Before(started) {
			started = r.StartedAt
		}
		if r.FinishedAt.After(finished) {
			finished = r.FinishedAt
		}
		if r.Attempts > attempts {
			attempts = r.Attempts
		}
	}
	return &task.Result{
		TaskID:     taskID,
		AgentID:    "team",
		Status:     task.StatusFailed,
		Error:      "all agents failed: " + strings.Join(msgs, "; "),
		Attempts:   attempts,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
}

// firstSuccess 按完成时间返回最早的成功结果
func firstSuccess(results []*task.Result) *task.Result {
	var winner *task.Result
	for _, r := range results {
		if r == nil || r.Status != task.StatusCompleted {
			continue
		}
		if winner == nil || r.FinishedAt.Before(winner.FinishedAt) {
			winner = r
		}
	}
	return winner
}

// mergeResults 无冲突时汇聚扇出结果：reconcile 取最高置信度代表，
// merge 合并各方贡献
func (e *Engine) mergeResults(st *execState, taskID string, successes []*task.Result) *task.Result {
	if st.spec.completion == completionReconcile {
		best := successes[0]
		for _, r := range successes[1:] {
			if r.Confidence > best.Confidence {
				best = r
			}
		}
		merged := *best
		merged.TaskID = taskID
		return &merged
	}

	outputs := make(map[string]any, len(successes))
	var confidence float64
	var started, finished time.Time
	attempts := 0
	for _, r := range successes {
		outputs[r.AgentID] = r.Output
		if r.Confidence > confidence {
			confidence = r.Confidence
		}
		if started.IsZero() || r.StartedAt.Before(started) {
			started = r.StartedAt
		}
		if r.FinishedAt.After(finished) {
			finished = r.FinishedAt
		}
		if r.Attempts > attempts {
			attempts = r.Attempts
		}
	}
	return &task.Result{
		TaskID:     taskID,
		AgentID:    "team",
		Status:     task.StatusCompleted,
		Output:     outputs,
		Confidence: confidence,
		Attempts:   attempts,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
}

// resolvedResult 由裁决构造任务结果
func resolvedResult(taskID string, resolution *conflict.Resolution, results []*task.Result) *task.Result {
	agentID := resolution.ResolvedBy
	if agentID == "" {
		agentID = "team"
	}
	var started, finished time.Time
	attempts := 0
	for _, r := range results {
		if started.IsZero() || r.StartedAt.Before(started) {
			started = r.StartedAt
		}
		if r.FinishedAt.After(finished) {
			finished = r.FinishedAt
		}
		if r.Attempts > attempts {
			attempts = r.Attempts
		}
	}
	if finished.IsZero() {
		finished = time.Now()
	}
	return &task.Result{
		TaskID:     taskID,
		AgentID:    agentID,
		Status:     task.StatusCompleted,
		Output:     resolution.Outcome,
		Stance:     resolution.Outcome,
		Attempts:   attempts,
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}
}
