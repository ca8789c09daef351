package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/teamflow/bus"
	"github.com/BaSui01/teamflow/conflict"
	"github.com/BaSui01/teamflow/internal/metrics"
	"github.com/BaSui01/teamflow/internal/pool"
	"github.com/BaSui01/teamflow/memory"
	"github.com/BaSui01/teamflow/persistence"
	"github.com/BaSui01/teamflow/profile"
	"github.com/BaSui01/teamflow/task"
	"github.com/BaSui01/teamflow/types"
)

// Options 显式装配引擎依赖；无单例、无包级状态
type Options struct {
	// Registry 智能体档案注册表（必填）
	Registry *profile.Registry
	// Runner 任务执行器（必填）
	Runner Runner
	// Resolver 冲突裁决器；缺省自动创建
	Resolver *conflict.Resolver
	// Store 执行快照落盘；可空（不落盘）
	Store persistence.ExecutionStore
	// Memory 共享记忆后端；缺省进程内存储
	Memory memory.Store
	// Metrics 指标收集器；可空
	Metrics *metrics.Collector
	// Bus 总线配置
	Bus bus.Config
	// EventBufferSize 订阅者通道容量
	EventBufferSize int
	// RateLimit 每秒 Runner 调用上限；0 表示不限流
	RateLimit float64
	// RateBurst 限流突发容量
	RateBurst int
	// MaxWorkers 调度工作池上限
	MaxWorkers int
	// Logger 日志器；缺省 Nop
	Logger *zap.Logger
}

// Engine 团队编排引擎
type Engine struct {
	registry *profile.Registry
	runner   Runner
	resolver *conflict.Resolver
	store    persistence.ExecutionStore
	memStore memory.Store
	metrics  *metrics.Collector
	broker   *eventBroker
	pool     *pool.GoroutinePool
	limiter  *rate.Limiter
	tracer   trace.Tracer
	busCfg   bus.Config
	logger   *zap.Logger

	mu         sync.RWMutex
	executions map[string]*execState
	closed     atomic.Bool
	wg         sync.WaitGroup
}

// New 构造引擎
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, types.NewError(types.ErrConfigInvalid, "engine requires a profile registry")
	}
	if opts.Runner == nil {
		return nil, types.NewError(types.ErrConfigInvalid, "engine requires a runner")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "engine"))

	resolver := opts.Resolver
	if resolver == nil {
		resolver = conflict.NewResolver(conflict.WithLogger(logger))
	}
	memStore := opts.Memory
	if memStore == nil {
		memStore = memory.NewInMemoryStore(memory.WithLogger(logger))
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}
	burst := opts.RateBurst
	if burst <= 0 {
		burst = 16
	}

	poolCfg := pool.DefaultGoroutinePoolConfig()
	if opts.MaxWorkers > 0 {
		poolCfg.MaxWorkers = opts.MaxWorkers
	}
	poolCfg.PanicHandler = func(r any) {
		logger.Error("invocation worker panicked", zap.Any("panic", r))
	}

	busCfg := opts.Bus
	if busCfg.QueueSize <= 0 {
		busCfg.QueueSize = bus.DefaultConfig().QueueSize
	}

	return &Engine{
		registry:   opts.Registry,
		runner:     opts.Runner,
		resolver:   resolver,
		store:      opts.Store,
		memStore:   memStore,
		metrics:    opts.Metrics,
		broker:     newEventBroker(opts.EventBufferSize, logger),
		pool:       pool.NewGoroutinePool(poolCfg),
		limiter:    rate.NewLimiter(limit, burst),
		tracer:     otel.Tracer("teamflow/engine"),
		busCfg:     busCfg,
		logger:     logger,
		executions: make(map[string]*execState),
	}, nil
}

// execState 一次执行的内部状态；引擎循环是唯一写者，
// 快照读取通过互斥锁
type execState struct {
	mu     sync.RWMutex
	id     string
	config *TeamConfiguration
	spec   modeSpec

	status      ExecutionStatus
	sched       *task.Scheduler
	assigner    task.Assigner
	bus         *bus.Bus
	teamMem     *memory.TeamMemory
	session     *Session
	conflicts   []*conflict.Conflict
	resolutions []*conflict.Resolution
	pendings    []*pendingConflict
	startedAt   time.Time
	finishedAt  time.Time
	errMsg      string

	ctx        context.Context
	cancel     context.CancelFunc
	cancelReq  atomic.Bool
	outcomeCh  chan *invocationOutcome
	resolveCh  chan *externalResolution
	doneCh     chan struct{}
	attempts   map[string]int
	forced     map[string]string
	fellBack   map[string]bool
	backoffs   map[string]time.Duration
	busy       map[string]time.Duration
	inProgress map[string]int
	readySeen  map[string]bool
	blockSeen  map[string]bool
}

// pendingConflict 升级后等待外部裁决的冲突
type pendingConflict struct {
	conflict *conflict.Conflict
	taskID   string
	results  []*task.Result
}

// invocationOutcome 一次派发的终点
type invocationOutcome struct {
	taskID   string
	agentID  string
	result   *task.Result
	results  []*task.Result // fan-out 的原始结果
	conflict *conflict.Conflict
}

// externalResolution Engine.Resolve 注入的外部裁决
type externalResolution struct {
	conflictID string
	resolution *conflict.Resolution
	errCh      chan error
}

// InProgress implements task.LoadView.
func (st *execState) InProgress(agentID string) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.inProgress[agentID]
}

// Start 同步校验配置并异步启动执行，立即返回执行 ID。
// 校验失败时不执行任何任务。
func (e *Engine) Start(ctx context.Context, cfg *TeamConfiguration) (string, error) {
	if e.closed.Load() {
		return "", types.NewError(types.ErrInvalidState, "engine is closed")
	}
	if cfg == nil {
		return "", configError("nil configuration")
	}

	cfg = cfg.Clone()
	spec, err := cfg.validate(func(agentID string) bool {
		_, err := e.registry.Get(agentID)
		return err == nil
	})
	if err != nil {
		return "", err
	}

	builder := task.NewGraphBuilder()
	for _, t := range cfg.Tasks {
		builder.Add(t)
	}
	graph, err := builder.Build()
	if err != nil {
		return "", configError("invalid task graph: %v", err)
	}

	policy := cfg.DependencyPolicy
	if policy == "" {
		policy = task.DependencyPolicyFailFast
		cfg.DependencyPolicy = policy
	}
	if cfg.Recovery.OnFailure == "" {
		cfg.Recovery.OnFailure = RecoveryFail
	}

	var bids task.BidFunc
	if bidder, ok := e.runner.(Bidder); ok {
		bids = bidder.Bid
	}
	assigner, err := task.NewAssigner(cfg.assignment(spec), bids)
	if err != nil {
		return "", configError("%v", err)
	}

	execID := uuid.NewString()
	msgBus := bus.New(cfg.AgentIDs, e.busCfg, e.logger)
	teamMem := memory.NewTeamMemory(e.memStore, execID, cfg.AgentIDs, e.logger)
	session := &Session{
		executionID: execID,
		bus:         msgBus,
		memory:      teamMem,
		registry:    e.registry,
	}

	runCtx, cancel := context.WithCancel(context.Background())
	if cfg.ExecutionTimeout > 0 {
		runCtx, cancel = context.WithTimeout(context.Background(), cfg.ExecutionTimeout)
	}

	st := &execState{
		id:         execID,
		config:     cfg,
		spec:       spec,
		status:     ExecutionPending,
		sched:      task.NewScheduler(graph, policy),
		assigner:   assigner,
		bus:        msgBus,
		teamMem:    teamMem,
		session:    session,
		ctx:        runCtx,
		cancel:     cancel,
		outcomeCh:  make(chan *invocationOutcome, graph.Len()+1),
		resolveCh:  make(chan *externalResolution),
		doneCh:     make(chan struct{}),
		attempts:   make(map[string]int),
		forced:     make(map[string]string),
		fellBack:   make(map[string]bool),
		backoffs:   make(map[string]time.Duration),
		busy:       make(map[string]time.Duration),
		inProgress: make(map[string]int),
		readySeen:  make(map[string]bool),
		blockSeen:  make(map[string]bool),
	}

	e.mu.Lock()
	e.executions[execID] = st
	e.mu.Unlock()

	e.logger.Info("execution starting",
		zap.String("execution_id", execID),
		zap.String("mode", string(cfg.Mode)),
		zap.Int("agents", len(cfg.AgentIDs)),
		zap.Int("tasks", graph.Len()),
	)

	e.wg.Add(1)
	go e.runExecution(st)

	return execID, nil
}

// GetExecution 返回执行的实时快照
func (e *Engine) GetExecution(id string) (*Execution, error) {
	e.mu.RLock()
	st, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "execution not found: "+id).WithHTTPStatus(404)
	}
	return st.snapshot(), nil
}

// ListExecutions 返回全部执行的快照
func (e *Engine) ListExecutions() []*Execution {
	e.mu.RLock()
	states := make([]*execState, 0, len(e.executions))
	for _, st := range e.executions {
		states = append(states, st)
	}
	e.mu.RUnlock()

	out := make([]*Execution, 0, len(states))
	for _, st := range states {
		out = append(out, st.snapshot())
	}
	return out
}

// Cancel 取消执行：进行中与待执行任务转为 cancelled，
// 已完成结果保留，总线与执行级记忆被拆除
func (e *Engine) Cancel(ctx context.Context, id string) error {
	e.mu.RLock()
	st, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return types.NewError(types.ErrNotFound, "execution not found: "+id).WithHTTPStatus(404)
	}

	st.mu.RLock()
	terminal := st.status.IsTerminal()
	st.mu.RUnlock()
	if terminal {
		return types.NewError(types.ErrInvalidState, "execution already finished").WithHTTPStatus(409)
	}

	st.cancelReq.Store(true)
	st.cancel()

	select {
	case <-st.doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Resolve 注入外部裁决，解除 conflict_pending
func (e *Engine) Resolve(ctx context.Context, executionID, conflictID string, resolution *conflict.Resolution) error {
	e.mu.RLock()
	st, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return types.NewError(types.ErrNotFound, "execution not found: "+executionID).WithHTTPStatus(404)
	}
	if resolution == nil {
		return types.NewError(types.ErrConfigInvalid, "nil resolution").WithHTTPStatus(422)
	}

	req := &externalResolution{
		conflictID: conflictID,
		resolution: resolution,
		errCh:      make(chan error, 1),
	}
	select {
	case st.resolveCh <- req:
	case <-st.doneCh:
		return types.NewError(types.ErrInvalidState, "execution already finished").WithHTTPStatus(409)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe 订阅执行事件流。事件在状态变更生效后发布；
// 慢订阅者丢事件。
func (e *Engine) Subscribe(id string) (<-chan Event, func(), error) {
	e.mu.RLock()
	st, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, nil, types.NewError(types.ErrNotFound, "execution not found: "+id).WithHTTPStatus(404)
	}

	ch, cancel := e.broker.subscribe(id)

	// 已终态的执行不会再发布事件：返回已关闭通道，订阅方立即收到流结束
	select {
	case <-st.doneCh:
		cancel()
		done := make(chan Event)
		close(done)
		return done, func() {}, nil
	default:
	}
	return ch, cancel, nil
}

// WaitForExecution 阻塞直到执行终态
func (e *Engine) WaitForExecution(ctx context.Context, id string) (*Execution, error) {
	e.mu.RLock()
	st, ok := e.executions[id]
	e.mu.RUnlock()
	if !ok {
		return nil, types.NewError(types.ErrNotFound, "execution not found: "+id).WithHTTPStatus(404)
	}

	select {
	case <-st.doneCh:
		return st.snapshot(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close 停止接受新执行，取消运行中的执行并释放资源
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}

	e.mu.RLock()
	states := make([]*execState, 0, len(e.executions))
	for _, st := range e.executions {
		states = append(states, st)
	}
	e.mu.RUnlock()

	for _, st := range states {
		st.mu.RLock()
		terminal := st.status.IsTerminal()
		st.mu.RUnlock()
		if !terminal {
			st.cancelReq.Store(true)
			st.cancel()
		}
	}

	e.wg.Wait()
	e.pool.Close()

	var firstErr error
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			firstErr = err
		}
	}
	if err := e.memStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// snapshot 构建执行快照
func (st *execState) snapshot() *Execution {
	st.mu.RLock()
	defer st.mu.RUnlock()

	exec := &Execution{
		ID:         st.id,
		Name:       st.config.Name,
		Mode:       st.config.Mode,
		Status:     st.status,
		Config:     st.config.Clone(),
		TaskStatus: st.sched.Snapshot(),
		Results:    st.sched.Results(),
		Metrics:    st.computeMetricsLocked(),
		StartedAt:  st.startedAt,
		FinishedAt: st.finishedAt,
		Error:      st.errMsg,
	}
	exec.Conflicts = append([]*conflict.Conflict(nil), st.conflicts...)
	exec.Resolutions = append([]*conflict.Resolution(nil), st.resolutions...)
	return exec
}

// record 将快照序列化为持久化记录
func (st *execState) record(exec *Execution) *persistence.ExecutionRecord {
	configJSON, _ := json.Marshal(exec.Config)
	metricsJSON, _ := json.Marshal(exec.Metrics)
	resultsJSON, _ := json.Marshal(exec.Results)
	conflictsJSON, _ := json.Marshal(struct {
		Conflicts   []*conflict.Conflict   `json:"conflicts,omitempty"`
		Resolutions []*conflict.Resolution `json:"resolutions,omitempty"`
	}{exec.Conflicts, exec.Resolutions})

	return &persistence.ExecutionRecord{
		ID:            exec.ID,
		Name:          exec.Name,
		Mode:          string(exec.Mode),
		Status:        string(exec.Status),
		ConfigJSON:    string(configJSON),
		MetricsJSON:   string(metricsJSON),
		ResultsJSON:   string(resultsJSON),
		ConflictsJSON: string(conflictsJSON),
		Error:         exec.Error,
		StartedAt:     exec.StartedAt,
		FinishedAt:    exec.FinishedAt,
	}
}
