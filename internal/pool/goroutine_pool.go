// Package pool 受控并发的工作协程池。
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrPoolClosed = errors.New("pool is closed")
	ErrPoolFull   = errors.New("pool is full")
)

// Task 池中执行的工作单元
type Task func(ctx context.Context) error

// GoroutinePoolConfig 协程池参数
type GoroutinePoolConfig struct {
	MaxWorkers   int           `json:"max_workers"`
	QueueSize    int           `json:"queue_size"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	PanicHandler func(any)     `json:"-"`
}

// DefaultGoroutinePoolConfig 默认参数
func DefaultGoroutinePoolConfig() GoroutinePoolConfig {
	return GoroutinePoolConfig{
		MaxWorkers:  100,
		QueueSize:   1000,
		IdleTimeout: 60 * time.Second,
	}
}

// GoroutinePool 按需扩容的协程池：队列有空位直接入队，
// 队列满且未达 MaxWorkers 时补充 worker，否则拒绝。
// 空闲 worker 超过 IdleTimeout 自行退出，保留最后一个。
type GoroutinePool struct {
	maxWorkers  int
	queue       chan poolItem
	workerCount atomic.Int32
	activeCount atomic.Int32
	closed      atomic.Bool
	wg          sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64

	idleTimeout  time.Duration
	panicHandler func(any)
}

type poolItem struct {
	task Task
	ctx  context.Context
}

// NewGoroutinePool 创建协程池，worker 惰性启动
func NewGoroutinePool(cfg GoroutinePoolConfig) *GoroutinePool {
	return &GoroutinePool{
		maxWorkers:   cfg.MaxWorkers,
		queue:        make(chan poolItem, cfg.QueueSize),
		idleTimeout:  cfg.IdleTimeout,
		panicHandler: cfg.PanicHandler,
	}
}

// Submit 非阻塞投递任务；池关闭返回 ErrPoolClosed，
// 队列与 worker 均满返回 ErrPoolFull
func (p *GoroutinePool) Submit(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	p.submitted.Add(1)
	item := poolItem{task: task, ctx: ctx}

	select {
	case p.queue <- item:
		p.ensureWorker()
		return nil
	default:
	}

	if p.trySpawnWorker() {
		select {
		case p.queue <- item:
			return nil
		default:
		}
	}

	p.rejected.Add(1)
	return ErrPoolFull
}

func (p *GoroutinePool) ensureWorker() {
	if p.workerCount.Load() < int32(p.maxWorkers) {
		p.trySpawnWorker()
	}
}

func (p *GoroutinePool) trySpawnWorker() bool {
	for {
		current := p.workerCount.Load()
		if current >= int32(p.maxWorkers) {
			return false
		}
		if p.workerCount.CompareAndSwap(current, current+1) {
			p.wg.Add(1)
			go p.worker()
			return true
		}
	}
}

func (p *GoroutinePool) worker() {
	defer p.wg.Done()
	defer p.workerCount.Add(-1)

	idle := time.NewTimer(p.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case item, ok := <-p.queue:
			if !ok {
				return
			}

			p.activeCount.Add(1)
			err := p.run(item)
			p.activeCount.Add(-1)

			if err != nil {
				p.failed.Add(1)
			} else {
				p.completed.Add(1)
			}
			idle.Reset(p.idleTimeout)

		case <-idle.C:
			// 保底一个常驻 worker
			if p.workerCount.Load() > 1 {
				return
			}
			idle.Reset(p.idleTimeout)
		}
	}
}

func (p *GoroutinePool) run(item poolItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if p.panicHandler != nil {
				p.panicHandler(r)
			}
			err = errors.New("task panicked")
		}
	}()
	return item.task(item.ctx)
}

// Close 停止接收新任务并等待在途任务完成
func (p *GoroutinePool) Close() {
	if p.closed.Swap(true) {
		return
	}
	close(p.queue)
	p.wg.Wait()
}

// GoroutinePoolStats 池运行统计
type GoroutinePoolStats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

// Stats 当前池状态快照
func (p *GoroutinePool) Stats() GoroutinePoolStats {
	return GoroutinePoolStats{
		Workers:   int(p.workerCount.Load()),
		Active:    int(p.activeCount.Load()),
		Queued:    len(p.queue),
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}
