package pool

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPool 有界任务池。
// 用于把摄入成功后的旁路工作（通知、缓存失效）移出请求路径，
// 同时限制并发协程数量。
type WorkerPool struct {
	maxWorkers int
	taskQueue  chan func()
	log        *zap.Logger
	wg         sync.WaitGroup
	stopOnce   sync.Once
}

// NewWorkerPool 创建任务池。
func NewWorkerPool(maxWorkers, queueSize int, log *zap.Logger) *WorkerPool {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WorkerPool{
		maxWorkers: maxWorkers,
		taskQueue:  make(chan func(), queueSize),
		log:        log,
	}
}

// Start 启动工作协程，ctx 取消后各协程退出。
func (p *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < p.maxWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// TrySubmit 尝试提交任务，队列已满时返回 false，由调用方决定降级策略。
func (p *WorkerPool) TrySubmit(task func()) bool {
	select {
	case p.taskQueue <- task:
		return true
	default:
		return false
	}
}

// Stop 关闭队列并等待已入队任务执行完毕。
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.taskQueue)
	})
	p.wg.Wait()
}

func (p *WorkerPool) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run 执行单个任务并兜住 panic，单个任务不能拖垮整个池。
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker pool task panicked", zap.Any("panic", r))
		}
	}()
	task()
}
