package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"paycenter/pkg/logger"

	"go.uber.org/zap"
)

var (
	ErrQueueFull   = errors.New("worker pool queue full")
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Task 带重试次数的任务
type Task[T any] struct {
	Payload T
	Retry   int // 重试次数
}

// Handler 任务处理函数
type Handler[T any] func(ctx context.Context, payload T) error

// Options 工作池参数
type Options struct {
	WorkerNum  int
	BufferSize int
	MaxRetry   int           // 最大重试次数
	RetryDelay time.Duration // 第 n 次重试前等待 n*RetryDelay
}

// WorkerPool 带重试队列的通用工作池，超过重试次数的任务进入死信回调
type WorkerPool[T any] struct {
	taskQueue  chan Task[T]
	retryQueue chan Task[T] // 重试队列
	handler    Handler[T]
	opts       Options
	log        *zap.Logger

	// OnDeadLetter 任务最终失败时调用
	OnDeadLetter func(payload T, err error)

	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWorkerPool[T any](name string, handler Handler[T], opts Options) *WorkerPool[T] {
	if opts.WorkerNum <= 0 {
		opts.WorkerNum = 1
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 100
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	retrySize := opts.BufferSize / 2
	if retrySize == 0 {
		retrySize = 1
	}
	return &WorkerPool[T]{
		taskQueue:  make(chan Task[T], opts.BufferSize),
		retryQueue: make(chan Task[T], retrySize),
		handler:    handler,
		opts:       opts,
		log:        logger.Named("worker." + name),
		quit:       make(chan struct{}),
	}
}

// Start 启动 worker 与重试协程，ctx 传给每次任务处理
func (p *WorkerPool[T]) Start(ctx context.Context) {
	for i := 0; i < p.opts.WorkerNum; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.wg.Add(1)
	go p.retryWorker()
	p.log.Info("Worker pool started", zap.Int("workers", p.opts.WorkerNum))
}

// Stop 停止所有协程，队列中未处理的任务被丢弃
func (p *WorkerPool[T]) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

// Len 主队列与重试队列中等待的任务数
func (p *WorkerPool[T]) Len() int {
	return len(p.taskQueue) + len(p.retryQueue)
}

// AddTask 非阻塞入队
func (p *WorkerPool[T]) AddTask(payload T) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}

	select {
	case p.taskQueue <- Task[T]{Payload: payload}:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *WorkerPool[T]) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.taskQueue:
			p.process(ctx, id, task)
		}
	}
}

func (p *WorkerPool[T]) process(ctx context.Context, id int, task Task[T]) {
	err := p.handler(ctx, task.Payload)
	if err == nil {
		return
	}

	p.log.Warn("Failed to process task",
		zap.Int("worker", id),
		zap.Int("attempt", task.Retry+1),
		zap.Error(err),
	)

	if task.Retry >= p.opts.MaxRetry {
		p.deadLetter(task, err)
		return
	}

	task.Retry++
	select {
	case p.retryQueue <- task:
	default:
		p.log.Warn("Retry queue full, task dropped", zap.Int("worker", id))
		p.deadLetter(task, err)
	}
}

func (p *WorkerPool[T]) retryWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case task := <-p.retryQueue:
			// 延迟重试，避免立即重试
			timer := time.NewTimer(time.Duration(task.Retry) * p.opts.RetryDelay)
			select {
			case <-p.quit:
				timer.Stop()
				return
			case <-timer.C:
			}

			select {
			case p.taskQueue <- task:
			default:
				p.log.Warn("Main queue full, retried task dropped", zap.Int("attempt", task.Retry))
				p.deadLetter(task, ErrQueueFull)
			}
		}
	}
}

func (p *WorkerPool[T]) deadLetter(task Task[T], err error) {
	p.log.Error("[DeadLetter] Task failed permanently",
		zap.Int("retries", task.Retry),
		zap.Error(err),
	)
	if p.OnDeadLetter != nil {
		p.OnDeadLetter(task.Payload, err)
	}
}
