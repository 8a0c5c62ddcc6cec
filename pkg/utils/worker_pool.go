package utils

import (
	"sync"

	"github.com/twmb/murmur3"
	"go.uber.org/zap"
)

// KeyedPool 按 key 分片的协程池。
// 相同 key 的任务总是落到同一个 worker，因此按提交顺序串行执行。
type KeyedPool struct {
	queues []chan func()
	log    *zap.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewKeyedPool 创建协程池，workerNum 个 worker 各自持有容量为 queueSize 的队列
func NewKeyedPool(workerNum, queueSize int, log *zap.Logger) *KeyedPool {
	if workerNum <= 0 {
		workerNum = 1
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	p := &KeyedPool{
		queues: make([]chan func(), workerNum),
		log:    log,
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), queueSize)
	}
	return p
}

// Start 启动所有 worker
func (p *KeyedPool) Start() {
	for i, q := range p.queues {
		p.wg.Add(1)
		go p.work(i, q)
	}
	p.log.Info("worker pool started", zap.Int("workers", len(p.queues)))
}

func (p *KeyedPool) work(workerID int, q <-chan func()) {
	defer p.wg.Done()
	for job := range q {
		// 单个任务 panic 不能让 worker 退出
		func() {
			defer func() {
				if r := recover(); r != nil {
					p.log.Error("worker job panic", zap.Int("worker", workerID), zap.Any("panic", r))
				}
			}()
			job()
		}()
	}
}

// Submit 提交任务。队列已满或协程池已停止时返回 false，不会阻塞调用方
func (p *KeyedPool) Submit(key string, job func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return false
	}
	select {
	case p.queues[p.shard(key)] <- job:
		return true
	default:
		return false
	}
}

func (p *KeyedPool) shard(key string) int {
	return int(murmur3.Sum32([]byte(key)) % uint32(len(p.queues)))
}

// Stop 拒绝新任务，等待队列中已有任务执行完毕
func (p *KeyedPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
