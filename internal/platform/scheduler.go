package platform

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrSchedulerStopped 表示调度器已停止，不再接受新的同步登记。
var ErrSchedulerStopped = errors.New("sync scheduler stopped")

// SyncTarget 是执行同步事件的一方，通常是 *sw.Registration。
type SyncTarget interface {
	Sync(ctx context.Context, tag string) error
	PeriodicSync(ctx context.Context, tag string) error
}

// Options 控制重试与周期同步。
type Options struct {
	// InitialBackoff 是第一次重试前的等待时长，之后每次翻倍。
	InitialBackoff time.Duration
	// MaxBackoff 限制单次等待的上限，0 表示 InitialBackoff 的 32 倍。
	MaxBackoff time.Duration
	// MaxRetries 是失败后的最大重试次数，不含首次执行。
	MaxRetries int
	// PeriodicTag 与 PeriodicInterval 同时设置时启用周期同步。
	PeriodicTag      string
	PeriodicInterval time.Duration
	// PeriodicTagSource 非空时每次触发都从它读取 tag，优先于 PeriodicTag，
	// 配置热加载后无需重建调度器。返回空字符串表示本次跳过。
	PeriodicTagSource func() string
}

// Scheduler 承担宿主平台的同步职责：一次性同步失败后按指数退避重试，
// 相同 tag 的未完成登记只保留一个；周期同步按固定间隔触发，上一次未结束时跳过。
// controller 本身从不重试。
type Scheduler struct {
	target SyncTarget
	opts   Options
	logger *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	stopped bool

	periodicRunning atomic.Bool
	started         atomic.Bool
}

// NewScheduler 创建调度器；Start 之前登记的同步也会立即执行。
func NewScheduler(target SyncTarget, opts Options, logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 32 * opts.InitialBackoff
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		target:  target,
		opts:    opts,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		pending: make(map[string]struct{}),
	}
}

// Start 启动周期同步循环；未配置周期同步时只标记为已启动。
func (s *Scheduler) Start() error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.New("sync scheduler already started")
	}
	if s.opts.PeriodicInterval <= 0 || (s.opts.PeriodicTagSource == nil && s.opts.PeriodicTag == "") {
		return nil
	}
	s.wg.Add(1)
	go s.runPeriodic()
	return nil
}

// Register 登记一次性同步。相同 tag 已在等待或重试时返回 false。
func (s *Scheduler) Register(tag string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false, ErrSchedulerStopped
	}
	if _, ok := s.pending[tag]; ok {
		s.logger.WithFields(logrus.Fields{"action": "sync", "tag": tag}).Debug("sync_already_pending")
		return false, nil
	}
	s.pending[tag] = struct{}{}
	s.wg.Add(1)
	go s.runOneShot(tag)
	return true, nil
}

// Pending 返回尚未完成的一次性同步 tag。
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	tags := make([]string, 0, len(s.pending))
	for tag := range s.pending {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Stop 取消全部等待中的重试并等待协程退出。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) runOneShot(tag string) {
	defer s.wg.Done()
	defer s.release(tag)

	logger := s.logger.WithFields(logrus.Fields{"action": "sync", "tag": tag})
	backoff := s.opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		err := s.target.Sync(s.ctx, tag)
		if err == nil {
			if attempt > 0 {
				logger.WithField("attempt", attempt+1).Info("sync_recovered")
			}
			return
		}
		if attempt >= s.opts.MaxRetries {
			logger.WithError(err).WithField("attempts", attempt+1).Error("sync_gave_up")
			return
		}
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt + 1,
			"backoff": backoff.String(),
		}).Warn("sync_retry_scheduled")

		timer := time.NewTimer(backoff)
		select {
		case <-s.ctx.Done():
			timer.Stop()
			logger.Info("sync_cancelled")
			return
		case <-timer.C:
		}
		backoff *= 2
		if backoff > s.opts.MaxBackoff {
			backoff = s.opts.MaxBackoff
		}
	}
}

func (s *Scheduler) release(tag string) {
	s.mu.Lock()
	delete(s.pending, tag)
	s.mu.Unlock()
}

func (s *Scheduler) runPeriodic() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.opts.PeriodicInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.firePeriodic()
		}
	}
}

// periodicTag 返回本次触发使用的 tag。
func (s *Scheduler) periodicTag() string {
	if s.opts.PeriodicTagSource != nil {
		return s.opts.PeriodicTagSource()
	}
	return s.opts.PeriodicTag
}

// firePeriodic 同步执行一次周期同步；上一次仍在执行或 tag 为空时跳过本次。
func (s *Scheduler) firePeriodic() bool {
	tag := s.periodicTag()
	if tag == "" {
		return false
	}
	if !s.periodicRunning.CompareAndSwap(false, true) {
		return false
	}
	defer s.periodicRunning.Store(false)

	logger := s.logger.WithFields(logrus.Fields{"action": "periodicsync", "tag": tag})
	if err := s.target.PeriodicSync(s.ctx, tag); err != nil {
		logger.WithError(err).Warn("periodic_sync_tick_failed")
		return true
	}
	logger.Debug("periodic_sync_tick")
	return true
}

// FirePeriodic 立即触发一次周期同步，返回是否真正执行。
func (s *Scheduler) FirePeriodic(ctx context.Context) (bool, error) {
	tag := s.periodicTag()
	if tag == "" {
		return false, nil
	}
	if !s.periodicRunning.CompareAndSwap(false, true) {
		return false, nil
	}
	defer s.periodicRunning.Store(false)
	return true, s.target.PeriodicSync(ctx, tag)
}
