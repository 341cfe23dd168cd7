package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// Updater 接收新构建，通常是 *sw.Registration。
type Updater interface {
	Update(ctx context.Context, build sw.Build) (*sw.UpdateResult, error)
}

// BuildSource 返回当前应部署的构建；配置热加载后返回值随之变化。
type BuildSource func() sw.Build

// UpdateChecker 模拟浏览器的更新检查：每隔 interval 用当前构建调用一次 Update。
// 构建配置了 VersionEndpoint 时，版本变化会在这里被发现。
type UpdateChecker struct {
	updater  Updater
	source   BuildSource
	interval time.Duration
	logger   *logrus.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewUpdateChecker 创建更新检查器；interval <= 0 时 Start 不启动循环。
func NewUpdateChecker(updater Updater, source BuildSource, interval time.Duration, logger *logrus.Logger) *UpdateChecker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UpdateChecker{updater: updater, source: source, interval: interval, logger: logger}
}

// Check 立即执行一次更新检查。
func (u *UpdateChecker) Check(ctx context.Context) (*sw.UpdateResult, error) {
	result, err := u.updater.Update(ctx, u.source())
	logger := u.logger.WithField("action", "update")
	if err != nil {
		logger.WithError(err).Warn("update_check_failed")
		return nil, err
	}
	if result.Changed {
		logger.WithFields(logrus.Fields{
			"version": result.Version,
			"state":   string(result.State),
		}).Info("update_found")
	} else {
		logger.WithField("version", result.Version).Debug("update_not_found")
	}
	return result, nil
}

// Start 启动周期检查循环。
func (u *UpdateChecker) Start(parent context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		return errors.New("update checker already started")
	}
	if u.interval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	u.cancel = cancel
	u.done = make(chan struct{})
	go u.loop(ctx, u.done)
	return nil
}

func (u *UpdateChecker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = u.Check(ctx)
		}
	}
}

// Stop 结束检查循环并等待其退出。
func (u *UpdateChecker) Stop() {
	u.mu.Lock()
	cancel, done := u.cancel, u.done
	u.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
