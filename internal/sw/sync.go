package sw

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pwa-edge/pwa-edge/internal/metrics"
)

// syncPayload 是一次性同步 POST 的请求体。
type syncPayload struct {
	Tag       string    `json:"tag"`
	Version   string    `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// Sync 处理一次性后台同步。标签不匹配时忽略；失败以 ErrSyncFailed 返回，
// 由平台负责重试。成功后向全部客户端广播 SYNC_DATA。
func (c *Controller) Sync(ctx context.Context, tag string) error {
	logger := c.logger().WithFields(c.fields("sync")).WithField("tag", tag)
	if tag != c.build.Sync.Tag {
		logger.Debug("sync_tag_ignored")
		return nil
	}

	if c.build.Sync.Path != "" {
		body, err := json.Marshal(syncPayload{Tag: tag, Version: c.build.Version, Timestamp: time.Now().UTC()})
		if err != nil {
			return err
		}
		req := NewRequest(http.MethodPost, resolvePath(c.build.Scope, c.build.Sync.Path), http.Header{
			"Content-Type": []string{"application/json"},
		})
		req.Body = body

		resp, err := c.deps.Network.Fetch(ctx, req)
		if err == nil && !resp.OK() {
			err = fmt.Errorf("unexpected status %d", resp.Status)
		}
		if err != nil {
			metrics.IncSync("oneshot", err)
			logger.WithError(err).Warn("sync_failed")
			return fmt.Errorf("%w: %s: %w", ErrSyncFailed, tag, err)
		}
	}

	metrics.IncSync("oneshot", nil)
	notified := c.NotifyClients(Message{Type: MessageSyncData, Tag: tag, Version: c.build.Version})
	logger.WithField("notified", notified).Info("sync_completed")
	return nil
}

// PeriodicSync 处理周期同步：对探测路径发起一次 GET，网络失败原样上抛。
func (c *Controller) PeriodicSync(ctx context.Context, tag string) error {
	logger := c.logger().WithFields(c.fields("periodicsync")).WithField("tag", tag)
	if tag != c.build.Sync.PeriodicTag {
		logger.Debug("periodic_sync_tag_ignored")
		return nil
	}

	probe := c.build.Sync.ProbePath
	if probe == "" {
		probe = "/"
	}
	req := NewRequest(http.MethodGet, resolvePath(c.build.Scope, probe), http.Header{
		"Cache-Control": []string{"no-cache"},
	})
	resp, err := c.deps.Network.Fetch(ctx, req)
	metrics.IncSync("periodic", err)
	if err != nil {
		logger.WithError(err).Warn("periodic_sync_failed")
		return fmt.Errorf("%w: %s: %w", ErrSyncFailed, tag, err)
	}
	logger.WithField("status", resp.Status).Info("periodic_sync_completed")
	return nil
}
