package sw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/pwa-edge/pwa-edge/internal/metrics"
)

// ClickAction 是通知点击后的处理结果。
type ClickAction string

const (
	ClickFocus      ClickAction = "focus"
	ClickOpenWindow ClickAction = "open_window"
)

// ClickResult 描述通知点击的去向：聚焦已有页面或打开根路径。
type ClickResult struct {
	Action   ClickAction `json:"action"`
	ClientID string      `json:"clientId,omitempty"`
	URL      string      `json:"url"`
	Closed   bool        `json:"closed"`
}

// Push 把 JSON 负载合并到默认通知描述上并展示；负载非法时使用默认值。
func (c *Controller) Push(ctx context.Context, payload []byte) (Notification, error) {
	n := c.mergeNotification(payload)
	if err := c.deps.Notifications.Show(ctx, n); err != nil {
		return n, fmt.Errorf("show notification: %w", err)
	}
	metrics.IncNotification("shown")
	c.logger().WithFields(c.fields("push")).
		WithField("tag", n.Tag).
		Info("notification_shown")
	return n, nil
}

func (c *Controller) mergeNotification(payload []byte) Notification {
	defaults := c.build.Notification
	if len(bytes.TrimSpace(payload)) == 0 {
		return defaults
	}
	merged := defaults
	if defaults.Data != nil {
		merged.Data = make(map[string]any, len(defaults.Data))
		for k, v := range defaults.Data {
			merged.Data[k] = v
		}
	}
	if err := json.Unmarshal(payload, &merged); err != nil {
		c.logger().WithError(err).WithFields(c.fields("push")).Warn("push_payload_invalid")
		return defaults
	}
	return merged
}

// NotificationClick 关闭通知并尝试聚焦根路径页面，否则返回打开根路径的指令。
func (c *Controller) NotificationClick(ctx context.Context, tag string) (*ClickResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	closed := c.deps.Notifications.Close(tag)
	metrics.IncNotification("clicked")
	logger := c.logger().WithFields(c.fields("notificationclick")).WithField("tag", tag)

	for _, client := range c.deps.Clients.MatchAll() {
		if clientPath(client.URL) != "/" {
			continue
		}
		if err := c.deps.Clients.Focus(client.ID); err != nil {
			logger.WithError(err).WithField("client_id", client.ID).Warn("client_focus_failed")
			continue
		}
		logger.WithField("client_id", client.ID).Info("client_focused")
		return &ClickResult{Action: ClickFocus, ClientID: client.ID, URL: client.URL, Closed: closed}, nil
	}

	logger.Info("open_window")
	return &ClickResult{Action: ClickOpenWindow, URL: "/", Closed: closed}, nil
}

func clientPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if u.Path == "" {
		return "/"
	}
	return u.Path
}
