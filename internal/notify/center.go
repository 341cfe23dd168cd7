package notify

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// DefaultTTL 是通知在中心里保留的默认时长。
const DefaultTTL = 24 * time.Hour

// Displayed 是中心里的一条通知。
type Displayed struct {
	sw.Notification
	ShownAt   time.Time `json:"shownAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Center 是 sw.NotificationSurface 的实现：通知按 tag 去重保存，
// 过期由 go-cache 负责；配置了 Relay 时同时外发。
type Center struct {
	logger *logrus.Logger
	ttl    time.Duration
	items  *gocache.Cache
	relay  *Relay

	// 同一 tag 的替换需要与列表读取保持一致
	mu sync.Mutex
}

var _ sw.NotificationSurface = (*Center)(nil)

// Option 调整 Center 的行为。
type Option func(*Center)

// WithRelay 让每条展示的通知同时经 shoutrrr 外发。
func WithRelay(relay *Relay) Option {
	return func(c *Center) { c.relay = relay }
}

// WithCleanupInterval 设置后台清理周期；0 表示只在读取时判断过期，不启动清理协程。
func WithCleanupInterval(interval time.Duration) Option {
	return func(c *Center) { c.items = gocache.New(c.ttl, interval) }
}

// NewCenter 创建通知中心，ttl <= 0 时使用 DefaultTTL。
func NewCenter(logger *logrus.Logger, ttl time.Duration, opts ...Option) *Center {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Center{logger: logger, ttl: ttl}
	c.items = gocache.New(ttl, 0)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Show 保存通知；已有相同 tag 的通知会被替换。外发失败只记录日志。
func (c *Center) Show(ctx context.Context, n sw.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if n.Tag == "" {
		n.Tag = uuid.NewString()
	}
	now := time.Now().UTC()
	entry := Displayed{Notification: n, ShownAt: now, ExpiresAt: now.Add(c.ttl)}

	c.mu.Lock()
	_, replaced := c.items.Get(n.Tag)
	c.items.Set(n.Tag, entry, c.ttl)
	c.mu.Unlock()

	logger := c.logger.WithFields(logrus.Fields{
		"action":   "notify",
		"tag":      n.Tag,
		"replaced": replaced,
	})
	logger.Info("notification_stored")

	if c.relay != nil {
		if err := c.relay.Relay(n); err != nil {
			logger.WithError(err).Warn("notification_relay_failed")
		}
	}
	return nil
}

// Close 移除指定 tag 的通知，返回通知此前是否存在。
func (c *Center) Close(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.items.Get(tag); !ok {
		return false
	}
	c.items.Delete(tag)
	return true
}

// Get 返回指定 tag 的通知。
func (c *Center) Get(tag string) (Displayed, bool) {
	value, ok := c.items.Get(tag)
	if !ok {
		return Displayed{}, false
	}
	entry, ok := value.(Displayed)
	return entry, ok
}

// List 按展示时间返回全部未过期的通知。
func (c *Center) List() []Displayed {
	c.mu.Lock()
	items := c.items.Items()
	c.mu.Unlock()

	list := make([]Displayed, 0, len(items))
	for _, item := range items {
		if entry, ok := item.Object.(Displayed); ok {
			list = append(list, entry)
		}
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].ShownAt.Equal(list[j].ShownAt) {
			return list[i].Tag < list[j].Tag
		}
		return list[i].ShownAt.Before(list[j].ShownAt)
	})
	return list
}

// Count 返回未过期的通知数量。
func (c *Center) Count() int {
	return len(c.List())
}
