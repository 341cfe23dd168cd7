package sw

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Registration 对应一个作用域的 controller 注册：同一时刻最多一个 installing、
// 一个 waiting（PendingUpdate）与一个 active。激活期间持有写锁，
// 因此任何 fetch 只会被已经 active 的版本处理。
type Registration struct {
	deps Deps

	mu         sync.RWMutex // 激活期间持有写锁
	installing *Controller
	waiting    *Controller
	active     *Controller
	checkedAt  time.Time

	// updateMu 串行化 Update，避免两个构建同时安装。
	updateMu sync.Mutex
}

// NewRegistration 使用给定平台能力创建空注册。
func NewRegistration(deps Deps) *Registration {
	if deps.Clients == nil {
		deps.Clients = noopClients{}
	}
	if deps.Notifications == nil {
		deps.Notifications = noopSurface{}
	}
	return &Registration{deps: deps}
}

// UpdateResult 描述一次 Update 的结果。
type UpdateResult struct {
	Changed    bool            `json:"changed"`
	Version    string          `json:"version"`
	State      State           `json:"state"`
	Install    *InstallResult  `json:"install,omitempty"`
	Activate   *ActivateResult `json:"activate,omitempty"`
	Superseded string          `json:"superseded,omitempty"`
}

// Update 安装新构建。版本号先由 ResolveVersion 确定；若结果与 active 或 waiting
// 的构建指纹一致则什么都不做。安装成功后，在请求 skip-waiting、没有 active
// 或没有已连接客户端时立即激活，否则进入 waiting。
func (r *Registration) Update(ctx context.Context, build Build) (*UpdateResult, error) {
	r.updateMu.Lock()
	defer r.updateMu.Unlock()

	resolved := build.WithVersion(ResolveVersion(ctx, r.deps.Network, build, r.deps.Logger))
	fingerprint := resolved.Fingerprint()

	r.mu.Lock()
	r.checkedAt = time.Now().UTC()
	active, waiting := r.active, r.waiting
	r.mu.Unlock()

	if active != nil && active.Fingerprint() == fingerprint {
		return &UpdateResult{Version: active.Version(), State: active.State()}, nil
	}
	if waiting != nil && waiting.Fingerprint() == fingerprint {
		return &UpdateResult{Version: waiting.Version(), State: waiting.State()}, nil
	}

	ctrl, err := NewController(resolved, r.deps)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.installing = ctrl
	r.mu.Unlock()

	install, err := ctrl.Install(ctx)
	r.mu.Lock()
	r.installing = nil
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	result := &UpdateResult{Changed: true, Version: ctrl.Version(), Install: install}
	if r.waiting != nil {
		result.Superseded = r.waiting.Version()
		r.waiting.markRedundant()
	}
	r.waiting = ctrl
	hasActive := r.active != nil
	r.mu.Unlock()

	if hasActive {
		ctrl.NotifyClients(Message{Type: MessageStateChange, State: StateInstalled, Version: ctrl.Version()})
	}

	if install.SkipWaiting || !hasActive || len(r.deps.Clients.MatchAll()) == 0 {
		activated, err := r.activateWaiting(ctx)
		if err != nil && !errors.Is(err, ErrNoWaiting) {
			return nil, err
		}
		result.Activate = activated
	}
	result.State = ctrl.State()
	return result, nil
}

// SkipWaiting 立即激活 waiting 中的 controller。
func (r *Registration) SkipWaiting(ctx context.Context) (*ActivateResult, error) {
	return r.activateWaiting(ctx)
}

// ClientsReleased 在最后一个客户端断开后调用：若存在 waiting 则激活。
func (r *Registration) ClientsReleased(ctx context.Context) {
	r.mu.RLock()
	hasWaiting := r.waiting != nil
	r.mu.RUnlock()
	if !hasWaiting {
		return
	}
	if _, err := r.activateWaiting(ctx); err != nil && !errors.Is(err, ErrNoWaiting) {
		r.logger().WithError(err).WithField("action", "activate").Warn("activate_on_release_failed")
	}
}

func (r *Registration) activateWaiting(ctx context.Context) (*ActivateResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ctrl := r.waiting
	if ctrl == nil {
		return nil, ErrNoWaiting
	}
	previous := r.active
	result, err := ctrl.Activate(ctx, previous != nil)
	if err != nil {
		return nil, err
	}
	r.waiting = nil
	r.active = ctrl
	if previous != nil {
		previous.markRedundant()
	}
	return result, nil
}

// HandleMessage 处理页面发来的消息；目前只识别 SKIP_WAITING。
func (r *Registration) HandleMessage(ctx context.Context, clientID string, msg Message) error {
	logger := r.logger().WithFields(logrus.Fields{
		"action":    "message",
		"type":      string(msg.Type),
		"client_id": clientID,
	})
	switch msg.Type {
	case MessageSkipWaiting:
		result, err := r.SkipWaiting(ctx)
		if err != nil {
			logger.WithError(err).Info("skip_waiting_ignored")
			return err
		}
		logger.WithField("version", result.Version).Info("skip_waiting_applied")
		return nil
	default:
		logger.Warn("message_unknown")
		return ErrUnknownMessage
	}
}

// Active 返回当前 active controller。
func (r *Registration) Active() (*Controller, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil, ErrNotActive
	}
	return r.active, nil
}

// Fetch 把请求交给 active controller。携带未受控客户端 ID 的请求直接透传，
// 与浏览器中未被 claim 的页面一致。
func (r *Registration) Fetch(ctx context.Context, req *Request) (*FetchResult, error) {
	active, err := r.Active()
	if err != nil {
		return nil, err
	}
	if req.ClientID != "" {
		if client, ok := r.deps.Clients.Lookup(req.ClientID); ok && !client.Controlled {
			return passthrough(), nil
		}
	}
	return active.Fetch(ctx, req)
}

// Sync 将一次性同步事件交给 active controller。
func (r *Registration) Sync(ctx context.Context, tag string) error {
	active, err := r.Active()
	if err != nil {
		return err
	}
	return active.Sync(ctx, tag)
}

// PeriodicSync 将周期同步事件交给 active controller。
func (r *Registration) PeriodicSync(ctx context.Context, tag string) error {
	active, err := r.Active()
	if err != nil {
		return err
	}
	return active.PeriodicSync(ctx, tag)
}

// Push 将推送事件交给 active controller。
func (r *Registration) Push(ctx context.Context, payload []byte) (Notification, error) {
	active, err := r.Active()
	if err != nil {
		return Notification{}, err
	}
	return active.Push(ctx, payload)
}

// NotificationClick 将通知点击交给 active controller。
func (r *Registration) NotificationClick(ctx context.Context, tag string) (*ClickResult, error) {
	active, err := r.Active()
	if err != nil {
		return nil, err
	}
	return active.NotificationClick(ctx, tag)
}

// ControllerSnapshot 是 controller 的只读视图。
type ControllerSnapshot struct {
	ID          string    `json:"id"`
	Version     string    `json:"version"`
	Strategy    string    `json:"strategy"`
	State       State     `json:"state"`
	Fingerprint string    `json:"fingerprint"`
	InstalledAt time.Time `json:"installedAt"`
	ActivatedAt time.Time `json:"activatedAt,omitempty"`
}

// Snapshot 是 registration 的诊断视图。
type Snapshot struct {
	Scope         string              `json:"scope"`
	Active        *ControllerSnapshot `json:"active,omitempty"`
	Waiting       *ControllerSnapshot `json:"waiting,omitempty"`
	Installing    *ControllerSnapshot `json:"installing,omitempty"`
	PendingUpdate bool                `json:"pendingUpdate"`
	Clients       int                 `json:"clients"`
	CheckedAt     time.Time           `json:"checkedAt"`
}

// Snapshot 返回当前注册状态。
func (r *Registration) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := Snapshot{
		Active:        snapshotOf(r.active),
		Waiting:       snapshotOf(r.waiting),
		Installing:    snapshotOf(r.installing),
		PendingUpdate: r.waiting != nil,
		Clients:       len(r.deps.Clients.MatchAll()),
		CheckedAt:     r.checkedAt,
	}
	for _, ctrl := range []*Controller{r.active, r.waiting, r.installing} {
		if ctrl != nil && ctrl.build.Scope != nil {
			snap.Scope = ctrl.build.Scope.String()
			break
		}
	}
	return snap
}

func snapshotOf(c *Controller) *ControllerSnapshot {
	if c == nil {
		return nil
	}
	return &ControllerSnapshot{
		ID:          c.ID(),
		Version:     c.Version(),
		Strategy:    c.Strategy(),
		State:       c.State(),
		Fingerprint: c.Fingerprint(),
		InstalledAt: c.life.since(StateInstalled),
		ActivatedAt: c.life.since(StateActive),
	}
}

func (r *Registration) logger() *logrus.Logger {
	if r.deps.Logger != nil {
		return r.deps.Logger
	}
	return logrus.StandardLogger()
}
