package sw

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/metrics"
)

// Deps 是 controller 依赖的平台能力。Storage 与 Network 必填，其余缺省为空实现。
type Deps struct {
	Storage       cache.Storage
	Network       Network
	Clients       ClientSet
	Notifications NotificationSurface
	Logger        *logrus.Logger
}

// Controller 是某个 Build 的运行实例。版本号在构造时确定，之后不可变。
type Controller struct {
	id          string
	build       Build
	fingerprint string
	strategy    StrategyMetadata
	deps        Deps
	life        *lifecycle
	env         *FetchEnv

	storeMu sync.Mutex
	store   cache.Store
}

// NewController 校验构建并创建处于 unregistered 状态的 controller。
func NewController(build Build, deps Deps) (*Controller, error) {
	if err := build.Validate(); err != nil {
		return nil, err
	}
	if deps.Storage == nil {
		return nil, errors.New("controller storage required")
	}
	if deps.Network == nil {
		return nil, errors.New("controller network required")
	}
	if deps.Clients == nil {
		deps.Clients = noopClients{}
	}
	if deps.Notifications == nil {
		deps.Notifications = noopSurface{}
	}
	strategy, _ := ResolveStrategy(build.Strategy)

	c := &Controller{
		id:          uuid.NewString(),
		build:       build,
		fingerprint: build.Fingerprint(),
		strategy:    strategy,
		deps:        deps,
		life:        newLifecycle(),
	}
	c.env = &FetchEnv{c: c}
	return c, nil
}

func (c *Controller) ID() string          { return c.id }
func (c *Controller) Version() string     { return c.build.Version }
func (c *Controller) Fingerprint() string { return c.fingerprint }
func (c *Controller) Strategy() string    { return c.strategy.Name }
func (c *Controller) State() State        { return c.life.current() }

// Build 返回构建描述的副本。
func (c *Controller) Build() Build { return c.build.WithVersion(c.build.Version) }

// InstallResult 汇总一次 install：成功缓存与被跳过的资源路径。
type InstallResult struct {
	Version     string   `json:"version"`
	Cached      []string `json:"cached"`
	Skipped     []string `json:"skipped"`
	SkipWaiting bool     `json:"skipWaiting"`
}

// Install 打开当前版本 store 并预取静态资源。单个资源失败只记录日志并跳过；
// 只有 store 无法打开时 install 才失败，controller 随即变为 redundant。
func (c *Controller) Install(ctx context.Context) (*InstallResult, error) {
	if err := c.life.transition(StateInstalling); err != nil {
		return nil, err
	}
	logger := c.logger().WithFields(c.fields("install"))
	logger.Info("controller_installing")

	store, err := c.openStore(ctx)
	if err != nil {
		c.markRedundant()
		metrics.IncInstall("error")
		logger.WithError(err).Error("install_open_store_failed")
		return nil, err
	}

	result := &InstallResult{Version: c.build.Version, SkipWaiting: c.build.SkipWaiting}
	if c.strategy.Precache {
		result.Cached, result.Skipped = c.precache(ctx, store)
	}

	if err := c.life.transition(StateInstalled); err != nil {
		return nil, err
	}
	metrics.IncInstall("ok")
	metrics.AddPrecached(len(result.Cached), len(result.Skipped))
	logger.WithFields(logrus.Fields{
		"cached":  len(result.Cached),
		"skipped": len(result.Skipped),
	}).Info("controller_installed")
	return result, nil
}

type precacheOutcome struct {
	asset string
	ok    bool
}

// precache 并发抓取全部静态资源，结果按资源列表顺序返回。
func (c *Controller) precache(ctx context.Context, store cache.Store) (cached, skipped []string) {
	assets := c.build.StaticAssets
	outcomes := make([]precacheOutcome, len(assets))

	var wg sync.WaitGroup
	for i, asset := range assets {
		wg.Add(1)
		go func(i int, asset string) {
			defer wg.Done()
			outcomes[i] = precacheOutcome{asset: asset, ok: c.precacheOne(ctx, store, asset)}
		}(i, asset)
	}
	wg.Wait()

	for _, outcome := range outcomes {
		if outcome.ok {
			cached = append(cached, outcome.asset)
		} else {
			skipped = append(skipped, outcome.asset)
		}
	}
	return cached, skipped
}

func (c *Controller) precacheOne(ctx context.Context, store cache.Store, asset string) bool {
	logger := c.logger().WithFields(c.fields("install")).WithField("asset", asset)
	req := NewRequest(http.MethodGet, resolvePath(c.build.Scope, asset), nil)

	resp, err := c.deps.Network.Fetch(ctx, req)
	if err != nil {
		logger.WithError(err).Warn("precache_fetch_failed")
		return false
	}
	if !resp.OK() {
		logger.WithField("status", resp.Status).Warn("precache_status_skipped")
		return false
	}
	if err := store.Put(ctx, req.Key(), resp); err != nil {
		logger.WithError(err).Warn("precache_put_failed")
		return false
	}
	return true
}

// ActivateResult 汇总一次 activate。
type ActivateResult struct {
	Version      string   `json:"version"`
	Deleted      []string `json:"deleted"`
	DeleteFailed []string `json:"deleteFailed,omitempty"`
	Claimed      int      `json:"claimed"`
	Notified     int      `json:"notified"`
}

// Activate 删除版本不同的全部 store，接管所有客户端；hadPrevious 为 true 时
// 向客户端广播 SYNC_DATA。删除失败不会阻止 claim。
func (c *Controller) Activate(ctx context.Context, hadPrevious bool) (*ActivateResult, error) {
	if err := c.life.transition(StateActivating); err != nil {
		return nil, err
	}
	logger := c.logger().WithFields(c.fields("activate"))
	result := &ActivateResult{Version: c.build.Version}

	names, err := c.deps.Storage.Names(ctx)
	if err != nil {
		logger.WithError(err).Warn("cache_list_failed")
	}
	for _, name := range names {
		if name == c.build.Version {
			continue
		}
		deleted, err := c.deps.Storage.Delete(ctx, name)
		if err != nil {
			result.DeleteFailed = append(result.DeleteFailed, name)
			logger.WithError(err).WithField("store", name).Warn("cache_delete_failed")
			continue
		}
		if deleted {
			result.Deleted = append(result.Deleted, name)
			logger.WithField("store", name).Info("cache_deleted")
		}
	}

	result.Claimed = c.deps.Clients.Claim(c.build.Version)
	if err := c.life.transition(StateActive); err != nil {
		return nil, err
	}
	if hadPrevious {
		result.Notified = c.NotifyClients(Message{Type: MessageSyncData, Version: c.build.Version})
	}

	metrics.ObserveActivation(c.build.Version, len(result.Deleted))
	logger.WithFields(logrus.Fields{
		"deleted":  len(result.Deleted),
		"claimed":  result.Claimed,
		"notified": result.Notified,
	}).Info("controller_activated")
	return result, nil
}

// Fetch 是 fetch 事件入口：非 GET 与跨域请求不拦截，其余交给策略处理。
func (c *Controller) Fetch(ctx context.Context, req *Request) (*FetchResult, error) {
	if c.State() != StateActive {
		return nil, ErrNotActive
	}
	if req == nil || req.URL == nil {
		return nil, errors.New("fetch request url required")
	}
	if req.Method != http.MethodGet {
		return passthrough(), nil
	}
	if !SameOrigin(c.build.Scope, req.URL) {
		return passthrough(), nil
	}

	started := time.Now()
	result := c.strategy.Handle(ctx, c.env, req)
	elapsed := time.Since(started)

	metrics.ObserveFetch(c.strategy.Name, string(result.Source), elapsed)
	fields := c.fields("fetch")
	fields["elapsed_ms"] = elapsed.Milliseconds()
	c.logFetch(req, result, fields)
	return result, nil
}

// NotifyClients 向全部已连接客户端广播消息，返回投递成功的数量。
func (c *Controller) NotifyClients(msg Message) int {
	delivered := 0
	for _, client := range c.deps.Clients.MatchAll() {
		if err := c.deps.Clients.PostMessage(client.ID, msg); err != nil {
			c.logger().WithError(err).
				WithFields(c.fields("message")).
				WithFields(logrus.Fields{"client_id": client.ID, "type": string(msg.Type)}).
				Warn("client_message_failed")
			continue
		}
		delivered++
	}
	return delivered
}

func (c *Controller) markRedundant() {
	if err := c.life.transition(StateRedundant); err == nil {
		c.logger().WithFields(c.fields("lifecycle")).Info("controller_redundant")
	}
}

// openStore 懒加载当前版本 store，并发调用只会打开一次。
func (c *Controller) openStore(ctx context.Context) (cache.Store, error) {
	c.storeMu.Lock()
	defer c.storeMu.Unlock()
	if c.store != nil {
		return c.store, nil
	}
	store, err := c.deps.Storage.Open(ctx, c.build.Version)
	if err != nil {
		return nil, err
	}
	c.store = store
	return store, nil
}

func (c *Controller) logger() *logrus.Logger {
	if c.deps.Logger != nil {
		return c.deps.Logger
	}
	return logrus.StandardLogger()
}

func (c *Controller) fields(action string) logrus.Fields {
	return logrus.Fields{
		"action":        action,
		"version":       c.build.Version,
		"strategy":      c.strategy.Name,
		"controller_id": c.id,
	}
}
