package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/clients"
	"github.com/pwa-edge/pwa-edge/internal/config"
	"github.com/pwa-edge/pwa-edge/internal/notify"
	"github.com/pwa-edge/pwa-edge/internal/platform"
	"github.com/pwa-edge/pwa-edge/internal/sw"
	"github.com/pwa-edge/pwa-edge/internal/upstream"
)

// BuildFromConfig 把配置转换为一次 controller 构建。
func BuildFromConfig(cfg *config.Config) (sw.Build, error) {
	if cfg == nil {
		return sw.Build{}, errors.New("config is required")
	}
	scope, err := url.Parse(cfg.Controller.Scope)
	if err != nil {
		return sw.Build{}, fmt.Errorf("parse scope: %w", err)
	}
	ctrl := cfg.Controller
	return sw.Build{
		Scope:           scope,
		Version:         ctrl.CacheVersion,
		VersionEndpoint: ctrl.VersionEndpoint,
		Strategy:        ctrl.Strategy,
		StaticAssets:    ctrl.Assets(),
		OfflinePath:     ctrl.OfflinePath,
		CachePrefixes:   append([]string(nil), ctrl.CachePrefixes...),
		CacheExtensions: append([]string(nil), ctrl.CacheExtensions...),
		SkipWaiting:     ctrl.SkipWaiting,
		Sync: sw.SyncOptions{
			Tag:         cfg.Sync.Tag,
			Path:        cfg.Sync.Path,
			PeriodicTag: cfg.Sync.PeriodicTag,
			ProbePath:   cfg.Sync.ProbePath,
		},
		Notification: sw.Notification{
			Title: cfg.Push.Title,
			Body:  cfg.Push.Body,
			Icon:  cfg.Push.Icon,
			Badge: cfg.Push.Badge,
			Tag:   cfg.Push.Tag,
		},
	}, nil
}

// Runtime 把 controller 运行所需的全部组件装配在一起，供 serve 命令与路由使用。
type Runtime struct {
	Logger        *logrus.Logger
	Scope         *url.URL
	Client        *http.Client
	Network       *upstream.Network
	Storage       cache.Storage
	Clients       *clients.Hub
	Notifications *notify.Center
	Registration  *sw.Registration
	Scheduler     *platform.Scheduler
	Updates       *platform.UpdateChecker

	cfg atomic.Pointer[config.Config]
}

// RuntimeOption 调整 Runtime 的装配，主要供测试注入。
type RuntimeOption func(*runtimeOptions)

type runtimeOptions struct {
	client  *http.Client
	storage cache.Storage
	relay   *notify.Relay
}

// WithHTTPClient 替换访问源站使用的 http.Client。
func WithHTTPClient(client *http.Client) RuntimeOption {
	return func(o *runtimeOptions) { o.client = client }
}

// WithStorage 替换缓存存储，存储仍由 Runtime.Close 关闭。
func WithStorage(storage cache.Storage) RuntimeOption {
	return func(o *runtimeOptions) { o.storage = storage }
}

// WithRelay 替换通知外发渠道。
func WithRelay(relay *notify.Relay) RuntimeOption {
	return func(o *runtimeOptions) { o.relay = relay }
}

// NewRuntime 依据配置构建全部组件，但不安装 controller；调用 Start 后开始服务。
func NewRuntime(cfg *config.Config, logger *logrus.Logger, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	var options runtimeOptions
	for _, opt := range opts {
		opt(&options)
	}

	scope, err := url.Parse(cfg.Controller.Scope)
	if err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}
	origin, err := url.Parse(cfg.Controller.Upstream)
	if err != nil {
		return nil, fmt.Errorf("parse upstream: %w", err)
	}

	client := options.client
	if client == nil {
		client = upstream.NewClient(cfg)
	}
	storage := options.storage
	if storage == nil {
		storage, err = cache.NewStorage(cfg.Global.CacheDriver, cfg.Global.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("open cache storage: %w", err)
		}
	}

	relay := options.relay
	if relay == nil && cfg.Push.NotificationsEnabled() {
		relay, err = notify.NewRelay(cfg.Push.ShoutrrrURLs)
		if err != nil {
			_ = storage.Close()
			return nil, err
		}
	}
	var centerOpts []notify.Option
	if relay != nil {
		centerOpts = append(centerOpts, notify.WithRelay(relay))
	}

	rt := &Runtime{
		Logger:        logger,
		Scope:         scope,
		Client:        client,
		Network:       upstream.NewNetwork(client, scope, origin),
		Storage:       storage,
		Clients:       clients.NewHub(logger, clients.DefaultBufferSize),
		Notifications: notify.NewCenter(logger, cfg.Push.NotificationTTL.DurationValue(), centerOpts...),
	}
	rt.cfg.Store(cfg)
	rt.Registration = sw.NewRegistration(sw.Deps{
		Storage:       rt.Storage,
		Network:       rt.Network,
		Clients:       rt.Clients,
		Notifications: rt.Notifications,
		Logger:        logger,
	})
	rt.Scheduler = platform.NewScheduler(rt.Registration, platform.Options{
		InitialBackoff:    cfg.Global.InitialBackoff.DurationValue(),
		MaxRetries:        cfg.Global.MaxRetries,
		PeriodicTag:       cfg.Sync.PeriodicTag,
		PeriodicInterval:  cfg.Sync.PeriodicInterval.DurationValue(),
		PeriodicTagSource: rt.periodicTag,
	}, logger)
	rt.Updates = platform.NewUpdateChecker(rt.Registration, rt.CurrentBuild, cfg.Controller.UpdateInterval.DurationValue(), logger)
	rt.Clients.OnEmpty(func() {
		rt.Registration.ClientsReleased(context.Background())
	})
	return rt, nil
}

// Config 返回当前生效的配置。
func (rt *Runtime) Config() *config.Config {
	return rt.cfg.Load()
}

// periodicTag 读取当前配置的周期同步 tag，热加载后立即生效。
func (rt *Runtime) periodicTag() string {
	return rt.cfg.Load().Sync.PeriodicTag
}

// CurrentBuild 依据当前配置生成构建；配置已校验过，解析失败时返回空构建。
func (rt *Runtime) CurrentBuild() sw.Build {
	build, err := BuildFromConfig(rt.cfg.Load())
	if err != nil {
		rt.Logger.WithError(err).WithField("action", "update").Error("build_from_config_failed")
	}
	return build
}

// Start 安装并激活首个 controller，然后启动同步调度与更新检查。
func (rt *Runtime) Start(ctx context.Context) (*sw.UpdateResult, error) {
	result, err := rt.Registration.Update(ctx, rt.CurrentBuild())
	if err != nil {
		return nil, fmt.Errorf("install controller: %w", err)
	}
	if err := rt.Scheduler.Start(); err != nil {
		return nil, err
	}
	if err := rt.Updates.Start(context.Background()); err != nil {
		return nil, err
	}
	rt.Logger.WithFields(logrus.Fields{
		"action":  "startup",
		"version": result.Version,
		"state":   string(result.State),
	}).Info("controller_ready")
	return result, nil
}

// Reload 替换配置并走一次正常的更新流程。周期同步 tag 随配置即时切换；
// 全局参数（端口、存储、日志）与周期同步间隔需要重启生效。
func (rt *Runtime) Reload(ctx context.Context, cfg *config.Config) (*sw.UpdateResult, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	rt.cfg.Store(cfg)
	return rt.Updates.Check(ctx)
}

// Close 停止后台任务、断开全部客户端并关闭缓存存储。
func (rt *Runtime) Close() error {
	rt.Updates.Stop()
	rt.Scheduler.Stop()
	rt.Clients.CloseAll()
	return rt.Storage.Close()
}
