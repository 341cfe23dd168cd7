package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/config"
	"github.com/pwa-edge/pwa-edge/internal/logging"
	"github.com/pwa-edge/pwa-edge/internal/metrics"
	"github.com/pwa-edge/pwa-edge/internal/portal"
	"github.com/pwa-edge/pwa-edge/internal/server"
	"github.com/pwa-edge/pwa-edge/internal/server/routes"
	"github.com/pwa-edge/pwa-edge/internal/version"
)

const shutdownTimeout = 10 * time.Second

func loadConfigAndLogger(path string) (*config.Config, *logrus.Logger, int) {
	cfg, err := config.Load(path)
	if err != nil {
		if fieldErr, ok := config.AsFieldError(err); ok {
			fmt.Fprintf(stdErr, "加载配置失败: 字段 %s %s\n", fieldErr.Field, fieldErr.Reason)
		} else {
			fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		}
		return nil, nil, 1
	}
	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return nil, nil, 1
	}
	return cfg, logger, 0
}

func runCheckConfig(opts cliOptions) int {
	cfg, logger, code := loadConfigAndLogger(opts.configPath)
	if code != 0 {
		return code
	}
	fields := logging.BaseFields("check_config", opts.configPath)
	fields["cache_version"] = cfg.Controller.CacheVersion
	fields["strategy"] = cfg.Controller.Strategy
	fields["assets"] = len(cfg.Controller.Assets())
	fields["cache_driver"] = cfg.Global.CacheDriver
	fields["result"] = "ok"
	logger.WithFields(fields).Info("配置校验通过")
	return 0
}

// runServe 遵循“配置 → Runtime（安装首个 controller）→ Fiber server”顺序，
// 收到退出信号后先断开 SSE 客户端再关闭监听。
func runServe(ctx context.Context, opts cliOptions) int {
	cfg, logger, code := loadConfigAndLogger(opts.configPath)
	if code != 0 {
		return code
	}

	if cfg.Global.MetricsEnabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			fmt.Fprintf(stdErr, "注册指标失败: %v\n", err)
			return 1
		}
	}

	rt, err := server.NewRuntime(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 Runtime 失败: %v\n", err)
		return 1
	}
	defer func() { _ = rt.Close() }()

	if _, err := rt.Start(ctx); err != nil {
		fmt.Fprintf(stdErr, "安装 controller 失败: %v\n", err)
		return 1
	}

	app, err := server.NewApp(server.AppOptions{Logger: logger, Gateway: server.NewGateway(rt)})
	if err != nil {
		fmt.Fprintf(stdErr, "创建 HTTP 服务失败: %v\n", err)
		return 1
	}
	routes.Register(app, rt, routes.Options{Metrics: cfg.Global.MetricsEnabled})

	watcher := config.NewWatcher(opts.configPath)
	if err := watcher.Start(func(next *config.Config, err error) {
		reloadConfig(rt, logger, opts.configPath, next, err)
	}); err != nil {
		logger.WithError(err).WithFields(logging.BaseFields("config_watch", opts.configPath)).Warn("config_watch_disabled")
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["scope"] = cfg.Controller.Scope
	fields["upstream"] = cfg.Controller.Upstream
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	return listenUntilDone(ctx, app, cfg.Global.ListenPort, logger, rt.Clients.CloseAll)
}

func reloadConfig(rt *server.Runtime, logger *logrus.Logger, path string, next *config.Config, err error) {
	fields := logging.BaseFields("config_watch", path)
	if err != nil {
		logger.WithError(err).WithFields(fields).Warn("config_reload_rejected")
		return
	}
	result, err := rt.Reload(context.Background(), next)
	if err != nil {
		logger.WithError(err).WithFields(fields).Error("config_reload_failed")
		return
	}
	fields["changed"] = result.Changed
	fields["version"] = result.Version
	logger.WithFields(fields).Info("config_reloaded")
}

// listenUntilDone 监听端口直到 ctx 结束；beforeShutdown 在关闭监听前执行，用来结束长连接。
func listenUntilDone(ctx context.Context, app *fiber.App, port int, logger *logrus.Logger, beforeShutdown func()) int {
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	select {
	case err := <-errCh:
		if err != nil {
			fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
			return 1
		}
		return 0
	case <-ctx.Done():
	}

	logger.WithField("action", "shutdown").Info("shutdown_requested")
	if beforeShutdown != nil {
		beforeShutdown()
	}
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		logger.WithError(err).WithField("action", "shutdown").Warn("shutdown_incomplete")
		return 1
	}
	return 0
}

func runDemoOrigin(ctx context.Context, opts cliOptions) int {
	logger, err := logging.InitLogger(config.GlobalConfig{LogLevel: "info"})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}
	p, err := portal.New(portal.Options{Logger: logger, Version: opts.demoVersion})
	if err != nil {
		fmt.Fprintf(stdErr, "创建演示源站失败: %v\n", err)
		return 1
	}
	logger.WithFields(logrus.Fields{
		"action":  "demo_origin",
		"version": "ambetter-v" + p.Version(),
	}).Info("demo_origin_ready")
	return listenUntilDone(ctx, p.App(), opts.demoPort, logger, nil)
}

// runPurge 离线删除配置版本以外的全部 CacheStore，相当于在未启动时执行一次 activate 清理。
func runPurge(ctx context.Context, opts cliOptions) int {
	cfg, logger, code := loadConfigAndLogger(opts.configPath)
	if code != 0 {
		return code
	}
	storage, err := cache.NewStorage(cfg.Global.CacheDriver, cfg.Global.StoragePath)
	if err != nil {
		fmt.Fprintf(stdErr, "打开缓存存储失败: %v\n", err)
		return 1
	}
	defer func() { _ = storage.Close() }()

	names, err := storage.Names(ctx)
	if err != nil {
		fmt.Fprintf(stdErr, "读取缓存列表失败: %v\n", err)
		return 1
	}

	keep := cfg.Controller.CacheVersion
	deleted := 0
	for _, name := range names {
		if name == keep {
			continue
		}
		if !opts.dryRun {
			if _, err := storage.Delete(ctx, name); err != nil {
				logger.WithError(err).WithFields(logrus.Fields{"action": "purge", "store": name}).Warn("purge_delete_failed")
				continue
			}
		}
		deleted++
		fmt.Fprintln(stdOut, name)
	}

	fields := logging.BaseFields("purge", opts.configPath)
	fields["kept"] = keep
	fields["deleted"] = deleted
	fields["dry_run"] = opts.dryRun
	logger.WithFields(fields).Info("purge_complete")
	return 0
}
