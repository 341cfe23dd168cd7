package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jarcoal/httpmock"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/config"
)

const (
	testScope  = "http://portal.local"
	testOrigin = "http://origin.local"
)

func newTestConfig() *config.Config {
	return &config.Config{
		Global: config.GlobalConfig{
			ListenPort:      8080,
			LogLevel:        "info",
			CacheDriver:     cache.DriverMemory,
			UpstreamTimeout: config.Duration(5 * time.Second),
			MaxRetries:      1,
			InitialBackoff:  config.Duration(time.Millisecond),
		},
		Controller: config.ControllerConfig{
			Scope:           testScope,
			Upstream:        testOrigin,
			CacheVersion:    "ambetter-v1.0.0",
			Strategy:        "cache-first",
			StaticAssets:    []string{"/", "/offline.html"},
			OfflinePath:     "/offline.html",
			CachePrefixes:   []string{"/api/"},
			CacheExtensions: []string{".html"},
			SkipWaiting:     true,
		},
		Sync: config.SyncConfig{
			Tag:         "sync-health-data",
			Path:        "/api/sync",
			PeriodicTag: "update-check",
			ProbePath:   "/",
		},
		Push: config.PushConfig{
			Title:           "Ambetter Health",
			Body:            "You have a new update",
			Icon:            "/ambetter-logo-new.png",
			Badge:           "/favicon.ico",
			Tag:             "ambetter-notification",
			NotificationTTL: config.Duration(time.Hour),
		},
	}
}

type testEnv struct {
	rt   *Runtime
	mock *httpmock.MockTransport
	app  *fiber.App
}

// newTestEnv 装配一个使用内存缓存与 httpmock 源站的 Runtime；start 为 true 时安装首个 controller。
func newTestEnv(t *testing.T, start bool) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, testOrigin+"/",
		httpmock.NewStringResponder(http.StatusOK, "<html>home</html>").HeaderSet(http.Header{"Content-Type": []string{"text/html"}}))
	mock.RegisterResponder(http.MethodGet, testOrigin+"/offline.html",
		httpmock.NewStringResponder(http.StatusOK, "<html>offline</html>").HeaderSet(http.Header{"Content-Type": []string{"text/html"}}))

	storage, err := cache.NewMemoryStorage()
	if err != nil {
		t.Fatalf("创建内存缓存失败: %v", err)
	}
	rt, err := NewRuntime(newTestConfig(), logger,
		WithHTTPClient(&http.Client{Transport: mock}),
		WithStorage(storage),
	)
	if err != nil {
		t.Fatalf("创建 Runtime 失败: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	if start {
		if _, err := rt.Start(context.Background()); err != nil {
			t.Fatalf("启动 Runtime 失败: %v", err)
		}
	}

	app, err := NewApp(AppOptions{Logger: logger, Gateway: NewGateway(rt)})
	if err != nil {
		t.Fatalf("创建 app 失败: %v", err)
	}
	return &testEnv{rt: rt, mock: mock, app: app}
}

func (e *testEnv) calls(method, path string) int {
	return e.mock.GetCallCountInfo()[method+" "+testOrigin+path]
}
