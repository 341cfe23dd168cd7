package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jarcoal/httpmock"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/config"
	"github.com/pwa-edge/pwa-edge/internal/server"
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
			StaticAssets:    []string{"/"},
			OfflinePath:     "/",
			CachePrefixes:   []string{"/api/"},
			CacheExtensions: []string{".html"},
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
	rt   *server.Runtime
	mock *httpmock.MockTransport
	app  *fiber.App
}

// newTestEnv 装配带全部 /-/ 路由的 app，源站由 httpmock 模拟。
func newTestEnv(t *testing.T, start bool) *testEnv {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, testOrigin+"/",
		httpmock.NewStringResponder(http.StatusOK, "<html>home</html>").HeaderSet(http.Header{"Content-Type": []string{"text/html"}}))
	mock.RegisterResponder(http.MethodPost, testOrigin+"/api/sync",
		httpmock.NewStringResponder(http.StatusOK, `{"ok":true}`))

	storage, err := cache.NewMemoryStorage()
	if err != nil {
		t.Fatalf("创建内存缓存失败: %v", err)
	}
	rt, err := server.NewRuntime(newTestConfig(), logger,
		server.WithHTTPClient(&http.Client{Transport: mock}),
		server.WithStorage(storage),
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

	app, err := server.NewApp(server.AppOptions{Logger: logger, Gateway: server.NewGateway(rt)})
	if err != nil {
		t.Fatalf("创建 app 失败: %v", err)
	}
	Register(app, rt, Options{Metrics: true})
	return &testEnv{rt: rt, mock: mock, app: app}
}

func (e *testEnv) do(t *testing.T, method, path, body string, headers map[string]string) (*http.Response, string) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, testScope+path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := e.app.Test(req, fiber.TestConfig{Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("读取响应失败: %v", err)
	}
	return resp, string(raw)
}
