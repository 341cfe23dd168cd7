package sw_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/clients"
	"github.com/pwa-edge/pwa-edge/internal/sw"
	"github.com/pwa-edge/pwa-edge/internal/upstream"
)

const (
	scopeURL  = "http://portal.local"
	originURL = "http://origin.local"
)

// fixture 把内存缓存、httpmock 源站、客户端集合与通知记录装配在一起。
type fixture struct {
	t       *testing.T
	mock    *httpmock.MockTransport
	storage cache.Storage
	hub     *clients.Hub
	surface *recordingSurface
	scope   *url.URL
	deps    sw.Deps

	registered map[string]bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	storage, err := cache.NewMemoryStorage()
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	scope := mustParse(t, scopeURL)
	mock := httpmock.NewMockTransport()
	hub := clients.NewHub(logger, 32)
	surface := &recordingSurface{}
	network := upstream.NewNetwork(&http.Client{Transport: mock}, scope, mustParse(t, originURL))

	return &fixture{
		t:       t,
		mock:    mock,
		storage: storage,
		hub:     hub,
		surface: surface,
		scope:   scope,
		deps: sw.Deps{
			Storage:       storage,
			Network:       network,
			Clients:       hub,
			Notifications: surface,
			Logger:        logger,
		},
		registered: make(map[string]bool),
	}
}

func (f *fixture) build(version string, mods ...func(*sw.Build)) sw.Build {
	b := sw.Build{
		Scope:           f.scope,
		Version:         version,
		Strategy:        sw.StrategyCacheFirst,
		StaticAssets:    []string{"/", "/offline.html"},
		OfflinePath:     "/offline.html",
		CachePrefixes:   []string{"/api/"},
		CacheExtensions: []string{".html"},
		SkipWaiting:     true,
		Sync: sw.SyncOptions{
			Tag:         "sync-health-data",
			Path:        "/api/sync",
			PeriodicTag: "update-check",
			ProbePath:   "/",
		},
		Notification: sw.Notification{
			Title: "Ambetter Health",
			Body:  "You have a new update",
			Icon:  "/ambetter-logo-new.png",
			Badge: "/favicon.ico",
			Tag:   "ambetter-notification",
		},
	}
	for _, mod := range mods {
		mod(&b)
	}
	return b
}

func (f *fixture) respond(method, path string, status int, body string, header ...string) {
	responder := httpmock.NewStringResponder(status, body)
	if len(header) == 2 {
		responder = responder.HeaderSet(http.Header{header[0]: []string{header[1]}})
	}
	f.mock.RegisterResponder(method, originURL+path, responder)
	f.registered[method+" "+path] = true
}

func (f *fixture) fail(method, path string) {
	f.mock.RegisterResponder(method, originURL+path, httpmock.NewErrorResponder(errOffline))
	f.registered[method+" "+path] = true
}

func (f *fixture) calls(method, path string) int {
	return f.mock.GetCallCountInfo()[method+" "+originURL+path]
}

// activeController 安装并激活一个 controller，静态资源全部成功返回。
func (f *fixture) activeController(b sw.Build) *sw.Controller {
	f.t.Helper()
	for _, asset := range b.StaticAssets {
		if !f.registered["GET "+asset] {
			f.respond(http.MethodGet, asset, http.StatusOK, "asset:"+asset, "Content-Type", "text/html")
		}
	}
	ctrl, err := sw.NewController(b, f.deps)
	require.NoError(f.t, err)
	_, err = ctrl.Install(context.Background())
	require.NoError(f.t, err)
	_, err = ctrl.Activate(context.Background(), false)
	require.NoError(f.t, err)
	return ctrl
}

func (f *fixture) keys(version string) []cache.RequestKey {
	f.t.Helper()
	store, err := f.storage.Open(context.Background(), version)
	require.NoError(f.t, err)
	keys, err := store.Keys(context.Background())
	require.NoError(f.t, err)
	return keys
}

func (f *fixture) get(path string, accept string) *sw.Request {
	header := http.Header{}
	if accept != "" {
		header.Set("Accept", accept)
	}
	return sw.NewRequest(http.MethodGet, mustParse(f.t, scopeURL+path), header)
}

// drain 取出客户端当前已排队的全部消息。
func drain(client *clients.Client) []sw.Message {
	var msgs []sw.Message
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				return msgs
			}
			msgs = append(msgs, msg)
		default:
			return msgs
		}
	}
}

type recordingSurface struct {
	mu     sync.Mutex
	shown  []sw.Notification
	closed []string
}

func (s *recordingSurface) Show(_ context.Context, n sw.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shown = append(s.shown, n)
	return nil
}

func (s *recordingSurface) Close(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = append(s.closed, tag)
	return len(s.shown) > 0
}

var errOffline = errors.New("network unreachable")

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}
