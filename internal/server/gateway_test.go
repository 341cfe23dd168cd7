package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/jarcoal/httpmock"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/sw"
)

func TestGatewayServesPrecachedAssetFromCache(t *testing.T) {
	env := newTestEnv(t, true)
	before := env.calls(http.MethodGet, "/")

	req := httptest.NewRequest("GET", testScope+"/", nil)
	req.Header.Set("Accept", "text/html")
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "<html>home</html>" {
		t.Fatalf("unexpected response %d %s", resp.StatusCode, string(body))
	}
	if got := resp.Header.Get("X-SW-Source"); got != string(sw.SourceCache) {
		t.Fatalf("expected cache source, got %s", got)
	}
	if got := resp.Header.Get("X-SW-Version"); got != "ambetter-v1.0.0" {
		t.Fatalf("expected version header, got %s", got)
	}
	if env.calls(http.MethodGet, "/") != before {
		t.Fatalf("cache hit must not reach the network")
	}
}

func TestGatewayStoresAPIResponses(t *testing.T) {
	env := newTestEnv(t, true)
	env.mock.RegisterResponder(http.MethodGet, testOrigin+"/api/services/list",
		httpmock.NewStringResponder(http.StatusOK, `{"services":[]}`))

	for i := 0; i < 2; i++ {
		resp, err := env.app.Test(httptest.NewRequest("GET", testScope+"/api/services/list", nil))
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("unexpected status %d", resp.StatusCode)
		}
	}
	if got := env.calls(http.MethodGet, "/api/services/list"); got != 1 {
		t.Fatalf("second request should be served from cache, network calls=%d", got)
	}
}

func TestGatewayPassesThroughNonGET(t *testing.T) {
	env := newTestEnv(t, true)
	env.mock.RegisterResponder(http.MethodPost, testOrigin+"/api/sync", func(req *http.Request) (*http.Response, error) {
		raw, _ := io.ReadAll(req.Body)
		if string(raw) != `{"tag":"manual"}` {
			return httpmock.NewStringResponse(http.StatusBadRequest, "bad body"), nil
		}
		return httpmock.NewStringResponse(http.StatusCreated, `{"success":true}`), nil
	})

	req := httptest.NewRequest("POST", testScope+"/api/sync", strings.NewReader(`{"tag":"manual"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("expected 201 from origin, got %d (%s)", resp.StatusCode, string(body))
	}
	if got := resp.Header.Get("X-SW-Source"); got != string(sw.SourcePassthrough) {
		t.Fatalf("expected passthrough source, got %s", got)
	}
	keys, err := env.rt.Storage.Names(context.Background())
	if err != nil || len(keys) != 1 {
		t.Fatalf("passthrough must not create stores: %v %v", keys, err)
	}
}

func TestGatewayOfflineFallback(t *testing.T) {
	env := newTestEnv(t, true)
	env.mock.RegisterResponder(http.MethodGet, testOrigin+"/dashboard", httpmock.NewErrorResponder(errors.New("offline")))

	req := httptest.NewRequest("GET", testScope+"/dashboard", nil)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "<html>offline</html>" {
		t.Fatalf("expected offline document, got %s", string(body))
	}
	if got := resp.Header.Get("X-SW-Source"); got != string(sw.SourceOffline) {
		t.Fatalf("expected offline source, got %s", got)
	}

	env.mock.RegisterResponder(http.MethodGet, testOrigin+"/api/data", httpmock.NewErrorResponder(errors.New("offline")))
	resp, err = env.app.Test(httptest.NewRequest("GET", testScope+"/api/data", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != http.StatusRequestTimeout {
		t.Fatalf("expected synthesized 408, got %d", resp.StatusCode)
	}
}

func TestGatewayPassthroughFailureReturns502(t *testing.T) {
	env := newTestEnv(t, true)
	env.mock.RegisterResponder(http.MethodPost, testOrigin+"/api/sync", httpmock.NewErrorResponder(errors.New("refused")))

	resp, err := env.app.Test(httptest.NewRequest("POST", testScope+"/api/sync", strings.NewReader("{}")))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "upstream_failed") {
		t.Fatalf("expected upstream_failed, got %s", string(body))
	}
}

func TestGatewayWithoutActiveControllerPassesThrough(t *testing.T) {
	env := newTestEnv(t, false)

	resp, err := env.app.Test(httptest.NewRequest("GET", testScope+"/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if got := resp.Header.Get("X-SW-Source"); got != string(sw.SourcePassthrough) {
		t.Fatalf("expected passthrough before activation, got %s", got)
	}
	names, _ := env.rt.Storage.Names(context.Background())
	if len(names) != 0 {
		t.Fatalf("no store should exist before install: %v", names)
	}
}

func TestGatewayUncontrolledClientPassesThrough(t *testing.T) {
	env := newTestEnv(t, true)
	client := env.rt.Clients.Register(testScope+"/", "")
	before := env.calls(http.MethodGet, "/")

	req := httptest.NewRequest("GET", testScope+"/", nil)
	req.Header.Set(HeaderClientID, client.ID)
	resp, err := env.app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if got := resp.Header.Get("X-SW-Source"); got != string(sw.SourcePassthrough) {
		t.Fatalf("uncontrolled client should bypass cache, got %s", got)
	}
	if env.calls(http.MethodGet, "/") != before+1 {
		t.Fatalf("expected one network call for uncontrolled client")
	}
}

type panicFetcher struct{}

func (panicFetcher) Fetch(context.Context, *sw.Request) (*sw.FetchResult, error) {
	panic("strategy exploded")
}

func (panicFetcher) Active() (*sw.Controller, error) { return nil, sw.ErrNotActive }

func TestGatewayRecoversControllerPanic(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	gateway := &Gateway{fetcher: panicFetcher{}, logger: logger}
	app, err := NewApp(AppOptions{Logger: logger, Gateway: gateway})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", testScope+"/", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "controller_panic") {
		t.Fatalf("expected controller_panic, got %s", string(body))
	}
}
