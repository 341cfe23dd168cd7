package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/pwa-edge/pwa-edge/internal/sw"
	"github.com/pwa-edge/pwa-edge/internal/version"
)

func TestNetworkRewritesSameOriginToUpstream(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, "http://origin.internal:9000/api/data?id=1",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("Accept-Encoding") != "" {
				t.Fatalf("Accept-Encoding 应被移除")
			}
			if req.Header.Get("Accept") != "application/json" {
				t.Fatalf("Accept 头应透传")
			}
			resp := httpmock.NewStringResponse(http.StatusOK, `{"ok":true}`)
			resp.Header.Set("Content-Type", "application/json")
			resp.Header.Set("Connection", "close")
			return resp, nil
		})

	network := NewNetwork(&http.Client{Transport: mock}, mustURL(t, "http://portal.local:8080"), mustURL(t, "http://origin.internal:9000"))
	req := sw.NewRequest(http.MethodGet, mustURL(t, "http://portal.local:8080/api/data?id=1"), http.Header{
		"Accept":          []string{"application/json"},
		"Accept-Encoding": []string{"gzip"},
	})
	resp, err := network.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if resp.Status != http.StatusOK || string(resp.Body) != `{"ok":true}` {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.StatusText != "OK" {
		t.Fatalf("status text mismatch: %q", resp.StatusText)
	}
	if resp.Header.Get("Connection") != "" {
		t.Fatalf("hop-by-hop 头不应保留")
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Fatalf("content-type 丢失")
	}
}

func TestNetworkKeepsCrossOriginTarget(t *testing.T) {
	network := NewNetwork(nil, mustURL(t, "http://portal.local"), mustURL(t, "http://origin.internal"))
	target := network.Target(mustURL(t, "https://cdn.example.com/lib.js#frag"))
	if target.String() != "https://cdn.example.com/lib.js" {
		t.Fatalf("跨域地址不应改写: %s", target)
	}
	same := network.Target(mustURL(t, "http://portal.local:80/"))
	if same.Host != "origin.internal" {
		t.Fatalf("默认端口应视为同源: %s", same)
	}
}

func TestNetworkUpstreamBasePath(t *testing.T) {
	network := NewNetwork(nil, mustURL(t, "http://portal.local"), mustURL(t, "http://origin.internal/portal/"))
	target := network.Target(mustURL(t, "http://portal.local/offline.html"))
	if target.String() != "http://origin.internal/portal/offline.html" {
		t.Fatalf("base path 未拼接: %s", target)
	}
}

func TestNetworkSendsBody(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodPost, "http://origin.internal/api/sync",
		func(req *http.Request) (*http.Response, error) {
			body, _ := io.ReadAll(req.Body)
			if string(body) != `{"tag":"x"}` {
				t.Fatalf("body mismatch: %s", body)
			}
			return httpmock.NewStringResponse(http.StatusAccepted, ""), nil
		})
	network := NewNetwork(&http.Client{Transport: mock}, mustURL(t, "http://portal.local"), mustURL(t, "http://origin.internal"))
	req := sw.NewRequest(http.MethodPost, mustURL(t, "http://portal.local/api/sync"), nil)
	req.Body = []byte(`{"tag":"x"}`)
	resp, err := network.Fetch(context.Background(), req)
	if err != nil {
		t.Fatalf("fetch error: %v", err)
	}
	if resp.Status != http.StatusAccepted {
		t.Fatalf("status mismatch: %d", resp.Status)
	}
}

func TestNetworkStampsUserAgent(t *testing.T) {
	network := NewNetwork(nil, mustURL(t, "http://portal.local"), mustURL(t, "http://origin.internal"))

	precache := sw.NewRequest(http.MethodGet, mustURL(t, "http://portal.local/offline.html"), nil)
	httpReq, err := network.NewHTTPRequest(context.Background(), precache, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if got := httpReq.Header.Get("User-Agent"); got != version.UserAgent() {
		t.Fatalf("controller 发起的请求应带默认 UA，得到 %q", got)
	}

	page := sw.NewRequest(http.MethodGet, mustURL(t, "http://portal.local/"), http.Header{"User-Agent": []string{"Mozilla/5.0"}})
	httpReq, err = network.NewHTTPRequest(context.Background(), page, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if got := httpReq.Header.Get("User-Agent"); got != "Mozilla/5.0" {
		t.Fatalf("页面的 UA 应透传，得到 %q", got)
	}
}

func TestNetworkPropagatesTransportError(t *testing.T) {
	mock := httpmock.NewMockTransport()
	mock.RegisterResponder(http.MethodGet, "http://origin.internal/", httpmock.NewErrorResponder(errors.New("connection refused")))
	network := NewNetwork(&http.Client{Transport: mock}, mustURL(t, "http://portal.local"), mustURL(t, "http://origin.internal"))
	if _, err := network.Fetch(context.Background(), sw.NewRequest(http.MethodGet, mustURL(t, "http://portal.local/"), nil)); err == nil {
		t.Fatalf("transport error should propagate")
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}
