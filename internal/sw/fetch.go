package sw

import (
	"context"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
)

// Source 标记响应的来源，写入 X-SW-Source 响应头及日志。
type Source string

const (
	SourceCache       Source = "cache"
	SourceNetwork     Source = "network"
	SourceOffline     Source = "offline"
	SourceSynthesized Source = "synthesized"
	SourcePassthrough Source = "passthrough"
)

// FetchResult 是一次 fetch 事件的结果。Handled 为 false 时调用方应原样透传到网络，
// controller 没有读写任何缓存。
type FetchResult struct {
	Handled  bool
	Response *cache.Response
	Source   Source
	Stored   bool
	// NetworkErr 记录触发回退的网络错误，仅用于日志。
	NetworkErr error
}

func passthrough() *FetchResult {
	return &FetchResult{Handled: false, Source: SourcePassthrough}
}

// FetchEnv 是策略可以使用的 controller 能力集合。
type FetchEnv struct {
	c *Controller
}

// Version 返回当前 controller 的缓存版本。
func (e *FetchEnv) Version() string { return e.c.build.Version }

// MatchAny 在全部 store 中按创建顺序查找。
func (e *FetchEnv) MatchAny(ctx context.Context, req *Request) (*cache.Response, bool) {
	resp, err := e.c.deps.Storage.Match(ctx, req.Key())
	return e.matchResult(resp, err, req)
}

// MatchCurrent 只在当前版本 store 中查找。
func (e *FetchEnv) MatchCurrent(ctx context.Context, req *Request) (*cache.Response, bool) {
	store, err := e.c.openStore(ctx)
	if err != nil {
		return e.matchResult(nil, err, req)
	}
	resp, err := store.Match(ctx, req.Key())
	return e.matchResult(resp, err, req)
}

func (e *FetchEnv) matchResult(resp *cache.Response, err error, req *Request) (*cache.Response, bool) {
	if err == nil {
		return resp, true
	}
	if !errors.Is(err, cache.ErrNotFound) {
		e.c.logger().WithError(err).
			WithFields(e.c.fields("fetch")).
			WithField("url", req.URL.String()).
			Warn("cache_match_failed")
	}
	return nil, false
}

// Network 向网络发起请求。
func (e *FetchEnv) Network(ctx context.Context, req *Request) (*cache.Response, error) {
	return e.c.deps.Network.Fetch(ctx, req)
}

// Cacheable 判断请求路径是否属于需要写缓存的范围。
func (e *FetchEnv) Cacheable(req *Request) bool {
	return e.c.build.cacheable(req.path())
}

// Store 把响应副本写入当前版本 store，失败只记录日志。
func (e *FetchEnv) Store(ctx context.Context, req *Request, resp *cache.Response) bool {
	store, err := e.c.openStore(ctx)
	if err == nil {
		err = store.Put(ctx, req.Key(), resp.Clone())
	}
	if err != nil {
		e.c.logger().WithError(err).
			WithFields(e.c.fields("fetch")).
			WithField("url", req.URL.String()).
			Warn("cache_put_failed")
		return false
	}
	return true
}

// Fallback 处理网络失败：HTML 请求优先返回缓存中的离线页，否则合成 503；
// 其余请求合成 408。
func (e *FetchEnv) Fallback(ctx context.Context, req *Request, cause error) *FetchResult {
	if req.Accepts("text/html") {
		offline := NewRequest(http.MethodGet, resolvePath(e.c.build.Scope, e.c.build.OfflinePath), nil)
		if resp, ok := e.MatchAny(ctx, offline); ok {
			return &FetchResult{Handled: true, Response: resp, Source: SourceOffline, NetworkErr: cause}
		}
	}
	return e.Synthesize(req, cause)
}

// Synthesize 生成不依赖缓存的兜底响应。
func (e *FetchEnv) Synthesize(req *Request, cause error) *FetchResult {
	resp := RequestTimeoutResponse()
	if req.Accepts("text/html") {
		resp = OfflineResponse()
	}
	return &FetchResult{Handled: true, Response: resp, Source: SourceSynthesized, NetworkErr: cause}
}

// OfflineResponse 是 HTML 请求离线且无离线页时的合成响应。
func OfflineResponse() *cache.Response {
	return &cache.Response{
		Status:     http.StatusServiceUnavailable,
		StatusText: "Service Unavailable",
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       []byte("You are offline"),
	}
}

// RequestTimeoutResponse 是非 HTML 请求网络失败时的合成响应。
func RequestTimeoutResponse() *cache.Response {
	return &cache.Response{
		Status:     http.StatusRequestTimeout,
		StatusText: "Request Timeout",
		Header:     http.Header{"Content-Type": []string{"text/plain;charset=UTF-8"}},
		Body:       []byte("Network request failed"),
	}
}

func (c *Controller) logFetch(req *Request, result *FetchResult, fields logrus.Fields) {
	entry := c.logger().WithFields(fields).WithFields(logrus.Fields{
		"method":    req.Method,
		"path":      req.path(),
		"source":    string(result.Source),
		"client_id": req.ClientID,
		"stored":    result.Stored,
	})
	if result.Response != nil {
		entry = entry.WithField("status", result.Response.Status)
	}
	if result.NetworkErr != nil {
		entry.WithError(result.NetworkErr).Warn("fetch_network_failed")
		return
	}
	entry.Debug("fetch_served")
}
