package sw

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/pwa-edge/pwa-edge/internal/cache"
)

// Request 是被拦截的请求。URL 为绝对地址，Header 只读。
type Request struct {
	Method   string
	URL      *url.URL
	Header   http.Header
	Body     []byte
	ClientID string
}

// NewRequest 构建请求描述，header 为空时自动初始化。
func NewRequest(method string, u *url.URL, header http.Header) *Request {
	if header == nil {
		header = http.Header{}
	}
	return &Request{Method: strings.ToUpper(method), URL: u, Header: header}
}

// Key 返回缓存匹配使用的规范化键。
func (r *Request) Key() cache.RequestKey {
	return cache.NewRequestKey(r.Method, r.URL)
}

// Accepts 判断 Accept 头是否声明了指定 MIME 类型。
func (r *Request) Accepts(mime string) bool {
	return strings.Contains(strings.ToLower(r.Header.Get("Accept")), mime)
}

// IsNavigation 判断请求是否为页面导航（Sec-Fetch-Mode: navigate 或声明接受 HTML）。
func (r *Request) IsNavigation() bool {
	if strings.EqualFold(r.Header.Get("Sec-Fetch-Mode"), "navigate") {
		return true
	}
	return r.Accepts("text/html")
}

func (r *Request) path() string {
	if r.URL == nil || r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// Network 代表 controller 外部的网络。返回 error 仅表示网络层失败，
// HTTP 非 2xx 响应以 Response 形式返回，与 fetch 语义一致。
type Network interface {
	Fetch(ctx context.Context, req *Request) (*cache.Response, error)
}

// NetworkFunc 允许用普通函数实现 Network。
type NetworkFunc func(ctx context.Context, req *Request) (*cache.Response, error)

// Fetch 实现 Network。
func (f NetworkFunc) Fetch(ctx context.Context, req *Request) (*cache.Response, error) {
	return f(ctx, req)
}
