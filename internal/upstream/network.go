package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/sw"
	"github.com/pwa-edge/pwa-edge/internal/version"
)

// MaxBodyBytes 限制被缓冲的响应体大小，超出时视为网络失败。
const MaxBodyBytes = 32 << 20

// Network 是 sw.Network 的 HTTP 实现：同源请求改写到源站 Upstream，
// 跨域请求按原地址发出。
type Network struct {
	client   *http.Client
	scope    *url.URL
	upstream *url.URL
}

var _ sw.Network = (*Network)(nil)

// NewNetwork 构建网络实现，client 为空时使用 http.DefaultClient。
func NewNetwork(client *http.Client, scope, upstream *url.URL) *Network {
	if client == nil {
		client = http.DefaultClient
	}
	return &Network{client: client, scope: scope, upstream: upstream}
}

// Target 计算请求真正发往的地址。
func (n *Network) Target(u *url.URL) *url.URL {
	target := *u
	target.Fragment = ""
	target.RawFragment = ""
	if n.upstream != nil && (n.scope == nil || sw.SameOrigin(n.scope, &target)) {
		target.Scheme = n.upstream.Scheme
		target.Host = n.upstream.Host
		if base := strings.TrimSuffix(n.upstream.Path, "/"); base != "" {
			target.Path = base + target.Path
			if target.RawPath != "" {
				target.RawPath = base + target.RawPath
			}
		}
	}
	return &target
}

// NewHTTPRequest 依据 sw.Request 构建发往源站的 *http.Request。
func (n *Network) NewHTTPRequest(ctx context.Context, req *sw.Request, body io.Reader) (*http.Request, error) {
	if body == nil && len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, n.Target(req.URL).String(), body)
	if err != nil {
		return nil, err
	}
	CopyHeaders(httpReq.Header, req.Header)
	// 响应体需要原样缓存，避免透明压缩改写内容。
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Header.Del("X-Client-ID")
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", version.UserAgent())
	}
	return httpReq, nil
}

// Fetch 实现 sw.Network，完整读取响应体。
func (n *Network) Fetch(ctx context.Context, req *sw.Request) (*cache.Response, error) {
	httpReq, err := n.NewHTTPRequest(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	resp, err := n.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("upstream body exceeds %d bytes", MaxBodyBytes)
	}

	header := http.Header{}
	CopyHeaders(header, resp.Header)
	header.Del("Content-Length")
	return &cache.Response{
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Header:     header,
		Body:       body,
	}, nil
}

func statusText(resp *http.Response) string {
	if text, ok := strings.CutPrefix(resp.Status, fmt.Sprintf("%d ", resp.StatusCode)); ok {
		return text
	}
	return http.StatusText(resp.StatusCode)
}
