package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Storage 管理全部已命名的 CacheStore，等价于浏览器的 CacheStorage。
type Storage interface {
	// Open 返回指定名称的 store，不存在时创建。
	Open(ctx context.Context, name string) (Store, error)

	// Has 判断 store 是否存在。
	Has(ctx context.Context, name string) (bool, error)

	// Names 按创建顺序返回所有 store 名称。
	Names(ctx context.Context) ([]string, error)

	// Delete 删除整个 store 及其全部条目；返回值表示删除前是否存在。
	Delete(ctx context.Context, name string) (bool, error)

	// Match 按创建顺序在所有 store 中查找条目，找不到返回 ErrNotFound。
	Match(ctx context.Context, key RequestKey) (*Response, error)

	Close() error
}

// Store 是单个版本的缓存，所有操作各自原子。
type Store interface {
	Name() string

	// Match 精确匹配条目，不存在返回 ErrNotFound。
	Match(ctx context.Context, key RequestKey) (*Response, error)

	// Put 写入（或覆盖）条目。实现需保证失败时不留下半写状态。
	Put(ctx context.Context, key RequestKey, resp *Response) error

	// Delete 删除条目；返回值表示删除前是否存在。
	Delete(ctx context.Context, key RequestKey) (bool, error)

	// Keys 返回当前 store 的全部条目键。
	Keys(ctx context.Context) ([]RequestKey, error)
}

// RequestKey 是规范化后的请求描述（方法 + 绝对 URL，不含 fragment）。
type RequestKey struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewRequestKey 规范化方法与 URL：方法大写、scheme/host 小写、去掉 fragment，空路径记为 "/"。
func NewRequestKey(method string, u *url.URL) RequestKey {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if u == nil {
		return RequestKey{Method: method, URL: "/"}
	}
	clone := *u
	clone.Fragment = ""
	clone.RawFragment = ""
	clone.Scheme = strings.ToLower(clone.Scheme)
	clone.Host = strings.ToLower(clone.Host)
	if clone.Path == "" {
		clone.Path = "/"
	}
	return RequestKey{Method: method, URL: clone.String()}
}

// String 以 "METHOD URL" 形式输出，同时作为驱动内部的存储键。
func (k RequestKey) String() string {
	return k.Method + " " + k.URL
}

func parseRequestKey(raw string) (RequestKey, bool) {
	method, rest, ok := strings.Cut(raw, " ")
	if !ok || method == "" || rest == "" {
		return RequestKey{}, false
	}
	return RequestKey{Method: method, URL: rest}, true
}

// Response 是被捕获的响应，Body 完整缓冲在内存中。
type Response struct {
	Status     int
	StatusText string
	Header     http.Header
	Body       []byte
	StoredAt   time.Time
}

// Clone 返回深拷贝，调用方可以安全地修改返回值。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := *r
	cloned.Header = r.Header.Clone()
	if cloned.Header == nil {
		cloned.Header = http.Header{}
	}
	cloned.Body = append([]byte(nil), r.Body...)
	return &cloned
}

// OK 对应 fetch 语义里的 response.ok（2xx）。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

var (
	// ErrNotFound 表示条目或 store 不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrStorageClosed 表示底层存储已关闭。
	ErrStorageClosed = errors.New("cache storage closed")
	// ErrInvalidName 表示 store 名称不合法。
	ErrInvalidName = errors.New("invalid cache store name")
)

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "/\\\x00") || name == "." || name == ".." {
		return ErrInvalidName
	}
	return nil
}
