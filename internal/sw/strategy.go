package sw

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

const (
	StrategyCacheFirst   = "cache-first"
	StrategyNetworkFirst = "network-first"
	StrategyNetworkOnly  = "network-only"
)

// StrategyFunc 处理一个已确认需要拦截的同源 GET 请求，必须始终给出响应。
type StrategyFunc func(ctx context.Context, env *FetchEnv, req *Request) *FetchResult

// StrategyMetadata 描述一个具名的 fetch 策略。Precache 为 false 时 install 不预取静态资源。
type StrategyMetadata struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Precache    bool         `json:"precache"`
	Handle      StrategyFunc `json:"-"`
}

var strategies = newStrategyRegistry()

type strategyRegistry struct {
	mu    sync.RWMutex
	items map[string]StrategyMetadata
}

func newStrategyRegistry() *strategyRegistry {
	return &strategyRegistry{items: make(map[string]StrategyMetadata)}
}

// RegisterStrategy 将策略加入全局注册表，重复名称返回错误。
func RegisterStrategy(meta StrategyMetadata) error {
	return strategies.register(meta)
}

// MustRegisterStrategy 在注册失败时 panic，适合 init() 中调用。
func MustRegisterStrategy(meta StrategyMetadata) {
	if err := RegisterStrategy(meta); err != nil {
		panic(err)
	}
}

// ResolveStrategy 返回指定名称的策略。
func ResolveStrategy(name string) (StrategyMetadata, bool) {
	return strategies.resolve(name)
}

// Strategies 返回按名称排序的策略列表。
func Strategies() []StrategyMetadata {
	return strategies.list()
}

// StrategyNames 返回所有已注册策略的名称，供配置校验与诊断使用。
func StrategyNames() []string {
	items := Strategies()
	result := make([]string, len(items))
	for i, meta := range items {
		result[i] = meta.Name
	}
	return result
}

func normalizeStrategyName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func (r *strategyRegistry) register(meta StrategyMetadata) error {
	name := normalizeStrategyName(meta.Name)
	if name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if meta.Handle == nil {
		return fmt.Errorf("strategy %s has no handler", name)
	}
	meta.Name = name

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("strategy %s already registered", name)
	}
	r.items[name] = meta
	return nil
}

func (r *strategyRegistry) resolve(name string) (StrategyMetadata, bool) {
	normalized := normalizeStrategyName(name)
	if normalized == "" {
		return StrategyMetadata{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	meta, ok := r.items[normalized]
	return meta, ok
}

func (r *strategyRegistry) list() []StrategyMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]StrategyMetadata, 0, len(names))
	for _, name := range names {
		result = append(result, r.items[name])
	}
	return result
}
