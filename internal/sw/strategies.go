package sw

import (
	"context"
	"net/http"
)

func init() {
	MustRegisterStrategy(StrategyMetadata{
		Name:        StrategyCacheFirst,
		Description: "serve any cached entry, otherwise network; caches /, configured extensions and prefixes",
		Precache:    true,
		Handle:      cacheFirst,
	})
	MustRegisterStrategy(StrategyMetadata{
		Name:        StrategyNetworkFirst,
		Description: "navigations try network then the current version store; other requests are network only",
		Precache:    true,
		Handle:      networkFirst,
	})
	MustRegisterStrategy(StrategyMetadata{
		Name:        StrategyNetworkOnly,
		Description: "always network, never reads or writes caches",
		Handle:      networkOnly,
	})
}

func cacheFirst(ctx context.Context, env *FetchEnv, req *Request) *FetchResult {
	if cached, ok := env.MatchAny(ctx, req); ok {
		return &FetchResult{Handled: true, Response: cached, Source: SourceCache}
	}

	resp, err := env.Network(ctx, req)
	if err != nil {
		return env.Fallback(ctx, req, err)
	}
	result := &FetchResult{Handled: true, Response: resp, Source: SourceNetwork}
	if resp.Status == http.StatusOK && env.Cacheable(req) {
		result.Stored = env.Store(ctx, req, resp)
	}
	return result
}

func networkFirst(ctx context.Context, env *FetchEnv, req *Request) *FetchResult {
	if !req.IsNavigation() {
		return networkOnly(ctx, env, req)
	}

	resp, err := env.Network(ctx, req)
	if err == nil {
		result := &FetchResult{Handled: true, Response: resp, Source: SourceNetwork}
		if resp.Status == http.StatusOK {
			result.Stored = env.Store(ctx, req, resp)
		}
		return result
	}
	if cached, ok := env.MatchCurrent(ctx, req); ok {
		return &FetchResult{Handled: true, Response: cached, Source: SourceCache, NetworkErr: err}
	}
	return env.Fallback(ctx, req, err)
}

func networkOnly(ctx context.Context, env *FetchEnv, req *Request) *FetchResult {
	resp, err := env.Network(ctx, req)
	if err != nil {
		return env.Synthesize(req, err)
	}
	return &FetchResult{Handled: true, Response: resp, Source: SourceNetwork}
}
