package sw

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBuild(t *testing.T) Build {
	t.Helper()
	scope, err := url.Parse("http://portal.local")
	require.NoError(t, err)
	return Build{
		Scope:           scope,
		Version:         "ambetter-v1.0.0",
		Strategy:        StrategyCacheFirst,
		StaticAssets:    []string{"/", "/offline.html"},
		OfflinePath:     "/offline.html",
		CachePrefixes:   []string{"/api/"},
		CacheExtensions: []string{".html"},
		SkipWaiting:     true,
	}
}

func TestFingerprintStableAndSensitive(t *testing.T) {
	a := testBuild(t)
	b := testBuild(t)
	assert.Equal(t, a.Fingerprint(), b.Fingerprint(), "相同构建指纹应一致")

	b.Version = "ambetter-v1.0.1"
	assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())

	c := testBuild(t)
	c.StaticAssets = append(c.StaticAssets, "/favicon.ico")
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	d := testBuild(t)
	d.Scope, _ = url.Parse("http://other.local")
	assert.NotEqual(t, a.Fingerprint(), d.Fingerprint())
}

func TestWithVersionDoesNotShareSlices(t *testing.T) {
	a := testBuild(t)
	b := a.WithVersion("v2")
	b.StaticAssets[0] = "/changed"
	assert.Equal(t, "/", a.StaticAssets[0])
	assert.Equal(t, "v2", b.Version)
	assert.Equal(t, "ambetter-v1.0.0", a.Version)
}

func TestBuildValidate(t *testing.T) {
	b := testBuild(t)
	require.NoError(t, b.Validate())

	b.Strategy = "stale-while-revalidate"
	assert.ErrorIs(t, b.Validate(), ErrUnknownStrategy)

	b = testBuild(t)
	b.Version = " "
	assert.Error(t, b.Validate())

	b = testBuild(t)
	b.Scope = nil
	assert.Error(t, b.Validate())
}

func TestCacheableRules(t *testing.T) {
	b := testBuild(t)
	cases := map[string]bool{
		"/":                      true,
		"/dashboard.html":        true,
		"/api/data":              true,
		"/api":                   false,
		"/dashboard":             false,
		"/ambetter-logo-new.png": false,
	}
	for path, want := range cases {
		assert.Equal(t, want, b.cacheable(path), path)
	}
}

func TestSameOrigin(t *testing.T) {
	scope, _ := url.Parse("http://portal.local:8080")
	cases := map[string]bool{
		"http://portal.local:8080/a":  true,
		"HTTP://PORTAL.local:8080/":   true,
		"https://portal.local:8080/":  false,
		"http://portal.local/":        false,
		"http://cdn.example.com:8080": false,
		"/relative":                   true,
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, SameOrigin(scope, u), raw)
	}

	defaultScope, _ := url.Parse("https://portal.local")
	u, _ := url.Parse("https://portal.local:443/x")
	assert.True(t, SameOrigin(defaultScope, u), "缺省端口应按 scheme 补齐")
	u, _ = url.Parse("http://portal.local:443/x")
	assert.False(t, SameOrigin(defaultScope, u), "端口相同但 scheme 不同不同源")
}

func TestStrategyRegistry(t *testing.T) {
	assert.Equal(t, []string{StrategyCacheFirst, StrategyNetworkFirst, StrategyNetworkOnly}, StrategyNames())

	meta, ok := ResolveStrategy(" Cache-First ")
	require.True(t, ok)
	assert.True(t, meta.Precache)

	only, ok := ResolveStrategy(StrategyNetworkOnly)
	require.True(t, ok)
	assert.False(t, only.Precache)

	err := RegisterStrategy(StrategyMetadata{Name: StrategyCacheFirst, Handle: cacheFirst})
	assert.Error(t, err, "重复注册应失败")
	assert.Error(t, RegisterStrategy(StrategyMetadata{Name: "no-handler"}))
	_, ok = ResolveStrategy("")
	assert.False(t, ok)
}

func TestParseMessage(t *testing.T) {
	msg, err := ParseMessage([]byte(`{"type":"skip_waiting"}`))
	require.NoError(t, err)
	assert.Equal(t, MessageSkipWaiting, msg.Type)

	_, err = ParseMessage([]byte(`{}`))
	assert.ErrorIs(t, err, ErrUnknownMessage)

	_, err = ParseMessage([]byte(`not-json`))
	assert.Error(t, err)
}
