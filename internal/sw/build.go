package sw

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SyncOptions 描述后台同步与周期同步的标签及路径。
type SyncOptions struct {
	Tag         string `json:"tag"`
	Path        string `json:"path"`
	PeriodicTag string `json:"periodicTag"`
	ProbePath   string `json:"probePath"`
}

// Build 是一次 controller 部署的不可变描述，相当于浏览器中的 sw 脚本内容。
// 构建一旦交给 Registration，其中的版本号在该 controller 生命周期内不再变化。
type Build struct {
	Scope           *url.URL     `json:"-"`
	Version         string       `json:"version"`
	VersionEndpoint string       `json:"versionEndpoint,omitempty"`
	Strategy        string       `json:"strategy"`
	StaticAssets    []string     `json:"staticAssets"`
	OfflinePath     string       `json:"offlinePath"`
	CachePrefixes   []string     `json:"cachePrefixes"`
	CacheExtensions []string     `json:"cacheExtensions"`
	SkipWaiting     bool         `json:"skipWaiting"`
	Sync            SyncOptions  `json:"sync"`
	Notification    Notification `json:"notification"`
}

// canonicalBuild 是参与指纹计算的形态，scope 以字符串参与。
type canonicalBuild struct {
	Scope string `json:"scope"`
	Build
}

// Fingerprint 返回构建内容的 sha256；内容相同的两次构建指纹一致，
// Registration 依此判断“脚本是否逐字节相同”。
func (b Build) Fingerprint() string {
	scope := ""
	if b.Scope != nil {
		scope = b.Scope.String()
	}
	raw, err := json.Marshal(canonicalBuild{Scope: scope, Build: b})
	if err != nil {
		// Build 中全是可序列化字段，这里不会失败
		raw = []byte(fmt.Sprintf("%#v", b))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Validate 校验构建的必填字段。
func (b Build) Validate() error {
	if b.Scope == nil || b.Scope.Host == "" {
		return errors.New("build scope required")
	}
	if strings.TrimSpace(b.Version) == "" {
		return errors.New("build version required")
	}
	if _, ok := ResolveStrategy(b.Strategy); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStrategy, b.Strategy)
	}
	return nil
}

// WithVersion 返回替换版本号后的副本。
func (b Build) WithVersion(version string) Build {
	b.StaticAssets = append([]string(nil), b.StaticAssets...)
	b.CachePrefixes = append([]string(nil), b.CachePrefixes...)
	b.CacheExtensions = append([]string(nil), b.CacheExtensions...)
	b.Version = version
	return b
}

// cacheable 判断网络成功响应是否需要写入当前版本缓存：根路径、指定扩展名或指定前缀。
func (b Build) cacheable(path string) bool {
	if path == "/" {
		return true
	}
	for _, ext := range b.CacheExtensions {
		if strings.HasSuffix(path, ext) {
			return true
		}
	}
	for _, prefix := range b.CachePrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
