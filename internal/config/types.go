package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述进程级运行参数：监听端口、日志、缓存存储与上游访问。
type GlobalConfig struct {
	ListenPort      int      `mapstructure:"ListenPort"`
	LogLevel        string   `mapstructure:"LogLevel"`
	LogFilePath     string   `mapstructure:"LogFilePath"`
	LogMaxSize      int      `mapstructure:"LogMaxSize"`
	LogMaxBackups   int      `mapstructure:"LogMaxBackups"`
	LogCompress     bool     `mapstructure:"LogCompress"`
	StoragePath     string   `mapstructure:"StoragePath"`
	CacheDriver     string   `mapstructure:"CacheDriver"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	MaxRetries      int      `mapstructure:"MaxRetries"`
	InitialBackoff  Duration `mapstructure:"InitialBackoff"`
	MetricsEnabled  bool     `mapstructure:"MetricsEnabled"`
}

// ControllerConfig 对应一次 controller 构建：版本、作用域、预缓存清单与缓存策略。
type ControllerConfig struct {
	// Scope 是 controller 自身的 origin，同源判断以它为准。
	Scope string `mapstructure:"Scope"`
	// Upstream 是门户源站的真实地址，同源请求被转发到这里。
	Upstream        string   `mapstructure:"Upstream"`
	CacheVersion    string   `mapstructure:"CacheVersion"`
	VersionEndpoint string   `mapstructure:"VersionEndpoint"`
	Strategy        string   `mapstructure:"Strategy"`
	StaticAssets    []string `mapstructure:"StaticAssets"`
	AssetManifest   string   `mapstructure:"AssetManifest"`
	OfflinePath     string   `mapstructure:"OfflinePath"`
	CachePrefixes   []string `mapstructure:"CachePrefixes"`
	CacheExtensions []string `mapstructure:"CacheExtensions"`
	SkipWaiting     bool     `mapstructure:"SkipWaiting"`
	UpdateInterval  Duration `mapstructure:"UpdateInterval"`
}

// SyncConfig 描述一次性后台同步与周期同步使用的 tag 及路径。
type SyncConfig struct {
	Tag              string   `mapstructure:"Tag"`
	Path             string   `mapstructure:"Path"`
	PeriodicTag      string   `mapstructure:"PeriodicTag"`
	PeriodicInterval Duration `mapstructure:"PeriodicInterval"`
	ProbePath        string   `mapstructure:"ProbePath"`
}

// PushConfig 是推送通知的默认描述，以及通知中心/外发渠道的参数。
type PushConfig struct {
	Title           string   `mapstructure:"Title"`
	Body            string   `mapstructure:"Body"`
	Icon            string   `mapstructure:"Icon"`
	Badge           string   `mapstructure:"Badge"`
	Tag             string   `mapstructure:"Tag"`
	NotificationTTL Duration `mapstructure:"NotificationTTL"`
	ShoutrrrURLs    []string `mapstructure:"ShoutrrrURLs"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global     GlobalConfig     `mapstructure:",squash"`
	Controller ControllerConfig `mapstructure:"Controller"`
	Sync       SyncConfig       `mapstructure:"Sync"`
	Push       PushConfig       `mapstructure:"Push"`
}

// Assets 返回去重后的预缓存路径，保留首次出现的顺序。
func (c ControllerConfig) Assets() []string {
	seen := make(map[string]struct{}, len(c.StaticAssets))
	result := make([]string, 0, len(c.StaticAssets))
	for _, raw := range c.StaticAssets {
		asset := strings.TrimSpace(raw)
		if asset == "" {
			continue
		}
		if _, ok := seen[asset]; ok {
			continue
		}
		seen[asset] = struct{}{}
		result = append(result, asset)
	}
	return result
}

// NotificationsEnabled 表示是否配置了 shoutrrr 外发地址。
func (p PushConfig) NotificationsEnabled() bool {
	return len(p.ShoutrrrURLs) > 0
}
