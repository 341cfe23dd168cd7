package config

import (
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// DefaultCacheVersion 与门户首个部署版本保持一致，未配置版本时使用。
const DefaultCacheVersion = "ambetter-v1.0.0"

var defaultStaticAssets = []string{
	"/",
	"/manifest.json",
	"/offline.html",
	"/ambetter-logo-new.png",
	"/favicon.ico",
}

// Load 读取并解析 TOML 配置文件，同时注入默认值、资源清单与校验逻辑。
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.toml"
	}

	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置失败: %w", err)
	}

	return decode(v, path)
}

func decode(v *viper.Viper, path string) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(durationDecodeHook())); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	applyGlobalDefaults(&cfg.Global)
	applyControllerDefaults(&cfg.Controller)
	applySyncDefaults(&cfg.Sync)
	applyPushDefaults(&cfg.Push)

	if manifest := strings.TrimSpace(cfg.Controller.AssetManifest); manifest != "" {
		if !filepath.IsAbs(manifest) {
			manifest = filepath.Join(filepath.Dir(path), manifest)
		}
		assets, err := LoadAssetManifest(manifest)
		if err != nil {
			return nil, err
		}
		cfg.Controller.StaticAssets = append(cfg.Controller.StaticAssets, assets...)
		cfg.Controller.AssetManifest = manifest
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	absStorage, err := filepath.Abs(cfg.Global.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("无法解析缓存目录: %w", err)
	}
	cfg.Global.StoragePath = absStorage

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ListenPort", 8080)
	v.SetDefault("LogLevel", "info")
	v.SetDefault("LogFilePath", "")
	v.SetDefault("LogMaxSize", 100)
	v.SetDefault("LogMaxBackups", 10)
	v.SetDefault("LogCompress", true)
	v.SetDefault("StoragePath", "./storage")
	v.SetDefault("CacheDriver", "leveldb")
	v.SetDefault("UpstreamTimeout", "30s")
	v.SetDefault("MaxRetries", 3)
	v.SetDefault("InitialBackoff", "1s")
	v.SetDefault("MetricsEnabled", true)

	v.SetDefault("Controller.CacheVersion", DefaultCacheVersion)
	v.SetDefault("Controller.Strategy", "cache-first")
	v.SetDefault("Controller.StaticAssets", defaultStaticAssets)
	v.SetDefault("Controller.OfflinePath", "/offline.html")
	v.SetDefault("Controller.CachePrefixes", []string{"/api/"})
	v.SetDefault("Controller.CacheExtensions", []string{".html"})
	v.SetDefault("Controller.SkipWaiting", true)
	v.SetDefault("Controller.UpdateInterval", "0s")

	v.SetDefault("Sync.Tag", "sync-health-data")
	v.SetDefault("Sync.Path", "/api/sync")
	v.SetDefault("Sync.PeriodicTag", "update-check")
	v.SetDefault("Sync.PeriodicInterval", "0s")
	v.SetDefault("Sync.ProbePath", "/")

	v.SetDefault("Push.Title", "Ambetter Health")
	v.SetDefault("Push.Body", "You have a new update")
	v.SetDefault("Push.Icon", "/ambetter-logo-new.png")
	v.SetDefault("Push.Badge", "/favicon.ico")
	v.SetDefault("Push.Tag", "ambetter-notification")
	v.SetDefault("Push.NotificationTTL", "24h")
}

func applyGlobalDefaults(g *GlobalConfig) {
	if g.ListenPort == 0 {
		g.ListenPort = 8080
	}
	if g.UpstreamTimeout.DurationValue() == 0 {
		g.UpstreamTimeout = Duration(30 * time.Second)
	}
	if g.InitialBackoff.DurationValue() == 0 {
		g.InitialBackoff = Duration(time.Second)
	}
	g.CacheDriver = strings.ToLower(strings.TrimSpace(g.CacheDriver))
	if g.CacheDriver == "" {
		g.CacheDriver = "leveldb"
	}
}

func applyControllerDefaults(c *ControllerConfig) {
	c.Strategy = strings.ToLower(strings.TrimSpace(c.Strategy))
	if c.Strategy == "" {
		c.Strategy = "cache-first"
	}
	if strings.TrimSpace(c.CacheVersion) == "" {
		c.CacheVersion = DefaultCacheVersion
	}
	if c.OfflinePath == "" {
		c.OfflinePath = "/offline.html"
	}
	if c.UpdateInterval.DurationValue() < 0 {
		c.UpdateInterval = Duration(0)
	}
}

func applySyncDefaults(s *SyncConfig) {
	if s.ProbePath == "" {
		s.ProbePath = "/"
	}
	if s.PeriodicInterval.DurationValue() < 0 {
		s.PeriodicInterval = Duration(0)
	}
}

func applyPushDefaults(p *PushConfig) {
	if p.NotificationTTL.DurationValue() <= 0 {
		p.NotificationTTL = Duration(24 * time.Hour)
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	targetType := reflect.TypeOf(Duration(0))

	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != targetType {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			if v == "" {
				return Duration(0), nil
			}
			if parsed, err := time.ParseDuration(v); err == nil {
				return Duration(parsed), nil
			}
			if seconds, err := strconv.ParseFloat(v, 64); err == nil {
				return Duration(time.Duration(seconds * float64(time.Second))), nil
			}
			return nil, fmt.Errorf("无法解析 Duration 字段: %s", v)
		case int:
			return Duration(time.Duration(v) * time.Second), nil
		case int64:
			return Duration(time.Duration(v) * time.Second), nil
		case float64:
			return Duration(time.Duration(v * float64(time.Second))), nil
		case time.Duration:
			return Duration(v), nil
		case Duration:
			return v, nil
		default:
			return nil, fmt.Errorf("不支持的 Duration 类型: %T", v)
		}
	}
}
