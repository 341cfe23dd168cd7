package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" && g.CacheDriver != cache.DriverMemory {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if !cache.SupportedDriver(g.CacheDriver) {
		return newFieldError("Global.CacheDriver", "仅支持 "+strings.Join(cache.Drivers(), "|"))
	}
	if g.MaxRetries < 0 {
		return newFieldError("Global.MaxRetries", "不能为负数")
	}
	if g.InitialBackoff.DurationValue() <= 0 {
		return newFieldError("Global.InitialBackoff", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}

	if err := c.Controller.validate(); err != nil {
		return err
	}
	if err := c.Sync.validate(); err != nil {
		return err
	}
	return nil
}

func (c *ControllerConfig) validate() error {
	if err := validateOrigin(c.Scope); err != nil {
		return fmt.Errorf("Controller.Scope: %w", err)
	}
	if err := validateOrigin(c.Upstream); err != nil {
		return fmt.Errorf("Controller.Upstream: %w", err)
	}
	if strings.ContainsAny(c.CacheVersion, "/\\ ") {
		return newFieldError("Controller.CacheVersion", "不允许包含路径分隔符或空格")
	}
	if _, ok := sw.ResolveStrategy(c.Strategy); !ok {
		return newFieldError("Controller.Strategy", "仅支持 "+strings.Join(sw.StrategyNames(), "|"))
	}
	if err := validatePath("Controller.OfflinePath", c.OfflinePath); err != nil {
		return err
	}
	if c.VersionEndpoint != "" {
		if err := validatePath("Controller.VersionEndpoint", c.VersionEndpoint); err != nil {
			return err
		}
	}
	for idx, asset := range c.StaticAssets {
		if err := validatePath(fmt.Sprintf("Controller.StaticAssets[%d]", idx), strings.TrimSpace(asset)); err != nil {
			return err
		}
	}
	for idx, prefix := range c.CachePrefixes {
		if err := validatePath(fmt.Sprintf("Controller.CachePrefixes[%d]", idx), prefix); err != nil {
			return err
		}
	}
	for idx, ext := range c.CacheExtensions {
		if !strings.HasPrefix(ext, ".") {
			return newFieldError(fmt.Sprintf("Controller.CacheExtensions[%d]", idx), "必须以 . 开头")
		}
	}
	return nil
}

func (s *SyncConfig) validate() error {
	if s.Path != "" {
		if err := validatePath("Sync.Path", s.Path); err != nil {
			return err
		}
	}
	if err := validatePath("Sync.ProbePath", s.ProbePath); err != nil {
		return err
	}
	if s.PeriodicInterval.DurationValue() > 0 && strings.TrimSpace(s.PeriodicTag) == "" {
		return newFieldError("Sync.PeriodicTag", "启用周期同步时不能为空")
	}
	return nil
}

func validatePath(field, value string) error {
	if value == "" {
		return newFieldError(field, "不能为空")
	}
	if !strings.HasPrefix(value, "/") {
		return newFieldError(field, "必须是以 / 开头的同源路径")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
