package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadRejectsInvalidDuration(t *testing.T) {
	cfg := `
LogLevel = "info"
StoragePath = "./data"
UpstreamTimeout = "boom"

[Controller]
Scope = "http://portal.local"
Upstream = "http://127.0.0.1:3000"
`
	path := writeTempConfig(t, cfg)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadAcceptsIntegerSeconds(t *testing.T) {
	cfg := `
StoragePath = "./data"
UpstreamTimeout = 45

[Controller]
Scope = "http://portal.local"
Upstream = "http://127.0.0.1:3000"
UpdateInterval = 10
`
	loaded, err := Load(writeTempConfig(t, cfg))
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if got := loaded.Global.UpstreamTimeout.DurationValue().Seconds(); got != 45 {
		t.Fatalf("整数秒应被解析为 45s，得到 %v", got)
	}
	if got := loaded.Controller.UpdateInterval.DurationValue().Seconds(); got != 10 {
		t.Fatalf("UpdateInterval 应为 10s，得到 %v", got)
	}
}

func TestLoadRejectsBadManifestEntry(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "assets.yaml"), []byte("assets:\n  - dashboard\n"), 0o600); err != nil {
		t.Fatalf("写入资源清单失败: %v", err)
	}
	cfgPath := filepath.Join(dir, "config.toml")
	content := `
StoragePath = "./data"

[Controller]
Scope = "http://portal.local"
Upstream = "http://127.0.0.1:3000"
AssetManifest = "assets.yaml"
`
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}
	if _, err := Load(cfgPath); err == nil {
		t.Fatalf("非绝对路径的清单条目应失败")
	}
}
