package config

import (
	"fmt"
	"os"
	"testing"
	"time"
)

const watchedConfig = `
StoragePath = "./data"

[Controller]
Scope = "http://portal.local"
Upstream = "http://127.0.0.1:3000"
CacheVersion = "%s"
Strategy = "%s"
`

type reloadEvent struct {
	cfg *Config
	err error
}

func rewriteConfig(t *testing.T, path, cacheVersion, strategy string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(fmt.Sprintf(watchedConfig, cacheVersion, strategy)), 0o600); err != nil {
		t.Fatalf("改写配置失败: %v", err)
	}
}

// waitReload 等待满足 match 的回调；编辑器式写入可能触发多次事件。
func waitReload(t *testing.T, events <-chan reloadEvent, match func(reloadEvent) bool) reloadEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-events:
			if match(ev) {
				return ev
			}
		case <-timeout:
			t.Fatalf("等待配置变更回调超时")
		}
	}
}

func TestWatcherDeliversReloadedConfig(t *testing.T) {
	path := writeTempConfig(t, fmt.Sprintf(watchedConfig, "ambetter-v1.0.0", "cache-first"))

	events := make(chan reloadEvent, 16)
	w := NewWatcher(path)
	if err := w.Start(func(cfg *Config, err error) {
		select {
		case events <- reloadEvent{cfg: cfg, err: err}:
		default:
		}
	}); err != nil {
		t.Fatalf("启动监听失败: %v", err)
	}

	rewriteConfig(t, path, "ambetter-v1.0.1", "network-first")
	ev := waitReload(t, events, func(ev reloadEvent) bool {
		return ev.err == nil && ev.cfg.Controller.CacheVersion == "ambetter-v1.0.1"
	})
	if ev.cfg.Controller.Strategy != "network-first" {
		t.Fatalf("期望 network-first，得到 %s", ev.cfg.Controller.Strategy)
	}

	rewriteConfig(t, path, "ambetter-v1.0.2", "teleport")
	ev = waitReload(t, events, func(ev reloadEvent) bool {
		fieldErr, ok := AsFieldError(ev.err)
		return ok && fieldErr.Field == "Controller.Strategy"
	})
	if ev.cfg != nil {
		t.Fatalf("校验失败时不应返回配置: %+v", ev.cfg)
	}
}

func TestWatcherStartFailsForMissingFile(t *testing.T) {
	w := NewWatcher(testConfigPath(t, "absent.toml"))
	if err := w.Start(func(*Config, error) {}); err == nil {
		t.Fatalf("缺失的配置文件应导致 Start 失败")
	}
}
