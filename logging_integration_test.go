package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const loggingConfigTemplate = `
LogLevel = "info"
LogFilePath = "%s"
CacheDriver = "memory"
ListenPort = 5000

[Controller]
Scope = "http://portal.local:5000"
Upstream = "http://127.0.0.1:3000"
`

func TestCheckConfigWritesRotatingLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "pwa-edge.log")
	configPath := writeConfigFile(t, fmt.Sprintf(loggingConfigTemplate, logPath))

	useBufferWriters(t)
	if code := runCheckConfig(cliOptions{configPath: configPath}); code != 0 {
		t.Fatalf("check-config 应成功，得到 %d: %s", code, stdErrBuffer().String())
	}
	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("应写入日志文件: %v", err)
	}
	line := string(raw)
	if !strings.Contains(line, `"action":"check_config"`) || !strings.Contains(line, `"service":"pwa-edge"`) {
		t.Fatalf("日志缺少 action/service 字段: %s", line)
	}
}

func TestLoggingFallbackToStdout(t *testing.T) {
	dir := t.TempDir()
	// 以普通文件占位，使日志目录无法创建（root 下 chmod 无效）
	blocker := filepath.Join(dir, "blocked")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("创建占位文件失败: %v", err)
	}
	configPath := writeConfigFile(t, fmt.Sprintf(loggingConfigTemplate, filepath.Join(blocker, "sub", "pwa-edge.log")))

	useBufferWriters(t)
	if code := runCheckConfig(cliOptions{configPath: configPath}); code != 0 {
		t.Fatalf("日志 fallback 不应导致失败，得到 %d", code)
	}
}
