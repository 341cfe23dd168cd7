package config

import (
	"os"
	"path/filepath"
	"testing"
)

func testConfigPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join("testdata", name)
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}

// expectFieldError 断言 err 是指向 field 的 FieldError。
func expectFieldError(t *testing.T, err error, field string) {
	t.Helper()
	if err == nil {
		t.Fatalf("期望 %s 校验失败，实际通过", field)
	}
	fieldErr, ok := AsFieldError(err)
	if !ok || fieldErr.Field != field {
		t.Fatalf("期望 FieldError 指向 %s，得到 %v", field, err)
	}
}
