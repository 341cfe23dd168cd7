package version

import (
	"fmt"
	"runtime"
)

// Version/Commit/Date 可在构建时通过 -ldflags 注入，默认使用开发占位符。
var (
	Version = "0.1.0"
	Commit  = "dev"
	Date    = "unknown"
)

// Full 返回便于 CLI 打印的完整版本信息。
func Full() string {
	return fmt.Sprintf("pwa-edge %s (%s)", Version, Commit)
}

// Details 在 Full 之外附带构建时间与 Go 运行时信息，供 version 命令输出。
func Details() string {
	return fmt.Sprintf("%s built %s %s %s/%s", Full(), Date, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// UserAgent 是 controller 主动访问源站（预缓存、同步、版本探测）时使用的 User-Agent。
func UserAgent() string {
	return "pwa-edge/" + Version
}
