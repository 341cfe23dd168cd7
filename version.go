package main

import (
	"fmt"

	"github.com/pwa-edge/pwa-edge/internal/version"
)

// printVersion 输出注入的版本、提交与构建环境；verbose 为 false 时只输出一行摘要。
func printVersion(verbose bool) {
	if verbose {
		fmt.Fprintln(stdOut, version.Details())
		return
	}
	fmt.Fprintln(stdOut, version.Full())
}
