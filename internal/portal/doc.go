// Package portal 提供会员门户的演示源站：页面外壳、离线页、manifest、图标，
// 以及 /api/version 等模拟接口，供 demo-origin 命令与端到端测试使用。
package portal
