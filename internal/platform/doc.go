// Package platform 实现浏览器宿主替 controller 承担的调度职责：
// 一次性后台同步的退避重试、周期同步的定时触发，以及更新检查。
package platform
