package sw

import "errors"

var (
	// ErrInvalidTransition 表示生命周期状态跳转不合法。
	ErrInvalidTransition = errors.New("invalid lifecycle transition")
	// ErrNotActive 表示当前没有处于 active 状态的 controller。
	ErrNotActive = errors.New("controller not active")
	// ErrNoWaiting 表示没有等待激活的 controller。
	ErrNoWaiting = errors.New("no waiting controller")
	// ErrUnknownMessage 表示收到无法识别的消息类型。
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrSyncFailed 表示同步请求失败，需要由平台重试。
	ErrSyncFailed = errors.New("sync failed")
	// ErrUnknownStrategy 表示构建引用了未注册的策略。
	ErrUnknownStrategy = errors.New("unknown fetch strategy")
)
