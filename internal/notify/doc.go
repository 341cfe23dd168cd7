// Package notify 提供通知展示面：Center 以 tag 去重保存通知并按 TTL 过期，
// Relay 通过 shoutrrr 把通知转发到外部渠道。
package notify
