package sw

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageType 是页面与 controller 之间消息的判别字段。
type MessageType string

const (
	// MessageSkipWaiting 由页面发送，要求等待中的 controller 立即激活。
	MessageSkipWaiting MessageType = "SKIP_WAITING"
	// MessageSyncData 通知页面数据已变化，需要刷新。
	MessageSyncData MessageType = "SYNC_DATA"
	// MessageStateChange 通知页面新 controller 已安装完毕。
	MessageStateChange MessageType = "STATE_CHANGE"
	// MessageFocus 要求页面获得焦点（通知点击）。
	MessageFocus MessageType = "FOCUS"
	// MessageClientReady 在客户端连接建立后下发，携带分配的 ID。
	MessageClientReady MessageType = "CLIENT_READY"
)

// Message 是结构化消息，type 之外的字段按需填写。
type Message struct {
	Type     MessageType `json:"type"`
	Version  string      `json:"version,omitempty"`
	State    State       `json:"state,omitempty"`
	Tag      string      `json:"tag,omitempty"`
	ClientID string      `json:"clientId,omitempty"`
	URL      string      `json:"url,omitempty"`
}

// ParseMessage 解析页面发来的消息，缺少 type 时返回错误。
func ParseMessage(raw []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	msg.Type = MessageType(strings.ToUpper(strings.TrimSpace(string(msg.Type))))
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrUnknownMessage)
	}
	return msg, nil
}
