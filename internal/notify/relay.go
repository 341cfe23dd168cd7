package notify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// Sender 是 shoutrrr 路由器暴露的发送能力，测试中可替换。
type Sender interface {
	Send(message string, params *types.Params) []error
}

// Relay 把展示的通知转发到 shoutrrr 支持的渠道（ntfy、slack、smtp 等）。
type Relay struct {
	sender Sender
}

// NewRelay 依据 shoutrrr URL 列表创建外发渠道。
func NewRelay(urls []string) (*Relay, error) {
	if len(urls) == 0 {
		return nil, errors.New("relay urls required")
	}
	sender, err := shoutrrr.CreateSender(urls...)
	if err != nil {
		return nil, fmt.Errorf("create shoutrrr sender: %w", err)
	}
	return &Relay{sender: sender}, nil
}

// NewRelayWithSender 使用自定义 Sender 创建 Relay。
func NewRelayWithSender(sender Sender) *Relay {
	return &Relay{sender: sender}
}

// Relay 发送一条通知。shoutrrr 按渠道逐个返回错误，成功的渠道对应 nil，
// 这里合并为一个错误。
func (r *Relay) Relay(n sw.Notification) error {
	params := types.Params{"title": n.Title}
	return errors.Join(r.sender.Send(messageOf(n), &params)...)
}

func messageOf(n sw.Notification) string {
	message := strings.TrimSpace(n.Body)
	if message == "" {
		message = n.Title
	}
	if n.Tag != "" {
		message = fmt.Sprintf("%s [%s]", message, n.Tag)
	}
	return message
}
