package sw

import "context"

// ClientInfo 描述一个已连接的页面实例。
type ClientInfo struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Controlled bool   `json:"controlled"`
}

// ClientSet 是 controller 可见的客户端集合，由 clients 包实现。
type ClientSet interface {
	// MatchAll 返回全部已连接客户端。
	MatchAll() []ClientInfo
	// Lookup 按 ID 查找客户端。
	Lookup(id string) (ClientInfo, bool)
	// PostMessage 向单个客户端投递消息。
	PostMessage(id string, msg Message) error
	// Claim 将全部客户端标记为受控，返回本次新接管的数量。
	Claim(version string) int
	// Focus 让指定客户端获得焦点。
	Focus(id string) error
}

// Notification 是展示给用户的通知描述。
type Notification struct {
	Title string         `json:"title"`
	Body  string         `json:"body"`
	Icon  string         `json:"icon"`
	Badge string         `json:"badge"`
	Tag   string         `json:"tag"`
	Data  map[string]any `json:"data,omitempty"`
}

// NotificationSurface 是平台的通知展示面。
type NotificationSurface interface {
	Show(ctx context.Context, n Notification) error
	Close(tag string) bool
}

type noopClients struct{}

func (noopClients) MatchAll() []ClientInfo            { return nil }
func (noopClients) Lookup(string) (ClientInfo, bool)  { return ClientInfo{}, false }
func (noopClients) PostMessage(string, Message) error { return nil }
func (noopClients) Claim(string) int                  { return 0 }
func (noopClients) Focus(string) error                { return nil }

type noopSurface struct{}

func (noopSurface) Show(context.Context, Notification) error { return nil }
func (noopSurface) Close(string) bool                        { return false }
