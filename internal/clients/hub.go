package clients

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/metrics"
	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// DefaultBufferSize 是每个客户端消息通道的容量。
const DefaultBufferSize = 16

var (
	// ErrClientNotFound 表示客户端不存在或已断开。
	ErrClientNotFound = errors.New("client not found")
	// ErrClientBackpressure 表示客户端消息通道已满，消息被丢弃。
	ErrClientBackpressure = errors.New("client message buffer full")
)

// Client 是一个已连接的页面实例，消息经由 Messages 通道下发。
type Client struct {
	ID          string
	URL         string
	ConnectedAt time.Time

	seq        uint64
	controlled bool
	version    string
	messages   chan sw.Message
	closeOnce  sync.Once
}

// Messages 返回客户端的消息通道，客户端注销后通道关闭。
func (c *Client) Messages() <-chan sw.Message {
	return c.messages
}

func (c *Client) info() sw.ClientInfo {
	return sw.ClientInfo{ID: c.ID, URL: c.URL, Controlled: c.controlled}
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.messages) })
}

// Hub 管理全部 ClientConnection，实现 sw.ClientSet。
type Hub struct {
	logger     *logrus.Logger
	bufferSize int

	mu      sync.RWMutex
	clients map[string]*Client
	seq     uint64
	onEmpty func()
}

var _ sw.ClientSet = (*Hub)(nil)

// NewHub 创建客户端集合，bufferSize <= 0 时使用 DefaultBufferSize。
func NewHub(logger *logrus.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Hub{
		logger:     logger,
		bufferSize: bufferSize,
		clients:    make(map[string]*Client),
	}
}

// OnEmpty 注册最后一个客户端断开时的回调；回调在锁外执行。
func (h *Hub) OnEmpty(fn func()) {
	h.mu.Lock()
	h.onEmpty = fn
	h.mu.Unlock()
}

// Register 接入新客户端。activeVersion 非空表示页面加载时已有 active controller，
// 客户端从一开始就是受控的。
func (h *Hub) Register(pageURL, activeVersion string) *Client {
	h.mu.Lock()
	h.seq++
	client := &Client{
		ID:          uuid.NewString(),
		URL:         pageURL,
		ConnectedAt: time.Now().UTC(),
		seq:         h.seq,
		controlled:  activeVersion != "",
		version:     activeVersion,
		messages:    make(chan sw.Message, h.bufferSize),
	}
	h.clients[client.ID] = client
	count := len(h.clients)
	h.mu.Unlock()

	metrics.SetConnectedClients(count)
	h.logger.WithFields(logrus.Fields{
		"action":     "clients",
		"client_id":  client.ID,
		"url":        pageURL,
		"controlled": client.controlled,
	}).Info("client_connected")
	return client
}

// Unregister 断开客户端并关闭其通道，返回客户端是否存在。
func (h *Hub) Unregister(id string) bool {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		client.close()
	}
	count := len(h.clients)
	onEmpty := h.onEmpty
	h.mu.Unlock()

	if !ok {
		return false
	}
	metrics.SetConnectedClients(count)
	h.logger.WithFields(logrus.Fields{"action": "clients", "client_id": id}).Info("client_disconnected")
	if count == 0 && onEmpty != nil {
		onEmpty()
	}
	return true
}

// Get 返回指定客户端。
func (h *Hub) Get(id string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	return client, ok
}

// Lookup 实现 sw.ClientSet。
func (h *Hub) Lookup(id string) (sw.ClientInfo, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	client, ok := h.clients[id]
	if !ok {
		return sw.ClientInfo{}, false
	}
	return client.info(), true
}

// MatchAll 按连接顺序返回全部客户端。
func (h *Hub) MatchAll() []sw.ClientInfo {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		list = append(list, client)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].seq < list[j].seq })

	result := make([]sw.ClientInfo, len(list))
	for i, client := range list {
		result[i] = client.info()
	}
	return result
}

// PostMessage 非阻塞地投递消息；通道已满时返回 ErrClientBackpressure。
func (h *Hub) PostMessage(id string, msg sw.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, ok := h.clients[id]
	if !ok {
		return ErrClientNotFound
	}
	select {
	case client.messages <- msg:
		return nil
	default:
		return ErrClientBackpressure
	}
}

// Claim 将全部客户端交给 version 对应的 controller，返回此前未受该版本控制的数量。
func (h *Hub) Claim(version string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	claimed := 0
	for _, client := range h.clients {
		if client.controlled && client.version == version {
			continue
		}
		client.controlled = true
		client.version = version
		claimed++
	}
	return claimed
}

// Focus 向客户端发送 FOCUS 消息。
func (h *Hub) Focus(id string) error {
	return h.PostMessage(id, sw.Message{Type: sw.MessageFocus, ClientID: id})
}

// Count 返回当前连接数。
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll 断开全部客户端，用于服务关闭。不会触发 OnEmpty。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		client.close()
		delete(h.clients, id)
	}
	metrics.SetConnectedClients(0)
}
