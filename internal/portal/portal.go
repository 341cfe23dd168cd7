package portal

import (
	"embed"
	"errors"
	"io/fs"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/sirupsen/logrus"
)

//go:embed static
var staticFiles embed.FS

// DefaultVersion 与 NEXT_PUBLIC_CACHE_VERSION 未设置时的取值一致。
const DefaultVersion = "1.0.0"

// Options 配置演示源站。
type Options struct {
	Logger  *logrus.Logger
	Version string
	LogoURL string
}

// SyncRecord 记录一次 POST /api/sync。
type SyncRecord struct {
	Tag        string    `json:"tag"`
	Version    string    `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
	ReceivedAt time.Time `json:"receivedAt"`
}

// Portal 是会员门户的演示源站，页面与 API 均为静态或模拟数据。
type Portal struct {
	logger  *logrus.Logger
	logoURL string
	version atomic.Value
	static  fs.FS

	mu    sync.Mutex
	syncs []SyncRecord
}

// New 创建演示源站，Version 为空时使用 DefaultVersion。
func New(opts Options) (*Portal, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	sub, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}
	p := &Portal{
		logger:  opts.Logger,
		logoURL: opts.LogoURL,
		static:  sub,
	}
	if p.logoURL == "" {
		p.logoURL = "/ambetter-logo.png"
	}
	p.SetVersion(opts.Version)
	return p, nil
}

// Version 返回当前发布的版本号（不含 ambetter-v 前缀）。
func (p *Portal) Version() string {
	return p.version.Load().(string)
}

// SetVersion 模拟一次新发布；/api/version 随即返回新版本。
func (p *Portal) SetVersion(version string) {
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}
	p.version.Store(version)
}

// Syncs 返回已收到的同步请求。
func (p *Portal) Syncs() []SyncRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]SyncRecord(nil), p.syncs...)
}

// App 构建 Fiber 应用并注册全部页面与 API 路由。
func (p *Portal) App() *fiber.App {
	app := fiber.New(fiber.Config{CaseSensitive: true})
	app.Use(recover.New())
	app.Use(p.accessLog)

	app.Get("/", p.serveFile("index.html"))
	app.Get("/offline.html", p.serveFile("offline.html"))
	app.Get("/manifest.json", p.serveFile("manifest.json"))
	app.Get("/favicon.ico", p.serveFile("favicon.ico"))
	app.Get("/ambetter-logo-new.png", p.serveFile("ambetter-logo-new.png"))

	p.registerAPI(app)
	return app
}

func (p *Portal) serveFile(name string) fiber.Handler {
	return func(c fiber.Ctx) error {
		raw, err := fs.ReadFile(p.static, name)
		if err != nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		c.Type(contentType(name))
		return c.Send(raw)
	}
}

func (p *Portal) accessLog(c fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	p.logger.WithFields(logrus.Fields{
		"action":     "portal",
		"method":     c.Method(),
		"path":       c.Path(),
		"status":     c.Response().StatusCode(),
		"elapsed_ms": time.Since(start).Milliseconds(),
	}).Debug("portal_request")
	return err
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".html":
		return "html"
	case ".json":
		return "json"
	case ".png":
		return "png"
	case ".ico":
		return "ico"
	default:
		return "txt"
	}
}
