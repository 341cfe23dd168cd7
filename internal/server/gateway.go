package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/logging"
	"github.com/pwa-edge/pwa-edge/internal/sw"
	"github.com/pwa-edge/pwa-edge/internal/upstream"
)

// HeaderClientID 携带发起请求的客户端 ID，与 /-/clients/events 返回的 ID 对应。
const HeaderClientID = "X-Client-ID"

// Fetcher 是网关依赖的 fetch 入口，通常是 *sw.Registration。
type Fetcher interface {
	Fetch(ctx context.Context, req *sw.Request) (*sw.FetchResult, error)
	Active() (*sw.Controller, error)
}

// Gateway 把 HTTP 请求转换为 fetch 事件交给 active controller；
// 未被拦截的请求原样流式转发到源站。
type Gateway struct {
	fetcher Fetcher
	network *upstream.Network
	client  *http.Client
	scope   *url.URL
	logger  *logrus.Logger
}

// NewGateway 使用 Runtime 中的组件构建网关。
func NewGateway(rt *Runtime) *Gateway {
	return &Gateway{
		fetcher: rt.Registration,
		network: rt.Network,
		client:  rt.Client,
		scope:   rt.Scope,
		logger:  rt.Logger,
	}
}

// Handle 对应浏览器中的 fetch 事件分发，任何阶段出错都会输出结构化日志。
func (g *Gateway) Handle(c fiber.Ctx) error {
	started := time.Now()
	requestID := RequestID(c)
	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req, err := g.buildRequest(c)
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "invalid_request")
	}
	fields := logging.RequestFields(req.Method, requestPath(c), req.ClientID, requestID)

	result, err := g.dispatch(ctx, req)
	switch {
	case errors.Is(err, errControllerPanic):
		g.logger.WithError(err).WithFields(fields).WithField("action", "fetch").Error("controller_panic")
		return writeError(c, fiber.StatusInternalServerError, "controller_panic")
	case errors.Is(err, sw.ErrNotActive):
		// 还没有 active controller，等同于页面未受控
		result = &sw.FetchResult{Source: sw.SourcePassthrough}
	case err != nil:
		g.logger.WithError(err).WithFields(fields).WithField("action", "fetch").Error("fetch_failed")
		return writeError(c, fiber.StatusInternalServerError, "fetch_failed")
	}

	if !result.Handled {
		return g.passthrough(c, ctx, req, fields, started)
	}
	version := g.activeVersion()
	status := g.writeResponse(c, result, version, requestID)
	entry := logging.FetchFields(fields, version, result, status)
	entry["elapsed_ms"] = time.Since(started).Milliseconds()
	g.logger.WithFields(entry).Debug("gateway_served")
	return nil
}

var errControllerPanic = errors.New("controller panic")

// dispatch 调用 controller，并把策略中的 panic 转换为错误。
func (g *Gateway) dispatch(ctx context.Context, req *sw.Request) (result *sw.FetchResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = fmt.Errorf("%w: %v", errControllerPanic, rec)
		}
	}()
	return g.fetcher.Fetch(ctx, req)
}

func (g *Gateway) buildRequest(c fiber.Ctx) (*sw.Request, error) {
	target, err := g.requestURL(c)
	if err != nil {
		return nil, err
	}
	header := fiberHeadersAsHTTP(c)
	req := sw.NewRequest(c.Method(), target, header)
	req.ClientID = strings.TrimSpace(header.Get(HeaderClientID))
	if body := c.Body(); len(body) > 0 {
		req.Body = append([]byte(nil), body...)
	}
	return req, nil
}

// requestURL 还原页面看到的完整地址。绝对形式的请求行（显式代理）保留原目标，
// 其余请求都视为发往 controller 自身的 origin。
func (g *Gateway) requestURL(c fiber.Ctx) (*url.URL, error) {
	raw := string(c.Request().RequestURI())
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return url.Parse(raw)
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if g.scope == nil {
		return ref, nil
	}
	return g.scope.ResolveReference(ref), nil
}

func (g *Gateway) writeResponse(c fiber.Ctx, result *sw.FetchResult, version, requestID string) int {
	resp := result.Response
	if resp == nil {
		resp = &cache.Response{Status: fiber.StatusNoContent}
	}
	copyResponseHeaders(c, resp.Header)
	c.Set("X-SW-Source", string(result.Source))
	if version != "" {
		c.Set("X-SW-Version", version)
	}
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.Status)
	if c.Method() != http.MethodHead {
		c.Response().SetBody(resp.Body)
	}
	return resp.Status
}

func (g *Gateway) activeVersion() string {
	active, err := g.fetcher.Active()
	if err != nil {
		return ""
	}
	return active.Version()
}

// passthrough 不经过缓存，直接把请求发往源站并流式写回。
func (g *Gateway) passthrough(c fiber.Ctx, ctx context.Context, req *sw.Request, fields logrus.Fields, started time.Time) error {
	httpReq, err := g.network.NewHTTPRequest(ctx, req, nil)
	if err != nil {
		g.logPassthrough(fields, "", 0, started, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	httpReq.Header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := httpReq.Header.Get("X-Forwarded-For"); prior != "" {
			httpReq.Header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			httpReq.Header.Set("X-Forwarded-For", ip)
		}
	}
	httpReq.Header.Set("X-Forwarded-Proto", c.Protocol())

	resp, err := g.client.Do(httpReq)
	target := httpReq.URL.String()
	if err != nil {
		g.logPassthrough(fields, target, 0, started, err)
		return writeError(c, fiber.StatusBadGateway, "upstream_failed")
	}
	defer resp.Body.Close()

	copyResponseHeaders(c, resp.Header)
	c.Set("X-SW-Source", string(sw.SourcePassthrough))
	if requestID, ok := fields["request_id"].(string); ok {
		c.Set("X-Request-ID", requestID)
	}
	c.Status(resp.StatusCode)

	if c.Method() == http.MethodHead {
		g.logPassthrough(fields, target, resp.StatusCode, started, nil)
		return nil
	}
	_, err = io.Copy(c.Response().BodyWriter(), resp.Body)
	g.logPassthrough(fields, target, resp.StatusCode, started, err)
	if err != nil {
		return fiber.NewError(fiber.StatusBadGateway, fmt.Sprintf("passthrough stream failed: %v", err))
	}
	return nil
}

func (g *Gateway) logPassthrough(base logrus.Fields, target string, status int, started time.Time, err error) {
	fields := logrus.Fields{}
	for k, v := range base {
		fields[k] = v
	}
	fields["action"] = "passthrough"
	fields["upstream"] = target
	fields["upstream_status"] = status
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		fields["error"] = err.Error()
		g.logger.WithFields(fields).Error("passthrough_failed")
		return
	}
	g.logger.WithFields(fields).Info("passthrough_complete")
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

func requestPath(c fiber.Ctx) string {
	pathVal := string(c.Request().URI().Path())
	if pathVal == "" {
		return "/"
	}
	return pathVal
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if upstream.IsHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			c.Set(key, value)
		}
	}
}
