package routes

import (
	"errors"

	"github.com/gofiber/fiber/v3"

	"github.com/pwa-edge/pwa-edge/internal/clients"
	"github.com/pwa-edge/pwa-edge/internal/platform"
	"github.com/pwa-edge/pwa-edge/internal/server"
	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// Options 控制哪些 /-/ 接口被注册。
type Options struct {
	Metrics bool
}

// Register 注册全部 /-/ 诊断与平台接口。
func Register(app *fiber.App, rt *server.Runtime, opts Options) {
	if app == nil || rt == nil {
		return
	}
	RegisterDiagnosticsRoutes(app, rt)
	RegisterClientRoutes(app, rt)
	RegisterEventRoutes(app, rt)
	if opts.Metrics {
		RegisterMetricsRoutes(app)
	}
}

func writeError(c fiber.Ctx, status int, code string) error {
	return c.Status(status).JSON(fiber.Map{"error": code})
}

// writeControllerError 把 sw 与平台的错误映射为 HTTP 状态与错误码。
func writeControllerError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, sw.ErrNotActive):
		return writeError(c, fiber.StatusServiceUnavailable, "not_active")
	case errors.Is(err, sw.ErrNoWaiting):
		return writeError(c, fiber.StatusConflict, "no_waiting")
	case errors.Is(err, sw.ErrUnknownMessage):
		return writeError(c, fiber.StatusBadRequest, "unknown_message")
	case errors.Is(err, sw.ErrSyncFailed):
		return writeError(c, fiber.StatusBadGateway, "sync_failed")
	case errors.Is(err, clients.ErrClientNotFound):
		return writeError(c, fiber.StatusNotFound, "client_not_found")
	case errors.Is(err, platform.ErrSchedulerStopped):
		return writeError(c, fiber.StatusServiceUnavailable, "scheduler_stopped")
	default:
		return writeError(c, fiber.StatusInternalServerError, "internal_error")
	}
}
