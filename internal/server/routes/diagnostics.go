package routes

import (
	"context"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/cache"
	"github.com/pwa-edge/pwa-edge/internal/server"
	"github.com/pwa-edge/pwa-edge/internal/sw"
	"github.com/pwa-edge/pwa-edge/internal/version"
)

// RegisterDiagnosticsRoutes 暴露 /-/status、/-/strategies 与 /-/caches，供 SRE 查询 controller 状态。
func RegisterDiagnosticsRoutes(app *fiber.App, rt *server.Runtime) {
	app.Get("/-/status", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"registration": rt.Registration.Snapshot(),
			"pendingSyncs": rt.Scheduler.Pending(),
			"build":        version.Full(),
		})
	})

	app.Get("/-/strategies", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"strategies": encodeStrategies(sw.Strategies())})
	})

	app.Get("/-/caches", func(c fiber.Ctx) error {
		ctx := c.Context()
		names, err := rt.Storage.Names(ctx)
		if err != nil {
			rt.Logger.WithError(err).WithField("action", "diagnostics").Warn("cache_list_failed")
			return writeError(c, fiber.StatusInternalServerError, "cache_list_failed")
		}
		payload := cachesPayload{Stores: names}
		if active, err := rt.Registration.Active(); err == nil {
			payload.Current = active.Version()
			keys, err := currentEntries(ctx, rt.Storage, active.Version())
			if err != nil {
				rt.Logger.WithError(err).WithFields(logrus.Fields{
					"action": "diagnostics",
					"store":  active.Version(),
				}).Warn("cache_entries_failed")
			}
			payload.Entries = keys
		}
		return c.JSON(payload)
	})
}

// currentEntries 只打开当前版本的 store，Open 对不存在的名称会新建。
func currentEntries(ctx context.Context, storage cache.Storage, name string) ([]cache.RequestKey, error) {
	store, err := storage.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return store.Keys(ctx)
}

type strategyPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Precache    bool   `json:"precache"`
}

type cachesPayload struct {
	Current string             `json:"current,omitempty"`
	Stores  []string           `json:"stores"`
	Entries []cache.RequestKey `json:"entries,omitempty"`
}

func encodeStrategies(list []sw.StrategyMetadata) []strategyPayload {
	result := make([]strategyPayload, 0, len(list))
	for _, meta := range list {
		result = append(result, strategyPayload{
			Name:        meta.Name,
			Description: meta.Description,
			Precache:    meta.Precache,
		})
	}
	return result
}
