package routes

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/server"
	"github.com/pwa-edge/pwa-edge/internal/sw"
)

type tagRequest struct {
	Tag string `json:"tag"`
}

// RegisterEventRoutes 暴露宿主平台向 controller 投递事件的接口：
// 页面消息、后台同步、周期同步、推送、通知点击与更新检查。
func RegisterEventRoutes(app *fiber.App, rt *server.Runtime) {
	app.Post("/-/sw/message", func(c fiber.Ctx) error {
		msg, err := sw.ParseMessage(c.Body())
		if errors.Is(err, sw.ErrUnknownMessage) {
			return writeControllerError(c, err)
		}
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "invalid_payload")
		}
		clientID := strings.TrimSpace(c.Get(server.HeaderClientID))
		if clientID == "" {
			clientID = msg.ClientID
		}
		if err := rt.Registration.HandleMessage(c.Context(), clientID, msg); err != nil {
			return writeControllerError(c, err)
		}
		return c.JSON(rt.Registration.Snapshot())
	})

	app.Post("/-/sw/sync", func(c fiber.Ctx) error {
		tag, err := parseTag(c, rt.Config().Sync.Tag)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "invalid_payload")
		}
		registered, err := rt.Scheduler.Register(tag)
		if err != nil {
			return writeControllerError(c, err)
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"tag":        tag,
			"registered": registered,
		})
	})

	app.Post("/-/sw/periodicsync", func(c fiber.Ctx) error {
		fired, err := rt.Scheduler.FirePeriodic(c.Context())
		if err != nil {
			rt.Logger.WithError(err).WithField("action", "periodicsync").Warn("periodic_sync_failed")
			return writeControllerError(c, err)
		}
		return c.JSON(fiber.Map{"fired": fired})
	})

	app.Post("/-/sw/push", func(c fiber.Ctx) error {
		n, err := rt.Registration.Push(c.Context(), c.Body())
		if err != nil {
			return writeControllerError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(n)
	})

	app.Post("/-/sw/notificationclick", func(c fiber.Ctx) error {
		tag, err := parseTag(c, rt.Config().Push.Tag)
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "invalid_payload")
		}
		result, err := rt.Registration.NotificationClick(c.Context(), tag)
		if err != nil {
			return writeControllerError(c, err)
		}
		return c.JSON(result)
	})

	app.Post("/-/sw/update", func(c fiber.Ctx) error {
		result, err := rt.Updates.Check(c.Context())
		if err != nil {
			rt.Logger.WithError(err).WithFields(logrus.Fields{"action": "update"}).Warn("manual_update_failed")
			return writeControllerError(c, err)
		}
		return c.JSON(result)
	})

	app.Get("/-/notifications", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"notifications": rt.Notifications.List()})
	})
}

// parseTag 读取 {"tag": "..."}；请求体为空时使用 fallback。
func parseTag(c fiber.Ctx, fallback string) (string, error) {
	body := c.Body()
	if len(strings.TrimSpace(string(body))) == 0 {
		return fallback, nil
	}
	var req tagRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return "", err
	}
	if tag := strings.TrimSpace(req.Tag); tag != "" {
		return tag, nil
	}
	return fallback, nil
}
