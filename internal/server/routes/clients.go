package routes

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/pwa-edge/pwa-edge/internal/clients"
	"github.com/pwa-edge/pwa-edge/internal/server"
	"github.com/pwa-edge/pwa-edge/internal/sw"
)

// HeartbeatInterval 是 SSE 注释心跳的间隔，写失败即视为页面断开。
var HeartbeatInterval = 15 * time.Second

// RegisterClientRoutes 暴露客户端列表与 SSE 消息通道。
func RegisterClientRoutes(app *fiber.App, rt *server.Runtime) {
	app.Get("/-/clients", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"clients": rt.Clients.MatchAll()})
	})

	// 页面通过 EventSource 连接；连接存续期间即为一个 ClientConnection。
	app.Get("/-/clients/events", func(c fiber.Ctx) error {
		pageURL := resolvePageURL(rt, c.Query("url"))
		activeVersion := ""
		if active, err := rt.Registration.Active(); err == nil {
			activeVersion = active.Version()
		}

		c.Set(fiber.HeaderContentType, "text/event-stream")
		c.Set(fiber.HeaderCacheControl, "no-cache")
		c.Set(fiber.HeaderConnection, "keep-alive")
		c.Set("X-Accel-Buffering", "no")

		return c.SendStreamWriter(func(w *bufio.Writer) {
			client := rt.Clients.Register(pageURL, activeVersion)
			defer rt.Clients.Unregister(client.ID)
			streamClient(w, rt.Logger, client, activeVersion)
		})
	})
}

func resolvePageURL(rt *server.Runtime, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "/"
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return strings.TrimSuffix(rt.Scope.String(), "/") + raw
}

// streamClient 先下发 CLIENT_READY，之后转发客户端通道中的消息，直到通道关闭或写失败。
func streamClient(w *bufio.Writer, logger *logrus.Logger, client *clients.Client, activeVersion string) {
	fields := logrus.Fields{"action": "clients", "client_id": client.ID}
	ready := sw.Message{Type: sw.MessageClientReady, ClientID: client.ID, Version: activeVersion, URL: client.URL}
	if err := writeEvent(w, ready); err != nil {
		logger.WithError(err).WithFields(fields).Debug("client_stream_closed")
		return
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			if err := writeEvent(w, msg); err != nil {
				logger.WithError(err).WithFields(fields).Debug("client_stream_closed")
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := w.Flush(); err != nil {
				logger.WithError(err).WithFields(fields).Debug("client_stream_closed")
				return
			}
		}
	}
}

func writeEvent(w *bufio.Writer, msg sw.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: message\ndata: %s\n\n", raw); err != nil {
		return err
	}
	return w.Flush()
}
