// Package routes 注册 /-/ 前缀下的诊断接口。
package routes

import (
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/netcache/netcache/internal/netstate"
	"github.com/netcache/netcache/internal/redirects"
	"github.com/netcache/netcache/internal/version"
)

// Diagnostics 是诊断接口读取的状态来源，*session.Session 满足该接口。
type Diagnostics interface {
	Connectivity() *netstate.ConnectivityState
	Redirects() *redirects.Table
}

// RegisterDiagnosticsRoutes 暴露 /-/status 与 /-/redirects/resolve。
func RegisterDiagnosticsRoutes(app *fiber.App, diag Diagnostics) {
	if app == nil || diag == nil {
		return
	}

	app.Get("/-/status", func(c fiber.Ctx) error {
		table := diag.Redirects()
		return c.JSON(statusPayload{
			Connected:       diag.Connectivity().IsConnected(),
			RedirectCaching: table.Enabled(),
			Redirects:       table.Len(),
			Version:         version.Full(),
		})
	})

	app.Get("/-/redirects/resolve", func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}
		return c.JSON(fiber.Map{
			"url":      target,
			"resolved": diag.Redirects().Resolve(target),
		})
	})
}

type statusPayload struct {
	Connected       bool   `json:"connected"`
	RedirectCaching bool   `json:"redirect_caching"`
	Redirects       int    `json:"redirects"`
	Version         string `json:"version"`
}
