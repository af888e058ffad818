package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/fetch"
	"github.com/netcache/netcache/internal/metrics"
)

// Fetcher is the page source behind GET /fetch. *session.Session satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxAge time.Duration) ([]byte, error)
}

// AppOptions controls how the Fiber application should behave on a specific port.
type AppOptions struct {
	Logger     *logrus.Logger
	Fetcher    Fetcher
	ListenPort int
}

const contextKeyRequestID = "_netcache_request_id"

// NewApp builds a Fiber application with the fetch endpoint, metrics and
// structured error handling.
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
	})

	app.Use(recover.New())
	app.Use(requestContextMiddleware())

	app.Get("/fetch", fetchHandler(opts))
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	return app, nil
}

// requestContextMiddleware 为每个请求生成 ID 并回写 X-Request-ID。
func requestContextMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

func fetchHandler(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		target := strings.TrimSpace(c.Query("url"))
		if target == "" {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "url_required"})
		}
		maxAge, err := parseMaxAge(c.Query("max_age"))
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_max_age"})
		}

		ctx := c.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		started := time.Now()
		body, err := opts.Fetcher.Fetch(ctx, target, maxAge)
		fields := logrus.Fields{
			"action":     "gateway_fetch",
			"url":        target,
			"request_id": RequestID(c),
			"elapsed_ms": time.Since(started).Milliseconds(),
		}
		if err != nil {
			return renderFetchError(c, opts.Logger.WithFields(fields), err)
		}

		opts.Logger.WithFields(fields).Debug("fetch served")
		c.Set("X-Netcache-Key", fetch.URLKey(target))
		c.Set(fiber.HeaderContentType, fiber.MIMEOctetStream)
		return c.Send(body)
	}
}

func renderFetchError(c fiber.Ctx, logger logrus.FieldLogger, err error) error {
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) {
		logger.WithField("status", statusErr.StatusCode).Warn("upstream returned error status")
		return c.Status(statusErr.StatusCode).JSON(fiber.Map{
			"error":  "upstream_status",
			"status": statusErr.StatusCode,
		})
	}
	logger.WithError(err).Error("fetch failed")
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"error":   "upstream_failed",
		"message": err.Error(),
	})
}

// parseMaxAge 接受 Go duration 字符串或纯秒数，空值表示使用默认有效期。
func parseMaxAge(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid max_age %q", raw)
	}
	return time.Duration(seconds) * time.Second, nil
}

// RequestID returns the request identifier stored by the router middleware.
func RequestID(c fiber.Ctx) string {
	if value := c.Locals(contextKeyRequestID); value != nil {
		if reqID, ok := value.(string); ok {
			return reqID
		}
	}
	return ""
}
