package netstate

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/logging"
)

// DefaultProbeTimeout 是探测请求的固定超时，独立于普通请求超时。
const DefaultProbeTimeout = 5 * time.Second

// Probe 向已知可达的地址发起一次轻量 GET，任何网络错误都视为离线。
// 只要收到 HTTP 响应（无论状态码）即认为在线。
func Probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) bool {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
	return true
}

// ProbeInto 执行 Probe 并把结果写入 state，同时输出结构化日志。
func ProbeInto(ctx context.Context, state *ConnectivityState, client *http.Client, url string, timeout time.Duration, logger logrus.FieldLogger) bool {
	logger = logging.OrDiscard(logger)
	started := time.Now()
	ok := Probe(ctx, client, url, timeout)
	state.Set(ok)

	entry := logger.WithFields(logrus.Fields{
		"action":     "connectivity_probe",
		"probe_url":  url,
		"connected":  ok,
		"elapsed_ms": time.Since(started).Milliseconds(),
	})
	if ok {
		entry.Info("connectivity probe succeeded")
	} else {
		entry.Warn("connectivity probe failed, serving stale cache entries")
	}
	return ok
}
