package transport

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/throttle"
)

// Throttled 在委托给下游 Sender 之前强制最小发送间隔。
type Throttled struct {
	next   Sender
	gate   *throttle.Gate
	logger logrus.FieldLogger
}

// NewThrottled 以 minimumSpacing 包裹 next，0 表示不限流。
func NewThrottled(next Sender, minimumSpacing time.Duration, logger logrus.FieldLogger) *Throttled {
	return NewThrottledWithGate(next, throttle.NewGate(minimumSpacing), logger)
}

// NewThrottledWithGate 使用外部构造的 Gate，便于测试注入时钟。
func NewThrottledWithGate(next Sender, gate *throttle.Gate, logger logrus.FieldLogger) *Throttled {
	return &Throttled{
		next:   next,
		gate:   gate,
		logger: logging.OrDiscard(logger),
	}
}

func (t *Throttled) Send(ctx context.Context, req *Request) (*Response, error) {
	wait, err := t.gate.Wait(ctx)
	if wait > 0 {
		t.logger.WithFields(logrus.Fields{
			"action":  "throttle_wait",
			"url":     req.URL,
			"wait_ms": wait.Milliseconds(),
		}).Info("throttling client")
	}
	if err != nil {
		return nil, err
	}
	return t.next.Send(ctx, req)
}
