// Package throttle 提供按实例隔离的最小请求间隔控制。多个 Gate 之间不共享状态，
// 因此同一远端的多个实例加起来仍可能超过预期速率。
package throttle

import (
	"context"
	"sync"
	"time"

	"github.com/netcache/netcache/internal/metrics"
)

// Gate 保证连续两次放行之间至少间隔 spacing。
type Gate struct {
	spacing time.Duration

	mu   sync.Mutex
	next time.Time

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option 调整 Gate 的时钟实现，仅供测试使用。
type Option func(*Gate)

// WithClock 注入 now 与 sleep。
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(g *Gate) {
		if now != nil {
			g.now = now
		}
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// NewGate 创建间隔为 spacing 的 Gate，spacing <= 0 表示不限流。
func NewGate(spacing time.Duration, opts ...Option) *Gate {
	if spacing < 0 {
		spacing = 0
	}
	g := &Gate{
		spacing: spacing,
		now:     time.Now,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Spacing 返回配置的最小间隔。
func (g *Gate) Spacing() time.Duration {
	return g.spacing
}

// Wait 阻塞到下一个可用时间片并返回实际等待时长。时间片在锁内预留、锁外睡眠，
// 并发调用者会被依次排开。ctx 取消时返回 ctx.Err()，已预留的时间片不回收。
func (g *Gate) Wait(ctx context.Context) (time.Duration, error) {
	if g.spacing <= 0 {
		return 0, ctx.Err()
	}

	g.mu.Lock()
	now := g.now()
	slot := now
	if g.next.After(now) {
		slot = g.next
	}
	g.next = slot.Add(g.spacing)
	g.mu.Unlock()

	wait := slot.Sub(now)
	metrics.ObserveThrottleWait(wait.Seconds())
	if wait <= 0 {
		return 0, ctx.Err()
	}
	if err := g.sleep(ctx, wait); err != nil {
		return wait, err
	}
	return wait, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
