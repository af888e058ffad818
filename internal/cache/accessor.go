package cache

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/metrics"
	"github.com/netcache/netcache/internal/netstate"
)

// ErrNotCacheable 由 Serialize 返回，表示该响应不应写入缓存（例如非 200 状态）。
var ErrNotCacheable = errors.New("response not cacheable")

// Strategy 描述一类缓存的可变部分。Key 与 Fetch 必填；Serialize/Deserialize
// 为空时按 []byte 原样存取，此时 T 必须是 []byte。
type Strategy[P, T any] struct {
	// Key 把请求参数映射为确定性的十六进制 key，通常用 HashKey。
	Key func(P) string
	// Fetch 从源头获取新鲜内容，错误原样返回给调用方。
	Fetch func(ctx context.Context, params P) (T, error)
	// Serialize 把内容编码为落盘字节；返回错误表示"不缓存"，但内容仍会交给调用方。
	Serialize func(T) ([]byte, error)
	// Deserialize 把落盘字节还原为内容；失败视为缓存损坏。
	Deserialize func([]byte) (T, error)
}

// Options 控制访问器的运行时依赖。
type Options struct {
	// Name 用于日志与指标标签。
	Name string
	// Connectivity 为空或离线时，只要条目存在就直接返回缓存。
	Connectivity *netstate.ConnectivityState
	Logger       logrus.FieldLogger
	// Now 仅供测试注入时钟。
	Now func() time.Time
}

// Accessor 是通用的 get-or-fetch 引擎：命中新鲜缓存（或离线且存在缓存）时读取
// 缓存，否则回源、写回缓存并返回新鲜内容。
type Accessor[P, T any] struct {
	store    Store
	strategy Strategy[P, T]
	name     string
	state    *netstate.ConnectivityState
	logger   logrus.FieldLogger
	now      func() time.Time
}

// NewAccessor 校验 Strategy 并构造访问器。
func NewAccessor[P, T any](store Store, strategy Strategy[P, T], opts Options) (*Accessor[P, T], error) {
	if store == nil {
		return nil, errors.New("cache store required")
	}
	if strategy.Key == nil {
		return nil, errors.New("cache strategy requires Key")
	}
	if strategy.Fetch == nil {
		return nil, errors.New("cache strategy requires Fetch")
	}
	if strategy.Serialize == nil || strategy.Deserialize == nil {
		var zero T
		if _, ok := any(zero).([]byte); !ok {
			return nil, fmt.Errorf("cache strategy for %T requires Serialize and Deserialize", zero)
		}
		if strategy.Serialize == nil {
			strategy.Serialize = func(v T) ([]byte, error) { return any(v).([]byte), nil }
		}
		if strategy.Deserialize == nil {
			strategy.Deserialize = func(raw []byte) (T, error) { return any(raw).(T), nil }
		}
	}

	name := opts.Name
	if name == "" {
		name = "default"
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Accessor[P, T]{
		store:    store,
		strategy: strategy,
		name:     name,
		state:    opts.Connectivity,
		logger:   logging.OrDiscard(opts.Logger),
		now:      now,
	}, nil
}

// Get 返回缓存或新鲜内容。缓存命中永远不会返回错误；错误只来自回源。
func (a *Accessor[P, T]) Get(ctx context.Context, maxAge time.Duration, params P) (T, error) {
	value, _, err := a.access(ctx, maxAge, params, false)
	return value, err
}

// GetPath 与 Get 相同，但只返回缓存文件路径，读取与解码交给调用方。
// 回源结果无法落盘（不可缓存或写入失败）时返回错误，因为此时没有可用的文件。
func (a *Accessor[P, T]) GetPath(ctx context.Context, maxAge time.Duration, params P) (string, error) {
	_, path, err := a.access(ctx, maxAge, params, true)
	return path, err
}

// Key 返回参数对应的缓存 key。
func (a *Accessor[P, T]) Key(params P) string {
	return a.strategy.Key(params)
}

func (a *Accessor[P, T]) access(ctx context.Context, maxAge time.Duration, params P, pathOnly bool) (T, string, error) {
	var zero T
	key := a.strategy.Key(params)

	if entry, result, ok := a.lookup(key, maxAge); ok {
		if pathOnly {
			a.observeHit(key, result)
			return zero, entry.FilePath, nil
		}
		value, err := a.load(key)
		if err == nil {
			a.observeHit(key, result)
			return value, entry.FilePath, nil
		}
		metrics.ObserveLookup(a.name, metrics.ResultCorrupt)
		a.logger.WithError(err).WithFields(logging.CacheFields("cache_corrupt", a.name, key)).
			Warn("cache entry unreadable, refetching")
		if rmErr := a.store.Remove(key); rmErr != nil {
			a.logger.WithError(rmErr).WithFields(logging.CacheFields("cache_corrupt", a.name, key)).
				Warn("remove corrupt cache entry failed")
		}
		return a.refresh(ctx, key, params, pathOnly)
	}

	a.logger.WithFields(logging.CacheFields("cache_miss", a.name, key)).Debug("cache miss")
	metrics.ObserveLookup(a.name, metrics.ResultMiss)
	return a.refresh(ctx, key, params, pathOnly)
}

// refresh 回源并写回缓存。
func (a *Accessor[P, T]) refresh(ctx context.Context, key string, params P, pathOnly bool) (T, string, error) {
	var zero T

	data, err := a.strategy.Fetch(ctx, params)
	if err != nil {
		return zero, "", err
	}

	raw, err := a.strategy.Serialize(data)
	if err != nil {
		metrics.ObserveNotCacheable(a.name)
		a.logger.WithError(err).WithFields(logging.CacheFields("not_cacheable", a.name, key)).
			Info("fresh response not cacheable, skip persisting")
		if pathOnly {
			return zero, "", fmt.Errorf("cache %s: %w", a.name, err)
		}
		return data, "", nil
	}

	entry, err := a.store.Put(ctx, key, bytes.NewReader(raw), PutOptions{ModTime: a.now()})
	if err != nil {
		metrics.ObserveWriteFailure(a.name)
		a.logger.WithError(err).WithFields(logging.CacheFields("cache_write_failed", a.name, key)).
			Warn("unable to write cache file")
		if pathOnly {
			return zero, "", fmt.Errorf("cache %s: write entry: %w", a.name, err)
		}
		return data, "", nil
	}

	a.logger.WithFields(logging.CacheFields("cache_store", a.name, key)).Debug("created new cache entry")
	return data, entry.FilePath, nil
}

// lookup 判断是否应当直接使用缓存：离线且条目存在，或条目年龄小于 maxAge。
// 只返回判定结果，命中计数在条目成功读取后由 observeHit 记录。
func (a *Accessor[P, T]) lookup(key string, maxAge time.Duration) (Entry, string, bool) {
	entry, err := a.store.Stat(key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			a.logger.WithError(err).WithFields(logging.CacheFields("cache_stat_failed", a.name, key)).
				Warn("cache stat failed, treating as miss")
		}
		return Entry{}, "", false
	}

	if a.now().Sub(entry.ModTime) < maxAge {
		return entry, metrics.ResultHit, true
	}
	if !a.state.IsConnected() {
		return entry, metrics.ResultStale, true
	}
	return Entry{}, "", false
}

func (a *Accessor[P, T]) observeHit(key, result string) {
	metrics.ObserveLookup(a.name, result)
	entry := a.logger.WithFields(logging.CacheFields("cache_hit", a.name, key))
	if result == metrics.ResultStale {
		entry.Debug("offline, serving stale cache entry")
		return
	}
	entry.Debug("cache hit")
}

func (a *Accessor[P, T]) load(key string) (T, error) {
	var zero T
	result, err := a.store.Get(key)
	if err != nil {
		return zero, err
	}
	defer result.Reader.Close()

	raw, err := io.ReadAll(result.Reader)
	if err != nil {
		return zero, err
	}
	return a.strategy.Deserialize(raw)
}
