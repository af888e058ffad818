package transport

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/cache"
	"github.com/netcache/netcache/internal/netstate"
)

// CacheOptions 配置响应缓存层。
type CacheOptions struct {
	Name         string
	MaxAge       time.Duration
	Connectivity *netstate.ConnectivityState
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// Cached 以 URL+报文为 key 缓存 200 响应，非 200 响应原样返回但不落盘。
type Cached struct {
	accessor *cache.Accessor[*Request, *Response]
	maxAge   time.Duration
}

// NewCached 用 fresh 作为回源发送器构造缓存层。
func NewCached(store cache.Store, fresh Sender, opts CacheOptions) (*Cached, error) {
	if fresh == nil {
		return nil, fmt.Errorf("fresh sender required")
	}
	name := opts.Name
	if name == "" {
		name = "soap"
	}
	accessor, err := cache.NewAccessor(store, cache.Strategy[*Request, *Response]{
		Key:         RequestKey,
		Fetch:       fresh.Send,
		Serialize:   encodeResponse,
		Deserialize: decodeResponse,
	}, cache.Options{
		Name:         name,
		Connectivity: opts.Connectivity,
		Logger:       opts.Logger,
		Now:          opts.Now,
	})
	if err != nil {
		return nil, err
	}
	return &Cached{accessor: accessor, maxAge: opts.MaxAge}, nil
}

// NewCachedThrottled 组合限流与缓存：缓存未命中时才经过限流发送器回源。
func NewCachedThrottled(store cache.Store, base Sender, minimumSpacing time.Duration, opts CacheOptions) (*Cached, error) {
	return NewCached(store, NewThrottled(base, minimumSpacing, opts.Logger), opts)
}

// Send 返回缓存或新鲜响应。
func (c *Cached) Send(ctx context.Context, req *Request) (*Response, error) {
	return c.accessor.Get(ctx, c.maxAge, req)
}

// MaxAge 返回缓存有效期。
func (c *Cached) MaxAge() time.Duration {
	return c.maxAge
}

// RequestKey 返回请求对应的缓存 key：hash(URL + Message)。
func RequestKey(req *Request) string {
	return cache.HashKey(req.URL, string(req.Message))
}

func encodeResponse(resp *Response) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil response: %w", cache.ErrNotCacheable)
	}
	if !resp.OK() {
		return nil, fmt.Errorf("bad status %d: %w", resp.StatusCode, cache.ErrNotCacheable)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeResponse(raw []byte) (*Response, error) {
	var resp Response
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, nil
}
