package fetch

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/cache"
	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/netstate"
	"github.com/netcache/netcache/internal/throttle"
)

// Options 配置 CachedFetcher。
type Options struct {
	// MaxAge 是调用方未指定有效期时的默认值。
	MaxAge time.Duration
	// Spacing 是两次回源之间的最小间隔。
	Spacing      time.Duration
	Connectivity *netstate.ConnectivityState
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// CachedFetcher 以 URL 为 key 缓存页面正文。缓存不遵循 HTTP/1.1 语义，
// 只按文件修改时间与 MaxAge 判断新鲜度。
type CachedFetcher struct {
	opener   *Opener
	gate     *throttle.Gate
	accessor *cache.Accessor[string, []byte]
	maxAge   time.Duration
	logger   logrus.FieldLogger
}

// NewCachedFetcher 构造页面缓存抓取器。
func NewCachedFetcher(store cache.Store, opener *Opener, opts Options) (*CachedFetcher, error) {
	f := &CachedFetcher{
		opener: opener,
		gate:   throttle.NewGate(opts.Spacing),
		maxAge: opts.MaxAge,
		logger: logging.OrDiscard(opts.Logger),
	}
	accessor, err := cache.NewAccessor(store, cache.Strategy[string, []byte]{
		Key:   URLKey,
		Fetch: f.fetchFresh,
	}, cache.Options{
		Name:         "pages",
		Connectivity: opts.Connectivity,
		Logger:       opts.Logger,
		Now:          opts.Now,
	})
	if err != nil {
		return nil, err
	}
	f.accessor = accessor
	return f, nil
}

// Fetch 返回 url 的正文，maxAge <= 0 时使用默认有效期。
func (f *CachedFetcher) Fetch(ctx context.Context, url string, maxAge time.Duration) ([]byte, error) {
	return f.accessor.Get(ctx, f.effectiveMaxAge(maxAge), url)
}

// FetchPath 只返回缓存文件路径。
func (f *CachedFetcher) FetchPath(ctx context.Context, url string, maxAge time.Duration) (string, error) {
	return f.accessor.GetPath(ctx, f.effectiveMaxAge(maxAge), url)
}

// URLKey 返回 url 对应的缓存 key。
func URLKey(url string) string {
	return cache.HashKey(url)
}

func (f *CachedFetcher) effectiveMaxAge(maxAge time.Duration) time.Duration {
	if maxAge > 0 {
		return maxAge
	}
	return f.maxAge
}

func (f *CachedFetcher) fetchFresh(ctx context.Context, url string) ([]byte, error) {
	if _, err := f.gate.Wait(ctx); err != nil {
		return nil, err
	}
	f.logger.WithFields(logging.RequestFields("fetch", url, false)).Debug("getting url content")
	return f.opener.Read(ctx, url)
}
