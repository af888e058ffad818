// Package session 持有一个进程内网络访问上下文的全部可变状态：连通性、
// 重定向表、页面与 SOAP 缓存目录。宿主在退出路径上调用 Close 持久化重定向表。
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/cache"
	"github.com/netcache/netcache/internal/config"
	"github.com/netcache/netcache/internal/fetch"
	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/netclient"
	"github.com/netcache/netcache/internal/netstate"
	"github.com/netcache/netcache/internal/redirects"
	"github.com/netcache/netcache/internal/soap"
)

// 实例缓存根目录下的固定布局。
const (
	PageCacheDir     = "soupcache"
	SOAPCacheDir     = "soapcache"
	RequestsCacheDir = "requestscache"
	RedirectsFile    = "redirects.gob"
)

// Options 调整 New 的启动行为，零值即生产默认。
type Options struct {
	// SkipProbe 跳过启动探测，连通性直接取 Connected。
	SkipProbe bool
	Connected bool
	// HTTPClient 非空时替代 netclient.New 构建的客户端。
	HTTPClient *http.Client
	Now        func() time.Time
}

// Session 聚合所有注入式状态，并发安全。
type Session struct {
	cfg           *config.Config
	logger        logrus.FieldLogger
	client        *http.Client
	connectivity  *netstate.ConnectivityState
	redirects     *redirects.Table
	pageStore     cache.Store
	soapStore     cache.Store
	requestsStore cache.Store
	fetcher       *fetch.CachedFetcher
	now           func() time.Time

	mu          sync.Mutex
	soapClients map[string]*soap.Client

	closeOnce sync.Once
	closeErr  error
}

// New 构建会话：HTTP 客户端、连通性探测、重定向表与缓存目录。
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, opts Options) (*Session, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	logger = logging.OrDiscard(logger)

	client := opts.HTTPClient
	if client == nil {
		var err error
		client, err = netclient.New(cfg)
		if err != nil {
			return nil, fmt.Errorf("build http client: %w", err)
		}
	}

	connectivity := netstate.NewConnectivityState(opts.Connected)
	if !opts.SkipProbe {
		netstate.ProbeInto(ctx, connectivity, client, cfg.Global.ProbeURL, cfg.Global.ProbeTimeout.DurationValue(), logger)
	}

	root := cfg.Global.StoragePath
	pageStore, err := cache.NewStore(filepath.Join(root, PageCacheDir))
	if err != nil {
		return nil, fmt.Errorf("open page cache: %w", err)
	}
	soapStore, err := cache.NewStore(filepath.Join(root, SOAPCacheDir))
	if err != nil {
		return nil, fmt.Errorf("open soap cache: %w", err)
	}

	requestsStore, err := cache.NewStore(filepath.Join(root, RequestsCacheDir))
	if err != nil {
		return nil, fmt.Errorf("open requests cache: %w", err)
	}

	table := redirects.Load(filepath.Join(root, RedirectsFile), cfg.Global.EnableRedirectCaching, logger)

	opener := fetch.NewOpener(client, table, cfg.Global.UserAgent, logger)
	fetcher, err := fetch.NewCachedFetcher(pageStore, opener, fetch.Options{
		MaxAge:       cfg.Global.MaxAgeDefault.DurationValue(),
		Spacing:      cfg.Global.FetchSpacing.DurationValue(),
		Connectivity: connectivity,
		Logger:       logger,
		Now:          opts.Now,
	})
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:           cfg,
		logger:        logger,
		client:        client,
		connectivity:  connectivity,
		redirects:     table,
		pageStore:     pageStore,
		soapStore:     soapStore,
		requestsStore: requestsStore,
		fetcher:       fetcher,
		now:           opts.Now,
		soapClients:   make(map[string]*soap.Client),
	}, nil
}

// Fetch 返回 url 的页面内容，maxAge <= 0 使用 MaxAgeDefault。
func (s *Session) Fetch(ctx context.Context, url string, maxAge time.Duration) ([]byte, error) {
	return s.fetcher.Fetch(ctx, url, maxAge)
}

// FetchPath 返回 url 对应缓存文件的路径。
func (s *Session) FetchPath(ctx context.Context, url string, maxAge time.Duration) (string, error) {
	return s.fetcher.FetchPath(ctx, url, maxAge)
}

// SOAPClient 返回按配置构造的 SOAP 客户端，同名服务复用同一实例以共享限流状态。
func (s *Session) SOAPClient(name string) (*soap.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if client, ok := s.soapClients[name]; ok {
		return client, nil
	}

	svc, ok := s.cfg.Service(name)
	if !ok {
		return nil, fmt.Errorf("soap service %q not configured", name)
	}
	client, err := soap.NewClient(soap.Service{
		Name:      svc.Name,
		Endpoint:  svc.Endpoint,
		Namespace: svc.Namespace,
	}, soap.Options{
		CacheRequests:  svc.ShouldCache(),
		MaxAge:         s.cfg.EffectiveMaxAge(svc),
		MinimumSpacing: svc.MinimumSpacing.DurationValue(),
		Store:          s.soapStore,
		HTTPClient:     s.client,
		Username:       svc.Username,
		Password:       svc.Password,
		Logger:         s.logger.WithField("service", svc.Name),
		Connectivity:   s.connectivity,
	})
	if err != nil {
		return nil, err
	}
	s.soapClients[name] = client
	return client, nil
}

// HTTPSession 返回一个新的 http.Client：prefix 下的 GET 请求经 requestscache 缓存，
// 有效期为 MaxAgeDefault；其余请求直接走共享客户端的 transport。prefix 为空时取 "http://"。
func (s *Session) HTTPSession(prefix string) (*http.Client, error) {
	rt, err := fetch.NewCachingTransport(s.requestsStore, s.client.Transport, fetch.TransportOptions{
		Prefix:       prefix,
		MaxAge:       s.cfg.Global.MaxAgeDefault.DurationValue(),
		Connectivity: s.connectivity,
		Logger:       s.logger,
		Now:          s.now,
	})
	if err != nil {
		return nil, err
	}
	client := *s.client
	client.Transport = rt
	return &client, nil
}

// Connectivity 返回会话的连通性状态。
func (s *Session) Connectivity() *netstate.ConnectivityState {
	return s.connectivity
}

// Redirects 返回会话的重定向表。
func (s *Session) Redirects() *redirects.Table {
	return s.redirects
}

// HTTPClient 返回共享的出站客户端。
func (s *Session) HTTPClient() *http.Client {
	return s.client
}

// Close 持久化重定向表。多次调用只执行一次；错误被记录并返回，从不 panic。
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		defer func() {
			if r := recover(); r != nil {
				s.closeErr = fmt.Errorf("session close panic: %v", r)
				s.logger.WithField("action", "shutdown").Error(s.closeErr.Error())
			}
		}()
		if err := s.redirects.Flush(); err != nil {
			s.closeErr = err
			s.logger.WithError(err).WithField("action", "shutdown").Error("failed to persist redirect table")
			return
		}
		s.logger.WithFields(logrus.Fields{
			"action":    "shutdown",
			"redirects": s.redirects.Len(),
		}).Info("session closed")
	})
	return s.closeErr
}
