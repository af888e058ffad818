package fetch

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/cache"
	"github.com/netcache/netcache/internal/netstate"
)

// DefaultCachePrefix 与未指定前缀时的挂载范围一致：仅缓存明文 http 目标。
const DefaultCachePrefix = "http://"

// 可被直接缓存的状态码，其余响应透传但不落盘。
var cacheableStatuses = map[int]struct{}{
	http.StatusOK:                   {},
	http.StatusNonAuthoritativeInfo: {},
	http.StatusMultipleChoices:      {},
	http.StatusMovedPermanently:     {},
	http.StatusPermanentRedirect:    {},
}

// TransportOptions 配置 CachingTransport。
type TransportOptions struct {
	// Prefix 限定被缓存的 URL 前缀，空值取 DefaultCachePrefix。
	Prefix       string
	MaxAge       time.Duration
	Connectivity *netstate.ConnectivityState
	Logger       logrus.FieldLogger
	Now          func() time.Time
}

// CachingTransport 是挂在 http.Client 上的 RoundTripper：前缀匹配的 GET 请求按 URL
// 缓存，过期只看 MaxAge，不理会响应里的缓存头。
type CachingTransport struct {
	next     http.RoundTripper
	prefix   string
	maxAge   time.Duration
	accessor *cache.Accessor[*http.Request, *storedResponse]
}

type storedResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// NewCachingTransport 包裹 next，next 为空时使用 http.DefaultTransport。
func NewCachingTransport(store cache.Store, next http.RoundTripper, opts TransportOptions) (*CachingTransport, error) {
	if next == nil {
		next = http.DefaultTransport
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultCachePrefix
	}
	t := &CachingTransport{
		next:   next,
		prefix: prefix,
		maxAge: opts.MaxAge,
	}
	accessor, err := cache.NewAccessor(store, cache.Strategy[*http.Request, *storedResponse]{
		Key:         func(req *http.Request) string { return URLKey(req.URL.String()) },
		Fetch:       t.roundTripFresh,
		Serialize:   encodeStored,
		Deserialize: decodeStored,
	}, cache.Options{
		Name:         "requests",
		Connectivity: opts.Connectivity,
		Logger:       opts.Logger,
		Now:          opts.Now,
	})
	if err != nil {
		return nil, err
	}
	t.accessor = accessor
	return t, nil
}

// Prefix 返回缓存生效的 URL 前缀。
func (t *CachingTransport) Prefix() string {
	return t.prefix
}

func (t *CachingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method != http.MethodGet || !strings.HasPrefix(req.URL.String(), t.prefix) {
		return t.next.RoundTrip(req)
	}
	stored, err := t.accessor.Get(req.Context(), t.maxAge, req)
	if err != nil {
		return nil, err
	}
	return stored.toResponse(req), nil
}

func (t *CachingTransport) roundTripFresh(_ context.Context, req *http.Request) (*storedResponse, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", req.URL, err)
	}
	return &storedResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       body,
	}, nil
}

func (s *storedResponse) toResponse(req *http.Request) *http.Response {
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.StatusCode, http.StatusText(s.StatusCode)),
		StatusCode:    s.StatusCode,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        s.Header.Clone(),
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

func encodeStored(resp *storedResponse) ([]byte, error) {
	if _, ok := cacheableStatuses[resp.StatusCode]; !ok {
		return nil, fmt.Errorf("status %d: %w", resp.StatusCode, cache.ErrNotCacheable)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(resp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeStored(raw []byte) (*storedResponse, error) {
	var resp storedResponse
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, nil
}
