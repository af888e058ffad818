// Package fetch 是面向网页抓取的访问入口：Opener 负责重定向记忆与错误分类，
// CachedFetcher 在其上叠加按 URL 缓存与抓取间隔控制。
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/redirects"
)

const maxRedirects = 10

// StatusError 表示上游返回了 4xx/5xx，调用方可通过 errors.As 取得状态码。
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP Error : %d %s", e.StatusCode, e.URL)
}

// Hop 记录一次重定向跳转。
type Hop struct {
	From   string
	To     string
	Status int
}

type hopsKey struct{}

type hopRecorder struct {
	mu   sync.Mutex
	hops []Hop
}

func (r *hopRecorder) add(h Hop) {
	r.mu.Lock()
	r.hops = append(r.hops, h)
	r.mu.Unlock()
}

func (r *hopRecorder) list() []Hop {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Hop(nil), r.hops...)
}

// Opener 在发起请求前按重定向表改写 URL，并把观察到的 301 跳转写回表中。
type Opener struct {
	client    *http.Client
	redirects *redirects.Table
	userAgent string
	logger    logrus.FieldLogger
}

// NewOpener 复制 client 并挂上重定向观察钩子，不修改调用方传入的 client。
func NewOpener(client *http.Client, table *redirects.Table, userAgent string, logger logrus.FieldLogger) *Opener {
	if client == nil {
		client = http.DefaultClient
	}
	if table == nil {
		table = redirects.New("", false, logger)
	}
	observed := *client
	observed.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("stopped after %d redirects", maxRedirects)
		}
		if rec, ok := req.Context().Value(hopsKey{}).(*hopRecorder); ok && req.Response != nil {
			rec.add(Hop{
				From:   via[len(via)-1].URL.String(),
				To:     req.URL.String(),
				Status: req.Response.StatusCode,
			})
		}
		return nil
	}
	return &Opener{
		client:    &observed,
		redirects: table,
		userAgent: userAgent,
		logger:    logging.OrDiscard(logger),
	}
}

// Open 请求 rawURL（先经重定向表解析），返回的响应 Body 由调用方关闭。
// 4xx/5xx 以 *StatusError 返回；网络错误原样返回。
func (o *Opener) Open(ctx context.Context, rawURL string) (*http.Response, []Hop, error) {
	target := o.redirects.Resolve(rawURL)

	rec := &hopRecorder{}
	req, err := http.NewRequestWithContext(context.WithValue(ctx, hopsKey{}, rec), http.MethodGet, target, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("URL Error : %w", err)
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		o.logger.WithError(err).WithFields(logrus.Fields{
			"action": "fetch",
			"url":    target,
		}).Error("URL Error")
		return nil, nil, err
	}

	hops := rec.list()
	for _, hop := range hops {
		o.redirects.Record(hop.From, hop.To, hop.Status)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		statusErr := &StatusError{URL: target, StatusCode: resp.StatusCode}
		o.logger.WithFields(logrus.Fields{
			"action": "fetch",
			"url":    target,
			"status": resp.StatusCode,
		}).Error(statusErr.Error())
		return nil, hops, statusErr
	}
	return resp, hops, nil
}

// Read 打开 rawURL 并读取完整正文。
func (o *Opener) Read(ctx context.Context, rawURL string) ([]byte, error) {
	resp, _, err := o.Open(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rawURL, err)
	}
	return body, nil
}

// IsStatus 判断 err 是否为指定状态码的 StatusError。
func IsStatus(err error, status int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == status
}
