// Package soap 提供基于 transport 组合的 SOAP 1.1 客户端。
package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/cache"
	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/netstate"
	"github.com/netcache/netcache/internal/transport"
)

const envelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"

// Service 描述一个 SOAP 端点。
type Service struct {
	Name      string
	Endpoint  string
	Namespace string
}

// Options 决定客户端使用缓存限流传输还是裸认证传输。
type Options struct {
	CacheRequests  bool
	MaxAge         time.Duration
	MinimumSpacing time.Duration
	// Store 在 CacheRequests 为 true 时必填。
	Store        cache.Store
	HTTPClient   *http.Client
	Username     string
	Password     string
	Logger       logrus.FieldLogger
	Connectivity *netstate.ConnectivityState
}

// Fault 表示非 200 的 SOAP 响应。
type Fault struct {
	StatusCode int
	Code       string
	String     string
}

func (f *Fault) Error() string {
	if f.Code == "" && f.String == "" {
		return fmt.Sprintf("soap fault: http status %d", f.StatusCode)
	}
	return fmt.Sprintf("soap fault (%d): %s %s", f.StatusCode, f.Code, f.String)
}

// Client 把调用包装成 SOAP 信封并经由 transport.Sender 发送。
type Client struct {
	service Service
	sender  transport.Sender
	cached  bool
	logger  logrus.FieldLogger
}

// NewClient 按 Options 组装传输链：缓存时为 Cached(Throttled(HTTP))，否则为 HTTP。
func NewClient(svc Service, opts Options) (*Client, error) {
	if svc.Endpoint == "" {
		return nil, errors.New("soap service endpoint required")
	}
	base := transport.NewHTTPTransport(opts.HTTPClient, opts.Username, opts.Password)

	client := &Client{
		service: svc,
		sender:  base,
		logger:  logging.OrDiscard(opts.Logger),
	}
	if !opts.CacheRequests {
		return client, nil
	}
	if opts.Store == nil {
		return nil, errors.New("soap cache store required when caching requests")
	}
	cached, err := transport.NewCachedThrottled(opts.Store, base, opts.MinimumSpacing, transport.CacheOptions{
		Name:         "soap",
		MaxAge:       opts.MaxAge,
		Connectivity: opts.Connectivity,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	client.sender = cached
	client.cached = true
	return client, nil
}

// Service 返回客户端绑定的服务描述。
func (c *Client) Service() Service {
	return c.service
}

// Cached 报告是否启用了请求缓存。
func (c *Client) Cached() bool {
	return c.cached
}

// Call 发送 action，body 为 Body 元素内的 XML 片段，返回响应 Body 的内部 XML。
func (c *Client) Call(ctx context.Context, action string, body []byte) ([]byte, error) {
	req := &transport.Request{
		URL:     c.service.Endpoint,
		Message: Envelope(body),
		Header: http.Header{
			"Content-Type": {"text/xml; charset=utf-8"},
			"SOAPAction":   {`"` + c.soapAction(action) + `"`},
		},
	}

	c.logger.WithFields(logrus.Fields{
		"action":  "soap_call",
		"service": c.service.Name,
		"method":  action,
	}).Debug("getting SOAP response")

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		return nil, err
	}

	parsed, parseErr := parseEnvelope(resp.Body)
	if !resp.OK() {
		fault := &Fault{StatusCode: resp.StatusCode}
		if parseErr == nil && parsed.Body.Fault != nil {
			fault.Code = strings.TrimSpace(parsed.Body.Fault.Code)
			fault.String = strings.TrimSpace(parsed.Body.Fault.String)
		}
		return nil, fault
	}
	if parseErr != nil {
		return nil, fmt.Errorf("decode soap response: %w", parseErr)
	}
	return bytes.TrimSpace(parsed.Body.Content), nil
}

func (c *Client) soapAction(action string) string {
	if c.service.Namespace == "" || strings.Contains(action, "://") {
		return action
	}
	return strings.TrimSuffix(c.service.Namespace, "/") + "/" + action
}

// Envelope 把 body 包装成 SOAP 1.1 信封。
func Envelope(body []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString(`<soap:Envelope xmlns:soap="` + envelopeNS + `"><soap:Body>`)
	buf.Write(body)
	buf.WriteString(`</soap:Body></soap:Envelope>`)
	return buf.Bytes()
}

type envelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Content []byte `xml:",innerxml"`
		Fault   *struct {
			Code   string `xml:"faultcode"`
			String string `xml:"faultstring"`
		} `xml:"Fault"`
	} `xml:"Body"`
}

func parseEnvelope(raw []byte) (*envelope, error) {
	var env envelope
	if err := xml.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
