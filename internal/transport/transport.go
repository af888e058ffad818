// Package transport 定义协议客户端使用的请求发送抽象，并提供两种可组合的
// 装饰器：Throttled（最小间隔限流）与 Cached（基于 URL+报文的响应缓存）。
// 两者通过委托组合：NewCachedThrottled 先用限流包裹底层发送器，再交给缓存层
// 作为回源函数，缓存命中时不会产生任何限流等待。
package transport

import (
	"context"
	"net/http"
)

// Request 是一次协议请求的最小描述，缓存 key 仅由 URL 与 Message 决定。
type Request struct {
	URL     string
	Message []byte
	Header  http.Header
}

// Response 是可序列化的协议响应。
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK 表示状态码为 200。
func (r *Response) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// Sender 负责发送请求并返回响应；网络错误通过 error 返回，
// 非 2xx 响应仍作为 Response 返回，由上层决定如何处理。
type Sender interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, req *Request) (*Response, error)

// Send makes SenderFunc satisfy Sender.
func (f SenderFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}
