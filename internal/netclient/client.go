// Package netclient 构建所有出站请求共享的 http.Client：统一超时、代理、
// 自定义 CA 以及按 URL 前缀跳过证书校验的开发用配置。
package netclient

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/netcache/netcache/internal/config"
)

// Shared HTTP transport tunings，复用长连接并集中配置超时。
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   16,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// New 返回共享 http.Client。配置了 http 代理时覆盖环境变量代理；
// CABundle 会追加到系统根证书；SSLNoVerifyHosts 前缀匹配的请求走跳过校验的 transport。
func New(cfg *config.Config) (*http.Client, error) {
	timeout := 30 * time.Second
	if cfg != nil && cfg.Global.UpstreamTimeout.DurationValue() > 0 {
		timeout = cfg.Global.UpstreamTimeout.DurationValue()
	}

	secure := defaultTransport.Clone()
	if cfg == nil {
		return &http.Client{Timeout: timeout, Transport: secure}, nil
	}

	if proxyURL := cfg.Global.HTTPProxy(); proxyURL != nil {
		secure.Proxy = http.ProxyURL(proxyURL)
	}

	if bundle := strings.TrimSpace(cfg.Global.CABundle); bundle != "" {
		pool, err := loadCABundle(bundle)
		if err != nil {
			return nil, err
		}
		secure.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	var rt http.RoundTripper = secure
	if len(cfg.Global.SSLNoVerifyHosts) > 0 {
		insecure := secure.Clone()
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
		if secure.TLSClientConfig != nil {
			tlsCfg = secure.TLSClientConfig.Clone()
		}
		tlsCfg.InsecureSkipVerify = true // #nosec G402 -- 仅对显式配置的开发主机生效
		insecure.TLSClientConfig = tlsCfg
		rt = &prefixRouter{
			secure:   secure,
			insecure: insecure,
			prefixes: append([]string(nil), cfg.Global.SSLNoVerifyHosts...),
		}
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: rt,
	}, nil
}

func loadCABundle(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read CA bundle: %w", err)
	}
	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("CA bundle %s contains no certificates", path)
	}
	return pool, nil
}

// prefixRouter 按请求 URL 前缀在两个 transport 之间选择。
type prefixRouter struct {
	secure   http.RoundTripper
	insecure http.RoundTripper
	prefixes []string
}

func (r *prefixRouter) RoundTrip(req *http.Request) (*http.Response, error) {
	if SkipVerify(req.URL.String(), r.prefixes) {
		return r.insecure.RoundTrip(req)
	}
	return r.secure.RoundTrip(req)
}

// SkipVerify 判断 rawURL 是否命中免校验前缀。
func SkipVerify(rawURL string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(rawURL, prefix) {
			return true
		}
	}
	return false
}
