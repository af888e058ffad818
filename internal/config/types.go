package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// 代理类型，目前只识别 http（squid 等），其余一律视为不走代理。
const (
	ProxyTypeNone = "none"
	ProxyTypeHTTP = "http"
)

// GlobalConfig 描述全局运行时行为，所有缓存与传输层共享同一份参数。
type GlobalConfig struct {
	ListenPort    int    `mapstructure:"ListenPort"`
	LogLevel      string `mapstructure:"LogLevel"`
	LogFilePath   string `mapstructure:"LogFilePath"`
	LogMaxSize    int    `mapstructure:"LogMaxSize"`
	LogMaxBackups int    `mapstructure:"LogMaxBackups"`
	LogCompress   bool   `mapstructure:"LogCompress"`

	// StoragePath 是实例缓存根目录，页面缓存、SOAP 缓存与重定向表都挂在其下。
	StoragePath           string   `mapstructure:"StoragePath"`
	MaxAgeDefault         Duration `mapstructure:"MaxAgeDefault"`
	EnableRedirectCaching bool     `mapstructure:"EnableRedirectCaching"`

	ProbeURL        string   `mapstructure:"ProbeURL"`
	ProbeTimeout    Duration `mapstructure:"ProbeTimeout"`
	UpstreamTimeout Duration `mapstructure:"UpstreamTimeout"`
	UserAgent       string   `mapstructure:"UserAgent"`
	FetchSpacing    Duration `mapstructure:"FetchSpacing"`

	NetworkProxyType string `mapstructure:"NetworkProxyType"`
	NetworkProxyIP   string `mapstructure:"NetworkProxyIP"`
	NetworkProxyPort string `mapstructure:"NetworkProxyPort"`
	NetworkProxyUser string `mapstructure:"NetworkProxyUser"`
	NetworkProxyPass string `mapstructure:"NetworkProxyPass"`

	CABundle         string   `mapstructure:"CABundle"`
	SSLNoVerifyHosts []string `mapstructure:"SSLNoVerifyHosts"`
}

// ServiceConfig 描述一个 SOAP 服务端点及其缓存/限流参数。
type ServiceConfig struct {
	Name           string   `mapstructure:"Name"`
	Endpoint       string   `mapstructure:"Endpoint"`
	Namespace      string   `mapstructure:"Namespace"`
	CacheRequests  *bool    `mapstructure:"CacheRequests"`
	MaxAge         Duration `mapstructure:"MaxAge"`
	MinimumSpacing Duration `mapstructure:"MinimumSpacing"`
	Username       string   `mapstructure:"Username"`
	Password       string   `mapstructure:"Password"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global   GlobalConfig    `mapstructure:",squash"`
	Services []ServiceConfig `mapstructure:"Service"`
}

// ProxyEnabled 表示是否需要通过 HTTP 代理访问外网。
func (g GlobalConfig) ProxyEnabled() bool {
	return strings.EqualFold(strings.TrimSpace(g.NetworkProxyType), ProxyTypeHTTP)
}

// HTTPProxy 返回 http://[user:pass@]ip[:port] 形式的代理地址，未启用代理时返回 nil。
// 用户名与密码按 userinfo 规则转义，可包含 #、/、@ 等字符。
func (g GlobalConfig) HTTPProxy() *url.URL {
	if !g.ProxyEnabled() {
		return nil
	}
	host := strings.TrimSpace(g.NetworkProxyIP)
	if port := strings.TrimSpace(g.NetworkProxyPort); port != "" {
		host = net.JoinHostPort(host, port)
	}
	proxyURL := &url.URL{Scheme: "http", Host: host}
	if g.NetworkProxyUser != "" {
		proxyURL.User = url.UserPassword(g.NetworkProxyUser, g.NetworkProxyPass)
	}
	return proxyURL
}

// HTTPProxyURL 是 HTTPProxy 的字符串形式，未启用代理时返回空串。
func (g GlobalConfig) HTTPProxyURL() string {
	if proxyURL := g.HTTPProxy(); proxyURL != nil {
		return proxyURL.String()
	}
	return ""
}

// ShouldCache 返回服务是否启用请求缓存，未显式配置时默认开启。
func (s ServiceConfig) ShouldCache() bool {
	if s.CacheRequests == nil {
		return true
	}
	return *s.CacheRequests
}

// HasCredentials 表示当前服务是否配置了完整的鉴权信息。
func (s ServiceConfig) HasCredentials() bool {
	return s.Username != "" && s.Password != ""
}

// AuthMode 输出 `credentialed` 或 `anonymous`，供日志字段使用。
func (s ServiceConfig) AuthMode() string {
	if s.HasCredentials() {
		return "credentialed"
	}
	return "anonymous"
}

// CredentialModes 返回所有服务的鉴权模式摘要，例如 octopart:credentialed。
func CredentialModes(services []ServiceConfig) []string {
	if len(services) == 0 {
		return nil
	}
	result := make([]string, len(services))
	for i, svc := range services {
		result[i] = fmt.Sprintf("%s:%s", svc.Name, svc.AuthMode())
	}
	return result
}

// EffectiveMaxAge 返回服务生效的缓存有效期，未覆盖时回退至全局 MaxAgeDefault。
func (c *Config) EffectiveMaxAge(svc ServiceConfig) time.Duration {
	if svc.MaxAge.DurationValue() > 0 {
		return svc.MaxAge.DurationValue()
	}
	return c.Global.MaxAgeDefault.DurationValue()
}

// Service 按名称查找服务配置。
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceConfig{}, false
}
