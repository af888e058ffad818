package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	if g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if g.MaxAgeDefault.DurationValue() <= 0 {
		return newFieldError("Global.MaxAgeDefault", "必须大于 0")
	}
	if g.ProbeTimeout.DurationValue() <= 0 {
		return newFieldError("Global.ProbeTimeout", "必须大于 0")
	}
	if g.UpstreamTimeout.DurationValue() <= 0 {
		return newFieldError("Global.UpstreamTimeout", "必须大于 0")
	}
	if g.FetchSpacing.DurationValue() < 0 {
		return newFieldError("Global.FetchSpacing", "不能为负数")
	}
	if g.ProbeURL != "" {
		if err := validateHTTPURL(g.ProbeURL); err != nil {
			return fmt.Errorf("Global.ProbeURL: %w", err)
		}
	}

	switch strings.ToLower(strings.TrimSpace(g.NetworkProxyType)) {
	case "", ProxyTypeNone:
	case ProxyTypeHTTP:
		if strings.TrimSpace(g.NetworkProxyIP) == "" {
			return newFieldError("Global.NetworkProxyIP", "启用 http 代理时不能为空")
		}
		if (g.NetworkProxyUser == "") != (g.NetworkProxyPass == "") {
			return newFieldError("Global.NetworkProxyUser/NetworkProxyPass", "必须同时提供或同时留空")
		}
	default:
		return newFieldError("Global.NetworkProxyType", "仅支持 none/http")
	}

	for _, host := range g.SSLNoVerifyHosts {
		if !strings.HasPrefix(host, "https://") {
			return newFieldError("Global.SSLNoVerifyHosts", fmt.Sprintf("需要 https://<domain> 形式: %s", host))
		}
	}

	seenNames := map[string]struct{}{}
	for i := range c.Services {
		svc := &c.Services[i]
		if svc.Name == "" {
			return newFieldError("Service[].Name", "不能为空")
		}
		if _, exists := seenNames[svc.Name]; exists {
			return newFieldError(serviceField(svc.Name, "Name"), "重复")
		}
		seenNames[svc.Name] = struct{}{}

		if err := validateHTTPURL(svc.Endpoint); err != nil {
			return fmt.Errorf("%s: %w", serviceField(svc.Name, "Endpoint"), err)
		}
		if svc.MaxAge.DurationValue() < 0 {
			return newFieldError(serviceField(svc.Name, "MaxAge"), "不能为负数")
		}
		if svc.MinimumSpacing.DurationValue() < 0 {
			return newFieldError(serviceField(svc.Name, "MinimumSpacing"), "不能为负数")
		}
		if (svc.Username == "") != (svc.Password == "") {
			return newFieldError(serviceField(svc.Name, "Username/Password"), "必须同时提供或同时留空")
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return errors.New("缺少地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("缺少 Host: %s", raw)
	}
	return nil
}
