package config

import (
	"net/url"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfgPath := testConfigPath(t, "valid.toml")

	cfg, err := Load(cfgPath)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if cfg.Global.MaxAgeDefault.DurationValue() != time.Hour {
		t.Fatalf("MaxAgeDefault 应解析为 1h，得到 %s", cfg.Global.MaxAgeDefault.DurationValue())
	}
	if cfg.Global.StoragePath == "" {
		t.Fatalf("StoragePath 应该被保留")
	}
	if cfg.Global.ProbeTimeout.DurationValue() != 5*time.Second {
		t.Fatalf("ProbeTimeout 应该自动填充默认值")
	}
	if cfg.Global.NetworkProxyType != ProxyTypeNone {
		t.Fatalf("NetworkProxyType 应被标准化为 none，得到 %s", cfg.Global.NetworkProxyType)
	}
	if !cfg.Global.EnableRedirectCaching {
		t.Fatalf("EnableRedirectCaching 应被解析")
	}
	if len(cfg.Services) != 1 {
		t.Fatalf("应解析出 1 个服务，得到 %d", len(cfg.Services))
	}
	svc := cfg.Services[0]
	if !svc.ShouldCache() {
		t.Fatalf("未配置 CacheRequests 时应默认开启缓存")
	}
	if svc.MinimumSpacing.DurationValue() != 2*time.Second {
		t.Fatalf("MinimumSpacing 应为 2s，得到 %s", svc.MinimumSpacing.DurationValue())
	}
	if cfg.EffectiveMaxAge(svc) != time.Hour {
		t.Fatalf("服务未设置 MaxAge 时应退回全局值")
	}
}

func TestValidateRejectsBadService(t *testing.T) {
	if _, err := Load(testConfigPath(t, "missing.toml")); err == nil {
		t.Fatalf("不合法的配置应返回错误")
	}
}

func TestEffectiveMaxAgeOverrides(t *testing.T) {
	cfg := &Config{Global: GlobalConfig{MaxAgeDefault: Duration(time.Hour)}}
	svc := ServiceConfig{MaxAge: Duration(2 * time.Hour)}
	if ttl := cfg.EffectiveMaxAge(svc); ttl != 2*time.Hour {
		t.Fatalf("覆盖 MaxAge 应该优先生效")
	}
}

func TestValidateEnforcesListenPortRange(t *testing.T) {
	cfg := validConfig()
	cfg.Global.ListenPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatalf("ListenPort 超出范围应当报错")
	}
}

func TestProxyTypeValidation(t *testing.T) {
	testCases := []struct {
		name      string
		proxyType string
		proxyIP   string
		shouldErr bool
	}{
		{"none ok", "none", "", false},
		{"empty ok", "", "", false},
		{"http ok", "http", "10.0.0.1", false},
		{"http without ip", "http", "", true},
		{"unsupported type", "socks5", "10.0.0.1", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Global.NetworkProxyType = tc.proxyType
			cfg.Global.NetworkProxyIP = tc.proxyIP
			err := cfg.Validate()
			if tc.shouldErr && err == nil {
				t.Fatalf("expected error for proxy type %q", tc.proxyType)
			}
			if !tc.shouldErr && err != nil {
				t.Fatalf("unexpected error for proxy type %q: %v", tc.proxyType, err)
			}
		})
	}
}

func TestValidateRequiresCredentialPairs(t *testing.T) {
	cfg := validConfig()
	cfg.Services[0].Username = "foo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("仅提供 Username 时应报错")
	}
}

func TestValidateRejectsPlainHTTPNoVerifyHost(t *testing.T) {
	cfg := validConfig()
	cfg.Global.SSLNoVerifyHosts = []string{"intranet.local"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("缺少 https:// 前缀时应报错")
	}
}

func TestHTTPProxyURL(t *testing.T) {
	testCases := []struct {
		name string
		cfg  GlobalConfig
		want string
	}{
		{"disabled", GlobalConfig{NetworkProxyType: "none", NetworkProxyIP: "10.0.0.1"}, ""},
		{"ip only", GlobalConfig{NetworkProxyType: "http", NetworkProxyIP: "10.0.0.1"}, "http://10.0.0.1"},
		{"ip and port", GlobalConfig{NetworkProxyType: "http", NetworkProxyIP: "10.0.0.1", NetworkProxyPort: "3128"}, "http://10.0.0.1:3128"},
		{
			"credentials",
			GlobalConfig{NetworkProxyType: "HTTP", NetworkProxyIP: "10.0.0.1", NetworkProxyPort: "3128", NetworkProxyUser: "u", NetworkProxyPass: "p"},
			"http://u:p@10.0.0.1:3128",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cfg.HTTPProxyURL(); got != tc.want {
				t.Fatalf("期望 %q，得到 %q", tc.want, got)
			}
		})
	}
}

func TestHTTPProxyEscapesCredentials(t *testing.T) {
	cfg := GlobalConfig{
		NetworkProxyType: "http",
		NetworkProxyIP:   "10.0.0.1",
		NetworkProxyPort: "3128",
		NetworkProxyUser: "alice",
		NetworkProxyPass: "p#ss/w@rd",
	}
	parsed, err := url.Parse(cfg.HTTPProxyURL())
	if err != nil {
		t.Fatalf("代理地址应可被解析: %v", err)
	}
	if parsed.Host != "10.0.0.1:3128" {
		t.Fatalf("unexpected host %s", parsed.Host)
	}
	pass, _ := parsed.User.Password()
	if parsed.User.Username() != "alice" || pass != "p#ss/w@rd" {
		t.Fatalf("凭证应原样往返，得到 %s / %s", parsed.User.Username(), pass)
	}
	if proxy := (GlobalConfig{NetworkProxyType: "none"}).HTTPProxy(); proxy != nil {
		t.Fatalf("未启用代理时应返回 nil，得到 %v", proxy)
	}
}

func validConfig() *Config {
	return &Config{
		Global: GlobalConfig{
			ListenPort:      5080,
			StoragePath:     "./data",
			MaxAgeDefault:   Duration(time.Hour),
			ProbeTimeout:    Duration(time.Second),
			UpstreamTimeout: Duration(time.Second),
		},
		Services: []ServiceConfig{
			{
				Name:     "octopart",
				Endpoint: "https://soap.example.test/service",
			},
		},
	}
}
