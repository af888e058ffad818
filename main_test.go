package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseCLIFlagsPriority(t *testing.T) {
	t.Setenv("NETCACHE_CONFIG", "/tmp/env.toml")

	opts, err := parseCLIFlags([]string{})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/env.toml" {
		t.Fatalf("应优先使用环境变量，得到 %s", opts.configPath)
	}

	opts, err = parseCLIFlags([]string{"--config", "/tmp/flag.toml"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.configPath != "/tmp/flag.toml" {
		t.Fatalf("flag 应高于环境变量，得到 %s", opts.configPath)
	}
}

func TestParseCLIFlagsFetchOptions(t *testing.T) {
	opts, err := parseCLIFlags([]string{"--fetch", "http://example.test/", "--path", "--max-age", "90s"})
	if err != nil {
		t.Fatalf("解析失败: %v", err)
	}
	if opts.fetchURL != "http://example.test/" || !opts.pathOnly || opts.maxAge != 90*time.Second {
		t.Fatalf("unexpected options %+v", opts)
	}

	if _, err := parseCLIFlags([]string{"--path"}); err == nil {
		t.Fatalf("--path 缺少 --fetch 时应报错")
	}
}

func TestRunCheckConfigSuccess(t *testing.T) {
	captureOutput(t)
	code := run(cliOptions{configPath: configFixture(t, "valid.toml"), checkOnly: true})
	if code != 0 {
		t.Fatalf("期望退出码 0，得到 %d", code)
	}
}

func TestRunCheckConfigFailure(t *testing.T) {
	_, errOut := captureOutput(t)
	code := run(cliOptions{configPath: configFixture(t, "missing.toml"), checkOnly: true})
	if code == 0 {
		t.Fatalf("无效配置应返回非零退出码")
	}
	if !strings.Contains(errOut.String(), "加载配置失败") {
		t.Fatalf("stderr 应包含加载失败提示，得到 %q", errOut.String())
	}
}

func TestRunVersionOutput(t *testing.T) {
	out, _ := captureOutput(t)
	code := run(cliOptions{showVersion: true})
	if code != 0 {
		t.Fatalf("version 模式应成功退出，得到 %d", code)
	}
	if !strings.Contains(out.String(), "netcache") {
		t.Fatalf("version 输出应包含 netcache 标识")
	}
}

func TestRunFetchPrintsContentAndPath(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("page body"))
	}))
	defer upstream.Close()

	storage := filepath.Join(t.TempDir(), "storage")
	configPath := fetchModeConfig(t, storage, upstream.URL)

	out, errOut := captureOutput(t)
	code := run(cliOptions{configPath: configPath, fetchURL: upstream.URL + "/a"})
	if code != 0 {
		t.Fatalf("抓取应成功，得到 %d (stderr=%s)", code, errOut.String())
	}
	if got := out.String(); got != "page body" {
		t.Fatalf("unexpected output %q", got)
	}

	out, _ = captureOutput(t)
	code = run(cliOptions{configPath: configPath, fetchURL: upstream.URL + "/a", pathOnly: true})
	if code != 0 {
		t.Fatalf("path 模式应成功，得到 %d", code)
	}
	path := strings.TrimSpace(out.String())
	raw, err := os.ReadFile(path)
	if err != nil || string(raw) != "page body" {
		t.Fatalf("cache file %s: %q %v", path, raw, err)
	}
	if filepath.Dir(path) != filepath.Join(storage, "soupcache") {
		t.Fatalf("页面缓存应位于 soupcache 目录，得到 %s", path)
	}
}

func TestRunFetchReportsUpstreamError(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer upstream.Close()

	configPath := fetchModeConfig(t, filepath.Join(t.TempDir(), "storage"), upstream.URL)
	_, errOut := captureOutput(t)
	if code := run(cliOptions{configPath: configPath, fetchURL: upstream.URL + "/missing"}); code == 0 {
		t.Fatalf("上游 404 应返回非零退出码")
	}
	if !strings.Contains(errOut.String(), "404") {
		t.Fatalf("stderr 应包含状态码，得到 %q", errOut.String())
	}
}
