package redirects

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"
)

func TestResolveFollowsChain(t *testing.T) {
	table := New("", true, nil)
	table.Record("http://a.test/", "http://b.test/", http.StatusMovedPermanently)
	table.Record("http://b.test/", "http://c.test/", http.StatusMovedPermanently)

	if got := table.Resolve("http://a.test/"); got != "http://c.test/" {
		t.Fatalf("期望解析到 c，得到 %s", got)
	}
	resolved := table.Resolve("http://a.test/")
	if again := table.Resolve(resolved); again != resolved {
		t.Fatalf("解析终点应为幂等操作: %s != %s", again, resolved)
	}
	if got := table.Resolve("http://unknown.test/"); got != "http://unknown.test/" {
		t.Fatalf("未记录的 URL 应原样返回，得到 %s", got)
	}
}

func TestRecordIgnoresTemporaryRedirects(t *testing.T) {
	table := New("", true, nil)
	for _, status := range []int{http.StatusFound, http.StatusSeeOther, http.StatusTemporaryRedirect, http.StatusOK} {
		if table.Record("http://a.test/", "http://b.test/", status) {
			t.Fatalf("状态码 %d 不应被记录", status)
		}
	}
	if got := table.Resolve("http://a.test/"); got != "http://a.test/" {
		t.Fatalf("302 之后解析结果应不变，得到 %s", got)
	}
	if table.Len() != 0 {
		t.Fatalf("表应保持为空，得到 %d 条", table.Len())
	}
}

func TestDisabledTableIsPassThrough(t *testing.T) {
	table := New("", false, nil)
	if table.Record("http://a.test/", "http://b.test/", http.StatusMovedPermanently) {
		t.Fatalf("未启用时不应记录")
	}

	table.SetEnabled(true)
	table.Record("http://a.test/", "http://b.test/", http.StatusMovedPermanently)
	table.SetEnabled(false)
	if got := table.Resolve("http://a.test/"); got != "http://a.test/" {
		t.Fatalf("禁用后 Resolve 应原样返回，得到 %s", got)
	}
}

func TestResolveStopsOnCycle(t *testing.T) {
	table := New("", true, nil)
	table.Record("http://a.test/", "http://b.test/", http.StatusMovedPermanently)
	table.Record("http://b.test/", "http://a.test/", http.StatusMovedPermanently)

	got := table.Resolve("http://a.test/")
	if got != "http://a.test/" && got != "http://b.test/" {
		t.Fatalf("环路解析应停在环内节点，得到 %s", got)
	}
}

func TestFlushAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects.gob")
	table := New(path, true, nil)
	table.Record("http://a.test/", "http://b.test/", http.StatusMovedPermanently)
	if err := table.Flush(); err != nil {
		t.Fatalf("flush error: %v", err)
	}

	loaded := Load(path, true, nil)
	if loaded.Len() != 1 {
		t.Fatalf("期望加载 1 条记录，得到 %d", loaded.Len())
	}
	if got := loaded.Resolve("http://a.test/"); got != "http://b.test/" {
		t.Fatalf("加载后解析失败: %s", got)
	}
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	table := Load(filepath.Join(t.TempDir(), "absent.gob"), true, nil)
	if table.Len() != 0 {
		t.Fatalf("缺失文件应得到空表")
	}
}

func TestLoadCorruptFileDiscards(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects.gob")
	if err := os.WriteFile(path, []byte("\x00\x01truncated"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}

	table := Load(path, true, nil)
	if table.Len() != 0 {
		t.Fatalf("损坏文件应被丢弃")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("损坏文件应被删除, stat err=%v", err)
	}
}

func TestFlushSkippedWhenNeverEnabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "redirects.gob")
	table := New(path, false, nil)
	if err := table.Flush(); err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("从未启用时不应写文件")
	}

	table.SetEnabled(true)
	table.SetEnabled(false)
	if err := table.Flush(); err != nil {
		t.Fatalf("flush error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("曾启用过时应写文件: %v", err)
	}
}
