// Package redirects 持久化"原始 URL → 永久重定向目标"的映射，避免重复走
// 代价高昂的重定向链。映射从不过期，只在启动时加载、关闭时落盘。
package redirects

import (
	"bytes"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/netcache/netcache/internal/logging"
	"github.com/netcache/netcache/internal/metrics"
)

// MaxHops 限制链式解析的跳数，防止 A→B→A 之类的环导致死循环。
const MaxHops = 32

// Table 是并发安全的重定向映射。
type Table struct {
	path   string
	logger logrus.FieldLogger

	mu          sync.RWMutex
	entries     map[string]string
	enabled     bool
	everEnabled bool
}

// New 创建一个空表，不读取磁盘。
func New(path string, enabled bool, logger logrus.FieldLogger) *Table {
	return &Table{
		path:        path,
		logger:      logging.OrDiscard(logger),
		entries:     make(map[string]string),
		enabled:     enabled,
		everEnabled: enabled,
	}
}

// Load 从 path 读取映射。文件不存在时静默返回空表；
// 内容损坏时删除文件、记录告警并返回空表，永远不会让启动失败。
func Load(path string, enabled bool, logger logrus.FieldLogger) *Table {
	t := New(path, enabled, logger)

	raw, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			t.logger.WithError(err).WithFields(logrus.Fields{
				"action": "redirect_load",
				"path":   path,
			}).Warn("redirect table unreadable, starting empty")
		}
		return t
	}

	entries, err := decode(raw)
	if err != nil {
		t.logger.WithError(err).WithFields(logrus.Fields{
			"action": "redirect_load",
			"path":   path,
		}).Warn("discarded corrupt redirect table")
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			t.logger.WithError(rmErr).WithField("action", "redirect_load").Warn("remove corrupt redirect table failed")
		}
		return t
	}

	t.entries = entries
	t.logger.WithFields(logrus.Fields{
		"action":  "redirect_load",
		"path":    path,
		"entries": len(entries),
	}).Info("loaded redirect table")
	return t
}

// Enabled 返回当前是否启用重定向缓存。
func (t *Table) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled
}

// SetEnabled 切换重定向缓存开关；只要曾经开启过，Flush 就会落盘。
func (t *Table) SetEnabled(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.enabled = enabled
	if enabled {
		t.everEnabled = true
	}
}

// Resolve 沿映射链解析到不再作为 key 出现的终点 URL。未启用时原样返回。
func (t *Table) Resolve(url string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.enabled {
		return url
	}

	current := url
	for hop := 0; hop < MaxHops; hop++ {
		next, ok := t.entries[current]
		if !ok || next == current {
			return current
		}
		current = next
	}
	t.logger.WithFields(logrus.Fields{
		"action":   "redirect_resolve",
		"url":      url,
		"stopped":  current,
		"max_hops": MaxHops,
	}).Warn("redirect chain exceeded hop limit, possible cycle")
	return current
}

// Record 仅在启用且状态码为 301 时写入映射，302 等临时重定向一律忽略。
// 返回是否真正写入。
func (t *Table) Record(from, to string, status int) bool {
	if status != http.StatusMovedPermanently || from == "" || to == "" || from == to {
		return false
	}

	t.mu.Lock()
	if !t.enabled {
		t.mu.Unlock()
		return false
	}
	if existing, ok := t.entries[from]; ok && existing == to {
		t.mu.Unlock()
		return false
	}
	t.entries[from] = to
	t.mu.Unlock()

	metrics.ObserveRedirectRecorded()
	t.logger.WithFields(logrus.Fields{
		"action": "redirect_record",
		"from":   from,
		"to":     to,
	}).Debug("detected new permanent redirect")
	return true
}

// Len 返回映射条目数。
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Snapshot 返回映射的副本，供诊断接口输出。
func (t *Table) Snapshot() map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]string, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Flush 在本进程生命周期内曾开启过重定向缓存时，把完整映射写回磁盘（临时文件 + rename）。
func (t *Table) Flush() error {
	t.mu.RLock()
	if !t.everEnabled || t.path == "" {
		t.mu.RUnlock()
		return nil
	}
	raw, err := encode(t.entries)
	count := len(t.entries)
	t.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode redirect table: %w", err)
	}

	if err := writeAtomic(t.path, raw); err != nil {
		return fmt.Errorf("write redirect table: %w", err)
	}
	t.logger.WithFields(logrus.Fields{
		"action":  "redirect_flush",
		"path":    t.path,
		"entries": count,
	}).Info("dumped redirect table to file")
	return nil
}

func encode(entries map[string]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decode(raw []byte) (map[string]string, error) {
	var entries map[string]string
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&entries); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = make(map[string]string)
	}
	return entries, nil
}

func writeAtomic(path string, raw []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".redirects-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, err = tmp.Write(raw)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
