package cache

import (
	"context"
	"errors"
	"io"
	"time"
)

// Store 负责管理单个缓存目录的读写。磁盘布局遵循：
//
//	<dir>/<hex-key>    # 序列化后的正文
//
// 目录是扁平的，文件的 ModTime 即条目的写入时间。
type Store interface {
	// Stat 返回条目信息，不存在时返回 ErrNotFound。
	Stat(key string) (Entry, error)

	// Get 返回一个可流式读取的缓存条目。若不存在则返回 ErrNotFound。
	Get(key string) (*ReadResult, error)

	// Put 写入条目并产出新的 Entry 描述。实现需通过临时文件 + rename
	// 保证写入原子性，并在失败时清理临时文件。可选地根据 opts.ModTime 设置文件时间戳。
	Put(ctx context.Context, key string, body io.Reader, opts PutOptions) (*Entry, error)

	// Remove 删除条目，条目不存在不视为错误。
	Remove(key string) error

	// Path 返回条目对应的绝对文件路径，不检查文件是否存在。
	Path(key string) (string, error)
}

// PutOptions 控制写入过程中的可选属性。
type PutOptions struct {
	ModTime time.Time
}

// Entry 描述一个已存在的缓存文件。
type Entry struct {
	Key       string    `json:"key"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 Entry 与正文 Reader。
type ReadResult struct {
	Entry  Entry
	Reader io.ReadSeekCloser
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrInvalidKey 表示 key 不是合法的小写十六进制摘要。
	ErrInvalidKey = errors.New("invalid cache key")
)
