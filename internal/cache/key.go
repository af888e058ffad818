package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashKey 把请求参数拼接后取 SHA-256，输出小写十六进制作为文件名。
// 同一组参数在任何进程中都得到同一个 key。
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func validKey(key string) bool {
	if key == "" || len(key) > 128 {
		return false
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
