package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// CacheFields 提供缓存名称与 key 字段，供缓存读写日志复用。
func CacheFields(action, cacheName, key string) logrus.Fields {
	return logrus.Fields{
		"action": action,
		"cache":  cacheName,
		"key":    key,
	}
}

// RequestFields 提供 url/命中状态字段，供网关与 SOAP 请求日志复用。
func RequestFields(action, url string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"action":    action,
		"url":       url,
		"cache_hit": cacheHit,
	}
}
