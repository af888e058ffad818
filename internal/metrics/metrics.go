// Package metrics 汇总缓存、限流与重定向表的 prometheus 指标，由网关 /metrics 暴露。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 缓存查询结果标签。
const (
	ResultHit     = "hit"
	ResultStale   = "stale"
	ResultMiss    = "miss"
	ResultCorrupt = "corrupt"
)

var (
	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netcache_cache_lookups_total",
		Help: "Cache lookups partitioned by cache name and result (hit, stale, miss, corrupt)",
	}, []string{"cache", "result"})
	cacheWriteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netcache_cache_write_failures_total",
		Help: "Fresh responses that could not be written back to the cache directory",
	}, []string{"cache"})
	cacheNotCacheable = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "netcache_cache_not_cacheable_total",
		Help: "Fresh responses rejected by the cacheability check (e.g. non-200 status)",
	}, []string{"cache"})
	throttleWait = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "netcache_throttle_wait_seconds",
		Help:    "Time callers spent blocked by a throttle gate before sending",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
	})
	redirectsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "netcache_redirects_recorded_total",
		Help: "Permanent redirects added to the redirect table",
	})
)

// ObserveLookup 记录一次缓存查询结果。
func ObserveLookup(cache, result string) {
	cacheLookups.WithLabelValues(cache, result).Inc()
}

func ObserveWriteFailure(cache string) {
	cacheWriteFailures.WithLabelValues(cache).Inc()
}

func ObserveNotCacheable(cache string) {
	cacheNotCacheable.WithLabelValues(cache).Inc()
}

// ObserveThrottleWait 以秒为单位记录限流等待时长，未等待时也会计入 0 值桶。
func ObserveThrottleWait(seconds float64) {
	throttleWait.Observe(seconds)
}

func ObserveRedirectRecorded() {
	redirectsRecorded.Inc()
}

// Handler 返回默认 registry 的 exposition handler。
func Handler() http.Handler {
	return promhttp.Handler()
}
