package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// 远程分类 API 调用
	CategoryAPIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "category_api_requests_total",
		Help: "Total number of calls to the remote category API.",
	}, []string{"op", "outcome"}) // outcome: "success" or "error"

	CategoryAPIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "category_api_request_duration_seconds",
		Help:    "Duration of calls to the remote category API in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	CategoryPageCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "category_page_cache_hits_total",
		Help: "Total number of category pages served from the local cache.",
	})

	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
