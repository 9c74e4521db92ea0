package ratelimit

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	grantsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cex_sdk_ratelimit_grants_total",
			Help: "Number of rate limit acquisitions granted, per category",
		},
		[]string{"category"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cex_sdk_ratelimit_rejections_total",
			Help: "Number of rate limit acquisitions rejected, per category",
		},
		[]string{"category"},
	)

	waitSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cex_sdk_ratelimit_wait_seconds",
			Help:    "Time spent blocked waiting for rate limit budget",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		},
		[]string{"category"},
	)
)

func init() {
	prometheus.MustRegister(grantsTotal, rejectionsTotal, waitSeconds)
}
