package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(packageCacheLookups) }

// Lookup kinds served by the Redis package catalog cache.
const (
	CachePackageByID    = "by_id"
	CacheActivePackages = "active_list"
)

var packageCacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "billing_package_cache_lookups_total",
		Help: "Package catalog cache lookups in Redis, by lookup kind and hit or miss.",
	},
	[]string{"lookup", "result"},
)

func ObservePackageCache(lookup string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	packageCacheLookups.WithLabelValues(norm(lookup), result).Inc()
}
