package metrics

import (
	"runtime"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(serviceInfo) }

var serviceInfo = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "billing_service_info",
		Help: "Always 1; labels identify the running vendor-billing build.",
	},
	[]string{"version", "commit", "go_version"},
)

// SetBuildInfo is called once from main with the -ldflags values.
func SetBuildInfo(version, commit string) {
	serviceInfo.Reset()
	serviceInfo.WithLabelValues(version, commit, runtime.Version()).Set(1)
}
