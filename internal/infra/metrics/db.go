package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pgPoolConns, pgPoolMaxConns) }

var (
	pgPoolConns = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_pg_pool_conns",
			Help: "Postgres pool connections backing the subscription store, by state.",
		},
		[]string{"state"}, // total | idle | acquired
	)

	pgPoolMaxConns = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "billing_pg_pool_max_conns",
		Help: "Configured ceiling of the Postgres pool.",
	})
)

// SetPoolConns publishes one pgxpool.Stat sample.
func SetPoolConns(total, idle, acquired, maxConns int32) {
	pgPoolConns.WithLabelValues("total").Set(float64(total))
	pgPoolConns.WithLabelValues("idle").Set(float64(idle))
	pgPoolConns.WithLabelValues("acquired").Set(float64(acquired))
	pgPoolMaxConns.Set(float64(maxConns))
}
