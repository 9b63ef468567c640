package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// queued holds every collector declared in this package; each file adds
// its own from init.
var queued []prometheus.Collector

func register(cs ...prometheus.Collector) {
	queued = append(queued, cs...)
}

// Register adds the billing collectors to reg. Collectors that reg already
// knows about are skipped, so calling it twice is harmless.
func Register(reg prometheus.Registerer) error {
	for _, c := range queued {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if errors.As(err, &already) {
				continue
			}
			return err
		}
	}
	return nil
}

// MustRegister registers onto the default registry served by promhttp.
func MustRegister() {
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		panic(err)
	}
}
