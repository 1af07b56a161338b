package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metric names share this namespace; the subsystem names the component.
const namespace = "wildalert"

// registerAll registers cs in order. On failure the ones already registered
// are removed again so a retry on the same registry starts clean.
func registerAll(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	for i, c := range cs {
		if err := reg.Register(c); err != nil {
			for _, done := range cs[:i] {
				reg.Unregister(done)
			}
			return err
		}
	}
	return nil
}
