package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors exports exchange metrics to prometheus.
type Collectors struct {
	Exchanges *prometheus.CounterVec
	Failures  *prometheus.CounterVec
	RTT       *prometheus.HistogramVec
	Bytes     *prometheus.CounterVec
}

// NewCollectors creates the collectors and registers them with reg. A nil
// reg uses the default registerer.
func NewCollectors(reg prometheus.Registerer) (*Collectors, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collectors{
		Exchanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labctl",
			Name:      "exchanges_total",
			Help:      "Command exchanges by device, command and outcome.",
		}, []string{"device", "command", "success"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labctl",
			Name:      "exchange_failures_total",
			Help:      "Failed exchanges by device and error kind.",
		}, []string{"device", "kind"}),
		RTT: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labctl",
			Name:      "exchange_rtt_seconds",
			Help:      "Round-trip time of successful exchanges.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2},
		}, []string{"device", "dialect"}),
		Bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labctl",
			Name:      "frame_bytes_total",
			Help:      "Frame bytes by device and direction.",
		}, []string{"device", "direction"}),
	}
	for _, col := range []prometheus.Collector{c.Exchanges, c.Failures, c.RTT, c.Bytes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Record updates the collectors from one exchange.
func (c *Collectors) Record(m Metric) {
	c.Exchanges.WithLabelValues(m.Device, m.Command, strconv.FormatBool(m.Success)).Inc()
	if m.Success {
		c.RTT.WithLabelValues(m.Device, m.Dialect).Observe(m.RTTMs / 1000)
	} else {
		kind := m.ErrorKind
		if kind == "" {
			kind = "unknown"
		}
		c.Failures.WithLabelValues(m.Device, kind).Inc()
	}
	if m.TxBytes > 0 {
		c.Bytes.WithLabelValues(m.Device, "tx").Add(float64(m.TxBytes))
	}
	if m.RxBytes > 0 {
		c.Bytes.WithLabelValues(m.Device, "rx").Add(float64(m.RxBytes))
	}
}

// Handler serves the registry in the prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
