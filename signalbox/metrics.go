package signalbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"nyiyui.ca/hato/interlocking/interlock"
)

type metrics struct {
	// commands counts operator commands. Labels: command, result (ok, pending, error)
	commands *prometheus.CounterVec
	// events counts machine events. Labels: type
	events *prometheus.CounterVec
	// search is how long RequestRoutesFor takes.
	search prometheus.Histogram
}

func newMetrics(reg *prometheus.Registry, m *interlock.Machine) *metrics {
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "interlocking",
		Name:      "active_routes",
		Help:      "Routes currently locked",
	}, func() float64 {
		n := 0
		for _, r := range m.Routes() {
			if r.Active {
				n++
			}
		}
		return float64(n)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "interlocking",
		Name:      "pending_point_tasks",
		Help:      "Point commands not yet acknowledged",
	}, func() float64 {
		return float64(len(m.PendingTasks()))
	})
	return &metrics{
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interlocking",
			Name:      "commands_total",
			Help:      "Operator commands by result",
		}, []string{"command", "result"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "interlocking",
			Name:      "events_total",
			Help:      "Machine events by type",
		}, []string{"type"}),
		search: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "interlocking",
			Name:      "route_search_seconds",
			Help:      "Route search latency in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}
