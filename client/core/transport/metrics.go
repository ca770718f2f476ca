package transport

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// 请求与连接结果标签
const (
	outcomeOK           = "ok"
	outcomeTimeout      = "timeout"
	outcomeTransport    = "transport_error"
	outcomeNotConnected = "not_connected"
)

// sessionMetrics 会话指标
type sessionMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
	connects *prometheus.CounterVec
}

// newSessionMetrics 创建会话指标，reg 为 nil 时不注册
//
// 同一注册表上创建多个会话时复用已注册的采集器。
func newSessionMetrics(reg prometheus.Registerer) *sessionMetrics {
	m := &sessionMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chainmeta",
				Subsystem: "transport",
				Name:      "requests_total",
				Help:      "Total number of node requests by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "chainmeta",
				Subsystem: "transport",
				Name:      "request_duration_seconds",
				Help:      "Node request round-trip duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),
		connects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "chainmeta",
				Subsystem: "transport",
				Name:      "connects_total",
				Help:      "Total number of connection attempts by outcome",
			},
			[]string{"outcome"},
		),
	}

	if reg == nil {
		return m
	}

	m.requests = register(reg, m.requests).(*prometheus.CounterVec)
	m.duration = register(reg, m.duration).(prometheus.Histogram)
	m.connects = register(reg, m.connects).(*prometheus.CounterVec)
	return m
}

func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		// 描述冲突时退回未注册的采集器
		return c
	}
	return c
}

func (m *sessionMetrics) observeRequest(outcome string, elapsed time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	if outcome != outcomeNotConnected {
		m.duration.Observe(elapsed.Seconds())
	}
}

func (m *sessionMetrics) observeConnect(outcome string) {
	m.connects.WithLabelValues(outcome).Inc()
}
