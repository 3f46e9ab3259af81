package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector 指标收集器
type MetricsCollector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 修复指标
	repairTotal         *prometheus.CounterVec
	repairDuration      *prometheus.HistogramVec
	repairDefectTotal   *prometheus.CounterVec
	repairInconsistency *prometheus.CounterVec
	lockContentionTotal *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec
	gatewayErrorsTotal  *prometheus.CounterVec

	// 通知指标
	noticeTotal      *prometheus.CounterVec
	noticeQueueDepth prometheus.Gauge

	// 对账指标
	syncOrdersTotal *prometheus.CounterVec
}

// NewMetricsCollector 创建指标收集器，reg 为 nil 时使用默认注册表
func NewMetricsCollector(reg prometheus.Registerer) *MetricsCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &MetricsCollector{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		repairTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pay_repair_total",
				Help: "Total number of order repairs by outcome",
			},
			[]string{"channel", "action", "result"},
		),

		repairDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pay_repair_duration_seconds",
				Help:    "Order repair duration in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"channel", "action"},
		),

		repairDefectTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pay_repair_defect_total",
				Help: "Configuration or programming defects hit during repair",
			},
			[]string{"kind"},
		),

		repairInconsistency: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pay_repair_inconsistency_total",
				Help: "Gateway closed but local state not persisted; needs manual intervention",
			},
			[]string{"channel"},
		),

		lockContentionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pay_repair_lock_contention_total",
				Help: "Repairs skipped because another repair holds the order lock",
			},
			[]string{"channel"},
		),

		gatewayCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pay_gateway_call_duration_seconds",
				Help:    "Gateway API call duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel", "operation"},
		),

		gatewayErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pay_gateway_errors_total",
				Help: "Gateway API call errors",
			},
			[]string{"channel", "operation"},
		),

		noticeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pay_notice_total",
				Help: "Client notices by outcome",
			},
			[]string{"result"},
		),

		noticeQueueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pay_notice_queue_depth",
				Help: "Pending client notices in the in-process queue",
			},
		),

		syncOrdersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pay_sync_orders_total",
				Help: "Orders examined by the reconciliation sweep by decision",
			},
			[]string{"decision"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *MetricsCollector) RecordHTTPRequest(method, endpoint string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, endpoint, getStatusCategory(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordRepair 记录修复结果，result: success / skipped / failed
func (m *MetricsCollector) RecordRepair(channel, action, result string, duration time.Duration) {
	m.repairTotal.WithLabelValues(channel, action, result).Inc()
	m.repairDuration.WithLabelValues(channel, action).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordLockContention(channel string) {
	m.lockContentionTotal.WithLabelValues(channel).Inc()
}

// RecordDefect 记录配置缺陷，kind: strategy / action
func (m *MetricsCollector) RecordDefect(kind string) {
	m.repairDefectTotal.WithLabelValues(kind).Inc()
}

func (m *MetricsCollector) RecordInconsistency(channel string) {
	m.repairInconsistency.WithLabelValues(channel).Inc()
}

// TrackGateway 跟踪网关调用耗时，返回的函数在调用结束时执行
func (m *MetricsCollector) TrackGateway(channel, operation string) func(err error) {
	start := time.Now()
	return func(err error) {
		m.gatewayCallDuration.WithLabelValues(channel, operation).Observe(time.Since(start).Seconds())
		if err != nil {
			m.gatewayErrorsTotal.WithLabelValues(channel, operation).Inc()
		}
	}
}

// RecordNotice 记录通知结果，result: delivered / retry / dropped / enqueue_failed
func (m *MetricsCollector) RecordNotice(result string) {
	m.noticeTotal.WithLabelValues(result).Inc()
}

func (m *MetricsCollector) SetNoticeQueueDepth(depth int) {
	m.noticeQueueDepth.Set(float64(depth))
}

func (m *MetricsCollector) RecordSyncDecision(decision string) {
	m.syncOrdersTotal.WithLabelValues(decision).Inc()
}

// getStatusCategory 获取状态分类
func getStatusCategory(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

var (
	globalCollector *MetricsCollector
	globalOnce      sync.Once
)

// GetGlobalCollector 获取全局指标收集器
func GetGlobalCollector() *MetricsCollector {
	globalOnce.Do(func() {
		globalCollector = NewMetricsCollector(prometheus.DefaultRegisterer)
	})
	return globalCollector
}
