// Package server Prometheus 指标导出
package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 包含所有 API Server 指标
//
// 同时实现 notify.Observer、callback.Observer、workitem.Observer。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// WebSocket 指标
	WSConnectionsActive prometheus.Gauge
	WSMessagesTotal     *prometheus.CounterVec

	// 回调指标
	CallbacksTotal         *prometheus.CounterVec
	CallbackFailuresTotal  *prometheus.CounterVec
	CredentialRefreshTotal prometheus.Counter

	// 作业指标
	WorkItemsTotal *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics 创建指标实例（注册到默认 registry）
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegistry(namespace, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry 注册到指定 registry（测试用独立 registry，避免重复注册）
func NewMetricsWithRegistry(namespace string, reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		WSConnectionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "websocket_connections_active",
				Help:      "Active WebSocket connections",
			},
		),
		WSMessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "websocket_messages_total",
				Help:      "Total WebSocket messages",
			},
			[]string{"direction", "type"},
		),
		CallbacksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callbacks_total",
				Help:      "Completion callbacks by outcome",
			},
			[]string{"outcome"},
		),
		CallbackFailuresTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "callback_step_failures_total",
				Help:      "Callback processing step failures by step and error kind",
			},
			[]string{"step", "kind"},
		),
		CredentialRefreshTotal: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credential_refresh_total",
				Help:      "Bearer credential refreshes",
			},
		),
		WorkItemsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workitems_total",
				Help:      "Work item submissions by outcome",
			},
			[]string{"outcome"},
		),
		gatherer: gatherer,
	}
}

// MetricsMiddleware 创建 HTTP 指标中间件
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		m.HTTPRequestsInFlight.Inc()
		defer m.HTTPRequestsInFlight.Dec()

		// 包装 ResponseWriter 以捕获状态码
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()
		path := normalizePath(r.URL.Path)
		status := strconv.Itoa(wrapped.statusCode)

		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// knownPaths 指标路径白名单，其余路径归为 other，避免高基数
var knownPaths = []string{
	"/health",
	"/metrics",
	"/api/openapi.yaml",
	"/api/appbundles",
	"/api/aps/designautomation/engines",
	"/api/aps/designautomation/appbundles",
	"/api/aps/designautomation/activities",
	"/api/aps/designautomation/workitems",
	"/api/aps/callback/designautomation",
}

// normalizePath 规范化路径
func normalizePath(path string) string {
	p := strings.TrimRight(path, "/")
	for _, k := range knownPaths {
		if p == k {
			return k
		}
	}
	return "other"
}

// Handler 返回 Prometheus HTTP Handler
func (m *Metrics) Handler() http.Handler {
	if m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordWSMessage 记录 WebSocket 消息
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	m.WSMessagesTotal.WithLabelValues(direction, msgType).Inc()
}

// WSConnectionOpened WebSocket 连接打开
func (m *Metrics) WSConnectionOpened() {
	m.WSConnectionsActive.Inc()
}

// WSConnectionClosed WebSocket 连接关闭
func (m *Metrics) WSConnectionClosed() {
	m.WSConnectionsActive.Dec()
}

// RecordCallback 记录回调结果（accepted/duplicate/rejected）
func (m *Metrics) RecordCallback(outcome string) {
	m.CallbacksTotal.WithLabelValues(outcome).Inc()
}

// RecordCallbackFailure 记录回调步骤失败
func (m *Metrics) RecordCallbackFailure(step, kind string) {
	m.CallbackFailuresTotal.WithLabelValues(step, kind).Inc()
}

// RecordCredentialRefresh 记录凭据刷新
func (m *Metrics) RecordCredentialRefresh() {
	m.CredentialRefreshTotal.Inc()
}

// RecordWorkItem 记录作业提交结果
func (m *Metrics) RecordWorkItem(outcome string) {
	m.WorkItemsTotal.WithLabelValues(outcome).Inc()
}
