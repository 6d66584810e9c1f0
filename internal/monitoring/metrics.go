package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestSize     *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// 收件槽指标
	SinksCreated prometheus.Counter
	SinksDeleted prometheus.Counter
	SinksActive  prometheus.Gauge

	// 摄入指标
	EmailsIngested  *prometheus.CounterVec
	EmailsDeleted   prometheus.Counter
	IngestRejected  *prometheus.CounterVec
	AttachmentSize  prometheus.Histogram
	AttachmentBlobs prometheus.Gauge
	IngestDuration  *prometheus.HistogramVec

	// 系统指标
	SystemUptime        prometheus.Gauge
	DatabaseConnections prometheus.Gauge
	RedisConnections    prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter

	// 限流指标
	RateLimitBlocks *prometheus.CounterVec
}

// NewMetrics 创建监控指标
func NewMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailsink_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emailsink_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		HTTPRequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emailsink_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		HTTPResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emailsink_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "endpoint"},
		),

		// 收件槽指标
		SinksCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "emailsink_sinks_created_total",
				Help: "Total number of sinks created",
			},
		),

		SinksDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "emailsink_sinks_deleted_total",
				Help: "Total number of sinks deleted",
			},
		),

		SinksActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailsink_sinks_active",
				Help: "Number of active sinks",
			},
		),

		// 摄入指标
		EmailsIngested: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailsink_emails_ingested_total",
				Help: "Total number of emails ingested",
			},
			[]string{"channel"},
		),

		EmailsDeleted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "emailsink_emails_deleted_total",
				Help: "Total number of emails deleted",
			},
		),

		IngestRejected: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailsink_ingest_rejected_total",
				Help: "Total number of rejected ingestion requests",
			},
			[]string{"reason"},
		),

		AttachmentSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "emailsink_attachment_size_bytes",
				Help:    "Attachment size in bytes",
				Buckets: prometheus.ExponentialBuckets(1024, 2, 20),
			},
		),

		AttachmentBlobs: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailsink_attachment_blobs",
				Help: "Number of stored attachment blobs after deduplication",
			},
		),

		IngestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emailsink_ingest_duration_seconds",
				Help:    "Email ingestion duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"channel"},
		),

		// 系统指标
		SystemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailsink_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		DatabaseConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailsink_database_connections",
				Help: "Number of database connections",
			},
		),

		RedisConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "emailsink_redis_connections",
				Help: "Number of Redis connections",
			},
		),

		// 错误指标
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailsink_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "emailsink_panics_total",
				Help: "Total number of panics",
			},
		),

		// 限流指标
		RateLimitBlocks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emailsink_rate_limit_blocks_total",
				Help: "Total number of rate limit blocks",
			},
			[]string{"type", "key"},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration, requestSize, responseSize int64) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, endpoint).Observe(float64(requestSize))
	m.HTTPResponseSize.WithLabelValues(method, endpoint).Observe(float64(responseSize))
}

// RecordSinkCreated 记录收件槽创建
func (m *Metrics) RecordSinkCreated() {
	m.SinksCreated.Inc()
}

// RecordSinkDeleted 记录收件槽删除
func (m *Metrics) RecordSinkDeleted() {
	m.SinksDeleted.Inc()
}

// RecordEmailIngested 记录邮件摄入（按渠道）
func (m *Metrics) RecordEmailIngested(channel string) {
	m.EmailsIngested.WithLabelValues(channel).Inc()
}

// RecordEmailDeleted 记录邮件删除
func (m *Metrics) RecordEmailDeleted() {
	m.EmailsDeleted.Inc()
}

// RecordIngestRejected 记录摄入拒绝
func (m *Metrics) RecordIngestRejected(reason string) {
	m.IngestRejected.WithLabelValues(reason).Inc()
}

// RecordAttachmentSize 记录附件大小
func (m *Metrics) RecordAttachmentSize(size int64) {
	m.AttachmentSize.Observe(float64(size))
}

// RecordIngestDuration 记录摄入耗时
func (m *Metrics) RecordIngestDuration(channel string, duration time.Duration) {
	m.IngestDuration.WithLabelValues(channel).Observe(duration.Seconds())
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// RecordRateLimitBlock 记录限流阻止
func (m *Metrics) RecordRateLimitBlock(limitType, key string) {
	m.RateLimitBlocks.WithLabelValues(limitType, key).Inc()
}

// UpdateSinksActive 更新活跃收件槽数
func (m *Metrics) UpdateSinksActive(count int) {
	m.SinksActive.Set(float64(count))
}

// UpdateAttachmentBlobs 更新附件去重块数
func (m *Metrics) UpdateAttachmentBlobs(count int64) {
	m.AttachmentBlobs.Set(float64(count))
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// UpdateDatabaseConnections 更新数据库连接数
func (m *Metrics) UpdateDatabaseConnections(count int) {
	m.DatabaseConnections.Set(float64(count))
}

// UpdateRedisConnections 更新 Redis 连接数
func (m *Metrics) UpdateRedisConnections(count int) {
	m.RedisConnections.Set(float64(count))
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}
