// Package metrics 定义同步服务的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal 对账运行次数（按来源、最终状态）
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnibus",
			Subsystem: "bulk",
			Name:      "runs_total",
			Help:      "Total number of bulk reconciliation runs by source and final state",
		},
		[]string{"source", "state"},
	)

	// RunDuration 对账运行耗时
	RunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "omnibus",
			Subsystem: "bulk",
			Name:      "run_duration_seconds",
			Help:      "Duration of bulk reconciliation runs in seconds",
			Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		},
		[]string{"source"},
	)

	// LinesTotal 按分类统计处理的行
	LinesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnibus",
			Subsystem: "bulk",
			Name:      "lines_total",
			Help:      "Total number of export lines processed by record kind",
		},
		[]string{"kind"},
	)

	// SkippedTotal 被跳过的行（按原因）
	SkippedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnibus",
			Subsystem: "bulk",
			Name:      "skipped_total",
			Help:      "Total number of export lines skipped by reason",
		},
		[]string{"reason"},
	)

	// ComplianceDispatchTotal 合规计算触发次数
	ComplianceDispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnibus",
			Subsystem: "compliance",
			Name:      "dispatch_total",
			Help:      "Total number of per-product compliance computations requested",
		},
		[]string{"status"},
	)

	// WebhooksTotal Webhook 接收统计
	WebhooksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnibus",
			Subsystem: "webhook",
			Name:      "received_total",
			Help:      "Total number of webhook deliveries by topic and outcome",
		},
		[]string{"topic", "outcome"},
	)

	// ShopifyRequestsTotal 对 Shopify 的出站请求
	ShopifyRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "omnibus",
			Subsystem: "shopify",
			Name:      "requests_total",
			Help:      "Total number of outbound Shopify requests",
		},
		[]string{"operation", "status_code"},
	)
)

// ==================== 辅助函数 ====================

// RecordRun 记录一次运行结束
func RecordRun(source, state string, seconds float64) {
	RunsTotal.WithLabelValues(source, state).Inc()
	RunDuration.WithLabelValues(source).Observe(seconds)
}

// RecordLine 记录一行处理
func RecordLine(kind string) {
	LinesTotal.WithLabelValues(kind).Inc()
}

// RecordSkip 记录跳过原因
func RecordSkip(reason string) {
	SkippedTotal.WithLabelValues(reason).Inc()
}

// RecordDispatch 记录合规计算触发结果
func RecordDispatch(ok bool) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	ComplianceDispatchTotal.WithLabelValues(status).Inc()
}

// RecordWebhook 记录 Webhook 处理结果
func RecordWebhook(topic, outcome string) {
	WebhooksTotal.WithLabelValues(topic, outcome).Inc()
}
