package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 scheduler/worker 注册与暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		CheckDuration, ReceiveDuration, JobTotal,
		QueueDepth, SweepDuration, SweepEnqueued,
		EventsEmittedTotal, JobsReclaimedTotal, WorkerBusy,
	)
}

// CheckDuration Agent check 执行耗时（秒）
var CheckDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "huginn_check_duration_seconds",
		Help:    "Agent check 执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"agent_type"},
)

// ReceiveDuration Agent receive 执行耗时（秒）
var ReceiveDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "huginn_receive_duration_seconds",
		Help:    "Agent receive 执行耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"agent_type"},
)

// JobTotal 队列 Job 终态计数（按 kind 与结果）
var JobTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "huginn_job_total",
		Help: "队列 Job 终态计数",
	},
	[]string{"kind", "status"}, // status: completed | retried | failed
)

// QueueDepth 各队列当前待执行 Job 数
var QueueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "huginn_queue_depth",
		Help: "各队列当前待执行 Job 数",
	},
	[]string{"queue"},
)

// SweepDuration 单次传播扫描耗时（秒）
var SweepDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "huginn_propagation_sweep_duration_seconds",
		Help:    "单次传播扫描耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
)

// SweepEnqueued 传播扫描入队的 receive Job 数
var SweepEnqueued = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "huginn_propagation_receive_jobs_total",
		Help: "传播扫描入队的 receive Job 总数",
	},
)

// EventsEmittedTotal Agent 产生的 Event 总数
var EventsEmittedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "huginn_events_emitted_total",
		Help: "Agent 产生的 Event 总数",
	},
	[]string{"agent_type"},
)

// JobsReclaimedTotal 因锁过期被回收的 Job 总数
var JobsReclaimedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "huginn_jobs_reclaimed_total",
		Help: "因锁过期被回收的 Job 总数",
	},
)

// WorkerBusy 当前正在执行的 Job 数（每 Worker）
var WorkerBusy = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "huginn_worker_busy",
		Help: "当前正在执行的 Job 数",
	},
	[]string{"worker_id"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 HTTP handler 复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
