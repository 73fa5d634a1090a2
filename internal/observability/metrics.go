package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SchedulerTicks counts every scheduler tick, labeled by outcome
	// (published, bus_unavailable).
	SchedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamsentry_scheduler_ticks_total",
		Help: "Total scheduler control-loop ticks by outcome.",
	}, []string{"outcome"})

	// TaskErrorCount tracks the current consecutive-error count per task.
	TaskErrorCount = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "steamsentry_task_error_count",
		Help: "Current consecutive error count for a task's control loop.",
	}, []string{"task_id"})

	TaskRecoveryAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamsentry_task_recovery_attempts_total",
		Help: "Recovery attempts made for a task after exceeding max errors.",
	}, []string{"task_id", "outcome"})

	// ProxyPoolGauge mirrors GetProxyStats for dashboarding.
	ProxyPoolGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "steamsentry_proxy_pool",
		Help: "Proxy pool composition.",
	}, []string{"state"}) // total, active, leasable, blocked, leased

	WorkerFetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamsentry_worker_fetch_outcomes_total",
		Help: "Fetch outcomes observed by parsing workers.",
	}, []string{"outcome"})

	ResultProcessorMatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamsentry_result_processor_matches_total",
		Help: "New found-item matches inserted by the result processor.",
	}, []string{"task_id"})

	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamsentry_notification_failures_total",
		Help: "Notification delivery failures.",
	}, []string{"reason"})

	BusPendingMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "steamsentry_bus_pending_messages",
		Help: "Messages buffered locally because the bus was unavailable.",
	})

	LeadershipTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "steamsentry_leadership_transitions_total",
		Help: "Scheduler leadership transitions by event.",
	}, []string{"event"})
)
