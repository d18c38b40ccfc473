package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	TenantTicks  *prometheus.CounterVec // job, outcome: ok|error
	TicksSkipped *prometheus.CounterVec // job label; tenant tick still in flight

	VehiclesProcessed prometheus.Counter
	VehicleErrors     prometheus.Counter
	SchedulesCreated  prometheus.Counter
	HistoryFrames     prometheus.Counter
	BreaksFlagged     prometheus.Counter

	RemindersProcessed prometheus.Counter
	RemindersCompleted prometheus.Counter
	ReminderErrors     prometheus.Counter

	Notifications *prometheus.CounterVec // kind, outcome: sent|error
	NATSConnected prometheus.Gauge

	TickDuration *prometheus.HistogramVec // job

	TickInterval prometheus.Gauge // seconds
}

func NewCollector(tickInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		TenantTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_tenant_ticks_total",
			Help: "Tenant tick runs by job and outcome.",
		}, []string{"job", "outcome"}),
		TicksSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_tenant_ticks_skipped_total",
			Help: "Tenant ticks skipped because the previous run was still in flight.",
		}, []string{"job"}),
		VehiclesProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_vehicles_processed_total",
			Help: "Live vehicles processed by the reconciler.",
		}),
		VehicleErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_vehicle_errors_total",
			Help: "Per-vehicle processing errors, contained to the vehicle.",
		}),
		SchedulesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_schedules_created_total",
			Help: "Bus schedule entries created.",
		}),
		HistoryFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_history_frames_total",
			Help: "Movement history frames appended.",
		}),
		BreaksFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_breaks_flagged_total",
			Help: "Vehicles flagged as on break.",
		}),
		RemindersProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_reminders_processed_total",
			Help: "Reminder polls completed.",
		}),
		RemindersCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_reminders_completed_total",
			Help: "Reminders reaching their terminal state.",
		}),
		ReminderErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_reminder_errors_total",
			Help: "Per-reminder poll failures, retried next tick.",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracker_notifications_total",
			Help: "Notification dispatches by kind and outcome.",
		}, []string{"kind", "outcome"}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		TickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tracker_tick_duration_seconds",
			Help:    "Duration of one tenant tick.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}, []string{"job"}),
		TickInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_tick_interval_seconds",
			Help: "Configured tick interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.TenantTicks, c.TicksSkipped,
		c.VehiclesProcessed, c.VehicleErrors, c.SchedulesCreated,
		c.HistoryFrames, c.BreaksFlagged,
		c.RemindersProcessed, c.RemindersCompleted, c.ReminderErrors,
		c.Notifications, c.NATSConnected,
		c.TickDuration, c.TickInterval,
	)

	c.TickInterval.Set(tickInterval.Seconds())

	return c
}

// NotifySentInc implements notify.Metrics.
func (c *Collector) NotifySentInc(kind string) {
	c.Notifications.WithLabelValues(kind, "sent").Inc()
}

// NotifyErrInc implements notify.Metrics.
func (c *Collector) NotifyErrInc(kind string) {
	c.Notifications.WithLabelValues(kind, "error").Inc()
}

// NATSSetConnected implements notify.Metrics.
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
