package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "webpuppet_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"date", "sha", "version"},
	)

	browserConnected = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webpuppet_browser_connected",
			Help: "Whether a browser extension is currently attached (0 or 1)",
		},
	)

	connectionEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webpuppet_connection_events_total",
			Help: "Browser connection lifecycle events",
		},
		[]string{"event"},
	)

	framesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webpuppet_frames_received_total",
			Help: "Well-formed frames received from the browser connection",
		},
	)

	framesDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "webpuppet_frames_dropped_total",
			Help: "Inbound frames dropped because they could not be parsed",
		},
	)

	commands = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webpuppet_commands_total",
			Help: "Dispatched browser commands by terminal outcome",
		},
		[]string{"command", "outcome"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webpuppet_command_duration_seconds",
			Help:    "Browser command duration from dispatch to terminal outcome",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, browserConnected, connectionEvents, framesReceived, framesDropped, commands, commandDuration)
}

// SetServerBuildInfo sets the build info metric for the server.
func SetServerBuildInfo(version, sha, date string) {
	buildInfo.WithLabelValues(date, sha, version).Set(1)
}

// SetBrowserConnected records whether a browser is attached.
func SetBrowserConnected(connected bool) {
	if connected {
		browserConnected.Set(1)
	} else {
		browserConnected.Set(0)
	}
}

// RecordConnectionEvent increments the counter for a lifecycle event
// (connected, disconnected, replaced).
func RecordConnectionEvent(event string) {
	connectionEvents.WithLabelValues(event).Inc()
}

// RecordFrame counts one well-formed inbound frame.
func RecordFrame() {
	framesReceived.Inc()
}

// RecordDroppedFrame counts one malformed inbound frame.
func RecordDroppedFrame() {
	framesDropped.Inc()
}

// RecordCommand increments the command counter with its terminal outcome
// (success, remote_error, timeout, connection_lost, not_connected, error).
func RecordCommand(command, outcome string) {
	commands.WithLabelValues(command, outcome).Inc()
}

// ObserveCommandDuration records the duration of a dispatched command.
func ObserveCommandDuration(command string, d time.Duration) {
	commandDuration.WithLabelValues(command).Observe(d.Seconds())
}
