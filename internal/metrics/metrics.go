package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "portalwatch"

// Metrics holds all application collectors
type Metrics struct {
	reg *prometheus.Registry

	payloadsReceived *prometheus.CounterVec
	payloadsDropped  *prometheus.CounterVec
	eventsDecoded    *prometheus.CounterVec
	upserts          prometheus.Counter
	agentsTracked    prometheus.Gauge

	viewBuilds        prometheus.Counter
	viewBuildDuration prometheus.Histogram
	nameSetChanges    prometheus.Counter
	tickEvents        *prometheus.CounterVec
	tickAgents        prometheus.Gauge

	viewClients prometheus.Gauge

	prefWrites   *prometheus.CounterVec
	prefFailures *prometheus.CounterVec

	phaseTransitions *prometheus.CounterVec
	sessionPhase     *prometheus.GaugeVec

	driverConnected prometheus.Gauge
	driverCommands  *prometheus.CounterVec
	framesDropped   prometheus.Counter
}

var (
	instance *Metrics
	once     sync.Once
)

// Get returns the process-wide metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New creates a Metrics with its own registry
func New() *Metrics {
	m := &Metrics{reg: prometheus.NewRegistry()}

	m.payloadsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "payloads_received_total",
		Help:      "Raw push payloads received, by transport.",
	}, []string{"transport"})
	m.payloadsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "payloads_dropped_total",
		Help:      "Raw push payloads that could not be decoded, by transport.",
	}, []string{"transport"})
	m.eventsDecoded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "events_decoded_total",
		Help:      "Agent state changed events produced by the decoder, by transport.",
	}, []string{"transport"})
	m.upserts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "upserts_total",
		Help:      "Whole-record upserts applied to the agent store.",
	})
	m.agentsTracked = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "agents",
		Help:      "Distinct agents currently held in the store.",
	})
	m.viewBuilds = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "builds_total",
		Help:      "Derived view recomputations.",
	})
	m.viewBuildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "build_duration_seconds",
		Help:      "Time spent recomputing the derived view.",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})
	m.nameSetChanges = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "name_set_changes_total",
		Help:      "Times the distinct agent-name set was republished.",
	})
	m.tickEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "tick_events_total",
		Help:      "Events applied to the store and folded into a view tick, by transport.",
	}, []string{"transport"})
	m.tickAgents = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "view",
		Name:      "tick_agents_changed",
		Help:      "Distinct agents changed between the last two view ticks.",
	})
	m.viewClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "websocket",
		Name:      "view_clients",
		Help:      "Presentation clients subscribed to the view feed.",
	})
	m.prefWrites = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefs",
		Name:      "writes_total",
		Help:      "Preference files written, by file.",
	}, []string{"file"})
	m.prefFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "prefs",
		Name:      "write_failures_total",
		Help:      "Preference file writes that failed, by file.",
	}, []string{"file"})
	m.phaseTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "phase_transitions_total",
		Help:      "Session orchestrator phase transitions, by target phase.",
	}, []string{"phase"})
	m.sessionPhase = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "phase",
		Help:      "1 for the current session phase, 0 otherwise.",
	}, []string{"phase"})

	m.driverConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "driver",
		Name:      "connected",
		Help:      "1 while a browser driver is attached to the relay.",
	})
	m.driverCommands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "driver",
		Name:      "commands_total",
		Help:      "Commands sent to the browser driver, by command and outcome.",
	}, []string{"command", "outcome"})
	m.framesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "driver",
		Name:      "frames_dropped_total",
		Help:      "Websocket frames dropped because the frame buffer was full.",
	})

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.payloadsReceived,
		m.payloadsDropped,
		m.eventsDecoded,
		m.upserts,
		m.agentsTracked,
		m.viewBuilds,
		m.viewBuildDuration,
		m.nameSetChanges,
		m.tickEvents,
		m.tickAgents,
		m.viewClients,
		m.prefWrites,
		m.prefFailures,
		m.phaseTransitions,
		m.sessionPhase,
		m.driverConnected,
		m.driverCommands,
		m.framesDropped,
	)
	return m
}

// Registry exposes the underlying registry (tests gather from it)
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// RecordPayload counts a raw payload and how many events it produced
func (m *Metrics) RecordPayload(transport string, events int, dropped bool) {
	m.payloadsReceived.WithLabelValues(transport).Inc()
	if dropped {
		m.payloadsDropped.WithLabelValues(transport).Inc()
		return
	}
	m.eventsDecoded.WithLabelValues(transport).Add(float64(events))
}

// RecordUpsert counts a store upsert and the resulting store size
func (m *Metrics) RecordUpsert(agents int) {
	m.upserts.Inc()
	m.agentsTracked.Set(float64(agents))
}

// RecordViewBuild records one derived view recomputation
func (m *Metrics) RecordViewBuild(duration time.Duration, namesChanged bool) {
	m.viewBuilds.Inc()
	m.viewBuildDuration.Observe(duration.Seconds())
	if namesChanged {
		m.nameSetChanges.Inc()
	}
}

// RecordTickChanges records the events drained for one view tick
func (m *Metrics) RecordTickChanges(agents int, byTransport map[string]int) {
	m.tickAgents.Set(float64(agents))
	for transport, n := range byTransport {
		m.tickEvents.WithLabelValues(transport).Add(float64(n))
	}
}

// SetViewClients sets the number of connected presentation clients
func (m *Metrics) SetViewClients(n int) {
	m.viewClients.Set(float64(n))
}

// RecordPrefWrite records a preference file write attempt
func (m *Metrics) RecordPrefWrite(file string, err error) {
	if err != nil {
		m.prefFailures.WithLabelValues(file).Inc()
		return
	}
	m.prefWrites.WithLabelValues(file).Inc()
}

// RecordPhase records a session phase transition
func (m *Metrics) RecordPhase(from, to string) {
	m.phaseTransitions.WithLabelValues(to).Inc()
	if from != "" {
		m.sessionPhase.WithLabelValues(from).Set(0)
	}
	m.sessionPhase.WithLabelValues(to).Set(1)
}

// SetDriverConnected records whether a browser driver is attached
func (m *Metrics) SetDriverConnected(connected bool) {
	if connected {
		m.driverConnected.Set(1)
		return
	}
	m.driverConnected.Set(0)
}

// RecordDriverCommand counts one driver command by outcome ("ok", "failed"
// or "error")
func (m *Metrics) RecordDriverCommand(command, outcome string) {
	m.driverCommands.WithLabelValues(command, outcome).Inc()
}

// RecordFrameDropped counts a websocket frame lost to a full buffer
func (m *Metrics) RecordFrameDropped() {
	m.framesDropped.Inc()
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
