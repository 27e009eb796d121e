// Package health implements the Router Supervisor's background health
// monitor: periodic polling of the router's /health endpoint, a ring-
// buffered history, and threshold-based status-change notifications. It
// never restarts the router itself; that decision is left to the caller.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status is the monitor's current assessment of the router.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// Record is one poll result kept in the ring buffer.
type Record struct {
	At           time.Time
	Healthy      bool
	ResponseTime time.Duration
	Err          string
}

// Config tunes the monitor; zero values are replaced by the documented
// defaults in New.
type Config struct {
	Interval          time.Duration
	HistorySize       int
	FailureThreshold  int
	AutoRestartThresh int
}

// DefaultConfig matches the router sidecar's own defaults.
func DefaultConfig() Config {
	return Config{
		Interval:          30 * time.Second,
		HistorySize:       100,
		FailureThreshold:  3,
		AutoRestartThresh: 5,
	}
}

// Checker performs one health probe, returning the round-trip time and any
// error. A non-nil error means unhealthy.
type Checker func(ctx context.Context) (time.Duration, error)

// StatusChange is published on the status stream whenever Status flips.
type StatusChange struct {
	From, To Status
	At       time.Time
}

// Stats is a point-in-time summary, matching what a dashboard would poll.
type Stats struct {
	Total               int
	Healthy             int
	Unhealthy            int
	ConsecutiveFailures int
	AvailabilityPercent float64
	AverageResponseTime time.Duration
	Status              Status
}

// Monitor polls Checker on Interval and maintains Stats plus Prometheus
// gauges. It raises soft/hard warnings via logging hooks but never
// auto-restarts.
type Monitor struct {
	cfg     Config
	check   Checker
	onWarn  func(level string, stats Stats)

	mu      sync.Mutex
	history []Record
	status  Status

	statusMu sync.RWMutex
	subs     map[int64]chan StatusChange
	nextSub  int64

	gaugeHealthy    prometheus.Gauge
	gaugeConsecFail prometheus.Gauge
	gaugeAvailPct   prometheus.Gauge
}

// New constructs a Monitor. onWarn is invoked with "soft" when consecutive
// failures reach cfg.FailureThreshold and "hard" at cfg.AutoRestartThresh;
// it may be nil.
func New(cfg Config, check Checker, onWarn func(level string, stats Stats)) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = DefaultConfig().HistorySize
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.AutoRestartThresh <= 0 {
		cfg.AutoRestartThresh = DefaultConfig().AutoRestartThresh
	}
	if onWarn == nil {
		onWarn = func(string, Stats) {}
	}

	return &Monitor{
		cfg:    cfg,
		check:  check,
		onWarn: onWarn,
		status: StatusUnknown,
		subs:   make(map[int64]chan StatusChange),
		gaugeHealthy:    prometheus.NewGauge(prometheus.GaugeOpts{Name: "workbench_router_healthy", Help: "1 if the last router health probe succeeded"}),
		gaugeConsecFail: prometheus.NewGauge(prometheus.GaugeOpts{Name: "workbench_router_consecutive_failures", Help: "Consecutive failed router health probes"}),
		gaugeAvailPct:   prometheus.NewGauge(prometheus.GaugeOpts{Name: "workbench_router_availability_percent", Help: "Router availability percentage over the retained history window"}),
	}
}

// Collectors returns the Prometheus gauges for registration with a
// registry.
func (m *Monitor) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.gaugeHealthy, m.gaugeConsecFail, m.gaugeAvailPct}
}

// Subscribe registers for status-change notifications; the returned
// unsubscribe function must be called to release the channel.
func (m *Monitor) Subscribe() (<-chan StatusChange, func()) {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()

	m.nextSub++
	id := m.nextSub
	ch := make(chan StatusChange, 16)
	m.subs[id] = ch

	return ch, func() {
		m.statusMu.Lock()
		defer m.statusMu.Unlock()
		if c, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(c)
		}
	}
}

// Run polls until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

func (m *Monitor) poll(ctx context.Context) {
	rt, err := m.check(ctx)
	rec := Record{At: time.Now(), Healthy: err == nil, ResponseTime: rt}
	if err != nil {
		rec.Err = err.Error()
	}

	m.mu.Lock()
	m.history = append(m.history, rec)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}
	stats := m.computeStatsLocked()
	prevStatus := m.status
	m.status = stats.Status
	m.mu.Unlock()

	m.gaugeHealthy.Set(boolToFloat(rec.Healthy))
	m.gaugeConsecFail.Set(float64(stats.ConsecutiveFailures))
	m.gaugeAvailPct.Set(stats.AvailabilityPercent)

	if prevStatus != stats.Status {
		m.broadcast(StatusChange{From: prevStatus, To: stats.Status, At: rec.At})
	}

	if stats.ConsecutiveFailures == m.cfg.AutoRestartThresh {
		m.onWarn("hard", stats)
	} else if stats.ConsecutiveFailures == m.cfg.FailureThreshold {
		m.onWarn("soft", stats)
	}
}

func (m *Monitor) broadcast(change StatusChange) {
	m.statusMu.RLock()
	defer m.statusMu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// Stats returns the current summary.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.computeStatsLocked()
}

func (m *Monitor) computeStatsLocked() Stats {
	stats := Stats{Status: StatusUnknown}
	if len(m.history) == 0 {
		return stats
	}

	var totalRT time.Duration
	consecutive := 0
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Healthy {
			break
		}
		consecutive++
	}

	for _, r := range m.history {
		stats.Total++
		totalRT += r.ResponseTime
		if r.Healthy {
			stats.Healthy++
		} else {
			stats.Unhealthy++
		}
	}

	stats.ConsecutiveFailures = consecutive
	stats.AvailabilityPercent = 100 * float64(stats.Healthy) / float64(stats.Total)
	stats.AverageResponseTime = totalRT / time.Duration(stats.Total)

	last := m.history[len(m.history)-1]
	if last.Healthy {
		stats.Status = StatusHealthy
	} else {
		stats.Status = StatusUnhealthy
	}
	return stats
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
