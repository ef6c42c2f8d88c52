// Package health probes each external dependency on a schedule and
// keeps a current fitness snapshot. The retry engine consults it before
// spending an attempt; the system health endpoint reports it.
package health

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"objection-engine/internal/common/config"
	"objection-engine/internal/common/logger"
	"objection-engine/internal/common/metrics"
)

// State is a dependency's current fitness.
type State string

const (
	StateHealthy   State = "healthy"
	StateDegraded  State = "degraded"
	StateUnhealthy State = "unhealthy"
	StateUnknown   State = "unknown"
)

func (s State) gauge() float64 {
	switch s {
	case StateHealthy:
		return 2
	case StateDegraded:
		return 1
	default:
		return 0
	}
}

// Probe is one lightweight liveness call against a dependency.
type Probe interface {
	Healthy(ctx context.Context) error
}

// ProbeFunc adapts a bare function to a Probe.
type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Healthy(ctx context.Context) error { return f(ctx) }

// Status is the last observed state of a component.
type Status struct {
	Component        string        `json:"component"`
	State            State         `json:"state"`
	Latency          time.Duration `json:"latencyMs"`
	ConsecutiveFails int           `json:"consecutiveFails"`
	LastError        string        `json:"lastError,omitempty"`
	CheckedAt        time.Time     `json:"checkedAt"`
}

// Mirror persists the snapshot outside the process so other instances
// and operator tooling can read it.
type Mirror interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type Monitor struct {
	cfg    config.HealthConfig
	mirror Mirror
	logger logger.Logger
	cron   *cron.Cron

	mu       sync.RWMutex
	probes   map[string]Probe
	order    []string
	statuses map[string]Status
}

func NewMonitor(cfg config.HealthConfig, mirror Mirror, log logger.Logger) *Monitor {
	return &Monitor{
		cfg:      cfg,
		mirror:   mirror,
		logger:   log.WithFields(map[string]interface{}{"component": "health-monitor"}),
		cron:     cron.New(),
		probes:   make(map[string]Probe),
		statuses: make(map[string]Status),
	}
}

// Register adds a component probe. Components start as unknown and are
// allowed traffic until the first probe says otherwise.
func (m *Monitor) Register(component string, probe Probe) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.probes[component]; !exists {
		m.order = append(m.order, component)
	}
	m.probes[component] = probe
	m.statuses[component] = Status{Component: component, State: StateUnknown}
}

// Start probes everything once, then on the configured interval.
func (m *Monitor) Start(ctx context.Context) error {
	m.ProbeAll(ctx)
	_, err := m.cron.AddFunc("@every "+m.cfg.ProbeInterval.String(), func() {
		m.ProbeAll(ctx)
	})
	if err != nil {
		return err
	}
	m.cron.Start()
	m.logger.Info("health monitor started", map[string]interface{}{
		"interval":   m.cfg.ProbeInterval.String(),
		"components": len(m.probes),
	})
	return nil
}

func (m *Monitor) Stop() {
	<-m.cron.Stop().Done()
}

// ProbeAll runs every registered probe once.
func (m *Monitor) ProbeAll(ctx context.Context) {
	m.mu.RLock()
	components := append([]string(nil), m.order...)
	m.mu.RUnlock()

	for _, component := range components {
		m.probeOne(ctx, component)
	}
}

func (m *Monitor) probeOne(ctx context.Context, component string) {
	m.mu.RLock()
	probe := m.probes[component]
	prev := m.statuses[component]
	m.mu.RUnlock()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	start := time.Now()
	err := probe.Healthy(probeCtx)
	latency := time.Since(start)
	cancel()

	next := Status{
		Component: component,
		Latency:   latency,
		CheckedAt: time.Now().UTC(),
	}

	switch {
	case err != nil:
		next.ConsecutiveFails = prev.ConsecutiveFails + 1
		next.LastError = err.Error()
		if next.ConsecutiveFails >= m.cfg.FailureThreshold {
			next.State = StateUnhealthy
		} else {
			next.State = StateDegraded
		}
	case latency > m.cfg.DegradedLatency:
		next.State = StateDegraded
	default:
		next.State = StateHealthy
	}

	m.mu.Lock()
	m.statuses[component] = next
	m.mu.Unlock()

	metrics.IntegrationHealth.WithLabelValues(component).Set(next.State.gauge())

	if next.State != prev.State {
		m.logger.Warn("component health changed", map[string]interface{}{
			"component": component,
			"from":      string(prev.State),
			"to":        string(next.State),
			"latencyMs": latency.Milliseconds(),
			"error":     next.LastError,
		})
	}

	m.mirrorStatus(ctx, next)
}

func (m *Monitor) mirrorStatus(ctx context.Context, status Status) {
	if m.mirror == nil {
		return
	}
	payload, err := json.Marshal(status)
	if err != nil {
		return
	}
	if err := m.mirror.Set(ctx, "health:"+status.Component, payload, 2*m.cfg.ProbeInterval); err != nil {
		m.logger.WithError(err).Warn("failed to mirror health status", map[string]interface{}{
			"component": status.Component,
		})
	}
}

// Allow reports whether a component should receive traffic. Unknown
// components are allowed; only a confirmed-unhealthy one is blocked.
func (m *Monitor) Allow(component string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[component]
	if !ok {
		return true
	}
	return status.State != StateUnhealthy
}

// StatusFor returns the last observed status of one component.
func (m *Monitor) StatusFor(component string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status, ok := m.statuses[component]
	return status, ok
}

// Snapshot returns every component status in registration order.
func (m *Monitor) Snapshot() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Status, 0, len(m.order))
	for _, component := range m.order {
		out = append(out, m.statuses[component])
	}
	return out
}
