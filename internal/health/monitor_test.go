package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"objection-engine/internal/common/config"
	"objection-engine/internal/common/logger"
)

func testHealthConfig() config.HealthConfig {
	return config.HealthConfig{
		ProbeInterval:    time.Minute,
		ProbeTimeout:     time.Second,
		DegradedLatency:  50 * time.Millisecond,
		FailureThreshold: 3,
	}
}

type scriptedProbe struct {
	errs  []error
	delay time.Duration
	calls int
}

func (p *scriptedProbe) Healthy(_ context.Context) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	var err error
	if p.calls < len(p.errs) {
		err = p.errs[p.calls]
	}
	p.calls++
	return err
}

func newTestMonitor() *Monitor {
	return NewMonitor(testHealthConfig(), nil, logger.NewNoOpLogger())
}

func TestProbeAllMarksHealthy(t *testing.T) {
	m := newTestMonitor()
	m.Register("crm", &scriptedProbe{})

	m.ProbeAll(context.Background())

	status, ok := m.StatusFor("crm")
	require.True(t, ok)
	assert.Equal(t, StateHealthy, status.State)
	assert.Equal(t, 0, status.ConsecutiveFails)
	assert.True(t, m.Allow("crm"))
}

func TestFailuresBelowThresholdAreDegraded(t *testing.T) {
	m := newTestMonitor()
	probe := &scriptedProbe{errs: []error{fmt.Errorf("503"), fmt.Errorf("503")}}
	m.Register("doc_render", probe)

	m.ProbeAll(context.Background())
	m.ProbeAll(context.Background())

	status, _ := m.StatusFor("doc_render")
	assert.Equal(t, StateDegraded, status.State)
	assert.Equal(t, 2, status.ConsecutiveFails)
	// Degraded still receives traffic.
	assert.True(t, m.Allow("doc_render"))
}

func TestConsecutiveFailuresTripUnhealthy(t *testing.T) {
	m := newTestMonitor()
	probe := &scriptedProbe{errs: []error{fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down")}}
	m.Register("email", probe)

	for i := 0; i < 3; i++ {
		m.ProbeAll(context.Background())
	}

	status, _ := m.StatusFor("email")
	assert.Equal(t, StateUnhealthy, status.State)
	assert.False(t, m.Allow("email"))
}

func TestRecoveryResetsFailureCount(t *testing.T) {
	m := newTestMonitor()
	probe := &scriptedProbe{errs: []error{fmt.Errorf("down"), fmt.Errorf("down"), fmt.Errorf("down"), nil}}
	m.Register("email", probe)

	for i := 0; i < 4; i++ {
		m.ProbeAll(context.Background())
	}

	status, _ := m.StatusFor("email")
	assert.Equal(t, StateHealthy, status.State)
	assert.Equal(t, 0, status.ConsecutiveFails)
	assert.True(t, m.Allow("email"))
}

func TestSlowProbeIsDegraded(t *testing.T) {
	m := newTestMonitor()
	m.Register("ai_provider", &scriptedProbe{delay: 60 * time.Millisecond})

	m.ProbeAll(context.Background())

	status, _ := m.StatusFor("ai_provider")
	assert.Equal(t, StateDegraded, status.State)
	assert.True(t, m.Allow("ai_provider"))
}

func TestUnknownComponentIsAllowed(t *testing.T) {
	m := newTestMonitor()

	assert.True(t, m.Allow("never-registered"))
}

func TestSnapshotPreservesRegistrationOrder(t *testing.T) {
	m := newTestMonitor()
	m.Register("ai_provider", &scriptedProbe{})
	m.Register("doc_render", &scriptedProbe{})
	m.Register("email", &scriptedProbe{})

	m.ProbeAll(context.Background())

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 3)
	assert.Equal(t, "ai_provider", snapshot[0].Component)
	assert.Equal(t, "doc_render", snapshot[1].Component)
	assert.Equal(t, "email", snapshot[2].Component)
}

type recordingMirror struct {
	keys []string
}

func (r *recordingMirror) Set(_ context.Context, key string, _ interface{}, _ time.Duration) error {
	r.keys = append(r.keys, key)
	return nil
}

func TestProbeMirrorsStatus(t *testing.T) {
	mirror := &recordingMirror{}
	m := NewMonitor(testHealthConfig(), mirror, logger.NewNoOpLogger())
	m.Register("crm", &scriptedProbe{})

	m.ProbeAll(context.Background())

	assert.Equal(t, []string{"health:crm"}, mirror.keys)
}
