package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMetricsAverageAndFPS(t *testing.T) {
	m := NewMetrics()
	// 16ms frames: the average settles after AVG_COUNT samples
	for i := 0; i < int(AVG_COUNT); i++ {
		m.Update(0.016)
	}
	assert.InDelta(t, 16.0, m.FrameTime(), 0.0001)

	// keep going past one accumulated second
	for i := 0; i < 40; i++ {
		m.Update(0.016)
	}
	fps, ms := m.Frame()
	assert.InDelta(t, 62, fps, 1)
	assert.InDelta(t, 16.0, ms, 0.0001)
}
