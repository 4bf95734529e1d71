package components

import (
	"testing"

	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/stretchr/testify/assert"
)

func TestCameraLooksDownNegativeZ(t *testing.T) {
	c := NewCamera()
	assert.True(t, c.Forward().Compare(math.NewVec3(0, 0, -1), 1e-5))
	assert.True(t, c.Right().Compare(math.NewVec3(1, 0, 0), 1e-5))

	c.SetPosition(math.NewVec3(0, 0, 10))
	got := math.NewVec3(0, 0, 5).Transform(c.GetView())
	assert.True(t, got.Compare(math.NewVec3(0, 0, -5), 1e-4), "got %+v", got)
}

func TestCameraYawTurnsLeft(t *testing.T) {
	c := NewCamera()
	c.Yaw(math.DegToRad(90))
	assert.True(t, c.Forward().Compare(math.NewVec3(-1, 0, 0), 1e-5), "got %+v", c.Forward())

	c.MoveForward(2)
	assert.True(t, c.GetPosition().Compare(math.NewVec3(-2, 0, 0), 1e-5))
}

func TestCameraPitchIsClamped(t *testing.T) {
	c := NewCamera()
	c.Pitch(10)
	assert.InDelta(t, pitchLimit, c.GetEulerRotation().X, 1e-6)
	c.Pitch(-20)
	assert.InDelta(t, -pitchLimit, c.GetEulerRotation().X, 1e-6)
	assert.Less(t, c.Forward().Y, float32(0))
}

func TestCameraMoveUpDown(t *testing.T) {
	c := NewCamera()
	c.MoveUp(3)
	c.MoveDown(1)
	assert.True(t, c.GetPosition().Compare(math.NewVec3(0, 2, 0), 1e-6))
}

func TestCameraViewIsRebuiltAfterMove(t *testing.T) {
	c := NewCamera()
	before := c.GetView()
	c.MoveRight(1)
	assert.NotEqual(t, before, c.GetView())
}

func TestCameraAspect(t *testing.T) {
	c := NewCamera()
	c.SetAspect(800, 400)
	assert.Equal(t, float32(2), c.Aspect())
	c.SetAspect(800, 0)
	assert.Equal(t, float32(2), c.Aspect())

	m := c.Metadata()
	assert.Equal(t, c.Projection(), m.Projection)
	assert.Equal(t, c.GetView(), m.View)
}

func TestSunDirection(t *testing.T) {
	s := NewSun()
	assert.True(t, s.Direction().Compare(math.NewVec3(0, 0, 1), 1e-5), "noon: %+v", s.Direction())

	s.DayTime = 0
	s.Update()
	assert.True(t, s.Light().Direction.Compare(math.NewVec3(0, -1, 0), 1e-5), "start: %+v", s.Direction())

	s.DayTime = 1
	s.Update()
	assert.True(t, s.Direction().Compare(math.NewVec3(0, 1, 0), 1e-5), "end: %+v", s.Direction())
}

func TestSunAdvanceClamps(t *testing.T) {
	s := NewSun()
	s.Advance(3)
	assert.InDelta(t, 0.8, s.DayTime, 1e-6)
	s.Advance(10)
	assert.Equal(t, float32(1), s.DayTime)
	s.Advance(-20)
	assert.Equal(t, float32(0), s.DayTime)
	assert.InDelta(t, 1, s.Direction().Length(), 1e-5)
}
