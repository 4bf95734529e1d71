package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQuaternionRotatesCounterClockwise(t *testing.T) {
	q := NewQuatFromAxisAngle(NewVec3(0, 0, 1), DegToRad(90), true)
	got := NewVec3(1, 0, 0).Transform(q.ToMat4())
	assert.True(t, got.Compare(NewVec3(0, 1, 0), 1e-5), "got %+v", got)

	// the Euler helper agrees with the quaternion
	got = NewVec3(1, 0, 0).Transform(NewMat4EulerZ(DegToRad(90)))
	assert.True(t, got.Compare(NewVec3(0, 1, 0), 1e-5), "got %+v", got)
}

func TestTransformLocalOrder(t *testing.T) {
	tr := NewTransformFromPosition(NewVec3(10, 0, 0))
	tr.SetScale(NewVec3(2, 2, 2))
	got := NewVec3(1, 0, 0).Transform(tr.Local())
	assert.True(t, got.Compare(NewVec3(12, 0, 0), 1e-5), "got %+v", got)

	tr.Translate(NewVec3(0, 1, 0))
	got = NewVec3Zero().Transform(tr.Local())
	assert.True(t, got.Compare(NewVec3(10, 1, 0), 1e-5), "got %+v", got)
}

func TestLookAtMovesTargetDownNegativeZ(t *testing.T) {
	view := NewMat4LookAt(NewVec3(0, 0, 5), NewVec3Zero(), NewVec3Up())
	got := NewVec3Zero().Transform(view)
	assert.True(t, got.Compare(NewVec3(0, 0, -5), 1e-5), "got %+v", got)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(2), Clamp(uint32(1), 2, 16))
	assert.Equal(t, uint32(16), Clamp(uint32(40), 2, 16))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
}
