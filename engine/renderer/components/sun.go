package components

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

/**
 * @brief A directional light that travels across the sky. DayTime runs
 * from 0 (sun at the zenith of the +Y start) to 1 (opposite side).
 */
type Sun struct {
	StartPosition math.Vec3
	DayTime       float32
	// Step is how much DayTime changes per Advance.
	Step float32

	direction math.Vec3
}

func NewSun() *Sun {
	s := &Sun{
		StartPosition: math.NewVec3Up(),
		DayTime:       0.5,
		Step:          0.1,
	}
	s.Update()
	return s
}

// Advance moves the sun by n steps; negative values go back in time.
func (s *Sun) Advance(n int) {
	s.DayTime += float32(n) * s.Step
	s.Update()
}

// Update clamps DayTime and recomputes the light direction.
func (s *Sun) Update() {
	s.DayTime = math.Clamp(s.DayTime, 0, 1)

	angle := math.DegToRad(180 * s.DayTime)
	pos := s.StartPosition.TransformDirection(math.NewMat4EulerX(angle))
	pos = pos.TransformDirection(math.NewMat4EulerY(math.DegToRad(180)))

	s.direction = pos.Normalize().MulScalar(-1)
}

func (s *Sun) Direction() math.Vec3 {
	return s.direction
}

func (s *Sun) Light() metadata.Light {
	return metadata.Light{Direction: s.direction}
}
