package components

import (
	"github.com/spaghettifunk/lumen/engine/math"
	"github.com/spaghettifunk/lumen/engine/renderer/metadata"
)

// 89 degrees, keeps the forward vector away from the up axis.
const pitchLimit float32 = 1.55334306

/**
 * @brief A free-flying camera. Rotation is stored as Euler angles where
 * X is the pitch and Y the yaw; roll is not supported. At zero rotation
 * the camera looks down -Z.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position math.Vec3
	/**
	 * @brief The rotation of this camera in radians (pitch, yaw, unused).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead.
	 */
	EulerRotation math.Vec3

	FOV  float32
	Near float32
	Far  float32

	aspect  float32
	isDirty bool
	view    math.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = math.NewVec3Zero()
	c.Position = math.NewVec3Zero()
	c.FOV = math.DegToRad(45)
	c.Near = 0.1
	c.Far = 1000
	c.aspect = 16.0 / 9.0
	c.isDirty = true
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.Position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.Position = position
	c.isDirty = true
}

func (c *Camera) GetEulerRotation() math.Vec3 {
	return c.EulerRotation
}

func (c *Camera) SetEulerRotation(rotation math.Vec3) {
	c.EulerRotation = rotation
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -pitchLimit, pitchLimit)
	c.isDirty = true
}

// SetAspect updates the projection for a framebuffer of the given size.
// A zero height keeps the previous ratio.
func (c *Camera) SetAspect(width, height int) {
	if height <= 0 || width <= 0 {
		return
	}
	c.aspect = float32(width) / float32(height)
}

func (c *Camera) Aspect() float32 {
	return c.aspect
}

func (c *Camera) GetView() math.Mat4 {
	if c.isDirty {
		target := c.Position.Add(c.Forward())
		c.view = math.NewMat4LookAt(c.Position, target, math.NewVec3Up())
		c.isDirty = false
	}
	return c.view
}

func (c *Camera) Projection() math.Mat4 {
	return math.NewMat4Perspective(c.FOV, c.aspect, c.Near, c.Far)
}

// Metadata packs the matrices the renderer consumes.
func (c *Camera) Metadata() metadata.Camera {
	return metadata.Camera{View: c.GetView(), Projection: c.Projection()}
}

func (c *Camera) Forward() math.Vec3 {
	rotation := math.NewMat4EulerX(c.EulerRotation.X).Mul(math.NewMat4EulerY(c.EulerRotation.Y))
	return math.NewVec3(0, 0, -1).TransformDirection(rotation).Normalize()
}

func (c *Camera) Backward() math.Vec3 {
	return c.Forward().MulScalar(-1)
}

func (c *Camera) Right() math.Vec3 {
	return c.Forward().Cross(math.NewVec3Up()).Normalize()
}

func (c *Camera) Left() math.Vec3 {
	return c.Right().MulScalar(-1)
}

func (c *Camera) move(direction math.Vec3, amount float32) {
	c.Position = c.Position.Add(direction.MulScalar(amount))
	c.isDirty = true
}

func (c *Camera) MoveForward(amount float32) {
	c.move(c.Forward(), amount)
}

func (c *Camera) MoveBackward(amount float32) {
	c.move(c.Backward(), amount)
}

func (c *Camera) MoveLeft(amount float32) {
	c.move(c.Left(), amount)
}

func (c *Camera) MoveRight(amount float32) {
	c.move(c.Right(), amount)
}

func (c *Camera) MoveUp(amount float32) {
	c.move(math.NewVec3Up(), amount)
}

func (c *Camera) MoveDown(amount float32) {
	c.move(math.NewVec3Up(), -amount)
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation.Y += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation.X += amount

	// Clamp to avoid Gimbal lock.
	c.EulerRotation.X = math.Clamp(c.EulerRotation.X, -pitchLimit, pitchLimit)

	c.isDirty = true
}
