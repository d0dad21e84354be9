package components

import (
	"github.com/spaghettifunk/vortex/engine/math"
)

// Camera is a look-at camera aimed at a fixed target, which is all a
// particle-cloud viewer needs. The view matrix is rebuilt lazily when
// position or target changed since the last query.
type Camera struct {
	position math.Vec3
	target   math.Vec3
	up       math.Vec3

	isDirty    bool
	viewMatrix math.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.position = math.NewVec3(0, 0, 150)
	c.target = math.NewVec3(0, 0, 0)
	c.up = math.NewVec3(0, 1, 0)
	c.isDirty = true
	c.viewMatrix = math.NewMat4Identity()
}

func (c *Camera) GetPosition() math.Vec3 {
	return c.position
}

func (c *Camera) SetPosition(position math.Vec3) {
	c.position = position
	c.isDirty = true
}

func (c *Camera) GetTarget() math.Vec3 {
	return c.target
}

func (c *Camera) SetTarget(target math.Vec3) {
	c.target = target
	c.isDirty = true
}

func (c *Camera) GetView() math.Mat4 {
	if c.isDirty {
		c.viewMatrix = math.NewMat4LookAt(c.position, c.target, c.up)
		c.isDirty = false
	}
	return c.viewMatrix
}

// Zoom moves the camera along the view direction. Positive amounts move
// toward the target; the camera stops short of crossing it.
func (c *Camera) Zoom(amount float32) {
	direction := c.target.Sub(c.position)
	distance := direction.Length()
	if distance-amount < 1.0 {
		return
	}
	c.position = c.position.Add(direction.Normalized().MulScalar(amount))
	c.isDirty = true
}

// Orbit rotates the camera around the target's Y axis.
func (c *Camera) Orbit(radians float32) {
	offset := c.position.Sub(c.target)
	sin, cos := math.Sin(radians), math.Cos(radians)
	rotated := math.NewVec3(
		offset.X*cos+offset.Z*sin,
		offset.Y,
		-offset.X*sin+offset.Z*cos,
	)
	c.position = c.target.Add(rotated)
	c.isDirty = true
}
