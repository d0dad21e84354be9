package math_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/vortex/engine/math"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 5, math.Clamp(3, 5, 10))
	assert.Equal(t, 10, math.Clamp(12, 5, 10))
	assert.Equal(t, 7, math.Clamp(7, 5, 10))
	assert.Equal(t, float32(0.5), math.Clamp(float32(0.5), 0.0, 1.0))
}

func TestVec3Arithmetic(t *testing.T) {
	v := math.NewVec3(3, 0, 4)
	assert.Equal(t, float32(5), v.Length())
	assert.InDelta(t, 1.0, float64(v.Normalized().Length()), 1e-6)

	sum := v.Add(math.NewVec3(1, 2, 3))
	assert.Equal(t, math.NewVec3(4, 2, 7), sum)
	assert.Equal(t, math.NewVec3(6, 0, 8), v.MulScalar(2))

	up := math.NewVec3(0, 1, 0)
	forward := math.NewVec3(0, 0, -1)
	right := forward.Cross(up)
	assert.Equal(t, math.NewVec3(1, 0, 0), right)
}

func TestLookAtPlacesEyeAtOrigin(t *testing.T) {
	eye := math.NewVec3(0, 0, 10)
	view := math.NewMat4LookAt(eye, math.NewVec3(0, 0, 0), math.NewVec3(0, 1, 0))

	// Transforming the eye position must land on the view-space origin.
	x := view.Data[0]*eye.X + view.Data[4]*eye.Y + view.Data[8]*eye.Z + view.Data[12]
	y := view.Data[1]*eye.X + view.Data[5]*eye.Y + view.Data[9]*eye.Z + view.Data[13]
	z := view.Data[2]*eye.X + view.Data[6]*eye.Y + view.Data[10]*eye.Z + view.Data[14]
	assert.InDelta(t, 0, float64(x), 1e-5)
	assert.InDelta(t, 0, float64(y), 1e-5)
	assert.InDelta(t, 0, float64(z), 1e-5)
}

func TestRandomFloatRangeStaysInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		v := math.RandomFloatRange(-2, 3)
		assert.GreaterOrEqual(t, v, float32(-2))
		assert.Less(t, v, float32(3))
	}
}
