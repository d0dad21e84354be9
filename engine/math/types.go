package math

type Vec3 struct {
	X, Y, Z float32
}

type Vec4 struct {
	X, Y, Z, W float32
}

// Mat4 is a 4x4 column-major matrix, the layout GPU constant buffers expect.
type Mat4 struct {
	Data [16]float32
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vec3) MulScalar(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

func (v Vec3) Length() float32 {
	return ksqrt(v.Dot(v))
}

func (v Vec3) Cross(o Vec3) Vec3 {
	return Vec3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vec3) Normalized() Vec3 {
	l := ksqrt(v.Dot(v))
	if l == 0 {
		return v
	}
	return Vec3{v.X / l, v.Y / l, v.Z / l}
}

func NewMat4Identity() Mat4 {
	out := Mat4{}
	out.Data[0] = 1.0
	out.Data[5] = 1.0
	out.Data[10] = 1.0
	out.Data[15] = 1.0
	return out
}

// NewMat4Perspective builds a right-handed perspective projection.
// fovRadians is the vertical field of view.
func NewMat4Perspective(fovRadians, aspect, near, far float32) Mat4 {
	halfTan := ktan(fovRadians * 0.5)
	out := Mat4{}
	out.Data[0] = 1.0 / (aspect * halfTan)
	out.Data[5] = 1.0 / halfTan
	out.Data[10] = -((far + near) / (far - near))
	out.Data[11] = -1.0
	out.Data[14] = -((2.0 * far * near) / (far - near))
	return out
}

// NewMat4LookAt builds a view matrix looking from position toward target.
func NewMat4LookAt(position, target, up Vec3) Mat4 {
	zAxis := target.Sub(position).Normalized()
	xAxis := zAxis.Cross(up).Normalized()
	yAxis := xAxis.Cross(zAxis)

	out := Mat4{}
	out.Data[0] = xAxis.X
	out.Data[1] = yAxis.X
	out.Data[2] = -zAxis.X
	out.Data[4] = xAxis.Y
	out.Data[5] = yAxis.Y
	out.Data[6] = -zAxis.Y
	out.Data[8] = xAxis.Z
	out.Data[9] = yAxis.Z
	out.Data[10] = -zAxis.Z
	out.Data[12] = -xAxis.Dot(position)
	out.Data[13] = -yAxis.Dot(position)
	out.Data[14] = zAxis.Dot(position)
	out.Data[15] = 1.0
	return out
}
