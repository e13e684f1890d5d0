package hmath

import (
	"honnef.co/go/curve"
)

// Matrix3x3 is a column-major 3x3 matrix. It maps homogeneous image-plane
// positions (x, y, 1) to camera-space ray directions.
type Matrix3x3 struct {
	Cols [3]Vector3
}

var Identity3x3 = Matrix3x3{
	Cols: [3]Vector3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	},
}

func (m Matrix3x3) MulVector(v Vector3) Vector3 {
	return m.Cols[0].Scale(v.X).
		Add(m.Cols[1].Scale(v.Y)).
		Add(m.Cols[2].Scale(v.Z))
}

func (m Matrix3x3) Mul(o Matrix3x3) Matrix3x3 {
	return Matrix3x3{
		Cols: [3]Vector3{
			m.MulVector(o.Cols[0]),
			m.MulVector(o.Cols[1]),
			m.MulVector(o.Cols[2]),
		},
	}
}

// Uniform returns the matrix in WGSL mat3x3<f32> layout, each column padded
// to a vec4.
func (m Matrix3x3) Uniform() [12]float32 {
	var out [12]float32
	for i, c := range m.Cols {
		out[i*4+0] = c.X
		out[i*4+1] = c.Y
		out[i*4+2] = c.Z
	}
	return out
}

// Matrix3x3FromAffine lifts a 2D affine map of the image plane onto the
// z=1 plane, turning it into a sample-to-camera direction transform.
func Matrix3x3FromAffine(t curve.Affine) Matrix3x3 {
	c := t.Coefficients()
	return Matrix3x3{
		Cols: [3]Vector3{
			{float32(c[0]), float32(c[1]), 0},
			{float32(c[2]), float32(c[3]), 0},
			{float32(c[4]), float32(c[5]), 1},
		},
	}
}

// Matrix4x4 is a column-major 4x4 matrix, used for the camera-to-world
// transform.
type Matrix4x4 struct {
	Cols [4]Vector4
}

var Identity4x4 = Matrix4x4{
	Cols: [4]Vector4{
		{1, 0, 0, 0},
		{0, 1, 0, 0},
		{0, 0, 1, 0},
		{0, 0, 0, 1},
	},
}

// MulDirection applies the linear part of the transform, ignoring
// translation.
func (m Matrix4x4) MulDirection(v Vector3) Vector3 {
	return Vector3{
		m.Cols[0].X*v.X + m.Cols[1].X*v.Y + m.Cols[2].X*v.Z,
		m.Cols[0].Y*v.X + m.Cols[1].Y*v.Y + m.Cols[2].Y*v.Z,
		m.Cols[0].Z*v.X + m.Cols[1].Z*v.Y + m.Cols[2].Z*v.Z,
	}
}

func (m Matrix4x4) MulPoint(v Vector3) Vector3 {
	d := m.MulDirection(v)
	return Vector3{
		d.X + m.Cols[3].X,
		d.Y + m.Cols[3].Y,
		d.Z + m.Cols[3].Z,
	}
}

func (m Matrix4x4) Uniform() [16]float32 {
	var out [16]float32
	for i, c := range m.Cols {
		out[i*4+0] = c.X
		out[i*4+1] = c.Y
		out[i*4+2] = c.Z
		out[i*4+3] = c.W
	}
	return out
}

// Translation returns a transform that offsets points by v.
func Translation(v Vector3) Matrix4x4 {
	m := Identity4x4
	m.Cols[3] = Vector4{v.X, v.Y, v.Z, 1}
	return m
}
