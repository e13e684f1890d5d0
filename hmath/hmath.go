// Package hmath provides the float32 math used by the resolve kernels.
//
// The CPU kernels intentionally mirror the arithmetic of the compute
// shaders, so everything here is float32 even where float64 would be more
// convenient on the host.
package hmath

import (
	"math"

	"golang.org/x/exp/constraints"
)

const Epsilon = 1e-6

func Abs32(f float32) float32 {
	return float32(math.Abs(float64(f)))
}

func Sqrt32(f float32) float32 {
	return float32(math.Sqrt(float64(f)))
}

func Exp32(f float32) float32 {
	return float32(math.Exp(float64(f)))
}

func Hypot32(x, y float32) float32 {
	return float32(math.Hypot(float64(x), float64(y)))
}

func Clamp[T constraints.Ordered](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

func AlignUp[T constraints.Integer](len T, alignment T) T {
	return (len + alignment - 1) & -alignment
}

type Vector2 struct {
	X, Y float32
}

func (v Vector2) Sub(o Vector2) Vector2 {
	return Vector2{v.X - o.X, v.Y - o.Y}
}

func (v Vector2) Dot(o Vector2) float32 {
	return v.X*o.X + v.Y*o.Y
}

func (v Vector2) Length() float32 {
	return Hypot32(v.X, v.Y)
}

type Vector3 struct {
	X, Y, Z float32
}

func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

func (v Vector3) Scale(f float32) Vector3 {
	return Vector3{v.X * f, v.Y * f, v.Z * f}
}

func (v Vector3) Dot(o Vector3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

func (v Vector3) Cross(o Vector3) Vector3 {
	return Vector3{
		v.Y*o.Z - v.Z*o.Y,
		v.Z*o.X - v.X*o.Z,
		v.X*o.Y - v.Y*o.X,
	}
}

func (v Vector3) Length() float32 {
	return Sqrt32(v.Dot(v))
}

func (v Vector3) Normalize() Vector3 {
	l := v.Length()
	return Vector3{v.X / l, v.Y / l, v.Z / l}
}

type Vector4 struct {
	X, Y, Z, W float32
}
