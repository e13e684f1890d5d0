package hmath

import (
	"testing"

	"honnef.co/go/curve"
)

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 3); got != 3 {
		t.Errorf("Clamp(5, 0, 3) = %d", got)
	}
	if got := Clamp(-1, 0, 3); got != 0 {
		t.Errorf("Clamp(-1, 0, 3) = %d", got)
	}
	if got := Clamp(2.5, 0.0, 3.0); got != 2.5 {
		t.Errorf("Clamp(2.5, 0, 3) = %f", got)
	}
}

func TestAlignUp(t *testing.T) {
	cases := [][3]int{
		{0, 4, 0},
		{1, 4, 4},
		{4, 4, 4},
		{5, 4, 8},
		{17, 16, 32},
	}
	for _, c := range cases {
		if got := AlignUp(c[0], c[1]); got != c[2] {
			t.Errorf("AlignUp(%d, %d) = %d, want %d", c[0], c[1], got, c[2])
		}
	}
}

func TestMatrix3x3Identity(t *testing.T) {
	v := Vector3{3, -2, 1}
	if got := Identity3x3.MulVector(v); got != v {
		t.Errorf("identity * %v = %v", v, got)
	}
}

func TestMatrix3x3Uniform(t *testing.T) {
	m := Matrix3x3{
		Cols: [3]Vector3{
			{1, 2, 3},
			{4, 5, 6},
			{7, 8, 9},
		},
	}
	u := m.Uniform()
	want := [12]float32{1, 2, 3, 0, 4, 5, 6, 0, 7, 8, 9, 0}
	if u != want {
		t.Errorf("Uniform() = %v, want %v", u, want)
	}
}

func TestMatrix3x3FromAffine(t *testing.T) {
	var a curve.Affine
	c := a.Coefficients()
	m := Matrix3x3FromAffine(a)
	// The lift applies the affine map on the z=1 plane and keeps
	// results on it.
	got := m.MulVector(Vector3{2, 5, 1})
	want := Vector3{
		float32(c[0])*2 + float32(c[2])*5 + float32(c[4]),
		float32(c[1])*2 + float32(c[3])*5 + float32(c[5]),
		1,
	}
	if got != want {
		t.Errorf("lifted affine * (2, 5, 1) = %v, want %v", got, want)
	}
}

func TestMatrix4x4Translation(t *testing.T) {
	m := Translation(Vector3{1, 2, 3})
	p := m.MulPoint(Vector3{10, 20, 30})
	if p != (Vector3{11, 22, 33}) {
		t.Errorf("translated point = %v", p)
	}
	// Directions ignore translation.
	d := m.MulDirection(Vector3{10, 20, 30})
	if d != (Vector3{10, 20, 30}) {
		t.Errorf("translated direction = %v", d)
	}
}

func TestVectorOps(t *testing.T) {
	a := Vector2{3, 4}
	if got := a.Length(); got != 5 {
		t.Errorf("Length() = %f", got)
	}
	if got := a.Dot(Vector2{1, 1}); got != 7 {
		t.Errorf("Dot() = %f", got)
	}
	n := Vector3{0, 0, 2}.Normalize()
	if n != (Vector3{0, 0, 1}) {
		t.Errorf("Normalize() = %v", n)
	}
	c := Vector3{1, 0, 0}.Cross(Vector3{0, 1, 0})
	if c != (Vector3{0, 0, 1}) {
		t.Errorf("Cross() = %v", c)
	}
}
