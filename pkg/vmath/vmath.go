// Package vmath provides the small fixed-width vector and quaternion
// types used by the replication wire format and the interpolation and
// reconciliation math.
//
// All components are float32 to match the on-wire representation; the
// package deliberately implements only the operations the netcode
// needs (blend, distance, normalize) rather than a general linear
// algebra surface.
package vmath

import "math"

// Vec3 is a three-component float32 vector.
type Vec3 struct {
	X, Y, Z float32
}

// Add returns v + o.
func (v Vec3) Add(o Vec3) Vec3 {
	return Vec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z}
}

// Sub returns v - o.
func (v Vec3) Sub(o Vec3) Vec3 {
	return Vec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z}
}

// Scale returns v * s.
func (v Vec3) Scale(s float32) Vec3 {
	return Vec3{v.X * s, v.Y * s, v.Z * s}
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v.X*o.X + v.Y*o.Y + v.Z*o.Z
}

// Length returns the euclidean length of v.
func (v Vec3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Distance returns the euclidean distance between v and o.
func (v Vec3) Distance(o Vec3) float32 {
	return v.Sub(o).Length()
}

// Lerp returns the linear blend of a and b at parameter t.
// t is clamped to [0, 1].
func Lerp(a, b Vec3, t float32) Vec3 {
	t = Clamp01(t)
	return a.Add(b.Sub(a).Scale(t))
}

// Clamp01 clamps t to the closed interval [0, 1].
func Clamp01(t float32) float32 {
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// Quat is a rotation quaternion (x, y, z, w).
type Quat struct {
	X, Y, Z, W float32
}

// QuatIdentity is the identity rotation.
var QuatIdentity = Quat{W: 1}

// Dot returns the four-component dot product of q and o.
func (q Quat) Dot(o Quat) float32 {
	return q.X*o.X + q.Y*o.Y + q.Z*o.Z + q.W*o.W
}

// Normalize returns q scaled to unit length. The zero quaternion
// normalizes to the identity.
func (q Quat) Normalize() Quat {
	l := float32(math.Sqrt(float64(q.Dot(q))))
	if l == 0 {
		return QuatIdentity
	}
	return Quat{q.X / l, q.Y / l, q.Z / l, q.W / l}
}

// Distance returns the component-wise euclidean distance between q
// and o. This is the divergence measure reconciliation compares
// against its epsilon; it treats the quaternion as a point in R4.
func (q Quat) Distance(o Quat) float32 {
	dx := q.X - o.X
	dy := q.Y - o.Y
	dz := q.Z - o.Z
	dw := q.W - o.W
	return float32(math.Sqrt(float64(dx*dx + dy*dy + dz*dz + dw*dw)))
}

// Nlerp returns the normalized linear blend of a and b at parameter t,
// taking the shorter arc. t is clamped to [0, 1].
func Nlerp(a, b Quat, t float32) Quat {
	t = Clamp01(t)
	// Negate one endpoint when the arc crosses the hypersphere seam.
	if a.Dot(b) < 0 {
		b = Quat{-b.X, -b.Y, -b.Z, -b.W}
	}
	return Quat{
		X: a.X + (b.X-a.X)*t,
		Y: a.Y + (b.Y-a.Y)*t,
		Z: a.Z + (b.Z-a.Z)*t,
		W: a.W + (b.W-a.W)*t,
	}.Normalize()
}
