// Package geom provides the small amount of 3D math needed for pose
// annotations: vectors, xyzw quaternions and rigid 4x4 transforms.
package geom

import "math"

type Vec3 [3]float64

func (a Vec3) Add(b Vec3) Vec3      { return Vec3{a[0] + b[0], a[1] + b[1], a[2] + b[2]} }
func (a Vec3) Sub(b Vec3) Vec3      { return Vec3{a[0] - b[0], a[1] - b[1], a[2] - b[2]} }
func (a Vec3) Scale(s float64) Vec3 { return Vec3{a[0] * s, a[1] * s, a[2] * s} }
func (a Vec3) Dot(b Vec3) float64   { return a[0]*b[0] + a[1]*b[1] + a[2]*b[2] }
func (a Vec3) Norm() float64        { return math.Sqrt(a.Dot(a)) }

func (a Vec3) Cross(b Vec3) Vec3 {
	return Vec3{
		a[1]*b[2] - a[2]*b[1],
		a[2]*b[0] - a[0]*b[2],
		a[0]*b[1] - a[1]*b[0],
	}
}

// Unit returns a normalized copy; the zero vector is returned unchanged.
func (a Vec3) Unit() Vec3 {
	n := a.Norm()
	if n == 0 {
		return a
	}
	return a.Scale(1 / n)
}

// Quat is a rotation quaternion stored x, y, z, w.
type Quat [4]float64

func IdentityQuat() Quat { return Quat{0, 0, 0, 1} }

// QuatFromAxisAngle builds a rotation of angle radians about axis.
func QuatFromAxisAngle(axis Vec3, angle float64) Quat {
	u := axis.Unit()
	s := math.Sin(angle / 2)
	return Quat{u[0] * s, u[1] * s, u[2] * s, math.Cos(angle / 2)}
}

// Mul returns the Hamilton product q*r (apply r, then q).
func (q Quat) Mul(r Quat) Quat {
	return Quat{
		q[3]*r[0] + q[0]*r[3] + q[1]*r[2] - q[2]*r[1],
		q[3]*r[1] - q[0]*r[2] + q[1]*r[3] + q[2]*r[0],
		q[3]*r[2] + q[0]*r[1] - q[1]*r[0] + q[2]*r[3],
		q[3]*r[3] - q[0]*r[0] - q[1]*r[1] - q[2]*r[2],
	}
}

func (q Quat) Normalize() Quat {
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 {
		return IdentityQuat()
	}
	return Quat{q[0] / n, q[1] / n, q[2] / n, q[3] / n}
}

// Matrix returns the 3x3 rotation matrix of a unit quaternion.
func (q Quat) Matrix() [3][3]float64 {
	x, y, z, w := q[0], q[1], q[2], q[3]
	return [3][3]float64{
		{1 - 2*(y*y+z*z), 2 * (x*y - z*w), 2 * (x*z + y*w)},
		{2 * (x*y + z*w), 1 - 2*(x*x+z*z), 2 * (y*z - x*w)},
		{2 * (x*z - y*w), 2 * (y*z + x*w), 1 - 2*(x*x+y*y)},
	}
}

// QuatFromMatrix converts a rotation matrix back to xyzw form.
func QuatFromMatrix(m [3][3]float64) Quat {
	tr := m[0][0] + m[1][1] + m[2][2]
	var q Quat
	switch {
	case tr > 0:
		s := math.Sqrt(tr+1) * 2
		q = Quat{(m[2][1] - m[1][2]) / s, (m[0][2] - m[2][0]) / s, (m[1][0] - m[0][1]) / s, s / 4}
	case m[0][0] > m[1][1] && m[0][0] > m[2][2]:
		s := math.Sqrt(1+m[0][0]-m[1][1]-m[2][2]) * 2
		q = Quat{s / 4, (m[0][1] + m[1][0]) / s, (m[0][2] + m[2][0]) / s, (m[2][1] - m[1][2]) / s}
	case m[1][1] > m[2][2]:
		s := math.Sqrt(1+m[1][1]-m[0][0]-m[2][2]) * 2
		q = Quat{(m[0][1] + m[1][0]) / s, s / 4, (m[1][2] + m[2][1]) / s, (m[0][2] - m[2][0]) / s}
	default:
		s := math.Sqrt(1+m[2][2]-m[0][0]-m[1][1]) * 2
		q = Quat{(m[0][2] + m[2][0]) / s, (m[1][2] + m[2][1]) / s, s / 4, (m[1][0] - m[0][1]) / s}
	}
	return q.Normalize()
}

// Rotate applies q to v.
func (q Quat) Rotate(v Vec3) Vec3 {
	m := q.Matrix()
	return Vec3{
		m[0][0]*v[0] + m[0][1]*v[1] + m[0][2]*v[2],
		m[1][0]*v[0] + m[1][1]*v[1] + m[1][2]*v[2],
		m[2][0]*v[0] + m[2][1]*v[1] + m[2][2]*v[2],
	}
}

// Transform is a rigid transform in homogeneous form.
type Transform struct {
	R [3][3]float64
	T Vec3
}

func Identity() Transform {
	return Transform{R: [3][3]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
}

// FromPose builds a transform from an xyzw orientation and a position.
func FromPose(q Quat, t Vec3) Transform {
	return Transform{R: q.Normalize().Matrix(), T: t}
}

// Mul composes a*b (apply b, then a).
func (a Transform) Mul(b Transform) Transform {
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = a.R[i][0]*b.R[0][j] + a.R[i][1]*b.R[1][j] + a.R[i][2]*b.R[2][j]
		}
	}
	out.T = a.Apply(b.T)
	return out
}

// Apply maps a point through the transform.
func (a Transform) Apply(p Vec3) Vec3 {
	return Vec3{
		a.R[0][0]*p[0] + a.R[0][1]*p[1] + a.R[0][2]*p[2] + a.T[0],
		a.R[1][0]*p[0] + a.R[1][1]*p[1] + a.R[1][2]*p[2] + a.T[1],
		a.R[2][0]*p[0] + a.R[2][1]*p[1] + a.R[2][2]*p[2] + a.T[2],
	}
}

func (a Transform) Inverse() Transform {
	var out Transform
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.R[i][j] = a.R[j][i]
		}
	}
	for i := 0; i < 3; i++ {
		out.T[i] = -(out.R[i][0]*a.T[0] + out.R[i][1]*a.T[1] + out.R[i][2]*a.T[2])
	}
	return out
}

func (a Transform) Quaternion() Quat { return QuatFromMatrix(a.R) }

// Matrix returns the 4x4 homogeneous matrix as nested slices, the shape
// annotations are stored in.
func (a Transform) Matrix() [][]float64 {
	m := make([][]float64, 4)
	for i := 0; i < 3; i++ {
		m[i] = []float64{a.R[i][0], a.R[i][1], a.R[i][2], a.T[i]}
	}
	m[3] = []float64{0, 0, 0, 1}
	return m
}
