package engine

import (
	"github.com/golang/geo/r3"
)

// Pose is a camera pose Tcw (world to camera) as a row-major 4x4 rigid
// transform. The zero value is the empty pose.
type Pose struct {
	tcw   [16]float64
	valid bool
}

// EmptyPose marks a frame where tracking failed
var EmptyPose = Pose{}

// NewPose wraps a row-major 4x4 Tcw matrix
func NewPose(tcw [16]float64) Pose {
	return Pose{tcw: tcw, valid: true}
}

// IdentityPose is the camera at the world origin
func IdentityPose() Pose {
	return NewPose([16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	})
}

// Empty reports whether tracking failed for the frame
func (p Pose) Empty() bool { return !p.valid }

// Matrix returns the row-major Tcw matrix
func (p Pose) Matrix() [16]float64 { return p.tcw }

// Rotation returns Rcw, row-major 3x3
func (p Pose) Rotation() [9]float64 {
	m := p.tcw
	return [9]float64{
		m[0], m[1], m[2],
		m[4], m[5], m[6],
		m[8], m[9], m[10],
	}
}

// Translation returns tcw
func (p Pose) Translation() r3.Vector {
	return r3.Vector{X: p.tcw[3], Y: p.tcw[7], Z: p.tcw[11]}
}

// WorldRotation returns Rwc = Rcwᵀ, row-major 3x3
func (p Pose) WorldRotation() [9]float64 {
	r := p.Rotation()
	return [9]float64{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// CameraCenter returns twc = -Rwc·tcw, the camera position in world frame
func (p Pose) CameraCenter() r3.Vector {
	rwc := p.WorldRotation()
	t := p.Translation()
	return r3.Vector{
		X: -(rwc[0]*t.X + rwc[1]*t.Y + rwc[2]*t.Z),
		Y: -(rwc[3]*t.X + rwc[4]*t.Y + rwc[5]*t.Z),
		Z: -(rwc[6]*t.X + rwc[7]*t.Y + rwc[8]*t.Z),
	}
}
