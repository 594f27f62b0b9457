package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Trajectory writes one line per tracked frame:
//
//	<timestamp> r00 r01 r02 tx r10 r11 r12 ty r20 r21 r22 tz
//
// with the camera-to-world rotation Rwc and camera center twc. Frames with
// an empty pose are skipped.
type Trajectory struct {
	file *os.File
	w    *bufio.Writer
	rows int
}

// NewTrajectory creates (truncating) the trajectory file at path
func NewTrajectory(path string) (*Trajectory, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create trajectory dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trajectory: %w", err)
	}
	return &Trajectory{file: f, w: bufio.NewWriter(f)}, nil
}

func (t *Trajectory) Observe(obs Observation) error {
	if obs.Pose.Empty() {
		return nil
	}
	rwc := obs.Pose.WorldRotation()
	twc := obs.Pose.CameraCenter()
	center := [3]float64{twc.X, twc.Y, twc.Z}

	fields := make([]string, 0, 13)
	fields = append(fields, obs.Timestamp.String())
	for row := 0; row < 3; row++ {
		for col := 0; col < 3; col++ {
			fields = append(fields, formatFloat(rwc[row*3+col]))
		}
		fields = append(fields, formatFloat(center[row]))
	}

	if _, err := t.w.WriteString(strings.Join(fields, " ") + "\n"); err != nil {
		return fmt.Errorf("write trajectory: %w", err)
	}
	t.rows++
	return nil
}

// Rows returns the number of poses written
func (t *Trajectory) Rows() int { return t.rows }

func (t *Trajectory) Close() error {
	if err := t.w.Flush(); err != nil {
		t.file.Close()
		return fmt.Errorf("flush trajectory: %w", err)
	}
	return t.file.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}
