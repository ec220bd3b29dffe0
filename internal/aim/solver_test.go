package aim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trackingReportAt(x, y, z float64, stamp time.Time) TrackingReport {
	return TrackingReport{
		Stamp:     stamp,
		Frame:     "odom",
		Tracking:  true,
		ID:        "3",
		ArmorsNum: 4,
		Position:  Vec3{X: x, Y: y, Z: z},
		Yaw:       0,
		Radius1:   0.26,
		Radius2:   0.26,
	}
}

func TestSolverRejectsNonTrackingReport(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	_, err := s.Solve(TrackingReport{Tracking: false}, time.Now())
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestSolverAimsAtFacingPlate(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	now := time.Unix(100, 0)

	// Stationary four-plate target straight ahead: the plate facing the
	// shooter sits one radius in front of the center.
	cmd, err := s.Solve(trackingReportAt(2.0, 0, 0, now), now)
	require.NoError(t, err)

	assert.InDelta(t, 1.74, cmd.Distance, 0.01)
	assert.InDelta(t, 0, cmd.YawDiff, 0.01)
	// Drop compensation lifts the barrel above the geometric line.
	assert.Greater(t, cmd.PitchDiff, 0.0)
	assert.True(t, cmd.FireAdvice, "aligned stationary target should be fireable")
}

func TestSolverTracksYawAcrossCalls(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	now := time.Unix(100, 0)

	_, err := s.Solve(trackingReportAt(2.0, 0, 0, now), now)
	require.NoError(t, err)

	// Target jumps 90° off axis: the diff is relative to the previous
	// commanded direction and far too large to fire through.
	rep := trackingReportAt(0, 2.0, 0, now.Add(10*time.Millisecond))
	rep.Yaw = math.Pi / 2
	cmd, err := s.Solve(rep, now.Add(10*time.Millisecond))
	require.NoError(t, err)

	assert.InDelta(t, 90, cmd.YawDiff, 1.0)
	assert.False(t, cmd.FireAdvice)
}

func TestSolverLeadsMovingTarget(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	now := time.Unix(100, 0)

	rep := trackingReportAt(5.0, 0, 0, now)
	rep.Velocity = Vec3{Y: 2.0}
	cmd, err := s.Solve(rep, now)
	require.NoError(t, err)

	// Latency plus flight time pushes the aim point ahead of the target
	// along +y.
	assert.Greater(t, cmd.YawDiff, 0.5)
}

func TestSolverRejectsDegenerateDistance(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	now := time.Unix(100, 0)

	// Target center barely past one radius: the facing plate lands
	// inside the minimum engagement distance.
	rep := trackingReportAt(0.3, 0, 0, now)
	_, err := s.Solve(rep, now)
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestSolverRejectsUnreachableHeight(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	now := time.Unix(100, 0)

	// A target nearly straight up needs more pitch than the turret has.
	rep := trackingReportAt(1.0, 0, 5.0, now)
	_, err := s.Solve(rep, now)
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestFlightTimeWithoutDragIsLinear(t *testing.T) {
	t.Parallel()
	cfg := DefaultSolverConfig()
	cfg.AirResistanceK = 0
	s := NewSolver(cfg)

	tof, err := s.flightTime(10, 0)
	require.NoError(t, err)
	assert.InDelta(t, 10/cfg.BulletSpeed, tof, 1e-9)
}

func TestFlightTimeDragSlowsBullet(t *testing.T) {
	t.Parallel()
	cfg := DefaultSolverConfig()
	s := NewSolver(cfg)

	d := 8.0
	tof, err := s.flightTime(d, 0)
	require.NoError(t, err)

	want := (math.Exp(cfg.AirResistanceK*d) - 1) / (cfg.AirResistanceK * cfg.BulletSpeed)
	assert.InDelta(t, want, tof, 1e-9)
	assert.Greater(t, tof, d/cfg.BulletSpeed)
}

func TestFlightTimeRejectsVerticalShot(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	_, err := s.flightTime(5, math.Pi/2)
	require.ErrorIs(t, err, ErrNoSolution)
}

func TestCompensatePitchHitsTargetHeight(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())

	d, h := 6.0, 0.4
	pitch, err := s.compensatePitch(d, h)
	require.NoError(t, err)

	// Re-simulate: the drop-compensated shot must land on the target.
	tof, err := s.flightTime(d, pitch)
	require.NoError(t, err)
	landed := s.cfg.BulletSpeed*math.Sin(pitch)*tof - 0.5*s.cfg.Gravity*tof*tof
	assert.InDelta(t, h, landed, 1e-3)
	assert.Greater(t, pitch, math.Atan2(h, d), "compensation must aim above the line of sight")
}

func TestTrajectorySamplesArc(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())

	points := s.Trajectory(10, 0.1)
	require.Len(t, points, 20)

	assert.Zero(t, points[0].Range)
	assert.InDelta(t, 10, points[len(points)-1].Range, 1e-9)
	for i := 1; i < len(points); i++ {
		assert.Greater(t, points[i].Range, points[i-1].Range)
	}
	// Gravity wins eventually: the arc ends below its apex.
	apex := math.Inf(-1)
	for _, p := range points {
		apex = math.Max(apex, p.Height)
	}
	assert.Greater(t, apex, points[len(points)-1].Height)
}

func TestTrajectoryRejectsBadInputs(t *testing.T) {
	t.Parallel()
	s := NewSolver(DefaultSolverConfig())
	assert.Nil(t, s.Trajectory(0, 0.1))
	assert.Nil(t, s.Trajectory(-5, 0.1))
	assert.Nil(t, s.Trajectory(math.NaN(), 0.1))
}

func TestFacingPlatePicksLineOfSight(t *testing.T) {
	t.Parallel()
	rep := trackingReportAt(2.0, 0, 0, time.Unix(100, 0))

	p, ok := facingPlate(rep)
	require.True(t, ok)
	// Center at (2,0) with yaw 0: the yaw-0 plate sits at (2-r, 0) and
	// faces the shooter at the origin.
	assert.InDelta(t, 2.0-rep.Radius1, p.Position.X, 1e-9)
	assert.InDelta(t, 0, p.Position.Y, 1e-9)
}

func TestFacingPlateRequiresReconstruction(t *testing.T) {
	t.Parallel()
	_, ok := facingPlate(TrackingReport{Tracking: false})
	assert.False(t, ok)
}
