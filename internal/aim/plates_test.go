package aim

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconstructPlatesFourPlate(t *testing.T) {
	t.Parallel()
	rep := TrackingReport{
		Stamp:     time.Unix(100, 0),
		Tracking:  true,
		ID:        "3",
		ArmorsNum: 4,
		Position:  Vec3{X: 2, Y: 1, Z: 0.5},
		Yaw:       0.2,
		Radius1:   0.26,
		Radius2:   0.32,
		DZ:        -0.1,
	}

	plates := ReconstructPlates(rep)
	require.Len(t, plates, 4)

	for i, p := range plates {
		wantYaw := rep.Yaw + float64(i)*math.Pi/2
		assert.InDelta(t, wantYaw, p.Yaw, 1e-12, "plate %d yaw", i)

		radius, z := rep.Radius1, rep.Position.Z
		if i%2 == 1 {
			radius, z = rep.Radius2, rep.Position.Z+rep.DZ
		}
		assert.InDelta(t, rep.Position.X-radius*math.Cos(wantYaw), p.Position.X, 1e-12, "plate %d x", i)
		assert.InDelta(t, rep.Position.Y-radius*math.Sin(wantYaw), p.Position.Y, 1e-12, "plate %d y", i)
		assert.InDelta(t, z, p.Position.Z, 1e-12, "plate %d z", i)
	}
}

func TestReconstructPlatesOutpost(t *testing.T) {
	t.Parallel()
	rep := TrackingReport{
		Tracking:  true,
		ID:        OutpostID,
		ArmorsNum: 3,
		Position:  Vec3{X: 4, Y: -2, Z: 1.2},
		Yaw:       0.5,
		Radius1:   0.26,
		Radius2:   0.30, // ignored for three-plate targets
		DZ:        0.2,  // likewise
	}

	plates := ReconstructPlates(rep)
	require.Len(t, plates, 3)

	for i, p := range plates {
		wantYaw := rep.Yaw + float64(i)*2*math.Pi/3
		assert.InDelta(t, wantYaw, p.Yaw, 1e-12)
		// All three plates share one radius and height.
		dist := math.Hypot(p.Position.X-rep.Position.X, p.Position.Y-rep.Position.Y)
		assert.InDelta(t, rep.Radius1, dist, 1e-12)
		assert.Equal(t, rep.Position.Z, p.Position.Z)
	}
}

func TestReconstructPlatesRequiresTracking(t *testing.T) {
	t.Parallel()
	assert.Nil(t, ReconstructPlates(TrackingReport{Tracking: false, ArmorsNum: 4}))
	assert.Nil(t, ReconstructPlates(TrackingReport{Tracking: true, ArmorsNum: 0}))
}
