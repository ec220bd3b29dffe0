package aim

import "math"

// Plate is one reconstructed plate slot of a tracked target.
type Plate struct {
	Position Vec3
	Yaw      float64
}

// ReconstructPlates expands a tracking report into the positions of all
// plate slots around the rotation axis. Four-plate targets alternate
// between the two radii and heights every 90° of yaw; three-plate
// targets share one radius and height.
func ReconstructPlates(r TrackingReport) []Plate {
	if !r.Tracking || r.ArmorsNum <= 0 {
		return nil
	}
	plates := make([]Plate, 0, r.ArmorsNum)
	currentPair := true
	for i := 0; i < r.ArmorsNum; i++ {
		yaw := r.Yaw + float64(i)*(2*math.Pi/float64(r.ArmorsNum))
		radius := r.Radius1
		z := r.Position.Z
		if r.ArmorsNum == 4 {
			if !currentPair {
				radius = r.Radius2
				z += r.DZ
			}
			currentPair = !currentPair
		}
		plates = append(plates, Plate{
			Position: Vec3{
				X: r.Position.X - radius*math.Cos(yaw),
				Y: r.Position.Y - radius*math.Sin(yaw),
				Z: z,
			},
			Yaw: yaw,
		})
	}
	return plates
}
