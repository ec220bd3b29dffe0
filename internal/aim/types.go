package aim

import "time"

// Target IDs carried by the upstream detector. The outpost is the only
// three-plate target; everything else carries four plates.
const OutpostID = "outpost"

// Vec3 is a point or vector in a named world frame.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Pose is a plate position plus facing angle in some coordinate frame.
// Yaw is the direction the plate surface faces, measured about the
// vertical axis.
type Pose struct {
	Frame string  `json:"frame"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Z     float64 `json:"z"`
	Yaw   float64 `json:"yaw"`
}

// Armor is a single plate detection produced upstream.
type Armor struct {
	// ID names the target the plate belongs to ("1".."5", "outpost", ...).
	ID string `json:"id"`
	// Type is the physical plate size class ("small" or "large").
	Type string `json:"type"`
	// DistanceToImageCenter ranks plates by detection quality: the
	// detector reports how far the plate sits from the optical center.
	DistanceToImageCenter float64 `json:"distance_to_image_center"`
	Pose                  Pose    `json:"pose"`
}

// DetectionBatch is one frame's worth of plate detections sharing a
// common timestamp. Poses arrive in the sensor frame and are rewritten
// into the target frame by the pipeline before they reach the tracker.
type DetectionBatch struct {
	Stamp  time.Time `json:"stamp"`
	Armors []Armor   `json:"armors"`
}

// TrackingReport is the fused target state emitted once per processed
// batch. When Tracking is false only Stamp and Frame are meaningful.
type TrackingReport struct {
	Stamp     time.Time `json:"stamp"`
	Frame     string    `json:"frame"`
	Tracking  bool      `json:"tracking"`
	ID        string    `json:"id,omitempty"`
	ArmorsNum int       `json:"armors_num,omitempty"`
	Position  Vec3      `json:"position"`
	Velocity  Vec3      `json:"velocity"`
	Yaw       float64   `json:"yaw"`
	VYaw      float64   `json:"v_yaw"`
	// Radius1 is the rotation radius of the plate pair currently feeding
	// the filter; Radius2 the alternating pair (four-plate targets only).
	Radius1 float64 `json:"radius_1"`
	Radius2 float64 `json:"radius_2"`
	// DZ is the height offset of the alternating plate pair.
	DZ float64 `json:"dz"`
}

// Measurement is the most recent accepted observation, republished for
// diagnostics whenever the tracker holds a live filter.
type Measurement struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Z   float64 `json:"z"`
	Yaw float64 `json:"yaw"`
}

// GimbalCmd is the aim correction produced by the solver. Angle diffs
// are in degrees relative to the current aim direction. Distance -1
// marks the neutral no-fire command.
type GimbalCmd struct {
	YawDiff    float64 `json:"yaw_diff"`
	PitchDiff  float64 `json:"pitch_diff"`
	Distance   float64 `json:"distance"`
	FireAdvice bool    `json:"fire_advice"`
}

// NeutralCmd is substituted whenever the solver fails or there is no
// target to engage.
func NeutralCmd() GimbalCmd {
	return GimbalCmd{YawDiff: 0, PitchDiff: 0, Distance: -1, FireAdvice: false}
}
