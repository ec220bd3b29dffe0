package aim

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// LifecycleState is the tracker's position in the track lifecycle.
type LifecycleState string

const (
	// StateLost means no live track; the next batch seeds a new one.
	StateLost LifecycleState = "lost"
	// StateDetecting is a provisional track awaiting confirmation.
	StateDetecting LifecycleState = "detecting"
	// StateTracking is a confirmed track with a fresh observation.
	StateTracking LifecycleState = "tracking"
	// StateTempLost is a confirmed track coasting on predictions.
	StateTempLost LifecycleState = "temp_lost"
)

// TrackerConfig holds matching gates, lifecycle thresholds and the
// noise parameters handed to the filter.
type TrackerConfig struct {
	MaxMatchDistance float64 // plate-implied center distance gate (m)
	MaxMatchYawDiff  float64 // yaw gate (rad); beyond it a same-ID plate is a pair switch
	TrackingThres    int     // consecutive matches to promote DETECTING → TRACKING
	InitialRadius    float64 // seed for r before the filter has observed any rotation
	MinRadius        float64 // clamp bounds keeping r physically plausible
	MaxRadius        float64
	ProcessNoise     ProcessNoiseSigmas
	MeasurementNoise MeasurementNoiseCoeffs
}

// DefaultTrackerConfig returns the tuning used on the reference turret.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MaxMatchDistance: 0.2,
		MaxMatchYawDiff:  1.0,
		TrackingThres:    5,
		InitialRadius:    0.26,
		MinRadius:        0.12,
		MaxRadius:        0.4,
		ProcessNoise:     ProcessNoiseSigmas{X: 20, Y: 20, Z: 20, Yaw: 100, R: 800},
		MeasurementNoise: MeasurementNoiseCoeffs{X: 0.05, Y: 0.05, Z: 0.05, Yaw: 0.02},
	}
}

// Tracker reconciles discrete plate detections with the filter's single
// center estimate and runs the track lifecycle. It exclusively owns its
// EKF instance and all plate-pair bookkeeping; the pipeline is its only
// caller.
type Tracker struct {
	Config TrackerConfig
	State  LifecycleState

	// LostThres is set per batch by the pipeline: the coast budget
	// adapts to the current detection rate.
	LostThres int

	TrackedID        string
	TrackedArmorsNum int

	// AnotherR and DZ describe the alternating plate pair of four-plate
	// targets. The filter radius always tracks the pair currently
	// supplying observations.
	AnotherR float64
	DZ       float64

	DetectCount int
	LostCount   int

	ekf *EKF
	// lastYaw is the unwrapped yaw of the last accepted observation;
	// new observations are unwrapped against it so the filter never
	// sees a ±2π step.
	lastYaw     float64
	measurement *mat.VecDense
}

// NewTracker creates a tracker in the LOST state.
func NewTracker(cfg TrackerConfig) *Tracker {
	return &Tracker{Config: cfg, State: StateLost, LostThres: 1}
}

func (t *Tracker) model() Model {
	cfg := t.Config
	return Model{
		PredictState:    PredictState,
		PredictJacobian: PredictJacobian,
		Observe:         Observe,
		ObserveJacobian: ObserveJacobian,
		ProcessNoise: func(dt float64) *mat.Dense {
			return ProcessNoise(dt, cfg.ProcessNoise)
		},
		MeasurementNoise: func(z mat.Vector) *mat.Dense {
			return MeasurementNoise(z, cfg.MeasurementNoise)
		},
	}
}

// Init seeds a new track from the best plate in the batch and moves to
// DETECTING. No-op on an empty batch.
func (t *Tracker) Init(batch *DetectionBatch) {
	if len(batch.Armors) == 0 {
		return
	}
	best := batch.Armors[0]
	for _, a := range batch.Armors[1:] {
		if a.DistanceToImageCenter < best.DistanceToImageCenter {
			best = a
		}
	}

	t.seedFilter(best)
	t.TrackedID = best.ID
	t.TrackedArmorsNum = armorsNumFor(best.ID)
	t.State = StateDetecting
	t.DetectCount = 0
	t.LostCount = 0
	diagf("[Tracker] Init: seeded target %q (%d plates) from plate at (%.2f, %.2f, %.2f)",
		best.ID, t.TrackedArmorsNum, best.Pose.X, best.Pose.Y, best.Pose.Z)
}

// seedFilter solves the observation function for the center at the
// configured default radius and resets the filter there.
func (t *Tracker) seedFilter(a Armor) {
	yaw := a.Pose.Yaw
	r := t.Config.InitialRadius
	x0 := mat.NewVecDense(stateDim, nil)
	x0.SetVec(ixc, a.Pose.X+r*math.Cos(yaw))
	x0.SetVec(iyc, a.Pose.Y+r*math.Sin(yaw))
	x0.SetVec(iza, a.Pose.Z)
	x0.SetVec(iyaw, yaw)
	x0.SetVec(ir, r)

	p0 := identity(stateDim)
	if t.ekf == nil {
		t.ekf = NewEKF(t.model(), x0, p0)
	} else {
		t.ekf.SetState(x0, p0)
	}

	t.lastYaw = yaw
	t.AnotherR = r
	t.DZ = 0
	t.measurement = mat.NewVecDense(measDim, []float64{a.Pose.X, a.Pose.Y, a.Pose.Z, yaw})
}

// Update drives one lifecycle step: predict, match, correct, transition.
// dt must already be validated by the caller. Must not be called in the
// LOST state.
func (t *Tracker) Update(batch *DetectionBatch, dt float64) {
	pred := t.ekf.Predict(dt)

	matched := false
	if len(batch.Armors) > 0 {
		if a, ok := t.bestMatch(batch.Armors, pred); ok {
			z := t.observationFor(a)
			if _, err := t.ekf.Update(z); err != nil {
				// Keep the predicted state and let the normal no-match
				// path push the lifecycle toward LOST.
				opsf("[Tracker] Rejecting observation: %v", err)
			} else {
				matched = true
				t.measurement = z
				t.lastYaw = z.AtVec(3)
			}
		} else if a, ok := t.pairSwitchCandidate(batch.Armors, pred); ok {
			t.handlePlateSwitch(a)
			matched = true
		} else {
			tracef("[Tracker] No plate matched among %d detections", len(batch.Armors))
		}
	}

	t.clampRadius()

	next, detect, lost := transition(t.State, matched, t.DetectCount, t.LostCount,
		t.Config.TrackingThres, t.LostThres)
	if next != t.State {
		diagf("[Tracker] %s -> %s (detect=%d lost=%d)", t.State, next, detect, lost)
	}
	t.State, t.DetectCount, t.LostCount = next, detect, lost
	if t.State == StateLost {
		t.measurement = nil
	}
}

// transition is the pure lifecycle step: given the current state, the
// match outcome and the counters it returns the next state and updated
// counters. Filter side effects stay in Update.
func transition(s LifecycleState, matched bool, detect, lost, trackingThres, lostThres int) (LifecycleState, int, int) {
	switch s {
	case StateDetecting:
		if !matched {
			return StateLost, 0, 0
		}
		detect++
		if detect >= trackingThres {
			return StateTracking, 0, 0
		}
		return StateDetecting, detect, lost

	case StateTracking:
		if matched {
			return StateTracking, detect, 0
		}
		return StateTempLost, detect, lost + 1

	case StateTempLost:
		if matched {
			return StateTracking, detect, 0
		}
		lost++
		if lost >= lostThres {
			return StateLost, 0, 0
		}
		return StateTempLost, detect, lost

	default:
		return StateLost, 0, 0
	}
}

// bestMatch returns the tracked-ID plate with minimal combined
// center-distance/yaw cost, if any plate passes both gates. The plate's
// implied center uses the current filter radius; all plates of the
// rigid body carry redundant center information so one match per batch
// is enough.
func (t *Tracker) bestMatch(armors []Armor, pred *mat.VecDense) (Armor, bool) {
	cx, cy := pred.AtVec(ixc), pred.AtVec(iyc)
	predYaw := pred.AtVec(iyaw)
	r := pred.AtVec(ir)

	var best Armor
	bestCost := math.Inf(1)
	found := false
	for _, a := range armors {
		if a.ID != t.TrackedID {
			continue
		}
		impliedX := a.Pose.X + r*math.Cos(a.Pose.Yaw)
		impliedY := a.Pose.Y + r*math.Sin(a.Pose.Yaw)
		dist := math.Hypot(impliedX-cx, impliedY-cy)
		yawDiff := math.Abs(ShortestAngularDistance(WrapYaw(predYaw), a.Pose.Yaw))
		if dist > t.Config.MaxMatchDistance || yawDiff > t.Config.MaxMatchYawDiff {
			continue
		}
		cost := dist/t.Config.MaxMatchDistance + yawDiff/t.Config.MaxMatchYawDiff
		if cost < bestCost {
			bestCost = cost
			best = a
			found = true
		}
	}
	return best, found
}

// pairSwitchCandidate detects the rotating body presenting the next
// plate: exactly one plate with the tracked ID, outside the yaw gate.
// The yaw gate doubles as the ±45° boundary policy — a same-ID plate
// failing it is treated as the other pair, and positional matching has
// already had first refusal.
func (t *Tracker) pairSwitchCandidate(armors []Armor, pred *mat.VecDense) (Armor, bool) {
	var candidate Armor
	count := 0
	for _, a := range armors {
		if a.ID == t.TrackedID {
			candidate = a
			count++
		}
	}
	if count != 1 {
		return Armor{}, false
	}
	yawDiff := math.Abs(ShortestAngularDistance(WrapYaw(pred.AtVec(iyaw)), candidate.Pose.Yaw))
	if yawDiff <= t.Config.MaxMatchYawDiff {
		return Armor{}, false
	}
	return candidate, true
}

// handlePlateSwitch re-anchors the filter on the newly presented plate.
// Four-plate targets alternate between two radii and two heights every
// 90° of yaw, so the radii are swapped and the height delta recorded
// without running a Kalman update. Covariance is kept.
func (t *Tracker) handlePlateSwitch(a Armor) {
	x := mat.VecDenseCopyOf(t.ekf.State())
	yaw := t.lastYaw + ShortestAngularDistance(WrapYaw(t.lastYaw), a.Pose.Yaw)
	x.SetVec(iyaw, yaw)

	t.TrackedArmorsNum = armorsNumFor(a.ID)
	if t.TrackedArmorsNum == 4 {
		t.DZ = x.AtVec(iza) - a.Pose.Z
		x.SetVec(iza, a.Pose.Z)
		r, other := x.AtVec(ir), t.AnotherR
		x.SetVec(ir, other)
		t.AnotherR = r
	}

	// If the plate implied by the swapped state is still far from the
	// detection, the track has genuinely moved: take the plate as the
	// new anchor and zero the velocities.
	infer := Observe(x)
	dx := a.Pose.X - infer.AtVec(0)
	dy := a.Pose.Y - infer.AtVec(1)
	if math.Hypot(dx, dy) > t.Config.MaxMatchDistance {
		r := x.AtVec(ir)
		x.SetVec(ixc, a.Pose.X+r*math.Cos(yaw))
		x.SetVec(ivxc, 0)
		x.SetVec(iyc, a.Pose.Y+r*math.Sin(yaw))
		x.SetVec(ivyc, 0)
		x.SetVec(iza, a.Pose.Z)
		x.SetVec(ivza, 0)
		diagf("[Tracker] Plate switch moved beyond match gate; re-anchored center")
	}

	t.ekf.SetState(x, t.ekf.Covariance())
	t.lastYaw = yaw
	t.measurement = mat.NewVecDense(measDim, []float64{a.Pose.X, a.Pose.Y, a.Pose.Z, yaw})
	tracef("[Tracker] Plate switch: r=%.3f another_r=%.3f dz=%.3f", x.AtVec(ir), t.AnotherR, t.DZ)
}

// clampRadius keeps the estimated radius inside physical bounds. The
// radius is weakly observable while the target barely rotates and can
// wander otherwise.
func (t *Tracker) clampRadius() {
	if t.ekf == nil {
		return
	}
	x := t.ekf.State()
	r := x.AtVec(ir)
	clamped := math.Min(math.Max(r, t.Config.MinRadius), t.Config.MaxRadius)
	if clamped != r {
		x.SetVec(ir, clamped)
	}
}

// Report renders the current fused estimate. Tracking is true only for
// confirmed tracks (TRACKING or TEMP_LOST).
func (t *Tracker) Report(stamp time.Time, frame string) TrackingReport {
	rep := TrackingReport{Stamp: stamp, Frame: frame}
	if t.State != StateTracking && t.State != StateTempLost {
		return rep
	}
	x := t.ekf.State()
	rep.Tracking = true
	rep.ID = t.TrackedID
	rep.ArmorsNum = t.TrackedArmorsNum
	rep.Position = Vec3{X: x.AtVec(ixc), Y: x.AtVec(iyc), Z: x.AtVec(iza)}
	rep.Velocity = Vec3{X: x.AtVec(ivxc), Y: x.AtVec(ivyc), Z: x.AtVec(ivza)}
	rep.Yaw = x.AtVec(iyaw)
	rep.VYaw = x.AtVec(ivyaw)
	rep.Radius1 = x.AtVec(ir)
	rep.Radius2 = t.AnotherR
	rep.DZ = t.DZ
	return rep
}

// Measurement returns the latest accepted observation, or nil when the
// tracker holds no live filter.
func (t *Tracker) Measurement() *Measurement {
	if t.measurement == nil {
		return nil
	}
	return &Measurement{
		X:   t.measurement.AtVec(0),
		Y:   t.measurement.AtVec(1),
		Z:   t.measurement.AtVec(2),
		Yaw: t.measurement.AtVec(3),
	}
}

// observationFor builds the 4-vector for a matched plate, unwrapping
// yaw against the last accepted observation.
func (t *Tracker) observationFor(a Armor) *mat.VecDense {
	yaw := t.lastYaw + ShortestAngularDistance(WrapYaw(t.lastYaw), a.Pose.Yaw)
	return mat.NewVecDense(measDim, []float64{a.Pose.X, a.Pose.Y, a.Pose.Z, yaw})
}

func armorsNumFor(id string) int {
	if id == OutpostID {
		return 3
	}
	return 4
}
