package aim

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrTimingAnomaly marks a batch whose timestamp does not advance past
// the previous accepted batch. The batch is dropped whole; the filter
// never runs on a non-positive step.
var ErrTimingAnomaly = errors.New("implausible batch timing")

// PipelineConfig holds the orchestrator's own knobs; tracker and solver
// carry theirs.
type PipelineConfig struct {
	// TargetFrame is the fixed world frame all detections are rewritten
	// into before filtering.
	TargetFrame string
	// HeightBound drops plates whose |z| exceeds it — transform or
	// detection glitches, not real targets.
	HeightBound float64
	// LostTimeThres is the coasting budget in seconds; the per-batch
	// lost threshold is derived from it and the observed dt.
	LostTimeThres float64
	// MaxDT clamps oversized steps after gaps in the detection stream.
	MaxDT float64
}

// DefaultPipelineConfig returns the reference tuning.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		TargetFrame:   "odom",
		HeightBound:   2.0,
		LostTimeThres: 0.3,
		MaxDT:         0.5,
	}
}

// GimbalSolver is the ballistic collaborator. Any failure is absorbed
// at the pipeline boundary and replaced with the neutral command.
type GimbalSolver interface {
	Solve(r TrackingReport, now time.Time) (GimbalCmd, error)
}

// TargetStore persists emitted reports and measurements. Optional;
// persistence failures are logged, never fatal.
type TargetStore interface {
	PersistReport(r TrackingReport) error
	PersistMeasurement(stamp time.Time, m Measurement) error
}

// BatchResult is everything one processed batch produces.
type BatchResult struct {
	Report      TrackingReport
	Measurement *Measurement
	Cmd         GimbalCmd
}

// Pipeline drives the tracker once per detection batch: frame
// rewriting, sanity filtering, lifecycle update, report emission and
// the solver handoff. It is strictly sequential; it exclusively owns
// the tracker, and callers must serialize batches into a single stream.
type Pipeline struct {
	cfg         PipelineConfig
	transformer Transformer
	tracker     *Tracker
	solver      GimbalSolver
	store       TargetStore

	lastStamp time.Time
	now       func() time.Time
}

// NewPipeline wires the orchestrator. store and solver may be nil.
func NewPipeline(cfg PipelineConfig, tr Transformer, tracker *Tracker, solver GimbalSolver, store TargetStore) *Pipeline {
	return &Pipeline{
		cfg:         cfg,
		transformer: tr,
		tracker:     tracker,
		solver:      solver,
		store:       store,
		now:         time.Now,
	}
}

// Tracker exposes the owned tracker for inspection. Callers must not
// mutate it concurrently with ProcessBatch.
func (p *Pipeline) Tracker() *Tracker { return p.tracker }

// ProcessBatch runs one batch through the full path. A transform
// failure or timing anomaly aborts the batch with the tracker state
// untouched; every other failure degrades to "not tracking"/"no fire".
func (p *Pipeline) ProcessBatch(batch DetectionBatch) (BatchResult, error) {
	transformed, err := p.rewriteFrames(batch)
	if err != nil {
		return BatchResult{}, err
	}
	p.filterImplausible(&transformed)

	var result BatchResult
	if p.tracker.State == StateLost {
		p.tracker.Init(&transformed)
		result.Report = p.tracker.Report(batch.Stamp, p.cfg.TargetFrame)
	} else {
		dt := batch.Stamp.Sub(p.lastStamp).Seconds()
		if dt <= 0 {
			return BatchResult{}, fmt.Errorf("%w: dt=%.6fs", ErrTimingAnomaly, dt)
		}
		if dt > p.cfg.MaxDT {
			opsf("[Pipeline] Clamping oversized step %.3fs to %.3fs", dt, p.cfg.MaxDT)
			dt = p.cfg.MaxDT
		}
		p.tracker.LostThres = lostThresFor(p.cfg.LostTimeThres, dt)
		p.tracker.Update(&transformed, dt)

		result.Report = p.tracker.Report(batch.Stamp, p.cfg.TargetFrame)
		result.Measurement = p.tracker.Measurement()
	}
	p.lastStamp = batch.Stamp

	result.Cmd = p.solve(result.Report)
	p.persist(batch.Stamp, result)
	return result, nil
}

// rewriteFrames maps every plate pose into the target frame. Any
// failure aborts the whole batch so the tracker never sees a partially
// transformed view.
func (p *Pipeline) rewriteFrames(batch DetectionBatch) (DetectionBatch, error) {
	out := DetectionBatch{Stamp: batch.Stamp, Armors: make([]Armor, 0, len(batch.Armors))}
	for _, a := range batch.Armors {
		pose, err := p.transformer.Transform(a.Pose, p.cfg.TargetFrame)
		if err != nil {
			return DetectionBatch{}, fmt.Errorf("transform plate %q: %w", a.ID, err)
		}
		a.Pose = pose
		out.Armors = append(out.Armors, a)
	}
	return out, nil
}

// filterImplausible drops plates outside the height sanity bound.
func (p *Pipeline) filterImplausible(batch *DetectionBatch) {
	kept := batch.Armors[:0]
	for _, a := range batch.Armors {
		if math.Abs(a.Pose.Z) > p.cfg.HeightBound {
			diagf("[Pipeline] Dropping plate %q at z=%.2f (bound %.2f)", a.ID, a.Pose.Z, p.cfg.HeightBound)
			continue
		}
		kept = append(kept, a)
	}
	batch.Armors = kept
}

func (p *Pipeline) solve(report TrackingReport) GimbalCmd {
	if !report.Tracking || p.solver == nil {
		return NeutralCmd()
	}
	cmd, err := p.solver.Solve(report, p.now())
	if err != nil {
		opsf("[Pipeline] Solver failed, substituting neutral command: %v", err)
		return NeutralCmd()
	}
	return cmd
}

func (p *Pipeline) persist(stamp time.Time, result BatchResult) {
	if p.store == nil {
		return
	}
	if err := p.store.PersistReport(result.Report); err != nil {
		opsf("[Pipeline] Failed to persist report: %v", err)
	}
	if result.Measurement != nil {
		if err := p.store.PersistMeasurement(stamp, *result.Measurement); err != nil {
			opsf("[Pipeline] Failed to persist measurement: %v", err)
		}
	}
}

// lostThresFor derives the coast budget in batches from the time budget
// and the observed step, never below one batch.
func lostThresFor(lostTimeThres, dt float64) int {
	thres := int(math.Ceil(lostTimeThres / dt))
	if thres < 1 {
		thres = 1
	}
	return thres
}
