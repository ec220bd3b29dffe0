package aim

import (
	"errors"
	"fmt"
	"math"
)

// ErrTransform marks coordinate-frame lookup failures. A transform
// failure aborts the whole batch with the tracker untouched.
var ErrTransform = errors.New("frame transform unavailable")

// Transformer rewrites a pose into a target frame. Implementations may
// block for a bounded time waiting for frame availability.
type Transformer interface {
	Transform(p Pose, targetFrame string) (Pose, error)
}

// RigidTransform is a planar rotation about the vertical axis plus a
// translation, enough to relate a fixed sensor mount to the world
// frame.
type RigidTransform struct {
	TX  float64 `json:"tx"`
	TY  float64 `json:"ty"`
	TZ  float64 `json:"tz"`
	Yaw float64 `json:"yaw"`
}

// Apply maps a pose through the transform.
func (rt RigidTransform) Apply(p Pose, targetFrame string) Pose {
	sin, cos := math.Sin(rt.Yaw), math.Cos(rt.Yaw)
	return Pose{
		Frame: targetFrame,
		X:     cos*p.X - sin*p.Y + rt.TX,
		Y:     sin*p.X + cos*p.Y + rt.TY,
		Z:     p.Z + rt.TZ,
		Yaw:   p.Yaw + rt.Yaw,
	}
}

// StaticTransformer resolves transforms from a fixed table keyed by
// "source->target". Same-frame requests are the identity; anything not
// in the table is an ErrTransform.
type StaticTransformer struct {
	edges map[string]RigidTransform
}

// NewStaticTransformer builds a transformer from the configured edge
// table.
func NewStaticTransformer(edges map[string]RigidTransform) *StaticTransformer {
	if edges == nil {
		edges = map[string]RigidTransform{}
	}
	return &StaticTransformer{edges: edges}
}

// Transform implements Transformer.
func (s *StaticTransformer) Transform(p Pose, targetFrame string) (Pose, error) {
	if p.Frame == targetFrame {
		out := p
		out.Frame = targetFrame
		return out, nil
	}
	key := p.Frame + "->" + targetFrame
	rt, ok := s.edges[key]
	if !ok {
		return Pose{}, fmt.Errorf("%w: no edge %q", ErrTransform, key)
	}
	return rt.Apply(p, targetFrame), nil
}
