package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/banshee-data/turret.tracker/internal/aim"
)

// DefaultConfigPath is the path to the canonical tuning defaults file,
// the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root tuning document. All fields are pointers so
// partial configs are safe: fields omitted from the JSON keep their
// defaults via the accessors.
type TuningConfig struct {
	// Tracker params
	MaxMatchDistance *float64 `json:"max_match_distance,omitempty"`
	MaxMatchYawDiff  *float64 `json:"max_match_yaw_diff,omitempty"`
	TrackingThres    *int     `json:"tracking_thres,omitempty"`
	LostTimeThres    *float64 `json:"lost_time_thres,omitempty"`
	InitialRadius    *float64 `json:"initial_radius,omitempty"`
	MinRadius        *float64 `json:"min_radius,omitempty"`
	MaxRadius        *float64 `json:"max_radius,omitempty"`

	// EKF process noise variances (white-noise acceleration, per axis)
	Sigma2QX   *float64 `json:"sigma2_q_x,omitempty"`
	Sigma2QY   *float64 `json:"sigma2_q_y,omitempty"`
	Sigma2QZ   *float64 `json:"sigma2_q_z,omitempty"`
	Sigma2QYaw *float64 `json:"sigma2_q_yaw,omitempty"`
	Sigma2QR   *float64 `json:"sigma2_q_r,omitempty"`

	// EKF measurement noise coefficients
	RX   *float64 `json:"r_x,omitempty"`
	RY   *float64 `json:"r_y,omitempty"`
	RZ   *float64 `json:"r_z,omitempty"`
	RYaw *float64 `json:"r_yaw,omitempty"`

	// Pipeline params
	TargetFrame *string  `json:"target_frame,omitempty"`
	HeightBound *float64 `json:"height_bound,omitempty"`
	MaxDT       *float64 `json:"max_dt,omitempty"`

	// Solver params
	BulletSpeed      *float64 `json:"bullet_speed,omitempty"`
	Gravity          *float64 `json:"gravity,omitempty"`
	AirResistanceK   *float64 `json:"air_resistance_k,omitempty"`
	ControllerDelay  *float64 `json:"controller_delay,omitempty"`
	FireYawThreshold *float64 `json:"fire_yaw_threshold,omitempty"`

	// Static frame transforms, keyed "source->target".
	Transforms map[string]aim.RigidTransform `json:"transforms,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields unset.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The path must
// end in .json and stay under the size cap.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults, searching from
// the current directory up through common parents. Panics when the
// file cannot be found; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/<pkg>/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that configured values are usable.
func (c *TuningConfig) Validate() error {
	positive := map[string]*float64{
		"max_match_distance": c.MaxMatchDistance,
		"max_match_yaw_diff": c.MaxMatchYawDiff,
		"lost_time_thres":    c.LostTimeThres,
		"initial_radius":     c.InitialRadius,
		"height_bound":       c.HeightBound,
		"max_dt":             c.MaxDT,
		"bullet_speed":       c.BulletSpeed,
	}
	for name, v := range positive {
		if v != nil && (*v <= 0 || math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return fmt.Errorf("%s must be positive and finite, got %v", name, *v)
		}
	}
	if c.TrackingThres != nil && *c.TrackingThres < 1 {
		return fmt.Errorf("tracking_thres must be at least 1, got %d", *c.TrackingThres)
	}
	if c.MinRadius != nil && c.MaxRadius != nil && *c.MinRadius > *c.MaxRadius {
		return fmt.Errorf("min_radius %v exceeds max_radius %v", *c.MinRadius, *c.MaxRadius)
	}
	return nil
}

// TrackerConfig assembles the tracker tuning from this document.
func (c *TuningConfig) TrackerConfig() aim.TrackerConfig {
	cfg := aim.DefaultTrackerConfig()
	setFloat(&cfg.MaxMatchDistance, c.MaxMatchDistance)
	setFloat(&cfg.MaxMatchYawDiff, c.MaxMatchYawDiff)
	setInt(&cfg.TrackingThres, c.TrackingThres)
	setFloat(&cfg.InitialRadius, c.InitialRadius)
	setFloat(&cfg.MinRadius, c.MinRadius)
	setFloat(&cfg.MaxRadius, c.MaxRadius)
	setFloat(&cfg.ProcessNoise.X, c.Sigma2QX)
	setFloat(&cfg.ProcessNoise.Y, c.Sigma2QY)
	setFloat(&cfg.ProcessNoise.Z, c.Sigma2QZ)
	setFloat(&cfg.ProcessNoise.Yaw, c.Sigma2QYaw)
	setFloat(&cfg.ProcessNoise.R, c.Sigma2QR)
	setFloat(&cfg.MeasurementNoise.X, c.RX)
	setFloat(&cfg.MeasurementNoise.Y, c.RY)
	setFloat(&cfg.MeasurementNoise.Z, c.RZ)
	setFloat(&cfg.MeasurementNoise.Yaw, c.RYaw)
	return cfg
}

// PipelineConfig assembles the pipeline tuning from this document.
func (c *TuningConfig) PipelineConfig() aim.PipelineConfig {
	cfg := aim.DefaultPipelineConfig()
	if c.TargetFrame != nil && *c.TargetFrame != "" {
		cfg.TargetFrame = *c.TargetFrame
	}
	setFloat(&cfg.HeightBound, c.HeightBound)
	setFloat(&cfg.LostTimeThres, c.LostTimeThres)
	setFloat(&cfg.MaxDT, c.MaxDT)
	return cfg
}

// SolverConfig assembles the solver tuning from this document.
func (c *TuningConfig) SolverConfig() aim.SolverConfig {
	cfg := aim.DefaultSolverConfig()
	setFloat(&cfg.BulletSpeed, c.BulletSpeed)
	setFloat(&cfg.Gravity, c.Gravity)
	setFloat(&cfg.AirResistanceK, c.AirResistanceK)
	setFloat(&cfg.ControllerDelay, c.ControllerDelay)
	setFloat(&cfg.FireYawThreshold, c.FireYawThreshold)
	return cfg
}

// GetTargetFrame returns the configured target frame or the default.
func (c *TuningConfig) GetTargetFrame() string {
	if c.TargetFrame == nil || *c.TargetFrame == "" {
		return aim.DefaultPipelineConfig().TargetFrame
	}
	return *c.TargetFrame
}

// GetTransforms returns the static transform table (possibly empty).
func (c *TuningConfig) GetTransforms() map[string]aim.RigidTransform {
	if c.Transforms == nil {
		return map[string]aim.RigidTransform{}
	}
	return c.Transforms
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}
