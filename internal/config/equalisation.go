package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/equalisation/internal/edge"
	"github.com/banshee-data/equalisation/internal/geometry"
	"github.com/banshee-data/equalisation/internal/population"
)

// DefaultConfigPath is the path to the canonical equalisation defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/equalisation.defaults.json"

// EqualisationConfig holds the tuning parameters of an equalisation run.
// Every field is optional; the Get* accessors supply defaults for fields
// the JSON file leaves out.
type EqualisationConfig struct {
	// Edge extraction
	EdgeThreshold *int  `json:"edge_threshold,omitempty"`
	SliceRows     *int  `json:"slice_rows,omitempty"`
	ForwardScan   *bool `json:"forward_scan,omitempty"`
	StepMajor     *bool `json:"step_major,omitempty"` // false means [height, width, steps] volumes

	// Targets
	EqTarget      *float64 `json:"eq_target,omitempty"`
	Threshold0Max *int     `json:"threshold0_max,omitempty"`
	SigmaSlope    *float64 `json:"sigma_slope,omitempty"`
	TailBudget    *float64 `json:"tail_budget,omitempty"`
	DACScale      *float64 `json:"dac_scale,omitempty"`
	OrValue       *int     `json:"or_value,omitempty"`

	// Detector layout
	ChipRows    *int   `json:"chip_rows,omitempty"`
	ChipColumns *int   `json:"chip_columns,omitempty"`
	ChipPresent []bool `json:"chip_present,omitempty"` // row-major; empty means all present

	// Gaussian fitting
	FitMaxIterations *int    `json:"fit_max_iterations,omitempty"`
	FitRuntime       *string `json:"fit_runtime,omitempty"` // duration string like "5s"
	FitSeed          *uint64 `json:"fit_seed,omitempty"`
	FitWorkers       *int    `json:"fit_workers,omitempty"`

	// Pipeline
	NumberOfTweaks       *int      `json:"number_of_tweaks,omitempty"`
	ThresholdNAxisValues []float64 `json:"threshold_n_axis_values,omitempty"`
	DACPixelAxisValues   []float64 `json:"dac_pixel_axis_values,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyEqualisationConfig returns a config with every field unset.
func EmptyEqualisationConfig() *EqualisationConfig {
	return &EqualisationConfig{}
}

// DefaultEqualisationConfig returns a config with every field set to the
// value its accessor falls back to.
func DefaultEqualisationConfig() *EqualisationConfig {
	e := EmptyEqualisationConfig()
	return &EqualisationConfig{
		EdgeThreshold:        ptrInt(e.GetEdgeThreshold()),
		SliceRows:            ptrInt(e.GetSliceRows()),
		ForwardScan:          ptrBool(e.GetForwardScan()),
		StepMajor:            ptrBool(e.Layout() == edge.StepMajor),
		EqTarget:             ptrFloat64(e.GetEqTarget()),
		Threshold0Max:        ptrInt(e.GetThreshold0Max()),
		SigmaSlope:           ptrFloat64(e.GetSigmaSlope()),
		TailBudget:           ptrFloat64(e.GetTailBudget()),
		DACScale:             ptrFloat64(e.GetDACScale()),
		OrValue:              ptrInt(int(e.GetOrValue())),
		ChipRows:             ptrInt(e.GetChipRows()),
		ChipColumns:          ptrInt(e.GetChipColumns()),
		FitMaxIterations:     ptrInt(e.GetFitMaxIterations()),
		FitRuntime:           ptrString(e.GetFitRuntime().String()),
		FitSeed:              ptrUint64(e.GetFitSeed()),
		FitWorkers:           ptrInt(e.GetFitWorkers()),
		NumberOfTweaks:       ptrInt(e.GetNumberOfTweaks()),
		ThresholdNAxisValues: e.GetThresholdNAxisValues(),
		DACPixelAxisValues:   e.GetDACPixelAxisValues(),
	}
}

// LoadEqualisationConfig loads an EqualisationConfig from a JSON file.
// The file must have a .json extension and be at most 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadEqualisationConfig(path string) (*EqualisationConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyEqualisationConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath.
// It searches the current directory and its parents up to the repository
// root. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *EqualisationConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,       // from cmd/
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadEqualisationConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are usable.
func (c *EqualisationConfig) Validate() error {
	if c.EdgeThreshold != nil && *c.EdgeThreshold < 0 {
		return fmt.Errorf("edge_threshold must be non-negative, got %d", *c.EdgeThreshold)
	}
	if c.SliceRows != nil && *c.SliceRows <= 0 {
		return fmt.Errorf("slice_rows must be positive, got %d", *c.SliceRows)
	}
	if c.Threshold0Max != nil {
		if *c.Threshold0Max < int(edge.MinValid) || *c.Threshold0Max > int(edge.MaxValid) {
			return fmt.Errorf("threshold0_max must be between %d and %d, got %d",
				edge.MinValid, edge.MaxValid, *c.Threshold0Max)
		}
	}
	if c.TailBudget != nil && *c.TailBudget < 0 {
		return fmt.Errorf("tail_budget must be non-negative, got %f", *c.TailBudget)
	}
	if c.DACScale != nil && *c.DACScale <= 0 {
		return fmt.Errorf("dac_scale must be positive, got %f", *c.DACScale)
	}
	if c.OrValue != nil && (*c.OrValue < 0 || *c.OrValue > 31) {
		return fmt.Errorf("or_value must be between 0 and 31, got %d", *c.OrValue)
	}
	if c.ChipRows != nil && (*c.ChipRows < 1 || *c.ChipRows > geometry.MaxChipRows) {
		return fmt.Errorf("chip_rows must be between 1 and %d, got %d", geometry.MaxChipRows, *c.ChipRows)
	}
	if c.ChipColumns != nil && *c.ChipColumns < 1 {
		return fmt.Errorf("chip_columns must be positive, got %d", *c.ChipColumns)
	}
	if n := len(c.ChipPresent); n != 0 && n != c.GetChipRows()*c.GetChipColumns() {
		return fmt.Errorf("chip_present has %d flags for a %dx%d grid", n, c.GetChipRows(), c.GetChipColumns())
	}
	if c.FitMaxIterations != nil && *c.FitMaxIterations <= 0 {
		return fmt.Errorf("fit_max_iterations must be positive, got %d", *c.FitMaxIterations)
	}
	if c.FitRuntime != nil && *c.FitRuntime != "" {
		if _, err := time.ParseDuration(*c.FitRuntime); err != nil {
			return fmt.Errorf("invalid fit_runtime '%s': %w", *c.FitRuntime, err)
		}
	}
	if c.FitWorkers != nil && *c.FitWorkers < 1 {
		return fmt.Errorf("fit_workers must be at least 1, got %d", *c.FitWorkers)
	}
	if c.NumberOfTweaks != nil && *c.NumberOfTweaks < 0 {
		return fmt.Errorf("number_of_tweaks must be non-negative, got %d", *c.NumberOfTweaks)
	}
	// One value each for the lower and upper response scans.
	if c.ThresholdNAxisValues != nil && len(c.ThresholdNAxisValues) != 2 {
		return fmt.Errorf("threshold_n_axis_values needs exactly 2 values, got %d", len(c.ThresholdNAxisValues))
	}
	if c.DACPixelAxisValues != nil && len(c.DACPixelAxisValues) != 2 {
		return fmt.Errorf("dac_pixel_axis_values needs exactly 2 values, got %d", len(c.DACPixelAxisValues))
	}
	return nil
}

// GetEdgeThreshold returns the edge_threshold value or the default.
func (c *EqualisationConfig) GetEdgeThreshold() int {
	if c.EdgeThreshold == nil {
		return 10
	}
	return *c.EdgeThreshold
}

// GetSliceRows returns the slice_rows value or the default.
func (c *EqualisationConfig) GetSliceRows() int {
	if c.SliceRows == nil {
		return edge.DefaultSliceRows
	}
	return *c.SliceRows
}

// GetForwardScan returns the forward_scan value or the default.
func (c *EqualisationConfig) GetForwardScan() bool {
	if c.ForwardScan == nil {
		return true
	}
	return *c.ForwardScan
}

// Layout returns the scan volume layout selected by step_major.
func (c *EqualisationConfig) Layout() edge.Layout {
	if c.StepMajor != nil && !*c.StepMajor {
		return edge.StepMinor
	}
	return edge.StepMajor
}

// Extractor builds an edge.Extractor from the edge extraction settings.
func (c *EqualisationConfig) Extractor() edge.Extractor {
	return edge.Extractor{
		Threshold: c.GetEdgeThreshold(),
		Forward:   c.GetForwardScan(),
		Layout:    c.Layout(),
		SliceRows: c.GetSliceRows(),
	}
}

// GetEqTarget returns the eq_target value or the default.
func (c *EqualisationConfig) GetEqTarget() float64 {
	if c.EqTarget == nil {
		return 10
	}
	return *c.EqTarget
}

// GetThreshold0Max returns the threshold0_max value or the default.
func (c *EqualisationConfig) GetThreshold0Max() int {
	if c.Threshold0Max == nil {
		return int(edge.MaxValid)
	}
	return *c.Threshold0Max
}

// GetSigmaSlope returns the sigma_slope value or the default.
func (c *EqualisationConfig) GetSigmaSlope() float64 {
	if c.SigmaSlope == nil {
		return 2.0
	}
	return *c.SigmaSlope
}

// GetTailBudget returns the tail_budget value or the default.
func (c *EqualisationConfig) GetTailBudget() float64 {
	if c.TailBudget == nil {
		return 100
	}
	return *c.TailBudget
}

// GetDACScale returns the dac_scale value or the default.
func (c *EqualisationConfig) GetDACScale() float64 {
	if c.DACScale == nil {
		return 1.0
	}
	return *c.DACScale
}

// GetOrValue returns the or_value value or the default.
func (c *EqualisationConfig) GetOrValue() int16 {
	if c.OrValue == nil {
		return 15
	}
	return int16(*c.OrValue)
}

// GetChipRows returns the chip_rows value or the default.
func (c *EqualisationConfig) GetChipRows() int {
	if c.ChipRows == nil {
		return geometry.MaxChipRows
	}
	return *c.ChipRows
}

// GetChipColumns returns the chip_columns value or the default.
func (c *EqualisationConfig) GetChipColumns() int {
	if c.ChipColumns == nil {
		return 8
	}
	return *c.ChipColumns
}

// ChipGrid builds the detector layout from chip_rows, chip_columns and
// chip_present.
func (c *EqualisationConfig) ChipGrid() (*geometry.ChipGrid, error) {
	if len(c.ChipPresent) == 0 {
		return geometry.FullChipGrid(c.GetChipRows(), c.GetChipColumns())
	}
	return geometry.NewChipGrid(c.GetChipRows(), c.GetChipColumns(), c.ChipPresent)
}

// GetFitMaxIterations returns the fit_max_iterations value or the default.
func (c *EqualisationConfig) GetFitMaxIterations() int {
	if c.FitMaxIterations == nil {
		return population.DefaultFitOptions().MaxIterations
	}
	return *c.FitMaxIterations
}

// GetFitRuntime parses and returns fit_runtime as a time.Duration.
func (c *EqualisationConfig) GetFitRuntime() time.Duration {
	def := population.DefaultFitOptions().Runtime
	if c.FitRuntime == nil || *c.FitRuntime == "" {
		return def
	}
	d, err := time.ParseDuration(*c.FitRuntime)
	if err != nil {
		return def // default on parse error
	}
	return d
}

// GetFitSeed returns the fit_seed value or the default.
func (c *EqualisationConfig) GetFitSeed() uint64 {
	if c.FitSeed == nil {
		return population.DefaultFitOptions().Seed
	}
	return *c.FitSeed
}

// FitOptions returns the Gaussian fit budget.
func (c *EqualisationConfig) FitOptions() population.FitOptions {
	return population.FitOptions{
		MaxIterations: c.GetFitMaxIterations(),
		Runtime:       c.GetFitRuntime(),
		Seed:          c.GetFitSeed(),
	}
}

// GetFitWorkers returns the fit_workers value or the default.
func (c *EqualisationConfig) GetFitWorkers() int {
	if c.FitWorkers == nil {
		return 4
	}
	return *c.FitWorkers
}

// GetNumberOfTweaks returns the number_of_tweaks value or the default.
func (c *EqualisationConfig) GetNumberOfTweaks() int {
	if c.NumberOfTweaks == nil {
		return 3
	}
	return *c.NumberOfTweaks
}

// GetThresholdNAxisValues returns the threshold-N settings of the lower and
// upper threshold response scans.
func (c *EqualisationConfig) GetThresholdNAxisValues() []float64 {
	if len(c.ThresholdNAxisValues) == 0 {
		return []float64{25, 45}
	}
	return append([]float64(nil), c.ThresholdNAxisValues...)
}

// GetDACPixelAxisValues returns the DAC pixel settings of the low and high
// DAC response scans.
func (c *EqualisationConfig) GetDACPixelAxisValues() []float64 {
	if len(c.DACPixelAxisValues) == 0 {
		return []float64{40, 65}
	}
	return append([]float64(nil), c.DACPixelAxisValues...)
}
