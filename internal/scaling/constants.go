// Package scaling derives the grid-system geometry constants from the two
// global unit parameters. Everything here is pure: the same UnitSettings
// always produce the same Constants.
package scaling

import (
	"errors"
	"fmt"
	"math"
)

// Reference grid: a 42 mm unit with 7 mm height steps. All grid constants are
// expressed against this reference and rescaled per axis.
const (
	ReferenceUnitSize   = 42.0
	ReferenceUnitHeight = 7.0
)

// Defaults used when no settings are configured.
const (
	DefaultUnitSize   = 25.0
	DefaultUnitHeight = 5.0
)

// ErrInvalidSettings is returned when a unit parameter is not strictly positive.
var ErrInvalidSettings = errors.New("invalid unit settings")

// UnitSettings are the two process-wide unit parameters.
type UnitSettings struct {
	UnitSize   float64 `json:"unit_size" yaml:"unit_size"`
	UnitHeight float64 `json:"unit_height" yaml:"unit_height"`
}

// DefaultSettings returns the default unit parameters.
func DefaultSettings() UnitSettings {
	return UnitSettings{UnitSize: DefaultUnitSize, UnitHeight: DefaultUnitHeight}
}

// Validate checks both fields are finite and strictly positive.
func (s UnitSettings) Validate() error {
	if !(s.UnitSize > 0) || math.IsInf(s.UnitSize, 0) {
		return fmt.Errorf("%w: unit_size must be > 0, got %v", ErrInvalidSettings, s.UnitSize)
	}
	if !(s.UnitHeight > 0) || math.IsInf(s.UnitHeight, 0) {
		return fmt.Errorf("%w: unit_height must be > 0, got %v", ErrInvalidSettings, s.UnitHeight)
	}
	return nil
}

// Segment is one step of a chamfer profile. Angle is measured from vertical:
// 0 is a straight wall, 45 a chamfer.
type Segment struct {
	Length float64 `json:"length"`
	Angle  float64 `json:"angle"`
}

// Rise is the vertical extent of the segment.
func (s Segment) Rise() float64 {
	return s.Length * math.Cos(s.Angle*math.Pi/180)
}

// Run is the horizontal inset of the segment.
func (s Segment) Run() float64 {
	return s.Length * math.Sin(s.Angle*math.Pi/180)
}

// Profile is ordered top to bottom: top chamfer, straight run, bottom chamfer.
type Profile [3]Segment

// Height is the total rise of the profile.
func (p Profile) Height() float64 {
	var h float64
	for _, s := range p {
		h += s.Rise()
	}
	return h
}

// Inset is the total horizontal run of the profile.
func (p Profile) Inset() float64 {
	var d float64
	for _, s := range p {
		d += s.Run()
	}
	return d
}

// Constants is the derived constant family for one task.
type Constants struct {
	Settings UnitSettings `json:"settings"`

	ScaleXY float64 `json:"scale_xy"`
	ScaleZ  float64 `json:"scale_z"`

	UnitHalf         float64 `json:"unit_half"`
	CutUnit          float64 `json:"cut_unit"`
	HoleSpacing      float64 `json:"hole_spacing"`
	RegistryR0       float64 `json:"registry_r0"`
	RegistryR1       float64 `json:"registry_r1"`
	UnitBottomHeight float64 `json:"unit_bottom_height"`
	BaseHeight       float64 `json:"base_height"`
	StraightHeight   float64 `json:"straight_height"`
	Clearance        float64 `json:"clearance"`

	BaseProfile Profile `json:"base_profile"`
	BoxProfile  Profile `json:"box_profile"`

	// Plan-view details shared by the grid parts.
	Tolerance    float64 `json:"tolerance"`
	CornerRadius float64 `json:"corner_radius"`
	WallThick    float64 `json:"wall_thickness"`
	LipHeight    float64 `json:"lip_height"`
	LipThick     float64 `json:"lip_thickness"`
	MagnetRadius float64 `json:"magnet_radius"`
	MagnetDepth  float64 `json:"magnet_depth"`
}

// Resolve computes the full constant family. It fails only when the settings
// themselves are invalid.
func Resolve(s UnitSettings) (Constants, error) {
	if err := s.Validate(); err != nil {
		return Constants{}, err
	}

	sxy := s.UnitSize / ReferenceUnitSize
	sz := s.UnitHeight / ReferenceUnitHeight

	baseHeight := 4.75 * sz
	straight := 1.8 * sz
	clearance := 0.25 * sz

	baseChamfer := (0.98994949 / math.Sqrt2) * sz
	baseTop := baseHeight - baseChamfer - straight

	boxChamfer := (1.1313708 / math.Sqrt2) * sz
	boxTop := baseHeight - boxChamfer - straight + clearance

	return Constants{
		Settings: s,
		ScaleXY:  sxy,
		ScaleZ:   sz,

		UnitHalf:         s.UnitSize / 2,
		CutUnit:          s.UnitSize + 0.2,
		HoleSpacing:      13.0 * sxy,
		RegistryR0:       11.0 * sxy,
		RegistryR1:       8.0 * sxy,
		UnitBottomHeight: s.UnitHeight,
		BaseHeight:       baseHeight,
		StraightHeight:   straight,
		Clearance:        clearance,

		BaseProfile: chamferProfile(baseTop, straight, baseChamfer),
		BoxProfile:  chamferProfile(boxTop, straight, boxChamfer),

		Tolerance:    0.5 * sxy,
		CornerRadius: 3.75 * sxy,
		WallThick:    1.0 * sxy,
		LipHeight:    4.4 * sz,
		LipThick:     2.6 * sxy,
		MagnetRadius: 3.25 * sxy,
		MagnetDepth:  2.4 * sz,
	}, nil
}

func chamferProfile(top, straight, bottom float64) Profile {
	return Profile{
		{Length: top * math.Sqrt2, Angle: 45},
		{Length: straight, Angle: 0},
		{Length: bottom * math.Sqrt2, Angle: 45},
	}
}
