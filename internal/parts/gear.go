package parts

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Shaft bore styles.
const (
	ShaftCircle = "circle"
	ShaftHex    = "hex"
	ShaftDCut   = "d_cut"
)

// Gear body styles.
const (
	GearSpur        = "spur"
	GearHelical     = "helical"
	GearHerringbone = "herringbone"
)

// involuteSamples is the number of segments per involute flank.
const involuteSamples = 15

// dFlatRatio places the D-bore flat at this fraction of the bore radius.
const dFlatRatio = 0.9

// Gear is an involute spur, helical or herringbone gear with a shaft bore.
type Gear struct {
	Teeth         int     `json:"teeth" validate:"gte=4,lte=400"`
	Module        float64 `json:"module" validate:"gt=0,lte=50"`
	Width         float64 `json:"width" validate:"gt=0"`
	BoreD         float64 `json:"bore_d" validate:"gte=0"`
	PressureAngle float64 `json:"pressure_angle" validate:"gt=0,lt=45"`
	ShaftType     string  `json:"shaft_type" validate:"oneof=circle hex d_cut"`
	HelixAngle    float64 `json:"helix_angle" validate:"gt=-60,lt=60"`
	GearType      string  `json:"gear_type" validate:"oneof=spur helical herringbone"`
	Backlash      float64 `json:"backlash" validate:"gte=0"`
}

func (g *Gear) Kind() Kind { return KindGear }

// GearGeometry holds the derived circle radii of a gear.
type GearGeometry struct {
	PitchRadius     float64
	BaseRadius      float64
	AddendumRadius  float64
	DedendumRadius  float64
	ToothHalfAngle  float64 // radians, backlash applied
	FlankRotation   float64 // radians
	UndercutApplied bool
}

// Geometry derives the standard involute relations for g.
func (g *Gear) Geometry() (GearGeometry, error) {
	if g.Teeth < 4 {
		return GearGeometry{}, paramErr(KindGear, "teeth must be >= 4, got %d", g.Teeth)
	}
	if !(g.Module > 0) {
		return GearGeometry{}, paramErr(KindGear, "module must be > 0, got %v", g.Module)
	}
	if !(g.PressureAngle > 0 && g.PressureAngle < 45) {
		return GearGeometry{}, paramErr(KindGear, "pressure angle must be in (0, 45), got %v", g.PressureAngle)
	}

	m := g.Module
	z := float64(g.Teeth)
	phi := g.PressureAngle * math.Pi / 180

	dPitch := m * z
	geo := GearGeometry{
		PitchRadius:    dPitch / 2,
		BaseRadius:     dPitch * math.Cos(phi) / 2,
		AddendumRadius: (dPitch + 2*m) / 2,
		DedendumRadius: (dPitch - 2.5*m) / 2,
	}
	if geo.BaseRadius >= geo.AddendumRadius {
		geo.BaseRadius = geo.DedendumRadius
	}
	if geo.DedendumRadius <= 0 {
		return GearGeometry{}, paramErr(KindGear, "dedendum radius %.3f is not positive", geo.DedendumRadius)
	}

	geo.ToothHalfAngle = math.Pi / (2 * z)
	if g.Backlash > 0 {
		geo.ToothHalfAngle -= g.Backlash / dPitch
	}
	if geo.ToothHalfAngle <= 0 {
		return GearGeometry{}, paramErr(KindGear, "backlash %.3f leaves no tooth thickness", g.Backlash)
	}
	geo.FlankRotation = geo.ToothHalfAngle - (math.Tan(phi) - phi)
	geo.UndercutApplied = geo.BaseRadius > geo.DedendumRadius
	return geo, nil
}

// ToothProfile returns one tooth polygon, counter-clockwise from the lower
// root to the upper root, centred on +X.
func ToothProfile(geo GearGeometry) []r2.Vec {
	tMax := 0.0
	if geo.BaseRadius < geo.AddendumRadius {
		tMax = math.Sqrt(math.Pow(geo.AddendumRadius/geo.BaseRadius, 2) - 1)
	}

	upper := make([]r2.Vec, 0, involuteSamples+1)
	for i := 0; i <= involuteSamples; i++ {
		t := tMax * float64(i) / involuteSamples
		p := r2.Vec{
			X: geo.BaseRadius * (math.Cos(t) + t*math.Sin(t)),
			Y: geo.BaseRadius * (math.Sin(t) - t*math.Cos(t)),
		}
		upper = append(upper, kernel.RotatePoint(p, geo.FlankRotation))
	}
	lower := kernel.MirrorX(upper)

	tooth := make([]r2.Vec, 0, 2*len(upper)+2)
	if geo.UndercutApplied {
		tooth = append(tooth, kernel.RotatePoint(r2.Vec{X: geo.DedendumRadius}, -geo.FlankRotation))
	}
	tooth = append(tooth, lower...)
	tooth = append(tooth, kernel.Reverse(upper)...)
	if geo.UndercutApplied {
		tooth = append(tooth, kernel.RotatePoint(r2.Vec{X: geo.DedendumRadius}, geo.FlankRotation))
	}
	return tooth
}

// Profile returns the closed outline of the whole gear: teeth rotated copies
// of ToothProfile joined by the bottom lands. perTooth is the number of
// points each tooth contributes.
func (g *Gear) Profile() (outline []r2.Vec, perTooth int, err error) {
	geo, err := g.Geometry()
	if err != nil {
		return nil, 0, err
	}
	tooth := ToothProfile(geo)
	outline = make([]r2.Vec, 0, len(tooth)*g.Teeth)
	for i := 0; i < g.Teeth; i++ {
		outline = append(outline, kernel.Rotate(tooth, 2*math.Pi*float64(i)/float64(g.Teeth))...)
	}
	return outline, len(tooth), nil
}

// TwistDegrees is the helical twist across the full face width.
func (g *Gear) TwistDegrees() float64 {
	if g.GearType == GearSpur || g.HelixAngle == 0 {
		return 0
	}
	rPitch := g.Module * float64(g.Teeth) / 2
	return g.Width * math.Tan(g.HelixAngle*math.Pi/180) * 180 / (math.Pi * rPitch)
}

// BoreProfile returns the shaft cross-section, or nil for no bore.
func (g *Gear) BoreProfile() []r2.Vec {
	if g.BoreD <= 0 {
		return nil
	}
	r := g.BoreD / 2
	switch g.ShaftType {
	case ShaftHex:
		return kernel.RegularPolygon(6, g.BoreD)
	case ShaftDCut:
		return kernel.DShape(r, dFlatRatio*r, kernel.CircleSegments)
	default:
		return kernel.Circle(r, kernel.CircleSegments)
	}
}

// Generate implements Spec.
func (g *Gear) Generate(k kernel.Kernel, _ scaling.Constants) (kernel.Shape, error) {
	geo, err := g.Geometry()
	if err != nil {
		return nil, err
	}
	if g.BoreD >= 2*geo.DedendumRadius {
		return nil, paramErr(KindGear, "bore %.3f must be smaller than the root diameter %.3f", g.BoreD, 2*geo.DedendumRadius)
	}
	outline, _, err := g.Profile()
	if err != nil {
		return nil, err
	}
	logging.GeneratorDebug("gear: z=%d m=%.3f type=%s undercut=%v", g.Teeth, g.Module, g.GearType, geo.UndercutApplied)

	body, err := g.body(k, outline)
	if err != nil {
		return nil, err
	}

	bore := g.BoreProfile()
	if bore == nil {
		return body, nil
	}
	boreWire, err := k.Polyline(bore, true)
	if err != nil {
		return nil, kernelErr(KindGear, "bore wire", err)
	}
	cutter, err := k.Extrude(boreWire, kernel.XY(-1), g.Width+2, 0)
	if err != nil {
		return nil, kernelErr(KindGear, "bore extrude", err)
	}
	out, err := k.Cut(body, cutter)
	if err != nil {
		return nil, kernelErr(KindGear, "bore cut", err)
	}
	return out, nil
}

func (g *Gear) body(k kernel.Kernel, outline []r2.Vec) (kernel.Shape, error) {
	twist := g.TwistDegrees()

	if g.GearType != GearHerringbone {
		wire, err := k.Polyline(outline, true)
		if err != nil {
			return nil, kernelErr(KindGear, "profile wire", err)
		}
		s, err := k.Extrude(wire, kernel.XY(0), g.Width, twist)
		if err != nil {
			return nil, kernelErr(KindGear, "extrude", err)
		}
		return s, nil
	}

	// Herringbone: the lower half twists one way, the upper half starts where
	// the lower one ends and twists back.
	half := g.Width / 2
	lowerWire, err := k.Polyline(outline, true)
	if err != nil {
		return nil, kernelErr(KindGear, "profile wire", err)
	}
	lower, err := k.Extrude(lowerWire, kernel.XY(0), half, twist/2)
	if err != nil {
		return nil, kernelErr(KindGear, "lower extrude", err)
	}
	upperWire, err := k.Polyline(kernel.Rotate(outline, (twist/2)*math.Pi/180), true)
	if err != nil {
		return nil, kernelErr(KindGear, "upper wire", err)
	}
	upper, err := k.Extrude(upperWire, kernel.XY(half), half, -twist/2)
	if err != nil {
		return nil, kernelErr(KindGear, "upper extrude", err)
	}
	s, err := k.Union(lower, upper)
	if err != nil {
		return nil, kernelErr(KindGear, "herringbone union", err)
	}
	return s, nil
}
