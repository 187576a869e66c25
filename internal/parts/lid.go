package parts

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Lid handle styles.
const (
	HandleNone   = "none"
	HandleSimple = "simple"
	HandleLoop   = "loop"
)

// handleSink is how deep a handle is seated into the lid plate.
const handleSink = 0.5

// Lid is a solid, lip-less grid plate with an optional handle. Height is the
// plate thickness above the feet in (possibly fractional) height units.
type Lid struct {
	Length       int     `json:"length" validate:"gte=1,lte=20"`
	Width        int     `json:"width" validate:"gte=1,lte=20"`
	Height       float64 `json:"height" validate:"gt=0,lte=20"`
	HandleStyle  string  `json:"handle_style" validate:"oneof=none simple loop"`
	HandleHeight float64 `json:"handle_height" validate:"gte=0"`
}

func (l *Lid) Kind() Kind { return KindLid }

// LoopWall is the wall thickness of a loop handle.
func LoopWall(minPlanDim, handleHeight float64) float64 {
	return math.Min(3, math.Min(minPlanDim/10, handleHeight/3))
}

// Generate implements Spec.
func (l *Lid) Generate(k kernel.Kernel, c scaling.Constants) (kernel.Shape, error) {
	plate := l.Height * c.Settings.UnitHeight
	lid, err := gridBody{
		Length: l.Length,
		Width:  l.Width,
		Top:    c.BoxProfile.Height() + plate,
		Solid:  true,
	}.build(k, KindLid, c)
	if err != nil {
		return nil, err
	}
	if l.HandleStyle == HandleNone || l.HandleStyle == "" {
		return lid, nil
	}
	if !(l.HandleHeight > 0) {
		return nil, paramErr(KindLid, "handle height must be > 0 for a %s handle", l.HandleStyle)
	}

	bb, err := k.BoundingBox(lid)
	if err != nil {
		return nil, kernelErr(KindLid, "bounding box", err)
	}
	topZ := bb.Max.Z
	minDim := math.Min(bb.XLen(), bb.YLen())
	side := minDim / 3
	sink := math.Min(handleSink, plate/2)

	wire, err := k.Polyline(kernel.Rect(side, side), true)
	if err != nil {
		return nil, kernelErr(KindLid, "handle wire", err)
	}
	handle, err := k.Extrude(wire, kernel.XY(topZ-sink), l.HandleHeight+sink, 0)
	if err != nil {
		return nil, kernelErr(KindLid, "handle extrude", err)
	}

	if l.HandleStyle == HandleLoop {
		wall := LoopWall(minDim, l.HandleHeight)
		cutH := l.HandleHeight - wall
		cutW := side - 2*wall
		if cutH > 0 && cutW > 0 {
			// Opening runs along X through the whole handle.
			cw, err := k.Polyline(kernel.RectFromCorners(-cutW/2, topZ, cutW/2, topZ+cutH), true)
			if err != nil {
				return nil, kernelErr(KindLid, "loop wire", err)
			}
			cutout, err := k.Extrude(cw, kernel.Plane{Axis: kernel.AxisX, Origin: r3.Vec{X: -side}}, 2*side, 0)
			if err != nil {
				return nil, kernelErr(KindLid, "loop extrude", err)
			}
			if handle, err = k.Cut(handle, cutout); err != nil {
				return nil, kernelErr(KindLid, "loop cut", err)
			}
		}
	}

	logging.GeneratorDebug("lid: %dx%d plate=%.2fmm handle=%s", l.Length, l.Width, plate, l.HandleStyle)
	out, err := k.Union(lid, handle)
	if err != nil {
		return nil, kernelErr(KindLid, "handle union", err)
	}
	return out, nil
}
