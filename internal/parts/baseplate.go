package parts

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Countersunk corner screw dimensions in mm. They follow the screw, not the grid.
const (
	screwHoleDiam = 3.6
	screwHeadDiam = 7.0
	screwFloor    = 1.0 // material kept under the countersink
)

// plateCornerRadius is the baseplate corner radius at the reference grid.
const plateCornerRadius = 4.0

// Baseplate is a grid of receiving pockets, optionally padded, raised on an
// extension slab with corner screws and underside registry recesses.
type Baseplate struct {
	Length        int     `json:"length" validate:"gte=1,lte=20"`
	Width         int     `json:"width" validate:"gte=1,lte=20"`
	PaddingLength float64 `json:"padding_length" validate:"gte=0"`
	PaddingWidth  float64 `json:"padding_width" validate:"gte=0"`
	CornerScrews  bool    `json:"corner_screws"`
	ExtDepth      float64 `json:"ext_depth" validate:"gte=0"`
	Registry      bool    `json:"registry"`
}

func (b *Baseplate) Kind() Kind { return KindBaseplate }

// countersinkDepth is the depth of a 90° countersink.
func countersinkDepth() float64 {
	return (screwHeadDiam - screwHoleDiam) / 2
}

// EffectiveExtDepth is the extension slab depth after corner screws have
// claimed room for their countersinks.
func (b *Baseplate) EffectiveExtDepth() float64 {
	if b.CornerScrews {
		return math.Max(b.ExtDepth, countersinkDepth()+screwFloor)
	}
	return b.ExtDepth
}

// Generate implements Spec.
func (b *Baseplate) Generate(k kernel.Kernel, c scaling.Constants) (kernel.Shape, error) {
	ext := b.EffectiveExtDepth()
	if b.Registry && ext <= 0 {
		return nil, paramErr(KindBaseplate, "registry recesses need ext_depth > 0")
	}

	unit := c.Settings.UnitSize
	plateX := float64(b.Length)*unit + b.PaddingLength
	plateY := float64(b.Width)*unit + b.PaddingWidth
	top := ext + c.BaseHeight

	plate, err := prism(k, KindBaseplate, kernel.RoundedRect(plateX, plateY, plateCornerRadius*c.ScaleXY), r2.Vec{}, 0, top)
	if err != nil {
		return nil, err
	}

	// Pockets use the cut size so neighbours meet in knife edges. Each pocket
	// is extended past the top, and past the bottom when there is no slab.
	centres := cellCentres(b.Length, b.Width, unit)
	var cutters []kernel.Shape
	for _, ctr := range centres {
		pocket, err := profileLoft(k, KindBaseplate, c.BaseProfile, ctr, c.CutUnit, c.CutUnit, c.CornerRadius, ext)
		if err != nil {
			return nil, err
		}
		above, err := prism(k, KindBaseplate, kernel.RoundedRect(c.CutUnit, c.CutUnit, c.CornerRadius), ctr, top, top+1)
		if err != nil {
			return nil, err
		}
		cutters = append(cutters, pocket, above)
		if ext == 0 {
			in := 2 * c.BaseProfile.Inset()
			below, err := prism(k, KindBaseplate,
				kernel.RoundedRect(c.CutUnit-in, c.CutUnit-in, math.Max(0, c.CornerRadius-c.BaseProfile.Inset())),
				ctr, -1, 0)
			if err != nil {
				return nil, err
			}
			cutters = append(cutters, below)
		}
		if b.Registry {
			outer, err := prism(k, KindBaseplate, kernel.Circle(c.RegistryR0, kernel.CircleSegments), ctr, -1, ext/3)
			if err != nil {
				return nil, err
			}
			inner, err := prism(k, KindBaseplate, kernel.Circle(c.RegistryR1, kernel.CircleSegments), ctr, ext/3, 2*ext/3)
			if err != nil {
				return nil, err
			}
			cutters = append(cutters, outer, inner)
		}
	}

	if b.CornerScrews {
		screws, err := b.cornerScrews(k, c, ext)
		if err != nil {
			return nil, err
		}
		cutters = append(cutters, screws...)
	}

	logging.GeneratorDebug("baseplate: %dx%d ext=%.2f screws=%v registry=%v cutters=%d",
		b.Length, b.Width, ext, b.CornerScrews, b.Registry, len(cutters))
	out, err := k.Cut(plate, cutters...)
	if err != nil {
		return nil, kernelErr(KindBaseplate, "pocket cut", err)
	}
	return out, nil
}

// cornerScrews places one countersunk hole per plate corner, offset from the
// corner cell centre by the hole spacing toward that corner.
func (b *Baseplate) cornerScrews(k kernel.Kernel, c scaling.Constants, ext float64) ([]kernel.Shape, error) {
	unit := c.Settings.UnitSize
	hx := (float64(b.Length) - 1) / 2 * unit
	hy := (float64(b.Width) - 1) / 2 * unit
	csk := countersinkDepth()

	var out []kernel.Shape
	for _, d := range []r2.Vec{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}} {
		corner := r2.Vec{X: d.X * hx, Y: d.Y * hy}
		at := r2.Add(corner, r2.Scale(c.HoleSpacing, d))

		hole, err := prism(k, KindBaseplate, kernel.Circle(screwHoleDiam/2, kernel.CircleSegments), at, -1, ext+1)
		if err != nil {
			return nil, err
		}
		narrow, err := k.Polyline(kernel.Translate(kernel.Circle(screwHoleDiam/2, kernel.CircleSegments), at), true)
		if err != nil {
			return nil, kernelErr(KindBaseplate, "countersink wire", err)
		}
		wide, err := k.Polyline(kernel.Translate(kernel.Circle(screwHeadDiam/2, kernel.CircleSegments), at), true)
		if err != nil {
			return nil, kernelErr(KindBaseplate, "countersink wire", err)
		}
		sink, err := k.Loft(
			kernel.Section{Wire: narrow, Plane: kernel.XY(ext - csk)},
			kernel.Section{Wire: wide, Plane: kernel.XY(ext)},
		)
		if err != nil {
			return nil, kernelErr(KindBaseplate, "countersink loft", err)
		}
		out = append(out, hole, sink)
	}
	return out, nil
}
