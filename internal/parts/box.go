package parts

import (
	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Box is a grid storage bin. Length runs along X and Width along Y, both in
// grid units; Height is in height units.
type Box struct {
	Length int  `json:"length" validate:"gte=1,lte=20"`
	Width  int  `json:"width" validate:"gte=1,lte=20"`
	Height int  `json:"height" validate:"gte=1,lte=30"`
	Solid  bool `json:"solid"`
	Holes  bool `json:"holes"`
	NoLip  bool `json:"no_lip"`
}

func (b *Box) Kind() Kind { return KindBox }

// Generate implements Spec.
func (b *Box) Generate(k kernel.Kernel, c scaling.Constants) (kernel.Shape, error) {
	logging.GeneratorDebug("box: %dx%dx%d solid=%v holes=%v lip=%v", b.Length, b.Width, b.Height, b.Solid, b.Holes, !b.NoLip)
	return gridBody{
		Length: b.Length,
		Width:  b.Width,
		Top:    float64(b.Height) * c.Settings.UnitHeight,
		Solid:  b.Solid,
		Lip:    !b.NoLip,
		Holes:  b.Holes,
	}.build(k, KindBox, c)
}
