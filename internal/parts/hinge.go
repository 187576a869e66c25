package parts

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// tabOverlap is how far each knuckle tab reaches into its leaf plate so the
// two fuse into one solid.
const tabOverlap = 0.5

// Hinge is a two-leaf print-in-place hinge. The hinge axis runs along Y;
// leaf A lies on -X, leaf B on +X.
type Hinge struct {
	Length    float64 `json:"length" validate:"gt=0"`
	Width     float64 `json:"width" validate:"gt=0"`
	Height    float64 `json:"height" validate:"gt=0"`
	PinDiam   float64 `json:"pin_diam" validate:"gt=0"`
	Clearance float64 `json:"clearance" validate:"gte=0"`
}

func (h *Hinge) Kind() Kind { return KindHinge }

// Knuckle is one pin-bearing segment along the hinge axis.
type Knuckle struct {
	Index  int
	Leaf   byte // 'A' or 'B'
	YStart float64
	YEnd   float64
}

// KnuckleCount is max(3, round(length/10)), bumped to the next odd number so
// leaf A owns both ends.
func KnuckleCount(length float64) int {
	n := int(math.Max(3, math.Round(length/10)))
	if n%2 == 0 {
		n++
	}
	return n
}

// KnuckleLayout splits the hinge length into alternating knuckles separated
// by the clearance, starting at -length/2.
func KnuckleLayout(length, clearance float64) []Knuckle {
	n := KnuckleCount(length)
	kLen := (length - float64(n-1)*clearance) / float64(n)
	out := make([]Knuckle, n)
	y := -length / 2
	for i := range out {
		leaf := byte('A')
		if i%2 == 1 {
			leaf = 'B'
		}
		out[i] = Knuckle{Index: i, Leaf: leaf, YStart: y, YEnd: y + kLen}
		y += kLen + clearance
	}
	return out
}

func (h *Hinge) check() error {
	n := KnuckleCount(h.Length)
	if kLen := (h.Length - float64(n-1)*h.Clearance) / float64(n); kLen <= 0 {
		return paramErr(KindHinge, "clearance %.3f leaves no room for %d knuckles in %.3f", h.Clearance, n, h.Length)
	}
	r := h.Height / 2
	if h.PinDiam/2+h.Clearance >= r {
		return paramErr(KindHinge, "pin diameter %.3f plus clearance does not fit a knuckle of radius %.3f", h.PinDiam, r)
	}
	if h.Width/2 <= r+h.Clearance {
		return paramErr(KindHinge, "width %.3f leaves no leaf plate beside knuckles of radius %.3f", h.Width, r)
	}
	return nil
}

// Generate implements Spec. The result is a compound of the two leaves.
func (h *Hinge) Generate(k kernel.Kernel, _ scaling.Constants) (kernel.Shape, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	r := h.Height / 2 // knuckle radius
	t := h.Height / 2 // leaf thickness
	cl := h.Clearance
	halfL := h.Length / 2
	edge := r + cl // plate inner edge distance from the axis
	overlap := math.Min(tabOverlap, (h.Width/2-edge)/2)

	extrudeZ := func(x0, y0, x1, y1, z0, depth float64) (kernel.Shape, error) {
		w, err := k.Polyline(kernel.RectFromCorners(x0, y0, x1, y1), true)
		if err != nil {
			return nil, err
		}
		return k.Extrude(w, kernel.XY(z0), depth, 0)
	}
	alongY := func(radius, y0, length float64) (kernel.Shape, error) {
		w, err := k.Polyline(kernel.Circle(radius, kernel.CircleSegments), true)
		if err != nil {
			return nil, err
		}
		return k.Extrude(w, kernel.Plane{Axis: kernel.AxisY, Origin: r3.Vec{Y: y0, Z: r}}, length, 0)
	}

	plateA, err := extrudeZ(-h.Width/2, -halfL, -edge, halfL, 0, t)
	if err != nil {
		return nil, kernelErr(KindHinge, "leaf A plate", err)
	}
	plateB, err := extrudeZ(edge, -halfL, h.Width/2, halfL, 0, t)
	if err != nil {
		return nil, kernelErr(KindHinge, "leaf B plate", err)
	}
	partsA := []kernel.Shape{plateA}
	partsB := []kernel.Shape{plateB}

	for _, kn := range KnuckleLayout(h.Length, cl) {
		knuckle, err := alongY(r, kn.YStart, kn.YEnd-kn.YStart)
		if err != nil {
			return nil, kernelErr(KindHinge, "knuckle", err)
		}
		if kn.Leaf == 'A' {
			tab, err := extrudeZ(-edge-overlap, kn.YStart, 0, kn.YEnd, 0, t)
			if err != nil {
				return nil, kernelErr(KindHinge, "leaf A tab", err)
			}
			partsA = append(partsA, knuckle, tab)
			continue
		}
		tab, err := extrudeZ(0, kn.YStart, edge+overlap, kn.YEnd, 0, t)
		if err != nil {
			return nil, kernelErr(KindHinge, "leaf B tab", err)
		}
		partsB = append(partsB, knuckle, tab)
	}

	pin, err := alongY(h.PinDiam/2, -halfL, h.Length)
	if err != nil {
		return nil, kernelErr(KindHinge, "pin", err)
	}
	partsA = append(partsA, pin)

	leafA, err := k.Union(partsA...)
	if err != nil {
		return nil, kernelErr(KindHinge, "leaf A union", err)
	}
	leafB, err := k.Union(partsB...)
	if err != nil {
		return nil, kernelErr(KindHinge, "leaf B union", err)
	}

	bore, err := alongY(h.PinDiam/2+cl, -1.1*halfL, 1.1*h.Length)
	if err != nil {
		return nil, kernelErr(KindHinge, "pin bore", err)
	}
	leafB, err = k.Cut(leafB, bore)
	if err != nil {
		return nil, kernelErr(KindHinge, "pin bore cut", err)
	}

	logging.GeneratorDebug("hinge: %d knuckles, length %.2f", KnuckleCount(h.Length), h.Length)
	out, err := k.Union(leafA, leafB)
	if err != nil {
		return nil, kernelErr(KindHinge, "assembly", err)
	}
	return out, nil
}
