package csg

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/loganrf/OpenGridGen/internal/kernel"
)

const (
	// minAxisCells is the fewest cells any lattice axis gets.
	minAxisCells = 8
	// minInsideSamples is the sample count below which volume integration
	// refines the lattice.
	minInsideSamples = 8192
	// maxVolumeRefines bounds the number of lattice doublings.
	maxVolumeRefines = 2
	// maxVolumeSamples caps the lattice size a refinement may reach.
	maxVolumeSamples = 1 << 21
)

// grid is a regular lattice laid over a bounding box. Each axis has its own
// step.
type grid struct {
	origin     r3.Vec
	step       r3.Vec
	nx, ny, nz int
}

// newGrid covers bb with cells along the longest axis. A short axis gets at
// least max(minAxisCells, cells/4) cells so thin walls are sampled across
// their thickness. pad adds that many extra cells on every side.
func newGrid(bb kernel.BBox, cells, pad int) grid {
	longest := math.Max(bb.XLen(), math.Max(bb.YLen(), bb.ZLen()))
	if longest <= 0 {
		longest = eps
	}
	base := longest / float64(cells)
	floor := max(minAxisCells, cells/4)
	axis := func(l float64) (float64, int) {
		step := base
		if l > 0 && l/step < float64(floor) {
			step = l / float64(floor)
		}
		return step, int(math.Max(1, math.Ceil(l/step-1e-9))) + 2*pad
	}
	var g grid
	g.step.X, g.nx = axis(bb.XLen())
	g.step.Y, g.ny = axis(bb.YLen())
	g.step.Z, g.nz = axis(bb.ZLen())
	// Centre the lattice on the box so rounding spreads evenly.
	size := r3.Vec{X: float64(g.nx) * g.step.X, Y: float64(g.ny) * g.step.Y, Z: float64(g.nz) * g.step.Z}
	centre := r3.Scale(0.5, r3.Add(bb.Min, bb.Max))
	g.origin = r3.Sub(centre, r3.Scale(0.5, size))
	return g
}

func (g grid) point(i, j, k float64) r3.Vec {
	return r3.Add(g.origin, r3.Vec{X: i * g.step.X, Y: j * g.step.Y, Z: k * g.step.Z})
}

func (g grid) cellVolume() float64 {
	return g.step.X * g.step.Y * g.step.Z
}

func (g grid) size() int {
	return g.nx * g.ny * g.nz
}

// Volume implements kernel.Kernel by midpoint integration. A compound's volume
// is the sum over its solids.
func (k *Kernel) Volume(s kernel.Shape) (float64, error) {
	n, err := unwrap(s)
	if err != nil {
		return 0, err
	}
	if c, ok := n.(*compound); ok {
		var total float64
		for _, child := range c.solids {
			total += k.volume(child)
		}
		return total, nil
	}
	return k.volume(n), nil
}

// volume integrates n, doubling the lattice resolution while too few cell
// centres land inside.
func (k *Kernel) volume(n node) float64 {
	bb := n.bounds()
	if bb.Empty() || !n.closed() {
		return 0
	}
	cells := k.cfg.VolumeCells
	for level := 0; ; level++ {
		g := newGrid(bb, cells, 0)
		inside := countInside(n, g)
		if inside >= minInsideSamples || level == maxVolumeRefines {
			return float64(inside) * g.cellVolume()
		}
		if newGrid(bb, 2*cells, 0).size() > maxVolumeSamples {
			return float64(inside) * g.cellVolume()
		}
		cells *= 2
	}
}

func countInside(n node, g grid) int {
	inside := 0
	for i := 0; i < g.nx; i++ {
		for j := 0; j < g.ny; j++ {
			for kk := 0; kk < g.nz; kk++ {
				if n.contains(g.point(float64(i)+0.5, float64(j)+0.5, float64(kk)+0.5)) {
					inside++
				}
			}
		}
	}
	return inside
}
