package csg

import (
	"gonum.org/v1/gonum/spatial/r3"
)

// bisectSteps refines each surface crossing along its lattice edge.
const bisectSteps = 4

// mesh is an indexed triangle surface.
type mesh struct {
	verts []r3.Vec
	tris  [][3]int32
}

func (m mesh) normal(t [3]int32) r3.Vec {
	a, b, c := m.verts[t[0]], m.verts[t[1]], m.verts[t[2]]
	n := r3.Cross(r3.Sub(b, a), r3.Sub(c, a))
	if r3.Norm(n) == 0 {
		return r3.Vec{}
	}
	return r3.Unit(n)
}

// cornerOffsets are the eight cell corners, bit 0 = x, bit 1 = y, bit 2 = z.
var cornerOffsets = [8][3]int{
	{0, 0, 0}, {1, 0, 0}, {0, 1, 0}, {1, 1, 0},
	{0, 0, 1}, {1, 0, 1}, {0, 1, 1}, {1, 1, 1},
}

// cellEdges lists the corner pairs that differ along one axis.
var cellEdges = func() [][2]int {
	var out [][2]int
	for a := 0; a < 8; a++ {
		for _, bit := range []int{1, 2, 4} {
			if a&bit == 0 {
				out = append(out, [2]int{a, a | bit})
			}
		}
	}
	return out
}()

// tessellate extracts the boundary of n with naive surface nets: one vertex
// per cell straddling the surface, one quad per lattice edge crossing it.
// Quads are wound so their normals face out of the solid.
func (k *Kernel) tessellate(n node) mesh {
	g := newGrid(n.bounds(), k.cfg.MeshCells, 1)
	vx, vy, vz := g.nx+1, g.ny+1, g.nz+1
	vidx := func(i, j, kk int) int { return (i*vy+j)*vz + kk }
	cidx := func(i, j, kk int) int { return (i*g.ny+j)*g.nz + kk }

	inside := make([]bool, vx*vy*vz)
	for i := 0; i < vx; i++ {
		for j := 0; j < vy; j++ {
			for kk := 0; kk < vz; kk++ {
				inside[vidx(i, j, kk)] = n.contains(g.point(float64(i), float64(j), float64(kk)))
			}
		}
	}

	var m mesh
	cellVert := make([]int32, g.nx*g.ny*g.nz)
	for i := range cellVert {
		cellVert[i] = -1
	}
	for i := 0; i < g.nx; i++ {
		for j := 0; j < g.ny; j++ {
			for kk := 0; kk < g.nz; kk++ {
				var in [8]bool
				mixed := false
				for c, off := range cornerOffsets {
					in[c] = inside[vidx(i+off[0], j+off[1], kk+off[2])]
					if c > 0 && in[c] != in[0] {
						mixed = true
					}
				}
				if !mixed {
					continue
				}
				var sum r3.Vec
				crossings := 0
				for _, e := range cellEdges {
					if in[e[0]] == in[e[1]] {
						continue
					}
					a, b := cornerOffsets[e[0]], cornerOffsets[e[1]]
					pa := g.point(float64(i+a[0]), float64(j+a[1]), float64(kk+a[2]))
					pb := g.point(float64(i+b[0]), float64(j+b[1]), float64(kk+b[2]))
					if !in[e[0]] {
						pa, pb = pb, pa
					}
					sum = r3.Add(sum, crossing(n, pa, pb))
					crossings++
				}
				cellVert[cidx(i, j, kk)] = int32(len(m.verts))
				m.verts = append(m.verts, r3.Scale(1/float64(crossings), sum))
			}
		}
	}

	quad := func(lowerInside bool, c0, c1, c2, c3 int) {
		a, b, c, d := cellVert[c0], cellVert[c1], cellVert[c2], cellVert[c3]
		if a < 0 || b < 0 || c < 0 || d < 0 {
			return
		}
		if !lowerInside {
			b, d = d, b
		}
		m.tris = append(m.tris, [3]int32{a, b, c}, [3]int32{a, c, d})
	}

	for i := 0; i < vx; i++ {
		for j := 0; j < vy; j++ {
			for kk := 0; kk < vz; kk++ {
				lo := inside[vidx(i, j, kk)]
				if i+1 < vx && j >= 1 && kk >= 1 && j < g.ny && kk < g.nz && lo != inside[vidx(i+1, j, kk)] {
					quad(lo, cidx(i, j-1, kk-1), cidx(i, j, kk-1), cidx(i, j, kk), cidx(i, j-1, kk))
				}
				if j+1 < vy && i >= 1 && kk >= 1 && i < g.nx && kk < g.nz && lo != inside[vidx(i, j+1, kk)] {
					quad(lo, cidx(i-1, j, kk-1), cidx(i-1, j, kk), cidx(i, j, kk), cidx(i, j, kk-1))
				}
				if kk+1 < vz && i >= 1 && j >= 1 && i < g.nx && j < g.ny && lo != inside[vidx(i, j, kk+1)] {
					quad(lo, cidx(i-1, j-1, kk), cidx(i, j-1, kk), cidx(i, j, kk), cidx(i-1, j, kk))
				}
			}
		}
	}
	return m
}

// crossing bisects the segment from an inside point to an outside point.
func crossing(n node, in, out r3.Vec) r3.Vec {
	for s := 0; s < bisectSteps; s++ {
		mid := r3.Scale(0.5, r3.Add(in, out))
		if n.contains(mid) {
			in = mid
		} else {
			out = mid
		}
	}
	return r3.Scale(0.5, r3.Add(in, out))
}
