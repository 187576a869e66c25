package csg

import (
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
)

// Union implements kernel.Kernel. Operands that share volume fuse into one
// solid; disjoint groups are returned together as a compound.
func (k *Kernel) Union(shapes ...kernel.Shape) (kernel.Shape, error) {
	var solids []node
	for _, s := range shapes {
		n, err := unwrap(s)
		if err != nil {
			return nil, err
		}
		if c, ok := n.(*compound); ok {
			solids = append(solids, c.solids...)
			continue
		}
		solids = append(solids, n)
	}
	if len(solids) == 0 {
		return nil, fmt.Errorf("%w: union of nothing", kernel.ErrDegenerate)
	}
	if len(solids) == 1 {
		return solids[0], nil
	}

	uf := newUnionFind(len(solids))
	for i := range solids {
		for j := i + 1; j < len(solids); j++ {
			if uf.find(i) == uf.find(j) {
				continue
			}
			if k.overlaps(solids[i], solids[j]) {
				uf.union(i, j)
			}
		}
	}

	groups := make(map[int][]node)
	var order []int
	for i, s := range solids {
		root := uf.find(i)
		if _, seen := groups[root]; !seen {
			order = append(order, root)
		}
		groups[root] = append(groups[root], s)
	}

	parts := make([]node, 0, len(order))
	for _, root := range order {
		members := groups[root]
		if len(members) == 1 {
			parts = append(parts, members[0])
			continue
		}
		parts = append(parts, newBoolean(opUnion, members))
	}
	logging.KernelDebug("union: %d operands -> %d solids", len(solids), len(parts))
	if len(parts) == 1 {
		return parts[0], nil
	}
	return newCompound(parts), nil
}

// Cut implements kernel.Kernel. Cutting a compound cuts each of its solids.
func (k *Kernel) Cut(base kernel.Shape, tools ...kernel.Shape) (kernel.Shape, error) {
	b, err := unwrap(base)
	if err != nil {
		return nil, err
	}
	ts := make([]node, 0, len(tools))
	for _, t := range tools {
		n, err := unwrap(t)
		if err != nil {
			return nil, err
		}
		ts = append(ts, n)
	}
	if len(ts) == 0 {
		return b, nil
	}
	if c, ok := b.(*compound); ok {
		parts := make([]node, len(c.solids))
		for i, s := range c.solids {
			parts[i] = cutNode(s, ts)
		}
		return newCompound(parts), nil
	}
	return cutNode(b, ts), nil
}

// Intersect implements kernel.Kernel.
func (k *Kernel) Intersect(a, b kernel.Shape) (kernel.Shape, error) {
	na, err := unwrap(a)
	if err != nil {
		return nil, err
	}
	nb, err := unwrap(b)
	if err != nil {
		return nil, err
	}
	return newBoolean(opIntersect, []node{na, nb}), nil
}

func cutNode(base node, tools []node) node {
	relevant := []node{base}
	bb := base.bounds()
	for _, t := range tools {
		if !bb.Intersect(t.bounds()).Empty() {
			relevant = append(relevant, t)
		}
	}
	if len(relevant) == 1 {
		return base
	}
	return newBoolean(opCut, relevant)
}

func newBoolean(op opKind, children []node) *boolean {
	b := &boolean{op: op, children: children}
	switch op {
	case opUnion:
		for i, c := range children {
			if i == 0 {
				b.bb = c.bounds()
				continue
			}
			b.bb = b.bb.Union(c.bounds())
		}
	case opCut:
		b.bb = children[0].bounds()
	case opIntersect:
		b.bb = children[0].bounds()
		for _, c := range children[1:] {
			b.bb = b.bb.Intersect(c.bounds())
		}
	}
	return b
}

func newCompound(solids []node) *compound {
	c := &compound{solids: solids}
	for i, s := range solids {
		if i == 0 {
			c.bb = s.bounds()
			continue
		}
		c.bb = c.bb.Union(s.bounds())
	}
	return c
}

// overlaps samples the shared bounding region of a and b on a regular grid.
// Axes along which the shared region is flat (touching faces) are sampled
// once at the contact plane.
func (k *Kernel) overlaps(a, b node) bool {
	box := a.bounds().Expand(eps).Intersect(b.bounds().Expand(eps))
	if box.Empty() {
		return false
	}
	n := k.cfg.OverlapSamples
	xs := samples(box.Min.X, box.Max.X, n)
	ys := samples(box.Min.Y, box.Max.Y, n)
	zs := samples(box.Min.Z, box.Max.Z, n)
	for _, x := range xs {
		for _, y := range ys {
			for _, z := range zs {
				p := r3.Vec{X: x, Y: y, Z: z}
				if a.contains(p) && b.contains(p) {
					return true
				}
			}
		}
	}
	return false
}

func samples(lo, hi float64, n int) []float64 {
	if hi-lo <= 4*eps {
		return []float64{(lo + hi) / 2}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

type unionFind struct{ parent []int }

func newUnionFind(n int) *unionFind {
	p := make([]int, n)
	for i := range p {
		p[i] = i
	}
	return &unionFind{parent: p}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra != rb {
		u.parent[rb] = ra
	}
}
