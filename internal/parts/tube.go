package parts

import (
	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Section split of a tube adapter along Z.
const (
	tubeSectionShare    = 0.4
	tubeTransitionShare = 0.2
)

// TubeAdapter joins two tubes of different diameters. Side A sits at Z=0,
// side B at Z=Length.
type TubeAdapter struct {
	SideAID       float64 `json:"side_a_id" validate:"gt=0"`
	SideAOD       float64 `json:"side_a_od" validate:"gt=0"`
	SideABarb     bool    `json:"side_a_barb"`
	SideBID       float64 `json:"side_b_id" validate:"gt=0"`
	SideBOD       float64 `json:"side_b_od" validate:"gt=0"`
	SideBBarb     bool    `json:"side_b_barb"`
	Length        float64 `json:"length" validate:"gt=0"`
	NumBarbs      int     `json:"num_barbs" validate:"gte=0,lte=50"`
	BarbHeightPct float64 `json:"barb_height_pct" validate:"gte=0,lte=100"`
	BarbWidth     float64 `json:"barb_width" validate:"gt=0"`
}

func (t *TubeAdapter) Kind() Kind { return KindTubeAdapter }

// Sections returns the length of each end section and of the transition.
func (t *TubeAdapter) Sections() (section, transition float64) {
	return t.Length * tubeSectionShare, t.Length * tubeTransitionShare
}

// Check enforces the diameter relationships and barb fit.
func (t *TubeAdapter) Check() error {
	if t.SideAID >= t.SideAOD {
		return paramErr(KindTubeAdapter, "side A ID (%v) must be less than OD (%v)", t.SideAID, t.SideAOD)
	}
	if t.SideBID >= t.SideBOD {
		return paramErr(KindTubeAdapter, "side B ID (%v) must be less than OD (%v)", t.SideBID, t.SideBOD)
	}
	if !(t.Length > 0) {
		return paramErr(KindTubeAdapter, "length must be positive, got %v", t.Length)
	}
	if t.SideABarb || t.SideBBarb {
		section, _ := t.Sections()
		if required := float64(t.NumBarbs) * t.BarbWidth; required > section {
			return paramErr(KindTubeAdapter, "barbs do not fit: required %.2fmm, available %.2fmm", required, section)
		}
	}
	return nil
}

// Generate implements Spec.
func (t *TubeAdapter) Generate(k kernel.Kernel, _ scaling.Constants) (kernel.Shape, error) {
	if err := t.Check(); err != nil {
		return nil, err
	}
	section, trans := t.Sections()

	cylinder := func(r, z0, h float64) (kernel.Shape, error) {
		w, err := k.Polyline(kernel.Circle(r, kernel.CircleSegments), true)
		if err != nil {
			return nil, err
		}
		return k.Extrude(w, kernel.XY(z0), h, 0)
	}
	cone := func(r0, z0, r1, z1 float64) (kernel.Shape, error) {
		a, err := k.Polyline(kernel.Circle(r0, kernel.CircleSegments), true)
		if err != nil {
			return nil, err
		}
		b, err := k.Polyline(kernel.Circle(r1, kernel.CircleSegments), true)
		if err != nil {
			return nil, err
		}
		return k.Loft(kernel.Section{Wire: a, Plane: kernel.XY(z0)}, kernel.Section{Wire: b, Plane: kernel.XY(z1)})
	}

	cylA, err := cylinder(t.SideAOD/2, 0, section)
	if err != nil {
		return nil, kernelErr(KindTubeAdapter, "side A", err)
	}
	transition, err := cone(t.SideAOD/2, section, t.SideBOD/2, section+trans)
	if err != nil {
		return nil, kernelErr(KindTubeAdapter, "transition", err)
	}
	cylB, err := cylinder(t.SideBOD/2, section+trans, section)
	if err != nil {
		return nil, kernelErr(KindTubeAdapter, "side B", err)
	}
	parts := []kernel.Shape{cylA, transition, cylB}

	barbs := func(od, start float64, sideA bool) error {
		if t.NumBarbs == 0 {
			return nil
		}
		h := od * t.BarbHeightPct / 100
		step := section / float64(t.NumBarbs)
		for i := 0; i < t.NumBarbs; i++ {
			slot := start + float64(i)*step
			// Side A ramps outward toward +Z, side B toward -Z: the flat
			// face always resists pulling the tube back off its end.
			z, r0, r1 := slot, od/2, od/2+h
			if !sideA {
				z, r0, r1 = slot+step-t.BarbWidth, od/2+h, od/2
			}
			b, err := cone(r0, z, r1, z+t.BarbWidth)
			if err != nil {
				return err
			}
			parts = append(parts, b)
		}
		return nil
	}
	if t.SideABarb {
		if err := barbs(t.SideAOD, 0, true); err != nil {
			return nil, kernelErr(KindTubeAdapter, "side A barbs", err)
		}
	}
	if t.SideBBarb {
		if err := barbs(t.SideBOD, section+trans, false); err != nil {
			return nil, kernelErr(KindTubeAdapter, "side B barbs", err)
		}
	}

	body, err := k.Union(parts...)
	if err != nil {
		return nil, kernelErr(KindTubeAdapter, "body union", err)
	}

	// The bore is one lofted run: straight A, transition, straight B,
	// overshooting both ends so the cut opens cleanly.
	sections := make([]kernel.Section, 0, 4)
	for _, s := range []struct{ r, z float64 }{
		{t.SideAID / 2, -1},
		{t.SideAID / 2, section},
		{t.SideBID / 2, section + trans},
		{t.SideBID / 2, t.Length + 1},
	} {
		w, err := k.Polyline(kernel.Circle(s.r, kernel.CircleSegments), true)
		if err != nil {
			return nil, kernelErr(KindTubeAdapter, "bore wire", err)
		}
		sections = append(sections, kernel.Section{Wire: w, Plane: kernel.XY(s.z)})
	}
	bore, err := k.Loft(sections...)
	if err != nil {
		return nil, kernelErr(KindTubeAdapter, "bore loft", err)
	}

	logging.GeneratorDebug("tube adapter: A %.2f/%.2f B %.2f/%.2f L=%.2f", t.SideAID, t.SideAOD, t.SideBID, t.SideBOD, t.Length)
	out, err := k.Cut(body, bore)
	if err != nil {
		return nil, kernelErr(KindTubeAdapter, "bore cut", err)
	}
	return out, nil
}
