package parts

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/kernel/csg"
	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/scaling"
	"github.com/loganrf/OpenGridGen/internal/validate"
)

func testKernel() *csg.Kernel {
	return csg.New(csg.Config{VolumeCells: 24, MeshCells: 16})
}

func defaultConstants(t *testing.T) scaling.Constants {
	t.Helper()
	c, err := scaling.Resolve(scaling.DefaultSettings())
	require.NoError(t, err)
	return c
}

func requireReason(t *testing.T, err error, reason outcome.Reason) {
	t.Helper()
	var ve *outcome.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, reason, ve.Reason)
}

// =============================================================================
// GEAR
// =============================================================================

func TestGear_ProfileRepeatsOneToothPerTooth(t *testing.T) {
	for _, tc := range []struct {
		teeth int
		mod   float64
		phi   float64
	}{
		{4, 1, 20}, {7, 0.5, 14.5}, {20, 1, 20}, {33, 2, 25}, {60, 1, 20}, {12, 1.5, 44},
	} {
		g := &Gear{Teeth: tc.teeth, Module: tc.mod, PressureAngle: tc.phi, Width: 4, GearType: GearSpur, ShaftType: ShaftCircle}
		outline, perTooth, err := g.Profile()
		require.NoError(t, err)
		require.Equal(t, tc.teeth*perTooth, len(outline), "teeth=%d", tc.teeth)

		step := 2 * math.Pi / float64(tc.teeth)
		for i := 0; i+perTooth < len(outline); i++ {
			want := kernel.RotatePoint(outline[i], step)
			got := outline[i+perTooth]
			assert.InDelta(t, want.X, got.X, 1e-9)
			assert.InDelta(t, want.Y, got.Y, 1e-9)
		}
		assert.Positive(t, kernel.SignedArea(outline), "outline must wind counter-clockwise, teeth=%d", tc.teeth)
	}
}

func TestGear_PositiveFiniteVolume(t *testing.T) {
	k := testKernel()
	v := validate.New(k)
	for _, g := range []*Gear{
		{Teeth: 4, Module: 1, PressureAngle: 20, Width: 3, GearType: GearSpur, ShaftType: ShaftCircle},
		{Teeth: 20, Module: 1, PressureAngle: 20, Width: 5, BoreD: 5, GearType: GearHelical, HelixAngle: 20, ShaftType: ShaftCircle},
		{Teeth: 24, Module: 1.25, PressureAngle: 25, Width: 8, BoreD: 6, GearType: GearHerringbone, HelixAngle: 30, ShaftType: ShaftDCut},
		{Teeth: 15, Module: 2, PressureAngle: 20, Width: 6, Backlash: 0.1, GearType: GearSpur, ShaftType: ShaftHex, BoreD: 8},
	} {
		s, err := g.Generate(k, scaling.Constants{})
		require.NoError(t, err, "gear %+v", *g)
		require.NoError(t, v.Check(s))

		vol, err := k.Volume(s)
		require.NoError(t, err)
		assert.Positive(t, vol)
		assert.False(t, math.IsInf(vol, 0) || math.IsNaN(vol))
	}
}

func TestGear_ThinWideVolume(t *testing.T) {
	k := testKernel()
	g := &Gear{Teeth: 200, Module: 1, PressureAngle: 20, Width: 0.8, GearType: GearSpur, ShaftType: ShaftCircle}
	outline, _, err := g.Profile()
	require.NoError(t, err)

	s, err := g.Generate(k, scaling.Constants{})
	require.NoError(t, err)
	require.NoError(t, validate.New(k).Check(s))

	vol, err := k.Volume(s)
	require.NoError(t, err)
	assert.InEpsilon(t, kernel.SignedArea(outline)*0.8, vol, 0.1)
}

func TestGear_UndercutInsertedWhenBaseExceedsRoot(t *testing.T) {
	small := &Gear{Teeth: 20, Module: 1, PressureAngle: 20}
	geo, err := small.Geometry()
	require.NoError(t, err)
	assert.True(t, geo.UndercutApplied)
	assert.Len(t, ToothProfile(geo), 2*(involuteSamples+1)+2)
	assert.InDelta(t, geo.DedendumRadius, math.Hypot(ToothProfile(geo)[0].X, ToothProfile(geo)[0].Y), 1e-9)

	large := &Gear{Teeth: 60, Module: 1, PressureAngle: 20}
	geo, err = large.Geometry()
	require.NoError(t, err)
	assert.False(t, geo.UndercutApplied)
	assert.Len(t, ToothProfile(geo), 2*(involuteSamples+1))
}

func TestGear_BacklashThinsTooth(t *testing.T) {
	plain, err := (&Gear{Teeth: 20, Module: 1, PressureAngle: 20}).Geometry()
	require.NoError(t, err)
	thin, err := (&Gear{Teeth: 20, Module: 1, PressureAngle: 20, Backlash: 0.2}).Geometry()
	require.NoError(t, err)
	assert.InDelta(t, plain.ToothHalfAngle-0.2/20, thin.ToothHalfAngle, 1e-12)
	assert.Less(t, thin.FlankRotation, plain.FlankRotation)
}

func TestGear_Twist(t *testing.T) {
	g := &Gear{Teeth: 20, Module: 1, Width: 10, HelixAngle: 45, GearType: GearHelical}
	assert.InDelta(t, 10*180/(math.Pi*10), g.TwistDegrees(), 1e-9)
	g.GearType = GearSpur
	assert.Zero(t, g.TwistDegrees())
}

func TestGear_HexBoreIsSixSided(t *testing.T) {
	k := testKernel()
	spec, err := Decode(KindGear, json.RawMessage(`{"teeth":20,"module":1.0,"shaft_type":"hex","bore_d":5.0}`))
	require.NoError(t, err)
	s, err := spec.Generate(k, defaultConstants(t))
	require.NoError(t, err)

	// At 0.96 of the bore radius, the hex is open toward its vertices and
	// closed toward its flats; a round bore would be open in both directions.
	r := 0.96 * 2.5
	z := 2.5
	for i := 0; i < 6; i++ {
		vertex := float64(i) * math.Pi / 3
		flat := vertex + math.Pi/6
		assert.False(t, csg.Contains(s, r3.Vec{X: r * math.Cos(vertex), Y: r * math.Sin(vertex), Z: z}), "vertex %d", i)
		assert.True(t, csg.Contains(s, r3.Vec{X: r * math.Cos(flat), Y: r * math.Sin(flat), Z: z}), "flat %d", i)
	}

	round, err := Decode(KindGear, json.RawMessage(`{"teeth":20,"module":1.0,"shaft_type":"circle","bore_d":5.0}`))
	require.NoError(t, err)
	rs, err := round.Generate(k, defaultConstants(t))
	require.NoError(t, err)
	assert.False(t, csg.Contains(rs, r3.Vec{X: r * math.Cos(math.Pi/6), Y: r * math.Sin(math.Pi/6), Z: z}))
}

func TestGear_DCutFlat(t *testing.T) {
	k := testKernel()
	g := &Gear{Teeth: 20, Module: 1, Width: 5, BoreD: 5, PressureAngle: 20, ShaftType: ShaftDCut, GearType: GearSpur}
	s, err := g.Generate(k, scaling.Constants{})
	require.NoError(t, err)
	// Material remains beyond the flat at 0.9r on +X, not on -X.
	assert.True(t, csg.Contains(s, r3.Vec{X: 2.4, Z: 2.5}))
	assert.False(t, csg.Contains(s, r3.Vec{X: -2.4, Z: 2.5}))
}

func TestGear_RejectsOversizedBore(t *testing.T) {
	g := &Gear{Teeth: 10, Module: 1, Width: 5, BoreD: 8, PressureAngle: 20, ShaftType: ShaftCircle, GearType: GearSpur}
	_, err := g.Generate(testKernel(), scaling.Constants{})
	requireReason(t, err, outcome.ReasonParameter)
}

// =============================================================================
// HINGE
// =============================================================================

func TestHinge_KnuckleCountOddAtLeastThree(t *testing.T) {
	for _, l := range []float64{1, 9, 15, 20, 25, 34.9, 35, 40, 60, 99, 120, 1000} {
		n := KnuckleCount(l)
		assert.GreaterOrEqual(t, n, 3, "length %v", l)
		assert.Equal(t, 1, n%2, "length %v", l)
	}
	assert.Equal(t, 5, KnuckleCount(40))
	assert.Equal(t, 3, KnuckleCount(25))
}

func TestHinge_LayoutCoversLength(t *testing.T) {
	for _, tc := range []struct{ length, clearance float64 }{{40, 0.4}, {25, 0.3}, {100, 0.5}, {70, 0}} {
		layout := KnuckleLayout(tc.length, tc.clearance)
		require.NotEmpty(t, layout)
		assert.InDelta(t, -tc.length/2, layout[0].YStart, 1e-9)
		assert.InDelta(t, tc.length/2, layout[len(layout)-1].YEnd, 1e-9)
		assert.Equal(t, byte('A'), layout[0].Leaf)
		assert.Equal(t, byte('A'), layout[len(layout)-1].Leaf)
		for i := 1; i < len(layout); i++ {
			gap := layout[i].YStart - layout[i-1].YEnd
			assert.LessOrEqual(t, gap, tc.clearance+1e-9)
			assert.NotEqual(t, layout[i].Leaf, layout[i-1].Leaf)
		}
	}
}

func TestHinge_GeneratesTwoSeparateLeaves(t *testing.T) {
	k := testKernel()
	spec, err := Decode(KindHinge, nil)
	require.NoError(t, err)
	s, err := spec.Generate(k, scaling.Constants{})
	require.NoError(t, err)

	assert.Equal(t, kernel.KindCompound, s.Kind())
	solids, err := k.Solids(s)
	require.NoError(t, err)
	assert.Len(t, solids, 2)
	require.NoError(t, validate.New(k).Check(s))

	bb, err := k.BoundingBox(s)
	require.NoError(t, err)
	assert.InDelta(t, 40, bb.XLen(), 1e-6)
	assert.InDelta(t, 40, bb.YLen(), 1e-6)
	assert.InDelta(t, 5, bb.ZLen(), 1e-6)

	// Knuckle 1 belongs to leaf B: the pin passes through it with clearance.
	b := KnuckleLayout(40, 0.4)[1]
	y := (b.YStart + b.YEnd) / 2
	assert.True(t, csg.Contains(s, r3.Vec{Y: y, Z: 2.5}))
	assert.False(t, csg.Contains(s, r3.Vec{X: 1.5 + 0.2, Y: y, Z: 2.5}))
	assert.True(t, csg.Contains(s, r3.Vec{X: 2.2, Y: y, Z: 2.5}))
}

func TestHinge_RejectsPinThatDoesNotFit(t *testing.T) {
	h := &Hinge{Length: 40, Width: 40, Height: 4, PinDiam: 3.5, Clearance: 0.4}
	_, err := h.Generate(testKernel(), scaling.Constants{})
	requireReason(t, err, outcome.ReasonParameter)
}

// =============================================================================
// TUBE ADAPTER
// =============================================================================

func TestTube_RejectsInnerNotBelowOuter(t *testing.T) {
	k := testKernel()
	for _, ta := range []*TubeAdapter{
		{SideAID: 6, SideAOD: 6, SideBID: 4, SideBOD: 6, Length: 30, BarbWidth: 2},
		{SideAID: 7, SideAOD: 6, SideBID: 4, SideBOD: 6, Length: 30, BarbWidth: 2},
		{SideAID: 4, SideAOD: 6, SideBID: 8, SideBOD: 6, Length: 30, BarbWidth: 2},
	} {
		_, err := ta.Generate(k, scaling.Constants{})
		requireReason(t, err, outcome.ReasonParameter)
	}
}

func TestTube_RejectsBarbsThatDoNotFit(t *testing.T) {
	// 40% of 20mm leaves 8mm; 5 barbs of 2mm need 10mm.
	ta := &TubeAdapter{SideAID: 4, SideAOD: 6, SideABarb: true, SideBID: 4, SideBOD: 6, Length: 20,
		NumBarbs: 5, BarbHeightPct: 10, BarbWidth: 2}
	_, err := ta.Generate(testKernel(), scaling.Constants{})
	requireReason(t, err, outcome.ReasonParameter)
	assert.Contains(t, err.Error(), "barbs do not fit")

	ta.SideABarb = false
	_, err = ta.Generate(testKernel(), scaling.Constants{})
	assert.NoError(t, err)
}

func TestTube_BarbedAdapter(t *testing.T) {
	k := testKernel()
	ta := &TubeAdapter{SideAID: 4, SideAOD: 6, SideABarb: true, SideBID: 8, SideBOD: 10, SideBBarb: true,
		Length: 30, NumBarbs: 3, BarbHeightPct: 10, BarbWidth: 2}
	s, err := ta.Generate(k, scaling.Constants{})
	require.NoError(t, err)
	require.NoError(t, validate.New(k).Check(s))

	bb, err := k.BoundingBox(s)
	require.NoError(t, err)
	assert.InDelta(t, 30, bb.ZLen(), 1e-9)
	assert.InDelta(t, 10+2*1.0, bb.XLen(), 1e-6)

	// Bore is open end to end.
	assert.False(t, csg.Contains(s, r3.Vec{Z: 1}))
	assert.False(t, csg.Contains(s, r3.Vec{Z: 15}))
	assert.False(t, csg.Contains(s, r3.Vec{Z: 29}))
	assert.True(t, csg.Contains(s, r3.Vec{X: 2.5, Z: 5}))

	// Side A barbs flare toward +Z: full height at the top of the first slot.
	assert.True(t, csg.Contains(s, r3.Vec{X: 3.5, Z: 1.95}))
	assert.False(t, csg.Contains(s, r3.Vec{X: 3.5, Z: 0.05}))
}

func TestTube_SlenderAdapterValidates(t *testing.T) {
	k := csg.New(csg.DefaultConfig())
	for _, length := range []float64{100, 300} {
		ta := &TubeAdapter{SideAID: 5, SideAOD: 6, SideBID: 5, SideBOD: 6, Length: length}
		s, err := ta.Generate(k, scaling.Constants{})
		require.NoError(t, err)
		require.NoError(t, validate.New(k).Check(s), "length=%v", length)

		ring := kernel.SignedArea(kernel.Circle(3, kernel.CircleSegments)) -
			kernel.SignedArea(kernel.Circle(2.5, kernel.CircleSegments))
		vol, err := k.Volume(s)
		require.NoError(t, err)
		assert.InEpsilon(t, ring*length, vol, 0.15, "length=%v", length)
	}
}

// =============================================================================
// GRID PARTS
// =============================================================================

func TestBox_DefaultSettingsScenario(t *testing.T) {
	k := testKernel()
	c := defaultConstants(t)
	box := &Box{Length: 2, Width: 3, Height: 2}

	s, err := box.Generate(k, c)
	require.NoError(t, err)
	require.NoError(t, validate.New(k).Check(s))

	bb, err := k.BoundingBox(s)
	require.NoError(t, err)
	assert.Positive(t, bb.XLen())
	assert.Positive(t, bb.YLen())
	assert.Positive(t, bb.ZLen())
	assert.InDelta(t, 2*25-c.Tolerance, bb.XLen(), 1e-6)
	assert.InDelta(t, 3*25-c.Tolerance, bb.YLen(), 1e-6)
	assert.InDelta(t, 2*5+c.LipHeight, bb.ZLen(), 1e-6)

	// Hollow above the floor, solid below it.
	assert.False(t, csg.Contains(s, r3.Vec{Z: 8}))
	assert.True(t, csg.Contains(s, r3.Vec{X: 12.5, Y: 12.5, Z: 4.5}))
}

func TestBox_Options(t *testing.T) {
	k := testKernel()
	c := defaultConstants(t)

	solid, err := (&Box{Length: 1, Width: 1, Height: 3, Solid: true, NoLip: true}).Generate(k, c)
	require.NoError(t, err)
	assert.True(t, csg.Contains(solid, r3.Vec{Z: 10}))
	bb, _ := k.BoundingBox(solid)
	assert.InDelta(t, 15, bb.ZLen(), 1e-6)

	holes, err := (&Box{Length: 1, Width: 1, Height: 2, Holes: true}).Generate(k, c)
	require.NoError(t, err)
	assert.False(t, csg.Contains(holes, r3.Vec{X: c.HoleSpacing, Y: c.HoleSpacing, Z: c.MagnetDepth / 2}))
	assert.True(t, csg.Contains(holes, r3.Vec{Z: c.MagnetDepth / 2}))
}

func TestBox_Idempotent(t *testing.T) {
	k := testKernel()
	c := defaultConstants(t)
	a, err := (&Box{Length: 2, Width: 1, Height: 3}).Generate(k, c)
	require.NoError(t, err)
	b, err := (&Box{Length: 2, Width: 1, Height: 3}).Generate(k, c)
	require.NoError(t, err)

	ba, _ := k.BoundingBox(a)
	bbx, _ := k.BoundingBox(b)
	assert.InDelta(t, ba.XLen(), bbx.XLen(), 1e-12)
	assert.InDelta(t, ba.YLen(), bbx.YLen(), 1e-12)
	assert.InDelta(t, ba.ZLen(), bbx.ZLen(), 1e-12)
}

func TestBaseplate(t *testing.T) {
	k := testKernel()
	c := defaultConstants(t)

	plain, err := (&Baseplate{Length: 2, Width: 2, PaddingLength: 4, PaddingWidth: 2}).Generate(k, c)
	require.NoError(t, err)
	require.NoError(t, validate.New(k).Check(plain))
	bb, _ := k.BoundingBox(plain)
	assert.InDelta(t, 54, bb.XLen(), 1e-6)
	assert.InDelta(t, 52, bb.YLen(), 1e-6)
	assert.InDelta(t, c.BaseHeight, bb.ZLen(), 1e-6)
	// Pocket centres are open all the way through without an extension slab.
	assert.False(t, csg.Contains(plain, r3.Vec{X: 12.5, Y: 12.5, Z: 1}))

	screwed := &Baseplate{Length: 1, Width: 1, CornerScrews: true}
	s, err := screwed.Generate(k, c)
	require.NoError(t, err)
	require.NoError(t, validate.New(k).Check(s))
	bb, _ = k.BoundingBox(s)
	assert.InDelta(t, screwed.EffectiveExtDepth()+c.BaseHeight, bb.ZLen(), 1e-6)
	assert.InDelta(t, countersinkDepth()+screwFloor, screwed.EffectiveExtDepth(), 1e-12)
	assert.False(t, csg.Contains(s, r3.Vec{X: c.HoleSpacing, Y: c.HoleSpacing, Z: 0.5}))
	assert.True(t, csg.Contains(s, r3.Vec{Z: 0.5}))
}

func TestBaseplate_RegistryNeedsExtension(t *testing.T) {
	k := testKernel()
	c := defaultConstants(t)
	_, err := (&Baseplate{Length: 1, Width: 1, Registry: true}).Generate(k, c)
	requireReason(t, err, outcome.ReasonParameter)

	s, err := (&Baseplate{Length: 1, Width: 1, Registry: true, ExtDepth: 3}).Generate(k, c)
	require.NoError(t, err)
	assert.False(t, csg.Contains(s, r3.Vec{X: c.RegistryR0 - 0.5, Z: 0.5}))
	assert.True(t, csg.Contains(s, r3.Vec{X: c.RegistryR0 - 0.5, Z: 1.5}))
}

func TestLid_Handles(t *testing.T) {
	k := testKernel()
	c := defaultConstants(t)
	top := c.BoxProfile.Height() + 0.5*5

	plain, err := (&Lid{Length: 2, Width: 2, Height: 0.5, HandleStyle: HandleNone}).Generate(k, c)
	require.NoError(t, err)
	bb, _ := k.BoundingBox(plain)
	assert.InDelta(t, top, bb.ZLen(), 1e-6)
	assert.True(t, csg.Contains(plain, r3.Vec{Z: top - 0.1}))

	loop, err := (&Lid{Length: 2, Width: 2, Height: 0.5, HandleStyle: HandleLoop, HandleHeight: 9}).Generate(k, c)
	require.NoError(t, err)
	require.NoError(t, validate.New(k).Check(loop))
	assert.Equal(t, kernel.KindSolid, loop.Kind())
	bb, _ = k.BoundingBox(loop)
	assert.InDelta(t, top+9, bb.ZLen(), 1e-6)

	minDim := 2*25 - c.Tolerance
	wall := LoopWall(minDim, 9)
	side := minDim / 3
	// Opening through X, walls on ±Y, bridge on top.
	assert.False(t, csg.Contains(loop, r3.Vec{Z: top + 2}))
	assert.True(t, csg.Contains(loop, r3.Vec{Y: side/2 - wall/2, Z: top + 2}))
	assert.True(t, csg.Contains(loop, r3.Vec{Z: top + 9 - wall/2}))
}

func TestLid_LoopWall(t *testing.T) {
	assert.InDelta(t, 3.0, LoopWall(100, 20), 1e-12)
	assert.InDelta(t, 2.0, LoopWall(20, 20), 1e-12)
	assert.InDelta(t, 1.0, LoopWall(100, 3), 1e-12)
}

// =============================================================================
// DECODING
// =============================================================================

func TestDecode(t *testing.T) {
	spec, err := Decode(KindBox, json.RawMessage(`{"length":2,"width":3,"height":2,"ignored":true}`))
	require.NoError(t, err)
	assert.Equal(t, &Box{Length: 2, Width: 3, Height: 2}, spec)

	spec, err = Decode(KindGear, nil)
	require.NoError(t, err)
	assert.Equal(t, 20, spec.(*Gear).Teeth)

	_, err = Decode(KindGear, json.RawMessage(`{"teeth":3}`))
	requireReason(t, err, outcome.ReasonParameter)
	assert.Contains(t, err.Error(), "teeth")

	_, err = Decode(KindGear, json.RawMessage(`{"pressure_angle":45}`))
	requireReason(t, err, outcome.ReasonParameter)

	_, err = Decode(KindLid, json.RawMessage(`{"handle_style":"knob"}`))
	requireReason(t, err, outcome.ReasonParameter)

	_, err = Decode(KindBox, json.RawMessage(`{"length":"two"}`))
	requireReason(t, err, outcome.ReasonParameter)

	_, err = Decode(Kind("teapot"), nil)
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestEveryKindGeneratesWithDefaults(t *testing.T) {
	k := testKernel()
	c := defaultConstants(t)
	v := validate.New(k)
	for _, kind := range Kinds() {
		t.Run(string(kind), func(t *testing.T) {
			spec, err := Decode(kind, nil)
			require.NoError(t, err)
			assert.Equal(t, kind, spec.Kind())
			s, err := spec.Generate(k, c)
			require.NoError(t, err)
			assert.NoError(t, v.Check(s))
		})
	}
}
