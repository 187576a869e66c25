package csg

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
)

// ExportSTL implements kernel.Kernel, writing binary STL.
func (k *Kernel) ExportSTL(s kernel.Shape, w io.Writer) error {
	m, err := k.surface(s)
	if err != nil {
		return err
	}

	bw := bufio.NewWriter(w)
	var header [80]byte
	copy(header[:], "OpenGridGen binary STL")
	if _, err := bw.Write(header[:]); err != nil {
		return fmt.Errorf("write stl header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(m.tris))); err != nil {
		return fmt.Errorf("write stl facet count: %w", err)
	}

	var rec [50]byte
	for _, t := range m.tris {
		n := m.normal(t)
		putVec := func(off int, x, y, z float64) {
			binary.LittleEndian.PutUint32(rec[off:], math.Float32bits(float32(x)))
			binary.LittleEndian.PutUint32(rec[off+4:], math.Float32bits(float32(y)))
			binary.LittleEndian.PutUint32(rec[off+8:], math.Float32bits(float32(z)))
		}
		putVec(0, n.X, n.Y, n.Z)
		for i, vi := range t {
			v := m.verts[vi]
			putVec(12+12*i, v.X, v.Y, v.Z)
		}
		rec[48], rec[49] = 0, 0
		if _, err := bw.Write(rec[:]); err != nil {
			return fmt.Errorf("write stl facet: %w", err)
		}
	}
	return bw.Flush()
}

// ExportSTEP implements kernel.Kernel, writing an ISO 10303-21 file with one
// faceted B-rep per solid.
func (k *Kernel) ExportSTEP(s kernel.Shape, w io.Writer) error {
	n, err := unwrap(s)
	if err != nil {
		return err
	}
	solids := []node{n}
	if c, ok := n.(*compound); ok {
		solids = c.solids
	}

	sw := &stepWriter{w: bufio.NewWriter(w)}
	sw.header()

	ctx := sw.context()
	var breps []int
	for _, solid := range solids {
		m := k.tessellate(solid)
		if len(m.tris) == 0 {
			continue
		}
		breps = append(breps, sw.brep(m))
	}
	if len(breps) == 0 {
		return fmt.Errorf("%w: nothing to export", kernel.ErrDegenerate)
	}
	sw.product(breps, ctx)
	sw.line("ENDSEC;")
	sw.line("END-ISO-10303-21;")
	if sw.err != nil {
		return fmt.Errorf("write step: %w", sw.err)
	}
	return sw.w.Flush()
}

func (k *Kernel) surface(s kernel.Shape) (mesh, error) {
	n, err := unwrap(s)
	if err != nil {
		return mesh{}, err
	}
	timer := logging.StartTimer(logging.CategoryKernel, "tessellate")
	m := k.tessellate(n)
	timer.Stop()
	if len(m.tris) == 0 {
		return mesh{}, fmt.Errorf("%w: shape has no surface", kernel.ErrDegenerate)
	}
	logging.KernelDebug("tessellate: %d vertices, %d triangles", len(m.verts), len(m.tris))
	return m, nil
}

// stepWriter numbers entities sequentially and remembers the first write error.
type stepWriter struct {
	w    *bufio.Writer
	next int
	err  error
}

func (s *stepWriter) line(format string, args ...interface{}) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *stepWriter) entity(format string, args ...interface{}) int {
	s.next++
	id := s.next
	s.line("#%d=%s;", id, fmt.Sprintf(format, args...))
	return id
}

func (s *stepWriter) header() {
	s.line("ISO-10303-21;")
	s.line("HEADER;")
	s.line("FILE_DESCRIPTION(('OpenGridGen part'),'2;1');")
	s.line("FILE_NAME('part.step','%s',(''),(''),'OpenGridGen','OpenGridGen','');",
		time.Now().UTC().Format("2006-01-02T15:04:05"))
	s.line("FILE_SCHEMA(('CONFIG_CONTROL_DESIGN'));")
	s.line("ENDSEC;")
	s.line("DATA;")
}

// context writes the millimetre/radian representation context.
func (s *stepWriter) context() int {
	length := s.entity("(LENGTH_UNIT()NAMED_UNIT(*)SI_UNIT(.MILLI.,.METRE.))")
	angle := s.entity("(NAMED_UNIT(*)PLANE_ANGLE_UNIT()SI_UNIT($,.RADIAN.))")
	solid := s.entity("(NAMED_UNIT(*)SI_UNIT($,.STERADIAN.)SOLID_ANGLE_UNIT())")
	uncertainty := s.entity("UNCERTAINTY_MEASURE_WITH_UNIT(LENGTH_MEASURE(1.E-06),#%d,'distance_accuracy_value','')", length)
	return s.entity("(GEOMETRIC_REPRESENTATION_CONTEXT(3)GLOBAL_UNCERTAINTY_ASSIGNED_CONTEXT((#%d))"+
		"GLOBAL_UNIT_ASSIGNED_CONTEXT((#%d,#%d,#%d))REPRESENTATION_CONTEXT('',''))",
		uncertainty, length, angle, solid)
}

func (s *stepWriter) brep(m mesh) int {
	points := make([]int, len(m.verts))
	for i, v := range m.verts {
		points[i] = s.entity("CARTESIAN_POINT('',(%s,%s,%s))", stepReal(v.X), stepReal(v.Y), stepReal(v.Z))
	}
	faces := make([]string, 0, len(m.tris))
	for _, t := range m.tris {
		loop := s.entity("POLY_LOOP('',(#%d,#%d,#%d))", points[t[0]], points[t[1]], points[t[2]])
		bound := s.entity("FACE_OUTER_BOUND('',#%d,.T.)", loop)
		faces = append(faces, fmt.Sprintf("#%d", s.entity("FACE('',(#%d))", bound)))
	}
	shell := s.entity("CLOSED_SHELL('',(%s))", strings.Join(faces, ","))
	return s.entity("FACETED_BREP('',#%d)", shell)
}

func (s *stepWriter) product(breps []int, ctx int) {
	app := s.entity("APPLICATION_CONTEXT('configuration controlled 3d designs of mechanical parts and assemblies')")
	s.entity("APPLICATION_PROTOCOL_DEFINITION('international standard','config_control_design',1994,#%d)", app)
	pctx := s.entity("MECHANICAL_CONTEXT('',#%d,'mechanical')", app)
	prod := s.entity("PRODUCT('part','part','',(#%d))", pctx)
	form := s.entity("PRODUCT_DEFINITION_FORMATION_WITH_SPECIFIED_SOURCE('','',#%d,.NOT_KNOWN.)", prod)
	dctx := s.entity("DESIGN_CONTEXT('',#%d,'design')", app)
	def := s.entity("PRODUCT_DEFINITION('design','',#%d,#%d)", form, dctx)
	shape := s.entity("PRODUCT_DEFINITION_SHAPE('','',#%d)", def)

	refs := make([]string, len(breps))
	for i, b := range breps {
		refs[i] = fmt.Sprintf("#%d", b)
	}
	rep := s.entity("FACETED_BREP_SHAPE_REPRESENTATION('',(%s),#%d)", strings.Join(refs, ","), ctx)
	s.entity("SHAPE_DEFINITION_REPRESENTATION(#%d,#%d)", shape, rep)
}

// stepReal formats a float the way Part 21 requires: always with a decimal point.
func stepReal(v float64) string {
	out := fmt.Sprintf("%.6f", v)
	if out == "-0.000000" {
		out = "0.000000"
	}
	return out
}
