// Package generation binds a part generator, the geometry validator and the
// exporter into one Generation Task, and submits tasks to the executor.
//
// Runner is the task body and runs inside a worker process. Service is the
// caller-facing facade: it snapshots the unit settings, rejects bad
// requests early, picks the per-kind deadline and records every outcome.
package generation

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/loganrf/OpenGridGen/internal/executor"
	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/parts"
	"github.com/loganrf/OpenGridGen/internal/scaling"
	"github.com/loganrf/OpenGridGen/internal/validate"
)

// Format selects the export file format.
type Format string

const (
	FormatSTEP Format = "step"
	FormatSTL  Format = "stl"
)

// ErrUnsupportedFormat is matched by errors.Is on a bad format selector.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts "step" (the default) and "stl", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "step", "stp":
		return FormatSTEP, nil
	case "stl":
		return FormatSTL, nil
	default:
		return "", fmt.Errorf("%w: %w", outcome.ParameterError("format %q", s), ErrUnsupportedFormat)
	}
}

// Extension is the file name extension for f.
func (f Format) Extension() string {
	if f == FormatSTL {
		return ".stl"
	}
	return ".step"
}

// DecodeSpec resolves a part kind and parameter bag into a validated spec.
// An unknown kind is a parameter error.
func DecodeSpec(kind parts.Kind, params []byte) (parts.Spec, error) {
	spec, err := parts.Decode(kind, params)
	if errors.Is(err, parts.ErrUnknownKind) {
		return nil, fmt.Errorf("%w: %w", outcome.ParameterError("part kind %q", kind), err)
	}
	return spec, err
}

// Runner executes Generation Tasks against one kernel.
type Runner struct {
	kernel    kernel.Kernel
	validator *validate.Validator
}

// NewRunner creates a runner for k.
func NewRunner(k kernel.Kernel) *Runner {
	return &Runner{kernel: k, validator: validate.New(k)}
}

// Run resolves the grid constants for settings, generates spec, validates
// the shape, exports it to outputPath when one is given and returns the
// bounding-box dimensions.
func (r *Runner) Run(spec parts.Spec, settings scaling.UnitSettings, format Format, outputPath string) (outcome.Result, error) {
	timer := logging.StartTimer(logging.CategoryGenerator, "generate "+string(spec.Kind()))
	defer timer.Stop()

	constants, err := scaling.Resolve(settings)
	if err != nil {
		return outcome.Result{}, fmt.Errorf("%w: %w", outcome.ParameterError("unit settings"), err)
	}

	shape, err := spec.Generate(r.kernel, constants)
	if err != nil {
		return outcome.Result{}, err
	}
	if err := r.validator.Check(shape); err != nil {
		return outcome.Result{}, err
	}

	bb, err := r.kernel.BoundingBox(shape)
	if err != nil {
		return outcome.Result{}, fmt.Errorf("bounding box: %w", err)
	}
	res := outcome.Result{Dims: outcome.Dimensions{X: bb.XLen(), Y: bb.YLen(), Z: bb.ZLen()}}

	if outputPath != "" {
		if err := r.export(shape, format, outputPath); err != nil {
			return outcome.Result{}, err
		}
		res.ExportedPath = outputPath
	}
	logging.GeneratorDebug("%s: %s", spec.Kind(), res.Dims)
	return res, nil
}

// Handle is the executor.Handler for worker processes.
func (r *Runner) Handle(job executor.Job) (outcome.Result, error) {
	spec, err := DecodeSpec(parts.Kind(job.Kind), job.Params)
	if err != nil {
		return outcome.Result{}, err
	}
	format, err := ParseFormat(job.Format)
	if err != nil {
		return outcome.Result{}, err
	}
	return r.Run(spec, job.Settings, format, job.OutputPath)
}

// export writes the shape to the partial path and renames it into place.
// On failure neither file is left behind.
func (r *Runner) export(s kernel.Shape, format Format, path string) (err error) {
	timer := logging.StartTimer(logging.CategoryGenerator, "export "+string(format))
	defer timer.Stop()

	partial := executor.PartialPath(path)
	f, err := os.Create(partial)
	if err != nil {
		return fmt.Errorf("create export: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(partial)
			_ = os.Remove(path)
		}
	}()

	w := bufio.NewWriter(f)
	switch format {
	case FormatSTL:
		err = r.kernel.ExportSTL(s, w)
	default:
		err = r.kernel.ExportSTEP(s, w)
	}
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("export %s: %w", format, err)
	}
	if err = os.Rename(partial, path); err != nil {
		return fmt.Errorf("finalize export: %w", err)
	}
	return nil
}
