// Package parts holds the six parametric part generators and the PartSpec
// tagged union that selects between them.
//
// Every generator is a pure function of its parameters and the resolved grid
// constants: it builds a shape from an explicit sequence of kernel operations
// and never touches global state.
package parts

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/outcome"
	"github.com/loganrf/OpenGridGen/internal/scaling"
)

// Kind names a part family.
type Kind string

const (
	KindBox         Kind = "box"
	KindBaseplate   Kind = "baseplate"
	KindLid         Kind = "lid"
	KindGear        Kind = "gear"
	KindHinge       Kind = "hinge"
	KindTubeAdapter Kind = "tube_adapter"
)

// Kinds lists every supported part family.
func Kinds() []Kind {
	return []Kind{KindBox, KindBaseplate, KindLid, KindGear, KindHinge, KindTubeAdapter}
}

// ErrUnknownKind is returned by Decode for an unsupported part family.
var ErrUnknownKind = errors.New("unknown part kind")

// Spec is the PartSpec tagged union. Implementations are the parameter
// structs in this package; each knows how to generate itself.
type Spec interface {
	Kind() Kind
	Generate(k kernel.Kernel, c scaling.Constants) (kernel.Shape, error)
}

// GenerationError wraps a generator failure with the part it came from.
// Parameter violations keep their *outcome.ValidationError cause so callers
// can classify them with errors.As.
type GenerationError struct {
	Part  Kind
	Cause error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate %s: %v", e.Part, e.Cause)
}

func (e *GenerationError) Unwrap() error { return e.Cause }

func genErr(part Kind, cause error) error {
	return &GenerationError{Part: part, Cause: cause}
}

func paramErr(part Kind, format string, args ...interface{}) error {
	return genErr(part, outcome.ParameterError(format, args...))
}

// kernelErr marks an unexpected kernel failure during a named step.
func kernelErr(part Kind, step string, err error) error {
	return genErr(part, fmt.Errorf("%s: %w", step, err))
}

// =============================================================================
// DECODING
// =============================================================================

// paramsValidate is the validator instance for part parameters.
var paramsValidate *validator.Validate

func init() {
	paramsValidate = validator.New()
	paramsValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// Default returns the default parameter set for kind.
func Default(kind Kind) (Spec, error) {
	switch kind {
	case KindBox:
		return &Box{Length: 1, Width: 1, Height: 1}, nil
	case KindBaseplate:
		return &Baseplate{Length: 1, Width: 1}, nil
	case KindLid:
		return &Lid{Length: 1, Width: 1, Height: 0.5, HandleStyle: HandleNone, HandleHeight: 5}, nil
	case KindGear:
		return &Gear{
			Teeth: 20, Module: 1, Width: 5, BoreD: 5, PressureAngle: 20,
			ShaftType: ShaftCircle, GearType: GearSpur,
		}, nil
	case KindHinge:
		return &Hinge{Length: 40, Width: 40, Height: 5, PinDiam: 3, Clearance: 0.4}, nil
	case KindTubeAdapter:
		return &TubeAdapter{
			SideAID: 4, SideAOD: 6, SideBID: 4, SideBOD: 6, Length: 30,
			NumBarbs: 3, BarbHeightPct: 10, BarbWidth: 2,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Decode builds a validated Spec from a JSON parameter bag. Missing fields
// keep their defaults; unknown fields are ignored.
func Decode(kind Kind, raw json.RawMessage) (Spec, error) {
	spec, err := Default(kind)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, spec); err != nil {
			return nil, outcome.ParameterError("decode %s parameters: %v", kind, err)
		}
	}
	if err := Validate(spec); err != nil {
		return nil, err
	}
	return spec, nil
}

// Validate checks field ranges declared in the struct tags.
func Validate(spec Spec) error {
	err := paramsValidate.Struct(spec)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return outcome.ParameterError("%s: %v", spec.Kind(), err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s must satisfy %s (got %v)", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	sort.Strings(msgs)
	return outcome.ParameterError("%s: %s", spec.Kind(), strings.Join(msgs, "; "))
}
