// Package validate rejects degenerate or non-manufacturable geometry before
// it is exported.
package validate

import (
	"github.com/loganrf/OpenGridGen/internal/kernel"
	"github.com/loganrf/OpenGridGen/internal/logging"
	"github.com/loganrf/OpenGridGen/internal/outcome"
)

// Validator checks shapes produced by a kernel.
type Validator struct {
	k kernel.Kernel
}

// New creates a Validator bound to k.
func New(k kernel.Kernel) *Validator {
	return &Validator{k: k}
}

// Check applies the rules in order and returns the first violation as a
// *outcome.ValidationError, or nil when the shape is sound.
//
// Single solids need every shell closed and a strictly positive volume.
// Compounds need every constituent solid to have closed shells.
func (v *Validator) Check(s kernel.Shape) error {
	if s == nil {
		return outcome.Invalid(outcome.ReasonEmptyShape, "generator returned no shape")
	}
	ok, err := v.k.IsValid(s)
	if err != nil {
		return outcome.Invalid(outcome.ReasonUnretrievable, "%v", err)
	}
	if !ok {
		return outcome.Invalid(outcome.ReasonTopologyInvalid, "kernel reports invalid topology")
	}

	var verr error
	switch s.Kind() {
	case kernel.KindSolid:
		verr = v.checkSolid(s)
	case kernel.KindCompound:
		verr = v.checkCompound(s)
	default:
		verr = outcome.Invalid(outcome.ReasonUnsupportedShapeKind, "kind %v", s.Kind())
	}
	if verr != nil {
		logging.ValidatorWarn("shape rejected: %v", verr)
		return verr
	}
	logging.Get(logging.CategoryValidator).Debug("%s accepted", s.Kind())
	return nil
}

func (v *Validator) checkSolid(s kernel.Shape) error {
	shells, err := v.k.Shells(s)
	if err != nil {
		return outcome.Invalid(outcome.ReasonUnretrievable, "shells: %v", err)
	}
	if len(shells) == 0 {
		return outcome.Invalid(outcome.ReasonNoShells, "solid has no shells")
	}
	for i, sh := range shells {
		if !sh.Closed() {
			return outcome.Invalid(outcome.ReasonOpenShell, "shell %d is not closed", i)
		}
	}
	vol, err := v.k.Volume(s)
	if err != nil {
		return outcome.Invalid(outcome.ReasonUnretrievable, "volume: %v", err)
	}
	if !(vol > 0) {
		return outcome.Invalid(outcome.ReasonNonPositiveVolume, "volume=%g", vol)
	}
	return nil
}

func (v *Validator) checkCompound(s kernel.Shape) error {
	solids, err := v.k.Solids(s)
	if err != nil {
		return outcome.Invalid(outcome.ReasonUnretrievable, "solids: %v", err)
	}
	if len(solids) == 0 {
		return outcome.Invalid(outcome.ReasonEmptyShape, "compound has no solids")
	}
	for i, solid := range solids {
		shells, err := v.k.Shells(solid)
		if err != nil {
			return outcome.Invalid(outcome.ReasonUnretrievable, "solid %d shells: %v", i, err)
		}
		if len(shells) == 0 {
			return outcome.Invalid(outcome.ReasonCompoundNoShells, "solid %d has no shells", i)
		}
		for j, sh := range shells {
			if !sh.Closed() {
				return outcome.Invalid(outcome.ReasonCompoundOpenShell, "solid %d shell %d is not closed", i, j)
			}
		}
	}
	return nil
}
