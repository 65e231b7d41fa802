package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// DealiasParams are the knobs handed to the unfolding implementation.
type DealiasParams struct {
	// VelocityField names the moment to unfold.
	VelocityField string

	// NyquistVelocity is the folding velocity in m/s. Zero means the
	// implementation infers a distinct value for every sweep.
	NyquistVelocity float64

	// SkipAlongRay and SkipBetweenRays bound how many censored gates may be
	// jumped when joining regions; zero disables unfolding across gaps.
	SkipAlongRay    int
	SkipBetweenRays int
}

// Dealiaser performs region-based Doppler velocity unfolding. The algorithm
// itself lives outside this service.
type Dealiaser interface {
	DealiasRegionBased(ctx context.Context, vol *Volume, p DealiasParams) (*Field, error)
}

// DealiasOptions configure the orchestration around a Dealiaser call.
type DealiasOptions struct {
	VelocityField   string  // defaults to "velocity"
	NewFieldName    string  // defaults to "dealiased_velocity"
	NyquistVelocity float64 // explicit Nyquist; ignored for NEXRAD Level II
	SkipAlongRay    int
	SkipBetweenRays int
}

// DealiasVelocity unfolds a volume's Doppler velocity field and attaches the
// result as a new field, replacing any field already under that name.
//
// NEXRAD Level II volumes keep every sweep and pass Nyquist 0 so the
// implementation detects the per-sweep values. Other containers, when an
// explicit Nyquist is supplied, first drop sweeps whose velocity field has no
// live data — some writers emit sweeps that carry one moment but not another.
//
// The returned volume is the input volume unless sweeps were dropped, in
// which case it is the extracted sub-volume.
func DealiasVelocity(ctx context.Context, vol *Volume, d Dealiaser, opts DealiasOptions, logger *slog.Logger) (*Volume, error) {
	if d == nil {
		return nil, errors.New("dealias: no dealiaser configured")
	}

	velField := opts.VelocityField
	if velField == "" {
		velField = FieldVelocity
	}
	newName := opts.NewFieldName
	if newName == "" {
		newName = FieldDealiasedVel
	}
	if _, ok := vol.Fields[velField]; !ok {
		return nil, fmt.Errorf("dealias: %q: %w", velField, ErrFieldNotFound)
	}

	nyquist := opts.NyquistVelocity
	if vol.Meta.OriginalContainer == ContainerNEXRAD {
		nyquist = 0
	} else if nyquist != 0 {
		var good []int
		for i := 0; i < vol.NSweeps(); i++ {
			if vol.SweepHasData(velField, i) {
				good = append(good, i)
			}
		}
		if len(good) == 0 {
			return nil, fmt.Errorf("dealias: field %q has no live sweeps", velField)
		}
		if len(good) < vol.NSweeps() {
			logger.Info("dropping empty sweeps before dealiasing",
				"field", velField,
				"kept", len(good),
				"total", vol.NSweeps(),
			)
			extracted, err := vol.ExtractSweeps(good)
			if err != nil {
				return nil, fmt.Errorf("dealias: %w", err)
			}
			vol = extracted
		}
	}

	corrected, err := d.DealiasRegionBased(ctx, vol, DealiasParams{
		VelocityField:   velField,
		NyquistVelocity: nyquist,
		SkipAlongRay:    opts.SkipAlongRay,
		SkipBetweenRays: opts.SkipBetweenRays,
	})
	if err != nil {
		return nil, fmt.Errorf("dealias: %w", err)
	}

	if err := vol.AddField(newName, corrected); err != nil {
		return nil, fmt.Errorf("dealias: %w", err)
	}
	vol.recordStep(StepDealias)
	return vol, nil
}
