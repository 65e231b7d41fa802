package domain

import "fmt"

// QC step names recorded in Meta.QCHistory and used as metric labels.
const (
	StepReflectivityNoise = "reflectivity_noise"
	StepMountainClutter   = "mountain_clutter"
	StepZdrNoise          = "zdr_noise"
	StepRhoHVNoise        = "rhohv_noise"
	StepPhiDPNoise        = "phidp_noise"
	StepNCPNoise          = "ncp_noise"
	StepSNRNoise          = "snr_noise"
	StepDealias           = "dealias"
	StepChillSweepFix     = "chill_sweep_fix"
)

// Mountain clutter thresholds: returns slower than 0.2 m/s in either
// direction with reflectivity above 25 dBZ are treated as terrain.
const (
	clutterSpeedMax        = 0.2
	clutterReflectivityMin = 25.0
)

// recordStep appends a QC step to the volume history and stamps ProcessedAt.
func (v *Volume) recordStep(step string) {
	v.Meta.QCHistory = append(v.Meta.QCHistory, step)
	v.Meta.ProcessedAt = clock.Now()
}

// applyMask censors mask-true gates across every field and returns the
// number of gates masked.
func (v *Volume) applyMask(mask []bool) int {
	n := 0
	for _, m := range mask {
		if m {
			n++
		}
	}
	if n == 0 {
		return 0
	}
	for _, f := range v.Fields {
		for i, m := range mask {
			if m {
				f.Data[i] = Missing()
			}
		}
	}
	return n
}

// maskOutside flags gates of data falling outside [min, max]. Missing gates
// (NaN) never compare true and are left alone.
func maskOutside(data []float64, min, max float64, mask []bool) {
	for i, val := range data {
		if val > max || val < min {
			mask[i] = true
		}
	}
}

// ClampFieldRange clips a single named field to [min, max]: values above max
// become max, values below min become min. Returns the number of gates
// adjusted. Clamping is idempotent.
func ClampFieldRange(vol *Volume, field string, min, max float64) (int, error) {
	f, ok := vol.Fields[field]
	if !ok {
		return 0, fmt.Errorf("clamp %q: %w", field, ErrFieldNotFound)
	}
	n := 0
	for i, val := range f.Data {
		switch {
		case val > max:
			f.Data[i] = max
			n++
		case val < min:
			f.Data[i] = min
			n++
		}
	}
	vol.recordStep("clamp:" + field)
	return n, nil
}

// filterOutside censors all fields wherever the driving field (first matching
// name) falls outside [min, max].
func filterOutside(vol *Volume, step string, min, max float64, names ...string) (int, error) {
	f, _, err := vol.FieldAny(names...)
	if err != nil {
		return 0, fmt.Errorf("%s filter: %w", step, err)
	}
	mask := make([]bool, len(f.Data))
	maskOutside(f.Data, min, max, mask)
	n := vol.applyMask(mask)
	vol.recordStep(step)
	return n, nil
}

// FilterReflectivityNoise censors gates whose reflectivity lies outside
// [zMin, zMax] dBZ. Volumes without a combined "reflectivity" moment fall
// back to the split dual-pol channels: DBZH drives the high cutoff and DBZV
// the low cutoff.
func FilterReflectivityNoise(vol *Volume, zMin, zMax float64) (int, error) {
	mask := make([]bool, vol.Rays*vol.Gates)

	if f, ok := vol.Fields[FieldReflectivity]; ok {
		maskOutside(f.Data, zMin, zMax, mask)
	} else {
		h, okH := vol.Fields[FieldDBZH]
		vv, okV := vol.Fields[FieldDBZV]
		if !okH || !okV {
			return 0, fmt.Errorf("%s filter: %w (tried %s, %s/%s)",
				StepReflectivityNoise, ErrFieldNotFound, FieldReflectivity, FieldDBZH, FieldDBZV)
		}
		for i := range h.Data {
			if h.Data[i] > zMax || vv.Data[i] < zMin {
				mask[i] = true
			}
		}
	}

	n := vol.applyMask(mask)
	vol.recordStep(StepReflectivityNoise)
	return n, nil
}

// FilterMountainClutter censors near-stationary high-reflectivity returns:
// |dealiased velocity| < 0.2 m/s with reflectivity > 25 dBZ. Works
// surprisingly well on terrain clutter in winter storms. Requires the
// dealiased velocity field, so it must run after DealiasVelocity.
func FilterMountainClutter(vol *Volume) (int, error) {
	vel, ok := vol.Fields[FieldDealiasedVel]
	if !ok {
		return 0, fmt.Errorf("%s filter: %q: %w", StepMountainClutter, FieldDealiasedVel, ErrFieldNotFound)
	}
	refl, ok := vol.Fields[FieldReflectivity]
	if !ok {
		return 0, fmt.Errorf("%s filter: %q: %w", StepMountainClutter, FieldReflectivity, ErrFieldNotFound)
	}

	mask := make([]bool, len(vel.Data))
	for i := range vel.Data {
		if vel.Data[i] < clutterSpeedMax && vel.Data[i] > -clutterSpeedMax &&
			refl.Data[i] > clutterReflectivityMin {
			mask[i] = true
		}
	}

	n := vol.applyMask(mask)
	vol.recordStep(StepMountainClutter)
	return n, nil
}

// FilterZdrNoise censors gates whose differential reflectivity lies outside
// [min, max] dB.
func FilterZdrNoise(vol *Volume, min, max float64) (int, error) {
	return filterOutside(vol, StepZdrNoise, min, max, FieldZdr)
}

// FilterRhoHVNoise censors gates whose cross-correlation ratio lies outside
// [min, max], trying the three naming conventions in order.
func FilterRhoHVNoise(vol *Volume, min, max float64) (int, error) {
	return filterOutside(vol, StepRhoHVNoise, min, max,
		FieldRhoHV, FieldRhoHVShort, FieldCorrelationCoeff)
}

// FilterPhiDPNoise censors gates whose differential phase lies outside
// [min, max] degrees, trying the two naming conventions in order.
func FilterPhiDPNoise(vol *Volume, min, max float64) (int, error) {
	return filterOutside(vol, StepPhiDPNoise, min, max,
		FieldPhiDP, FieldSpecificPhase)
}

// FilterNCPNoise censors gates whose normalized coherent power lies outside
// [min, max].
func FilterNCPNoise(vol *Volume, min, max float64) (int, error) {
	return filterOutside(vol, StepNCPNoise, min, max, FieldNCP)
}

// FilterSNRNoise keeps only gates whose signal-to-noise ratio lies strictly
// within (min, max) dB; everything else, including gates with missing SNR, is
// censored.
func FilterSNRNoise(vol *Volume, min, max float64) (int, error) {
	f, ok := vol.Fields[FieldSNR]
	if !ok {
		return 0, fmt.Errorf("%s filter: %q: %w", StepSNRNoise, FieldSNR, ErrFieldNotFound)
	}

	mask := make([]bool, len(f.Data))
	for i, val := range f.Data {
		within := val < max && val > min
		if !within {
			mask[i] = true
		}
	}

	n := vol.applyMask(mask)
	vol.recordStep(StepSNRNoise)
	return n, nil
}
