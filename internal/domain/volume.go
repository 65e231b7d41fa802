package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Canonical and vendor-specific moment names encountered in the field.
const (
	FieldReflectivity     = "reflectivity"
	FieldDBZH             = "DBZH"
	FieldDBZV             = "DBZV"
	FieldZdr              = "differential_reflectivity"
	FieldRhoHV            = "cross_correlation_ratio"
	FieldRhoHVShort       = "RHOHV"
	FieldCorrelationCoeff = "correlation_coefficient"
	FieldPhiDP            = "PHIDP"
	FieldSpecificPhase    = "specific_differential_phase"
	FieldNCP              = "normalized_coherent_power"
	FieldSNR              = "snr"
	FieldVelocity         = "velocity"
	FieldDealiasedVel     = "dealiased_velocity"
)

// ContainerNEXRAD is the original_container tag of NEXRAD Level II archives,
// which carry a distinct Nyquist velocity on every sweep.
const ContainerNEXRAD = "NEXRAD Level II"

// DefaultFillValue is the CfRadial-conventional sentinel substituted for
// missing gates at serialization boundaries.
const DefaultFillValue = -9999.0

// ErrFieldNotFound reports that no candidate name of a fallback chain matched.
var ErrFieldNotFound = errors.New("field not found")

// Missing returns the in-memory missing-gate sentinel.
func Missing() float64 { return math.NaN() }

// IsMissing reports whether a gate value is the missing sentinel.
func IsMissing(v float64) bool { return math.IsNaN(v) }

// Field is one named moment: a flat row-major [ray, gate] array.
type Field struct {
	Data      []float64
	Units     string
	FillValue float64
}

// Meta carries volume provenance and QC history.
type Meta struct {
	InstrumentName    string
	OriginalContainer string
	ScanTime          time.Time

	// ProcessedAt and QCHistory are stamped by the filters in this package.
	ProcessedAt time.Time
	QCHistory   []string
}

// Volume is an in-memory radar volume scan. All fields share the same
// [Rays, Gates] shape; see the package documentation for layout details.
type Volume struct {
	Rays  int
	Gates int

	Fields map[string]*Field

	// Inclusive per-sweep ray bounds and per-sweep Nyquist velocities (m/s).
	SweepStartRay   []int
	SweepEndRay     []int
	NyquistVelocity []float64

	Meta Meta
}

// NewVolume creates an empty volume of the given shape.
func NewVolume(rays, gates int) *Volume {
	return &Volume{
		Rays:   rays,
		Gates:  gates,
		Fields: make(map[string]*Field),
	}
}

// Index converts (ray, gate) coordinates to a flat field offset.
func (v *Volume) Index(ray, gate int) int { return ray*v.Gates + gate }

// NSweeps returns the number of sweeps in the volume.
func (v *Volume) NSweeps() int { return len(v.SweepStartRay) }

// SweepBounds returns the inclusive ray range of sweep i.
func (v *Volume) SweepBounds(i int) (start, end int, err error) {
	if i < 0 || i >= v.NSweeps() {
		return 0, 0, fmt.Errorf("sweep %d out of range (volume has %d sweeps)", i, v.NSweeps())
	}
	return v.SweepStartRay[i], v.SweepEndRay[i], nil
}

// AddField attaches a field to the volume, replacing any existing field of
// the same name. The data length must match the volume shape.
func (v *Volume) AddField(name string, f *Field) error {
	if f == nil {
		return fmt.Errorf("add field %q: nil field", name)
	}
	if want := v.Rays * v.Gates; len(f.Data) != want {
		return fmt.Errorf("add field %q: data length %d does not match volume shape %dx%d", name, len(f.Data), v.Rays, v.Gates)
	}
	if v.Fields == nil {
		v.Fields = make(map[string]*Field)
	}
	v.Fields[name] = f
	return nil
}

// FieldAny returns the first field matching one of the given names, in order.
// The matched name is returned alongside the field so callers can report
// which convention the volume uses.
func (v *Volume) FieldAny(names ...string) (*Field, string, error) {
	for _, name := range names {
		if f, ok := v.Fields[name]; ok {
			return f, name, nil
		}
	}
	return nil, "", fmt.Errorf("%w (tried %s)", ErrFieldNotFound, strings.Join(names, ", "))
}

// SweepHasData reports whether the first ray of sweep i contains at least one
// live gate in the named field. Degenerate sweeps with no velocity returns
// are dropped before dealiasing based on this check.
func (v *Volume) SweepHasData(name string, i int) bool {
	f, ok := v.Fields[name]
	if !ok {
		return false
	}
	start, _, err := v.SweepBounds(i)
	if err != nil {
		return false
	}
	row := f.Data[start*v.Gates : (start+1)*v.Gates]
	for _, val := range row {
		if !IsMissing(val) {
			return true
		}
	}
	return false
}

// ExtractSweeps returns a new volume containing only the listed sweeps, in
// the given order, with ray indices remapped to be contiguous. Field data is
// copied; the receiver is left untouched.
func (v *Volume) ExtractSweeps(keep []int) (*Volume, error) {
	if len(keep) == 0 {
		return nil, errors.New("extract sweeps: no sweeps selected")
	}

	totalRays := 0
	for _, s := range keep {
		start, end, err := v.SweepBounds(s)
		if err != nil {
			return nil, fmt.Errorf("extract sweeps: %w", err)
		}
		totalRays += end - start + 1
	}

	out := NewVolume(totalRays, v.Gates)
	out.Meta = v.Meta
	out.Meta.QCHistory = append([]string(nil), v.Meta.QCHistory...)

	ray := 0
	for _, s := range keep {
		start, end, _ := v.SweepBounds(s)
		out.SweepStartRay = append(out.SweepStartRay, ray)
		out.SweepEndRay = append(out.SweepEndRay, ray+end-start)
		if s < len(v.NyquistVelocity) {
			out.NyquistVelocity = append(out.NyquistVelocity, v.NyquistVelocity[s])
		}
		ray += end - start + 1
	}

	for name, f := range v.Fields {
		nf := &Field{
			Data:      make([]float64, totalRays*v.Gates),
			Units:     f.Units,
			FillValue: f.FillValue,
		}
		dst := 0
		for _, s := range keep {
			start, end, _ := v.SweepBounds(s)
			src := f.Data[start*v.Gates : (end+1)*v.Gates]
			copy(nf.Data[dst:], src)
			dst += len(src)
		}
		out.Fields[name] = nf
	}

	return out, nil
}

// Validate checks the shared-shape invariant and sweep metadata consistency.
func (v *Volume) Validate() error {
	if v.Rays <= 0 || v.Gates <= 0 {
		return fmt.Errorf("invalid volume shape %dx%d", v.Rays, v.Gates)
	}
	want := v.Rays * v.Gates
	for name, f := range v.Fields {
		if f == nil {
			return fmt.Errorf("field %q is nil", name)
		}
		if len(f.Data) != want {
			return fmt.Errorf("field %q has length %d, want %d (%dx%d)", name, len(f.Data), want, v.Rays, v.Gates)
		}
	}
	if len(v.SweepStartRay) != len(v.SweepEndRay) {
		return fmt.Errorf("sweep index mismatch: %d starts, %d ends", len(v.SweepStartRay), len(v.SweepEndRay))
	}
	for i := range v.SweepStartRay {
		start, end := v.SweepStartRay[i], v.SweepEndRay[i]
		if start < 0 || end >= v.Rays || start > end {
			return fmt.Errorf("sweep %d has invalid ray bounds [%d, %d] for %d rays", i, start, end, v.Rays)
		}
	}
	return nil
}
