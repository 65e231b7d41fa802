// Package volfile implements the service's JSON volume exchange format.
//
// Real radar archives (NEXRAD Level II, CfRadial, vendor formats) are decoded
// by the upstream converter; this codec only round-trips the converter's
// already-gridded output. Missing gates are stored as the field's fill value
// (JSON cannot carry NaN) and restored to NaN on read.
package volfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/radar-qc-service/internal/domain"
)

// Ext is the filename extension of the exchange format.
const Ext = ".vol.json"

// Store reads and writes volume files. It implements pipeline.VolumeReader
// and pipeline.VolumeWriter.
type Store struct{}

// NewStore creates a volume file store.
func NewStore() *Store { return &Store{} }

type fileField struct {
	Units     string    `json:"units,omitempty"`
	FillValue float64   `json:"fill_value,omitempty"`
	Data      []float64 `json:"data"`
}

type fileVolume struct {
	Instrument        string    `json:"instrument,omitempty"`
	OriginalContainer string    `json:"original_container,omitempty"`
	ScanTime          time.Time `json:"scan_time,omitzero"`

	Rays            int       `json:"rays"`
	Gates           int       `json:"gates"`
	SweepStartRay   []int     `json:"sweep_start_ray_index"`
	SweepEndRay     []int     `json:"sweep_end_ray_index"`
	NyquistVelocity []float64 `json:"nyquist_velocity,omitempty"`

	Fields map[string]fileField `json:"fields"`

	ProcessedAt time.Time `json:"processed_at,omitzero"`
	QCHistory   []string  `json:"qc_history,omitempty"`
}

// ReadVolume loads and validates a volume file, restoring fill values to the
// in-memory missing sentinel.
func (s *Store) ReadVolume(_ context.Context, path string) (*domain.Volume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read volume file: %w", err)
	}

	var fv fileVolume
	if err := json.Unmarshal(data, &fv); err != nil {
		return nil, fmt.Errorf("decode volume file %s: %w", path, err)
	}

	vol := domain.NewVolume(fv.Rays, fv.Gates)
	vol.SweepStartRay = fv.SweepStartRay
	vol.SweepEndRay = fv.SweepEndRay
	vol.NyquistVelocity = fv.NyquistVelocity
	vol.Meta = domain.Meta{
		InstrumentName:    fv.Instrument,
		OriginalContainer: fv.OriginalContainer,
		ScanTime:          fv.ScanTime,
		ProcessedAt:       fv.ProcessedAt,
		QCHistory:         fv.QCHistory,
	}

	for name, ff := range fv.Fields {
		fill := ff.FillValue
		if fill == 0 {
			fill = domain.DefaultFillValue
		}
		f := &domain.Field{
			Data:      make([]float64, len(ff.Data)),
			Units:     ff.Units,
			FillValue: fill,
		}
		for i, v := range ff.Data {
			if v == fill {
				f.Data[i] = domain.Missing()
			} else {
				f.Data[i] = v
			}
		}
		if err := vol.AddField(name, f); err != nil {
			return nil, fmt.Errorf("volume file %s: %w", path, err)
		}
	}

	if err := vol.Validate(); err != nil {
		return nil, fmt.Errorf("volume file %s: %w", path, err)
	}
	return vol, nil
}

// WriteVolume serializes a volume, substituting each field's fill value for
// missing gates. The destination directory is created if needed.
func (s *Store) WriteVolume(_ context.Context, path string, vol *domain.Volume) error {
	fv := fileVolume{
		Instrument:        vol.Meta.InstrumentName,
		OriginalContainer: vol.Meta.OriginalContainer,
		ScanTime:          vol.Meta.ScanTime,
		Rays:              vol.Rays,
		Gates:             vol.Gates,
		SweepStartRay:     vol.SweepStartRay,
		SweepEndRay:       vol.SweepEndRay,
		NyquistVelocity:   vol.NyquistVelocity,
		Fields:            make(map[string]fileField, len(vol.Fields)),
		ProcessedAt:       vol.Meta.ProcessedAt,
		QCHistory:         vol.Meta.QCHistory,
	}

	for name, f := range vol.Fields {
		fill := f.FillValue
		if fill == 0 {
			fill = domain.DefaultFillValue
		}
		ff := fileField{
			Units:     f.Units,
			FillValue: fill,
			Data:      make([]float64, len(f.Data)),
		}
		for i, v := range f.Data {
			if domain.IsMissing(v) {
				ff.Data[i] = fill
			} else {
				ff.Data[i] = v
			}
		}
		fv.Fields[name] = ff
	}

	data, err := json.Marshal(fv)
	if err != nil {
		return fmt.Errorf("encode volume: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write volume file: %w", err)
	}
	return nil
}

// DealiasedPath builds the output path for a dealiased copy of inputPath:
// the input's base name up to its first dot, a "_dealiased" suffix, and the
// codec extension, joined onto outDir. ROSE scan names are normalized to the
// canonical "SUR_" surveillance tag on the way.
func (s *Store) DealiasedPath(outDir, inputPath string) string {
	base := domain.FixSurveillanceFilename(filepath.Base(inputPath))
	if i := strings.IndexByte(base, '.'); i >= 0 {
		base = base[:i]
	}
	return filepath.Join(outDir, base+"_dealiased"+Ext)
}
