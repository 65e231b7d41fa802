package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/radar-qc-service/internal/config"
	"github.com/couchcryptid/radar-qc-service/internal/domain"
	"github.com/couchcryptid/radar-qc-service/internal/observability"
)

// VolumeReader loads a radar volume from a path.
type VolumeReader interface {
	ReadVolume(ctx context.Context, path string) (*domain.Volume, error)
}

// VolumeWriter persists a radar volume. DealiasedPath builds the output path
// for a dealiased copy of the named input, since the codec owns the extension.
type VolumeWriter interface {
	WriteVolume(ctx context.Context, path string, vol *domain.Volume) error
	DealiasedPath(outDir, inputPath string) string
}

// QCTransformer implements Transformer: it reads the volume a scan job points
// at, runs the configured masking chain and dealiasing, and optionally
// persists the dealiased volume.
type QCTransformer struct {
	reader    VolumeReader
	writer    VolumeWriter
	dealiaser domain.Dealiaser // nil disables dealiasing
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// NewQCTransformer creates a QCTransformer. Pass a nil dealiaser to disable
// velocity unfolding (the mountain clutter filter then requires the input
// volume to already carry a dealiased velocity field).
func NewQCTransformer(reader VolumeReader, writer VolumeWriter, dealiaser domain.Dealiaser, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) *QCTransformer {
	return &QCTransformer{
		reader:    reader,
		writer:    writer,
		dealiaser: dealiaser,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

func (t *QCTransformer) Transform(ctx context.Context, raw domain.RawJob) (domain.QCResult, error) {
	start := time.Now()

	job, err := domain.ParseScanJob(raw)
	if err != nil {
		return domain.QCResult{}, err
	}

	vol, err := t.reader.ReadVolume(ctx, job.VolumePath)
	if err != nil {
		return domain.QCResult{}, fmt.Errorf("read volume %s: %w", job.VolumePath, err)
	}
	// CHILL index repair replaces the sweep geometry, so it runs before
	// validation.
	if t.cfg.QC.FixChillSweeps {
		vol = domain.FixCHILLSweepIndices(vol)
	}
	if err := vol.Validate(); err != nil {
		return domain.QCResult{}, fmt.Errorf("volume %s: %w", job.VolumePath, err)
	}

	result := domain.QCResult{
		JobID:       job.ID,
		InputPath:   job.VolumePath,
		GatesMasked: make(map[string]int),
	}
	if t.cfg.QC.FixChillSweeps {
		result.StepsApplied = append(result.StepsApplied, domain.StepChillSweepFix)
	}

	if vol, err = t.applyChain(ctx, vol, job, &result); err != nil {
		return domain.QCResult{}, fmt.Errorf("job %s: %w", job.ID, err)
	}

	result.Instrument = vol.Meta.InstrumentName
	result.Rays = vol.Rays
	result.Gates = vol.Gates
	result.Sweeps = vol.NSweeps()
	result.ProcessedAt = domain.Now()
	result.DurationSeconds = time.Since(start).Seconds()

	return result, nil
}

// applyChain runs clamp, the enabled noise filters, dealiasing, and the
// clutter filter, in that order. Dealiasing may replace the volume when
// degenerate sweeps are dropped.
func (t *QCTransformer) applyChain(ctx context.Context, vol *domain.Volume, job domain.ScanJob, result *domain.QCResult) (*domain.Volume, error) {
	qc := t.cfg.QC

	if qc.ClampField != "" {
		n, err := domain.ClampFieldRange(vol, qc.ClampField, qc.ClampMin, qc.ClampMax)
		if err != nil {
			return nil, err
		}
		result.GatesClamped = n
		result.StepsApplied = append(result.StepsApplied, "clamp:"+qc.ClampField)
		t.metrics.GatesClamped.Add(float64(n))
	}

	type maskStep struct {
		name    string
		enabled bool
		run     func(*domain.Volume) (int, error)
	}
	steps := []maskStep{
		{domain.StepReflectivityNoise, qc.ReflectivityEnabled, func(v *domain.Volume) (int, error) {
			return domain.FilterReflectivityNoise(v, qc.ReflectivityMin, qc.ReflectivityMax)
		}},
		{domain.StepZdrNoise, qc.ZdrEnabled, func(v *domain.Volume) (int, error) {
			return domain.FilterZdrNoise(v, qc.ZdrMin, qc.ZdrMax)
		}},
		{domain.StepRhoHVNoise, qc.RhoHVEnabled, func(v *domain.Volume) (int, error) {
			return domain.FilterRhoHVNoise(v, qc.RhoHVMin, qc.RhoHVMax)
		}},
		{domain.StepPhiDPNoise, qc.PhiDPEnabled, func(v *domain.Volume) (int, error) {
			return domain.FilterPhiDPNoise(v, qc.PhiDPMin, qc.PhiDPMax)
		}},
		{domain.StepNCPNoise, qc.NCPEnabled, func(v *domain.Volume) (int, error) {
			return domain.FilterNCPNoise(v, qc.NCPMin, qc.NCPMax)
		}},
		{domain.StepSNRNoise, qc.SNREnabled, func(v *domain.Volume) (int, error) {
			return domain.FilterSNRNoise(v, qc.SNRMin, qc.SNRMax)
		}},
	}
	for _, s := range steps {
		if !s.enabled {
			continue
		}
		n, err := s.run(vol)
		if err != nil {
			return nil, err
		}
		result.GatesMasked[s.name] = n
		result.StepsApplied = append(result.StepsApplied, s.name)
		t.metrics.GatesMasked.WithLabelValues(s.name).Add(float64(n))
	}

	if t.dealiaser != nil && t.cfg.Dealias.Enabled {
		var err error
		if vol, err = t.dealias(ctx, vol, job, result); err != nil {
			return nil, err
		}
	}

	// Clutter removal needs the dealiased velocity field, so it runs last.
	if qc.ClutterEnabled {
		n, err := domain.FilterMountainClutter(vol)
		if err != nil {
			return nil, err
		}
		result.GatesMasked[domain.StepMountainClutter] = n
		result.StepsApplied = append(result.StepsApplied, domain.StepMountainClutter)
		t.metrics.GatesMasked.WithLabelValues(domain.StepMountainClutter).Add(float64(n))
	}

	return vol, nil
}

func (t *QCTransformer) dealias(ctx context.Context, vol *domain.Volume, job domain.ScanJob, result *domain.QCResult) (*domain.Volume, error) {
	dcfg := t.cfg.Dealias

	nyquist := dcfg.NyquistVelocity
	if job.NyquistVelocity != 0 {
		nyquist = job.NyquistVelocity
	}

	start := time.Now()
	vol, err := domain.DealiasVelocity(ctx, vol, t.dealiaser, domain.DealiasOptions{
		VelocityField:   dcfg.VelocityField,
		NewFieldName:    dcfg.NewFieldName,
		NyquistVelocity: nyquist,
		SkipAlongRay:    dcfg.SkipAlongRay,
		SkipBetweenRays: dcfg.SkipBetweenRays,
	}, t.logger)
	t.metrics.DealiasDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		t.metrics.DealiasRequests.WithLabelValues("error").Inc()
		return nil, err
	}
	t.metrics.DealiasRequests.WithLabelValues("success").Inc()

	result.DealiasApplied = true
	result.StepsApplied = append(result.StepsApplied, domain.StepDealias)

	if t.cfg.SaveDealiased && t.writer != nil {
		outDir := t.cfg.OutputDir
		if job.OutputDir != "" {
			outDir = job.OutputDir
		}
		outPath := t.writer.DealiasedPath(outDir, job.VolumePath)
		if err := t.writer.WriteVolume(ctx, outPath, vol); err != nil {
			return nil, fmt.Errorf("write dealiased volume: %w", err)
		}
		result.OutputPath = outPath
	}

	return vol, nil
}
