// Command genscan generates synthetic radar volume fixtures in the service's
// exchange format. Fields are drawn from Gaussian distributions with a
// deterministic seed, velocities are folded at the Nyquist velocity so
// dealiasing has something to undo, and a fraction of gates is censored.
//
// Usage:
//
//	go run ./cmd/genscan -out data/fixtures/synthetic.vol.json \
//	  -sweeps 4 -rays-per-sweep 360 -gates 500 -nyquist 26.6
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/couchcryptid/radar-qc-service/internal/adapter/volfile"
	"github.com/couchcryptid/radar-qc-service/internal/domain"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the volume fixture")
	sweeps := flag.Int("sweeps", 4, "number of sweeps")
	raysPerSweep := flag.Int("rays-per-sweep", 360, "rays in each sweep")
	gates := flag.Int("gates", 500, "gates per ray")
	nyquist := flag.Float64("nyquist", 26.6, "Nyquist velocity in m/s")
	seed := flag.Uint64("seed", 1, "random seed")
	instrument := flag.String("instrument", "SYNTHETIC-1", "instrument name")
	container := flag.String("container", "ODIM_H5", "original_container tag")
	emptySweep := flag.Int("empty-sweep", -1, "index of a sweep whose velocity is fully censored (-1 for none)")
	missing := flag.Float64("missing", 0.05, "fraction of gates censored at random")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}

	vol := synthesize(*sweeps, *raysPerSweep, *gates, *nyquist, *seed, *missing, *emptySweep)
	vol.Meta.InstrumentName = *instrument
	vol.Meta.OriginalContainer = *container
	vol.Meta.ScanTime = time.Date(2019, time.May, 23, 12, 0, 0, 0, time.UTC)

	if err := volfile.NewStore().WriteVolume(context.Background(), *out, vol); err != nil {
		return err
	}
	fmt.Printf("wrote %s: %d sweeps, %d rays, %d gates\n", *out, vol.NSweeps(), vol.Rays, vol.Gates)
	return nil
}

func synthesize(sweeps, raysPerSweep, gates int, nyquist float64, seed uint64, missing float64, emptySweep int) *domain.Volume {
	rays := sweeps * raysPerSweep
	vol := domain.NewVolume(rays, gates)

	for s := 0; s < sweeps; s++ {
		vol.SweepStartRay = append(vol.SweepStartRay, s*raysPerSweep)
		vol.SweepEndRay = append(vol.SweepEndRay, (s+1)*raysPerSweep-1)
		vol.NyquistVelocity = append(vol.NyquistVelocity, nyquist)
	}

	src := rand.NewSource(seed)
	refl := distuv.Normal{Mu: 20, Sigma: 12, Src: src}
	trueVel := distuv.Normal{Mu: 0, Sigma: nyquist * 0.8, Src: src}
	rhohv := distuv.Normal{Mu: 0.97, Sigma: 0.04, Src: src}
	snr := distuv.Normal{Mu: 20, Sigma: 10, Src: src}
	censor := distuv.Uniform{Min: 0, Max: 1, Src: src}

	n := rays * gates
	fields := map[string]*domain.Field{
		domain.FieldReflectivity: {Data: make([]float64, n), Units: "dBZ", FillValue: domain.DefaultFillValue},
		domain.FieldVelocity:     {Data: make([]float64, n), Units: "m/s", FillValue: domain.DefaultFillValue},
		domain.FieldRhoHV:        {Data: make([]float64, n), Units: "1", FillValue: domain.DefaultFillValue},
		domain.FieldSNR:          {Data: make([]float64, n), Units: "dB", FillValue: domain.DefaultFillValue},
	}

	for i := 0; i < n; i++ {
		if censor.Rand() < missing {
			for _, f := range fields {
				f.Data[i] = domain.Missing()
			}
			continue
		}
		fields[domain.FieldReflectivity].Data[i] = refl.Rand()
		fields[domain.FieldVelocity].Data[i] = fold(trueVel.Rand(), nyquist)
		fields[domain.FieldRhoHV].Data[i] = math.Min(rhohv.Rand(), 1.0)
		fields[domain.FieldSNR].Data[i] = snr.Rand()
	}

	if emptySweep >= 0 && emptySweep < sweeps {
		vel := fields[domain.FieldVelocity]
		for r := emptySweep * raysPerSweep; r < (emptySweep+1)*raysPerSweep; r++ {
			for g := 0; g < gates; g++ {
				vel.Data[r*gates+g] = domain.Missing()
			}
		}
	}

	for name, f := range fields {
		// Shapes are generated consistent by construction.
		_ = vol.AddField(name, f)
	}
	return vol
}

// fold wraps a velocity into the unambiguous [-nyquist, nyquist] interval,
// emulating what the radar's pulse-pair processor does to fast targets.
func fold(v, nyquist float64) float64 {
	for v > nyquist {
		v -= 2 * nyquist
	}
	for v < -nyquist {
		v += 2 * nyquist
	}
	return v
}
