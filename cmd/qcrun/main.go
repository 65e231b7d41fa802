// Command qcrun quality-controls a single volume scan file without Kafka:
// the supervised one-shot path used when working through a case study by
// hand. Thresholds and filter selection come from the same environment
// variables as the service; the input, output directory, and dealiasing
// service can be set by flag.
//
// Usage:
//
//	QC_RHOHV_ENABLED=true go run ./cmd/qcrun \
//	  -volume data/fixtures/chill_20190523_sur.vol.json \
//	  -outdir /tmp/qc-out \
//	  -dealias-url http://localhost:9100
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/couchcryptid/radar-qc-service/internal/adapter/unfold"
	"github.com/couchcryptid/radar-qc-service/internal/adapter/volfile"
	"github.com/couchcryptid/radar-qc-service/internal/config"
	"github.com/couchcryptid/radar-qc-service/internal/domain"
	"github.com/couchcryptid/radar-qc-service/internal/observability"
	"github.com/couchcryptid/radar-qc-service/internal/pipeline"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	volumePath := flag.String("volume", "", "path to the volume file to quality-control")
	outDir := flag.String("outdir", "", "output directory for the dealiased volume (default: QC_OUTPUT_DIR)")
	dealiasURL := flag.String("dealias-url", "", "unfolding service URL (default: DEALIAS_URL)")
	nyquist := flag.Float64("nyquist", 0, "explicit Nyquist velocity in m/s (0 = per-sweep inference)")
	flag.Parse()

	if *volumePath == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -volume")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if *dealiasURL != "" {
		cfg.Dealias.ServiceURL = *dealiasURL
		cfg.Dealias.Enabled = true
	}
	if *nyquist != 0 {
		cfg.Dealias.NyquistVelocity = *nyquist
	}
	if *outDir != "" {
		cfg.OutputDir = *outDir
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetricsForTesting() // one-shot run, nothing scrapes them

	var dealiaser domain.Dealiaser
	if cfg.Dealias.Enabled {
		dealiaser = unfold.NewClient(cfg.Dealias.ServiceURL, cfg.Dealias.Timeout, logger)
	}

	store := volfile.NewStore()
	transformer := pipeline.NewQCTransformer(store, store, dealiaser, cfg, logger, metrics)

	job, err := json.Marshal(domain.ScanJob{ID: "qcrun", VolumePath: *volumePath})
	if err != nil {
		return err
	}

	result, err := transformer.Transform(context.Background(), domain.RawJob{Value: job})
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(out))
	return nil
}
