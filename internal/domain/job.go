package domain

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RawJob represents an unprocessed scan-job message from the source topic.
type RawJob struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// ScanJob asks the service to quality-control one volume scan file.
type ScanJob struct {
	ID         string `json:"id,omitempty"`
	VolumePath string `json:"volume_path"`

	// OutputDir overrides the configured output directory for this job.
	OutputDir string `json:"output_dir,omitempty"`

	// NyquistVelocity overrides the configured Nyquist for non-NEXRAD
	// volumes; zero keeps the configured value.
	NyquistVelocity float64 `json:"nyquist_velocity,omitempty"`
}

// ParseScanJob deserializes a RawJob's value into a ScanJob. Jobs without an
// explicit id take the message key, or a fresh UUID when the key is empty.
func ParseScanJob(raw RawJob) (ScanJob, error) {
	var job ScanJob
	if err := json.Unmarshal(raw.Value, &job); err != nil {
		return ScanJob{}, fmt.Errorf("parse scan job: %w", err)
	}
	if job.VolumePath == "" {
		return ScanJob{}, fmt.Errorf("parse scan job: missing volume_path")
	}
	if job.ID == "" {
		if len(raw.Key) > 0 {
			job.ID = string(raw.Key)
		} else {
			job.ID = uuid.NewString()
		}
	}
	return job, nil
}

// QCResult summarizes one quality-controlled volume, destined for the sink
// topic and for one-shot CLI output.
type QCResult struct {
	JobID      string `json:"job_id"`
	Instrument string `json:"instrument,omitempty"`
	InputPath  string `json:"input_path"`
	OutputPath string `json:"output_path,omitempty"`

	Rays   int `json:"rays"`
	Gates  int `json:"gates"`
	Sweeps int `json:"sweeps"`

	StepsApplied   []string       `json:"steps_applied"`
	GatesMasked    map[string]int `json:"gates_masked"`
	GatesClamped   int            `json:"gates_clamped,omitempty"`
	DealiasApplied bool           `json:"dealias_applied"`

	ProcessedAt     time.Time `json:"processed_at"`
	DurationSeconds float64   `json:"duration_seconds"`
}
