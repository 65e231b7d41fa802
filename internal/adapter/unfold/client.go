// Package unfold talks to the region-based velocity unfolding service. The
// unfolding algorithm itself lives in that service; this client only ships
// the velocity moment and sweep geometry over and converts the result back
// into a volume field.
package unfold

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/radar-qc-service/internal/domain"
)

// Client implements domain.Dealiaser against the unfolding service's HTTP API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient creates an unfolding service client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: baseURL,
		logger:  logger,
	}
}

// Request and response types of the unfolding service API. JSON cannot carry
// NaN, so gate data crosses the wire with an explicit fill value.

type request struct {
	Rays            int       `json:"rays"`
	Gates           int       `json:"gates"`
	SweepStartRay   []int     `json:"sweep_start_ray_index"`
	SweepEndRay     []int     `json:"sweep_end_ray_index"`
	SweepNyquist    []float64 `json:"sweep_nyquist,omitempty"`
	NyquistVelocity float64   `json:"nyquist_velocity,omitempty"` // 0 = infer per sweep
	SkipAlongRay    int       `json:"skip_along_ray"`
	SkipBetweenRays int       `json:"skip_between_rays"`
	FillValue       float64   `json:"fill_value"`
	Velocity        []float64 `json:"velocity"`
}

type response struct {
	Units     string    `json:"units"`
	FillValue float64   `json:"fill_value"`
	Data      []float64 `json:"data"`
}

// DealiasRegionBased submits the volume's velocity moment for unfolding and
// returns the corrected field.
func (c *Client) DealiasRegionBased(ctx context.Context, vol *domain.Volume, p domain.DealiasParams) (*domain.Field, error) {
	vel, ok := vol.Fields[p.VelocityField]
	if !ok {
		return nil, fmt.Errorf("dealias request: %q: %w", p.VelocityField, domain.ErrFieldNotFound)
	}

	fill := vel.FillValue
	if fill == 0 {
		fill = domain.DefaultFillValue
	}
	data := make([]float64, len(vel.Data))
	for i, v := range vel.Data {
		if domain.IsMissing(v) {
			data[i] = fill
		} else {
			data[i] = v
		}
	}

	body, err := json.Marshal(request{
		Rays:            vol.Rays,
		Gates:           vol.Gates,
		SweepStartRay:   vol.SweepStartRay,
		SweepEndRay:     vol.SweepEndRay,
		SweepNyquist:    vol.NyquistVelocity,
		NyquistVelocity: p.NyquistVelocity,
		SkipAlongRay:    p.SkipAlongRay,
		SkipBetweenRays: p.SkipBetweenRays,
		FillValue:       fill,
		Velocity:        data,
	})
	if err != nil {
		return nil, fmt.Errorf("encode dealias request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/dealias/region-based", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create dealias request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dealias request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unfolding service error: status %d: %s", resp.StatusCode, respBody)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode dealias response: %w", err)
	}
	if len(out.Data) != vol.Rays*vol.Gates {
		return nil, fmt.Errorf("dealias response has %d gates, want %d", len(out.Data), vol.Rays*vol.Gates)
	}

	outFill := out.FillValue
	if outFill == 0 {
		outFill = fill
	}
	units := out.Units
	if units == "" {
		units = vel.Units
	}

	f := &domain.Field{
		Data:      out.Data,
		Units:     units,
		FillValue: outFill,
	}
	for i, v := range f.Data {
		if v == outFill {
			f.Data[i] = domain.Missing()
		}
	}
	return f, nil
}
