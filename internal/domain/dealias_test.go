package domain

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDealiaser records the volume and params it was called with and returns
// a canned field or error.
type fakeDealiaser struct {
	gotVol    *Volume
	gotParams DealiasParams
	err       error
}

func (f *fakeDealiaser) DealiasRegionBased(_ context.Context, vol *Volume, p DealiasParams) (*Field, error) {
	f.gotVol = vol
	f.gotParams = p
	if f.err != nil {
		return nil, f.err
	}
	return &Field{Data: constField(vol.Rays, vol.Gates, 7), Units: "m/s"}, nil
}

func testLogger() *slog.Logger { return slog.New(slog.DiscardHandler) }

func TestDealiasVelocity(t *testing.T) {
	newVelVolume := func(t *testing.T) *Volume {
		vol := newTestVolume(t, 4, 2, map[string][]float64{
			FieldVelocity: constField(4, 2, 3),
		})
		vol.SweepStartRay = []int{0, 2}
		vol.SweepEndRay = []int{1, 3}
		return vol
	}

	t.Run("attaches corrected field under default name", func(t *testing.T) {
		vol := newVelVolume(t)
		d := &fakeDealiaser{}

		out, err := DealiasVelocity(context.Background(), vol, d, DealiasOptions{NyquistVelocity: 26.3}, testLogger())
		require.NoError(t, err)

		assert.Same(t, vol, out)
		require.Contains(t, out.Fields, FieldDealiasedVel)
		assert.Equal(t, 7.0, out.Fields[FieldDealiasedVel].Data[0])
		assert.Contains(t, out.Meta.QCHistory, StepDealias)

		assert.Equal(t, FieldVelocity, d.gotParams.VelocityField)
		assert.Equal(t, 26.3, d.gotParams.NyquistVelocity)
	})

	t.Run("nexrad forces per-sweep nyquist inference", func(t *testing.T) {
		vol := newVelVolume(t)
		vol.Meta.OriginalContainer = ContainerNEXRAD
		d := &fakeDealiaser{}

		out, err := DealiasVelocity(context.Background(), vol, d, DealiasOptions{NyquistVelocity: 26.3}, testLogger())
		require.NoError(t, err)

		assert.Zero(t, d.gotParams.NyquistVelocity)
		// NEXRAD keeps every sweep, even empty ones.
		assert.Equal(t, 2, out.NSweeps())
	})

	t.Run("drops empty sweeps when nyquist is explicit", func(t *testing.T) {
		data := constField(4, 2, 3)
		// Sweep 1 (rays 2-3): fully censored.
		for i := 4; i < 8; i++ {
			data[i] = Missing()
		}
		vol := newTestVolume(t, 4, 2, map[string][]float64{FieldVelocity: data})
		vol.SweepStartRay = []int{0, 2}
		vol.SweepEndRay = []int{1, 3}
		vol.NyquistVelocity = []float64{26.3, 26.3}
		d := &fakeDealiaser{}

		out, err := DealiasVelocity(context.Background(), vol, d, DealiasOptions{NyquistVelocity: 26.3}, testLogger())
		require.NoError(t, err)

		assert.NotSame(t, vol, out)
		assert.Equal(t, 1, out.NSweeps())
		assert.Equal(t, 2, out.Rays)
		assert.Equal(t, out, d.gotVol)
	})

	t.Run("all sweeps empty", func(t *testing.T) {
		vol := newTestVolume(t, 4, 2, map[string][]float64{
			FieldVelocity: constField(4, 2, Missing()),
		})
		vol.SweepStartRay = []int{0, 2}
		vol.SweepEndRay = []int{1, 3}

		_, err := DealiasVelocity(context.Background(), vol, &fakeDealiaser{}, DealiasOptions{NyquistVelocity: 26.3}, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no live sweeps")
	})

	t.Run("inferred nyquist skips the sweep scan", func(t *testing.T) {
		vol := newTestVolume(t, 4, 2, map[string][]float64{
			FieldVelocity: constField(4, 2, Missing()),
		})
		vol.SweepStartRay = []int{0, 2}
		vol.SweepEndRay = []int{1, 3}
		d := &fakeDealiaser{}

		// Nyquist 0 means infer per sweep; empty sweeps are the
		// implementation's problem then.
		out, err := DealiasVelocity(context.Background(), vol, d, DealiasOptions{}, testLogger())
		require.NoError(t, err)
		assert.Equal(t, 2, out.NSweeps())
	})

	t.Run("custom field names", func(t *testing.T) {
		vol := newTestVolume(t, 2, 2, map[string][]float64{
			"VEL": constField(2, 2, 1),
		})
		d := &fakeDealiaser{}

		out, err := DealiasVelocity(context.Background(), vol, d, DealiasOptions{
			VelocityField: "VEL",
			NewFieldName:  "VEL_UNFOLDED",
		}, testLogger())
		require.NoError(t, err)
		assert.Contains(t, out.Fields, "VEL_UNFOLDED")
		assert.Equal(t, "VEL", d.gotParams.VelocityField)
	})

	t.Run("missing velocity field", func(t *testing.T) {
		vol := newTestVolume(t, 2, 2, map[string][]float64{
			FieldReflectivity: constField(2, 2, 1),
		})
		_, err := DealiasVelocity(context.Background(), vol, &fakeDealiaser{}, DealiasOptions{}, testLogger())
		require.ErrorIs(t, err, ErrFieldNotFound)
	})

	t.Run("nil dealiaser", func(t *testing.T) {
		vol := newVelVolume(t)
		_, err := DealiasVelocity(context.Background(), vol, nil, DealiasOptions{}, testLogger())
		require.Error(t, err)
	})

	t.Run("implementation error propagates", func(t *testing.T) {
		vol := newVelVolume(t)
		boom := errors.New("unfolding service error")
		_, err := DealiasVelocity(context.Background(), vol, &fakeDealiaser{err: boom}, DealiasOptions{}, testLogger())
		require.ErrorIs(t, err, boom)
	})
}
