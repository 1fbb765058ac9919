package encoding_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"healthvault/internal/domain"
	"healthvault/internal/encoding"
)

func TestEncode_ReferenceInput(t *testing.T) {
	got, err := encoding.Encode(domain.HealthInput{Weight: 70.5, Height: 175.0, Exercise: 3, Diet: 7})
	require.NoError(t, err)
	assert.Equal(t, domain.EncodedInput{Weight: 7050, Height: 17500, Exercise: 3, Diet: 7}, got)
}

func TestEncode_RoundTripWithinResolution(t *testing.T) {
	for _, x := range []float64{0.01, 0.29, 1, 33.33, 70.5, 99.999, 150.125, 175, 299.99, 300} {
		enc := encoding.ToFixed(x)
		dec := encoding.FromFixed(enc)
		want := math.Round(x*100) / 100
		assert.InDelta(t, want, dec, 0.01+1e-9, "x=%v", x)
		assert.LessOrEqual(t, dec, x+1e-9, "floor must not round up, x=%v", x)
	}
}

func TestEncode_DecodeInverse(t *testing.T) {
	in := domain.HealthInput{Weight: 82.35, Height: 181.4, Exercise: 5, Diet: 1}
	enc, err := encoding.Encode(in)
	require.NoError(t, err)

	out := encoding.Decode(enc)
	assert.InDelta(t, in.Weight, out.Weight, 0.01)
	assert.InDelta(t, in.Height, out.Height, 0.01)
	assert.Equal(t, in.Exercise, out.Exercise)
	assert.Equal(t, in.Diet, out.Diet)
}

func TestToFixed_Clips(t *testing.T) {
	assert.Equal(t, uint64(0), encoding.ToFixed(-5))
	assert.Equal(t, uint64(0), encoding.ToFixed(math.NaN()))
	assert.Equal(t, uint64(math.MaxUint64), encoding.ToFixed(math.Inf(1)))
	assert.Equal(t, uint64(math.MaxUint64), encoding.ToFixed(1e30))
}

func TestValidate_Rejects(t *testing.T) {
	base := domain.HealthInput{Weight: 70, Height: 170, Exercise: 3, Diet: 5}
	cases := []struct {
		name  string
		mod   func(*domain.HealthInput)
		field string
	}{
		{"zero weight", func(in *domain.HealthInput) { in.Weight = 0 }, "weight"},
		{"heavy", func(in *domain.HealthInput) { in.Weight = 300.01 }, "weight"},
		{"nan height", func(in *domain.HealthInput) { in.Height = math.NaN() }, "height"},
		{"negative height", func(in *domain.HealthInput) { in.Height = -1 }, "height"},
		{"exercise low", func(in *domain.HealthInput) { in.Exercise = 0 }, "exercise"},
		{"exercise high", func(in *domain.HealthInput) { in.Exercise = 6 }, "exercise"},
		{"diet low", func(in *domain.HealthInput) { in.Diet = 0 }, "diet"},
		{"diet high", func(in *domain.HealthInput) { in.Diet = 11 }, "diet"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mod(&in)
			_, err := encoding.Encode(in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))

			var ve *domain.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
			assert.Equal(t, domain.RemedyFixInput, domain.RemedyFor(err))
		})
	}
}

func TestValidate_Bounds(t *testing.T) {
	require.NoError(t, encoding.Validate(domain.HealthInput{Weight: 300, Height: 300, Exercise: 5, Diet: 10}))
	require.NoError(t, encoding.Validate(domain.HealthInput{Weight: 0.01, Height: 0.01, Exercise: 1, Diet: 1}))
}
