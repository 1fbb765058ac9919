package encoding

import (
	"math"
	"strconv"

	"healthvault/internal/domain"
)

const (
	// Scale is the fixed-point factor applied to weight and height.
	Scale = 100

	MaxWeight   = 300.0
	MaxHeight   = 300.0
	MinExercise = 1
	MaxExercise = 5
	MinDiet     = 1
	MaxDiet     = 10

	// epsilon absorbs binary representation error so 0.29 encodes as 29.
	epsilon = 1e-9
)

// Validate checks every field of in and returns the first violation as a
// *domain.ValidationError.
func Validate(in domain.HealthInput) error {
	if err := checkMeasure("weight", in.Weight, MaxWeight); err != nil {
		return err
	}
	if err := checkMeasure("height", in.Height, MaxHeight); err != nil {
		return err
	}
	if err := checkScore("exercise", in.Exercise, MinExercise, MaxExercise); err != nil {
		return err
	}
	return checkScore("diet", in.Diet, MinDiet, MaxDiet)
}

// Encode validates in and returns its fixed-point form.
func Encode(in domain.HealthInput) (domain.EncodedInput, error) {
	if err := Validate(in); err != nil {
		return domain.EncodedInput{}, err
	}
	return domain.EncodedInput{
		Weight:   ToFixed(in.Weight),
		Height:   ToFixed(in.Height),
		Exercise: uint8(in.Exercise),
		Diet:     uint8(in.Diet),
	}, nil
}

// Decode inverts Encode up to the 0.01 resolution of the fixed-point form.
func Decode(e domain.EncodedInput) domain.HealthInput {
	return domain.HealthInput{
		Weight:   FromFixed(e.Weight),
		Height:   FromFixed(e.Height),
		Exercise: int(e.Exercise),
		Diet:     int(e.Diet),
	}
}

// ToFixed scales x by 100 and floors it, clipping to [0, MaxUint64].
func ToFixed(x float64) uint64 {
	if math.IsNaN(x) || x <= 0 {
		return 0
	}
	scaled := math.Floor(x*Scale + epsilon)
	// float64(MaxUint64) rounds up to 2^64, so >= catches the overflow edge.
	if scaled >= float64(math.MaxUint64) {
		return math.MaxUint64
	}
	return uint64(scaled)
}

// FromFixed returns v / 100.
func FromFixed(v uint64) float64 { return float64(v) / Scale }

func checkMeasure(field string, v, max float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return invalid(field, v, "not a finite number")
	case v <= 0:
		return invalid(field, v, "must be greater than 0")
	case v > max:
		return invalid(field, v, "must be at most "+strconv.FormatFloat(max, 'f', -1, 64))
	}
	return nil
}

func checkScore(field string, v, min, max int) error {
	if v < min || v > max {
		return &domain.ValidationError{
			Field:  field,
			Value:  strconv.Itoa(v),
			Reason: "must be between " + strconv.Itoa(min) + " and " + strconv.Itoa(max),
		}
	}
	return nil
}

func invalid(field string, v float64, reason string) error {
	return &domain.ValidationError{
		Field:  field,
		Value:  strconv.FormatFloat(v, 'f', -1, 64),
		Reason: reason,
	}
}
