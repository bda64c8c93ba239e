package spline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKnotVector(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		degree  int
		plateau Plateau
		want    KnotVector
	}{
		{"9x3 interpolating", 9, 3, PlateauInterpolating, KnotVector{0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 7, 7, 7}},
		{"9x3 extended", 9, 3, PlateauExtended, KnotVector{0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 8, 8}},
		{"3x2 interpolating", 3, 2, PlateauInterpolating, KnotVector{0, 0, 1, 2, 2, 2}},
		{"3x2 extended", 3, 2, PlateauExtended, KnotVector{0, 0, 1, 2, 3, 3}},
		{"linear", 5, 1, PlateauInterpolating, KnotVector{0, 1, 2, 3, 4, 5, 5}},
		{"minimal", 4, 3, PlateauInterpolating, KnotVector{0, 0, 0, 1, 2, 2, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kv, err := BuildKnotVector(tt.n, tt.degree, tt.plateau)
			require.NoError(t, err)
			assert.Equal(t, tt.want, kv)
			assert.Len(t, kv, tt.n+tt.degree+1)
			assert.Equal(t, tt.want[len(tt.want)-1], kv.Max())
		})
	}
}

func TestBuildKnotVector_NonDecreasing(t *testing.T) {
	for _, plateau := range []Plateau{PlateauInterpolating, PlateauExtended} {
		for degree := 1; degree <= MaxDegree; degree++ {
			for n := degree + 1; n < degree+12; n++ {
				kv, err := BuildKnotVector(n, degree, plateau)
				require.NoError(t, err)
				for i := 1; i < len(kv); i++ {
					assert.LessOrEqual(t, kv[i-1], kv[i], "n=%d degree=%d plateau=%s", n, degree, plateau)
				}
				for i := range degree {
					assert.Zero(t, kv[i])
				}
			}
		}
	}
}

func TestBuildKnotVector_Errors(t *testing.T) {
	assert := assert.New(t)

	_, err := BuildKnotVector(3, 3, PlateauInterpolating)
	assert.True(errors.Is(err, ErrTooFewControlPoints))

	_, err = BuildKnotVector(9, 0, PlateauInterpolating)
	assert.True(errors.Is(err, ErrInvalidDegree))

	_, err = BuildKnotVector(20, MaxDegree+1, PlateauInterpolating)
	assert.True(errors.Is(err, ErrInvalidDegree))

	_, err = BuildKnotVector(9, 3, Plateau(7))
	assert.Error(err)
}

func TestParsePlateau(t *testing.T) {
	assert := assert.New(t)

	for _, p := range []Plateau{PlateauInterpolating, PlateauExtended} {
		got, err := ParsePlateau(p.String())
		assert.NoError(err)
		assert.Equal(p, got)
	}
	_, err := ParsePlateau("open")
	assert.Error(err)
}

func TestDefaultConfig_Knots(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, PlateauInterpolating, cfg.Plateau)
	kv, err := cfg.Knots()
	require.NoError(t, err)
	assert.Equal(t, KnotVector{0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 7, 7, 7}, kv)

	cfg.Plateau = PlateauExtended
	kv, err = cfg.Knots()
	require.NoError(t, err)
	assert.Equal(t, KnotVector{0, 0, 0, 1, 2, 3, 4, 5, 6, 7, 8, 8, 8}, kv)
}

func TestConfig_Validate(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	assert.NoError(cfg.Validate())

	bad := cfg
	bad.Spacing = 0
	assert.True(errors.Is(bad.Validate(), ErrDegenerateGrid))

	bad = cfg
	bad.Len = 3
	assert.True(errors.Is(bad.Validate(), ErrTooFewControlPoints))

	bad = cfg
	bad.Degree = 9
	assert.True(errors.Is(bad.Validate(), ErrInvalidDegree))
}

func TestConfig_Uniform(t *testing.T) {
	assert := assert.New(t)

	cfg := DefaultConfig()
	kv, err := cfg.Knots()
	assert.NoError(err)

	u := cfg.Uniform(kv, 100)
	assert.Equal([2]float32{200, 100}, u.GridStart)
	assert.Equal([2]float32{600, 500}, u.GridEnd)
	assert.Equal(float32(kv.Max()), u.KnotMax)
	assert.Equal(uint32(9), u.Len)
	assert.Equal(uint32(3), u.Degree)
	assert.Equal(uint32(100), u.NumSamples)
	assert.Equal(uint32(13), u.NumKnots)
}
