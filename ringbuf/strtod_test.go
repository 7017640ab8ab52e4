package ringbuf

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFloatBasic(t *testing.T) {
	v, err := ParseFloat("3.25")
	require.NoError(t, err)
	require.Equal(t, 3.25, v)

	v, err = ParseFloat("-12")
	require.NoError(t, err)
	require.Equal(t, -12.0, v)
}

func TestParseFloatInfAndNan(t *testing.T) {
	for _, s := range []string{"inf", "Inf", "INF", "+inf"} {
		v, err := ParseFloat(s)
		require.NoError(t, err, s)
		require.True(t, math.IsInf(v, 1), s)
	}

	for _, s := range []string{"-inf", "-Inf", "-INF"} {
		v, err := ParseFloat(s)
		require.NoError(t, err, s)
		require.True(t, math.IsInf(v, -1), s)
	}

	for _, s := range []string{"nan", "NaN", "NAN"} {
		v, err := ParseFloat(s)
		require.NoError(t, err, s)
		require.True(t, math.IsNaN(v), s)
	}
}

func TestParseFloatWhitespaceTrimmed(t *testing.T) {
	v, err := ParseFloat("  2.5\t\n")
	require.NoError(t, err)
	require.Equal(t, 2.5, v)
}

func TestParseFloatRejectsEmpty(t *testing.T) {
	_, err := ParseFloat("")
	require.ErrorIs(t, err, ErrFatal)

	_, err = ParseFloat("   ")
	require.ErrorIs(t, err, ErrFatal)
}

func TestParseFloatRejectsPartialParse(t *testing.T) {
	_, err := ParseFloat("1.5garbage")
	require.ErrorIs(t, err, ErrFatal)

	_, err = ParseFloat("12 34")
	require.ErrorIs(t, err, ErrFatal)
}
