package amount

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndString(t *testing.T) {
	cases := []struct {
		in   string
		want int64
	}{
		{"0", 0},
		{"1", 1_000_000},
		{"1.5", 1_500_000},
		{"1.000001", 1_000_001},
		{"64.000000", 64_000_000},
		{"  2.25  ", 2_250_000},
	}
	for _, c := range cases {
		a, err := Parse(c.in)
		require.NoError(t, err, c.in)
		require.Equal(t, c.want, a.Units(), c.in)
	}
}

func TestStringRoundTrip(t *testing.T) {
	a, err := FromSmallestUnits(1_234_567)
	require.NoError(t, err)
	require.Equal(t, "1.234567", a.String())

	back, err := Parse(a.String())
	require.NoError(t, err)
	require.Equal(t, a, back)
}

func TestParseRejectsTooManyFractionalDigits(t *testing.T) {
	_, err := Parse("1.1234567")
	require.Error(t, err)
}

func TestParseRejectsEmpty(t *testing.T) {
	_, err := Parse("")
	require.Error(t, err)
	_, err = Parse("   ")
	require.Error(t, err)
}

func TestParseRejectsNegative(t *testing.T) {
	_, err := Parse("-1")
	require.Error(t, err)
}

func TestFromSmallestUnitsRejectsOutOfRange(t *testing.T) {
	_, err := FromSmallestUnits(-1)
	require.Error(t, err)

	_, err = FromSmallestUnits(MaxAmount + 1)
	require.Error(t, err)

	a, err := FromSmallestUnits(MaxAmount)
	require.NoError(t, err)
	require.Equal(t, MaxAmount, a.Units())
}

func TestAddOverflow(t *testing.T) {
	a := Amount(MaxAmount)
	_, err := Add(a, 1)
	require.Error(t, err)

	sum, err := Add(Amount(1), Amount(2))
	require.NoError(t, err)
	require.Equal(t, Amount(3), sum)
}

func TestSub(t *testing.T) {
	require.Equal(t, Amount(5), Sub(Amount(10), Amount(5)))
	require.Equal(t, Amount(-5), Sub(Amount(5), Amount(10)))
}

func TestPositive(t *testing.T) {
	require.True(t, Amount(1).Positive())
	require.False(t, Amount(0).Positive())
	require.False(t, Amount(-1).Positive())
}
