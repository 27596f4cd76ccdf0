package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeePerByte(t *testing.T) {
	require.Equal(t, 2.0, feePerByte(200, 100))
	require.Equal(t, float64(0), feePerByte(100, 0))
	require.Equal(t, float64(0), feePerByte(100, -1))
}

func TestFeePerByteOrdersHigherFeeRateAbove(t *testing.T) {
	low := feePerByte(100, 1000)
	high := feePerByte(500, 1000)
	require.Greater(t, high, low)
}
