package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromMinor(t *testing.T) {
	assert.Equal(t, "45.67", FromMinor(4567, "USD").String())
	assert.Equal(t, "4567", FromMinor(4567, "JPY").String())
	assert.Equal(t, "4.567", FromMinor(4567, "BHD").String())
	assert.Equal(t, "-0.01", FromMinor(-1, "EUR").String())
}

func TestToMinor(t *testing.T) {
	got, err := ToMinor(decimal.RequireFromString("45.67"), "USD")
	require.NoError(t, err)
	assert.Equal(t, int64(4567), got)

	got, err = ToMinor(decimal.RequireFromString("4567"), "JPY")
	require.NoError(t, err)
	assert.Equal(t, int64(4567), got)

	got, err = ToMinor(decimal.RequireFromString("1.234"), "KWD")
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got)
}

func TestToMinorRejectsSubMinorPrecision(t *testing.T) {
	_, err := ToMinor(decimal.RequireFromString("1.005"), "USD")
	assert.Error(t, err)

	_, err = ToMinor(decimal.RequireFromString("1.5"), "JPY")
	assert.Error(t, err)
}

func TestFormatMinor(t *testing.T) {
	assert.Equal(t, "45.00", FormatMinor(4500, "USD"))
	assert.Equal(t, "0.05", FormatMinor(5, "EUR"))
	assert.Equal(t, "120", FormatMinor(120, "JPY"))
	assert.Equal(t, "1.250", FormatMinor(1250, "BHD"))
	assert.Equal(t, "-3.21", FormatMinor(-321, "USD"))
}
