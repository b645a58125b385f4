package money

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(t *testing.T, value string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(value)
	require.NoError(t, err)
	return d
}

func decPtr(t *testing.T, value string) *decimal.Decimal {
	d := dec(t, value)
	return &d
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, "1.13", Round(dec(t, "1.125")).StringFixed(2))
	assert.Equal(t, "1.12", Round(dec(t, "1.1249")).StringFixed(2))
	assert.Equal(t, "0.01", Round(dec(t, "0.005")).StringFixed(2))
}

func TestUnitPrice(t *testing.T) {
	gross := dec(t, "2.40")

	assert.Equal(t, "2.40", UnitPrice(gross, nil, nil).StringFixed(2))
	assert.Equal(t, "1.20", UnitPrice(gross, nil, decPtr(t, "50")).StringFixed(2))
	assert.Equal(t, "1.00", UnitPrice(gross, decPtr(t, "1.00"), nil).StringFixed(2))
	// 0.99 * 0.85 = 0.8415
	assert.Equal(t, "0.84", UnitPrice(gross, decPtr(t, "0.99"), decPtr(t, "15")).StringFixed(2))
	assert.Equal(t, "0.00", UnitPrice(gross, nil, decPtr(t, "100")).StringFixed(2))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(240), ToMinor(dec(t, "2.4")))
	assert.Equal(t, int64(29), ToMinor(dec(t, "0.285")))
	assert.Equal(t, int64(400), LineMinor(dec(t, "2.00"), 2))
	assert.Equal(t, int64(36), LineMinor(dec(t, "0.12"), 3))
	assert.True(t, FromMinor(240).Equal(dec(t, "2.40")))
}

func TestValidation(t *testing.T) {
	require.NoError(t, ValidatePercent(dec(t, "0")))
	require.NoError(t, ValidatePercent(dec(t, "100")))
	assert.Error(t, ValidatePercent(dec(t, "100.01")))
	assert.Error(t, ValidatePercent(dec(t, "-1")))
	require.NoError(t, ValidateAmount(dec(t, "0")))
	assert.Error(t, ValidateAmount(dec(t, "-0.01")))

	require.NoError(t, ValidateScale(dec(t, "1.50")))
	require.NoError(t, ValidateScale(dec(t, "12.300")))
	assert.Error(t, ValidateScale(dec(t, "1.005")))
	assert.Error(t, ValidateScale(dec(t, "12.345")))
}
