package enums

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefundStatusAccepted(t *testing.T) {
	assert.True(t, RefundStatusPending.Accepted())
	assert.True(t, RefundStatusCompleted.Accepted())
	assert.False(t, RefundStatusRejected.Accepted())
	assert.False(t, RefundStatusFailed.Accepted())
	assert.False(t, RefundStatus("UNKNOWN").Accepted())
}

func TestParsePaymentStatusIsCaseInsensitive(t *testing.T) {
	status, err := ParsePaymentStatus(" completed ")
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusCompleted, status)

	_, err = ParsePaymentStatus("settled")
	assert.Error(t, err)
}

func TestOutboxEventTypes(t *testing.T) {
	for _, value := range []string{"order.created", "order.settled", "order.refunded", "order.canceled", "product.price_changed"} {
		parsed, err := ParseOutboxEventType(value)
		require.NoError(t, err)
		assert.True(t, parsed.IsValid())
	}
	_, err := ParseOutboxEventType("order_created")
	assert.Error(t, err)
	assert.False(t, OutboxAggregateType("store").IsValid())
}

func TestParseTaxCategory(t *testing.T) {
	category, err := ParseTaxCategory("reduced")
	require.NoError(t, err)
	assert.Equal(t, TaxCategoryReduced, category)
	_, err = ParseTaxCategory("luxury")
	assert.Error(t, err)
}

func TestParseCurrency(t *testing.T) {
	c, err := ParseCurrency(" eur ")
	require.NoError(t, err)
	assert.Equal(t, CurrencyEUR, c)
	assert.EqualValues(t, 2, c.MinorDigits())

	_, err = ParseCurrency("JPY")
	assert.EqualError(t, err, `unsupported currency "JPY"`)
	assert.False(t, Currency("").IsValid())
}

func TestOutboxEventAggregate(t *testing.T) {
	assert.Equal(t, AggregateOrder, EventOrderRefunded.Aggregate())
	assert.Equal(t, AggregateProduct, EventPriceChanged.Aggregate())
	assert.Empty(t, OutboxEventType("order.lost").Aggregate())
}

func TestParseIgnoresCaseAndSpace(t *testing.T) {
	status, err := ParseRefundStatus(" pending")
	require.NoError(t, err)
	assert.Equal(t, RefundStatusPending, status)

	category, err := ParseTaxCategory("Zero ")
	require.NoError(t, err)
	assert.Equal(t, TaxCategoryZero, category)

	_, err = ParseRefundStatus("done")
	assert.EqualError(t, err, `invalid refund status "done"`)
}
