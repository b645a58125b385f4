package square

import (
	"strconv"
	"strings"

	sq "github.com/square/square-go-sdk"
	"github.com/square/square-go-sdk/checkout"

	"github.com/tillpoint/epos-backend/pkg/enums"
)

// PaymentLinkLine is one priced line on a Square order. AmountMinor is the
// unit price in minor units.
type PaymentLinkLine struct {
	Name        string
	Quantity    int
	AmountMinor int64
}

// PaymentLinkParams describes the order raised behind a payment link.
type PaymentLinkParams struct {
	IdempotencyKey string
	Lines          []PaymentLinkLine
}

// TotalMinor sums the lines in minor units.
func (p PaymentLinkParams) TotalMinor() int64 {
	var total int64
	for _, line := range p.Lines {
		total += line.AmountMinor * int64(line.Quantity)
	}
	return total
}

func (p PaymentLinkParams) toSquareRequest(idempotencyKey, locationID, currency string) *checkout.CreatePaymentLinkRequest {
	items := make([]*sq.OrderLineItem, 0, len(p.Lines))
	for _, line := range p.Lines {
		items = append(items, &sq.OrderLineItem{
			Name:           ptrString(line.Name),
			Quantity:       strconv.Itoa(line.Quantity),
			BasePriceMoney: amountMoney(line.AmountMinor, currency),
		})
	}
	return &checkout.CreatePaymentLinkRequest{
		IdempotencyKey: ptrString(idempotencyKey),
		Order: &sq.Order{
			LocationID: locationID,
			LineItems:  items,
		},
	}
}

// PaymentLink is the gateway order behind a hosted checkout.
type PaymentLink struct {
	ID             string
	GatewayOrderID string
	URL            string
}

// RefundParams describes a refund against a completed payment.
type RefundParams struct {
	IdempotencyKey string
	PaymentID      string
	AmountMinor    int64
	Reason         string
}

func (p RefundParams) toSquareRequest(idempotencyKey, currency string) *sq.RefundPaymentRequest {
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		AmountMoney:    moneyPtr(p.AmountMinor, currency),
		PaymentID:      ptrString(p.PaymentID),
	}
	if trimmed := strings.TrimSpace(p.Reason); trimmed != "" {
		req.Reason = ptrString(trimmed)
	}
	return req
}

// PaymentRefund is the gateway's answer to a refund request.
type PaymentRefund struct {
	ID          string
	Status      enums.RefundStatus
	AmountMinor int64
	Currency    string
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = string(enums.CurrencyGBP)
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return amountMoney(amount, currency)
}

// amountMoney keeps zero amounts, which are valid for fully discounted lines.
func amountMoney(amount int64, currency string) *sq.Money {
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
