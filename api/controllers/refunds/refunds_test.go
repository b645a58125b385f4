package refunds

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalrefunds "github.com/tillpoint/epos-backend/internal/refunds"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
)

type stubRefunder struct {
	req     *internalrefunds.Request
	err     error
	history string
}

func (s *stubRefunder) History(_ context.Context, paymentID string) ([]internalrefunds.HistoryEntry, error) {
	s.history = paymentID
	if s.err != nil {
		return nil, s.err
	}
	return []internalrefunds.HistoryEntry{{RefundID: "rf_1", Status: "COMPLETED", AmountMinor: 150}}, nil
}

func (s *stubRefunder) Refund(_ context.Context, req internalrefunds.Request) (*internalrefunds.Result, error) {
	s.req = &req
	if s.err != nil {
		return nil, s.err
	}
	return &internalrefunds.Result{RefundID: "rf_1", Status: "PENDING", AmountMinor: 200, Currency: "GBP"}, nil
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/refunds", strings.NewReader(body)))
	return rec
}

func TestCreateRefund(t *testing.T) {
	svc := &stubRefunder{}
	rec := post(Create(svc, nil), `{"payment_id":" pay_1 ","lines":[{"ean":"501","quantity":1}],"reason":"damaged"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, svc.req)
	assert.Equal(t, "pay_1", svc.req.PaymentID)
	assert.Equal(t, "damaged", svc.req.Reason)
	assert.Contains(t, rec.Body.String(), `"amount_minor":200`)
}

func TestCreateRefundValidation(t *testing.T) {
	cases := []string{
		`{"lines":[{"ean":"501","quantity":1}]}`,
		`{"payment_id":"pay_1","lines":[]}`,
		`{"payment_id":"pay_1","lines":[{"ean":"","quantity":1}]}`,
		`{"payment_id":"pay_1","lines":[{"ean":"501","quantity":-2}]}`,
	}
	for _, body := range cases {
		svc := &stubRefunder{}
		rec := post(Create(svc, nil), body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Nil(t, svc.req, body)
	}
}

func TestCreateRefundMapsErrors(t *testing.T) {
	cases := map[pkgerrors.Code]int{
		pkgerrors.CodeNotFound:   http.StatusNotFound,
		pkgerrors.CodeConflict:   http.StatusConflict,
		pkgerrors.CodeDependency: http.StatusServiceUnavailable,
	}
	for code, status := range cases {
		svc := &stubRefunder{err: pkgerrors.Wrap(code, errors.New("cause"), "refund failed")}
		rec := post(Create(svc, nil), `{"payment_id":"pay_1","lines":[{"ean":"501","quantity":1}]}`)
		assert.Equal(t, status, rec.Code, code)
	}
}

func TestListRefunds(t *testing.T) {
	svc := &stubRefunder{}
	rec := httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/refunds?payment_id=pay_7", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pay_7", svc.history)
	assert.Contains(t, rec.Body.String(), `"refund_id":"rf_1"`)

	rec = httptest.NewRecorder()
	List(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/refunds", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
