package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalorders "github.com/tillpoint/epos-backend/internal/orders"
	pkgerrors "github.com/tillpoint/epos-backend/pkg/errors"
)

type stubService struct {
	lines     []internalorders.LineInput
	createErr error
	statusErr error
	cancelErr error
	canceled  string
	listed    internalorders.ListParams
}

func (s *stubService) Create(_ context.Context, lines []internalorders.LineInput) (*internalorders.CreateResult, error) {
	s.lines = lines
	if s.createErr != nil {
		return nil, s.createErr
	}
	return &internalorders.CreateResult{OrderID: "ord_1", PaymentLink: "https://pay/1", TotalMinor: 240, Currency: "GBP"}, nil
}

func (s *stubService) Status(_ context.Context, id string) (*internalorders.StatusDTO, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &internalorders.StatusDTO{OrderID: id, IsSettled: true}, nil
}

func (s *stubService) Detail(_ context.Context, id string) (*internalorders.OrderDetailDTO, error) {
	return &internalorders.OrderDetailDTO{OrderID: id, IsSale: true}, nil
}

func (s *stubService) Cancel(_ context.Context, id string) error {
	s.canceled = id
	return s.cancelErr
}

func (s *stubService) List(_ context.Context, params internalorders.ListParams) (*internalorders.OrderListDTO, error) {
	s.listed = params
	return &internalorders.OrderListDTO{
		Orders:     []internalorders.OrderSummaryDTO{{OrderID: "ord_2", IsSale: true}},
		NextCursor: "next",
	}, nil
}

func router(svc internalorders.Service) http.Handler {
	r := chi.NewRouter()
	r.Post("/api/v1/orders", Create(svc, nil))
	r.Get("/api/v1/orders", List(svc, nil))
	r.Get("/api/v1/orders/{orderId}", Detail(svc, nil))
	r.Get("/api/v1/orders/{orderId}/status", Status(svc, nil))
	r.Post("/api/v1/orders/{orderId}/cancel", Cancel(svc, nil))
	return r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateReturnsPaymentLink(t *testing.T) {
	svc := &stubService{}
	rec := do(router(svc), http.MethodPost, "/api/v1/orders",
		`{"lines":[{"ean":" 5012345678900 ","quantity":2,"discount_percent":"20"}]}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Len(t, svc.lines, 1)
	assert.Equal(t, "5012345678900", svc.lines[0].EAN)
	require.NotNil(t, svc.lines[0].DiscountPercent)
	assert.Equal(t, "20", svc.lines[0].DiscountPercent.String())

	var body struct {
		Data internalorders.CreateResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://pay/1", body.Data.PaymentLink)
	assert.EqualValues(t, 240, body.Data.TotalMinor)
}

func TestCreateRejectsInvalidBodies(t *testing.T) {
	cases := map[string]string{
		"empty lines":   `{"lines":[]}`,
		"zero quantity": `{"lines":[{"ean":"1","quantity":0}]}`,
		"unknown field": `{"lines":[{"ean":"1","quantity":1}],"store":"x"}`,
		"malformed":     `{"lines":`,
	}
	for name, body := range cases {
		svc := &stubService{}
		rec := do(router(svc), http.MethodPost, "/api/v1/orders", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, name)
		assert.Nil(t, svc.lines, name)
	}
}

func TestCreateSurfacesGatewayFailure(t *testing.T) {
	svc := &stubService{createErr: pkgerrors.New(pkgerrors.CodeDependency, "payment link failed")}
	rec := do(router(svc), http.MethodPost, "/api/v1/orders", `{"lines":[{"ean":"1","quantity":1}]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusAndDetail(t *testing.T) {
	svc := &stubService{}
	rec := do(router(svc), http.MethodGet, "/api/v1/orders/ord_9/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"is_settled":true`)

	rec = do(router(svc), http.MethodGet, "/api/v1/orders/ord_9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"order_id":"ord_9"`)

	svc.statusErr = pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	rec = do(router(svc), http.MethodGet, "/api/v1/orders/missing/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCancel(t *testing.T) {
	svc := &stubService{}
	rec := do(router(svc), http.MethodPost, "/api/v1/orders/ord_3/cancel", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ord_3", svc.canceled)

	svc.cancelErr = pkgerrors.New(pkgerrors.CodeStateConflict, "order already settled")
	rec = do(router(svc), http.MethodPost, "/api/v1/orders/ord_3/cancel", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNilServiceIsInternal(t *testing.T) {
	rec := do(router(nil), http.MethodGet, "/api/v1/orders/ord_1/status", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListParsesQuery(t *testing.T) {
	svc := &stubService{}
	rec := do(router(svc), http.MethodGet, "/api/v1/orders?limit=10&settled=false&cursor=abc", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, svc.listed.Limit)
	assert.Equal(t, "abc", svc.listed.Cursor)
	require.NotNil(t, svc.listed.Settled)
	assert.False(t, *svc.listed.Settled)
	assert.Contains(t, rec.Body.String(), `"next_cursor":"next"`)

	rec = do(router(svc), http.MethodGet, "/api/v1/orders", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 25, svc.listed.Limit)
	assert.Nil(t, svc.listed.Settled)
}

func TestListRejectsBadQuery(t *testing.T) {
	for _, query := range []string{"limit=abc", "limit=0", "limit=101", "settled=maybe"} {
		rec := do(router(&stubService{}), http.MethodGet, "/api/v1/orders?"+query, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}
}
