package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestCodeHelpers(t *testing.T) {
	sentinel := stdErrors.New("price not found")
	err := fmt.Errorf("resolve: %w", Wrap(CodeNotFound, sentinel, "no price for product 4"))
	if CodeOf(err) != CodeNotFound {
		t.Fatalf("expected not found, got %s", CodeOf(err))
	}
	if !IsCode(err, CodeNotFound) || IsCode(err, CodeConflict) {
		t.Fatalf("IsCode mismatch for %v", err)
	}
	if !stdErrors.Is(err, sentinel) {
		t.Fatalf("sentinel lost through wrapping")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("untyped errors should map to internal")
	}
	if IsCode(nil, CodeInternal) {
		t.Fatalf("nil error should not match any code")
	}
	if got := Newf(CodeValidation, "quantity %d exceeds %d", 3, 2).Message(); got != "quantity 3 exceeds 2" {
		t.Fatalf("unexpected formatted message %q", got)
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(CodeDependency, "gateway down")) {
		t.Fatalf("dependency errors should be retryable")
	}
	if Retryable(New(CodeValidation, "bad ean")) {
		t.Fatalf("validation errors should not be retryable")
	}
	if !Retryable(stdErrors.New("plain")) {
		t.Fatalf("untyped errors map to internal and are retryable")
	}
	if Retryable(nil) {
		t.Fatalf("nil is not retryable")
	}
}

func TestDumpExtractsPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_products_ean", TableName: "products"}
	err := Wrap(CodeConflict, fmt.Errorf("insert product: %w", pgErr), "product exists")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("unexpected code %s", d.Code)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected three links in chain, got %d", len(d.Chain))
	}
	if d.PG == nil || d.PG.Constraint != "ux_products_ean" || d.PG.Table != "products" {
		t.Fatalf("postgres fields missing: %+v", d.PG)
	}

	pqErr := &pq.Error{Code: "23503", Constraint: "fk_order_items_order"}
	if pg, ok := Postgres(pqErr); !ok || pg.Code != "23503" || pg.Constraint != "fk_order_items_order" {
		t.Fatalf("lib/pq error not extracted: %+v", pg)
	}
	if _, ok := Postgres(stdErrors.New("boom")); ok {
		t.Fatalf("plain error is not a postgres error")
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("nil dump should be empty")
	}
}
