package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_refunds_idempotency_key"}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "") {
		t.Fatal("expected pg unique violation to match")
	}
	if !IsUniqueViolation(pgErr, "ux_refunds_idempotency_key") {
		t.Fatal("expected constraint name to match")
	}
	if IsUniqueViolation(pgErr, "ux_orders_payment_id") {
		t.Fatal("expected other constraint not to match")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Fatal("foreign key violation is not a unique violation")
	}
	if !IsUniqueViolation(&pq.Error{Code: "23505", Constraint: "ux_orders_gateway_order_id"}, "ux_orders_gateway_order_id") {
		t.Fatal("expected lib/pq violation to match")
	}
	if !IsUniqueViolation(errors.New("UNIQUE constraint failed: refunds.idempotency_key"), "idempotency_key") {
		t.Fatal("expected sqlite message to match")
	}
	if IsUniqueViolation(nil, "") || IsUniqueViolation(errors.New("boom"), "") {
		t.Fatal("unexpected match")
	}
}
