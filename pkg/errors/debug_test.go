package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpExtractsPgxDiagnostics(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_invoices_unit", TableName: "invoices"}
	err := Wrap(CodeConflict, fmt.Errorf("insert: %w", pgErr), "invoice exists")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_invoices_unit" || d.PGTable != "invoices" {
		t.Fatalf("unexpected pg fields %#v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
}

func TestSQLStateFromLibPQ(t *testing.T) {
	err := fmt.Errorf("exec: %w", &pq.Error{Code: "23514", Constraint: "ck_promotions_usage"})
	code, constraint := SQLState(err)
	if code != "23514" || constraint != "ck_promotions_usage" {
		t.Fatalf("unexpected sqlstate %q / %q", code, constraint)
	}
	if code, _ := SQLState(fmt.Errorf("plain")); code != "" {
		t.Fatalf("expected empty sqlstate for plain errors")
	}
}
