package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapError_UniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint \"idx_users_email\"",
		ConstraintName: "idx_users_email",
		Detail:         "Key (email)=(dup@test.com) already exists.",
	}
	wrapped := fmt.Errorf("exec: %w", pgErr)

	mapped := MapError(wrapped)

	if !errors.Is(mapped, ErrUniqueViolation) {
		t.Fatalf("expected ErrUniqueViolation, got: %v", mapped)
	}

	// Original pgconn.PgError should still be extractable
	var extracted *pgconn.PgError
	if !errors.As(mapped, &extracted) {
		t.Fatal("expected pgconn.PgError to still be extractable via errors.As")
	}
	if extracted.ConstraintName != "idx_users_email" {
		t.Fatalf("expected constraint name 'idx_users_email', got: %s", extracted.ConstraintName)
	}
}

func TestMapError_OtherPgError(t *testing.T) {
	err := &pgconn.PgError{Code: "23503", Message: "foreign key violation"}
	if mapped := MapError(err); mapped != error(err) {
		t.Fatalf("expected same error back, got: %v", mapped)
	}
}

func TestMapError_OtherError(t *testing.T) {
	err := fmt.Errorf("some other error")
	mapped := MapError(err)
	if mapped != err {
		t.Fatalf("expected same error back, got: %v", mapped)
	}
}

func TestMapError_Nil(t *testing.T) {
	if mapped := MapError(nil); mapped != nil {
		t.Fatalf("expected nil, got: %v", mapped)
	}
}

func TestIdent_QuotesReservedWords(t *testing.T) {
	if got := Ident("user"); got != `"user"` {
		t.Fatalf("expected quoted identifier, got %s", got)
	}
}

func TestNormalizeValue_Arrays(t *testing.T) {
	got := normalizeValue([]any{"S1", [16]byte{0x12, 0x34}})
	list, ok := got.([]any)
	if !ok || len(list) != 2 {
		t.Fatalf("expected 2-element list, got %#v", got)
	}
	if list[0] != "S1" {
		t.Fatalf("expected S1, got %v", list[0])
	}
	if s, ok := list[1].(string); !ok || len(s) != 36 {
		t.Fatalf("expected uuid string, got %#v", list[1])
	}
}
