package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestPolicyForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		public    string
		retryable bool
		details   bool
		echo      bool
	}{
		{CodeValidation, http.StatusBadRequest, "validation failed", false, true, true},
		{CodeUnauthorized, http.StatusUnauthorized, "authentication required", false, false, true},
		{CodeNotFound, http.StatusNotFound, "resource not found", false, false, true},
		{CodeStateConflict, http.StatusUnprocessableEntity, "state transition disallowed", false, true, true},
		{CodeInternal, http.StatusInternalServerError, "internal server error", true, false, false},
		{CodeDependency, http.StatusServiceUnavailable, "dependency unavailable", true, true, false},
		{CodePaymentRequired, http.StatusPaymentRequired, "not enough credits, buy more credits to continue", false, true, false},
		{CodeInvalidSignature, http.StatusUnauthorized, "invalid signature", false, false, false},
		{CodeUnknownProduct, http.StatusUnprocessableEntity, "unknown product", false, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			got := PolicyFor(tt.code)
			want := Policy{Status: tt.status, Retryable: tt.retryable, Public: tt.public, ShowDetails: tt.details, EchoMessage: tt.echo}
			if got != want {
				t.Fatalf("expected %+v got %+v", want, got)
			}
		})
	}
}

func TestPolicyForUnknownCodeFallsBackToInternal(t *testing.T) {
	if got := PolicyFor("SOMETHING_UNKNOWN"); got != PolicyFor(CodeInternal) {
		t.Fatalf("expected internal policy, got %+v", got)
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

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrapping(t *testing.T) {
	inner := New(CodePaymentRequired, "no credits")
	outer := fmt.Errorf("chat: %w", inner)
	if !IsCode(outer, CodePaymentRequired) {
		t.Fatalf("expected wrapped code to be detected")
	}
	if IsCode(outer, CodeDependency) {
		t.Fatalf("unexpected code match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatal("nil is not retryable")
	}
	if !IsRetryable(stdErrors.New("plain")) {
		t.Fatal("uncoded errors are treated as internal")
	}
	if IsRetryable(New(CodeValidation, "bad")) {
		t.Fatal("validation errors are final")
	}
	if !IsRetryable(fmt.Errorf("publish: %w", Wrap(CodeDependency, stdErrors.New("timeout"), "pubsub"))) {
		t.Fatal("dependency errors are retryable")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Wrap(CodeDependency, stdErrors.New("timeout"), "load balance")
	if got := err.Error(); got != "DEPENDENCY_ERROR: load balance: timeout" {
		t.Fatalf("unexpected error string %q", got)
	}
}

func TestDiagnoseReadsPostgresErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "uq_credit_tx_idempotency", TableName: "credit_transactions"}
	d := Diagnose(Wrap(CodeConflict, pgErr, "duplicate"))
	if d.Code != CodeConflict || d.PG.Code != "23505" || d.PG.Constraint != "uq_credit_tx_idempotency" {
		t.Fatalf("unexpected diagnostics %+v", d)
	}
	fields := d.LogFields()
	if fields["pg_table"] != "credit_transactions" {
		t.Fatalf("missing pg_table in %v", fields)
	}
	if _, ok := fields["pg_detail"]; ok {
		t.Fatal("empty postgres fields must be omitted")
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain links, got %v", d.Chain)
	}
}

func TestDiagnoseReadsLibPQErrors(t *testing.T) {
	d := Diagnose(fmt.Errorf("insert: %w", &pq.Error{Code: "23503", Table: "notifications"}))
	if d.PG.Code != "23503" || d.PG.Table != "notifications" {
		t.Fatalf("unexpected diagnostics %+v", d.PG)
	}
	if d.Code != "" {
		t.Fatalf("uncoded chain should have empty code, got %s", d.Code)
	}
}
