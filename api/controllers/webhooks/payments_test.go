package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/coachcredits-backend/internal/payments"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
)

type recordingService struct {
	payload   []byte
	signature string
	result    *payments.Result
	err       error
}

func (s *recordingService) HandleWebhook(_ context.Context, payload []byte, signature string) (*payments.Result, error) {
	s.payload = payload
	s.signature = signature
	return s.result, s.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "webhooks-test", Output: io.Discard})
}

func TestPaymentWebhookPassesRawBody(t *testing.T) {
	svc := &recordingService{result: &payments.Result{Outcome: enums.WebhookOutcomeProcessed, Credits: 50}}
	raw := "{\"meta\":{\"event_name\":\"order_created\"},  \"data\":{}}\n"

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(raw))
	req.Header.Set(payments.SignatureHeader, "abc123")
	resp := httptest.NewRecorder()
	PaymentWebhook(svc, testLogger()).ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if string(svc.payload) != raw {
		t.Fatalf("payload must reach the verifier unchanged, got %q", svc.payload)
	}
	if svc.signature != "abc123" {
		t.Fatalf("unexpected signature %q", svc.signature)
	}
}

func TestPaymentWebhookStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid signature", pkgerrors.New(pkgerrors.CodeInvalidSignature, "signature mismatch"), http.StatusUnauthorized},
		{"unknown product", pkgerrors.New(pkgerrors.CodeUnknownProduct, "unknown variant"), http.StatusUnprocessableEntity},
		{"unknown user", pkgerrors.New(pkgerrors.CodeUnknownUser, "unknown buyer"), http.StatusUnprocessableEntity},
		{"malformed", pkgerrors.New(pkgerrors.CodeValidation, "invalid payload"), http.StatusBadRequest},
		{"storage", pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("db down"), "insert order"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &recordingService{err: tt.err}
			req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`{}`))
			resp := httptest.NewRecorder()
			PaymentWebhook(svc, testLogger()).ServeHTTP(resp, req)
			if resp.Code != tt.want {
				t.Fatalf("expected %d got %d", tt.want, resp.Code)
			}
		})
	}
}

func TestPaymentWebhookDuplicateIsSuccess(t *testing.T) {
	svc := &recordingService{result: &payments.Result{Outcome: enums.WebhookOutcomeDuplicate}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments", strings.NewReader(`{}`))
	resp := httptest.NewRecorder()
	PaymentWebhook(svc, testLogger()).ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"outcome":"duplicate"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}
