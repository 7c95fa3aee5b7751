package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/coachcredits-backend/api/responses"
	"github.com/angelmondragon/coachcredits-backend/internal/payments"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
)

const maxWebhookBodyBytes = 1 << 20

type PaymentWebhookService interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (*payments.Result, error)
}

// PaymentWebhook hands the raw body and signature to the reconciler. The body
// must reach the verifier byte-for-byte, so it is never decoded here.
func PaymentWebhook(svc PaymentWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		result, err := svc.HandleWebhook(ctx, payload, r.Header.Get(payments.SignatureHeader))
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
