package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/api/responses"
	"github.com/angelmondragon/coachcredits-backend/api/validators"
	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/rewards"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
)

type ledgerAuditor interface {
	Audit(ctx context.Context, userID uuid.UUID) (*credits.AuditReport, error)
}

type referralRewardRequest struct {
	ReferrerUserID string `json:"referrer_user_id" validate:"required,uuid"`
	RewardType     string `json:"reward_type" validate:"omitempty,oneof=credits premium_days"`
}

func pathUUID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, param)))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+param)
	}
	return id, nil
}

// AdminGrantReferralReward pays out a referral once; repeated calls report granted=false.
func AdminGrantReferralReward(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		referralID := validators.ClipString(chi.URLParam(r, "referralId"), 128)
		if referralID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "referral id is required"))
			return
		}

		var req referralRewardRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := rewards.ReferralInput{
			ReferrerUserID: uuid.MustParse(req.ReferrerUserID),
			ReferralID:     referralID,
		}
		if req.RewardType != "" {
			rewardType, err := enums.ParseRewardType(req.RewardType)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reward type"))
				return
			}
			input.RewardType = rewardType
		}

		result, err := svc.GrantReferralReward(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Granted {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// AdminGrantTrial runs the signup trial grant for an existing user.
func AdminGrantTrial(svc rewards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.GrantSignupTrial(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// AdminCreditAudit recomputes the ledger sum for a user and compares it to the stored balance.
func AdminCreditAudit(svc ledgerAuditor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := pathUUID(r, "userId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		report, err := svc.Audit(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !report.Consistent && logg != nil {
			logCtx := logg.WithUserID(r.Context(), userID.String())
			logCtx = logg.WithFields(logCtx, map[string]any{
				"balance":    report.Balance,
				"ledger_sum": report.LedgerSum,
			})
			logg.Warn(logCtx, "credit ledger drift detected")
		}
		responses.WriteSuccess(w, report)
	}
}
