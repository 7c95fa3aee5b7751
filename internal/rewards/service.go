package rewards

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/notifications"
	"github.com/angelmondragon/coachcredits-backend/pkg/db/models"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/coachcredits-backend/pkg/errors"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox"
	"github.com/angelmondragon/coachcredits-backend/pkg/outbox/payloads"
)

const (
	DefaultReferralCredits     = 10
	DefaultReferralPremiumDays = 7
	relatedReferral            = "referral"
)

type creditLedger interface {
	AddCreditsTx(ctx context.Context, tx *gorm.DB, input credits.AddCreditsInput) (int64, error)
	InitTrialCreditsTx(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (credits.TrialResult, error)
}

// UserStore is the user access the adapter needs.
type UserStore interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	ExtendPremium(ctx context.Context, id uuid.UUID, days int, now time.Time) (time.Time, error)
}

// UserStoreFactory binds the user store to the grant transaction. A nil tx
// means the base connection.
type UserStoreFactory func(tx *gorm.DB) UserStore

type notifier interface {
	NotifyTx(ctx context.Context, tx *gorm.DB, input notifications.NotifyInput) (*models.Notification, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.Event) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReferralInput identifies one successful referral.
type ReferralInput struct {
	ReferrerUserID uuid.UUID
	ReferralID     string
	RewardType     enums.RewardType
}

// ReferralResult reports the grant. Granted is false for repeat calls.
type ReferralResult struct {
	Granted      bool             `json:"granted"`
	ReferralID   string           `json:"referral_id"`
	RewardType   enums.RewardType `json:"reward_type"`
	Credits      int64            `json:"credits,omitempty"`
	Balance      *int64           `json:"balance,omitempty"`
	PremiumUntil *time.Time       `json:"premium_until,omitempty"`
}

// Service turns non-payment business events into credit grants.
type Service interface {
	GrantReferralReward(ctx context.Context, input ReferralInput) (*ReferralResult, error)
	GrantSignupTrial(ctx context.Context, userID uuid.UUID) (credits.TrialResult, error)
}

type ServiceParams struct {
	Repo          Repository
	Credits       creditLedger
	Users         UserStoreFactory
	Notifications notifier
	Outbox        eventEmitter
	TxRunner      txRunner
	Logger        *logger.Logger

	ReferralCredits     int64
	ReferralPremiumDays int
}

type service struct {
	repo          Repository
	credits       creditLedger
	users         UserStoreFactory
	notifications notifier
	outbox        eventEmitter
	tx            txRunner
	logg          *logger.Logger
	credit        int64
	premiumDays   int
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "referral reward repository required")
	case params.Credits == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credit service required")
	case params.Users == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "user store required")
	case params.Notifications == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notification service required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox required")
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	credit := params.ReferralCredits
	if credit <= 0 {
		credit = DefaultReferralCredits
	}
	days := params.ReferralPremiumDays
	if days <= 0 {
		days = DefaultReferralPremiumDays
	}
	return &service{
		repo:          params.Repo,
		credits:       params.Credits,
		users:         params.Users,
		notifications: params.Notifications,
		outbox:        params.Outbox,
		tx:            params.TxRunner,
		logg:          params.Logger,
		credit:        credit,
		premiumDays:   days,
		now:           time.Now,
	}, nil
}

// GrantReferralReward pays out a referral at most once per referral id. The
// claim row, the grant, and the notification commit together.
func (s *service) GrantReferralReward(ctx context.Context, input ReferralInput) (*ReferralResult, error) {
	referralID := strings.TrimSpace(input.ReferralID)
	if input.ReferrerUserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referrer user id is required")
	}
	if referralID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "referral id is required")
	}
	rewardType := input.RewardType
	if rewardType == "" {
		rewardType = enums.RewardTypeCredits
	}
	if !rewardType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid reward type %q", rewardType))
	}

	result := &ReferralResult{ReferralID: referralID, RewardType: rewardType}
	existing, err := s.repo.Find(ctx, referralID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referral reward")
	}
	if existing != nil {
		result.RewardType = existing.RewardType
		return result, nil
	}

	exists, err := s.users(nil).Exists(ctx, input.ReferrerUserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup referrer")
	}
	if !exists {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "referrer not found")
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		reward := &models.ReferralReward{
			ReferralID:     referralID,
			ReferrerUserID: input.ReferrerUserID,
			RewardType:     rewardType,
			GrantedAt:      now,
		}
		if rewardType == enums.RewardTypeCredits {
			reward.Credits = s.credit
		} else {
			reward.PremiumDays = s.premiumDays
		}
		claimed, err := s.repo.WithTx(tx).InsertIfAbsent(ctx, reward)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim referral reward")
		}
		if !claimed {
			return nil
		}
		result.Granted = true

		var message string
		switch rewardType {
		case enums.RewardTypeCredits:
			balance, err := s.credits.AddCreditsTx(ctx, tx, credits.AddCreditsInput{
				UserID:      input.ReferrerUserID,
				Amount:      s.credit,
				Kind:        enums.CreditKindReward,
				Description: "Referral reward",
				Related:     &credits.RelatedEntity{Type: relatedReferral, ID: referralID},
			})
			if err != nil {
				return err
			}
			result.Credits = s.credit
			result.Balance = &balance
			message = fmt.Sprintf("You earned %d credits for a successful referral.", s.credit)
		case enums.RewardTypePremiumDays:
			until, err := s.users(tx).ExtendPremium(ctx, input.ReferrerUserID, s.premiumDays, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend premium")
			}
			result.PremiumUntil = &until
			message = fmt.Sprintf("You earned %d premium days for a successful referral.", s.premiumDays)
		}

		if _, err := s.notifications.NotifyTx(ctx, tx, notifications.NotifyInput{
			UserID:  input.ReferrerUserID,
			Type:    enums.NotificationTypeRewardGranted,
			Title:   "Referral reward",
			Message: message,
		}); err != nil {
			return err
		}

		return s.emit(ctx, tx, enums.EventReferralRewarded, enums.AggregateReferral, input.ReferrerUserID, payloads.ReferralRewardedEvent{
			ReferralID:     referralID,
			ReferrerUserID: input.ReferrerUserID,
			RewardType:     rewardType,
			Credits:        result.Credits,
			PremiumUntil:   result.PremiumUntil,
		})
	})
	if err != nil {
		return nil, asDependencyError(err, "grant referral reward")
	}

	logCtx := s.logg.WithUserID(ctx, input.ReferrerUserID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"referral_id": referralID, "granted": result.Granted})
	s.logg.Info(logCtx, "referral reward processed")
	return result, nil
}

// GrantSignupTrial grants the welcome credits and notifies the user. Repeat
// calls return Granted=false without notifying again.
func (s *service) GrantSignupTrial(ctx context.Context, userID uuid.UUID) (credits.TrialResult, error) {
	if userID == uuid.Nil {
		return credits.TrialResult{}, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	exists, err := s.users(nil).Exists(ctx, userID)
	if err != nil {
		return credits.TrialResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup user")
	}
	if !exists {
		return credits.TrialResult{}, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}

	var result credits.TrialResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.credits.InitTrialCreditsTx(ctx, tx, userID)
		if err != nil || !result.Granted {
			return err
		}
		if _, err := s.notifications.NotifyTx(ctx, tx, notifications.NotifyInput{
			UserID:  userID,
			Type:    enums.NotificationTypeTrialGranted,
			Title:   "Welcome",
			Message: fmt.Sprintf("You have %d free coaching credits to get started.", result.Credits),
		}); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventTrialGranted, enums.AggregateCreditAccount, userID, payloads.TrialGrantedEvent{
			UserID:       userID,
			Credits:      result.Credits,
			BalanceAfter: result.Balance,
		})
	})
	if err != nil {
		return credits.TrialResult{}, asDependencyError(err, "grant signup trial")
	}
	return result, nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, userID uuid.UUID, data any) error {
	err := s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     eventType,
		AggregateType: aggregate,
		AggregateID:   userID,
		Actor:         &outbox.Actor{UserID: userID},
		Data:          data,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "queue reward event")
	}
	return nil
}

func asDependencyError(err error, action string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}
