package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/coachcredits-backend/api/middleware"
	"github.com/angelmondragon/coachcredits-backend/api/validators"
	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/internal/quota"
	"github.com/angelmondragon/coachcredits-backend/pkg/enums"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/pagination"
)

// CreditReader is the read side of the credit service used by the balance endpoints.
type CreditReader interface {
	GetBalance(ctx context.Context, userID uuid.UUID) (*credits.BalanceDTO, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, page pagination.Page) (*credits.TransactionPage, error)
}

// PrincipalResolver decides whether a caller bypasses credit checks.
type PrincipalResolver interface {
	Resolve(ctx context.Context, userID uuid.UUID, role enums.UserRole) (quota.Principal, error)
}

type admissionChecker interface {
	CheckAndReserve(ctx context.Context, principal quota.Principal) (quota.Admission, error)
}

// CreditBalance returns the caller's balance, creating an empty account on first read.
func CreditBalance(svc CreditReader, logg *logger.Logger) http.HandlerFunc {
	return forCaller(logg, func(r *http.Request, userID uuid.UUID) (any, error) {
		return svc.GetBalance(r.Context(), userID)
	})
}

// CreditTransactions lists the caller's ledger entries newest first.
func CreditTransactions(svc CreditReader, defaultPageSize int, logg *logger.Logger) http.HandlerFunc {
	return forCaller(logg, func(r *http.Request, userID uuid.UUID) (any, error) {
		page, err := validators.QueryInt(r, "page", validators.IntRange{Default: 1, Min: 1, Max: 100000})
		if err != nil {
			return nil, err
		}
		size, err := validators.QueryInt(r, "page_size", validators.IntRange{Default: defaultPageSize, Min: 1, Max: pagination.MaxLimit})
		if err != nil {
			return nil, err
		}
		return svc.ListTransactions(r.Context(), userID, pagination.Page{Page: page, PageSize: size})
	})
}

// CreditAdmission reports whether the caller can start a metered action right now.
func CreditAdmission(gate admissionChecker, resolver PrincipalResolver, logg *logger.Logger) http.HandlerFunc {
	return forCaller(logg, func(r *http.Request, userID uuid.UUID) (any, error) {
		principal, err := resolver.Resolve(r.Context(), userID, middleware.RoleFromContext(r.Context()))
		if err != nil {
			return nil, err
		}
		return gate.CheckAndReserve(r.Context(), principal)
	})
}
