package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/coachcredits-backend/internal/credits"
	"github.com/angelmondragon/coachcredits-backend/pkg/logger"
	"github.com/angelmondragon/coachcredits-backend/pkg/metrics"
)

const defaultAuditBatchSize = 200

type accountLister interface {
	ListAccountUserIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type ledgerAuditor interface {
	Audit(ctx context.Context, userID uuid.UUID) (*credits.AuditReport, error)
}

type LedgerAuditJobParams struct {
	Logger    *logger.Logger
	Accounts  accountLister
	Auditor   ledgerAuditor
	Metrics   *metrics.JobMetrics
	BatchSize int
}

// ledgerAuditJob walks every credit account and recomputes its ledger sum.
// Drift is reported, never repaired.
type ledgerAuditJob struct {
	logg      *logger.Logger
	accounts  accountLister
	auditor   ledgerAuditor
	metrics   *metrics.JobMetrics
	batchSize int
}

func NewLedgerAuditJob(params LedgerAuditJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account lister required")
	}
	if params.Auditor == nil {
		return nil, fmt.Errorf("ledger auditor required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAuditBatchSize
	}
	return &ledgerAuditJob{
		logg:      params.Logger,
		accounts:  params.Accounts,
		auditor:   params.Auditor,
		metrics:   params.Metrics,
		batchSize: batch,
	}, nil
}

func (j *ledgerAuditJob) Name() string { return "ledger-audit" }

// Run keeps auditing after a per-account failure and returns the combined errors.
func (j *ledgerAuditJob) Run(ctx context.Context) error {
	var (
		audited  int
		drifted  int
		auditErr error
		cursor   = uuid.Nil
	)
	for {
		if err := ctx.Err(); err != nil {
			return multierr.Append(auditErr, err)
		}
		ids, err := j.accounts.ListAccountUserIDs(ctx, cursor, j.batchSize)
		if err != nil {
			return multierr.Append(auditErr, fmt.Errorf("list accounts after %s: %w", cursor, err))
		}
		for _, id := range ids {
			report, err := j.auditor.Audit(ctx, id)
			if err != nil {
				auditErr = multierr.Append(auditErr, fmt.Errorf("audit %s: %w", id, err))
				continue
			}
			audited++
			if !report.Consistent {
				drifted++
			}
		}
		if len(ids) < j.batchSize {
			break
		}
		cursor = ids[len(ids)-1]
	}

	j.metrics.AddDrift(drifted)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"accounts_audited": audited,
		"accounts_drifted": drifted,
		"audit_failures":   len(multierr.Errors(auditErr)),
	})
	if drifted > 0 {
		j.logg.Warn(logCtx, "ledger audit found drifted accounts")
	} else {
		j.logg.Info(logCtx, "ledger audit complete")
	}
	return auditErr
}
