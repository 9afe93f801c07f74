package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/config"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/rs/zerolog"
)

// SubscriptionServiceImpl implements ports.SubscriptionService. The scheduler
// works in two idempotent passes: SyncAll materializes upcoming charges as
// obligations inside the configured horizon, RunDue settles the ones that have
// come due. Deterministic operation ids make both passes safe to repeat.
type SubscriptionServiceImpl struct {
	subRepo        ports.SubscriptionRepository
	obligationRepo ports.ObligationRepository
	accountRepo    ports.AccountRepository
	entryRepo      ports.EntryRepository
	transfers      ports.TransferService
	cfg            config.SchedulerConfig
	log            zerolog.Logger
}

// NewSubscriptionService creates a new SubscriptionServiceImpl.
func NewSubscriptionService(
	subRepo ports.SubscriptionRepository,
	obligationRepo ports.ObligationRepository,
	accountRepo ports.AccountRepository,
	entryRepo ports.EntryRepository,
	transfers ports.TransferService,
	cfg config.SchedulerConfig,
	log zerolog.Logger,
) *SubscriptionServiceImpl {
	return &SubscriptionServiceImpl{
		subRepo:        subRepo,
		obligationRepo: obligationRepo,
		accountRepo:    accountRepo,
		entryRepo:      entryRepo,
		transfers:      transfers,
		cfg:            cfg,
		log:            log,
	}
}

// Create registers a recurring charge against one of the owner's budget cards.
func (s *SubscriptionServiceImpl) Create(ctx context.Context, req ports.CreateSubscriptionRequest) (*domain.Subscription, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount("must be positive")
	}
	if req.ServiceName == "" {
		return nil, apperror.Validation("service name is required")
	}
	switch req.BillingCycle {
	case domain.BillingCycleWeekly, domain.BillingCycleMonthly, domain.BillingCycleQuarterly, domain.BillingCycleYearly:
	default:
		return nil, apperror.Validation("unknown billing cycle " + string(req.BillingCycle))
	}

	card, err := s.accountRepo.GetByID(ctx, req.CardAccountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get card account: %w", err))
	}
	if card == nil {
		return nil, apperror.ErrAccountNotFound(req.CardAccountID)
	}
	if card.Kind != domain.AccountKindBudgetCard {
		return nil, apperror.ErrKindNotAllowed(string(card.Kind))
	}
	if card.OwnerID != req.OwnerID {
		return nil, apperror.ErrNotOwner()
	}

	now := time.Now().UTC()
	first := req.FirstBillingDate.UTC()
	if req.FirstBillingDate.IsZero() {
		first = now
	}

	sub := &domain.Subscription{
		OwnerID:         req.OwnerID,
		CardAccountID:   req.CardAccountID,
		ServiceName:     req.ServiceName,
		ServiceCategory: req.ServiceCategory,
		Amount:          req.Amount,
		BillingCycle:    req.BillingCycle,
		NextBillingDate: &first,
		Active:          true,
		AutoRenew:       true,
		CreatedAt:       now,
	}
	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create subscription: %w", err))
	}

	// Materialize the first obligation right away when it is near enough;
	// otherwise the next sweep picks it up.
	if _, _, err := s.EnsureNextPayment(ctx, sub); err != nil {
		s.log.Warn().Err(err).Int64("subscription_id", sub.ID).Msg("initial obligation sync failed")
	}

	s.log.Info().
		Int64("subscription_id", sub.ID).
		Str("service", sub.ServiceName).
		Str("amount", sub.Amount.String()).
		Str("cycle", string(sub.BillingCycle)).
		Msg("subscription created")

	return sub, nil
}

// Cancel deactivates a subscription. Obligations already materialized stay
// put; the charge run fails them once they come due.
func (s *SubscriptionServiceImpl) Cancel(ctx context.Context, subscriptionID int64, callerOwnerID int64) error {
	sub, err := s.subRepo.GetByID(ctx, subscriptionID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("get subscription: %w", err))
	}
	if sub == nil {
		return apperror.ErrNotFound("Subscription")
	}
	if sub.OwnerID != callerOwnerID {
		return apperror.ErrNotOwner()
	}
	if !sub.Active {
		return apperror.ErrSubscriptionInactive(subscriptionID)
	}

	if err := s.subRepo.Cancel(ctx, subscriptionID, time.Now().UTC()); err != nil {
		return apperror.InternalError(fmt.Errorf("cancel subscription: %w", err))
	}

	s.log.Info().Int64("subscription_id", subscriptionID).Msg("subscription cancelled")
	return nil
}

// ListByOwner returns all of an owner's subscriptions, active or not.
func (s *SubscriptionServiceImpl) ListByOwner(ctx context.Context, ownerID int64) ([]domain.Subscription, error) {
	subs, err := s.subRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list subscriptions: %w", err))
	}
	return subs, nil
}

// EnsureNextPayment materializes the obligation for the subscription's next
// billing date if it falls inside the horizon. The (subscription, due date)
// unique index makes concurrent sweeps converge on a single row.
func (s *SubscriptionServiceImpl) EnsureNextPayment(ctx context.Context, sub *domain.Subscription) (*domain.ScheduledObligation, bool, error) {
	if !sub.Billable() {
		return nil, false, nil
	}

	due := sub.NextBillingDate.UTC()
	horizon := time.Now().UTC().Add(time.Duration(s.cfg.HorizonDays) * 24 * time.Hour)
	if due.After(horizon) {
		return nil, false, nil
	}

	existing, err := s.obligationRepo.GetBySubscriptionAndDue(ctx, sub.ID, due)
	if err != nil {
		return nil, false, apperror.InternalError(fmt.Errorf("get obligation: %w", err))
	}
	if existing != nil {
		return existing, false, nil
	}

	ob := &domain.ScheduledObligation{
		SubscriptionID: sub.ID,
		AccountID:      sub.CardAccountID,
		Amount:         sub.Amount,
		DueDate:        due,
		Status:         domain.ObligationStatusScheduled,
		OperationID:    domain.BuildSubscriptionChargeOpID(sub.ID, due),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.obligationRepo.Create(ctx, ob); err != nil {
		if apperror.IsCode(err, apperror.CodeDuplicateOperation) {
			// A concurrent sweep materialized it first.
			won, rerr := s.obligationRepo.GetBySubscriptionAndDue(ctx, sub.ID, due)
			if rerr != nil {
				return nil, false, apperror.InternalError(fmt.Errorf("get obligation: %w", rerr))
			}
			return won, false, nil
		}
		return nil, false, apperror.InternalError(fmt.Errorf("create obligation: %w", err))
	}
	return ob, true, nil
}

// SyncAll runs EnsureNextPayment over every billable subscription. Failures
// are logged and skipped so one bad subscription cannot stall the sweep.
func (s *SubscriptionServiceImpl) SyncAll(ctx context.Context) (*ports.SyncReport, error) {
	subs, err := s.subRepo.ListBillable(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list billable subscriptions: %w", err))
	}

	report := &ports.SyncReport{TotalActive: len(subs)}
	for i := range subs {
		ob, created, err := s.EnsureNextPayment(ctx, &subs[i])
		if err != nil {
			s.log.Warn().Err(err).Int64("subscription_id", subs[i].ID).Msg("obligation sync failed")
			continue
		}
		switch {
		case created:
			report.Created++
			report.Synced++
		case ob != nil:
			report.Synced++
		default:
			report.Skipped++
		}
	}

	s.log.Info().
		Int("total", report.TotalActive).
		Int("created", report.Created).
		Int("skipped", report.Skipped).
		Msg("subscription sync finished")

	return report, nil
}

// RunDue charges every obligation due as of now. Business failures mark the
// obligation FAILED; transient failures leave it SCHEDULED for the next run.
func (s *SubscriptionServiceImpl) RunDue(ctx context.Context, now time.Time) (*ports.RunReport, error) {
	due, err := s.obligationRepo.ListDue(ctx, now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list due obligations: %w", err))
	}

	report := &ports.RunReport{Due: len(due)}
	for i := range due {
		s.chargeOne(ctx, report, &due[i])
	}

	s.log.Info().
		Int("due", report.Due).
		Int("settled", report.Settled).
		Int("failed", report.Failed).
		Msg("charge run finished")

	return report, nil
}

// chargeOne settles a single due obligation. The charge replays through the
// transfer engine under the obligation's operation id, so a run that crashed
// between charging and settling just picks up where it left off.
func (s *SubscriptionServiceImpl) chargeOne(ctx context.Context, report *ports.RunReport, ob *domain.ScheduledObligation) {
	sub, err := s.subRepo.GetByID(ctx, ob.SubscriptionID)
	if err != nil {
		s.log.Warn().Err(err).Int64("obligation_id", ob.ID).Msg("subscription lookup failed, leaving obligation scheduled")
		return
	}
	if sub == nil || !sub.Active {
		s.failObligation(ctx, report, ob, "subscription cancelled")
		return
	}

	_, err = s.transfers.Apply(ctx, ports.ApplyParams{
		OperationID: ob.OperationID,
		Reason:      domain.EntryReasonSubscriptionCharge,
		Description: sub.ServiceName,
		Moves:       []ports.Move{{AccountID: ob.AccountID, Delta: ob.Amount.Neg()}},
		Guard:       cardSpendGuard(s.entryRepo, 0, ob.AccountID, ob.Amount),
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) && !transientChargeCode(appErr.Code) {
			s.failObligation(ctx, report, ob, appErr.Message)
			return
		}
		s.log.Warn().Err(err).Int64("obligation_id", ob.ID).Msg("charge hit a transient error, leaving obligation scheduled")
		return
	}

	if err := s.obligationRepo.UpdateStatus(ctx, ob.ID, domain.ObligationStatusSettled); err != nil {
		// The charge committed; the next run replays it and settles then.
		s.log.Warn().Err(err).Int64("obligation_id", ob.ID).Msg("settle mark failed after charge")
		return
	}
	report.Settled++

	next := sub.NextCycleFrom(ob.DueDate)
	if err := s.subRepo.UpdateBillingDates(ctx, sub.ID, ob.DueDate, next); err != nil {
		s.log.Warn().Err(err).Int64("subscription_id", sub.ID).Msg("billing date advance failed")
		return
	}
	lastPayment := ob.DueDate
	sub.LastPaymentDate = &lastPayment
	sub.NextBillingDate = &next

	if _, _, err := s.EnsureNextPayment(ctx, sub); err != nil {
		s.log.Warn().Err(err).Int64("subscription_id", sub.ID).Msg("next obligation sync failed")
	}
}

// failObligation marks an obligation FAILED and records why.
func (s *SubscriptionServiceImpl) failObligation(ctx context.Context, report *ports.RunReport, ob *domain.ScheduledObligation, reason string) {
	if err := s.obligationRepo.UpdateStatus(ctx, ob.ID, domain.ObligationStatusFailed); err != nil {
		s.log.Warn().Err(err).Int64("obligation_id", ob.ID).Msg("failure mark failed, leaving obligation scheduled")
		return
	}
	report.Failed++
	report.Failures = append(report.Failures, ports.ChargeFailure{
		ObligationID:   ob.ID,
		SubscriptionID: ob.SubscriptionID,
		Reason:         reason,
	})

	s.log.Warn().
		Int64("obligation_id", ob.ID).
		Int64("subscription_id", ob.SubscriptionID).
		Str("reason", reason).
		Msg("scheduled charge failed")
}

// transientChargeCode reports whether a charge failure may clear on its own.
// Lock timeouts and in-flight duplicates resolve by waiting; internal errors
// get retried rather than burning the obligation.
func transientChargeCode(code string) bool {
	switch code {
	case apperror.CodeInternal, apperror.CodeLockTimeout, apperror.CodeDuplicateOperation:
		return true
	}
	return false
}
