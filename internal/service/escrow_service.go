package service

import (
	"context"
	"fmt"
	"time"

	"github.com/MihaCh13/PaySafe--Hackathon/config"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/domain"
	"github.com/MihaCh13/PaySafe--Hackathon/internal/core/ports"
	"github.com/MihaCh13/PaySafe--Hackathon/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// EscrowServiceImpl implements ports.EscrowService. Orders move money only
// through the transfer engine; the order row and the funds always commit in
// the same transaction.
type EscrowServiceImpl struct {
	escrowRepo  ports.EscrowRepository
	accountRepo ports.AccountRepository
	catalog     ports.ListingCatalog
	transfers   ports.TransferService
	notifier    ports.Notifier
	transactor  ports.DBTransactor
	cfg         config.LedgerConfig
	log         zerolog.Logger
}

// NewEscrowService creates a new EscrowServiceImpl.
func NewEscrowService(
	escrowRepo ports.EscrowRepository,
	accountRepo ports.AccountRepository,
	catalog ports.ListingCatalog,
	transfers ports.TransferService,
	notifier ports.Notifier,
	transactor ports.DBTransactor,
	cfg config.LedgerConfig,
	log zerolog.Logger,
) *EscrowServiceImpl {
	return &EscrowServiceImpl{
		escrowRepo:  escrowRepo,
		accountRepo: accountRepo,
		catalog:     catalog,
		transfers:   transfers,
		notifier:    notifier,
		transactor:  transactor,
		cfg:         cfg,
		log:         log,
	}
}

// CreateOrder starts an escrow purchase: it records the order, then holds the
// buyer's funds and advances PENDING to HELD in one transaction under the
// hold's operation id.
func (s *EscrowServiceImpl) CreateOrder(ctx context.Context, req ports.CreateOrderRequest) (*domain.EscrowOrder, error) {
	listing, err := s.catalog.Lookup(ctx, req.ListingID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("catalog lookup: %w", err))
	}
	if listing == nil {
		return nil, apperror.ErrNotFound("Listing")
	}
	if !listing.Available {
		return nil, apperror.ErrListingUnavailable(listing.ID)
	}
	if listing.SellerAccountID == req.BuyerAccountID {
		return nil, apperror.Validation("cannot buy your own listing")
	}

	seller, err := s.accountRepo.GetByID(ctx, listing.SellerAccountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get seller account: %w", err))
	}
	if seller == nil {
		return nil, apperror.ErrAccountNotFound(listing.SellerAccountID)
	}

	now := time.Now().UTC()

	// Each order holds funds on its own escrow account. Owner id 0 keeps the
	// account out of every owner's reach: nobody can freeze or close it.
	escrowAcc := &domain.Account{
		Kind:      domain.AccountKindEscrow,
		Status:    domain.AccountStatusActive,
		Balance:   decimal.Zero,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.accountRepo.Create(ctx, escrowAcc); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create escrow account: %w", err))
	}

	order := &domain.EscrowOrder{
		ID:              uuid.New(),
		ListingID:       listing.ID,
		BuyerAccountID:  req.BuyerAccountID,
		SellerAccountID: listing.SellerAccountID,
		EscrowAccountID: escrowAcc.ID,
		Amount:          listing.Price,
		Status:          domain.EscrowStatusPending,
		CreatedAt:       now,
	}
	if err := s.escrowRepo.Create(ctx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create escrow order: %w", err))
	}

	opID := domain.BuildEscrowHoldOpID(order.ID)

	dbTx, err := s.transactor.BeginWithLockTimeout(ctx, s.cfg.LockTimeout)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		buyer := locked[req.BuyerAccountID]
		if buyer.OwnerID != req.BuyerOwnerID {
			return apperror.ErrNotOwner()
		}
		if buyer.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(buyer.Kind))
		}
		return nil
	}

	if _, err := s.transfers.ApplyTx(ctx, dbTx, ports.ApplyParams{
		OperationID: opID,
		Reason:      domain.EntryReasonEscrowHold,
		Description: "hold for listing " + listing.ID,
		Moves: []ports.Move{
			{AccountID: req.BuyerAccountID, Delta: order.Amount.Neg()},
			{AccountID: order.EscrowAccountID, Delta: order.Amount},
		},
		Guard: guard,
	}); err != nil {
		// The order stays PENDING with no funds moved; it can never leave
		// that state, so it is inert.
		return nil, err
	}

	moved, err := s.escrowRepo.UpdateStatus(ctx, dbTx, order.ID, domain.EscrowStatusPending, domain.EscrowStatusHeld, nil)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}
	if moved == 0 {
		return nil, apperror.ErrInvalidStateTransition(string(domain.EscrowStatusPending), string(domain.EscrowStatusHeld))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	order.Status = domain.EscrowStatusHeld
	s.notifyOrder(ctx, "escrow.held", opID, order)

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("listing_id", order.ListingID).
		Str("amount", order.Amount.String()).
		Msg("escrow order held")

	return order, nil
}

// Release pays the held amount out to the seller. Only the seller may
// trigger it.
func (s *EscrowServiceImpl) Release(ctx context.Context, orderID uuid.UUID, callerOwnerID int64) (*domain.EscrowOrder, error) {
	return s.resolve(ctx, orderID, callerOwnerID, domain.EscrowStatusReleased)
}

// Refund returns the held amount to the buyer. Like Release it is
// seller-triggered: a buyer with a unilateral refund path could claw funds
// back after fulfillment.
func (s *EscrowServiceImpl) Refund(ctx context.Context, orderID uuid.UUID, callerOwnerID int64) (*domain.EscrowOrder, error) {
	return s.resolve(ctx, orderID, callerOwnerID, domain.EscrowStatusRefunded)
}

// GetOrder returns an order to its buyer or seller.
func (s *EscrowServiceImpl) GetOrder(ctx context.Context, orderID uuid.UUID, callerOwnerID int64) (*domain.EscrowOrder, error) {
	order, err := s.escrowRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Escrow order")
	}

	isParticipant, err := s.ownsParticipantAccount(ctx, order, callerOwnerID)
	if err != nil {
		return nil, err
	}
	if !isParticipant {
		return nil, apperror.ErrNotOwner()
	}
	return order, nil
}

// ListOrders returns every order the given account participates in.
func (s *EscrowServiceImpl) ListOrders(ctx context.Context, callerOwnerID int64, accountID int64) ([]domain.EscrowOrder, error) {
	acc, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get account: %w", err))
	}
	if acc == nil {
		return nil, apperror.ErrAccountNotFound(accountID)
	}
	if acc.OwnerID != callerOwnerID {
		return nil, apperror.ErrNotOwner()
	}

	orders, err := s.escrowRepo.ListByParticipant(ctx, accountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list orders: %w", err))
	}
	return orders, nil
}

// resolve moves a HELD order to its terminal state. The status re-check runs
// inside the transfer guard, under the escrow account row lock, so concurrent
// release and refund calls resolve the order exactly once.
func (s *EscrowServiceImpl) resolve(ctx context.Context, orderID uuid.UUID, callerOwnerID int64, to domain.EscrowStatus) (*domain.EscrowOrder, error) {
	order, err := s.escrowRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Escrow order")
	}

	seller, err := s.accountRepo.GetByID(ctx, order.SellerAccountID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get seller account: %w", err))
	}
	if seller == nil || seller.OwnerID != callerOwnerID {
		return nil, apperror.ErrNotOwner()
	}

	if order.Status == to {
		// Retried resolution; the funds already moved under this order's
		// deterministic operation id.
		return order, nil
	}
	if !order.Status.CanTransitionTo(to) {
		return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(to))
	}

	var (
		opID   string
		reason domain.EntryReason
		evKind string
		destID int64
	)
	switch to {
	case domain.EscrowStatusReleased:
		opID = domain.BuildEscrowReleaseOpID(orderID)
		reason = domain.EntryReasonEscrowRelease
		evKind = "escrow.released"
		destID = order.SellerAccountID
	case domain.EscrowStatusRefunded:
		opID = domain.BuildEscrowRefundOpID(orderID)
		reason = domain.EntryReasonEscrowRefund
		evKind = "escrow.refunded"
		destID = order.BuyerAccountID
	default:
		return nil, apperror.ErrInvalidStateTransition(string(order.Status), string(to))
	}

	dbTx, err := s.transactor.BeginWithLockTimeout(ctx, s.cfg.LockTimeout)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	guard := func(ctx context.Context, tx pgx.Tx, locked map[int64]*domain.Account) error {
		if dest := locked[destID]; dest.Kind != domain.AccountKindWallet {
			return apperror.ErrKindNotAllowed(string(dest.Kind))
		}
		// Re-read under the escrow account lock. Whichever of two racing
		// resolutions locks first wins; the loser sees the terminal state.
		current, err := s.escrowRepo.GetByIDTx(ctx, tx, orderID)
		if err != nil {
			return apperror.InternalError(fmt.Errorf("re-read order: %w", err))
		}
		if current == nil {
			return apperror.ErrNotFound("Escrow order")
		}
		if !current.Status.CanTransitionTo(to) {
			return apperror.ErrInvalidStateTransition(string(current.Status), string(to))
		}
		return nil
	}

	if _, err := s.transfers.ApplyTx(ctx, dbTx, ports.ApplyParams{
		OperationID: opID,
		Reason:      reason,
		Description: "order " + orderID.String(),
		Moves: []ports.Move{
			{AccountID: order.EscrowAccountID, Delta: order.Amount.Neg()},
			{AccountID: destID, Delta: order.Amount},
		},
		Guard: guard,
	}); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	moved, err := s.escrowRepo.UpdateStatus(ctx, dbTx, orderID, domain.EscrowStatusHeld, to, &now)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order status: %w", err))
	}
	if moved == 0 {
		return nil, apperror.ErrInvalidStateTransition(string(domain.EscrowStatusHeld), string(to))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	order.Status = to
	order.ResolvedAt = &now
	s.notifyOrder(ctx, evKind, opID, order)

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(to)).
		Msg("escrow order resolved")

	return order, nil
}

// ownsParticipantAccount reports whether the caller owns the buyer or seller
// side of the order.
func (s *EscrowServiceImpl) ownsParticipantAccount(ctx context.Context, order *domain.EscrowOrder, callerOwnerID int64) (bool, error) {
	for _, id := range []int64{order.BuyerAccountID, order.SellerAccountID} {
		acc, err := s.accountRepo.GetByID(ctx, id)
		if err != nil {
			return false, apperror.InternalError(fmt.Errorf("get account: %w", err))
		}
		if acc != nil && acc.OwnerID == callerOwnerID {
			return true, nil
		}
	}
	return false, nil
}

// notifyOrder delivers an escrow lifecycle event (best-effort).
func (s *EscrowServiceImpl) notifyOrder(ctx context.Context, kind, opID string, order *domain.EscrowOrder) {
	event := ports.Event{
		Kind:        kind,
		OperationID: opID,
		AccountIDs:  []int64{order.BuyerAccountID, order.EscrowAccountID, order.SellerAccountID},
		Amount:      order.Amount,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.notifier.Send(ctx, event); err != nil {
		s.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("event delivery failed")
	}
}
