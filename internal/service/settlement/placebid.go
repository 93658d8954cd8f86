package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/google/uuid"
)

type PlaceBidRequest struct {
	InvoiceID  uuid.UUID
	InvestorID uuid.UUID
	Amount     domain.Money
}

// PlaceBid reserves the investor's funds and records an active bid on a
// pending invoice. Everything happens in one transaction, so a failed
// reservation leaves no bid behind and a failed insert leaves no
// reservation.
func (s *Service) PlaceBid(ctx context.Context, req PlaceBidRequest) (*domain.Bid, error) {
	log := logging.FromContext(ctx)

	if !req.Amount.IsPositive() {
		return nil, fmt.Errorf("PlaceBid: %w", domain.ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("PlaceBid: begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.invoices.GetForUpdate(ctx, tx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("PlaceBid: %w", err)
	}
	if inv.Status != domain.InvoiceStatusPending {
		return nil, fmt.Errorf("PlaceBid: invoice %s is %s: %w", inv.ID, inv.Status, domain.ErrInvoiceNotOpen)
	}
	if req.Amount.Currency != inv.Currency {
		return nil, fmt.Errorf("PlaceBid: bid in %s on %s invoice: %w", req.Amount.Currency, inv.Currency, domain.ErrCurrencyMismatch)
	}

	acct, err := s.accounts.GetByOwner(ctx, req.InvestorID, domain.OwnerKindInvestor)
	if err != nil {
		return nil, fmt.Errorf("PlaceBid: investor %s: %w", req.InvestorID, err)
	}

	bid := &domain.Bid{
		ID:         uuid.New(),
		InvoiceID:  inv.ID,
		InvestorID: req.InvestorID,
		Amount:     req.Amount.Amount,
		Currency:   req.Amount.Currency,
		Status:     domain.BidStatusActive,
		CreatedAt:  time.Now().UTC(),
	}

	// The bid row goes in first so the reservation's journal entry can
	// reference it; a failed reservation rolls both back.
	if err := s.bids.Create(ctx, tx, bid); err != nil {
		return nil, fmt.Errorf("PlaceBid: %w", err)
	}

	if err := s.ledger.Reserve(ctx, tx, acct.ID, req.Amount, &bid.ID); err != nil {
		return nil, fmt.Errorf("PlaceBid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("PlaceBid: commit: %w", err)
	}

	log.Info("bid placed",
		"bid_id", bid.ID,
		"invoice_id", inv.ID,
		"investor_id", req.InvestorID,
		"amount", req.Amount.Amount,
		"currency", req.Amount.Currency,
	)

	return bid, nil
}
