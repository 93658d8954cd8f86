package settlement

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/google/uuid"
)

type ResolveTradeRequest struct {
	InvoiceID uuid.UUID
	Approve   bool
	// BidID optionally names the bid to accept. When nil the highest active
	// bid wins, earliest submission breaking ties.
	BidID *uuid.UUID
}

type tradeEventPayload struct {
	InvoiceID    uuid.UUID  `json:"invoice_id"`
	IssuerID     uuid.UUID  `json:"issuer_id"`
	WinningBidID *uuid.UUID `json:"winning_bid_id,omitempty"`
	Amount       string     `json:"amount,omitempty"`
	Currency     string     `json:"currency,omitempty"`
}

type bidRejectedPayload struct {
	BidID      uuid.UUID `json:"bid_id"`
	InvoiceID  uuid.UUID `json:"invoice_id"`
	InvestorID uuid.UUID `json:"investor_id"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
}

// ResolveTrade settles a pending invoice. On approval the winning bid's
// reservation is captured into the issuer's account, every other active bid
// is rejected and released, and the invoice completes. On rejection all
// active bids are released and the invoice cancels. The whole sequence
// commits atomically or rolls back leaving the invoice pending.
func (s *Service) ResolveTrade(ctx context.Context, req ResolveTradeRequest) (*domain.Invoice, error) {
	log := logging.FromContext(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("ResolveTrade: begin tx: %w", err)
	}
	defer tx.Rollback()

	inv, err := s.invoices.GetForUpdate(ctx, tx, req.InvoiceID)
	if err != nil {
		return nil, fmt.Errorf("ResolveTrade: %w", err)
	}
	if inv.Status != domain.InvoiceStatusPending {
		return nil, fmt.Errorf("ResolveTrade: invoice %s is %s: %w", inv.ID, inv.Status, domain.ErrInvoiceNotOpen)
	}

	active, err := s.bids.ListActiveByInvoiceID(ctx, tx, inv.ID)
	if err != nil {
		return nil, fmt.Errorf("ResolveTrade: %w", err)
	}

	now := time.Now().UTC()

	var winner *domain.Bid
	if req.Approve {
		if len(active) == 0 {
			return nil, fmt.Errorf("ResolveTrade: invoice %s: %w", inv.ID, domain.ErrNoBidsAvailable)
		}
		winner, err = selectWinner(active, req.BidID)
		if err != nil {
			return nil, fmt.Errorf("ResolveTrade: %w", err)
		}
	}

	accounts, err := s.lockSettlementAccounts(ctx, tx, inv, active, req.Approve)
	if err != nil {
		return nil, fmt.Errorf("ResolveTrade: %w", err)
	}

	if req.Approve {
		if err := s.settleApproval(ctx, tx, inv, active, winner, accounts, now); err != nil {
			return nil, fmt.Errorf("ResolveTrade: %w", err)
		}
		inv.Status = domain.InvoiceStatusCompleted
	} else {
		if err := s.settleRejection(ctx, tx, inv, active, accounts, now); err != nil {
			return nil, fmt.Errorf("ResolveTrade: %w", err)
		}
		inv.Status = domain.InvoiceStatusCancelled
	}
	inv.ResolvedAt = &now

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("ResolveTrade: commit: %w", err)
	}

	attrs := []any{
		"invoice_id", inv.ID,
		"status", inv.Status,
		"active_bids", len(active),
	}
	if winner != nil {
		attrs = append(attrs, "winning_bid_id", winner.ID, "amount", winner.Amount, "currency", winner.Currency)
	}
	log.Info("trade resolved", attrs...)

	return inv, nil
}

// lockSettlementAccounts resolves every account the resolution will touch
// and locks them in one sorted pass. The ledger calls that follow only
// re-acquire held locks, so two resolutions over invoices with overlapping
// investors cannot deadlock.
func (s *Service) lockSettlementAccounts(ctx context.Context, tx *sql.Tx, inv *domain.Invoice, active []domain.Bid, approve bool) (map[uuid.UUID]*domain.Account, error) {
	accounts := make(map[uuid.UUID]*domain.Account, len(active)+1)
	for i := range active {
		if _, ok := accounts[active[i].InvestorID]; ok {
			continue
		}
		acct, err := s.accounts.GetByOwner(ctx, active[i].InvestorID, domain.OwnerKindInvestor)
		if err != nil {
			return nil, fmt.Errorf("lockSettlementAccounts: investor %s: %w", active[i].InvestorID, err)
		}
		accounts[active[i].InvestorID] = acct
	}
	if approve {
		acct, err := s.accounts.GetByOwner(ctx, inv.IssuerID, domain.OwnerKindIssuer)
		if err != nil {
			return nil, fmt.Errorf("lockSettlementAccounts: issuer %s: %w", inv.IssuerID, err)
		}
		accounts[inv.IssuerID] = acct
	}

	ids := make([]uuid.UUID, 0, len(accounts))
	for _, acct := range accounts {
		ids = append(ids, acct.ID)
	}
	if err := s.ledger.LockAccounts(ctx, tx, ids...); err != nil {
		return nil, fmt.Errorf("lockSettlementAccounts: %w", err)
	}
	return accounts, nil
}

func (s *Service) settleApproval(ctx context.Context, tx *sql.Tx, inv *domain.Invoice, active []domain.Bid, winner *domain.Bid, accounts map[uuid.UUID]*domain.Account, now time.Time) error {
	issuerAcct := accounts[inv.IssuerID]
	investorAcct := accounts[winner.InvestorID]

	if err := s.ledger.Capture(ctx, tx, investorAcct.ID, issuerAcct.ID, winner.AmountMoney(), &winner.ID); err != nil {
		return fmt.Errorf("settleApproval: %w", err)
	}
	if err := s.bids.MarkResolved(ctx, tx, winner.ID, domain.BidStatusAccepted, now); err != nil {
		return fmt.Errorf("settleApproval: %w", err)
	}

	for i := range active {
		b := &active[i]
		if b.ID == winner.ID {
			continue
		}
		if err := s.rejectBid(ctx, tx, b, accounts[b.InvestorID].ID, now); err != nil {
			return fmt.Errorf("settleApproval: %w", err)
		}
	}

	if err := s.invoices.UpdateStatus(ctx, tx, inv.ID, domain.InvoiceStatusCompleted, now); err != nil {
		return fmt.Errorf("settleApproval: %w", err)
	}

	payload := tradeEventPayload{
		InvoiceID:    inv.ID,
		IssuerID:     inv.IssuerID,
		WinningBidID: &winner.ID,
		Amount:       winner.AmountMoney().String(),
		Currency:     string(winner.Currency),
	}
	if err := s.writeEvent(ctx, tx, domain.EventTypeTradeCompleted, payload, now); err != nil {
		return fmt.Errorf("settleApproval: %w", err)
	}
	return nil
}

func (s *Service) settleRejection(ctx context.Context, tx *sql.Tx, inv *domain.Invoice, active []domain.Bid, accounts map[uuid.UUID]*domain.Account, now time.Time) error {
	for i := range active {
		b := &active[i]
		if err := s.rejectBid(ctx, tx, b, accounts[b.InvestorID].ID, now); err != nil {
			return fmt.Errorf("settleRejection: %w", err)
		}
	}

	if err := s.invoices.UpdateStatus(ctx, tx, inv.ID, domain.InvoiceStatusCancelled, now); err != nil {
		return fmt.Errorf("settleRejection: %w", err)
	}

	payload := tradeEventPayload{InvoiceID: inv.ID, IssuerID: inv.IssuerID}
	if err := s.writeEvent(ctx, tx, domain.EventTypeTradeCancelled, payload, now); err != nil {
		return fmt.Errorf("settleRejection: %w", err)
	}
	return nil
}

func (s *Service) rejectBid(ctx context.Context, tx *sql.Tx, b *domain.Bid, accountID uuid.UUID, now time.Time) error {
	if err := s.ledger.Release(ctx, tx, accountID, b.AmountMoney(), &b.ID); err != nil {
		return fmt.Errorf("rejectBid: %w", err)
	}
	if err := s.bids.MarkResolved(ctx, tx, b.ID, domain.BidStatusRejected, now); err != nil {
		return fmt.Errorf("rejectBid: %w", err)
	}

	payload := bidRejectedPayload{
		BidID:      b.ID,
		InvoiceID:  b.InvoiceID,
		InvestorID: b.InvestorID,
		Amount:     b.AmountMoney().String(),
		Currency:   string(b.Currency),
	}
	if err := s.writeEvent(ctx, tx, domain.EventTypeBidRejected, payload, now); err != nil {
		return fmt.Errorf("rejectBid: %w", err)
	}
	return nil
}

// selectWinner applies the resolution policy: an explicit selector must name
// an active bid; otherwise the highest amount wins, with earliest submission
// and then smallest id as successive tiebreaks so the outcome is fully
// deterministic.
func selectWinner(active []domain.Bid, bidID *uuid.UUID) (*domain.Bid, error) {
	if bidID != nil {
		for i := range active {
			if active[i].ID == *bidID {
				return &active[i], nil
			}
		}
		return nil, fmt.Errorf("selectWinner: bid %s not active: %w", *bidID, domain.ErrNotFound)
	}

	best := &active[0]
	for i := 1; i < len(active); i++ {
		b := &active[i]
		switch {
		case b.Amount > best.Amount:
			best = b
		case b.Amount == best.Amount && b.CreatedAt.Before(best.CreatedAt):
			best = b
		case b.Amount == best.Amount && b.CreatedAt.Equal(best.CreatedAt) && b.ID.String() < best.ID.String():
			best = b
		}
	}
	return best, nil
}
