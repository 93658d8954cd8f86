package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/google/uuid"
)

type invoiceRepository interface {
	Create(ctx context.Context, invoice *domain.Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error)
	GetByIssuerID(ctx context.Context, issuerID uuid.UUID) ([]domain.Invoice, error)
}

type bidReader interface {
	ListByInvoiceID(ctx context.Context, invoiceID uuid.UUID) ([]domain.Bid, error)
}

type issuerReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Issuer, error)
}

type investorReader interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]domain.Investor, error)
}

type accountReader interface {
	GetByOwner(ctx context.Context, ownerID uuid.UUID, kind domain.OwnerKind) (*domain.Account, error)
}

type documentStore interface {
	Save(id string, src io.Reader) (string, error)
	Remove(path string) error
}

type InvoiceService struct {
	invoices  invoiceRepository
	bids      bidReader
	issuers   issuerReader
	investors investorReader
	accounts  accountReader
	docs      documentStore
}

func NewInvoiceService(invoices invoiceRepository, bids bidReader, issuers issuerReader, investors investorReader, accounts accountReader, docs documentStore) *InvoiceService {
	return &InvoiceService{invoices: invoices, bids: bids, issuers: issuers, investors: investors, accounts: accounts, docs: docs}
}

// InvoiceBid is a bid annotated with the bidder's display name for read
// views.
type InvoiceBid struct {
	domain.Bid
	InvestorName string
}

// CreateInvoice lists a new invoice for the issuer in pending status, with
// the uploaded document stored alongside it. The price must be in the
// issuer's account currency, or an approved trade could never settle.
func (s *InvoiceService) CreateInvoice(ctx context.Context, issuerID uuid.UUID, price domain.Money, doc io.Reader) (*domain.Invoice, error) {
	log := logging.FromContext(ctx)

	if !price.IsPositive() {
		return nil, fmt.Errorf("CreateInvoice: %w", domain.ErrInvalidAmount)
	}

	acct, err := s.accounts.GetByOwner(ctx, issuerID, domain.OwnerKindIssuer)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: issuer %s: %w", issuerID, err)
	}
	if price.Currency != acct.Currency {
		return nil, fmt.Errorf("CreateInvoice: invoice in %s for issuer holding %s: %w",
			price.Currency, acct.Currency, domain.ErrCurrencyMismatch)
	}

	id := uuid.New()
	path, err := s.docs.Save(id.String(), doc)
	if err != nil {
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	inv := &domain.Invoice{
		ID:           id,
		IssuerID:     issuerID,
		Amount:       price.Amount,
		Currency:     price.Currency,
		DocumentPath: path,
		Status:       domain.InvoiceStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		if rmErr := s.docs.Remove(path); rmErr != nil {
			log.Warn("orphaned invoice document", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("CreateInvoice: %w", err)
	}

	log.Info("invoice created",
		"invoice_id", inv.ID,
		"issuer_id", issuerID,
		"amount", price.Amount,
		"currency", price.Currency,
	)
	return inv, nil
}

// GetInvoice returns the invoice with its full bid history in submission
// order, each bid annotated with the investor's name.
func (s *InvoiceService) GetInvoice(ctx context.Context, id uuid.UUID) (*domain.Invoice, []InvoiceBid, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("GetInvoice: %w", err)
	}

	bids, err := s.bids.ListByInvoiceID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("GetInvoice: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(bids))
	for i := range bids {
		ids = append(ids, bids[i].InvestorID)
	}
	investors, err := s.investors.ListByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("GetInvoice: %w", err)
	}

	annotated := make([]InvoiceBid, 0, len(bids))
	for i := range bids {
		annotated = append(annotated, InvoiceBid{
			Bid:          bids[i],
			InvestorName: investors[bids[i].InvestorID].FullName,
		})
	}
	return inv, annotated, nil
}

func (s *InvoiceService) ListByIssuer(ctx context.Context, issuerID uuid.UUID) ([]domain.Invoice, error) {
	if _, err := s.issuers.GetByID(ctx, issuerID); err != nil {
		return nil, fmt.Errorf("ListByIssuer: %w", err)
	}

	invoices, err := s.invoices.GetByIssuerID(ctx, issuerID)
	if err != nil {
		return nil, fmt.Errorf("ListByIssuer: %w", err)
	}
	return invoices, nil
}
