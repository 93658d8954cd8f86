package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/logging"
	"github.com/google/uuid"
)

type issuerRepository interface {
	Create(ctx context.Context, tx *sql.Tx, issuer *domain.Issuer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Issuer, error)
}

type investorRepository interface {
	Create(ctx context.Context, tx *sql.Tx, investor *domain.Investor) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Investor, error)
	List(ctx context.Context, limit, offset int) ([]domain.Investor, int, error)
}

type accountRepository interface {
	Create(ctx context.Context, tx *sql.Tx, account *domain.Account) error
	GetByOwner(ctx context.Context, ownerID uuid.UUID, kind domain.OwnerKind) (*domain.Account, error)
}

type ledgerReader interface {
	GetByAccountID(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]domain.LedgerEntry, int, error)
}

// AccountService registers issuers and investors. Each party gets exactly
// one single-currency account, funded at registration and afterwards only
// touched by the ledger.
type AccountService struct {
	issuers   issuerRepository
	investors investorRepository
	accounts  accountRepository
	entries   ledgerReader
	db        *sql.DB
}

func NewAccountService(issuers issuerRepository, investors investorRepository, accounts accountRepository, entries ledgerReader, db *sql.DB) *AccountService {
	return &AccountService{issuers: issuers, investors: investors, accounts: accounts, entries: entries, db: db}
}

func (s *AccountService) RegisterIssuer(ctx context.Context, fullName string, funding domain.Money) (*domain.Issuer, *domain.Account, error) {
	log := logging.FromContext(ctx)

	if fullName == "" {
		return nil, nil, fmt.Errorf("RegisterIssuer: empty name: %w", domain.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	issuer := &domain.Issuer{ID: uuid.New(), FullName: fullName, CreatedAt: now}
	account := newAccount(issuer.ID, domain.OwnerKindIssuer, funding, now)

	if err := s.createParty(ctx, func(tx *sql.Tx) error {
		if err := s.issuers.Create(ctx, tx, issuer); err != nil {
			return err
		}
		return s.accounts.Create(ctx, tx, account)
	}); err != nil {
		return nil, nil, fmt.Errorf("RegisterIssuer: %w", err)
	}

	log.Info("issuer registered", "issuer_id", issuer.ID, "currency", account.Currency)
	return issuer, account, nil
}

func (s *AccountService) RegisterInvestor(ctx context.Context, fullName string, funding domain.Money) (*domain.Investor, *domain.Account, error) {
	log := logging.FromContext(ctx)

	if fullName == "" {
		return nil, nil, fmt.Errorf("RegisterInvestor: empty name: %w", domain.ErrInvalidRequest)
	}

	now := time.Now().UTC()
	investor := &domain.Investor{ID: uuid.New(), FullName: fullName, CreatedAt: now}
	account := newAccount(investor.ID, domain.OwnerKindInvestor, funding, now)

	if err := s.createParty(ctx, func(tx *sql.Tx) error {
		if err := s.investors.Create(ctx, tx, investor); err != nil {
			return err
		}
		return s.accounts.Create(ctx, tx, account)
	}); err != nil {
		return nil, nil, fmt.Errorf("RegisterInvestor: %w", err)
	}

	log.Info("investor registered",
		"investor_id", investor.ID,
		"funding", funding.Amount,
		"currency", funding.Currency,
	)
	return investor, account, nil
}

func (s *AccountService) GetIssuer(ctx context.Context, id uuid.UUID) (*domain.Issuer, *domain.Account, error) {
	issuer, err := s.issuers.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("GetIssuer: %w", err)
	}
	account, err := s.accounts.GetByOwner(ctx, id, domain.OwnerKindIssuer)
	if err != nil {
		return nil, nil, fmt.Errorf("GetIssuer: %w", err)
	}
	return issuer, account, nil
}

func (s *AccountService) GetInvestor(ctx context.Context, id uuid.UUID) (*domain.Investor, *domain.Account, error) {
	investor, err := s.investors.GetByID(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("GetInvestor: %w", err)
	}
	account, err := s.accounts.GetByOwner(ctx, id, domain.OwnerKindInvestor)
	if err != nil {
		return nil, nil, fmt.Errorf("GetInvestor: %w", err)
	}
	return investor, account, nil
}

func (s *AccountService) ListInvestors(ctx context.Context, limit, offset int) ([]domain.Investor, int, error) {
	investors, total, err := s.investors.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("ListInvestors: %w", err)
	}
	return investors, total, nil
}

// GetStatement returns the party's account and its journal, newest first.
func (s *AccountService) GetStatement(ctx context.Context, ownerID uuid.UUID, kind domain.OwnerKind, limit, offset int) (*domain.Account, []domain.LedgerEntry, int, error) {
	account, err := s.accounts.GetByOwner(ctx, ownerID, kind)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("GetStatement: %w", err)
	}

	entries, total, err := s.entries.GetByAccountID(ctx, account.ID, limit, offset)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("GetStatement: %w", err)
	}
	return account, entries, total, nil
}

func (s *AccountService) createParty(ctx context.Context, insert func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("createParty: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insert(tx); err != nil {
		return fmt.Errorf("createParty: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("createParty: commit: %w", err)
	}
	return nil
}

func newAccount(ownerID uuid.UUID, kind domain.OwnerKind, funding domain.Money, now time.Time) *domain.Account {
	return &domain.Account{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		OwnerKind: kind,
		Currency:  funding.Currency,
		Balance:   funding.Amount,
		Reserved:  0,
		Version:   1,
		CreatedAt: now,
	}
}
