package testutil

import (
	"database/sql"
	"testing"
	"time"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/google/uuid"
)

// SeedIssuer inserts an issuer with a zero-balance account in the given
// currency and returns both.
func SeedIssuer(t *testing.T, db *sql.DB, name string, currency domain.Currency) (*domain.Issuer, *domain.Account) {
	t.Helper()
	return seedParty(t, db, name, domain.OwnerKindIssuer, currency, 0)
}

// SeedInvestor inserts an investor whose account is funded with balance
// minor units.
func SeedInvestor(t *testing.T, db *sql.DB, name string, currency domain.Currency, balance int64) (*domain.Investor, *domain.Account) {
	t.Helper()
	issuer, account := seedParty(t, db, name, domain.OwnerKindInvestor, currency, balance)
	return &domain.Investor{ID: issuer.ID, FullName: issuer.FullName, CreatedAt: issuer.CreatedAt}, account
}

func seedParty(t *testing.T, db *sql.DB, name string, kind domain.OwnerKind, currency domain.Currency, balance int64) (*domain.Issuer, *domain.Account) {
	t.Helper()

	table := "issuers"
	if kind == domain.OwnerKindInvestor {
		table = "investors"
	}

	now := time.Now().UTC()
	party := &domain.Issuer{ID: uuid.New(), FullName: name, CreatedAt: now}
	if _, err := db.Exec(
		`INSERT INTO `+table+` (id, full_name, created_at) VALUES ($1, $2, $3)`,
		party.ID, party.FullName, party.CreatedAt,
	); err != nil {
		t.Fatalf("seed %s: %v", table, err)
	}

	account := &domain.Account{
		ID:        uuid.New(),
		OwnerID:   party.ID,
		OwnerKind: kind,
		Currency:  currency,
		Balance:   balance,
		Version:   1,
		CreatedAt: now,
	}
	if _, err := db.Exec(
		`INSERT INTO accounts (id, owner_id, owner_kind, currency, balance, reserved, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		account.ID, account.OwnerID, account.OwnerKind, account.Currency,
		account.Balance, account.Reserved, account.Version, account.CreatedAt,
	); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	return party, account
}

// SeedInvoice inserts a pending invoice for the issuer.
func SeedInvoice(t *testing.T, db *sql.DB, issuerID uuid.UUID, amount int64, currency domain.Currency) *domain.Invoice {
	t.Helper()

	inv := &domain.Invoice{
		ID:           uuid.New(),
		IssuerID:     issuerID,
		Amount:       amount,
		Currency:     currency,
		DocumentPath: "/tmp/" + uuid.NewString() + ".pdf",
		Status:       domain.InvoiceStatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	if _, err := db.Exec(
		`INSERT INTO invoices (id, issuer_id, amount, currency, document_path, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		inv.ID, inv.IssuerID, inv.Amount, inv.Currency, inv.DocumentPath, inv.Status, inv.CreatedAt,
	); err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	return inv
}

// SeedBid inserts an active bid on the invoice.
func SeedBid(t *testing.T, db *sql.DB, invoiceID, investorID uuid.UUID, amount int64, currency domain.Currency) *domain.Bid {
	t.Helper()

	bid := &domain.Bid{
		ID:         uuid.New(),
		InvoiceID:  invoiceID,
		InvestorID: investorID,
		Amount:     amount,
		Currency:   currency,
		Status:     domain.BidStatusActive,
		CreatedAt:  time.Now().UTC(),
	}
	if _, err := db.Exec(
		`INSERT INTO bids (id, invoice_id, investor_id, amount, currency, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		bid.ID, bid.InvoiceID, bid.InvestorID, bid.Amount, bid.Currency, bid.Status, bid.CreatedAt,
	); err != nil {
		t.Fatalf("seed bid: %v", err)
	}
	return bid
}

// GetAccount reads the committed balance and reservation for assertions.
func GetAccount(t *testing.T, db *sql.DB, id uuid.UUID) (balance, reserved int64) {
	t.Helper()
	err := db.QueryRow(`SELECT balance, reserved FROM accounts WHERE id = $1`, id).
		Scan(&balance, &reserved)
	if err != nil {
		t.Fatalf("get account %s: %v", id, err)
	}
	return balance, reserved
}

// GetBidStatus reads a bid's committed status.
func GetBidStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.BidStatus {
	t.Helper()
	var status domain.BidStatus
	if err := db.QueryRow(`SELECT status FROM bids WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get bid %s: %v", id, err)
	}
	return status
}

// GetInvoiceStatus reads an invoice's committed status.
func GetInvoiceStatus(t *testing.T, db *sql.DB, id uuid.UUID) domain.InvoiceStatus {
	t.Helper()
	var status domain.InvoiceStatus
	if err := db.QueryRow(`SELECT status FROM invoices WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("get invoice %s: %v", id, err)
	}
	return status
}

// SumActiveBidAmounts returns the total of an investor's active bids, the
// amount their reservation must equal.
func SumActiveBidAmounts(t *testing.T, db *sql.DB, investorID uuid.UUID) int64 {
	t.Helper()
	var sum int64
	err := db.QueryRow(
		`SELECT COALESCE(SUM(amount), 0) FROM bids WHERE investor_id = $1 AND status = 'active'`,
		investorID,
	).Scan(&sum)
	if err != nil {
		t.Fatalf("sum active bids: %v", err)
	}
	return sum
}

// CountLedgerEntries counts journal rows written for a bid.
func CountLedgerEntries(t *testing.T, db *sql.DB, bidID uuid.UUID) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM ledger_entries WHERE bid_id = $1`, bidID).Scan(&n); err != nil {
		t.Fatalf("count ledger entries: %v", err)
	}
	return n
}

// CountOutboxEvents counts outbox rows of one event type.
func CountOutboxEvents(t *testing.T, db *sql.DB, eventType domain.EventType) int {
	t.Helper()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM outbox_events WHERE event_type = $1`, eventType).Scan(&n); err != nil {
		t.Fatalf("count outbox events: %v", err)
	}
	return n
}
