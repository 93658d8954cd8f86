package settlement_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/ledger"
	"github.com/factorly/marketplace/internal/repository"
	"github.com/factorly/marketplace/internal/service/settlement"
	"github.com/factorly/marketplace/internal/testutil"
)

func setupSettlementService(db *sql.DB) *settlement.Service {
	accountRepo := repository.NewAccountRepository(db)
	return settlement.NewService(
		repository.NewInvoiceRepository(db),
		repository.NewBidRepository(db),
		accountRepo,
		ledger.New(accountRepo, repository.NewLedgerRepository(db)),
		repository.NewOutboxRepository(db),
		db,
	)
}

func TestPlaceBid_ReservesFunds(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, investorAcct := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 400000, domain.CurrencyEUR)

	bid, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID:  inv.ID,
		InvestorID: investor.ID,
		Amount:     domain.Money{Amount: 300000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.BidStatusActive, bid.Status)

	balance, reserved := testutil.GetAccount(t, db, investorAcct.ID)
	assert.Equal(t, int64(500000), balance)
	assert.Equal(t, int64(300000), reserved)
	assert.Equal(t, 1, testutil.CountLedgerEntries(t, db, bid.ID))

	stored, err := repository.NewBidRepository(db).GetByID(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, bid.InvoiceID, stored.InvoiceID)
	assert.Equal(t, bid.Amount, stored.Amount)
}

// Scenario A: a bid in the wrong currency is rejected before any reservation.
func TestPlaceBid_CurrencyMismatch(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, investorAcct := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyUSD, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 125000, domain.CurrencyEUR)

	_, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID:  inv.ID,
		InvestorID: investor.ID,
		Amount:     domain.Money{Amount: 300000, Currency: domain.CurrencyUSD},
	})
	require.ErrorIs(t, err, domain.ErrCurrencyMismatch)

	balance, reserved := testutil.GetAccount(t, db, investorAcct.ID)
	assert.Equal(t, int64(500000), balance)
	assert.Equal(t, int64(0), reserved)
}

// Scenario B: a second bid exceeding the remaining available balance fails
// without touching the first bid's reservation.
func TestPlaceBid_InsufficientFundsAcrossInvoices(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyUSD)
	investor, investorAcct := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyUSD, 500000)
	invA := testutil.SeedInvoice(t, db, issuer.ID, 400000, domain.CurrencyUSD)
	invB := testutil.SeedInvoice(t, db, issuer.ID, 400000, domain.CurrencyUSD)

	first, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID:  invA.ID,
		InvestorID: investor.ID,
		Amount:     domain.Money{Amount: 300000, Currency: domain.CurrencyUSD},
	})
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID:  invB.ID,
		InvestorID: investor.ID,
		Amount:     domain.Money{Amount: 300000, Currency: domain.CurrencyUSD},
	})
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)

	balance, reserved := testutil.GetAccount(t, db, investorAcct.ID)
	assert.Equal(t, int64(500000), balance)
	assert.Equal(t, int64(300000), reserved)
	assert.Equal(t, domain.BidStatusActive, testutil.GetBidStatus(t, db, first.ID))
}

func TestPlaceBid_InvoiceNotFound(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)

	investor, _ := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)

	_, err := svc.PlaceBid(context.Background(), settlement.PlaceBidRequest{
		InvoiceID:  uuid.New(),
		InvestorID: investor.ID,
		Amount:     domain.Money{Amount: 100, Currency: domain.CurrencyEUR},
	})
	require.ErrorIs(t, err, domain.ErrNotFound)
}

// Scenario C: approval picks the highest bid, rejects the rest and releases
// their reservations, and money is conserved across the capture.
func TestResolveTrade_ApproveBestBid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, issuerAcct := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	low, lowAcct := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	high, highAcct := testutil.SeedInvestor(t, db, "Sam Reed", domain.CurrencyEUR, 800000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 450000, domain.CurrencyEUR)

	lowBid, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: low.ID,
		Amount: domain.Money{Amount: 300000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)
	highBid, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: high.ID,
		Amount: domain.Money{Amount: 400000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)

	resolved, err := svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: inv.ID, Approve: true})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCompleted, resolved.Status)

	assert.Equal(t, domain.BidStatusAccepted, testutil.GetBidStatus(t, db, highBid.ID))
	assert.Equal(t, domain.BidStatusRejected, testutil.GetBidStatus(t, db, lowBid.ID))

	issuerBalance, issuerReserved := testutil.GetAccount(t, db, issuerAcct.ID)
	assert.Equal(t, int64(400000), issuerBalance)
	assert.Equal(t, int64(0), issuerReserved)

	highBalance, highReserved := testutil.GetAccount(t, db, highAcct.ID)
	assert.Equal(t, int64(400000), highBalance)
	assert.Equal(t, int64(0), highReserved)

	lowBalance, lowReserved := testutil.GetAccount(t, db, lowAcct.ID)
	assert.Equal(t, int64(500000), lowBalance)
	assert.Equal(t, int64(0), lowReserved)

	assert.Equal(t, 1, testutil.CountOutboxEvents(t, db, domain.EventTypeTradeCompleted))
	assert.Equal(t, 1, testutil.CountOutboxEvents(t, db, domain.EventTypeBidRejected))
}

func TestResolveTrade_ExplicitSelector(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, issuerAcct := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	low, _ := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	high, _ := testutil.SeedInvestor(t, db, "Sam Reed", domain.CurrencyEUR, 800000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 450000, domain.CurrencyEUR)

	lowBid, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: low.ID,
		Amount: domain.Money{Amount: 300000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)
	highBid, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: high.ID,
		Amount: domain.Money{Amount: 400000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)

	// The issuer explicitly accepts the lower bid.
	resolved, err := svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{
		InvoiceID: inv.ID, Approve: true, BidID: &lowBid.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCompleted, resolved.Status)

	assert.Equal(t, domain.BidStatusAccepted, testutil.GetBidStatus(t, db, lowBid.ID))
	assert.Equal(t, domain.BidStatusRejected, testutil.GetBidStatus(t, db, highBid.ID))

	issuerBalance, _ := testutil.GetAccount(t, db, issuerAcct.ID)
	assert.Equal(t, int64(300000), issuerBalance)
}

// Scenario D: rejection releases every reservation and cancels the invoice.
func TestResolveTrade_Reject(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, issuerAcct := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, investorAcct := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 450000, domain.CurrencyEUR)

	bid, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: investor.ID,
		Amount: domain.Money{Amount: 300000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)

	resolved, err := svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: inv.ID, Approve: false})
	require.NoError(t, err)
	assert.Equal(t, domain.InvoiceStatusCancelled, resolved.Status)

	assert.Equal(t, domain.BidStatusRejected, testutil.GetBidStatus(t, db, bid.ID))

	balance, reserved := testutil.GetAccount(t, db, investorAcct.ID)
	assert.Equal(t, int64(500000), balance)
	assert.Equal(t, int64(0), reserved)

	issuerBalance, _ := testutil.GetAccount(t, db, issuerAcct.ID)
	assert.Equal(t, int64(0), issuerBalance)

	assert.Equal(t, 1, testutil.CountOutboxEvents(t, db, domain.EventTypeTradeCancelled))
}

func TestResolveTrade_ApproveWithoutBids(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 450000, domain.CurrencyEUR)

	_, err := svc.ResolveTrade(context.Background(), settlement.ResolveTradeRequest{InvoiceID: inv.ID, Approve: true})
	require.ErrorIs(t, err, domain.ErrNoBidsAvailable)
	assert.Equal(t, domain.InvoiceStatusPending, testutil.GetInvoiceStatus(t, db, inv.ID))
}

// Resolving twice must fail the second time with no further state change.
func TestResolveTrade_Idempotence(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, issuerAcct := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, _ := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 450000, domain.CurrencyEUR)

	_, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: investor.ID,
		Amount: domain.Money{Amount: 300000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)

	_, err = svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: inv.ID, Approve: true})
	require.NoError(t, err)

	balanceAfterFirst, _ := testutil.GetAccount(t, db, issuerAcct.ID)

	_, err = svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: inv.ID, Approve: true})
	require.ErrorIs(t, err, domain.ErrInvoiceNotOpen)

	balanceAfterSecond, _ := testutil.GetAccount(t, db, issuerAcct.ID)
	assert.Equal(t, balanceAfterFirst, balanceAfterSecond)
}

func TestPlaceBid_AfterResolutionFails(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, _ := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 450000, domain.CurrencyEUR)

	_, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: investor.ID,
		Amount: domain.Money{Amount: 100000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)

	_, err = svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: inv.ID, Approve: false})
	require.NoError(t, err)

	_, err = svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: investor.ID,
		Amount: domain.Money{Amount: 100000, Currency: domain.CurrencyEUR},
	})
	require.ErrorIs(t, err, domain.ErrInvoiceNotOpen)
}

// Concurrent bids from one investor must never reserve more than the
// balance, and the reservation must equal the sum of active bid amounts.
func TestPlaceBid_ConcurrentNoDoubleSpend(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, investorAcct := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)

	const workers = 8
	invoices := make([]*domain.Invoice, workers)
	for i := range invoices {
		invoices[i] = testutil.SeedInvoice(t, db, issuer.ID, 400000, domain.CurrencyEUR)
	}

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceBid(ctx, settlement.PlaceBidRequest{
				InvoiceID:  invoices[i].ID,
				InvestorID: investor.ID,
				Amount:     domain.Money{Amount: 200000, Currency: domain.CurrencyEUR},
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, domain.ErrInsufficientFunds)
		}
	}
	// 500000 available, each bid reserves 200000: exactly two can win.
	assert.Equal(t, 2, succeeded)

	balance, reserved := testutil.GetAccount(t, db, investorAcct.ID)
	assert.Equal(t, int64(500000), balance)
	assert.Equal(t, int64(400000), reserved)
	assert.Equal(t, testutil.SumActiveBidAmounts(t, db, investor.ID), reserved)
}

// Two invoices sharing investors resolved concurrently: both settlements
// must commit cleanly, with no lock-order conflict between the winner's
// capture on one invoice and the loser's release on the other.
func TestResolveTrade_ConcurrentSharedInvestors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	invA := testutil.SeedInvoice(t, db, issuer.ID, 200000, domain.CurrencyEUR)
	invB := testutil.SeedInvoice(t, db, issuer.ID, 200000, domain.CurrencyEUR)

	first, firstAcct := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	second, secondAcct := testutil.SeedInvestor(t, db, "Sam Reed", domain.CurrencyEUR, 500000)

	for _, investor := range []uuid.UUID{first.ID, second.ID} {
		for _, inv := range []uuid.UUID{invA.ID, invB.ID} {
			_, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
				InvoiceID:  inv,
				InvestorID: investor,
				Amount:     domain.Money{Amount: 150000, Currency: domain.CurrencyEUR},
			})
			require.NoError(t, err)
		}
	}

	const rounds = 10
	for round := range rounds {
		var wg sync.WaitGroup
		var errA, errB error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, errA = svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: invA.ID, Approve: false})
		}()
		go func() {
			defer wg.Done()
			_, errB = svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: invB.ID, Approve: false})
		}()
		wg.Wait()
		require.NoError(t, errA)
		require.NoError(t, errB)

		if round == rounds-1 {
			break
		}

		// Reopen the board and re-bid for the next round.
		_, err := db.Exec(`UPDATE invoices SET status = 'pending', resolved_at = NULL WHERE issuer_id = $1`, issuer.ID)
		require.NoError(t, err)
		for _, investor := range []uuid.UUID{first.ID, second.ID} {
			for _, inv := range []uuid.UUID{invA.ID, invB.ID} {
				_, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
					InvoiceID:  inv,
					InvestorID: investor,
					Amount:     domain.Money{Amount: 150000, Currency: domain.CurrencyEUR},
				})
				require.NoError(t, err)
			}
		}
	}

	for _, acct := range []uuid.UUID{firstAcct.ID, secondAcct.ID} {
		balance, reserved := testutil.GetAccount(t, db, acct)
		assert.Equal(t, int64(500000), balance)
		assert.Equal(t, int64(0), reserved)
	}
}

// Concurrent resolutions of one invoice: exactly one commits, the rest see
// the terminal status.
func TestResolveTrade_ConcurrentSingleWinner(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupSettlementService(db)
	ctx := context.Background()

	issuer, issuerAcct := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, _ := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 450000, domain.CurrencyEUR)

	_, err := svc.PlaceBid(ctx, settlement.PlaceBidRequest{
		InvoiceID: inv.ID, InvestorID: investor.ID,
		Amount: domain.Money{Amount: 300000, Currency: domain.CurrencyEUR},
	})
	require.NoError(t, err)

	const attempts = 4
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ResolveTrade(ctx, settlement.ResolveTradeRequest{InvoiceID: inv.ID, Approve: true})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.True(t, errors.Is(err, domain.ErrInvoiceNotOpen))
		}
	}
	assert.Equal(t, 1, succeeded)

	issuerBalance, _ := testutil.GetAccount(t, db, issuerAcct.ID)
	assert.Equal(t, int64(300000), issuerBalance)
	assert.Equal(t, domain.InvoiceStatusCompleted, testutil.GetInvoiceStatus(t, db, inv.ID))
}
