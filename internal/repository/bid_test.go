package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/factorly/marketplace/internal/domain"
	"github.com/factorly/marketplace/internal/repository"
	"github.com/factorly/marketplace/internal/testutil"
)

func TestMarkResolved_ResolvesOnce(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewBidRepository(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, _ := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 400000, domain.CurrencyEUR)
	bid := testutil.SeedBid(t, db, inv.ID, investor.ID, 150000, domain.CurrencyEUR)

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.MarkResolved(ctx, tx, bid.ID, domain.BidStatusAccepted, time.Now().UTC()))
	require.NoError(t, tx.Commit())

	require.Equal(t, domain.BidStatusAccepted, testutil.GetBidStatus(t, db, bid.ID))

	// A second resolution finds no active row to update.
	tx, err = db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()
	err = repo.MarkResolved(ctx, tx, bid.ID, domain.BidStatusRejected, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
	require.Equal(t, domain.BidStatusAccepted, testutil.GetBidStatus(t, db, bid.ID))
}

func TestMarkResolved_UnknownBid(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewBidRepository(db)
	ctx := context.Background()

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.MarkResolved(ctx, tx, uuid.New(), domain.BidStatusRejected, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrAlreadyResolved)
}

func TestMarkResolved_InvalidOutcome(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := repository.NewBidRepository(db)
	ctx := context.Background()

	issuer, _ := testutil.SeedIssuer(t, db, "Acme Textiles", domain.CurrencyEUR)
	investor, _ := testutil.SeedInvestor(t, db, "Dana Fox", domain.CurrencyEUR, 500000)
	inv := testutil.SeedInvoice(t, db, issuer.ID, 400000, domain.CurrencyEUR)
	bid := testutil.SeedBid(t, db, inv.ID, investor.ID, 150000, domain.CurrencyEUR)

	tx, err := db.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	err = repo.MarkResolved(ctx, tx, bid.ID, domain.BidStatusActive, time.Now().UTC())
	require.ErrorIs(t, err, domain.ErrInvalidRequest)
	require.Equal(t, domain.BidStatusActive, testutil.GetBidStatus(t, db, bid.ID))
}
