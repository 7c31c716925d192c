package ledger

import (
	"context"
	"fmt"
	"testing"

	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupLedgerTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS transactions (
  id TEXT PRIMARY KEY,
  transaction_id TEXT NOT NULL UNIQUE,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  gross_cents INTEGER NOT NULL,
  fee_cents INTEGER NOT NULL DEFAULT 0,
  tax_cents INTEGER NOT NULL DEFAULT 0,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  net_cents INTEGER NOT NULL,
  currency TEXT NOT NULL DEFAULT 'usd',
  provider TEXT,
  vendor_refs TEXT,
  payment_method TEXT,
  timeline TEXT,
  failure TEXT,
  refunds TEXT,
  disputes TEXT,
  payout TEXT,
  webhook_events TEXT,
  audit_changes TEXT,
  original_transaction_id TEXT,
  metadata TEXT,
  version INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(schema).Error)
	return db
}

func newStoredCharge(t *testing.T, repo Repository) *models.Transaction {
	t.Helper()
	txn := &models.Transaction{
		ID:            uuid.New(),
		TransactionID: NewTransactionID(),
		Type:          enums.TransactionTypeCharge,
		Status:        enums.TransactionStatusSucceeded,
		GrossCents:    5000,
		NetCents:      5000,
		Currency:      enums.CurrencyUSD,
		Provider:      enums.ProviderNameStripe,
		Payout:        models.PayoutInfo{Status: enums.PayoutStatusNotApplicable},
	}
	require.NoError(t, repo.Create(context.Background(), txn))
	return txn
}

func TestRepositoryFindByTransactionID(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	stored := newStoredCharge(t, repo)

	found, err := repo.FindByTransactionID(context.Background(), stored.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, stored.TransactionID, found.TransactionID)
	assert.Equal(t, enums.TransactionStatusSucceeded, found.Status)
	assert.Equal(t, int64(5000), found.GrossCents)

	_, err = repo.FindByTransactionID(context.Background(), "txn_missing")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryFindByVendorRef(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	stored := newStoredCharge(t, repo)
	stored.VendorRefs = models.VendorRefs{"payment_id": "sq_pay_123"}
	require.NoError(t, repo.UpdateWithVersion(ctx, stored))

	found, err := repo.FindByVendorRef(ctx, "payment_id", "sq_pay_123")
	require.NoError(t, err)
	assert.Equal(t, stored.TransactionID, found.TransactionID)

	_, err = repo.FindByVendorRef(ctx, "payment_id", "sq_pay_missing")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestRepositoryVersionCheckRejectsStaleWrite(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	stored := newStoredCharge(t, repo)

	ctx := context.Background()
	first, err := repo.FindByTransactionID(ctx, stored.TransactionID)
	require.NoError(t, err)
	second, err := repo.FindByTransactionID(ctx, stored.TransactionID)
	require.NoError(t, err)

	first.Refunds = models.RefundList{{RefundID: NewRefundID(), AmountCents: 1000, Status: enums.RefundStatusSucceeded}}
	require.NoError(t, repo.UpdateWithVersion(ctx, first))
	assert.Equal(t, 1, first.Version)

	// The second loader still holds version 0; its write must lose.
	second.Refunds = models.RefundList{{RefundID: NewRefundID(), AmountCents: 4000, Status: enums.RefundStatusSucceeded}}
	err = repo.UpdateWithVersion(ctx, second)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.Equal(t, 0, second.Version, "failed write must leave the loaded version untouched")

	reloaded, err := repo.FindByTransactionID(ctx, stored.TransactionID)
	require.NoError(t, err)
	require.Len(t, reloaded.Refunds, 1)
	assert.Equal(t, int64(1000), reloaded.Refunds[0].AmountCents)
}

func TestRepositoryUpdatePersistsEmbeddedLists(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	stored := newStoredCharge(t, repo)

	ctx := context.Background()
	txn, err := repo.FindByTransactionID(ctx, stored.TransactionID)
	require.NoError(t, err)

	txn.Status = enums.TransactionStatusPartiallyRefunded
	txn.Refunds = models.RefundList{{RefundID: "ref_x", AmountCents: 2000, Status: enums.RefundStatusSucceeded}}
	txn.WebhookEvents = models.WebhookEventList{{EventID: "evt_1", Type: "charge.refunded", Processed: true}}
	require.NoError(t, repo.UpdateWithVersion(ctx, txn))

	reloaded, err := repo.FindByTransactionID(ctx, stored.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, enums.TransactionStatusPartiallyRefunded, reloaded.Status)
	require.Len(t, reloaded.Refunds, 1)
	assert.Equal(t, "ref_x", reloaded.Refunds[0].RefundID)
	assert.True(t, reloaded.HasWebhookEvent("evt_1"))
	assert.Equal(t, 1, reloaded.Version)
}

func TestRepositoryListFilters(t *testing.T) {
	db := setupLedgerTestDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	charge := newStoredCharge(t, repo)
	refund := &models.Transaction{
		ID:                    uuid.New(),
		TransactionID:         NewTransactionID(),
		Type:                  enums.TransactionTypeRefund,
		Status:                enums.TransactionStatusSucceeded,
		GrossCents:            1000,
		NetCents:              1000,
		Currency:              enums.CurrencyUSD,
		Provider:              enums.ProviderNameSquare,
		OriginalTransactionID: &charge.TransactionID,
	}
	require.NoError(t, repo.Create(ctx, refund))

	all, err := repo.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	refunds, err := repo.List(ctx, ListFilter{Type: enums.TransactionTypeRefund})
	require.NoError(t, err)
	require.Len(t, refunds, 1)
	assert.Equal(t, refund.TransactionID, refunds[0].TransactionID)

	square, err := repo.List(ctx, ListFilter{Provider: enums.ProviderNameSquare})
	require.NoError(t, err)
	assert.Len(t, square, 1)
}
