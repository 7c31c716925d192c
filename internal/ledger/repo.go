package ledger

import (
	"context"
	"errors"

	"github.com/angelmondragon/ledgercore-backend/pkg/db/models"
	"github.com/angelmondragon/ledgercore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/ledgercore-backend/pkg/errors"
	"gorm.io/gorm"
)

// ListFilter narrows admin listing queries.
type ListFilter struct {
	Type     enums.TransactionType
	Status   enums.TransactionStatus
	Provider enums.ProviderName
	Limit    int
	Offset   int
}

// Repository manages persistence for ledger transactions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, txn *models.Transaction) error
	FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error)
	FindByVendorRef(ctx context.Context, key, value string) (*models.Transaction, error)
	UpdateWithVersion(ctx context.Context, txn *models.Transaction) error
	List(ctx context.Context, filter ListFilter) ([]models.Transaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, txn *models.Transaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindByTransactionID(ctx context.Context, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
				WithDetails(map[string]any{"transaction_id": transactionID})
		}
		return nil, err
	}
	return &txn, nil
}

// FindByVendorRef resolves a transaction by one of its vendor reference ids,
// e.g. the vendor payment id carried by a webhook that has no transaction id.
func (r *repository) FindByVendorRef(ctx context.Context, key, value string) (*models.Transaction, error) {
	var txn models.Transaction
	err := r.db.WithContext(ctx).
		Where("vendor_refs ->> ? = ?", key, value).
		Order("created_at ASC").
		First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found").
				WithDetails(map[string]any{"vendor_ref": key})
		}
		return nil, err
	}
	return &txn, nil
}

// UpdateWithVersion persists the full row only when the stored version still
// matches the version the caller loaded. The check-and-write is a single
// conditional statement, so concurrent mutators cannot both win.
func (r *repository) UpdateWithVersion(ctx context.Context, txn *models.Transaction) error {
	loadedVersion := txn.Version
	txn.Version = loadedVersion + 1

	res := r.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("id = ? AND version = ?", txn.ID, loadedVersion).
		Select("*").
		Omit("id", "transaction_id", "created_at").
		Updates(txn)
	if res.Error != nil {
		txn.Version = loadedVersion
		return res.Error
	}
	if res.RowsAffected == 0 {
		txn.Version = loadedVersion
		return pkgerrors.New(pkgerrors.CodeConflict, "transaction was modified concurrently").
			WithDetails(map[string]any{"transaction_id": txn.TransactionID})
	}
	return nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.Transaction, error) {
	query := r.db.WithContext(ctx).Model(&models.Transaction{})
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var txns []models.Transaction
	if err := query.
		Order("created_at DESC").
		Limit(limit).
		Offset(filter.Offset).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}
