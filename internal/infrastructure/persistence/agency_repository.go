package persistence

import (
	"context"

	"github.com/edubill/backend/internal/domain/agency"
	"github.com/edubill/backend/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAgencyRepository implements agency.AgencyRepository using GORM.
// Accounts and offer letters are owned by neighbouring systems and only read here.
type GormAgencyRepository struct {
	db *gorm.DB
}

// NewGormAgencyRepository creates a new GormAgencyRepository
func NewGormAgencyRepository(db *gorm.DB) *GormAgencyRepository {
	return &GormAgencyRepository{db: db}
}

// FindAccount finds an account by its ID
func (r *GormAgencyRepository) FindAccount(ctx context.Context, id uuid.UUID) (*agency.Account, error) {
	var model models.AccountModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindAgency finds an agency by its ID
func (r *GormAgencyRepository) FindAgency(ctx context.Context, id uuid.UUID) (*agency.Agency, error) {
	var model models.AgencyModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// FindOfferLetter finds an offer letter by its ID
func (r *GormAgencyRepository) FindOfferLetter(ctx context.Context, id uuid.UUID) (*agency.OfferLetter, error) {
	var model models.OfferLetterModel
	if err := conn(ctx, r.db).First(&model, "id = ?", id).Error; err != nil {
		return nil, translateError(err)
	}
	return model.ToDomain(), nil
}

// CreateAgency inserts a new agency
func (r *GormAgencyRepository) CreateAgency(ctx context.Context, a *agency.Agency) error {
	return translateError(conn(ctx, r.db).Create(models.AgencyModelFromDomain(a)).Error)
}

// CountAgenciesForAccount counts the agencies of an account
func (r *GormAgencyRepository) CountAgenciesForAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := conn(ctx, r.db).Model(&models.AgencyModel{}).
		Where("account_id = ?", accountID).
		Count(&count).Error
	return count, err
}

// ListActiveAccountIDs returns every active account, oldest first
func (r *GormAgencyRepository) ListActiveAccountIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := conn(ctx, r.db).Model(&models.AccountModel{}).
		Where("is_active = ?", true).
		Order("created_at ASC, id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

var _ agency.AgencyRepository = (*GormAgencyRepository)(nil)
