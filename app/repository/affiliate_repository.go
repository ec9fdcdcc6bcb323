package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorengine/creatorengine/app/models"
)

// GormAffiliateRepository implements AffiliateRepository using GORM
type GormAffiliateRepository struct {
	db *gorm.DB
}

// NewAffiliateRepository creates a new affiliate repository instance
func NewAffiliateRepository(db *gorm.DB) AffiliateRepository {
	return &GormAffiliateRepository{db: db}
}

func (r *GormAffiliateRepository) GetByUserID(userID uint) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.Where("user_id = ?", userID).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *GormAffiliateRepository) GetActiveByCode(code string) (*models.Affiliate, error) {
	var affiliate models.Affiliate
	err := r.db.Where("code = ? AND is_active = ?", code, true).First(&affiliate).Error
	if err != nil {
		return nil, err
	}
	return &affiliate, nil
}

func (r *GormAffiliateRepository) Create(affiliate *models.Affiliate) error {
	return r.db.Create(affiliate).Error
}

func (r *GormAffiliateRepository) UpdateCode(userID uint, code string) (*models.Affiliate, error) {
	res := r.db.Model(&models.Affiliate{}).Where("user_id = ?", userID).Update("code", code)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.GetByUserID(userID)
}

// DeactivateByUserID retires an account's referral code. The affiliate row
// and its commissions stay for bookkeeping; the code just stops resolving.
func (r *GormAffiliateRepository) DeactivateByUserID(userID uint) error {
	return r.db.Model(&models.Affiliate{}).
		Where("user_id = ?", userID).
		Update("is_active", false).Error
}

// CreateCommissionIfNew inserts a commission unless one already exists for
// the payment. The unique payment_id index makes the check and the insert a
// single atomic statement; retried webhook deliveries report created=false.
func (r *GormAffiliateRepository) CreateCommissionIfNew(commission *models.Commission) (bool, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "payment_id"}},
		DoNothing: true,
	}).Create(commission)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *GormAffiliateRepository) ListCommissions(affiliateID uint, offset, limit int) ([]models.Commission, error) {
	var commissions []models.Commission
	err := r.db.Where("affiliate_id = ?", affiliateID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&commissions).Error
	return commissions, err
}

func (r *GormAffiliateRepository) CountCommissions(affiliateID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Commission{}).Where("affiliate_id = ?", affiliateID).Count(&count).Error
	return count, err
}

func (r *GormAffiliateRepository) SumCommissions(affiliateID uint) (float64, error) {
	var total float64
	err := r.db.Model(&models.Commission{}).
		Where("affiliate_id = ?", affiliateID).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

func (r *GormAffiliateRepository) SumCommissionsByStatus(affiliateID uint, status string) (float64, error) {
	var total float64
	err := r.db.Model(&models.Commission{}).
		Where("affiliate_id = ? AND status = ?", affiliateID, status).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error
	return total, err
}

func (r *GormAffiliateRepository) CountReferredUsers(affiliateID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Commission{}).
		Where("affiliate_id = ?", affiliateID).
		Distinct("referred_user_id").Count(&count).Error
	return count, err
}
