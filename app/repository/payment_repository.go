package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/creatorengine/creatorengine/app/models"
)

// GormPaymentRepository implements PaymentRepository using GORM
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository instance
func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &GormPaymentRepository{db: db}
}

func (r *GormPaymentRepository) GetByChargeID(chargeID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.Where("charge_id = ?", chargeID).First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// UpsertNonTerminal records an in-progress notification as pending. A charge
// that already reached confirmed is never downgraded.
func (r *GormPaymentRepository) UpsertNonTerminal(payment *models.Payment) error {
	payment.Status = models.PaymentStatusPending
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "charge_id"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		if err := r.db.Model(&models.Payment{}).
			Where("charge_id = ? AND status <> ?", payment.ChargeID, models.PaymentStatusConfirmed).
			Updates(map[string]interface{}{
				"amount":          payment.Amount,
				"crypto_currency": payment.CryptoCurrency,
				"status":          models.PaymentStatusPending,
			}).Error; err != nil {
			return err
		}
	}
	return r.db.Where("charge_id = ?", payment.ChargeID).First(payment).Error
}

// MarkFailed records a terminal negative notification. Confirmed charges are
// left untouched.
func (r *GormPaymentRepository) MarkFailed(payment *models.Payment) error {
	payment.Status = models.PaymentStatusFailed
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "charge_id"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		if err := r.db.Model(&models.Payment{}).
			Where("charge_id = ? AND status <> ?", payment.ChargeID, models.PaymentStatusConfirmed).
			Updates(map[string]interface{}{
				"amount": payment.Amount,
				"status": models.PaymentStatusFailed,
			}).Error; err != nil {
			return err
		}
	}
	return r.db.Where("charge_id = ?", payment.ChargeID).First(payment).Error
}

// ConfirmIfNew confirms a charge exactly once. The insert and the fallback
// update are each single atomic statements guarded on charge_id, so two
// concurrent deliveries of the same notification cannot both win. Returns
// true when this call performed the confirmation.
func (r *GormPaymentRepository) ConfirmIfNew(payment *models.Payment) (bool, error) {
	now := time.Now()
	payment.Status = models.PaymentStatusConfirmed
	payment.ConfirmedAt = &now

	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "charge_id"}},
		DoNothing: true,
	}).Create(payment)
	if tx.Error != nil {
		return false, tx.Error
	}

	confirmed := tx.RowsAffected > 0
	if !confirmed {
		res := r.db.Model(&models.Payment{}).
			Where("charge_id = ? AND status <> ?", payment.ChargeID, models.PaymentStatusConfirmed).
			Updates(map[string]interface{}{
				"status":          models.PaymentStatusConfirmed,
				"confirmed_at":    &now,
				"amount":          payment.Amount,
				"crypto_currency": payment.CryptoCurrency,
			})
		if res.Error != nil {
			return false, res.Error
		}
		confirmed = res.RowsAffected == 1
	}

	// Reload so the caller sees the stored row (ID for the commission FK).
	if err := r.db.Where("charge_id = ?", payment.ChargeID).First(payment).Error; err != nil {
		return false, err
	}
	return confirmed, nil
}

func (r *GormPaymentRepository) CountConfirmedByUser(userID uint, excludeChargeID string) (int64, error) {
	var count int64
	q := r.db.Model(&models.Payment{}).
		Where("user_id = ? AND status = ?", userID, models.PaymentStatusConfirmed)
	if excludeChargeID != "" {
		q = q.Where("charge_id <> ?", excludeChargeID)
	}
	err := q.Count(&count).Error
	return count, err
}

func (r *GormPaymentRepository) List(offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&payments).Error
	return payments, err
}

func (r *GormPaymentRepository) ListByUser(userID uint, offset, limit int) ([]models.Payment, error) {
	var payments []models.Payment
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&payments).Error
	return payments, err
}

func (r *GormPaymentRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.Payment{}).Count(&count).Error
	return count, err
}
