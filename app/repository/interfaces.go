package repository

import (
	"time"

	"github.com/creatorengine/creatorengine/app/models"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
}

// JobRepository defines the interface for job-related database operations.
// All status transitions are conditional single-statement updates: a terminal
// row can never move again, and duplicate provider callbacks report applied=false.
type JobRepository interface {
	Create(job *models.Job) error
	GetByID(id uint) (*models.Job, error)
	GetByUUID(uuid string) (*models.Job, error)
	GetByUUIDAndUser(uuid string, userID uint) (*models.Job, error)
	UpdateSettings(id uint, settingsJSON string, variantCount int) error
	Delete(id uint) error
	DeleteByUser(userID uint) error
	ListByUser(userID uint, offset, limit int) ([]models.Job, error)
	CountByUser(userID uint) (int64, error)
	// CountFaceswapsSince counts an account's faceswap jobs created at or
	// after since. excludeJobID leaves one job out of the count so a
	// submission re-check does not count the job being submitted; zero
	// excludes nothing.
	CountFaceswapsSince(userID uint, since time.Time, excludeJobID uint) (int64, error)

	MarkProcessing(id uint) (bool, error)
	MarkFailed(id uint, reason string) (bool, error)
	CompleteFromCallback(id uint, outputZipPath string, variants []models.Variant) (bool, error)
	FailFromCallback(id uint, errorMessage string) (bool, error)
	UpdateProgress(id uint, progress, variantsCompleted int) error

	GetVariants(jobID uint) ([]models.Variant, error)
	CountVariants(jobID uint) (int64, error)
}

// PaymentRepository defines the interface for payment persistence. ChargeID
// is the idempotency key; ConfirmIfNew is the only path to the confirmed
// status and reports whether this call won the confirmation.
type PaymentRepository interface {
	GetByChargeID(chargeID string) (*models.Payment, error)
	UpsertNonTerminal(payment *models.Payment) error
	MarkFailed(payment *models.Payment) error
	ConfirmIfNew(payment *models.Payment) (bool, error)
	CountConfirmedByUser(userID uint, excludeChargeID string) (int64, error)
	List(offset, limit int) ([]models.Payment, error)
	ListByUser(userID uint, offset, limit int) ([]models.Payment, error)
	Count() (int64, error)
}

// AffiliateRepository defines the interface for affiliate and commission
// operations. CreateCommissionIfNew relies on the unique payment_id index so
// at most one commission can ever exist per payment.
type AffiliateRepository interface {
	GetByUserID(userID uint) (*models.Affiliate, error)
	GetActiveByCode(code string) (*models.Affiliate, error)
	Create(affiliate *models.Affiliate) error
	UpdateCode(userID uint, code string) (*models.Affiliate, error)
	DeactivateByUserID(userID uint) error
	CreateCommissionIfNew(commission *models.Commission) (bool, error)
	ListCommissions(affiliateID uint, offset, limit int) ([]models.Commission, error)
	CountCommissions(affiliateID uint) (int64, error)
	SumCommissions(affiliateID uint) (float64, error)
	SumCommissionsByStatus(affiliateID uint, status string) (float64, error)
	CountReferredUsers(affiliateID uint) (int64, error)
}

// WebhookEventRepository persists raw provider notifications for audit with
// (provider, event id) deduplication.
type WebhookEventRepository interface {
	CreateIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkProcessed(id uint, processingError string) error
}
