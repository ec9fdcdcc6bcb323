package quota

import (
	"time"

	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/internal/pkg/plans"
)

// Ledger performs all plan and quota mutations against the users table.
// Quota consumption and refund are single conditional UPDATE statements so
// concurrent submissions can never overshoot the monthly quota; the invariant
// 0 <= quota_used <= monthly_quota lives in the SQL, not in the caller.
type Ledger struct {
	db *gorm.DB
}

// NewLedger creates a quota ledger on a GORM handle.
func NewLedger(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// TryConsume atomically takes one quota unit. It returns false when the
// account has no quota left. A read-then-write here would be a race; the
// decrement-if-available must stay one statement.
func (l *Ledger) TryConsume(userID uint) (bool, error) {
	res := l.db.Model(&models.User{}).
		Where("id = ? AND quota_used < monthly_quota", userID).
		UpdateColumn("quota_used", gorm.Expr("quota_used + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// Refund atomically returns one quota unit, clamped at zero. Invoked when a
// job fails to dispatch after quota was consumed; never for jobs that fail
// during external processing, since quota is charged at admission.
func (l *Ledger) Refund(userID uint) error {
	return l.db.Model(&models.User{}).
		Where("id = ? AND quota_used > 0", userID).
		UpdateColumn("quota_used", gorm.Expr("quota_used - 1")).Error
}

// ApplyExpiryIfNeeded lazily downgrades an expired paid plan to free and
// returns the current user row. The downgrade itself is a guarded UPDATE so
// two concurrent submissions can't both apply it.
func (l *Ledger) ApplyExpiryIfNeeded(userID uint) (*models.User, error) {
	free := plans.Free()
	err := l.db.Model(&models.User{}).
		Where("id = ? AND plan <> ? AND plan_expires_at IS NOT NULL AND plan_expires_at < ?", userID, plans.PlanFree, time.Now()).
		Updates(map[string]interface{}{
			"plan":            plans.PlanFree,
			"monthly_quota":   free.MonthlyQuota,
			"quota_used":      0,
			"plan_expires_at": nil,
		}).Error
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := l.db.First(&user, userID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ApplyPlanChange is the single writer for plan assignments. It sets the
// plan, its policy quota, resets usage and stores the expiry. Both the
// payment reconciler and the admin override go through here so monthly_quota
// can never drift from the plan policy.
func (l *Ledger) ApplyPlanChange(userID uint, policy plans.Policy, expiresAt *time.Time) error {
	return l.db.Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"plan":            policy.ID,
			"monthly_quota":   policy.MonthlyQuota,
			"quota_used":      0,
			"plan_expires_at": expiresAt,
		}).Error
}
