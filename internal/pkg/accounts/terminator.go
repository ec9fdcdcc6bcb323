package accounts

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/creatorengine/creatorengine/app/models"
)

// UserDeleter is the account slice of the user repository.
type UserDeleter interface {
	GetByID(id uint) (*models.User, error)
	Delete(id uint) error
}

// JobPurger removes all of an account's jobs and their variants.
type JobPurger interface {
	DeleteByUser(userID uint) error
}

// AffiliateDeactivator retires an account's referral code.
type AffiliateDeactivator interface {
	DeactivateByUserID(userID uint) error
}

// ObjectPurger deletes stored objects under a key prefix.
type ObjectPurger interface {
	DeletePrefix(ctx context.Context, prefix string) error
}

// Terminator closes accounts: jobs and variants go away, the referral code
// stops resolving, the user row is soft-deleted and uploaded objects are
// dropped. Payments and commissions are kept for bookkeeping.
type Terminator struct {
	users      UserDeleter
	jobs       JobPurger
	affiliates AffiliateDeactivator
	objects    ObjectPurger
}

// NewTerminator creates an account terminator. objects may be nil when no
// object storage is configured.
func NewTerminator(users UserDeleter, jobs JobPurger, affiliates AffiliateDeactivator, objects ObjectPurger) *Terminator {
	return &Terminator{users: users, jobs: jobs, affiliates: affiliates, objects: objects}
}

// Terminate closes the account. Database cleanup must succeed; removing
// stored objects is best-effort since the rows pointing at them are gone.
func (t *Terminator) Terminate(ctx context.Context, userID uint) error {
	if _, err := t.users.GetByID(userID); err != nil {
		return err
	}

	if err := t.affiliates.DeactivateByUserID(userID); err != nil {
		return fmt.Errorf("deactivate affiliate code: %w", err)
	}
	if err := t.jobs.DeleteByUser(userID); err != nil {
		return fmt.Errorf("delete jobs: %w", err)
	}
	if err := t.users.Delete(userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	log.Infof("[Accounts] user %d terminated", userID)

	if t.objects != nil {
		prefix := fmt.Sprintf("uploads/%d/", userID)
		if err := t.objects.DeletePrefix(ctx, prefix); err != nil {
			log.Warnf("[Accounts] could not delete stored objects under %s: %v", prefix, err)
		}
	}
	return nil
}
