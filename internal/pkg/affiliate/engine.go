package affiliate

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/app/repository"
)

// generated codes are 8 hex characters, retried on the rare collision
const (
	generatedCodeLength = 8
	maxGenerateAttempts = 5
)

var (
	ErrInvalidCode = errors.New("affiliate code must be 3-20 characters of letters, digits and hyphens")
	ErrCodeTaken   = errors.New("affiliate code is already taken")
)

// Stats summarizes an affiliate's earnings for the account page.
type Stats struct {
	Code          string  `json:"code"`
	TotalEarned   float64 `json:"total_earned"`
	PendingPayout float64 `json:"pending_payout"`
	ReferralCount int64   `json:"referral_count"`
}

// Engine enrolls users as affiliates and reads out their commission ledger.
// Commission rows themselves are written by the payment reconciler.
type Engine struct {
	repo repository.AffiliateRepository
}

// NewEngine creates an affiliate engine.
func NewEngine(repo repository.AffiliateRepository) *Engine {
	return &Engine{repo: repo}
}

// Enroll returns the user's affiliate record, creating one with a generated
// code on first call. Enrolling twice is a no-op.
func (e *Engine) Enroll(userID uint) (*models.Affiliate, error) {
	if existing, err := e.repo.GetByUserID(userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
		code, err := generateCode()
		if err != nil {
			return nil, err
		}
		affiliate := &models.Affiliate{UserID: userID, Code: code, IsActive: true}
		if err := e.repo.Create(affiliate); err != nil {
			// Either the code collided or a concurrent enroll won; in the
			// latter case the next GetByUserID attempt resolves it.
			if existing, getErr := e.repo.GetByUserID(userID); getErr == nil {
				return existing, nil
			}
			lastErr = err
			continue
		}
		log.Infof("[Affiliate] user %d enrolled with code %s", userID, code)
		return affiliate, nil
	}
	return nil, fmt.Errorf("could not generate a unique affiliate code: %w", lastErr)
}

// Get returns the user's affiliate record or gorm.ErrRecordNotFound.
func (e *Engine) Get(userID uint) (*models.Affiliate, error) {
	return e.repo.GetByUserID(userID)
}

// UpdateCode replaces the user's referral code with a custom one. The code is
// stored lowercased so lookups are case-insensitive.
func (e *Engine) UpdateCode(userID uint, code string) (*models.Affiliate, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if !models.IsValidAffiliateCode(code) {
		return nil, ErrInvalidCode
	}

	if owner, err := e.repo.GetActiveByCode(code); err == nil && owner.UserID != userID {
		return nil, ErrCodeTaken
	} else if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	affiliate, err := e.repo.UpdateCode(userID, code)
	if err != nil {
		return nil, err
	}
	log.Infof("[Affiliate] user %d changed code to %s", userID, code)
	return affiliate, nil
}

// GetStats aggregates earnings for the user's affiliate record.
func (e *Engine) GetStats(userID uint) (*Stats, error) {
	affiliate, err := e.repo.GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	total, err := e.repo.SumCommissions(affiliate.ID)
	if err != nil {
		return nil, err
	}
	pending, err := e.repo.SumCommissionsByStatus(affiliate.ID, models.CommissionStatusPending)
	if err != nil {
		return nil, err
	}
	referrals, err := e.repo.CountReferredUsers(affiliate.ID)
	if err != nil {
		return nil, err
	}

	return &Stats{
		Code:          affiliate.Code,
		TotalEarned:   total,
		PendingPayout: pending,
		ReferralCount: referrals,
	}, nil
}

// ListCommissions returns one page of the user's commissions plus the total
// count for pagination.
func (e *Engine) ListCommissions(userID uint, offset, limit int) ([]models.Commission, int64, error) {
	affiliate, err := e.repo.GetByUserID(userID)
	if err != nil {
		return nil, 0, err
	}
	commissions, err := e.repo.ListCommissions(affiliate.ID, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	count, err := e.repo.CountCommissions(affiliate.ID)
	if err != nil {
		return nil, 0, err
	}
	return commissions, count, nil
}

func generateCode() (string, error) {
	buf := make([]byte, generatedCodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
