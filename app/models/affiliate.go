package models

import (
	"regexp"
	"time"
)

var affiliateCodePattern = regexp.MustCompile(`^[a-zA-Z0-9-]+$`)

// Affiliate links a user to a referral code. The code is embedded in checkout
// order references and earns commissions on confirmed referred payments.
type Affiliate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	User      User      `gorm:"foreignKey:UserID" json:"-"`
	Code      string    `gorm:"type:varchar(20);uniqueIndex;not null" json:"code"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Affiliate) TableName() string {
	return "affiliates"
}

// IsValidAffiliateCode reports whether code is 3-20 characters of letters,
// digits and hyphens.
func IsValidAffiliateCode(code string) bool {
	if len(code) < 3 || len(code) > 20 {
		return false
	}
	return affiliateCodePattern.MatchString(code)
}
