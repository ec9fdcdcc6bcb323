package models

import "time"

// Commission status constants
const (
	CommissionStatusPending = "pending"
	CommissionStatusPaid    = "paid"
)

// Commission is a referral payout owed to an affiliate for one confirmed
// payment. PaymentID carries a unique index so retried webhook deliveries can
// never create a second commission for the same charge.
type Commission struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	AffiliateID    uint      `gorm:"not null;index" json:"affiliate_id"`
	Affiliate      Affiliate `gorm:"foreignKey:AffiliateID" json:"-"`
	PaymentID      uint      `gorm:"uniqueIndex;not null" json:"payment_id"`
	Payment        Payment   `gorm:"foreignKey:PaymentID" json:"-"`
	ReferredUserID uint      `gorm:"not null;index" json:"referred_user_id"`
	Amount         float64   `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status         string    `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Commission) TableName() string {
	return "commissions"
}
