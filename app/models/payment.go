package models

import "time"

// Payment status constants
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusFailed    = "failed"
)

// Payment mirrors one charge at the payment provider. ChargeID is the
// provider's charge identifier and doubles as the idempotency key: a charge
// transitions to confirmed at most once, no matter how often the provider
// retries its notification.
type Payment struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	UserID         uint       `gorm:"not null;index" json:"user_id"`
	User           User       `gorm:"foreignKey:UserID" json:"-"`
	ChargeID       string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"charge_id"`
	Plan           string     `gorm:"type:varchar(50);not null" json:"plan"`
	Amount         float64    `gorm:"type:decimal(10,2);not null;default:0" json:"amount"`
	Currency       string     `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	CryptoCurrency string     `gorm:"type:varchar(20);default:null" json:"crypto_currency,omitempty"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ConfirmedAt    *time.Time `gorm:"type:timestamp;default:null" json:"confirmed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// IsConfirmed reports whether the payment reached the confirmed status.
func (p *Payment) IsConfirmed() bool {
	return p.Status == PaymentStatusConfirmed
}
