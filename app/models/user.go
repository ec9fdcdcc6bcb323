package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER       = "user"
	ROLE_ADMIN      = "admin"
	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email            string         `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Password         string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Role             string         `gorm:"type:varchar(50);default:'user'" json:"role" validate:"oneof=user admin"`
	Status           string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	Plan             string         `gorm:"type:varchar(50);not null;default:'free';index" json:"plan"`
	MonthlyQuota     int            `gorm:"not null;default:5" json:"monthly_quota"`
	QuotaUsed        int            `gorm:"not null;default:0" json:"quota_used"`
	PlanExpiresAt    *time.Time     `gorm:"type:timestamp;default:null" json:"plan_expires_at,omitempty"`
	ReferredByCode   string         `gorm:"type:varchar(20);default:null" json:"-"`
	APIKeyHash       string         `gorm:"type:varchar(64);default:null;index" json:"-"`
	APIKeyPrefix     string         `gorm:"type:varchar(12);default:null" json:"-"`
	APIKeyIssuedAt   *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	APIKeyLastUsedAt *time.Time     `gorm:"type:timestamp;default:null" json:"-"`
	LastLoginAt      *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(username string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:         username,
		Email:        email,
		Password:     pw,
		Role:         ROLE_USER,
		Status:       STATUS_ACTIVE,
		Plan:         "free",
		MonthlyQuota: 5,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// HasActivePaidPlan reports whether the user is on a paid plan that has not
// expired yet. Expiry enforcement itself happens in the quota ledger.
func (u *User) HasActivePaidPlan(now time.Time) bool {
	if u.Plan == "" || u.Plan == "free" {
		return false
	}
	return u.PlanExpiresAt == nil || u.PlanExpiresAt.After(now)
}

// HashAPIKey returns the hex SHA-256 digest used to look up API keys.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// IssueAPIKey generates a new API key, stores its hash and prefix on the user
// and returns the plaintext key. The plaintext is never persisted.
func (u *User) IssueAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	key := "ce_" + hex.EncodeToString(b)
	u.APIKeyHash = HashAPIKey(key)
	u.APIKeyPrefix = key[:10]
	now := time.Now()
	u.APIKeyIssuedAt = &now
	return key, nil
}

// HasActiveAPIKey reports whether an API key is currently issued.
func (u *User) HasActiveAPIKey() bool {
	return u.APIKeyHash != ""
}

// RevokeAPIKey clears the stored API key material.
func (u *User) RevokeAPIKey() {
	u.APIKeyHash = ""
	u.APIKeyPrefix = ""
	u.APIKeyIssuedAt = nil
}
