package payments

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// noAffiliateCode marks an order created without a referral code so the
// reference always has four segments.
const noAffiliateCode = "none"

// OrderRef identifies what a charge paid for. Encoded into the provider's
// order_id as userID__plan__timestamp__affiliateCode and parsed back out of
// IPN notifications.
type OrderRef struct {
	UserID        uint
	Plan          string
	AffiliateCode string
}

// BuildOrderRef encodes an order reference for checkout creation.
func BuildOrderRef(userID uint, plan, affiliateCode string) string {
	code := strings.TrimSpace(affiliateCode)
	if code == "" {
		code = noAffiliateCode
	}
	return fmt.Sprintf("%d__%s__%d__%s", userID, plan, time.Now().Unix(), code)
}

// ParseOrderRef decodes an order reference from an IPN. The timestamp segment
// is ignored; an absent or "none" affiliate segment yields an empty code.
func ParseOrderRef(ref string) (OrderRef, error) {
	parts := strings.Split(ref, "__")
	if len(parts) < 2 {
		return OrderRef{}, errors.New("invalid order reference format")
	}

	userID, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil || userID == 0 {
		return OrderRef{}, errors.New("invalid user id in order reference")
	}
	plan := strings.TrimSpace(parts[1])
	if plan == "" {
		return OrderRef{}, errors.New("missing plan in order reference")
	}

	code := ""
	if len(parts) >= 4 && parts[3] != noAffiliateCode {
		code = parts[3]
	}

	return OrderRef{
		UserID:        uint(userID),
		Plan:          plan,
		AffiliateCode: code,
	}, nil
}
