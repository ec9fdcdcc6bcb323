package payments

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/plans"
)

const (
	// affiliateDiscountRate is taken off the plan price on a referred
	// account's first confirmed payment.
	affiliateDiscountRate = 0.10
	// commissionRate of the paid amount goes to the referring affiliate.
	commissionRate = 0.10
	// underpaymentTolerance absorbs small exchange-rate rounding.
	underpaymentTolerance = 0.05
)

// IPN is the payment provider's notification payload. Delivered at least
// once, possibly duplicated or out of order.
type IPN struct {
	PaymentID        int64   `json:"payment_id"`
	PaymentStatus    string  `json:"payment_status"`
	PayAddress       string  `json:"pay_address"`
	PriceAmount      float64 `json:"price_amount"`
	PriceCurrency    string  `json:"price_currency"`
	PayAmount        float64 `json:"pay_amount"`
	PayCurrency      string  `json:"pay_currency"`
	OrderID          string  `json:"order_id"`
	OrderDescription string  `json:"order_description"`
	PurchaseID       string  `json:"purchase_id"`
	ActuallyPaid     float64 `json:"actually_paid"`
}

// Outcome classifies what a notification did.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeUnderpaid Outcome = "underpaid"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
)

// Result is the reconciler's answer for one notification. Duplicates are a
// success from the provider's point of view, not an error.
type Result struct {
	Outcome Outcome
	Payment *models.Payment
}

// PlanChanger is the narrow ledger interface the reconciler mutates plans
// through. Implemented by quota.Ledger.
type PlanChanger interface {
	ApplyPlanChange(userID uint, policy plans.Policy, expiresAt *time.Time) error
}

// Reconciler applies payment provider notifications to payments, the account
// ledger and affiliate commissions. Fully idempotent per charge id.
type Reconciler struct {
	users      repository.UserRepository
	payments   repository.PaymentRepository
	affiliates repository.AffiliateRepository
	ledger     PlanChanger
}

// NewReconciler creates a payment reconciler.
func NewReconciler(
	users repository.UserRepository,
	payments repository.PaymentRepository,
	affiliates repository.AffiliateRepository,
	ledger PlanChanger,
) *Reconciler {
	return &Reconciler{users: users, payments: payments, affiliates: affiliates, ledger: ledger}
}

func isTerminalSuccessStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "finished", "confirmed":
		return true
	default:
		return false
	}
}

func isInProgressStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "waiting", "confirming", "sending":
		return true
	default:
		return false
	}
}

func isTerminalFailureStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "failed", "refunded", "expired":
		return true
	default:
		return false
	}
}

func roundCents(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// ExpectedPrice returns the price a charge must cover: the plan price, or 90%
// of it when an affiliate referral discount applies to this first payment.
func ExpectedPrice(policy plans.Policy, discounted bool) float64 {
	if discounted {
		return roundCents(policy.PriceUSD * (1 - affiliateDiscountRate))
	}
	return policy.PriceUSD
}

// NewExpiry computes the plan expiry after a confirmed payment. Renewing the
// same plan with time remaining extends additively from the current expiry;
// anything else starts a fresh period from now. Together with the one-shot
// confirm this keeps replayed notifications from granting free extensions.
func NewExpiry(user *models.User, plan string, duration time.Duration, now time.Time) time.Time {
	if user.Plan == plan && user.PlanExpiresAt != nil && user.PlanExpiresAt.After(now) {
		return user.PlanExpiresAt.Add(duration)
	}
	return now.Add(duration)
}

// Process applies one verified notification. The caller has already checked
// the IPN signature; nothing here trusts any other part of the payload.
func (r *Reconciler) Process(ipn IPN) (*Result, error) {
	ref, err := ParseOrderRef(ipn.OrderID)
	if err != nil {
		return nil, err
	}

	policy, err := plans.ByID(ref.Plan)
	if err != nil {
		return nil, fmt.Errorf("order references unknown plan %q", ref.Plan)
	}

	user, err := r.users.GetByID(ref.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order references unknown user %d", ref.UserID)
		}
		return nil, err
	}

	chargeID := strconv.FormatInt(ipn.PaymentID, 10)
	payment := &models.Payment{
		UserID:         user.ID,
		ChargeID:       chargeID,
		Plan:           policy.ID,
		Amount:         ipn.PriceAmount,
		Currency:       strings.ToUpper(ipn.PriceCurrency),
		CryptoCurrency: strings.ToUpper(ipn.PayCurrency),
	}

	switch {
	case isTerminalSuccessStatus(ipn.PaymentStatus):
		return r.confirm(user, policy, ref, ipn, payment)

	case isInProgressStatus(ipn.PaymentStatus):
		if err := r.payments.UpsertNonTerminal(payment); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomePending, Payment: payment}, nil

	case isTerminalFailureStatus(ipn.PaymentStatus):
		if err := r.payments.MarkFailed(payment); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeFailed, Payment: payment}, nil

	default:
		return nil, fmt.Errorf("unknown payment status %q", ipn.PaymentStatus)
	}
}

func (r *Reconciler) confirm(user *models.User, policy plans.Policy, ref OrderRef, ipn IPN, payment *models.Payment) (*Result, error) {
	// Fast path for redelivered confirmations; the authoritative duplicate
	// decision is the atomic ConfirmIfNew below.
	if existing, err := r.payments.GetByChargeID(payment.ChargeID); err == nil && existing.IsConfirmed() {
		return &Result{Outcome: OutcomeDuplicate, Payment: existing}, nil
	}

	// The referral discount only applies to the account's first confirmed
	// payment. Checked here at confirmation time, not trusted from checkout
	// creation, so two concurrent first checkouts can't both get it.
	discounted := false
	if ref.AffiliateCode != "" {
		prior, err := r.payments.CountConfirmedByUser(user.ID, payment.ChargeID)
		if err != nil {
			return nil, err
		}
		discounted = prior == 0
	}

	expected := ExpectedPrice(policy, discounted)
	if ipn.PriceAmount < expected*(1-underpaymentTolerance) {
		log.Warnf("[Payments] underpayment on charge %s: expected %.2f, got %.2f (plan %s)",
			payment.ChargeID, expected, ipn.PriceAmount, policy.ID)
		if err := r.payments.MarkFailed(payment); err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeUnderpaid, Payment: payment}, nil
	}

	now := time.Now()
	expiry := NewExpiry(user, policy.ID, time.Duration(policy.DurationDays)*24*time.Hour, now)

	// ConfirmIfNew decides atomically whether this delivery wins the
	// confirmation. Only the winner touches the account ledger or creates a
	// commission, so replays and concurrent deliveries are exact no-ops.
	won, err := r.payments.ConfirmIfNew(payment)
	if err != nil {
		return nil, err
	}
	if !won {
		return &Result{Outcome: OutcomeDuplicate, Payment: payment}, nil
	}

	if err := r.ledger.ApplyPlanChange(user.ID, policy, &expiry); err != nil {
		return nil, err
	}
	log.Infof("[Payments] charge %s confirmed: user %d on plan %s until %s",
		payment.ChargeID, user.ID, policy.ID, expiry.Format(time.RFC3339))

	if ref.AffiliateCode != "" {
		if err := r.createCommission(ref.AffiliateCode, user.ID, payment); err != nil {
			// Commission bookkeeping must not fail the confirmation.
			log.Errorf("[Payments] commission creation failed for charge %s: %v", payment.ChargeID, err)
		}
	}

	return &Result{Outcome: OutcomeConfirmed, Payment: payment}, nil
}

func (r *Reconciler) createCommission(code string, referredUserID uint, payment *models.Payment) error {
	affiliate, err := r.affiliates.GetActiveByCode(code)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Payments] charge %s carried unknown or inactive affiliate code %q", payment.ChargeID, code)
			return nil
		}
		return err
	}

	commission := &models.Commission{
		AffiliateID:    affiliate.ID,
		PaymentID:      payment.ID,
		ReferredUserID: referredUserID,
		Amount:         roundCents(payment.Amount * commissionRate),
		Status:         models.CommissionStatusPending,
	}
	created, err := r.affiliates.CreateCommissionIfNew(commission)
	if err != nil {
		return err
	}
	if !created {
		log.Warnf("[Payments] commission for payment %d already exists, skipping", payment.ID)
	}
	return nil
}
