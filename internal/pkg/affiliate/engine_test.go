package affiliate

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
)

type fakeAffiliateRepo struct {
	nextID      uint
	byUser      map[uint]*models.Affiliate
	commissions []models.Commission
	referred    map[uint]int64
}

func newFakeAffiliateRepo() *fakeAffiliateRepo {
	return &fakeAffiliateRepo{
		nextID:   1,
		byUser:   map[uint]*models.Affiliate{},
		referred: map[uint]int64{},
	}
}

func (f *fakeAffiliateRepo) GetByUserID(userID uint) (*models.Affiliate, error) {
	if a, ok := f.byUser[userID]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAffiliateRepo) GetActiveByCode(code string) (*models.Affiliate, error) {
	for _, a := range f.byUser {
		if a.Code == code && a.IsActive {
			copied := *a
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAffiliateRepo) Create(affiliate *models.Affiliate) error {
	if _, err := f.GetActiveByCode(affiliate.Code); err == nil {
		return errors.New("duplicate code")
	}
	if _, ok := f.byUser[affiliate.UserID]; ok {
		return errors.New("duplicate user")
	}
	affiliate.ID = f.nextID
	f.nextID++
	copied := *affiliate
	f.byUser[affiliate.UserID] = &copied
	return nil
}

func (f *fakeAffiliateRepo) UpdateCode(userID uint, code string) (*models.Affiliate, error) {
	a, ok := f.byUser[userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	a.Code = code
	copied := *a
	return &copied, nil
}

func (f *fakeAffiliateRepo) CreateCommissionIfNew(commission *models.Commission) (bool, error) {
	for _, c := range f.commissions {
		if c.PaymentID == commission.PaymentID {
			return false, nil
		}
	}
	f.commissions = append(f.commissions, *commission)
	return true, nil
}

func (f *fakeAffiliateRepo) ListCommissions(affiliateID uint, offset, limit int) ([]models.Commission, error) {
	var out []models.Commission
	for _, c := range f.commissions {
		if c.AffiliateID == affiliateID {
			out = append(out, c)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAffiliateRepo) CountCommissions(affiliateID uint) (int64, error) {
	var n int64
	for _, c := range f.commissions {
		if c.AffiliateID == affiliateID {
			n++
		}
	}
	return n, nil
}

func (f *fakeAffiliateRepo) SumCommissions(affiliateID uint) (float64, error) {
	var sum float64
	for _, c := range f.commissions {
		if c.AffiliateID == affiliateID {
			sum += c.Amount
		}
	}
	return sum, nil
}

func (f *fakeAffiliateRepo) SumCommissionsByStatus(affiliateID uint, status string) (float64, error) {
	var sum float64
	for _, c := range f.commissions {
		if c.AffiliateID == affiliateID && c.Status == status {
			sum += c.Amount
		}
	}
	return sum, nil
}

func (f *fakeAffiliateRepo) CountReferredUsers(affiliateID uint) (int64, error) {
	return f.referred[affiliateID], nil
}

func (f *fakeAffiliateRepo) DeactivateByUserID(userID uint) error {
	if a, ok := f.byUser[userID]; ok {
		a.IsActive = false
	}
	return nil
}

func TestEnrollGeneratesCode(t *testing.T) {
	repo := newFakeAffiliateRepo()
	engine := NewEngine(repo)

	affiliate, err := engine.Enroll(7)
	require.NoError(t, err)
	assert.Equal(t, uint(7), affiliate.UserID)
	assert.Len(t, affiliate.Code, generatedCodeLength)
	assert.True(t, affiliate.IsActive)
}

func TestEnrollIsIdempotent(t *testing.T) {
	repo := newFakeAffiliateRepo()
	engine := NewEngine(repo)

	first, err := engine.Enroll(7)
	require.NoError(t, err)
	second, err := engine.Enroll(7)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Code, second.Code)
	assert.Len(t, repo.byUser, 1)
}

func TestUpdateCode(t *testing.T) {
	repo := newFakeAffiliateRepo()
	engine := NewEngine(repo)
	_, err := engine.Enroll(7)
	require.NoError(t, err)

	affiliate, err := engine.UpdateCode(7, "  My-Code ")
	require.NoError(t, err)
	assert.Equal(t, "my-code", affiliate.Code)

	// Setting the same code again is allowed for its owner.
	_, err = engine.UpdateCode(7, "my-code")
	assert.NoError(t, err)
}

func TestUpdateCodeInvalid(t *testing.T) {
	repo := newFakeAffiliateRepo()
	engine := NewEngine(repo)
	_, err := engine.Enroll(7)
	require.NoError(t, err)

	for _, code := range []string{"", "ab", "has space", "way-too-long-for-a-referral-code", "emoji🔥"} {
		_, err := engine.UpdateCode(7, code)
		assert.ErrorIs(t, err, ErrInvalidCode, code)
	}
}

func TestUpdateCodeTaken(t *testing.T) {
	repo := newFakeAffiliateRepo()
	engine := NewEngine(repo)

	_, err := engine.Enroll(1)
	require.NoError(t, err)
	_, err = engine.Enroll(2)
	require.NoError(t, err)

	_, err = engine.UpdateCode(1, "creator")
	require.NoError(t, err)

	_, err = engine.UpdateCode(2, "CREATOR")
	assert.ErrorIs(t, err, ErrCodeTaken)
}

func TestGetStats(t *testing.T) {
	repo := newFakeAffiliateRepo()
	engine := NewEngine(repo)

	affiliate, err := engine.Enroll(7)
	require.NoError(t, err)

	repo.commissions = []models.Commission{
		{AffiliateID: affiliate.ID, PaymentID: 1, Amount: 8.90, Status: models.CommissionStatusPending},
		{AffiliateID: affiliate.ID, PaymentID: 2, Amount: 16.90, Status: models.CommissionStatusPaid},
		{AffiliateID: 99, PaymentID: 3, Amount: 100, Status: models.CommissionStatusPending},
	}
	repo.referred[affiliate.ID] = 2

	stats, err := engine.GetStats(7)
	require.NoError(t, err)
	assert.Equal(t, affiliate.Code, stats.Code)
	assert.InDelta(t, 25.80, stats.TotalEarned, 0.001)
	assert.InDelta(t, 8.90, stats.PendingPayout, 0.001)
	assert.Equal(t, int64(2), stats.ReferralCount)
}

func TestGetStatsNotEnrolled(t *testing.T) {
	engine := NewEngine(newFakeAffiliateRepo())
	_, err := engine.GetStats(404)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListCommissions(t *testing.T) {
	repo := newFakeAffiliateRepo()
	engine := NewEngine(repo)

	affiliate, err := engine.Enroll(7)
	require.NoError(t, err)
	for id := uint(1); id <= 3; id++ {
		repo.commissions = append(repo.commissions, models.Commission{
			AffiliateID: affiliate.ID, PaymentID: id, Amount: 5, Status: models.CommissionStatusPending,
		})
	}

	page, total, err := engine.ListCommissions(7, 0, 2)
	require.NoError(t, err)
	assert.Len(t, page, 2)
	assert.Equal(t, int64(3), total)

	rest, _, err := engine.ListCommissions(7, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}
