package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
)

type fakeJobRepo struct {
	mu       sync.Mutex
	jobs     map[uint]*models.Job
	variants map[uint][]models.Variant
	nextID   uint
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[uint]*models.Job), variants: make(map[uint][]models.Variant), nextID: 1}
}

func (f *fakeJobRepo) Create(job *models.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job.ID = f.nextID
	f.nextID++
	job.CreatedAt = time.Now()
	stored := *job
	f.jobs[job.ID] = &stored
	return nil
}

func (f *fakeJobRepo) GetByID(id uint) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeJobRepo) GetByUUID(uuid string) (*models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.UUID == uuid {
			copied := *j
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeJobRepo) GetByUUIDAndUser(uuid string, userID uint) (*models.Job, error) {
	j, err := f.GetByUUID(uuid)
	if err != nil || j.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	return j, nil
}

func (f *fakeJobRepo) UpdateSettings(id uint, settingsJSON string, variantCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok {
		j.SettingsJSON = settingsJSON
		j.VariantCount = variantCount
	}
	return nil
}

func (f *fakeJobRepo) Delete(id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.jobs, id)
	delete(f.variants, id)
	return nil
}

func (f *fakeJobRepo) DeleteByUser(userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, j := range f.jobs {
		if j.UserID == userID {
			delete(f.jobs, id)
			delete(f.variants, id)
		}
	}
	return nil
}

func (f *fakeJobRepo) ListByUser(userID uint, offset, limit int) ([]models.Job, error) {
	return nil, nil
}

func (f *fakeJobRepo) CountByUser(userID uint) (int64, error) { return 0, nil }

func (f *fakeJobRepo) CountFaceswapsSince(userID uint, since time.Time, excludeJobID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, j := range f.jobs {
		if j.ID == excludeJobID {
			continue
		}
		if j.UserID == userID && j.Kind == models.JobKindFaceswap && j.Status != models.JobStatusFailed && !j.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (f *fakeJobRepo) MarkProcessing(id uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != models.JobStatusPending {
		return false, nil
	}
	now := time.Now()
	j.Status = models.JobStatusProcessing
	j.StartedAt = &now
	return true, nil
}

func (f *fakeJobRepo) MarkFailed(id uint, reason string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || models.IsTerminalJobStatus(j.Status) {
		return false, nil
	}
	now := time.Now()
	j.Status = models.JobStatusFailed
	j.ErrorMessage = reason
	j.CompletedAt = &now
	return true, nil
}

func (f *fakeJobRepo) CompleteFromCallback(id uint, outputZipPath string, variants []models.Variant) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return false, nil
	}
	now := time.Now()
	j.Status = models.JobStatusCompleted
	j.OutputZipPath = outputZipPath
	j.Progress = 100
	j.CompletedAt = &now
	f.variants[id] = append(f.variants[id], variants...)
	return true, nil
}

func (f *fakeJobRepo) FailFromCallback(id uint, errorMessage string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok || j.Status != models.JobStatusProcessing {
		return false, nil
	}
	now := time.Now()
	j.Status = models.JobStatusFailed
	j.ErrorMessage = errorMessage
	j.CompletedAt = &now
	return true, nil
}

func (f *fakeJobRepo) UpdateProgress(id uint, progress, variantsCompleted int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.jobs[id]; ok && j.Status == models.JobStatusProcessing {
		j.Progress = progress
		j.VariantsCompleted = variantsCompleted
	}
	return nil
}

func (f *fakeJobRepo) GetVariants(jobID uint) ([]models.Variant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variants[jobID], nil
}

func (f *fakeJobRepo) CountVariants(jobID uint) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.variants[jobID])), nil
}

// fakeQuota mimics the conditional-update semantics of the SQL ledger.
type fakeQuota struct {
	mu    sync.Mutex
	user  *models.User
	quota int
	used  int
}

func (f *fakeQuota) TryConsume(userID uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used < f.quota {
		f.used++
		return true, nil
	}
	return false, nil
}

func (f *fakeQuota) Refund(userID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.used > 0 {
		f.used--
	}
	return nil
}

func (f *fakeQuota) ApplyExpiryIfNeeded(userID uint) (*models.User, error) {
	copied := *f.user
	return &copied, nil
}

type fakeDispatcher struct {
	mu       sync.Mutex
	result   TriggerResult
	err      error
	requests []TriggerRequest
}

func (f *fakeDispatcher) Trigger(ctx context.Context, req TriggerRequest) (TriggerResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type registryFixture struct {
	repo       *fakeJobRepo
	quota      *fakeQuota
	dispatcher *fakeDispatcher
	registry   *Registry
	user       *models.User
}

func newRegistryFixture(plan string, quota int) *registryFixture {
	user := &models.User{ID: 1, Plan: plan, MonthlyQuota: quota}
	f := &registryFixture{
		repo:       newFakeJobRepo(),
		quota:      &fakeQuota{user: user, quota: quota},
		dispatcher: &fakeDispatcher{result: TriggerResult{Accepted: true, Handle: "call-1"}},
		user:       user,
	}
	f.registry = NewRegistry(f.repo, f.quota, f.dispatcher)
	return f
}

func (f *registryFixture) createVideoJob(t *testing.T, variants int) *models.Job {
	t.Helper()
	job, err := f.registry.CreateJob(f.user, CreateRequest{
		Kind:           models.JobKindVideo,
		SourceFilePath: "uploads/1/clip.mp4",
		SourceFileName: "clip.mp4",
		VariantCount:   variants,
		Settings:       DefaultVideoSettings(),
	})
	require.NoError(t, err)
	return job
}

func TestCreateJobClampsVariantCount(t *testing.T) {
	f := newRegistryFixture("free", 5)

	job := f.createVideoJob(t, 50)
	// free plan allows at most 10 variants per job
	assert.Equal(t, 10, job.VariantCount)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.NotEmpty(t, job.UUID)

	job = f.createVideoJob(t, 0)
	assert.Equal(t, 1, job.VariantCount)
}

func TestCreateJobRejectsForeignSource(t *testing.T) {
	f := newRegistryFixture("free", 5)

	_, err := f.registry.CreateJob(f.user, CreateRequest{
		Kind:           models.JobKindVideo,
		SourceFilePath: "uploads/2/clip.mp4",
		VariantCount:   3,
		Settings:       DefaultVideoSettings(),
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestCreateJobForcesWatermarkOnFreePlan(t *testing.T) {
	f := newRegistryFixture("free", 5)

	settings := DefaultVideoSettings()
	settings.RemoveWatermark = true
	job, err := f.registry.CreateJob(f.user, CreateRequest{
		Kind:           models.JobKindVideo,
		SourceFilePath: "uploads/1/clip.mp4",
		VariantCount:   3,
		Settings:       settings,
	})
	require.NoError(t, err)

	decoded, err := DecodeSettings(models.JobKindVideo, []byte(job.SettingsJSON))
	require.NoError(t, err)
	assert.False(t, decoded.(VideoSettings).RemoveWatermark)
}

func TestCreateJobFaceswapMonthlyLimit(t *testing.T) {
	f := newRegistryFixture("free", 5)

	swap := func() (*models.Job, error) {
		return f.registry.CreateJob(f.user, CreateRequest{
			Kind:           models.JobKindFaceswap,
			SourceFilePath: "uploads/1/source.mp4",
			VariantCount:   1,
			Settings:       FaceswapSettings{FacePath: "uploads/1/face.jpg", SourceType: "video", SwapOnly: true},
		})
	}

	// free plan allows 2 faceswaps per month
	_, err := swap()
	require.NoError(t, err)
	_, err = swap()
	require.NoError(t, err)
	_, err = swap()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFaceswapLimit))
}

func TestSubmitLastAllowedFaceswap(t *testing.T) {
	f := newRegistryFixture("free", 5)

	swap := func() *models.Job {
		job, err := f.registry.CreateJob(f.user, CreateRequest{
			Kind:           models.JobKindFaceswap,
			SourceFilePath: "uploads/1/source.mp4",
			VariantCount:   1,
			Settings:       FaceswapSettings{FacePath: "uploads/1/face.jpg", SourceType: "video", SwapOnly: true},
		})
		require.NoError(t, err)
		return job
	}

	// free plan allows 2 faceswaps per month; both must be submittable, the
	// re-check at submission must not count the job being submitted
	first := swap()
	_, err := f.registry.Submit(context.Background(), first.UUID, 1)
	require.NoError(t, err)

	second := swap()
	_, err = f.registry.Submit(context.Background(), second.UUID, 1)
	require.NoError(t, err, "submitting the last allowed faceswap must succeed")
	assert.Equal(t, 2, f.quota.used)
}

func TestCreateJobCarouselMultiply(t *testing.T) {
	f := newRegistryFixture("free", 5)

	parent := &models.Job{
		UUID:   "parent-uuid",
		UserID: 1,
		Kind:   models.JobKindPhotoCaptions,
		Status: models.JobStatusCompleted,
	}
	require.NoError(t, f.repo.Create(parent))
	for i := 0; i < 5; i++ {
		f.repo.variants[parent.ID] = append(f.repo.variants[parent.ID], models.Variant{JobID: parent.ID})
	}

	// free plan caps at 10 variants: 5 slides * 10 copies = 50 -> capped to
	// 10/5 = 2 copies
	job, err := f.registry.CreateJob(f.user, CreateRequest{
		Kind:     models.JobKindCarouselMultiply,
		Settings: MultiplySettings{SourceJobUUID: "parent-uuid", CopyCount: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, job.VariantCount)
	require.NotNil(t, job.ParentJobID)
	assert.Equal(t, parent.ID, *job.ParentJobID)

	decoded, err := DecodeSettings(models.JobKindCarouselMultiply, []byte(job.SettingsJSON))
	require.NoError(t, err)
	ms := decoded.(MultiplySettings)
	assert.Equal(t, 5, ms.SlideCount)
	assert.Equal(t, 2, ms.CopyCount)
}

func TestCreateJobCarouselRequiresCompletedParent(t *testing.T) {
	f := newRegistryFixture("free", 5)

	parent := &models.Job{
		UUID:   "parent-uuid",
		UserID: 1,
		Kind:   models.JobKindPhotoCaptions,
		Status: models.JobStatusProcessing,
	}
	require.NoError(t, f.repo.Create(parent))

	_, err := f.registry.CreateJob(f.user, CreateRequest{
		Kind:     models.JobKindCarouselMultiply,
		Settings: MultiplySettings{SourceJobUUID: "parent-uuid", CopyCount: 3},
	})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestSubmitDispatchesAndConsumesQuota(t *testing.T) {
	f := newRegistryFixture("free", 5)
	job := f.createVideoJob(t, 3)

	submitted, err := f.registry.Submit(context.Background(), job.UUID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusProcessing, submitted.Status)
	assert.NotNil(t, submitted.StartedAt)
	assert.Equal(t, 1, f.quota.used)

	require.Len(t, f.dispatcher.requests, 1)
	req := f.dispatcher.requests[0]
	assert.Equal(t, job.UUID, req.JobUUID)
	assert.Equal(t, models.JobKindVideo, req.Kind)
	assert.Equal(t, 3, req.VariantCount)
}

func TestSubmitTwiceFails(t *testing.T) {
	f := newRegistryFixture("free", 5)
	job := f.createVideoJob(t, 1)

	_, err := f.registry.Submit(context.Background(), job.UUID, 1)
	require.NoError(t, err)

	_, err = f.registry.Submit(context.Background(), job.UUID, 1)
	assert.True(t, errors.Is(err, ErrJobNotPending))
	assert.Equal(t, 1, f.quota.used)
}

func TestSubmitQuotaExceeded(t *testing.T) {
	f := newRegistryFixture("free", 1)
	first := f.createVideoJob(t, 1)
	second := f.createVideoJob(t, 1)

	_, err := f.registry.Submit(context.Background(), first.UUID, 1)
	require.NoError(t, err)

	_, err = f.registry.Submit(context.Background(), second.UUID, 1)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))

	// the rejected submit left the job pending and consumed nothing extra
	stored, err := f.repo.GetByUUID(second.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, stored.Status)
	assert.Equal(t, 1, f.quota.used)
}

func TestSubmitRefundsOnDispatchRejection(t *testing.T) {
	f := newRegistryFixture("free", 5)
	f.dispatcher.result = TriggerResult{Accepted: false, Reason: "capacity"}
	job := f.createVideoJob(t, 1)

	_, err := f.registry.Submit(context.Background(), job.UUID, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDispatchRejected))

	stored, err := f.repo.GetByUUID(job.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, "capacity", stored.ErrorMessage)
	assert.Equal(t, 0, f.quota.used)
}

func TestSubmitRefundsOnDispatchError(t *testing.T) {
	f := newRegistryFixture("free", 5)
	f.dispatcher.err = errors.New("connection refused")
	job := f.createVideoJob(t, 1)

	_, err := f.registry.Submit(context.Background(), job.UUID, 1)
	require.Error(t, err)

	stored, err := f.repo.GetByUUID(job.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, 0, f.quota.used)
}

func TestConcurrentSubmitsNeverOvershootQuota(t *testing.T) {
	const quota = 3
	const attempts = 10

	f := newRegistryFixture("free", quota)
	uuids := make([]string, attempts)
	for i := range uuids {
		uuids[i] = f.createVideoJob(t, 1).UUID
	}

	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for _, id := range uuids {
		wg.Add(1)
		go func(jobUUID string) {
			defer wg.Done()
			_, err := f.registry.Submit(context.Background(), jobUUID, 1)
			results <- err
		}(id)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			require.True(t, errors.Is(err, ErrQuotaExceeded), "unexpected error: %v", err)
		}
	}
	assert.Equal(t, quota, succeeded)
	assert.Equal(t, quota, f.quota.used)
}

func TestApplyCallbackCompleted(t *testing.T) {
	f := newRegistryFixture("free", 5)
	job := f.createVideoJob(t, 2)
	_, err := f.registry.Submit(context.Background(), job.UUID, 1)
	require.NoError(t, err)

	in := CallbackInput{
		Status:        "completed",
		OutputZipPath: "outputs/" + job.UUID + "/variants.zip",
		Outputs: []CallbackOutput{
			{FilePath: "outputs/" + job.UUID + "/v1.mp4", FileSize: 100},
			{FilePath: "outputs/" + job.UUID + "/v2.mp4", FileSize: 200},
		},
	}
	require.NoError(t, f.registry.ApplyCallback(job.UUID, in))

	stored, err := f.repo.GetByUUID(job.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Equal(t, in.OutputZipPath, stored.OutputZipPath)
	assert.NotNil(t, stored.CompletedAt)

	variants, err := f.repo.GetVariants(stored.ID)
	require.NoError(t, err)
	assert.Len(t, variants, 2)

	// redelivery is a no-op: no duplicate variants, no state change
	require.NoError(t, f.registry.ApplyCallback(job.UUID, in))
	variants, err = f.repo.GetVariants(stored.ID)
	require.NoError(t, err)
	assert.Len(t, variants, 2)
}

func TestApplyCallbackFailedAfterCompletedIsIgnored(t *testing.T) {
	f := newRegistryFixture("free", 5)
	job := f.createVideoJob(t, 1)
	_, err := f.registry.Submit(context.Background(), job.UUID, 1)
	require.NoError(t, err)

	require.NoError(t, f.registry.ApplyCallback(job.UUID, CallbackInput{Status: "completed"}))
	require.NoError(t, f.registry.ApplyCallback(job.UUID, CallbackInput{Status: "failed", ErrorMessage: "late"}))

	stored, err := f.repo.GetByUUID(job.UUID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, stored.Status)
	assert.Empty(t, stored.ErrorMessage)
}

func TestApplyCallbackProgress(t *testing.T) {
	f := newRegistryFixture("free", 5)
	job := f.createVideoJob(t, 4)
	_, err := f.registry.Submit(context.Background(), job.UUID, 1)
	require.NoError(t, err)

	require.NoError(t, f.registry.ApplyCallback(job.UUID, CallbackInput{Status: "progress", Progress: 50, VariantsCompleted: 2}))

	stored, err := f.repo.GetByUUID(job.UUID)
	require.NoError(t, err)
	assert.Equal(t, 50, stored.Progress)
	assert.Equal(t, 2, stored.VariantsCompleted)

	// progress after completion is dropped
	require.NoError(t, f.registry.ApplyCallback(job.UUID, CallbackInput{Status: "completed"}))
	require.NoError(t, f.registry.ApplyCallback(job.UUID, CallbackInput{Status: "progress", Progress: 75}))
	stored, err = f.repo.GetByUUID(job.UUID)
	require.NoError(t, err)
	assert.Equal(t, 100, stored.Progress)
}

func TestApplyCallbackUnknownStatus(t *testing.T) {
	f := newRegistryFixture("free", 5)
	job := f.createVideoJob(t, 1)

	err := f.registry.ApplyCallback(job.UUID, CallbackInput{Status: "paused"})
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}

func TestIsStalled(t *testing.T) {
	now := time.Now()
	old := now.Add(-20 * time.Minute)
	recent := now.Add(-2 * time.Minute)

	assert.True(t, IsStalled(&models.Job{Status: models.JobStatusProcessing, StartedAt: &old}, now))
	assert.False(t, IsStalled(&models.Job{Status: models.JobStatusProcessing, StartedAt: &recent}, now))
	assert.False(t, IsStalled(&models.Job{Status: models.JobStatusCompleted, StartedAt: &old}, now))
	assert.False(t, IsStalled(&models.Job{Status: models.JobStatusProcessing}, now))
}

func TestCapCopyCount(t *testing.T) {
	capped, err := CapCopyCount(5, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, 4, capped)

	capped, err = CapCopyCount(3, 4, 20)
	require.NoError(t, err)
	assert.Equal(t, 4, capped)

	_, err = CapCopyCount(8, 5, 10)
	require.Error(t, err)

	_, err = CapCopyCount(0, 5, 10)
	require.Error(t, err)
}

func TestOwnsSourcePath(t *testing.T) {
	assert.True(t, OwnsSourcePath(7, "uploads/7/file.mp4"))
	assert.False(t, OwnsSourcePath(7, "uploads/71/file.mp4"))
	assert.False(t, OwnsSourcePath(7, "uploads/8/file.mp4"))
	assert.False(t, OwnsSourcePath(7, "outputs/7/file.mp4"))
	assert.False(t, OwnsSourcePath(7, ""))
}
