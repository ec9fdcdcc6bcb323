package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/plans"
)

// StalenessCeiling bounds how long the UI waits on a processing job before
// presenting it as failed. Presentation only: the authoritative row is never
// mutated from this value, the provider callback may still land later.
const StalenessCeiling = 15 * time.Minute

// QuotaLedger is the narrow quota interface the registry needs. Implemented
// by quota.Ledger.
type QuotaLedger interface {
	TryConsume(userID uint) (bool, error)
	Refund(userID uint) error
	ApplyExpiryIfNeeded(userID uint) (*models.User, error)
}

// TriggerRequest is the payload handed to the external compute provider.
type TriggerRequest struct {
	JobUUID       string
	UserID        uint
	Kind          string
	SourcePath    string
	VariantCount  int
	SettingsJSON  string
	ParentJobUUID string
}

// TriggerResult is the provider's synchronous accept/reject answer.
type TriggerResult struct {
	Accepted bool
	Handle   string
	Reason   string
}

// Dispatcher triggers processing at the external compute provider.
type Dispatcher interface {
	Trigger(ctx context.Context, req TriggerRequest) (TriggerResult, error)
}

// Registry creates jobs, enforces per-kind plan constraints and drives the
// forward-only job state machine.
type Registry struct {
	repo       repository.JobRepository
	quota      QuotaLedger
	dispatcher Dispatcher
}

// NewRegistry creates a job registry.
func NewRegistry(repo repository.JobRepository, quota QuotaLedger, dispatcher Dispatcher) *Registry {
	return &Registry{repo: repo, quota: quota, dispatcher: dispatcher}
}

// CreateRequest carries a validated job submission from the API layer.
type CreateRequest struct {
	Kind           string
	SourceFilePath string
	SourceFileName string
	SourceFileSize int64
	VariantCount   int
	Settings       Settings
}

// OwnsSourcePath reports whether an object key belongs to the given user's
// upload prefix. Rejecting foreign keys prevents cross-tenant object access.
func OwnsSourcePath(userID uint, path string) bool {
	if path == "" {
		return false
	}
	return strings.HasPrefix(path, fmt.Sprintf("uploads/%d/", userID))
}

// CapCopyCount caps a carousel copy count so slides*copies stays within the
// plan's variant limit. Fewer than 2 copies after capping is rejected.
func CapCopyCount(slideCount, requested, maxVariants int) (int, error) {
	if slideCount < 1 {
		return 0, &ValidationError{Reason: "parent job has no slides"}
	}
	capped := requested
	if slideCount*capped > maxVariants {
		capped = maxVariants / slideCount
	}
	if capped < 2 {
		return 0, &ValidationError{Reason: "copy_count must be at least 2 after plan capping"}
	}
	return capped, nil
}

// ClampVariantCount clamps a requested variant count into [1, max].
func ClampVariantCount(requested, max int) int {
	if requested < 1 {
		requested = 1
	}
	if requested > max {
		return max
	}
	return requested
}

// IsStalled reports whether a processing job exceeded the staleness ceiling.
// Liveness heuristic for clients only, never a state transition.
func IsStalled(job *models.Job, now time.Time) bool {
	if job.Status != models.JobStatusProcessing || job.StartedAt == nil {
		return false
	}
	return now.Sub(*job.StartedAt) > StalenessCeiling
}

func monthStart(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
}

// admit applies per-kind plan constraints and returns the effective variant
// count and settings. Called on creation and again on submission so limits
// reflect the plan in force at dispatch time. excludeJobID keeps the
// submission re-check from counting the job being submitted against its own
// monthly limit; zero on creation.
func (r *Registry) admit(user *models.User, policy plans.Policy, req *CreateRequest, excludeJobID uint) (int, Settings, error) {
	variantCount := ClampVariantCount(req.VariantCount, policy.MaxVariantsPerJob)

	switch s := req.Settings.(type) {
	case VideoSettings:
		if !OwnsSourcePath(user.ID, req.SourceFilePath) {
			return 0, nil, &ValidationError{Reason: "source file does not belong to this account"}
		}
		if s.RemoveWatermark && !policy.WatermarkRemoval {
			s.RemoveWatermark = false
		}
		if s.WatermarkPath != "" && !OwnsSourcePath(user.ID, s.WatermarkPath) {
			return 0, nil, &ValidationError{Reason: "watermark file does not belong to this account"}
		}
		return variantCount, s, nil

	case PhotoCleanSettings:
		if !OwnsSourcePath(user.ID, req.SourceFilePath) {
			return 0, nil, &ValidationError{Reason: "source file does not belong to this account"}
		}
		return variantCount, s, nil

	case CaptionSettings:
		if req.SourceFilePath != "" && !OwnsSourcePath(user.ID, req.SourceFilePath) {
			return 0, nil, &ValidationError{Reason: "source file does not belong to this account"}
		}
		for _, photo := range s.Photos {
			if !OwnsSourcePath(user.ID, photo.FilePath) {
				return 0, nil, &ValidationError{Reason: "caption photo does not belong to this account"}
			}
		}
		return variantCount, s, nil

	case FaceswapSettings:
		if !OwnsSourcePath(user.ID, req.SourceFilePath) {
			return 0, nil, &ValidationError{Reason: "source file does not belong to this account"}
		}
		if !OwnsSourcePath(user.ID, s.FacePath) {
			return 0, nil, &ValidationError{Reason: "face file does not belong to this account"}
		}
		count, err := r.repo.CountFaceswapsSince(user.ID, monthStart(time.Now()), excludeJobID)
		if err != nil {
			return 0, nil, err
		}
		if count >= int64(policy.MaxFaceswapsPerMonth) {
			return 0, nil, ErrFaceswapLimit
		}
		if s.SwapOnly {
			s.VariantCount = 0
			return 1, s, nil
		}
		s.VariantCount = ClampVariantCount(s.VariantCount, policy.MaxVariantsPerJob)
		return s.VariantCount, s, nil

	case MultiplySettings:
		parent, err := r.repo.GetByUUIDAndUser(s.SourceJobUUID, user.ID)
		if err != nil {
			return 0, nil, &ValidationError{Reason: "parent job not found"}
		}
		if parent.Status != models.JobStatusCompleted || parent.Kind != models.JobKindPhotoCaptions {
			return 0, nil, &ValidationError{Reason: "parent job must be a completed photo captions job"}
		}
		slides, err := r.repo.CountVariants(parent.ID)
		if err != nil {
			return 0, nil, err
		}
		s.SlideCount = int(slides)
		capped, err := CapCopyCount(s.SlideCount, s.CopyCount, policy.MaxVariantsPerJob)
		if err != nil {
			return 0, nil, err
		}
		s.CopyCount = capped
		return s.SlideCount * s.CopyCount, s, nil

	default:
		return 0, nil, &ValidationError{Reason: fmt.Sprintf("unknown job kind %q", req.Kind)}
	}
}

// CreateJob validates a submission against the user's plan and stores a
// pending job. No quota is consumed here; that happens on Submit.
func (r *Registry) CreateJob(user *models.User, req CreateRequest) (*models.Job, error) {
	if req.Settings == nil || req.Settings.Kind() != req.Kind {
		return nil, &ValidationError{Reason: "settings do not match job kind"}
	}
	if err := req.Settings.Validate(); err != nil {
		return nil, err
	}

	policy, err := plans.ByID(user.Plan)
	if err != nil {
		return nil, &ValidationError{Reason: "account has an unknown plan"}
	}

	variantCount, settings, err := r.admit(user, policy, &req, 0)
	if err != nil {
		return nil, err
	}

	settingsJSON, err := EncodeSettings(settings)
	if err != nil {
		return nil, err
	}

	job := &models.Job{
		UUID:           uuid.New().String(),
		UserID:         user.ID,
		Kind:           req.Kind,
		Status:         models.JobStatusPending,
		SourceFilePath: req.SourceFilePath,
		SourceFileName: req.SourceFileName,
		SourceFileSize: req.SourceFileSize,
		VariantCount:   variantCount,
		SettingsJSON:   settingsJSON,
	}
	if ms, ok := settings.(MultiplySettings); ok {
		if parent, perr := r.repo.GetByUUIDAndUser(ms.SourceJobUUID, user.ID); perr == nil {
			job.ParentJobID = &parent.ID
		}
	}
	if err := r.repo.Create(job); err != nil {
		return nil, err
	}
	return job, nil
}

// Submit consumes one quota unit and dispatches a pending job to the compute
// provider. Ordering: expiry check, per-kind admission, atomic consume, mark
// processing, trigger. Every failure after the consume refunds the unit; the
// unit is only kept once the provider accepted the work.
func (r *Registry) Submit(ctx context.Context, jobUUID string, userID uint) (*models.Job, error) {
	job, err := r.repo.GetByUUIDAndUser(jobUUID, userID)
	if err != nil {
		return nil, err
	}
	if job.Status != models.JobStatusPending {
		return nil, ErrJobNotPending
	}

	user, err := r.quota.ApplyExpiryIfNeeded(userID)
	if err != nil {
		return nil, err
	}
	policy, err := plans.ByID(user.Plan)
	if err != nil {
		return nil, &ValidationError{Reason: "account has an unknown plan"}
	}

	settings, err := DecodeSettings(job.Kind, []byte(job.SettingsJSON))
	if err != nil {
		return nil, err
	}
	req := CreateRequest{
		Kind:           job.Kind,
		SourceFilePath: job.SourceFilePath,
		VariantCount:   job.VariantCount,
		Settings:       settings,
	}
	variantCount, settings, err := r.admit(user, policy, &req, job.ID)
	if err != nil {
		return nil, err
	}
	settingsJSON, err := EncodeSettings(settings)
	if err != nil {
		return nil, err
	}
	if settingsJSON != job.SettingsJSON || variantCount != job.VariantCount {
		if err := r.repo.UpdateSettings(job.ID, settingsJSON, variantCount); err != nil {
			return nil, err
		}
		job.SettingsJSON = settingsJSON
		job.VariantCount = variantCount
	}

	ok, err := r.quota.TryConsume(userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrQuotaExceeded
	}

	if err := r.dispatchConsumed(ctx, job); err != nil {
		return nil, err
	}
	return r.repo.GetByID(job.ID)
}

// dispatchConsumed runs the post-consume half of Submit. The deferred refund
// guarantees no quota unit leaks on any error path before the provider
// accepted the job.
func (r *Registry) dispatchConsumed(ctx context.Context, job *models.Job) (err error) {
	accepted := false
	defer func() {
		if !accepted {
			if rerr := r.quota.Refund(job.UserID); rerr != nil {
				log.Errorf("[Jobs] quota refund failed for user %d after dispatch error: %v", job.UserID, rerr)
			}
		}
	}()

	applied, err := r.repo.MarkProcessing(job.ID)
	if err != nil {
		return err
	}
	if !applied {
		return ErrJobNotPending
	}

	treq := TriggerRequest{
		JobUUID:      job.UUID,
		UserID:       job.UserID,
		Kind:         job.Kind,
		SourcePath:   job.SourceFilePath,
		VariantCount: job.VariantCount,
		SettingsJSON: job.SettingsJSON,
	}
	if job.ParentJobID != nil {
		if parent, perr := r.repo.GetByID(*job.ParentJobID); perr == nil {
			treq.ParentJobUUID = parent.UUID
		}
	}

	res, err := r.dispatcher.Trigger(ctx, treq)
	if err != nil {
		if _, ferr := r.repo.MarkFailed(job.ID, "failed to reach compute provider"); ferr != nil {
			log.Errorf("[Jobs] could not mark job %s failed: %v", job.UUID, ferr)
		}
		return fmt.Errorf("trigger compute provider: %w", err)
	}
	if !res.Accepted {
		reason := res.Reason
		if reason == "" {
			reason = "compute provider rejected the job"
		}
		if _, ferr := r.repo.MarkFailed(job.ID, reason); ferr != nil {
			log.Errorf("[Jobs] could not mark job %s failed: %v", job.UUID, ferr)
		}
		return fmt.Errorf("%w: %s", ErrDispatchRejected, reason)
	}

	accepted = true
	log.Infof("[Jobs] job %s dispatched (kind=%s, variants=%d, handle=%s)", job.UUID, job.Kind, job.VariantCount, res.Handle)
	return nil
}

// CallbackOutput is one produced output unit reported by the provider.
type CallbackOutput struct {
	FilePath        string          `json:"file_path"`
	FileSize        int64           `json:"file_size"`
	Transformations json.RawMessage `json:"transformations,omitempty"`
	FileHash        string          `json:"file_hash,omitempty"`
	CaptionText     string          `json:"caption_text,omitempty"`
}

// CallbackInput is the provider's asynchronous result delivery.
type CallbackInput struct {
	Status            string           `json:"status"`
	Progress          int              `json:"progress,omitempty"`
	VariantsCompleted int              `json:"variants_completed,omitempty"`
	OutputZipPath     string           `json:"output_zip_path,omitempty"`
	ErrorMessage      string           `json:"error_message,omitempty"`
	Outputs           []CallbackOutput `json:"outputs,omitempty"`
}

// ApplyCallback applies an asynchronous provider callback to a job. Duplicate
// or out-of-order terminal callbacks are logged no-ops: callbacks are
// delivered at least once and must be idempotent.
func (r *Registry) ApplyCallback(jobUUID string, in CallbackInput) error {
	job, err := r.repo.GetByUUID(jobUUID)
	if err != nil {
		return err
	}

	switch in.Status {
	case "completed":
		variants := make([]models.Variant, 0, len(in.Outputs))
		for _, out := range in.Outputs {
			variants = append(variants, models.Variant{
				FilePath:            out.FilePath,
				FileSize:            out.FileSize,
				TransformationsJSON: string(out.Transformations),
				FileHash:            out.FileHash,
				CaptionText:         out.CaptionText,
			})
		}
		applied, err := r.repo.CompleteFromCallback(job.ID, in.OutputZipPath, variants)
		if err != nil {
			return err
		}
		if !applied {
			log.Warnf("[Jobs] ignoring completed callback for job %s in status %s", job.UUID, job.Status)
		}
		return nil

	case "failed":
		msg := in.ErrorMessage
		if msg == "" {
			msg = "processing failed"
		}
		applied, err := r.repo.FailFromCallback(job.ID, msg)
		if err != nil {
			return err
		}
		if !applied {
			log.Warnf("[Jobs] ignoring failed callback for job %s in status %s", job.UUID, job.Status)
		}
		return nil

	case "progress":
		if job.Status != models.JobStatusProcessing {
			return nil
		}
		return r.repo.UpdateProgress(job.ID, in.Progress, in.VariantsCompleted)

	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown callback status %q", in.Status)}
	}
}
