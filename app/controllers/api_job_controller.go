package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/app/repository"
	"github.com/creatorengine/creatorengine/internal/pkg/cache"
	"github.com/creatorengine/creatorengine/internal/pkg/jobs"
	"github.com/creatorengine/creatorengine/internal/pkg/usercontext"
)

// Status polls are the hottest read path, so single-job responses are held in
// the cache for a few seconds. Staleness is bounded by the TTL.
const jobStatusCacheTTL = 10 * time.Second

func jobStatusCacheKey(userID uint, jobUUID string) string {
	return fmt.Sprintf("job:status:%d:%s", userID, jobUUID)
}

type createJobRequest struct {
	Kind           string          `json:"kind"`
	SourceFilePath string          `json:"source_file_path"`
	SourceFileName string          `json:"source_file_name"`
	SourceFileSize int64           `json:"source_file_size"`
	VariantCount   int             `json:"variant_count"`
	Settings       json.RawMessage `json:"settings"`
}

// HandleCreateJob validates and stores a new pending job. Quota is not
// consumed until the job is submitted.
func HandleCreateJob(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	var req createJobRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid JSON body")
	}
	if !models.IsValidJobKind(req.Kind) {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Unknown job kind")
	}

	settings, err := jobs.DecodeSettings(req.Kind, req.Settings)
	if err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	}

	user, err := repository.GetGlobalFactory().GetUserRepository().GetByID(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load user")
	}

	job, err := getJobRegistry().CreateJob(user, jobs.CreateRequest{
		Kind:           req.Kind,
		SourceFilePath: req.SourceFilePath,
		SourceFileName: req.SourceFileName,
		SourceFileSize: req.SourceFileSize,
		VariantCount:   req.VariantCount,
		Settings:       settings,
	})
	if err != nil {
		return jobErrorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(jobResponse(job, time.Now()))
}

// HandleSubmitJob consumes one quota unit and dispatches a pending job.
func HandleSubmitJob(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	jobUUID := c.Params("id")

	job, err := getJobRegistry().Submit(context.Background(), jobUUID, userCtx.UserID)
	if err != nil {
		return jobErrorResponse(c, err)
	}

	if err := cache.Delete(jobStatusCacheKey(userCtx.UserID, jobUUID)); err != nil {
		log.Debugf("[Jobs] status cache invalidation failed for %s: %v", jobUUID, err)
	}

	return c.JSON(jobResponse(job, time.Now()))
}

// HandleGetJob returns a single job owned by the caller.
func HandleGetJob(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	cacheKey := jobStatusCacheKey(userCtx.UserID, c.Params("id"))

	if cached, err := cache.Get(cacheKey); err == nil && cached != "" {
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.SendString(cached)
	}

	job, err := repository.GetGlobalFactory().GetJobRepository().GetByUUIDAndUser(c.Params("id"), userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load job")
	}

	body := jobResponse(job, time.Now())
	if payload, err := json.Marshal(body); err == nil {
		if err := cache.Set(cacheKey, string(payload), jobStatusCacheTTL); err != nil {
			log.Debugf("[Jobs] status cache write failed for %s: %v", job.UUID, err)
		}
	}

	return c.JSON(body)
}

// HandleListJobs returns the caller's jobs, newest first, paged.
func HandleListJobs(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	offset, limit := parsePagination(c)

	repo := repository.GetGlobalFactory().GetJobRepository()
	jobList, err := repo.ListByUser(userCtx.UserID, offset, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to list jobs")
	}
	total, err := repo.CountByUser(userCtx.UserID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to count jobs")
	}

	now := time.Now()
	items := make([]fiber.Map, 0, len(jobList))
	for i := range jobList {
		items = append(items, jobResponse(&jobList[i], now))
	}

	return c.JSON(fiber.Map{"jobs": items, "total": total})
}

// HandleDeleteJob removes a job owned by the caller together with its stored
// outputs. Consumed quota is not returned.
func HandleDeleteJob(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetJobRepository()
	job, err := repo.GetByUUIDAndUser(c.Params("id"), userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load job")
	}

	if err := repo.Delete(job.ID); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to delete job")
	}
	if err := cache.Delete(jobStatusCacheKey(userCtx.UserID, job.UUID)); err != nil {
		log.Debugf("[Jobs] status cache invalidation failed for %s: %v", job.UUID, err)
	}

	// Rendered outputs are dropped best-effort; the job row is already gone.
	if client := getStorageClient(); client != nil {
		if err := client.DeletePrefix(context.Background(), "outputs/"+job.UUID+"/"); err != nil {
			log.Warnf("[Jobs] could not delete outputs for job %s: %v", job.UUID, err)
		}
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// HandleGetJobVariants lists a completed job's variants with presigned
// download URLs.
func HandleGetJobVariants(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)

	repo := repository.GetGlobalFactory().GetJobRepository()
	job, err := repo.GetByUUIDAndUser(c.Params("id"), userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load job")
	}

	variants, err := repo.GetVariants(job.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load variants")
	}

	client := getStorageClient()
	items := make([]fiber.Map, 0, len(variants))
	for _, v := range variants {
		item := fiber.Map{
			"id":           v.ID,
			"file_path":    v.FilePath,
			"file_size":    v.FileSize,
			"caption_text": v.CaptionText,
		}
		if v.TransformationsJSON != "" {
			item["transformations"] = json.RawMessage(v.TransformationsJSON)
		}
		if client != nil {
			if url, err := client.PresignDownload(context.Background(), v.FilePath); err == nil {
				item["download_url"] = url
			} else {
				log.Warnf("[Jobs] presign failed for %s: %v", v.FilePath, err)
			}
		}
		items = append(items, item)
	}

	response := fiber.Map{"job_id": job.UUID, "variants": items}
	if job.OutputZipPath != "" && client != nil {
		if url, err := client.PresignDownload(context.Background(), job.OutputZipPath); err == nil {
			response["zip_download_url"] = url
		}
	}

	return c.JSON(response)
}

func jobResponse(job *models.Job, now time.Time) fiber.Map {
	return fiber.Map{
		"id":                 job.UUID,
		"kind":               job.Kind,
		"status":             job.Status,
		"source_file_name":   job.SourceFileName,
		"variant_count":      job.VariantCount,
		"progress":           job.Progress,
		"variants_completed": job.VariantsCompleted,
		"error_message":      job.ErrorMessage,
		"stalled":            jobs.IsStalled(job, now),
		"created_at":         job.CreatedAt.UTC().Format(time.RFC3339),
		"started_at":         formatTimePtr(job.StartedAt),
		"completed_at":       formatTimePtr(job.CompletedAt),
	}
}

func jobErrorResponse(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return jsonError(c, fiber.StatusNotFound, "not_found", "Job not found")
	case errors.Is(err, jobs.ErrQuotaExceeded):
		return jsonError(c, fiber.StatusPaymentRequired, "quota_exceeded", "Monthly quota exhausted")
	case errors.Is(err, jobs.ErrFaceswapLimit):
		return jsonError(c, fiber.StatusPaymentRequired, "faceswap_limit", "Monthly faceswap limit reached")
	case errors.Is(err, jobs.ErrJobNotPending):
		return jsonError(c, fiber.StatusConflict, "conflict", "Job is not pending")
	case errors.Is(err, jobs.ErrDispatchRejected):
		return jsonError(c, fiber.StatusBadGateway, "dispatch_rejected", err.Error())
	case jobs.IsValidationError(err):
		return jsonError(c, fiber.StatusBadRequest, "bad_request", err.Error())
	default:
		log.Errorf("[Jobs] request failed: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Job operation failed")
	}
}
