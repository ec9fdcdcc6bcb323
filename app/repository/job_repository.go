package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/creatorengine/creatorengine/app/models"
)

// GormJobRepository implements JobRepository using GORM
type GormJobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository instance
func NewJobRepository(db *gorm.DB) JobRepository {
	return &GormJobRepository{db: db}
}

func (r *GormJobRepository) Create(job *models.Job) error {
	return r.db.Create(job).Error
}

func (r *GormJobRepository) GetByID(id uint) (*models.Job, error) {
	var job models.Job
	err := r.db.First(&job, id).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *GormJobRepository) GetByUUID(uuid string) (*models.Job, error) {
	var job models.Job
	err := r.db.Where("uuid = ?", uuid).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *GormJobRepository) GetByUUIDAndUser(uuid string, userID uint) (*models.Job, error) {
	var job models.Job
	err := r.db.Where("uuid = ? AND user_id = ?", uuid, userID).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *GormJobRepository) UpdateSettings(id uint, settingsJSON string, variantCount int) error {
	return r.db.Model(&models.Job{}).Where("id = ?", id).
		Updates(map[string]interface{}{
			"settings_json": settingsJSON,
			"variant_count": variantCount,
		}).Error
}

// Delete soft-deletes a job and removes its variant rows so nothing orphaned
// stays behind.
func (r *GormJobRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := models.DeleteVariantsByJobID(tx, id); err != nil {
			return err
		}
		return tx.Delete(&models.Job{}, id).Error
	})
}

// DeleteByUser removes all of an account's jobs with their variants. Used on
// account termination.
func (r *GormJobRepository) DeleteByUser(userID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := tx.Model(&models.Job{}).Where("user_id = ?", userID).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		if err := tx.Where("job_id IN ?", ids).Delete(&models.Variant{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&models.Job{}).Error
	})
}

func (r *GormJobRepository) ListByUser(userID uint, offset, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC").Offset(offset).Limit(limit).Find(&jobs).Error
	return jobs, err
}

func (r *GormJobRepository) CountByUser(userID uint) (int64, error) {
	var count int64
	err := r.db.Model(&models.Job{}).Where("user_id = ?", userID).Count(&count).Error
	return count, err
}

func (r *GormJobRepository) CountFaceswapsSince(userID uint, since time.Time, excludeJobID uint) (int64, error) {
	var count int64
	q := r.db.Model(&models.Job{}).
		Where("user_id = ? AND kind = ? AND created_at >= ? AND status IN ?",
			userID, models.JobKindFaceswap, since,
			[]string{models.JobStatusPending, models.JobStatusProcessing, models.JobStatusCompleted})
	if excludeJobID > 0 {
		q = q.Where("id <> ?", excludeJobID)
	}
	err := q.Count(&count).Error
	return count, err
}

// MarkProcessing moves a pending job to processing. The WHERE clause carries
// the state machine: only pending rows transition, everything else is a no-op.
func (r *GormJobRepository) MarkProcessing(id uint) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     models.JobStatusProcessing,
			"started_at": &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkFailed fails a job from any non-terminal status (local dispatch or
// validation failure path).
func (r *GormJobRepository) MarkFailed(id uint, reason string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Job{}).
		Where("id = ? AND status IN ?", id,
			[]string{models.JobStatusPending, models.JobStatusUploading, models.JobStatusProcessing}).
		Updates(map[string]interface{}{
			"status":        models.JobStatusFailed,
			"error_message": reason,
			"completed_at":  &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteFromCallback applies a successful provider callback. The status
// guard makes duplicate or out-of-order terminal callbacks a no-op; variants
// are only written when this call won the transition.
func (r *GormJobRepository) CompleteFromCallback(id uint, outputZipPath string, variants []models.Variant) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Job{}).
			Where("id = ? AND status = ?", id, models.JobStatusProcessing).
			Updates(map[string]interface{}{
				"status":             models.JobStatusCompleted,
				"progress":           100,
				"variants_completed": len(variants),
				"output_zip_path":    outputZipPath,
				"completed_at":       &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		if len(variants) == 0 {
			return nil
		}
		for i := range variants {
			variants[i].JobID = id
		}
		return tx.Create(&variants).Error
	})
	return applied, err
}

// FailFromCallback applies a failure callback, guarded the same way.
func (r *GormJobRepository) FailFromCallback(id uint, errorMessage string) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":        models.JobStatusFailed,
			"error_message": errorMessage,
			"completed_at":  &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *GormJobRepository) UpdateProgress(id uint, progress, variantsCompleted int) error {
	return r.db.Model(&models.Job{}).
		Where("id = ? AND status = ?", id, models.JobStatusProcessing).
		Updates(map[string]interface{}{
			"progress":           progress,
			"variants_completed": variantsCompleted,
		}).Error
}

func (r *GormJobRepository) GetVariants(jobID uint) ([]models.Variant, error) {
	return models.FindVariantsByJobID(r.db, jobID)
}

func (r *GormJobRepository) CountVariants(jobID uint) (int64, error) {
	return models.CountVariantsByJobID(r.db, jobID)
}
