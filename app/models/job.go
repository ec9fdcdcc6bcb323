package models

import (
	"time"

	"gorm.io/gorm"
)

// Job kind constants
const (
	JobKindVideo            = "video"
	JobKindPhotoClean       = "photo_clean"
	JobKindPhotoCaptions    = "photo_captions"
	JobKindFaceswap         = "faceswap"
	JobKindCarouselMultiply = "carousel_multiply"
)

// Job status constants
const (
	JobStatusPending    = "pending"
	JobStatusUploading  = "uploading"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

type Job struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	UUID              string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	UserID            uint           `gorm:"not null;index" json:"user_id"`
	User              User           `gorm:"foreignKey:UserID" json:"-"`
	Kind              string         `gorm:"type:varchar(32);not null;index" json:"kind"`
	Status            string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	SourceFilePath    string         `gorm:"type:varchar(512)" json:"source_file_path"`
	SourceFileName    string         `gorm:"type:varchar(255)" json:"source_file_name"`
	SourceFileSize    int64          `gorm:"type:bigint;default:0" json:"source_file_size"`
	VariantCount      int            `gorm:"not null;default:1" json:"variant_count"`
	SettingsJSON      string         `gorm:"type:longtext" json:"-"`
	Progress          int            `gorm:"not null;default:0" json:"progress"`
	VariantsCompleted int            `gorm:"not null;default:0" json:"variants_completed"`
	OutputZipPath     string         `gorm:"type:varchar(512);default:null" json:"output_zip_path,omitempty"`
	ErrorMessage      string         `gorm:"type:text" json:"error_message,omitempty"`
	ParentJobID       *uint          `gorm:"default:null;index" json:"parent_job_id,omitempty"`
	CreatedAt         time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	StartedAt         *time.Time     `gorm:"type:timestamp;default:null" json:"started_at,omitempty"`
	CompletedAt       *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	DeletedAt         gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Job) TableName() string {
	return "jobs"
}

// IsValidJobKind reports whether kind is one of the supported job kinds.
func IsValidJobKind(kind string) bool {
	switch kind {
	case JobKindVideo, JobKindPhotoClean, JobKindPhotoCaptions, JobKindFaceswap, JobKindCarouselMultiply:
		return true
	default:
		return false
	}
}

// IsTerminalJobStatus reports whether status is completed or failed.
// Terminal jobs never transition again.
func IsTerminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}

// CanTransitionJobStatus reports whether the job state machine allows moving
// from one status to another. The machine is forward-only:
// pending -> uploading -> processing -> completed|failed.
func CanTransitionJobStatus(from, to string) bool {
	if IsTerminalJobStatus(from) {
		return false
	}
	switch from {
	case JobStatusPending:
		return to == JobStatusUploading || to == JobStatusProcessing || to == JobStatusFailed
	case JobStatusUploading:
		return to == JobStatusProcessing || to == JobStatusFailed
	case JobStatusProcessing:
		return to == JobStatusCompleted || to == JobStatusFailed
	default:
		return false
	}
}

// IsTerminal reports whether the job reached a terminal status.
func (j *Job) IsTerminal() bool {
	return IsTerminalJobStatus(j.Status)
}

// BeforeCreate validates the kind so no row with an unknown kind can exist.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if !IsValidJobKind(j.Kind) {
		return gorm.ErrInvalidValue
	}
	return nil
}
