package models

import (
	"time"

	"gorm.io/gorm"
)

// Variant is one produced output unit of a job. Rows are written only when
// the external compute provider delivers results.
type Variant struct {
	ID                  uint      `gorm:"primaryKey" json:"id"`
	JobID               uint      `gorm:"index;not null" json:"job_id"`
	Job                 Job       `gorm:"foreignKey:JobID" json:"-"`
	FilePath            string    `gorm:"type:varchar(512);not null" json:"file_path"`
	FileSize            int64     `gorm:"type:bigint;not null" json:"file_size"`
	TransformationsJSON string    `gorm:"type:longtext" json:"transformations_json,omitempty"`
	FileHash            string    `gorm:"type:varchar(64);default:null" json:"file_hash,omitempty"`
	CaptionText         string    `gorm:"type:text" json:"caption_text,omitempty"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Variant) TableName() string {
	return "variants"
}

// FindVariantsByJobID finds all variants for a specific job
func FindVariantsByJobID(db *gorm.DB, jobID uint) ([]Variant, error) {
	var variants []Variant
	result := db.Where("job_id = ?", jobID).Order("id ASC").Find(&variants)
	return variants, result.Error
}

// CountVariantsByJobID returns the number of variants produced for a job
func CountVariantsByJobID(db *gorm.DB, jobID uint) (int64, error) {
	var count int64
	err := db.Model(&Variant{}).Where("job_id = ?", jobID).Count(&count).Error
	return count, err
}

// DeleteVariantsByJobID deletes all variants for a specific job
func DeleteVariantsByJobID(db *gorm.DB, jobID uint) error {
	return db.Where("job_id = ?", jobID).Delete(&Variant{}).Error
}
