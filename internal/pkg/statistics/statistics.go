package statistics

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/creatorengine/creatorengine/app/models"
	"github.com/creatorengine/creatorengine/internal/pkg/cache"
	"github.com/creatorengine/creatorengine/internal/pkg/database"
)

const (
	CacheKeyFinancial = "statistics:financial"
	CacheExpiration   = 30 * time.Minute
)

// FinancialStats aggregates confirmed revenue and commission totals for the
// admin dashboard.
type FinancialStats struct {
	TotalRevenue     float64 `json:"total_revenue"`
	RevenueThisMonth float64 `json:"revenue_this_month"`
	RevenueLast30d   float64 `json:"revenue_last_30d"`
	ConfirmedCount   int64   `json:"confirmed_count"`
	AveragePayment   float64 `json:"average_payment"`
	CommissionsPaid  float64 `json:"commissions_paid"`
	CommissionsOwed  float64 `json:"commissions_owed"`
	TotalUsers       int64   `json:"total_users"`
	TotalJobs        int64   `json:"total_jobs"`
}

var (
	lastCacheUpdate     time.Time
	cacheUpdateMutex    sync.Mutex
	cacheUpdateInterval = 5 * time.Minute
)

// ShouldUpdateCache reports whether the cached stats are older than the
// refresh interval.
func ShouldUpdateCache() bool {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	return time.Since(lastCacheUpdate) > cacheUpdateInterval
}

// UpdateCacheIfNeeded refreshes the cached stats when the interval elapsed.
func UpdateCacheIfNeeded() {
	if ShouldUpdateCache() {
		cacheUpdateMutex.Lock()
		defer cacheUpdateMutex.Unlock()

		if err := UpdateFinancialStatsCache(); err != nil {
			log.Printf("Error updating financial stats cache: %v", err)
		} else {
			lastCacheUpdate = time.Now()
		}
	}
}

// ResetCacheUpdateTimer forces the next read to recompute.
func ResetCacheUpdateTimer() {
	cacheUpdateMutex.Lock()
	defer cacheUpdateMutex.Unlock()

	lastCacheUpdate = time.Time{}
}

func computeFinancialStats() (*FinancialStats, error) {
	db := database.GetDB()
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	last30dStart := now.Add(-30 * 24 * time.Hour)

	stats := &FinancialStats{}

	if err := db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentStatusConfirmed).
		Count(&stats.ConfirmedCount).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Payment{}).
		Where("status = ?", models.PaymentStatusConfirmed).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.TotalRevenue).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Payment{}).
		Where("status = ? AND confirmed_at >= ?", models.PaymentStatusConfirmed, monthStart).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.RevenueThisMonth).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Payment{}).
		Where("status = ? AND confirmed_at >= ?", models.PaymentStatusConfirmed, last30dStart).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.RevenueLast30d).Error; err != nil {
		return nil, err
	}
	if stats.ConfirmedCount > 0 {
		stats.AveragePayment = stats.TotalRevenue / float64(stats.ConfirmedCount)
	}

	if err := db.Model(&models.Commission{}).
		Where("status = ?", models.CommissionStatusPaid).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.CommissionsPaid).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Commission{}).
		Where("status = ?", models.CommissionStatusPending).
		Select("COALESCE(SUM(amount), 0)").Scan(&stats.CommissionsOwed).Error; err != nil {
		return nil, err
	}

	if err := db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&models.Job{}).Count(&stats.TotalJobs).Error; err != nil {
		return nil, err
	}

	return stats, nil
}

// UpdateFinancialStatsCache recomputes the dashboard stats and stores them.
func UpdateFinancialStatsCache() error {
	stats, err := computeFinancialStats()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	if err := cache.Set(CacheKeyFinancial, string(payload), CacheExpiration); err != nil {
		log.Printf("Error caching financial stats: %v", err)
		return err
	}

	return nil
}

// GetFinancialStats returns the dashboard stats from cache, recomputing on a
// miss. Errors fall back to zeroed stats so the dashboard still renders.
func GetFinancialStats() FinancialStats {
	UpdateCacheIfNeeded()

	val, err := cache.Get(CacheKeyFinancial)
	if err == nil {
		var stats FinancialStats
		if err := json.Unmarshal([]byte(val), &stats); err == nil {
			return stats
		}
	}

	stats, err := computeFinancialStats()
	if err != nil {
		log.Printf("Error computing financial stats: %v", err)
		return FinancialStats{}
	}

	if payload, err := json.Marshal(stats); err == nil {
		if err := cache.Set(CacheKeyFinancial, string(payload), CacheExpiration); err != nil {
			log.Printf("Error caching financial stats: %v", err)
		}
	}

	return *stats
}
