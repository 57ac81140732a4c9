package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AnalysisCache holds finished results keyed by source and run config.
type AnalysisCache struct {
	CacheKey  string `gorm:"primaryKey;size:64"`
	SourceUrl string
	Result    string
	CreatedAt time.Time `gorm:"index"`
}

// GetCachedResult returns the stored result when it is younger than ttl.
// A ttl of zero never expires.
func GetCachedResult(key string, ttl time.Duration) (string, bool, error) {
	if err := checkDB(); err != nil {
		return "", false, err
	}
	var entry AnalysisCache
	if err := DB.Where("cache_key = ?", key).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, wrapDB(err)
	}
	if ttl > 0 && time.Since(entry.CreatedAt) > ttl {
		return "", false, nil
	}
	return entry.Result, true, nil
}

func SaveCachedResult(key, sourceUrl, result string) error {
	if err := checkDB(); err != nil {
		return err
	}
	entry := AnalysisCache{CacheKey: key, SourceUrl: sourceUrl, Result: result, CreatedAt: time.Now()}
	return wrapDB(DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error)
}

func PurgeExpiredCache(ttl time.Duration) (int64, error) {
	if err := checkDB(); err != nil {
		return 0, err
	}
	result := DB.Where("created_at < ?", time.Now().Add(-ttl)).Delete(&AnalysisCache{})
	return result.RowsAffected, wrapDB(result.Error)
}

// CacheStore adapts the cache table to the service result cache.
type CacheStore struct {
	TTL time.Duration
}

func (s CacheStore) Get(key string) ([]byte, bool, error) {
	result, ok, err := GetCachedResult(key, s.TTL)
	if err != nil || !ok {
		return nil, ok, err
	}
	return []byte(result), true, nil
}

func (s CacheStore) Put(key, sourceUrl string, data []byte) error {
	return SaveCachedResult(key, sourceUrl, string(data))
}
