// Package settings stores runtime configuration items, including the
// bcrypt-hashed API key protecting the insights API.
package settings

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"log/slog"

	"github.com/karloscodes/cartridge/cache"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Setting represents a configuration item in the database
type Setting struct {
	ID        uint      `gorm:"primaryKey"`
	Key       string    `gorm:"uniqueIndex;not null"`
	Value     string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime:milli"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime:milli"`
}

// Setting keys
const (
	KeyAPIKeyHash = "api_key_hash"
)

var apiKeyHashCache *cache.Cache[string, string]

// SetupDefaultSettings initializes default settings in the database
func SetupDefaultSettings(dbConn *gorm.DB) error {
	settings := []Setting{
		{Key: KeyAPIKeyHash, Value: ""},
	}
	for _, setting := range settings {
		// Use raw SQL for upsert
		err := dbConn.Exec(`
            INSERT INTO settings (key, value, created_at, updated_at)
            VALUES (?, ?, ?, ?)
            ON CONFLICT(key) DO NOTHING
        `, setting.Key, setting.Value, time.Now().UTC(), time.Now().UTC()).Error
		if err != nil {
			return fmt.Errorf("failed to upsert setting %s: %w", setting.Key, err)
		}
	}

	// Initialize the cache
	loadCache(dbConn, slog.Default())

	return nil
}

// GetSetting retrieves a setting value from the database
func GetSetting(dbConn *gorm.DB, key string) (string, error) {
	var setting Setting
	result := dbConn.Where("key = ?", key).First(&setting)

	if result.Error != nil {
		return "", result.Error
	}

	return setting.Value, nil
}

// CreateOrUpdateSetting creates a new setting or updates an existing one
func CreateOrUpdateSetting(dbConn *gorm.DB, key string, value string) error {
	result := dbConn.Model(&Setting{}).Where("key = ?", key).Update("value", value)
	if result.Error != nil {
		return fmt.Errorf("failed to update setting: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		setting := Setting{Key: key, Value: value}
		if err := dbConn.Create(&setting).Error; err != nil {
			return fmt.Errorf("failed to create setting: %w", err)
		}
	}

	if apiKeyHashCache != nil {
		apiKeyHashCache.Clear()
	}
	return nil
}

// GenerateAPIKey creates a fresh random API key, stores its bcrypt hash, and
// returns the plaintext key. The plaintext is shown once and never stored.
func GenerateAPIKey(dbConn *gorm.DB) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	key := hex.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}

	if err := CreateOrUpdateSetting(dbConn, KeyAPIKeyHash, string(hash)); err != nil {
		return "", err
	}

	return key, nil
}

// VerifyAPIKey checks a presented key against the stored bcrypt hash.
// Returns false when no key has been configured.
func VerifyAPIKey(dbConn *gorm.DB, presented string) (bool, error) {
	hash, err := getAPIKeyHash(dbConn)
	if err != nil {
		return false, err
	}
	if hash == "" {
		return false, nil
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)); err != nil {
		return false, nil
	}
	return true, nil
}

func getAPIKeyHash(dbConn *gorm.DB) (string, error) {
	if apiKeyHashCache != nil {
		hash, err := apiKeyHashCache.Get(KeyAPIKeyHash)
		if err == nil {
			return hash, nil
		}
	}

	var value string
	err := dbConn.WithContext(context.Background()).
		Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", KeyAPIKeyHash).
		Scan(&value).Error
	if err != nil {
		return "", fmt.Errorf("failed to read API key hash: %w", err)
	}
	return value, nil
}

func loadCache(dbConn *gorm.DB, logger *slog.Logger) {
	fetchFunc := func(key string) (string, error) {
		var value string
		err := dbConn.WithContext(context.Background()).
			Raw("SELECT value FROM settings WHERE key = ? LIMIT 1", key).
			Scan(&value).Error
		if err != nil {
			return "", err
		}
		return value, nil
	}
	apiKeyHashCache = cache.NewCache[string, string](logger, 5*time.Minute, fetchFunc)
}
